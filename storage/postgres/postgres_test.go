package postgres

import (
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jimzer/kiru/storage/testlib"
)

func getTestingStorage(t *testing.T, options ...PostgresOption) *PostgresStorage {
	dbURL := os.Getenv("TEST_STORAGE_POSTGRES_DBURL")
	if dbURL == "" {
		t.Skip("TEST_STORAGE_POSTGRES_DBURL is not configured")
	}

	cfg, err := pgx.ParseConfig(dbURL)
	if err != nil {
		t.Error(err.Error())
		t.FailNow()
	}

	db := stdlib.OpenDB(*cfg)
	t.Cleanup(func() {
		db.Close()
	})

	schemaName := testlib.RandSchemaName(32)
	if _, err := db.ExecContext(t.Context(), "CREATE SCHEMA "+schemaName); err != nil {
		t.Error(err.Error())
		t.FailNow()
	}
	t.Cleanup(func() {
		db.ExecContext(t.Context(), "DROP SCHEMA "+schemaName)
	})

	options = append([]PostgresOption{WithDatabaseSchema(schemaName)}, options...)
	storage := NewPostgresStorage(db, options...)
	t.Cleanup(func() {
		storage.UnInstall(t.Context())
	})

	if err := storage.Install(t.Context()); err != nil {
		t.Error(err.Error())
		t.FailNow()
	}

	return &storage
}

func TestUnInstall(t *testing.T) {
	storage := getTestingStorage(t)
	if err := storage.UnInstall(t.Context()); err != nil {
		t.Error(err.Error())
		t.FailNow()
	}

	query := fmt.Sprintf(`
		WITH objects AS (
			SELECT 'table' AS type, tablename AS name
			FROM pg_tables
			WHERE schemaname = '%s'

			UNION ALL
			SELECT 'sequence', sequencename
			FROM pg_sequences
			WHERE schemaname = '%s'
		)
		SELECT *
		FROM objects;
	`, storage.databaseSchema, storage.databaseSchema)

	rows, err := storage.db.QueryContext(t.Context(), query)
	if err != nil {
		t.Error(err.Error())
		t.FailNow()
	}
	defer rows.Close()

	for rows.Next() {
		t.Fail()
		var objectType, name string
		if err := rows.Scan(&objectType, &name); err != nil {
			t.Error(err.Error())
			t.FailNow()
		}

		t.Logf("Type: %s. Object: %s", objectType, name)
	}

	if rows.Err() != nil {
		t.Error(rows.Err().Error())
		t.FailNow()
	}
}

func TestStorage(t *testing.T) {
	testlib.TestStorage(t, getTestingStorage(t))
}
