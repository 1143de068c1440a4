package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jimzer/kiru/storage"
	"github.com/jimzer/kiru/storage/postgres/migrations"
)

type PostgresStorage struct {
	db *sql.DB

	databaseName   string
	databaseSchema string
	databasePrefix string

	documentTable string
	chunkTable    string
}

func NewPostgresStorage(db *sql.DB, options ...PostgresOption) PostgresStorage {
	storage := PostgresStorage{
		db:             db,
		databaseName:   "postgres",
		databaseSchema: "public",
		databasePrefix: "kiru_",
	}

	for _, option := range options {
		option(&storage)
	}

	storage.documentTable = fmt.Sprintf("%s.%sdocument", storage.databaseSchema, storage.databasePrefix)
	storage.chunkTable = fmt.Sprintf("%s.%schunk", storage.databaseSchema, storage.databasePrefix)

	return storage
}

func (s *PostgresStorage) migrator() (*migrate.Migrate, error) {
	migrationFiles, err := migrations.PrepareMigrations(s.databaseSchema, s.databasePrefix)
	if err != nil {
		return nil, errors.Join(errors.New("failed to prepare migration files"), err)
	}

	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{
		SchemaName:      s.databaseSchema,
		MigrationsTable: fmt.Sprintf("%smigrations", s.databasePrefix),
	})
	if err != nil {
		return nil, errors.Join(errors.New("failed to create postgres migration driver"), err)
	}

	migrationsSource, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return nil, errors.Join(errors.New("failed to open postgres migrations source"), err)
	}

	migrator, err := migrate.NewWithInstance("migrations", migrationsSource, s.databaseName, driver)
	if err != nil {
		return nil, errors.Join(errors.New("failed to create migrator"), err)
	}

	return migrator, nil
}

// Make sure that all the tables are created and the storage is ready to
// work. You can run this safely several times.
func (s *PostgresStorage) Install(ctx context.Context) error {
	migrator, err := s.migrator()
	if err != nil {
		return err
	}

	if err := migrator.Up(); err != nil {
		return errors.Join(errors.New("error while performing migration on the database"), err)
	}

	return nil
}

// Completely removes itself from the database.
func (s *PostgresStorage) UnInstall(ctx context.Context) error {
	migrator, err := s.migrator()
	if err != nil {
		return err
	}

	if err := migrator.Down(); err != nil {
		return errors.Join(errors.New("error while performing migration on the database"), err)
	}

	if _, err := s.db.Exec("DROP TABLE " + fmt.Sprintf("%s.%smigrations", s.databaseSchema, s.databasePrefix)); err != nil {
		return errors.Join(errors.New("failed to drop migrations table"), err)
	}

	return nil
}

func (s *PostgresStorage) GetOrCreateDocument(ctx context.Context, path string, eTag string, params storage.ChunkParams) (*storage.Document, bool, error) {
	query := fmt.Sprintf(`
		WITH ins AS (
			INSERT INTO %s (
				path,
				etag,
				strategy,
				chunk_size,
				overlap
			)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT(path, strategy, chunk_size, overlap) DO NOTHING
			RETURNING document_id, etag, created_at, chunking_finished, true as inserted
		)
		SELECT * FROM ins
		UNION ALL
		SELECT document_id, etag, created_at, chunking_finished, false as inserted
		FROM %s
		WHERE NOT EXISTS (SELECT 1 FROM ins)
			AND path = $1 AND strategy = $3 AND chunk_size = $4 AND overlap = $5;
	`, s.documentTable, s.documentTable)
	var documentID uint64
	var currentETag string
	var createdAt time.Time
	var chunkingFinished *time.Time
	var inserted bool
	if err := s.db.QueryRowContext(ctx, query, path, eTag, params.Strategy, params.ChunkSize, params.Overlap).Scan(&documentID, &currentETag, &createdAt, &chunkingFinished, &inserted); err != nil {
		return nil, false, errors.Join(errors.New("failed to get or create document in the database"), err)
	}

	return &storage.Document{
		ID:               storage.DocumentID(fmt.Sprintf("%d", documentID)),
		Path:             path,
		ETag:             currentETag,
		Params:           params,
		CreatedAt:        createdAt,
		ChunkingFinished: chunkingFinished,
	}, inserted, nil
}

func (s *PostgresStorage) DeleteDocument(ctx context.Context, id storage.DocumentID) error {
	documentID, err := strconv.Atoi(string(id))
	if err != nil {
		return storage.ErrDocumentDoesntExist
	}

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE document_id = $1
		RETURNING document_id
	`, s.documentTable)
	var returnedID uint64
	if err := s.db.QueryRowContext(ctx, query, documentID).Scan(&returnedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrDocumentDoesntExist
		}

		return errors.Join(errors.New("failed to delete document from the database"), err)
	}

	return nil
}

func (s *PostgresStorage) PutChunk(ctx context.Context, id storage.DocumentID, ordinal int, content string) error {
	documentID, err := strconv.Atoi(string(id))
	if err != nil {
		return storage.ErrDocumentDoesntExist
	}

	query := fmt.Sprintf(`
		WITH doc AS (
			SELECT document_id FROM %s WHERE document_id = $1
		)
		INSERT INTO %s (document_id, ordinal, content)
		SELECT document_id, $2, $3 FROM doc
		ON CONFLICT (document_id, ordinal) DO UPDATE SET content = EXCLUDED.content
	`, s.documentTable, s.chunkTable)
	commandTag, err := s.db.ExecContext(ctx, query, documentID, ordinal, content)
	if err != nil {
		return errors.Join(errors.New("failed to insert chunk in the database"), err)
	}

	if affected, _ := commandTag.RowsAffected(); affected == 0 {
		return storage.ErrDocumentDoesntExist
	}

	return nil
}

func (s *PostgresStorage) FinishDocument(ctx context.Context, id storage.DocumentID) error {
	documentID, err := strconv.Atoi(string(id))
	if err != nil {
		return storage.ErrDocumentDoesntExist
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET chunking_finished = NOW()
		WHERE document_id = $1
		RETURNING document_id
	`, s.documentTable)
	var returnedID uint64
	if err := s.db.QueryRowContext(ctx, query, documentID).Scan(&returnedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrDocumentDoesntExist
		}

		return errors.Join(errors.New("failed to update document info in the database"), err)
	}

	return nil
}

func (s *PostgresStorage) DocumentChunks(ctx context.Context, id storage.DocumentID) ([]storage.Chunk, error) {
	documentID, err := strconv.Atoi(string(id))
	if err != nil {
		return nil, storage.ErrDocumentDoesntExist
	}

	query := fmt.Sprintf(`
		SELECT ordinal, content
		FROM %s
		WHERE document_id = $1
		ORDER BY ordinal
	`, s.chunkTable)
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, errors.Join(errors.New("failed to get chunks from the database"), err)
	}
	defer rows.Close()

	var chunks []storage.Chunk
	for rows.Next() {
		chunk := storage.Chunk{Document: id}
		if err := rows.Scan(&chunk.Ordinal, &chunk.Content); err != nil {
			return nil, errors.Join(errors.New("failed to scan chunk row from the database"), err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(errors.New("errors while reading response from the database"), err)
	}

	if len(chunks) == 0 {
		existsQuery := fmt.Sprintf("SELECT document_id FROM %s WHERE document_id = $1", s.documentTable)
		var returnedID uint64
		if err := s.db.QueryRowContext(ctx, existsQuery, documentID).Scan(&returnedID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, storage.ErrDocumentDoesntExist
			}

			return nil, errors.Join(errors.New("failed to check document existence in the database"), err)
		}
	}

	return chunks, nil
}
