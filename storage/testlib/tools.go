package testlib

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/jimzer/kiru/storage"
)

func RandString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz" + "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

func RandSchemaName(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz"

	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

func randParams() storage.ChunkParams {
	return storage.ChunkParams{Strategy: "bytes", ChunkSize: 512, Overlap: 64}
}

// TestStorage runs the behavioral suite every Store implementation must
// pass.
func TestStorage(t *testing.T, s storage.Store) {
	t.Run("CreateDeleteDocument", func(t *testing.T) {
		path := "/docs/" + RandString(12) + ".txt"

		doc, created, err := s.GetOrCreateDocument(t.Context(), path, RandString(16), randParams())
		if err != nil {
			t.Fatal(err)
		}
		if !created {
			t.Error("expected document to be created, but created flag was false")
		}
		if doc.Path != path {
			t.Errorf("expected path %s, got %s", path, doc.Path)
		}
		if doc.ChunkingFinished != nil {
			t.Error("expected new document to have no chunking_finished timestamp")
		}

		if err := s.DeleteDocument(t.Context(), doc.ID); err != nil {
			t.Fatal(err)
		}

		// Deleting again should report the document as missing.
		err = s.DeleteDocument(t.Context(), doc.ID)
		if !errors.Is(err, storage.ErrDocumentDoesntExist) {
			t.Errorf("expected ErrDocumentDoesntExist when deleting twice, got %v", err)
		}
	})

	t.Run("GetOrCreateDocumentIdempotent", func(t *testing.T) {
		path := "/docs/" + RandString(12) + ".txt"
		eTag := RandString(16)
		params := randParams()

		doc1, created, err := s.GetOrCreateDocument(t.Context(), path, eTag, params)
		if err != nil {
			t.Fatal(err)
		}
		if !created {
			t.Error("expected first call to create the document")
		}

		doc2, created, err := s.GetOrCreateDocument(t.Context(), path, eTag, params)
		if err != nil {
			t.Fatal(err)
		}
		if created {
			t.Error("expected second call to find the document, not create it")
		}
		if doc1.ID != doc2.ID {
			t.Errorf("expected same document ID, got %s and %s", doc1.ID, doc2.ID)
		}

		// Looking up with a different etag still finds the same document
		// and returns the stored etag, so callers can detect staleness.
		doc3, created, err := s.GetOrCreateDocument(t.Context(), path, RandString(16), params)
		if err != nil {
			t.Fatal(err)
		}
		if created {
			t.Error("expected changed etag to find the document, not create it")
		}
		if doc3.ID != doc1.ID {
			t.Errorf("expected same document ID, got %s and %s", doc1.ID, doc3.ID)
		}
		if doc3.ETag != eTag {
			t.Errorf("expected stored etag %s to be returned, got %s", eTag, doc3.ETag)
		}
	})

	t.Run("DifferentParamsAreDifferentDocuments", func(t *testing.T) {
		path := "/docs/" + RandString(12) + ".txt"
		eTag := RandString(16)

		doc1, _, err := s.GetOrCreateDocument(t.Context(), path, eTag, storage.ChunkParams{Strategy: "bytes", ChunkSize: 512, Overlap: 64})
		if err != nil {
			t.Fatal(err)
		}
		doc2, created, err := s.GetOrCreateDocument(t.Context(), path, eTag, storage.ChunkParams{Strategy: "characters", ChunkSize: 512, Overlap: 64})
		if err != nil {
			t.Fatal(err)
		}
		if !created {
			t.Error("expected different strategy to create a new document")
		}
		if doc1.ID == doc2.ID {
			t.Error("expected documents with different params to have different IDs")
		}
	})

	t.Run("PutAndReadChunks", func(t *testing.T) {
		doc, _, err := s.GetOrCreateDocument(t.Context(), "/docs/"+RandString(12)+".txt", RandString(16), randParams())
		if err != nil {
			t.Fatal(err)
		}

		want := make([]string, 10)
		for i := range want {
			want[i] = "chunk content " + RandString(24)
			if err := s.PutChunk(t.Context(), doc.ID, i, want[i]); err != nil {
				t.Fatalf("failed to put chunk %d: %v", i, err)
			}
		}

		chunks, err := s.DocumentChunks(t.Context(), doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != len(want) {
			t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
		}
		for i, chunk := range chunks {
			if chunk.Ordinal != i {
				t.Errorf("chunk %d has ordinal %d", i, chunk.Ordinal)
			}
			if chunk.Content != want[i] {
				t.Errorf("chunk %d content mismatch", i)
			}
			if chunk.Document != doc.ID {
				t.Errorf("chunk %d belongs to document %s, expected %s", i, chunk.Document, doc.ID)
			}
		}
	})

	t.Run("PutChunkIsIdempotentPerOrdinal", func(t *testing.T) {
		doc, _, err := s.GetOrCreateDocument(t.Context(), "/docs/"+RandString(12)+".txt", RandString(16), randParams())
		if err != nil {
			t.Fatal(err)
		}

		if err := s.PutChunk(t.Context(), doc.ID, 0, "first attempt"); err != nil {
			t.Fatal(err)
		}
		// Rewriting the same ordinal is how interrupted pipelines resume.
		if err := s.PutChunk(t.Context(), doc.ID, 0, "second attempt"); err != nil {
			t.Fatal(err)
		}

		chunks, err := s.DocumentChunks(t.Context(), doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 1 {
			t.Fatalf("expected 1 chunk, got %d", len(chunks))
		}
		if chunks[0].Content != "second attempt" {
			t.Errorf("expected rewritten content, got %q", chunks[0].Content)
		}
	})

	t.Run("PutChunkOnNonexistentDocument", func(t *testing.T) {
		err := s.PutChunk(t.Context(), storage.DocumentID("999999999"), 0, "orphan")
		if !errors.Is(err, storage.ErrDocumentDoesntExist) {
			t.Errorf("expected ErrDocumentDoesntExist, got %v", err)
		}
	})

	t.Run("FinishDocument", func(t *testing.T) {
		path := "/docs/" + RandString(12) + ".txt"
		eTag := RandString(16)
		params := randParams()

		doc, _, err := s.GetOrCreateDocument(t.Context(), path, eTag, params)
		if err != nil {
			t.Fatal(err)
		}

		if err := s.FinishDocument(t.Context(), doc.ID); err != nil {
			t.Fatal(err)
		}

		again, created, err := s.GetOrCreateDocument(t.Context(), path, eTag, params)
		if err != nil {
			t.Fatal(err)
		}
		if created {
			t.Error("expected to find the finished document, not create it")
		}
		if again.ChunkingFinished == nil {
			t.Error("expected chunking_finished to be set after FinishDocument")
		}
	})

	t.Run("FinishNonexistentDocument", func(t *testing.T) {
		err := s.FinishDocument(t.Context(), storage.DocumentID("999999999"))
		if !errors.Is(err, storage.ErrDocumentDoesntExist) {
			t.Errorf("expected ErrDocumentDoesntExist, got %v", err)
		}
	})

	t.Run("DeleteDocumentDeletesChunks", func(t *testing.T) {
		doc, _, err := s.GetOrCreateDocument(t.Context(), "/docs/"+RandString(12)+".txt", RandString(16), randParams())
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 5; i++ {
			if err := s.PutChunk(t.Context(), doc.ID, i, RandString(32)); err != nil {
				t.Fatal(err)
			}
		}

		if err := s.DeleteDocument(t.Context(), doc.ID); err != nil {
			t.Fatal(err)
		}

		_, err = s.DocumentChunks(t.Context(), doc.ID)
		if !errors.Is(err, storage.ErrDocumentDoesntExist) {
			t.Errorf("expected ErrDocumentDoesntExist after deletion, got %v", err)
		}
	})

	t.Run("ChunksOfNonexistentDocument", func(t *testing.T) {
		_, err := s.DocumentChunks(t.Context(), storage.DocumentID("999999999"))
		if !errors.Is(err, storage.ErrDocumentDoesntExist) {
			t.Errorf("expected ErrDocumentDoesntExist, got %v", err)
		}
	})

	t.Run("EmptyDocumentHasNoChunks", func(t *testing.T) {
		doc, _, err := s.GetOrCreateDocument(t.Context(), "/docs/"+RandString(12)+".txt", RandString(16), randParams())
		if err != nil {
			t.Fatal(err)
		}

		chunks, err := s.DocumentChunks(t.Context(), doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 0 {
			t.Errorf("expected 0 chunks, got %d", len(chunks))
		}
	})

	t.Run("ConcurrentPutAndRead", func(t *testing.T) {
		doc, _, err := s.GetOrCreateDocument(t.Context(), "/docs/"+RandString(12)+".txt", RandString(16), randParams())
		if err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 100)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if err := s.PutChunk(t.Context(), doc.ID, i, fmt.Sprintf("chunk %d %s", i, RandString(16))); err != nil {
					errs <- err
					return
				}
			}
		}()

		// Read concurrently with writes.
		for i := 0; i < 10; i++ {
			if _, err := s.DocumentChunks(t.Context(), doc.ID); err != nil {
				t.Fatal(err)
			}
		}

		wg.Wait()
		close(errs)

		for e := range errs {
			if e != nil {
				t.Fatal(e)
			}
		}

		chunks, err := s.DocumentChunks(t.Context(), doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 100 {
			t.Errorf("expected 100 chunks, got %d", len(chunks))
		}
	})
}
