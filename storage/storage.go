// Package storage persists chunked documents so indexing pipelines can
// resume, deduplicate, and query previously chunked inputs.
package storage

import (
	"context"
	"errors"
	"time"
)

// ChunkParams records how a document was chunked. Documents chunked
// with different parameters are different documents from the pipeline's
// point of view.
type ChunkParams struct {
	// Strategy is "bytes" or "characters".
	Strategy  string `json:"strategy" db:"strategy"`
	ChunkSize int    `json:"chunkSize" db:"chunk_size"`
	Overlap   int    `json:"overlap" db:"overlap"`
}

type DocumentID string

type Document struct {
	ID   DocumentID `json:"id"`
	Path string     `json:"path"`
	// ETag identifies the document content; when it changes, the
	// document must be rechunked.
	ETag   string      `json:"etag"`
	Params ChunkParams `json:"params"`

	// Timestamp when this document was first seen and created.
	CreatedAt time.Time `json:"createdAt"`
	// Set once every chunk of the document has been stored.
	ChunkingFinished *time.Time `json:"chunkingFinished"`
}

type Chunk struct {
	Document DocumentID `json:"document"`
	// Ordinal is the chunk's position in the emitted sequence, starting
	// at zero.
	Ordinal int    `json:"ordinal"`
	Content string `json:"content"`
}

var ErrDocumentDoesntExist = errors.New("document does not exist in storage")

type Store interface {
	// GetOrCreateDocument looks the document up by path and chunking
	// parameters; if it doesn't exist, creates it with the given etag
	// and ChunkingFinished unset. The stored etag is returned for the
	// caller to compare against the current one and rechunk on
	// mismatch. Returns true if the document was created during the
	// call.
	GetOrCreateDocument(ctx context.Context, path string, eTag string, params ChunkParams) (*Document, bool, error)
	// DeleteDocument removes the document and all its chunks.
	DeleteDocument(ctx context.Context, id DocumentID) error
	// PutChunk stores one chunk of the document.
	PutChunk(ctx context.Context, id DocumentID, ordinal int, content string) error
	// FinishDocument marks the document's chunk sequence complete.
	FinishDocument(ctx context.Context, id DocumentID) error
	// DocumentChunks returns the document's chunks in emission order.
	DocumentChunks(ctx context.Context, id DocumentID) ([]Chunk, error)
}
