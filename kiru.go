// Package kiru splits text into overlapping chunks for embedding and
// indexing pipelines. Chunk boundaries are measured either in raw bytes
// or in characters; both strategies work over in-memory strings and over
// files of unbounded size in bounded memory, and never split a
// multi-byte character.
//
//	b, err := kiru.ByBytes(512, 64)
//	if err != nil {
//	    return err
//	}
//	it, err := b.FromFile("corpus.txt")
//	if err != nil {
//	    return err
//	}
//	defer it.Close()
//	for it.Next() {
//	    process(it.Chunk())
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
package kiru

import (
	"context"
	"errors"

	"github.com/jimzer/kiru/chunker"
	"github.com/jimzer/kiru/source"
)

// Stream pairs a resolved input with its lazy chunk sequence.
type Stream struct {
	Path   string
	Chunks chunker.Iterator
}

// BytesChunker builds chunk sequences sized in raw bytes. Windows are
// shrunk by up to three bytes so they never end inside a multi-byte
// character.
type BytesChunker struct {
	chunkSize int
	overlap   int
	opts      []chunker.Option
}

// ByBytes builds a byte-strategy chunker producing windows of chunkSize
// bytes with overlap bytes shared between consecutive chunks. It fails
// with an InvalidArgumentsError unless overlap < chunkSize.
func ByBytes(chunkSize int, overlap int, opts ...chunker.Option) (*BytesChunker, error) {
	if err := chunker.ValidateArgs(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &BytesChunker{chunkSize: chunkSize, overlap: overlap, opts: opts}, nil
}

// FromText chunks an in-memory string.
func (b *BytesChunker) FromText(text string) (chunker.Iterator, error) {
	return chunker.NewBytesFromString(text, b.chunkSize, b.overlap)
}

// FromFile stream-chunks the file at path.
func (b *BytesChunker) FromFile(path string) (chunker.Iterator, error) {
	return chunker.NewBytesFromFile(path, b.chunkSize, b.overlap, b.opts...)
}

// FromInput chunks one resolved input.
func (b *BytesChunker) FromInput(ctx context.Context, in source.Input) (chunker.Iterator, error) {
	if text, ok := in.(source.TextInput); ok {
		return b.FromText(text.Text())
	}
	r, err := in.Open(ctx)
	if err != nil {
		return nil, err
	}
	return chunker.NewBytesFromReader(r, r, b.chunkSize, b.overlap, b.opts...)
}

// FromSource resolves src and returns one chunk stream per input.
func (b *BytesChunker) FromSource(ctx context.Context, src source.Source) ([]Stream, error) {
	inputs, err := src.Resolve(ctx)
	if err != nil {
		return nil, errors.Join(errors.New("failed to resolve source"), err)
	}
	streams := make([]Stream, 0, len(inputs))
	for _, in := range inputs {
		it, err := b.FromInput(ctx, in)
		if err != nil {
			closeStreams(streams)
			return nil, err
		}
		streams = append(streams, Stream{Path: in.Path(), Chunks: it})
	}
	return streams, nil
}

// CharactersChunker builds chunk sequences sized in characters. Chunk
// byte lengths vary with the characters they carry.
type CharactersChunker struct {
	chunkSize int
	overlap   int
	opts      []chunker.Option
}

// ByCharacters builds a character-strategy chunker producing windows of
// chunkSize characters with overlap characters shared between
// consecutive chunks. It fails with an InvalidArgumentsError unless
// overlap < chunkSize.
func ByCharacters(chunkSize int, overlap int, opts ...chunker.Option) (*CharactersChunker, error) {
	if err := chunker.ValidateArgs(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &CharactersChunker{chunkSize: chunkSize, overlap: overlap, opts: opts}, nil
}

// FromText chunks an in-memory string.
func (c *CharactersChunker) FromText(text string) (chunker.Iterator, error) {
	return chunker.NewCharactersFromString(text, c.chunkSize, c.overlap)
}

// FromFile stream-chunks the file at path.
func (c *CharactersChunker) FromFile(path string) (chunker.Iterator, error) {
	return chunker.NewCharactersFromFile(path, c.chunkSize, c.overlap, c.opts...)
}

// FromInput chunks one resolved input.
func (c *CharactersChunker) FromInput(ctx context.Context, in source.Input) (chunker.Iterator, error) {
	if text, ok := in.(source.TextInput); ok {
		return c.FromText(text.Text())
	}
	r, err := in.Open(ctx)
	if err != nil {
		return nil, err
	}
	return chunker.NewCharactersFromReader(r, r, c.chunkSize, c.overlap, c.opts...)
}

// FromSource resolves src and returns one chunk stream per input.
func (c *CharactersChunker) FromSource(ctx context.Context, src source.Source) ([]Stream, error) {
	inputs, err := src.Resolve(ctx)
	if err != nil {
		return nil, errors.Join(errors.New("failed to resolve source"), err)
	}
	streams := make([]Stream, 0, len(inputs))
	for _, in := range inputs {
		it, err := c.FromInput(ctx, in)
		if err != nil {
			closeStreams(streams)
			return nil, err
		}
		streams = append(streams, Stream{Path: in.Path(), Chunks: it})
	}
	return streams, nil
}

// Collect drains the iterator, closes it, and returns every remaining
// chunk.
func Collect(it chunker.Iterator) ([]string, error) {
	var chunks []string
	for it.Next() {
		chunks = append(chunks, it.Chunk())
	}
	if err := it.Err(); err != nil {
		it.Close()
		return nil, err
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func closeStreams(streams []Stream) {
	for _, s := range streams {
		s.Chunks.Close()
	}
}
