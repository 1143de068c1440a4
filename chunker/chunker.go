// Package chunker splits text into a lazily-produced sequence of
// overlapping substrings, sized either in raw bytes or in characters.
// In-memory chunkers operate over a fully loaded string; file chunkers
// stream blocks through a UTF-8 decoder and keep working memory bounded
// by a small multiple of the chunk size, emitting byte-for-byte the same
// sequence as their in-memory counterparts. Emitted chunks never split a
// multi-byte character.
package chunker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DefaultBlockSize is the number of raw bytes read from the underlying
// input per decoder block.
const DefaultBlockSize = 8 * 1024

// File chunkers keep at least lookaheadFactor*chunkSize units of decoded
// data ahead of the cursor before asking the window engine for a chunk,
// and keep retentionFactor*chunkSize units behind it when compacting.
// This guarantees a full chunk plus its overlap is always resolvable from
// buffered data before compaction can discard it.
const (
	lookaheadFactor = 5
	retentionFactor = 2
)

// ErrInternal marks invariant violations inside the window engines. These
// never occur on valid UTF-8 input with validated parameters; they are
// returned through Iterator.Err instead of panicking so a host pipeline
// can report them.
var ErrInternal = errors.New("internal invariant violated")

// ErrMalformedInput is returned when the input contains bytes that can
// never decode as UTF-8 and the decode policy is DecodeStrict.
var ErrMalformedInput = errors.New("input is not valid UTF-8")

// InvalidArgumentsError is returned at construction when the overlap is
// not strictly smaller than the chunk size. Such a chunker could never
// make forward progress.
type InvalidArgumentsError struct {
	ChunkSize int
	Overlap   int
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("the overlap (%d) must be less than the chunk size (%d)", e.Overlap, e.ChunkSize)
}

// ValidateArgs checks a chunk size and overlap pair the same way every
// constructor in this package does.
func ValidateArgs(chunkSize int, overlap int) error {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return &InvalidArgumentsError{ChunkSize: chunkSize, Overlap: overlap}
	}
	return nil
}

// Iterator is a lazy sequence of overlapping chunks. It is a single
// forward pass: not restartable and not safe for concurrent pulls.
// Multiple independent iterators over independent inputs are fully
// independent.
//
// Close releases the underlying input early. Iterators over file-backed
// inputs close it themselves once the sequence is exhausted.
type Iterator interface {
	io.Closer

	// Next advances to the next chunk. It returns false when the sequence
	// is exhausted or failed; check Err to tell the two apart.
	Next() bool
	// Chunk returns the chunk produced by the last successful Next call.
	// The returned string is an owned copy, always complete UTF-8.
	Chunk() string
	// Err returns the first error encountered while producing chunks.
	Err() error
}

// DecodePolicy controls what happens when the input contains byte
// sequences that can never decode as UTF-8.
type DecodePolicy int

const (
	// DecodeStrict fails the sequence on the first undecodable byte.
	DecodeStrict DecodePolicy = iota
	// DecodeSkip drops undecodable bytes and continues, emitting a
	// diagnostic through the configured logger. Note that this silently
	// truncates data for non-UTF-8 inputs.
	DecodeSkip
)

type options struct {
	blockSize int
	policy    DecodePolicy
	logger    *slog.Logger
}

// Option configures a file-backed chunker.
type Option func(*options)

// WithBlockSize sets the size in bytes of the blocks read from the
// underlying input. The emitted chunk sequence is identical for every
// block size; this only tunes read granularity.
func WithBlockSize(size int) Option {
	return func(o *options) {
		o.blockSize = size
	}
}

// WithDecodePolicy sets the behaviour on undecodable input bytes.
func WithDecodePolicy(policy DecodePolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithLogger sets the logger used for decode diagnostics. When unset,
// diagnostics are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{
		blockSize: DefaultBlockSize,
		policy:    DecodeStrict,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.blockSize <= 0 {
		o.blockSize = DefaultBlockSize
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
