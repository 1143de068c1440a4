package chunker

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"unicode/utf8"
)

// nextByteWindow computes the next chunk's start and end offsets under
// the byte-length strategy and advances the cursor. Both offsets always
// land on character boundaries. It returns ok=false once the cursor has
// reached the end of the buffer.
func nextByteWindow(text []byte, chunkSize int, overlap int, cursor *int) (start int, end int, ok bool, err error) {
	textLen := len(text)
	if *cursor >= textLen {
		return 0, 0, false, nil
	}

	start = *cursor
	if !isCharBoundary(text, start) {
		return 0, 0, false, fmt.Errorf("%w: cursor %d is inside a multi-byte character", ErrInternal, start)
	}

	end = start + chunkSize
	if end >= textLen {
		// End of text is always a valid boundary, and this is the final
		// chunk: pin the cursor so the next call terminates the sequence.
		*cursor = textLen
		return start, textLen, true, nil
	}
	if !isCharBoundary(text, end) {
		adjusted, found := lastBoundaryWithin(text, end)
		if !found {
			return 0, 0, false, fmt.Errorf("%w: no character boundary within %d bytes of offset %d", ErrInternal, utf8.UTFMax-1, end)
		}
		end = adjusted
	}

	step := (end - start) - overlap
	if step <= 0 {
		return 0, 0, false, fmt.Errorf("%w: no forward progress with chunk of %d bytes and overlap %d", ErrInternal, end-start, overlap)
	}

	// Adjust the next cursor backward (never forward) to a character
	// boundary, so the realized overlap is never less than requested.
	next := start + step
	if !isCharBoundary(text, next) {
		adjusted, found := lastBoundaryWithin(text, next)
		if !found {
			return 0, 0, false, fmt.Errorf("%w: no character boundary within %d bytes of offset %d", ErrInternal, utf8.UTFMax-1, next)
		}
		next = adjusted
	}
	*cursor = next

	return start, end, true, nil
}

func isCharBoundary(text []byte, i int) bool {
	return i == 0 || i == len(text) || utf8.RuneStart(text[i])
}

// lastBoundaryWithin searches backward from i for a character boundary.
// UTF-8 continuation runs are at most 3 bytes, so the search is bounded.
func lastBoundaryWithin(text []byte, i int) (int, bool) {
	lo := i - (utf8.UTFMax - 1)
	if lo < 0 {
		lo = 0
	}
	for j := i; j >= lo; j-- {
		if isCharBoundary(text, j) {
			return j, true
		}
	}
	return 0, false
}

// NewBytesFromString chunks an in-memory string into overlapping windows
// of chunkSize bytes, shrunk as needed so no window splits a multi-byte
// character.
func NewBytesFromString(text string, chunkSize int, overlap int) (Iterator, error) {
	if err := ValidateArgs(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &bytesStringIterator{
		text:      []byte(text),
		chunkSize: chunkSize,
		overlap:   overlap,
	}, nil
}

// NewBytesFromFile stream-chunks the file at path under the byte-length
// strategy, with working memory bounded by a small multiple of chunkSize
// regardless of file size.
func NewBytesFromFile(path string, chunkSize int, overlap int, opts ...Option) (Iterator, error) {
	if err := ValidateArgs(chunkSize, overlap); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(errors.New("failed to open file for chunking"), err)
	}
	return newBytesReaderIterator(f, f, chunkSize, overlap, opts), nil
}

// NewBytesFromFS is NewBytesFromFile over an arbitrary filesystem.
func NewBytesFromFS(fsys fs.FS, path string, chunkSize int, overlap int, opts ...Option) (Iterator, error) {
	if err := ValidateArgs(chunkSize, overlap); err != nil {
		return nil, err
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, errors.Join(errors.New("failed to open file for chunking"), err)
	}
	return newBytesReaderIterator(f, f, chunkSize, overlap, opts), nil
}

// NewBytesFromReader stream-chunks an arbitrary reader under the
// byte-length strategy. If closer is non-nil it is closed when the
// sequence is exhausted or abandoned.
func NewBytesFromReader(r io.Reader, closer io.Closer, chunkSize int, overlap int, opts ...Option) (Iterator, error) {
	if err := ValidateArgs(chunkSize, overlap); err != nil {
		return nil, err
	}
	return newBytesReaderIterator(r, closer, chunkSize, overlap, opts), nil
}

type bytesStringIterator struct {
	text      []byte
	chunkSize int
	overlap   int

	cursor int
	chunk  string
	err    error
}

func (it *bytesStringIterator) Next() bool {
	if it.err != nil {
		return false
	}
	start, end, ok, err := nextByteWindow(it.text, it.chunkSize, it.overlap, &it.cursor)
	if err != nil {
		it.err = err
		return false
	}
	if !ok {
		return false
	}
	it.chunk = string(it.text[start:end])
	return true
}

func (it *bytesStringIterator) Chunk() string {
	return it.chunk
}

func (it *bytesStringIterator) Err() error {
	return it.err
}

func (it *bytesStringIterator) Close() error {
	return nil
}

func newBytesReaderIterator(r io.Reader, closer io.Closer, chunkSize int, overlap int, opts []Option) *bytesReaderIterator {
	return &bytesReaderIterator{
		reader:    newBlockReader(r, buildOptions(opts)),
		closer:    closer,
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

type bytesReaderIterator struct {
	reader    *blockReader
	closer    io.Closer
	chunkSize int
	overlap   int

	buf      []byte
	cursor   int
	fileDone bool
	chunk    string
	err      error
	closed   bool
}

func (it *bytesReaderIterator) Next() bool {
	if it.err != nil || (it.closed && !it.fileDone) {
		return false
	}

	// Compact before reading more: drop the consumed prefix once the
	// cursor has advanced past the lookahead window, keeping enough
	// trailing context for future overlap. This is what keeps working
	// memory bounded on inputs larger than the window.
	if !it.fileDone && it.cursor > it.chunkSize*lookaheadFactor {
		keep := it.cursor - it.chunkSize*retentionFactor
		for keep > 0 && !isCharBoundary(it.buf, keep) {
			keep--
		}
		it.buf = append(it.buf[:0], it.buf[keep:]...)
		it.cursor -= keep
	}

	// Top up the working buffer until enough lookahead exists for a full
	// chunk, or the decoder is exhausted.
	for !it.fileDone && len(it.buf)-it.cursor < it.chunkSize*lookaheadFactor {
		block, err := it.reader.next()
		if err == io.EOF {
			it.fileDone = true
			break
		}
		if err != nil {
			it.fail(err)
			return false
		}
		it.buf = append(it.buf, block...)
	}

	start, end, ok, err := nextByteWindow(it.buf, it.chunkSize, it.overlap, &it.cursor)
	if err != nil {
		it.fail(err)
		return false
	}
	if !ok {
		it.finish()
		return false
	}
	it.chunk = string(it.buf[start:end])
	return true
}

func (it *bytesReaderIterator) fail(err error) {
	it.err = err
	it.Close()
}

func (it *bytesReaderIterator) finish() {
	if err := it.Close(); err != nil && it.err == nil {
		it.err = err
	}
}

func (it *bytesReaderIterator) Chunk() string {
	return it.chunk
}

func (it *bytesReaderIterator) Err() error {
	return it.err
}

func (it *bytesReaderIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.buf = nil
	if it.closer == nil {
		return nil
	}
	if err := it.closer.Close(); err != nil {
		return errors.Join(errors.New("failed to close chunked input"), err)
	}
	return nil
}
