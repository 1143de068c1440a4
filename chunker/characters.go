package chunker

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"unicode/utf8"
)

// charSpan is one entry of the character offset table: the byte offset
// and encoded byte length of a single character in the working buffer.
type charSpan struct {
	start int
	size  int
}

// appendCharSpans extends the offset table with one entry per character
// of text, which must be valid UTF-8. base is the byte offset of text
// within the working buffer.
func appendCharSpans(spans []charSpan, text []byte, base int) []charSpan {
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRune(text[i:])
		spans = append(spans, charSpan{start: base + i, size: size})
		i += size
	}
	return spans
}

// nextCharWindow computes the next chunk's byte offsets under the
// character-length strategy and advances both cursors. Table entries are
// always character boundaries, so no boundary search is needed.
func nextCharWindow(textLen int, spans []charSpan, chunkSize int, overlap int, charCursor *int, byteCursor *int) (start int, end int, ok bool) {
	numChars := len(spans)
	if *charCursor >= numChars {
		return 0, 0, false
	}

	startIdx := *charCursor
	endIdx := startIdx + chunkSize
	if endIdx > numChars {
		endIdx = numChars
	}
	start = spans[startIdx].start

	if endIdx >= numChars {
		// Final chunk: pin both cursors so the next call terminates.
		*charCursor = numChars
		*byteCursor = textLen
		return start, textLen, true
	}
	last := spans[endIdx-1]
	end = last.start + last.size

	// Step is strictly positive: overlap < chunkSize is checked at
	// construction.
	next := startIdx + (chunkSize - overlap)
	*charCursor = next
	*byteCursor = spans[next].start

	return start, end, true
}

// NewCharactersFromString chunks an in-memory string into overlapping
// windows of chunkSize characters. Chunk byte lengths vary with the
// characters they carry.
func NewCharactersFromString(text string, chunkSize int, overlap int) (Iterator, error) {
	if err := ValidateArgs(chunkSize, overlap); err != nil {
		return nil, err
	}
	raw := []byte(text)
	return &charsStringIterator{
		text:      raw,
		spans:     appendCharSpans(nil, raw, 0),
		chunkSize: chunkSize,
		overlap:   overlap,
	}, nil
}

// NewCharactersFromFile stream-chunks the file at path under the
// character-length strategy, with working memory bounded by a small
// multiple of chunkSize regardless of file size.
func NewCharactersFromFile(path string, chunkSize int, overlap int, opts ...Option) (Iterator, error) {
	if err := ValidateArgs(chunkSize, overlap); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(errors.New("failed to open file for chunking"), err)
	}
	return newCharsReaderIterator(f, f, chunkSize, overlap, opts), nil
}

// NewCharactersFromFS is NewCharactersFromFile over an arbitrary
// filesystem.
func NewCharactersFromFS(fsys fs.FS, path string, chunkSize int, overlap int, opts ...Option) (Iterator, error) {
	if err := ValidateArgs(chunkSize, overlap); err != nil {
		return nil, err
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, errors.Join(errors.New("failed to open file for chunking"), err)
	}
	return newCharsReaderIterator(f, f, chunkSize, overlap, opts), nil
}

// NewCharactersFromReader stream-chunks an arbitrary reader under the
// character-length strategy. If closer is non-nil it is closed when the
// sequence is exhausted or abandoned.
func NewCharactersFromReader(r io.Reader, closer io.Closer, chunkSize int, overlap int, opts ...Option) (Iterator, error) {
	if err := ValidateArgs(chunkSize, overlap); err != nil {
		return nil, err
	}
	return newCharsReaderIterator(r, closer, chunkSize, overlap, opts), nil
}

type charsStringIterator struct {
	text      []byte
	spans     []charSpan
	chunkSize int
	overlap   int

	charCursor int
	byteCursor int
	chunk      string
	err        error
}

func (it *charsStringIterator) Next() bool {
	start, end, ok := nextCharWindow(len(it.text), it.spans, it.chunkSize, it.overlap, &it.charCursor, &it.byteCursor)
	if !ok {
		return false
	}
	it.chunk = string(it.text[start:end])
	return true
}

func (it *charsStringIterator) Chunk() string {
	return it.chunk
}

func (it *charsStringIterator) Err() error {
	return it.err
}

func (it *charsStringIterator) Close() error {
	return nil
}

func newCharsReaderIterator(r io.Reader, closer io.Closer, chunkSize int, overlap int, opts []Option) *charsReaderIterator {
	return &charsReaderIterator{
		reader:    newBlockReader(r, buildOptions(opts)),
		closer:    closer,
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

type charsReaderIterator struct {
	reader    *blockReader
	closer    io.Closer
	chunkSize int
	overlap   int

	buf        []byte
	spans      []charSpan
	charCursor int
	byteCursor int
	fileDone   bool
	chunk      string
	err        error
	closed     bool
}

func (it *charsReaderIterator) Next() bool {
	if it.err != nil || (it.closed && !it.fileDone) {
		return false
	}

	// Compact before reading more: drop the consumed prefix and rebase
	// the offset table to the new buffer origin once the cursor has
	// advanced past the lookahead window. This is what keeps working
	// memory bounded on inputs larger than the window.
	if !it.fileDone && it.charCursor > it.chunkSize*lookaheadFactor {
		keepChars := it.charCursor - it.chunkSize*retentionFactor
		keepBytes := it.spans[keepChars].start
		it.buf = append(it.buf[:0], it.buf[keepBytes:]...)
		it.spans = append(it.spans[:0], it.spans[keepChars:]...)
		for i := range it.spans {
			it.spans[i].start -= keepBytes
		}
		it.charCursor -= keepChars
		it.byteCursor -= keepBytes
	}

	// Top up until enough characters of lookahead exist for a full chunk,
	// or the decoder is exhausted.
	for !it.fileDone && len(it.spans)-it.charCursor < it.chunkSize*lookaheadFactor {
		block, err := it.reader.next()
		if err == io.EOF {
			it.fileDone = true
			break
		}
		if err != nil {
			it.fail(err)
			return false
		}
		it.spans = appendCharSpans(it.spans, []byte(block), len(it.buf))
		it.buf = append(it.buf, block...)
	}

	start, end, ok := nextCharWindow(len(it.buf), it.spans, it.chunkSize, it.overlap, &it.charCursor, &it.byteCursor)
	if !ok {
		it.finish()
		return false
	}
	it.chunk = string(it.buf[start:end])
	return true
}

func (it *charsReaderIterator) fail(err error) {
	it.err = err
	it.Close()
}

func (it *charsReaderIterator) finish() {
	if err := it.Close(); err != nil && it.err == nil {
		it.err = err
	}
}

func (it *charsReaderIterator) Chunk() string {
	return it.chunk
}

func (it *charsReaderIterator) Err() error {
	return it.err
}

func (it *charsReaderIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.buf = nil
	it.spans = nil
	if it.closer == nil {
		return nil
	}
	if err := it.closer.Close(); err != nil {
		return errors.Join(errors.New("failed to close chunked input"), err)
	}
	return nil
}
