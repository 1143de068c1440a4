package chunker

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func collect(t *testing.T, it Iterator) []string {
	t.Helper()
	var chunks []string
	for it.Next() {
		chunks = append(chunks, it.Chunk())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator failed: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	return chunks
}

func TestBytesInvalidArguments(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
	}{
		{"OverlapEqualsChunkSize", 10, 10},
		{"OverlapLargerThanChunkSize", 10, 20},
		{"ZeroChunkSize", 0, 0},
		{"NegativeOverlap", 10, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBytesFromString("some text", tt.chunkSize, tt.overlap)
			var argErr *InvalidArgumentsError
			if !errors.As(err, &argErr) {
				t.Fatalf("expected InvalidArgumentsError, got %v", err)
			}
			if argErr.ChunkSize != tt.chunkSize || argErr.Overlap != tt.overlap {
				t.Errorf("error carries wrong values: %+v", argErr)
			}
		})
	}
}

func TestBytesEmptyInput(t *testing.T) {
	it, err := NewBytesFromString("", 10, 3)
	if err != nil {
		t.Fatal(err)
	}
	if chunks := collect(t, it); len(chunks) != 0 {
		t.Errorf("expected zero chunks for empty input, got %d", len(chunks))
	}
}

func TestBytesASCII(t *testing.T) {
	it, err := NewBytesFromString("01234567890123456789", 10, 3)
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, it)
	want := []string{"0123456789", "7890123456", "456789"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunk mismatch (-want +got):\n%s", diff)
	}
}

func TestBytesInputShorterThanChunk(t *testing.T) {
	it, err := NewBytesFromString("short", 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, it)
	if len(got) != 1 || got[0] != "short" {
		t.Errorf("expected single chunk \"short\", got %q", got)
	}
}

func TestBytesNeverSplitsCharacters(t *testing.T) {
	// Mix of 1, 2, 3 and 4 byte characters so almost every byte offset
	// falls inside some character.
	text := strings.Repeat("aé漢🜁", 50)

	for chunkSize := 5; chunkSize <= 13; chunkSize++ {
		it, err := NewBytesFromString(text, chunkSize, 2)
		if err != nil {
			t.Fatal(err)
		}
		for _, chunk := range collect(t, it) {
			if !utf8.ValidString(chunk) {
				t.Fatalf("chunkSize %d produced invalid UTF-8 chunk %q", chunkSize, chunk)
			}
			if len(chunk) > chunkSize {
				t.Fatalf("chunkSize %d produced oversized chunk of %d bytes", chunkSize, len(chunk))
			}
		}
	}
}

// chunkSpans assigns each chunk a span in text such that every chunk
// starts strictly after the previous one (progress) and no later than the
// previous end (no gaps), and the last chunk ends at the end of text.
func chunkSpans(t *testing.T, text string, chunks []string) [][2]int {
	t.Helper()
	spans := make([][2]int, 0, len(chunks))
	prevStart, prevEnd := -1, 0
	for i, chunk := range chunks {
		found := -1
		for s := prevStart + 1; s <= prevEnd && s+len(chunk) <= len(text); s++ {
			if text[s:s+len(chunk)] == chunk {
				found = s
				break
			}
		}
		if found < 0 {
			t.Fatalf("chunk %d does not continuously extend the covered text", i)
		}
		spans = append(spans, [2]int{found, found + len(chunk)})
		prevStart, prevEnd = found, found+len(chunk)
	}
	if len(chunks) > 0 && prevEnd != len(text) {
		t.Fatalf("coverage ends at byte %d, want %d", prevEnd, len(text))
	}
	return spans
}

func TestBytesCoverageAndOverlap(t *testing.T) {
	texts := []string{
		"01234567890123456789",
		strings.Repeat("aé漢🜁", 30),
		strings.Repeat("lorem ipsum dolor sit amet ", 100),
	}
	overlap := 7

	for _, text := range texts {
		it, err := NewBytesFromString(text, 24, overlap)
		if err != nil {
			t.Fatal(err)
		}
		chunks := collect(t, it)
		spans := chunkSpans(t, text, chunks)

		for i := 1; i < len(spans); i++ {
			if shared := spans[i-1][1] - spans[i][0]; shared < overlap {
				t.Errorf("chunks %d and %d share %d bytes, want at least %d", i-1, i, shared, overlap)
			}
		}
	}
}

func TestBytesFileMatchesString(t *testing.T) {
	texts := map[string]string{
		"ascii.txt":     strings.Repeat("0123456789", 420),
		"multibyte.txt": strings.Repeat("aé漢🜁 and some ascii padding ", 300),
		"small.txt":     "tiny",
		"empty.txt":     "",
	}

	fsys := fstest.MapFS{}
	for name, content := range texts {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}

	blockSizes := []int{1, 3, 7, 64, 1024, DefaultBlockSize}

	for name, content := range texts {
		strIt, err := NewBytesFromString(content, 50, 11)
		if err != nil {
			t.Fatal(err)
		}
		want := collect(t, strIt)

		for _, blockSize := range blockSizes {
			fileIt, err := NewBytesFromFS(fsys, name, 50, 11, WithBlockSize(blockSize))
			if err != nil {
				t.Fatal(err)
			}
			got := collect(t, fileIt)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("%s with block size %d diverges from in-memory chunking (-want +got):\n%s", name, blockSize, diff)
			}
		}
	}
}

func TestBytesFileCompaction(t *testing.T) {
	// Enough text to force several compaction rounds with a small chunk
	// size, including multi-byte characters straddling block boundaries.
	content := strings.Repeat("é🜁abcdefghij", 4000)

	fsys := fstest.MapFS{"big.txt": &fstest.MapFile{Data: []byte(content)}}

	const chunkSize, overlap, blockSize = 32, 9, 113

	strIt, err := NewBytesFromString(content, chunkSize, overlap)
	if err != nil {
		t.Fatal(err)
	}
	want := collect(t, strIt)

	fileIt, err := NewBytesFromFS(fsys, "big.txt", chunkSize, overlap, WithBlockSize(blockSize))
	if err != nil {
		t.Fatal(err)
	}
	impl, ok := fileIt.(*bytesReaderIterator)
	if !ok {
		t.Fatalf("unexpected iterator type %T", fileIt)
	}

	var got []string
	peak := 0
	for fileIt.Next() {
		got = append(got, fileIt.Chunk())
		if len(impl.buf) > peak {
			peak = len(impl.buf)
		}
	}
	if err := fileIt.Err(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("compacting file chunker diverges (-want +got):\n%s", diff)
	}

	// Working memory must stay within a small multiple of the chunk size
	// even though the input is orders of magnitude larger: the cursor can
	// drift one step past the lookahead window before compaction trims it
	// back to the retention window, and a top-up can overshoot by a block.
	limit := chunkSize*(2*lookaheadFactor+retentionFactor) + 2*blockSize
	if peak > limit {
		t.Errorf("working buffer peaked at %d bytes over a %d byte input, want at most %d", peak, len(content), limit)
	}
	if peak == 0 {
		t.Error("expected the working buffer to be observed non-empty")
	}
}

func TestBytesFileMissing(t *testing.T) {
	_, err := NewBytesFromFile("/does/not/exist.txt", 10, 2)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestBytesCloseAbandonsSequence(t *testing.T) {
	fsys := fstest.MapFS{"f.txt": &fstest.MapFile{Data: []byte(strings.Repeat("x", 10000))}}

	it, err := NewBytesFromFS(fsys, "f.txt", 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !it.Next() {
		t.Fatal("expected at least one chunk")
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if it.Next() {
		t.Error("Next should return false after Close")
	}
}

func BenchmarkBytesString(b *testing.B) {
	text := strings.Repeat("lorem ipsum dolor sit amet, consectetur adipiscing elit ", 2000)
	b.SetBytes(int64(len(text)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		it, err := NewBytesFromString(text, 512, 64)
		if err != nil {
			b.Fatal(err)
		}
		for it.Next() {
			_ = it.Chunk()
		}
		if err := it.Err(); err != nil {
			b.Fatal(err)
		}
	}
}
