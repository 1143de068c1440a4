package kiru

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/jimzer/kiru/chunker"
	"github.com/jimzer/kiru/source"
)

func TestByBytesInvalidArguments(t *testing.T) {
	_, err := ByBytes(10, 10)
	var argErr *chunker.InvalidArgumentsError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected InvalidArgumentsError, got %v", err)
	}

	_, err = ByCharacters(5, 9)
	if !errors.As(err, &argErr) {
		t.Fatalf("expected InvalidArgumentsError, got %v", err)
	}
}

func TestByCharactersFromText(t *testing.T) {
	b, err := ByCharacters(10, 3)
	if err != nil {
		t.Fatal(err)
	}
	it, err := b.FromText("01234567890123456789")
	if err != nil {
		t.Fatal(err)
	}
	got, err := Collect(it)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"0123456789", "7890123456", "456789"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunk mismatch (-want +got):\n%s", diff)
	}
}

func TestByBytesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.txt")
	content := strings.Repeat("some chunkable content ", 100)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	b, err := ByBytes(64, 16)
	if err != nil {
		t.Fatal(err)
	}

	fileIt, err := b.FromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	fromFile, err := Collect(fileIt)
	if err != nil {
		t.Fatal(err)
	}

	textIt, err := b.FromText(content)
	if err != nil {
		t.Fatal(err)
	}
	fromText, err := Collect(textIt)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(fromText, fromFile); diff != "" {
		t.Errorf("file and text chunking diverge (-text +file):\n%s", diff)
	}
}

func TestFromSourceText(t *testing.T) {
	b, err := ByBytes(10, 3)
	if err != nil {
		t.Fatal(err)
	}
	streams, err := b.FromSource(context.Background(), source.Text("01234567890123456789"))
	if err != nil {
		t.Fatal(err)
	}
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}
	got, err := Collect(streams[0].Chunks)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(got))
	}
}

func TestFromSourceGlob(t *testing.T) {
	fsys := fstest.MapFS{
		"a.txt": &fstest.MapFile{Data: []byte(strings.Repeat("aaaa ", 50))},
		"b.txt": &fstest.MapFile{Data: []byte(strings.Repeat("bbbb ", 50))},
	}

	c, err := ByCharacters(20, 5)
	if err != nil {
		t.Fatal(err)
	}
	streams, err := c.FromSource(context.Background(), source.Glob(fsys, ".", "*.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(streams))
	}

	for _, s := range streams {
		chunks, err := Collect(s.Chunks)
		if err != nil {
			t.Fatalf("%s: %v", s.Path, err)
		}
		if len(chunks) == 0 {
			t.Errorf("%s produced no chunks", s.Path)
		}
	}
}
