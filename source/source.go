// Package source resolves the places chunkable text can come from — an
// in-memory string, a single file, a glob over a filesystem tree, or an
// HTTP URL — into concrete inputs the chunkers can open.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Input is one concrete chunkable input produced by resolving a Source.
type Input interface {
	// Path identifies the input: a file path, a URL, or "<text>" for
	// inline content.
	Path() string
	// Open returns the input's content as a stream. The caller owns the
	// returned reader and must close it.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// TextInput is implemented by inputs whose content is already in memory,
// letting consumers skip the streaming path.
type TextInput interface {
	Input
	Text() string
}

// Source is a place chunkable text lives. It is chosen once at
// construction via one of the constructors below.
type Source interface {
	// Resolve expands the source into concrete inputs. A Text, File or
	// HTTP source resolves to exactly one input; a Glob source resolves
	// to every matching text file under its root.
	Resolve(ctx context.Context) ([]Input, error)
}

// Text builds a source over an exact in-memory string.
func Text(content string) Source {
	return textSource{content: content}
}

// File builds a source over a single file on the OS filesystem.
func File(filePath string) Source {
	return fileSource{path: filePath}
}

// Glob builds a source over every text file under root in fsys whose
// base name matches pattern (path.Match syntax). Files whose content
// does not sniff as text are skipped.
func Glob(fsys fs.FS, root string, pattern string) Source {
	return globSource{fsys: fsys, root: root, pattern: pattern}
}

// HTTP builds a source over the body of a GET request to url. The body
// is streamed, so arbitrarily large responses chunk in bounded memory.
func HTTP(url string) Source {
	return httpSource{url: url}
}

type textSource struct {
	content string
}

func (s textSource) Resolve(ctx context.Context) ([]Input, error) {
	return []Input{textInput{content: s.content}}, nil
}

type textInput struct {
	content string
}

func (i textInput) Path() string {
	return "<text>"
}

func (i textInput) Text() string {
	return i.content
}

func (i textInput) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(i.content)), nil
}

type fileSource struct {
	path string
}

func (s fileSource) Resolve(ctx context.Context) ([]Input, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, errors.Join(errors.New("failed to stat source file"), err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path %s is a directory, not a file", s.path)
	}
	return []Input{osFileInput{path: s.path}}, nil
}

type osFileInput struct {
	path string
}

func (i osFileInput) Path() string {
	return i.path
}

func (i osFileInput) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(i.path)
	if err != nil {
		return nil, errors.Join(errors.New("failed to open source file"), err)
	}
	return f, nil
}

type globSource struct {
	fsys    fs.FS
	root    string
	pattern string
}

func (s globSource) Resolve(ctx context.Context) ([]Input, error) {
	var inputs []Input

	w := newWalker(s.fsys, s.root)
	for w.Next() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if w.Err() != nil {
			return nil, errors.Join(errors.New("error while walking source tree"), w.Err())
		}
		if w.Entry().IsDir() {
			continue
		}

		matched, err := path.Match(s.pattern, path.Base(w.Path()))
		if err != nil {
			return nil, errors.Join(errors.New("invalid glob pattern"), err)
		}
		if !matched || !isTextFile(s.fsys, w.Path()) {
			continue
		}

		inputs = append(inputs, fsFileInput{fsys: s.fsys, path: w.Path()})
	}
	if w.Err() != nil {
		return nil, errors.Join(errors.New("error while walking source tree"), w.Err())
	}

	return inputs, nil
}

// isTextFile sniffs the file's content type and reports whether it is
// text of any flavour.
func isTextFile(fsys fs.FS, filePath string) bool {
	f, err := fsys.Open(filePath)
	if err != nil {
		return false
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return false
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

type fsFileInput struct {
	fsys fs.FS
	path string
}

func (i fsFileInput) Path() string {
	return i.path
}

func (i fsFileInput) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := i.fsys.Open(i.path)
	if err != nil {
		return nil, errors.Join(errors.New("failed to open source file"), err)
	}
	return f, nil
}

type httpSource struct {
	url string
}

func (s httpSource) Resolve(ctx context.Context) ([]Input, error) {
	return []Input{httpInput{url: s.url}}, nil
}

type httpInput struct {
	url string
}

func (i httpInput) Path() string {
	return i.url
}

func (i httpInput) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.url, nil)
	if err != nil {
		return nil, errors.Join(errors.New("failed to build source request"), err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Join(errors.New("failed to fetch source URL"), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("source URL returned status %s", resp.Status)
	}
	return resp.Body, nil
}
