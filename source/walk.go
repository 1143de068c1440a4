package source

import (
	"errors"
	"io/fs"
	"path"
)

var errWalkUsage = errors.New("walk: method Next must be called first")

// walker traverses a filesystem tree lazily, one entry per Next call,
// so glob resolution never holds the whole tree in memory.
type walker struct {
	fsys    fs.FS
	cur     visit
	stack   []visit
	descend bool
}

type visit struct {
	path string
	info fs.DirEntry
	err  error
}

func newWalker(fsys fs.FS, root string) *walker {
	info, err := fs.Stat(fsys, root)
	return &walker{
		fsys:  fsys,
		cur:   visit{err: errWalkUsage},
		stack: []visit{{root, infoDirEntry{info}, err}},
	}
}

func (w *walker) Next() bool {
	if w.descend && w.cur.err == nil && w.cur.info.IsDir() {
		dir, err := fs.ReadDir(w.fsys, w.cur.path)
		for i := len(dir) - 1; i >= 0; i-- {
			p := path.Join(w.cur.path, dir[i].Name())
			w.stack = append(w.stack, visit{p, dir[i], nil})
		}
		if err != nil {
			// Second visit, to report ReadDir error.
			w.cur.err = err
			w.stack = append(w.stack, w.cur)
		}
	}

	if len(w.stack) == 0 {
		w.descend = false
		return false
	}
	i := len(w.stack) - 1
	w.cur = w.stack[i]
	w.stack = w.stack[:i]
	w.descend = true
	return true
}

func (w *walker) Path() string {
	return w.cur.path
}

func (w *walker) Entry() fs.DirEntry {
	return w.cur.info
}

func (w *walker) Err() error {
	return w.cur.err
}

// infoDirEntry adapts the root's FileInfo to the DirEntry shape the
// traversal works with.
type infoDirEntry struct {
	info fs.FileInfo
}

func (e infoDirEntry) Name() string {
	if e.info == nil {
		return ""
	}
	return e.info.Name()
}

func (e infoDirEntry) IsDir() bool {
	return e.info != nil && e.info.IsDir()
}

func (e infoDirEntry) Type() fs.FileMode {
	if e.info == nil {
		return 0
	}
	return e.info.Mode().Type()
}

func (e infoDirEntry) Info() (fs.FileInfo, error) {
	return e.info, nil
}
