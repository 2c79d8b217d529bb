package fsadapter

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Mem is an in-memory FS used by tests for the transaction store,
// configuration registry, and smart-charging persistence, so those
// suites don't depend on a real disk.
type Mem struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMem creates an empty in-memory filesystem.
func NewMem() *Mem {
	return &Mem{files: make(map[string][]byte)}
}

func (m *Mem) Stat(path string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return 0, false
	}
	return int64(len(data)), true
}

func (m *Mem) Open(path string, mode OpenMode) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch mode {
	case ModeRead:
		data, ok := m.files[path]
		if !ok {
			return nil, fmt.Errorf("memfs: %s: no such file", path)
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		return &memFile{fs: m, path: path, buf: *bytes.NewBuffer(nil), readBuf: cp}, nil
	case ModeWrite:
		return &memFile{fs: m, path: path}, nil
	case ModeAppend:
		existing := append([]byte(nil), m.files[path]...)
		mf := &memFile{fs: m, path: path}
		mf.buf.Write(existing)
		return mf, nil
	}
	return nil, fmt.Errorf("memfs: unknown mode %d", mode)
}

func (m *Mem) Remove(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return false
	}
	delete(m.files, path)
	return true
}

func (m *Mem) Ftw(prefix string, visit VisitFunc) error {
	m.mu.Lock()
	var matches []string
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			matches = append(matches, p)
		}
	}
	m.mu.Unlock()
	sort.Strings(matches)
	for _, p := range matches {
		size, _ := m.Stat(p)
		if err := visit(p, size); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mem) commit(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[path] = cp
}

// memFile implements File for both read and write handles.
type memFile struct {
	fs      *Mem
	path    string
	buf     bytes.Buffer
	readBuf []byte
	roff    int
	closed  bool
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.roff >= len(f.readBuf) {
		return 0, io.EOF
	}
	n := copy(p, f.readBuf[f.roff:])
	f.roff += n
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	f.roff = int(offset)
	return offset, nil
}

func (f *memFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.buf.Len() > 0 || len(f.readBuf) == 0 {
		f.fs.commit(f.path, f.buf.Bytes())
	}
	return nil
}
