package fsadapter

import (
	"os"
	"path/filepath"
	"strings"
)

// OS is a reference FS implementation backed by the local filesystem.
// Every path passed to its methods is joined under PathPrefix, so callers
// never construct host paths directly.
type OS struct {
	PathPrefix string
}

// NewOS creates an OS adapter rooted at prefix, creating the directory
// if it does not already exist.
func NewOS(prefix string) (*OS, error) {
	if err := os.MkdirAll(prefix, 0o755); err != nil {
		return nil, err
	}
	return &OS{PathPrefix: prefix}, nil
}

func (o *OS) full(path string) string {
	return filepath.Join(o.PathPrefix, path)
}

func (o *OS) Stat(path string) (int64, bool) {
	info, err := os.Stat(o.full(path))
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

func (o *OS) Open(path string, mode OpenMode) (File, error) {
	full := o.full(path)
	var flags int
	switch mode {
	case ModeRead:
		flags = os.O_RDONLY
	case ModeWrite:
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case ModeAppend:
		flags = os.O_RDWR | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (o *OS) Remove(path string) bool {
	return os.Remove(o.full(path)) == nil
}

func (o *OS) Ftw(prefix string, visit VisitFunc) error {
	root := o.full(prefix)
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(o.PathPrefix, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(filepath.Base(rel), filepath.Base(prefix)) && !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		return visit(rel, info.Size())
	})
}
