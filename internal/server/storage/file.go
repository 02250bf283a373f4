package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/filex"
)

const fileExt = ".json"

// File stores each document as <dir>/<key>.json and replaces it with
// filex.WriteFileAtomic (temp file, fsync, rename).
type File struct {
	dir string
}

// NewFile creates dir if needed and returns a File store rooted at it.
func NewFile(dir string) (*File, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	return &File{dir: abs}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+fileExt)
}

func (f *File) Load(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("file error: %w", err)
	}
	return data, nil
}

func (f *File) Save(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := filex.WriteFileAtomic(f.path(key), data, 0o600); err != nil {
		return fmt.Errorf("file error: %w", err)
	}
	return nil
}

func (f *File) Close() error { return nil }
