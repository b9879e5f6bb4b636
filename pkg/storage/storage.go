package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage provides an abstraction over key-value style file storage.
//
// List returns the direct children of prefix only; nested "directories" are
// not descended into.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Clean normalises a storage path so that paths produced by different
// backends compare equal.
func Clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
