package storage

import (
	"context"
	"io"
)

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Blob describes a durably stored object and the URL it is retrievable at.
type Blob struct {
	Name string
	URL  string
	Size int64
}

// ProgressFunc receives byte-level progress while a blob is written. total is
// -1 when the final size is unknown.
type ProgressFunc func(written, total int64)

type Storage interface {
	Save(ctx context.Context, r io.Reader, info FileInfo, progress ProgressFunc) (Blob, error)
	Open(name string) (io.ReadSeekCloser, error)
	Delete(name string) error
	URL(name string) string
}
