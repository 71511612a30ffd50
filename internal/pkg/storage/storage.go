// Package storage abstracts the object store that hosts emergency recovery
// documents. Three drivers are provided (MinIO, S3, GCS); the recovery
// channel only needs put/get/stat/delete on small encrypted blobs.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound indicates the requested object does not exist. All
// drivers normalize their backend-specific not-found errors to this.
var ErrObjectNotFound = errors.New("storage: object not found")

// Storage defines the object operations the recovery channel uses.
type Storage interface {
	io.Closer

	// PutObject stores data under bucket/key and returns object metadata.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) (ObjectInfo, error)
	// GetObject retrieves data and metadata for bucket/key.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	// StatObject returns object metadata without reading the contents.
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
	// DeleteObject removes bucket/key. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, key string) error
}

// PutOptions configures an upload.
type PutOptions struct {
	// Size is the expected content length; zero means unknown.
	Size int64
	// ContentType is the MIME type of the object.
	ContentType string
	// Metadata is custom key/value metadata stored with the object.
	Metadata map[string]string
}

// ObjectInfo describes stored-object metadata.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
}
