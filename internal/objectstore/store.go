// Package objectstore is the object storage boundary: one Store per bucket,
// backed by Google Cloud Storage or by a gocloud blob driver, plus the
// location parsing and date-filtered listing built on top of it.
package objectstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrObjectNotFound is returned by Get for a key that does not exist.
	ErrObjectNotFound = errors.New("objectstore: object not found")

	// ErrInvalidLocation reports a location that is neither gs://, a
	// console URL, nor a bare bucket/prefix.
	ErrInvalidLocation = errors.New("objectstore: unsupported location")

	// ErrInvalidRange reports a date range whose start is after its end.
	ErrInvalidRange = errors.New("start date must be <= end date")
)

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key     string
	Size    int64
	Updated time.Time
}

// Store provides object operations on a single bucket.
// This interface enables swapping backends and faking storage in tests.
type Store interface {
	// Bucket returns the bucket name.
	Bucket() string

	// URI renders a key as a full URI, e.g. gs://bucket/key.
	URI(key string) string

	// Get reads a whole object. Missing keys yield ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes data under key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// PutFile uploads a local file under key.
	PutFile(ctx context.Context, key, localPath, contentType string) error

	// List returns the objects under prefix. When recursive is false only
	// the direct children of prefix are returned.
	List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// Content types used by the pipeline.
const (
	ContentTypePDF     = "application/pdf"
	ContentTypeJSON    = "application/json"
	ContentTypeParquet = "application/octet-stream"
	ContentTypeText    = "text/plain"
)
