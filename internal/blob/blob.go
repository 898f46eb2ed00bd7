// Package blob abstracts the snapshot archive backends. The inventory
// document is small, so stores deal in whole payloads rather than streams;
// archive keys are overwritten freely (the latest snapshot under a fixed key
// plus timestamped historical keys).
package blob

import (
	"context"
	"errors"
	"time"
)

// Driver identifies a concrete archive backend implementation.
type Driver string

const (
	// DriverFilesystem is the local filesystem backend (default, dev).
	DriverFilesystem Driver = "fs"
	// DriverS3 is an S3 / MinIO compatible backend.
	DriverS3 Driver = "s3"
	// DriverMemory is the in-memory backend used in tests.
	DriverMemory Driver = "memory"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored archive object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the interface archive backends implement. Put replaces any
// existing object under the same key.
type Store interface {
	Put(ctx context.Context, key string, payload []byte, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, []byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ErrNotFound indicates the requested key does not exist.
var ErrNotFound = errors.New("blob: not found")
