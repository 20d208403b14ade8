// Package storage defines the storage contract used by the data loaders and savers.
// Object names are slash-separated paths relative to the connection's base directory;
// backends that support it also accept absolute paths.
package storage

import (
	"context"
	"io"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload writes data to objectName, creating intermediate directories.
	Upload(ctx context.Context, objectName string, data io.Reader) error
	// Download opens objectName. The caller closes the returned reader.
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix.
	ListObjects(ctx context.Context, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, objectName string) error
	// Exists reports whether objectName is present.
	Exists(ctx context.Context, objectName string) (bool, error)
}

// StorageConnection is a named, closable storage backend.
type StorageConnection interface {
	StorageExecutor
	Close() error
	Type() string
	Name() string
}

// StorageProvider manages the lifecycle of named storage connections.
type StorageProvider interface {
	// GetConnection returns the connection with the given name, creating it on first use.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes every connection managed by the provider.
	CloseAll() error
	// Type returns the backend type handled by the provider, e.g. "local".
	Type() string
}
