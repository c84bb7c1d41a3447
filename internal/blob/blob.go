// Package blob defines the binary storage capability: upload a file under a
// key, then resolve a durable download reference for it.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when resolving a key that was never uploaded.
var ErrNotFound = errors.New("object not found")

// State tracks an upload through its lifecycle. The zero value is Pending.
type State int

const (
	StatePending State = iota
	StateActive
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "pending"
}

// Storage is the blob storage capability.
type Storage interface {
	// Upload stores the object under key. The write is complete when Upload
	// returns nil; callers may only resolve a reference after that.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// ResolveURL returns a durable download reference for an uploaded key.
	ResolveURL(ctx context.Context, key string) (string, error)
}
