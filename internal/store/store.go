// Package store defines the structured document store capability the feed
// core consumes: collections of documents with live query subscriptions.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBadPath is returned for collection paths the store cannot address.
	ErrBadPath = errors.New("invalid collection path")
)

// Fields is the writable field set of a document.
type Fields map[string]any

// serverTime is the sentinel type for server-assigned timestamps.
type serverTime struct{}

// ServerTimestamp marks a field whose value is assigned by the store at
// write time. Until the store resolves it, readers observe a nil timestamp.
var ServerTimestamp = serverTime{}

// Document is a snapshot of a single stored document. Timestamp-typed
// fields are surfaced as *time.Time, nil while still pending.
type Document struct {
	ID     string
	Fields Fields
}

// Time returns the named field as a resolved timestamp, or nil while the
// server-assigned value is still pending.
func (d Document) Time(field string) *time.Time {
	if t, ok := d.Fields[field].(time.Time); ok {
		return &t
	}
	if t, ok := d.Fields[field].(*time.Time); ok {
		return t
	}
	return nil
}

// Str returns the named field as a string, defaulting to "".
func (d Document) Str(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Unsubscribe releases a live-query registration. It is synchronous: once it
// returns, the subscription's callback will not run again.
type Unsubscribe func()

// SnapshotFunc receives the full current ordered document list on every
// change to the subscribed collection.
type SnapshotFunc func(docs []Document)

// Store is the document store capability. Collection paths are either a
// top-level collection ("posts") or a child collection scoped to a parent
// document ("posts/<id>/comments").
type Store interface {
	// AddDocument writes a new document and returns its store-assigned id.
	// Fields valued ServerTimestamp are resolved to a server-side write time.
	AddDocument(ctx context.Context, path string, fields Fields) (string, error)

	// SubscribeCollection establishes a live subscription ordered by the
	// given field descending. The callback fires with the current snapshot
	// immediately and again on every subsequent change.
	SubscribeCollection(ctx context.Context, path, orderBy string, cb SnapshotFunc) (Unsubscribe, error)
}
