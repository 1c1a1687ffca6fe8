// Package padstore provides the local pad cache using bbolt.
package padstore

import (
	"context"
	"errors"
	"time"

	"github.com/wolfeidau/hackpad-cli"
)

// ErrNotFound is returned when a pad is not in the cache.
var ErrNotFound = errors.New("padstore: not found")

// Store is the durable pad cache for one workspace.
type Store interface {
	// Lifecycle
	Open(path string) error
	Close() error

	// Records
	Get(ctx context.Context, id string) (*hackpad.Record, error)
	Put(ctx context.Context, rec *hackpad.Record) error
	Count(ctx context.Context) (int, error)

	// Listing state
	KnownIdentifiers(ctx context.Context) ([]string, error)
	SetKnownIdentifiers(ctx context.Context, ids []string) error
	// ApplyListing upserts the records, replaces the known identifiers with
	// their IDs and advances the last refresh time in a single transaction.
	ApplyListing(ctx context.Context, pads []*hackpad.Record) error
	LastRefresh(ctx context.Context) (time.Time, bool, error)

	// Clear removes everything cached for the workspace.
	Clear(ctx context.Context) error
}

// New creates a new Store backed by bbolt for the given namespace.
func New(namespace string, opts ...BoltStoreOption) Store {
	return NewBoltStore(namespace, opts...)
}
