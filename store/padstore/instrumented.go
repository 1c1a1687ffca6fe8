package padstore

import (
	"context"
	"errors"
	"time"

	"github.com/wolfeidau/hackpad-cli"
	"github.com/wolfeidau/hackpad-cli/telemetry"
)

// InstrumentedStore wraps a Store with metrics recording.
type InstrumentedStore struct {
	store Store
}

// NewInstrumentedStore creates a new instrumented store wrapper.
func NewInstrumentedStore(s Store) *InstrumentedStore {
	return &InstrumentedStore{store: s}
}

func (is *InstrumentedStore) Open(path string) error {
	start := time.Now()
	err := is.store.Open(path)
	telemetry.RecordStoreOp(context.Background(), "open", outcomeFromError(err), time.Since(start))
	return err
}

func (is *InstrumentedStore) Close() error {
	return is.store.Close()
}

func (is *InstrumentedStore) Get(ctx context.Context, id string) (*hackpad.Record, error) {
	start := time.Now()
	rec, err := is.store.Get(ctx, id)
	telemetry.RecordStoreOp(ctx, "get", outcomeFromError(err), time.Since(start))
	return rec, err
}

func (is *InstrumentedStore) Put(ctx context.Context, rec *hackpad.Record) error {
	start := time.Now()
	err := is.store.Put(ctx, rec)
	telemetry.RecordStoreOp(ctx, "put", outcomeFromError(err), time.Since(start))
	return err
}

func (is *InstrumentedStore) Count(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := is.store.Count(ctx)
	telemetry.RecordStoreOp(ctx, "count", outcomeFromError(err), time.Since(start))
	return n, err
}

func (is *InstrumentedStore) KnownIdentifiers(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := is.store.KnownIdentifiers(ctx)
	telemetry.RecordStoreOp(ctx, "known_identifiers", outcomeFromError(err), time.Since(start))
	return ids, err
}

func (is *InstrumentedStore) SetKnownIdentifiers(ctx context.Context, ids []string) error {
	start := time.Now()
	err := is.store.SetKnownIdentifiers(ctx, ids)
	telemetry.RecordStoreOp(ctx, "set_known_identifiers", outcomeFromError(err), time.Since(start))
	return err
}

func (is *InstrumentedStore) ApplyListing(ctx context.Context, pads []*hackpad.Record) error {
	start := time.Now()
	err := is.store.ApplyListing(ctx, pads)
	telemetry.RecordStoreOp(ctx, "apply_listing", outcomeFromError(err), time.Since(start))
	return err
}

func (is *InstrumentedStore) LastRefresh(ctx context.Context) (time.Time, bool, error) {
	start := time.Now()
	ts, ok, err := is.store.LastRefresh(ctx)
	telemetry.RecordStoreOp(ctx, "last_refresh", outcomeFromError(err), time.Since(start))
	return ts, ok, err
}

func (is *InstrumentedStore) Clear(ctx context.Context) error {
	start := time.Now()
	err := is.store.Clear(ctx)
	telemetry.RecordStoreOp(ctx, "clear", outcomeFromError(err), time.Since(start))
	return err
}

// Unwrap returns the underlying store.
func (is *InstrumentedStore) Unwrap() Store {
	return is.store
}

func outcomeFromError(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrNotFound) {
		return "not_found"
	}
	return "error"
}

var _ Store = (*InstrumentedStore)(nil)
