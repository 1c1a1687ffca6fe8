package padstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wolfeidau/hackpad-cli"
)

// padEntry is the JSON value stored in the pads bucket. Content bodies live
// in the content bucket, indexed by Formats.
type padEntry struct {
	ID          string                          `json:"id"`
	Title       string                          `json:"title"`
	GuestPolicy string                          `json:"guest_policy,omitempty"`
	Moderated   bool                            `json:"moderated"`
	HasOptions  bool                            `json:"has_options,omitempty"`
	CachedAt    time.Time                       `json:"cached_at,omitzero"`
	Formats     map[hackpad.Format]formatEntry `json:"formats,omitempty"`
}

type formatEntry struct {
	Digest    hackpad.Digest `json:"digest"`
	Size      int            `json:"size"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// BoltStore implements Store using bbolt.
type BoltStore struct {
	db        *bbolt.DB
	codec     *Codec
	namespace string
	logger    *slog.Logger
	now       func() time.Time
	noSync    bool // disables fsync per transaction (for testing only)
}

// BoltStoreOption configures a BoltStore instance.
type BoltStoreOption func(*BoltStore)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) BoltStoreOption {
	return func(b *BoltStore) {
		b.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) BoltStoreOption {
	return func(b *BoltStore) {
		b.now = now
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: risks data loss on crash. Use only for testing.
func WithNoSync(noSync bool) BoltStoreOption {
	return func(b *BoltStore) {
		b.noSync = noSync
	}
}

// NewBoltStore creates a store whose keys are scoped to namespace,
// normally the workspace site URL.
func NewBoltStore(namespace string, opts ...BoltStoreOption) *BoltStore {
	b := &BoltStore{
		namespace: namespace,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open opens the database at the given path, creating it if needed.
func (b *BoltStore) Open(path string) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  b.noSync,
	})
	if err != nil {
		return &hackpad.StorageError{Op: "open", Err: fmt.Errorf("opening database: %w", err)}
	}
	b.db = db

	if err := b.createBuckets(); err != nil {
		_ = db.Close()
		return &hackpad.StorageError{Op: "open", Err: err}
	}

	codec, err := NewCodec()
	if err != nil {
		_ = db.Close()
		return &hackpad.StorageError{Op: "open", Err: fmt.Errorf("creating codec: %w", err)}
	}
	b.codec = codec

	b.logger.Debug("opened pad cache", "path", path, "namespace", b.namespace, "noSync", b.noSync)
	return nil
}

func (b *BoltStore) createBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketPads, bucketContent, bucketPadList, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the database and releases resources.
func (b *BoltStore) Close() error {
	if b.codec != nil {
		b.codec.Close()
		b.codec = nil
	}
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing pad cache")
	err := b.db.Close()
	b.db = nil
	return err
}

// Get returns the cached record for id with every cached format.
// Returns ErrNotFound if the pad has never been cached.
func (b *BoltStore) Get(_ context.Context, id string) (*hackpad.Record, error) {
	var rec *hackpad.Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		entry, err := b.readEntry(tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrNotFound
		}

		rec = entry.record()
		contentBucket := tx.Bucket(bucketContent)
		for format := range entry.Formats {
			val := contentBucket.Get(makeContentKey(b.namespace, id, string(format)))
			if val == nil {
				return fmt.Errorf("pad %s: missing %s content: %w", id, format, ErrCorrupted)
			}
			_, body, err := decodeFrame(b.codec, val)
			if err != nil {
				return fmt.Errorf("pad %s: decoding %s content: %w", id, format, err)
			}
			rec.Content[format] = body
		}
		return nil
	})
	if err != nil {
		return nil, storageError("get", err)
	}
	return rec, nil
}

// Put upserts rec. Formats in rec.Content replace the cached bodies for those
// formats; formats not supplied are left untouched.
func (b *BoltStore) Put(_ context.Context, rec *hackpad.Record) error {
	if rec == nil || rec.ID == "" {
		return &hackpad.StorageError{Op: "put", Err: errors.New("record has no id")}
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return b.putInTx(tx, rec)
	})
	return storageError("put", err)
}

func (b *BoltStore) putInTx(tx *bbolt.Tx, rec *hackpad.Record) error {
	entry, err := b.readEntry(tx, rec.ID)
	if err != nil {
		return err
	}

	merged := &hackpad.Record{ID: rec.ID}
	formats := make(map[hackpad.Format]formatEntry)
	if entry != nil {
		merged = entry.record()
		for f, fe := range entry.Formats {
			formats[f] = fe
		}
	}
	merged.Merge(rec)

	contentBucket := tx.Bucket(bucketContent)
	for format, body := range rec.Content {
		fetchedAt := rec.CachedAt
		if fetchedAt.IsZero() {
			fetchedAt = b.now()
		}
		header, frame, err := encodeFrame(b.codec, format, body, fetchedAt)
		if err != nil {
			return fmt.Errorf("encoding %s content: %w", format, err)
		}
		if err := contentBucket.Put(makeContentKey(b.namespace, rec.ID, string(format)), frame); err != nil {
			return fmt.Errorf("putting content: %w", err)
		}
		formats[format] = formatEntry{Digest: header.Digest, Size: header.Size, FetchedAt: header.FetchedAt}
		b.logger.Debug("cached pad content", "id", rec.ID, "format", format, "size", header.Size, "digest", header.Digest.ShortString())
	}

	next := newPadEntry(merged)
	next.Formats = formats
	return b.writeEntry(tx, next)
}

// Count returns the number of cached pads in the namespace.
func (b *BoltStore) Count(_ context.Context) (int, error) {
	var n int
	prefix := namespacePrefix(b.namespace)
	err := b.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(bucketPads).Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
			n++
		}
		return nil
	})
	return n, storageError("count", err)
}

// KnownIdentifiers returns the ids of the last listing sync, in listing order.
func (b *BoltStore) KnownIdentifiers(_ context.Context) ([]string, error) {
	var ids []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketPadList).Get([]byte(b.namespace))
		if val == nil {
			return nil
		}
		if err := json.Unmarshal(val, &ids); err != nil {
			return fmt.Errorf("unmarshaling pad list: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, storageError("known identifiers", err)
	}
	return ids, nil
}

// SetKnownIdentifiers replaces the recorded listing and advances the last refresh time.
func (b *BoltStore) SetKnownIdentifiers(_ context.Context, ids []string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return b.writeListingInTx(tx, ids)
	})
	return storageError("set known identifiers", err)
}

// ApplyListing upserts every record and replaces the listing in one
// transaction. A repeated id is merged into the first occurrence and keeps
// its first position in the listing.
func (b *BoltStore) ApplyListing(ctx context.Context, pads []*hackpad.Record) error {
	if err := ctx.Err(); err != nil {
		return storageError("apply listing", err)
	}
	var ids []string
	err := b.db.Update(func(tx *bbolt.Tx) error {
		ids = make([]string, 0, len(pads))
		seen := make(map[string]struct{}, len(pads))
		for _, rec := range pads {
			if rec == nil || rec.ID == "" {
				return errors.New("listing record has no id")
			}
			if err := b.putInTx(tx, rec); err != nil {
				return fmt.Errorf("pad %s: %w", rec.ID, err)
			}
			if _, ok := seen[rec.ID]; ok {
				continue
			}
			seen[rec.ID] = struct{}{}
			ids = append(ids, rec.ID)
		}
		return b.writeListingInTx(tx, ids)
	})
	if err == nil {
		b.logger.Debug("applied listing", "namespace", b.namespace, "pads", len(ids))
	}
	return storageError("apply listing", err)
}

func (b *BoltStore) writeListingInTx(tx *bbolt.Tx, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshaling pad list: %w", err)
	}
	if err := tx.Bucket(bucketPadList).Put([]byte(b.namespace), data); err != nil {
		return fmt.Errorf("putting pad list: %w", err)
	}
	key := makeStateKey(b.namespace, stateLastRefresh)
	if err := tx.Bucket(bucketState).Put(key, encodeTimestamp(b.now())); err != nil {
		return fmt.Errorf("putting last refresh: %w", err)
	}
	return nil
}

// LastRefresh returns the time of the last listing sync. The boolean is false
// if the namespace has never been refreshed.
func (b *BoltStore) LastRefresh(_ context.Context) (time.Time, bool, error) {
	var (
		ts time.Time
		ok bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketState).Get(makeStateKey(b.namespace, stateLastRefresh))
		if val == nil {
			return nil
		}
		ts, ok = decodeTimestamp(val), true
		return nil
	})
	if err != nil {
		return time.Time{}, false, storageError("last refresh", err)
	}
	return ts, ok, nil
}

// Clear removes all pads, content, the listing and the refresh time of the namespace.
func (b *BoltStore) Clear(_ context.Context) error {
	prefix := namespacePrefix(b.namespace)
	err := b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketPads, bucketContent, bucketState} {
			if err := deletePrefix(tx.Bucket(name), prefix); err != nil {
				return fmt.Errorf("clearing %s: %w", name, err)
			}
		}
		return tx.Bucket(bucketPadList).Delete([]byte(b.namespace))
	})
	if err == nil {
		b.logger.Info("cleared pad cache", "namespace", b.namespace)
	}
	return storageError("clear", err)
}

func deletePrefix(bucket *bbolt.Bucket, prefix []byte) error {
	var keys [][]byte
	cursor := bucket.Cursor()
	for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (b *BoltStore) readEntry(tx *bbolt.Tx, id string) (*padEntry, error) {
	val := tx.Bucket(bucketPads).Get(makePadKey(b.namespace, id))
	if val == nil {
		return nil, nil
	}
	var entry padEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("unmarshaling pad %s: %w", id, err)
	}
	return &entry, nil
}

func (b *BoltStore) writeEntry(tx *bbolt.Tx, entry *padEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling pad %s: %w", entry.ID, err)
	}
	if err := tx.Bucket(bucketPads).Put(makePadKey(b.namespace, entry.ID), data); err != nil {
		return fmt.Errorf("putting pad %s: %w", entry.ID, err)
	}
	return nil
}

func newPadEntry(rec *hackpad.Record) *padEntry {
	return &padEntry{
		ID:          rec.ID,
		Title:       rec.Title,
		GuestPolicy: rec.GuestPolicy,
		Moderated:   rec.Moderated,
		HasOptions:  rec.HasOptions,
		CachedAt:    rec.CachedAt,
	}
}

// record converts the entry to a Record with an empty content map.
func (e *padEntry) record() *hackpad.Record {
	return &hackpad.Record{
		ID:          e.ID,
		Title:       e.Title,
		Content:     make(map[hackpad.Format]string, len(e.Formats)),
		GuestPolicy: e.GuestPolicy,
		Moderated:   e.Moderated,
		HasOptions:  e.HasOptions,
		CachedAt:    e.CachedAt,
	}
}

// storageError wraps err as a StorageError. ErrNotFound passes through unchanged.
func storageError(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *hackpad.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &hackpad.StorageError{Op: op, Err: err}
}

// Compile-time interface check
var _ Store = (*BoltStore)(nil)
