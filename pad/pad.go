// Package pad loads individual pads, serving each format from the local
// cache when present and from the pad API otherwise.
package pad

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wolfeidau/hackpad-cli"
	"github.com/wolfeidau/hackpad-cli/store/padstore"
	"github.com/wolfeidau/hackpad-cli/telemetry"
)

// Store is the subset of the pad cache used by Pad.
type Store interface {
	Get(ctx context.Context, id string) (*hackpad.Record, error)
	Put(ctx context.Context, rec *hackpad.Record) error
}

// Source fetches pad content and access options from the remote API.
type Source interface {
	Fetch(ctx context.Context, id string, format hackpad.Format) (*hackpad.Content, error)
	Options(ctx context.Context, id string) (*hackpad.Options, error)
}

// Pad is a single pad, lazily populated one format at a time.
type Pad struct {
	id     string
	store  Store
	source Source
	logger *slog.Logger
	now    func() time.Time

	record    *hackpad.Record
	format    hackpad.Format
	fromCache bool
}

// Option configures a Pad.
type Option func(*Pad)

// WithLogger sets the logger for the pad.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pad) {
		p.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(p *Pad) {
		p.now = now
	}
}

// New creates an unloaded pad.
func New(id string, store Store, source Source, opts ...Option) *Pad {
	p := &Pad{
		id:     id,
		store:  store,
		source: source,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load populates the pad in the given format. Cached content is used when
// present; otherwise the content is fetched and written back to the cache.
// A failed fetch returns a *hackpad.FetchError and leaves the cache untouched.
func (p *Pad) Load(ctx context.Context, format hackpad.Format) error {
	cached, err := p.store.Get(ctx, p.id)
	switch {
	case err == nil:
		if cached.HasFormat(format) {
			telemetry.RecordCacheLookup(ctx, string(format), telemetry.CacheHit)
			p.logger.Debug("pad served from cache", "id", p.id, "format", format)
			p.populate(cached, format, true)
			return nil
		}
	case errors.Is(err, padstore.ErrNotFound):
		cached = nil
	default:
		return err
	}

	telemetry.RecordCacheLookup(ctx, string(format), telemetry.CacheMiss)
	return p.fetch(ctx, format, cached)
}

// Reload fetches the given format from the API even if it is cached.
func (p *Pad) Reload(ctx context.Context, format hackpad.Format) error {
	cached, err := p.store.Get(ctx, p.id)
	if err != nil && !errors.Is(err, padstore.ErrNotFound) {
		return err
	}
	if err != nil {
		cached = nil
	}

	telemetry.RecordCacheLookup(ctx, string(format), telemetry.CacheBypass)
	return p.fetch(ctx, format, cached)
}

func (p *Pad) fetch(ctx context.Context, format hackpad.Format, cached *hackpad.Record) error {
	content, err := p.source.Fetch(ctx, p.id, format)
	if err != nil {
		var fe *hackpad.FetchError
		if errors.As(err, &fe) {
			return err
		}
		return &hackpad.FetchError{Op: "pad", ID: p.id, Err: err}
	}

	fresh := hackpad.NewRecordFromContent(p.id, content, p.now())
	if err := p.store.Put(ctx, fresh); err != nil {
		return err
	}

	merged := fresh
	if cached != nil {
		cached.Merge(fresh)
		merged = cached
	}

	p.logger.Debug("pad fetched", "id", p.id, "format", format, "chars", content.Chars)
	p.populate(merged, format, false)
	return nil
}

// EnsureOptions makes the guest policy and moderation state available on a
// loaded pad. Pads cached from a listing carry content without options; for
// those the options are fetched once and written back to the cache.
func (p *Pad) EnsureOptions(ctx context.Context) error {
	if !p.Loaded() {
		return errors.New("pad: not loaded")
	}
	if p.record.HasOptions {
		return nil
	}

	opts, err := p.source.Options(ctx, p.id)
	if err != nil {
		var fe *hackpad.FetchError
		if errors.As(err, &fe) {
			return err
		}
		return &hackpad.FetchError{Op: "pad options", ID: p.id, Err: err}
	}

	update := &hackpad.Record{
		ID:          p.id,
		GuestPolicy: opts.GuestPolicy,
		Moderated:   opts.Moderated,
		HasOptions:  true,
	}
	if err := p.store.Put(ctx, update); err != nil {
		return err
	}
	p.record.Merge(update)

	p.logger.Debug("pad options fetched", "id", p.id)
	return nil
}

func (p *Pad) populate(rec *hackpad.Record, format hackpad.Format, fromCache bool) {
	p.record = rec
	p.format = format
	p.fromCache = fromCache
}

// ID returns the pad identifier.
func (p *Pad) ID() string { return p.id }

// Loaded reports whether a Load or Reload has succeeded.
func (p *Pad) Loaded() bool { return p.record != nil }

// Format returns the format of the last successful load.
func (p *Pad) Format() hackpad.Format { return p.format }

// FromCache reports whether the last load was served from the cache.
func (p *Pad) FromCache() bool { return p.fromCache }

// Title returns the pad title.
func (p *Pad) Title() string {
	if p.record == nil {
		return ""
	}
	return p.record.Title
}

// Content returns the body in the last loaded format.
func (p *Pad) Content() string {
	if p.record == nil {
		return ""
	}
	return p.record.Content[p.format]
}

// Chars returns the character count of the body in the last loaded format.
func (p *Pad) Chars() int {
	return p.record.Chars(p.format)
}

// Lines returns the line count of the body in the last loaded format.
func (p *Pad) Lines() int {
	return p.record.Lines(p.format)
}

// GuestPolicy returns the guest access policy of the pad.
func (p *Pad) GuestPolicy() string {
	if p.record == nil {
		return ""
	}
	return p.record.GuestPolicy
}

// Moderated reports whether the pad is moderated.
func (p *Pad) Moderated() bool {
	if p.record == nil {
		return false
	}
	return p.record.Moderated
}

// CachedAt returns when the pad was last fetched, or the zero time if unknown.
func (p *Pad) CachedAt() time.Time {
	if p.record == nil {
		return time.Time{}
	}
	return p.record.CachedAt
}
