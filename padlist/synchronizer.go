// Package padlist keeps the cached pad listing in step with the remote site
// and reports pads that appeared since the last sync.
package padlist

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wolfeidau/hackpad-cli"
	"github.com/wolfeidau/hackpad-cli/store/padstore"
	"github.com/wolfeidau/hackpad-cli/telemetry"
)

const (
	modeCached  = "cached"
	modeRefresh = "refresh"
	modeCheck   = "check"
)

// Store is the subset of the pad cache the synchronizer needs.
type Store interface {
	Get(ctx context.Context, id string) (*hackpad.Record, error)
	KnownIdentifiers(ctx context.Context) ([]string, error)
	LastRefresh(ctx context.Context) (time.Time, bool, error)
	ApplyListing(ctx context.Context, pads []*hackpad.Record) error
}

// Source lists every pad on the remote site.
type Source interface {
	List(ctx context.Context) ([]hackpad.Listing, error)
}

// Synchronizer reconciles the remote listing with the cache.
type Synchronizer struct {
	store  Store
	source Source
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger for the synchronizer.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// New creates a Synchronizer.
func New(store Store, source Source, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:  store,
		source: source,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetList returns the pad listing. Unless forceRefresh is set, a listing
// that has been synced before is served from the cache without contacting
// the remote site.
func (s *Synchronizer) GetList(ctx context.Context, forceRefresh bool) ([]hackpad.Summary, error) {
	if !forceRefresh {
		_, synced, err := s.store.LastRefresh(ctx)
		if err != nil {
			return nil, err
		}
		if synced {
			pads, err := s.cachedList(ctx)
			if err != nil {
				telemetry.RecordSync(ctx, modeCached, "error", 0, -1)
				return nil, err
			}
			s.logger.Debug("pad list served from cache", "pads", len(pads))
			telemetry.RecordSync(ctx, modeCached, "success", len(pads), -1)
			return pads, nil
		}
	}

	fetched, err := s.fetch(ctx)
	if err != nil {
		telemetry.RecordSync(ctx, modeRefresh, "error", 0, -1)
		return nil, err
	}
	if err := s.apply(ctx, fetched); err != nil {
		telemetry.RecordSync(ctx, modeRefresh, "error", len(fetched), -1)
		return nil, err
	}

	s.logger.Debug("pad list refreshed", "pads", len(fetched))
	telemetry.RecordSync(ctx, modeRefresh, "success", len(fetched), -1)
	return summarize(fetched), nil
}

// CheckList fetches the remote listing, records it as the known set and
// returns only the pads whose identifiers were not known before, in remote
// order. On the first sync every pad is new.
func (s *Synchronizer) CheckList(ctx context.Context) ([]hackpad.Summary, error) {
	known, err := s.store.KnownIdentifiers(ctx)
	if err != nil {
		return nil, err
	}

	fetched, err := s.fetch(ctx)
	if err != nil {
		telemetry.RecordSync(ctx, modeCheck, "error", 0, -1)
		return nil, err
	}

	fresh := Delta(known, summarize(fetched))
	if err := s.apply(ctx, fetched); err != nil {
		telemetry.RecordSync(ctx, modeCheck, "error", len(fetched), -1)
		return nil, err
	}

	s.logger.Debug("pad list checked", "pads", len(fetched), "new", len(fresh))
	telemetry.RecordSync(ctx, modeCheck, "success", len(fetched), len(fresh))
	return fresh, nil
}

// Delta returns the entries of fetched whose ID is not in known, keeping
// the order of fetched. Titles play no part in the comparison and an ID is
// reported at most once.
func Delta(known []string, fetched []hackpad.Summary) []hackpad.Summary {
	seen := make(map[string]struct{}, len(known)+len(fetched))
	for _, id := range known {
		seen[id] = struct{}{}
	}

	out := make([]hackpad.Summary, 0)
	for _, p := range fetched {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// fetch lists the remote site. Repeated IDs are dropped, keeping the first.
func (s *Synchronizer) fetch(ctx context.Context) ([]hackpad.Listing, error) {
	listed, err := s.source.List(ctx)
	if err != nil {
		var fe *hackpad.FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &hackpad.FetchError{Op: "pad list", Err: err}
	}

	seen := make(map[string]struct{}, len(listed))
	fetched := make([]hackpad.Listing, 0, len(listed))
	for _, l := range listed {
		if _, ok := seen[l.ID]; ok {
			s.logger.Debug("duplicate pad in listing", "id", l.ID)
			continue
		}
		seen[l.ID] = struct{}{}
		fetched = append(fetched, l)
	}
	return fetched, nil
}

// apply writes the listing to the cache along with any txt bodies it carries.
func (s *Synchronizer) apply(ctx context.Context, listed []hackpad.Listing) error {
	now := s.now()
	records := make([]*hackpad.Record, 0, len(listed))
	for _, l := range listed {
		if l.Text == nil {
			records = append(records, &hackpad.Record{ID: l.ID, Title: l.Title})
			continue
		}
		rec := hackpad.NewRecordFromContent(l.ID, l.Text, now)
		rec.Title = l.Title
		records = append(records, rec)
	}
	return s.store.ApplyListing(ctx, records)
}

func summarize(listed []hackpad.Listing) []hackpad.Summary {
	out := make([]hackpad.Summary, 0, len(listed))
	for _, l := range listed {
		out = append(out, l.Summary())
	}
	return out
}

func (s *Synchronizer) cachedList(ctx context.Context) ([]hackpad.Summary, error) {
	ids, err := s.store.KnownIdentifiers(ctx)
	if err != nil {
		return nil, err
	}

	pads := make([]hackpad.Summary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			pads = append(pads, rec.Summary())
		case errors.Is(err, padstore.ErrNotFound):
			pads = append(pads, hackpad.Summary{ID: id})
		default:
			return nil, err
		}
	}
	return pads, nil
}
