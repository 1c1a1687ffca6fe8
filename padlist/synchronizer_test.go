package padlist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/hackpad-cli"
	"github.com/wolfeidau/hackpad-cli/store/padstore"
)

type fakeSource struct {
	pads  []hackpad.Listing
	err   error
	calls int
}

func (f *fakeSource) List(context.Context) ([]hackpad.Listing, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]hackpad.Listing(nil), f.pads...), nil
}

var syncTime = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

func summaries(ids ...string) []hackpad.Summary {
	out := make([]hackpad.Summary, 0, len(ids))
	for _, id := range ids {
		out = append(out, hackpad.Summary{ID: id, Title: "Title " + id})
	}
	return out
}

// listings builds remote listing entries carrying a txt body.
func listings(ids ...string) []hackpad.Listing {
	out := make([]hackpad.Listing, 0, len(ids))
	for _, s := range summaries(ids...) {
		body := s.Title + "\nbody of " + s.ID + "\n"
		out = append(out, hackpad.Listing{ID: s.ID, Title: s.Title, Text: &hackpad.Content{
			Format: hackpad.FormatText,
			Title:  s.Title,
			Body:   body,
			Chars:  hackpad.CountChars(body),
			Lines:  hackpad.CountLines(body),
		}})
	}
	return out
}

func records(ids ...string) []*hackpad.Record {
	out := make([]*hackpad.Record, 0, len(ids))
	for _, s := range summaries(ids...) {
		out = append(out, &hackpad.Record{ID: s.ID, Title: s.Title})
	}
	return out
}

func newTestSync(store Store, source Source) *Synchronizer {
	return New(store, source, WithNow(func() time.Time { return syncTime }))
}

func ids(pads []hackpad.Summary) []string {
	out := make([]string, 0, len(pads))
	for _, p := range pads {
		out = append(out, p.ID)
	}
	return out
}

func newTestStore(t *testing.T) *padstore.BoltStore {
	t.Helper()
	s := padstore.NewBoltStore("https://example.hackpad.com", padstore.WithNoSync(true))
	require.NoError(t, s.Open(filepath.Join(t.TempDir(), "cache.db")))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCheckList_FirstRunReportsEverything(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := &fakeSource{pads: listings("c", "a", "b")}

	fresh, err := newTestSync(store, source).CheckList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(fresh))

	known, err := store.KnownIdentifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, known)
}

func TestCheckList_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := &fakeSource{pads: listings("a", "b")}
	sync := newTestSync(store, source)

	_, err := sync.CheckList(ctx)
	require.NoError(t, err)

	fresh, err := sync.CheckList(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.NotNil(t, fresh)
	assert.Equal(t, 2, source.calls)
}

func TestCheckList_Delta(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.ApplyListing(ctx, records("a", "b")))

	source := &fakeSource{pads: listings("a", "b", "c", "d")}
	fresh, err := newTestSync(store, source).CheckList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, ids(fresh))
	assert.Equal(t, "Title c", fresh[0].Title)

	known, err := store.KnownIdentifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, known)

	rec, err := store.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "Title d", rec.Title)
}

func TestCheckList_RemovedPadsAreNotReported(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.ApplyListing(ctx, records("a", "b", "c")))

	source := &fakeSource{pads: listings("b", "e")}
	fresh, err := newTestSync(store, source).CheckList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, ids(fresh))

	known, err := store.KnownIdentifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "e"}, known)
}

func TestCheckList_RenamedPadIsNotNew(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.ApplyListing(ctx, records("a")))

	source := &fakeSource{pads: []hackpad.Listing{{ID: "a", Title: "Renamed"}}}
	fresh, err := newTestSync(store, source).CheckList(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	rec, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", rec.Title)
}

func TestGetList_CacheHitMakesNoRemoteCall(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := &fakeSource{pads: listings("b", "a")}
	sync := newTestSync(store, source)

	refreshed, err := sync.GetList(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(refreshed))
	assert.Equal(t, 1, source.calls)

	cached, err := sync.GetList(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, refreshed, cached)
	assert.Equal(t, 1, source.calls)
}

func TestGetList_NeverSyncedFetches(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := &fakeSource{pads: listings("x")}

	pads, err := newTestSync(store, source).GetList(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids(pads))
	assert.Equal(t, 1, source.calls)

	_, synced, err := store.LastRefresh(ctx)
	require.NoError(t, err)
	assert.True(t, synced)
}

func TestGetList_EmptyListingIsCached(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := &fakeSource{}
	sync := newTestSync(store, source)

	_, err := sync.GetList(ctx, true)
	require.NoError(t, err)

	pads, err := sync.GetList(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, pads)
	assert.Equal(t, 1, source.calls)
}

func TestGetList_FailureLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.ApplyListing(ctx, records("a", "b")))
	before, ok, err := store.LastRefresh(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	source := &fakeSource{err: errors.New("503 service unavailable")}
	_, err = newTestSync(store, source).GetList(ctx, true)

	var fe *hackpad.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "pad list", fe.Op)

	known, err := store.KnownIdentifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, known)

	after, _, err := store.LastRefresh(ctx)
	require.NoError(t, err)
	assert.True(t, before.Equal(after))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCheckList_FailureLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.ApplyListing(ctx, records("a")))

	source := &fakeSource{err: &hackpad.FetchError{Op: "pads", Err: errors.New("timeout")}}
	_, err := newTestSync(store, source).CheckList(ctx)

	var fe *hackpad.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "pads", fe.Op)

	known, err := store.KnownIdentifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, known)
}

func TestCheckList_CanceledBeforeWrite(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	source := &cancelingSource{cancel: cancel, pads: listings("a")}

	_, err := newTestSync(store, source).CheckList(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, synced, err := store.LastRefresh(context.Background())
	require.NoError(t, err)
	assert.False(t, synced)
}

// cancelingSource cancels the caller's context after the listing arrives.
type cancelingSource struct {
	cancel context.CancelFunc
	pads   []hackpad.Listing
}

func (c *cancelingSource) List(context.Context) ([]hackpad.Listing, error) {
	c.cancel()
	return c.pads, nil
}

func TestDelta(t *testing.T) {
	tests := []struct {
		name    string
		known   []string
		fetched []string
		want    []string
	}{
		{name: "empty known", known: nil, fetched: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "nothing new", known: []string{"a", "b"}, fetched: []string{"b", "a"}, want: []string{}},
		{name: "keeps fetched order", known: []string{"b"}, fetched: []string{"d", "b", "c"}, want: []string{"d", "c"}},
		{name: "empty fetched", known: []string{"a"}, fetched: nil, want: []string{}},
		{name: "repeated new id reported once", known: []string{"a"}, fetched: []string{"b", "a", "b", "c"}, want: []string{"b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Delta(tt.known, summaries(tt.fetched...))
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCheckList_RepeatedIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.ApplyListing(ctx, records("a")))

	pads := listings("a", "b", "b", "c")
	pads[2].Title = "Second b"
	source := &fakeSource{pads: pads}

	fresh, err := newTestSync(store, source).CheckList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(fresh))
	assert.Equal(t, "Title b", fresh[0].Title)

	known, err := store.KnownIdentifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, known)

	rec, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "Title b", rec.Title)
}

func TestGetList_RepeatedIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := &fakeSource{pads: listings("x", "y", "x")}
	sync := newTestSync(store, source)

	refreshed, err := sync.GetList(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids(refreshed))

	cached, err := sync.GetList(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, refreshed, cached)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGetList_StoresListingText(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := &fakeSource{pads: listings("a")}
	source.pads = append(source.pads, hackpad.Listing{ID: "bare", Title: "Bare"})

	_, err := newTestSync(store, source).GetList(ctx, true)
	require.NoError(t, err)

	rec, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Title a", rec.Title)
	assert.Equal(t, "Title a\nbody of a\n", rec.Content[hackpad.FormatText])
	assert.False(t, rec.HasOptions)
	assert.True(t, rec.CachedAt.Equal(syncTime))

	bare, err := store.Get(ctx, "bare")
	require.NoError(t, err)
	assert.Equal(t, "Bare", bare.Title)
	assert.Empty(t, bare.Content)
}
