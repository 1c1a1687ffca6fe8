package pad

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

// fakeSource serves canned content and counts fetches per format.
type fakeSource struct {
	bodies  map[hackpad.Format]string
	err     error
	calls   map[hackpad.Format]int
	options int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		bodies: map[hackpad.Format]string{
			hackpad.FormatText: "Roadmap\nQ1 goals\nQ2 goals\n",
			hackpad.FormatHTML: "<h1>Roadmap</h1><p>Q1 goals</p><p>Q2 goals</p>",
		},
		calls: make(map[hackpad.Format]int),
	}
}

func (f *fakeSource) Fetch(_ context.Context, id string, format hackpad.Format) (*hackpad.Content, error) {
	f.calls[format]++
	if f.err != nil {
		return nil, f.err
	}
	body := f.bodies[format]
	return &hackpad.Content{
		Format:      format,
		Title:       "Roadmap",
		Body:        body,
		Chars:       hackpad.CountChars(body),
		Lines:       hackpad.CountLines(body),
		GuestPolicy: "domain",
		Moderated:   true,
		HasOptions:  true,
	}, nil
}

func (f *fakeSource) Options(context.Context, string) (*hackpad.Options, error) {
	f.options++
	if f.err != nil {
		return nil, f.err
	}
	return &hackpad.Options{GuestPolicy: "domain", Moderated: true}, nil
}

func (f *fakeSource) total() int {
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func newTestStore(t *testing.T) *padstore.BoltStore {
	t.Helper()
	s := padstore.NewBoltStore("https://example.hackpad.com", padstore.WithNoSync(true))
	require.NoError(t, s.Open(filepath.Join(t.TempDir(), "cache.db")))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var fetchTime = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

func newTestPad(t *testing.T, store Store, source Source) *Pad {
	t.Helper()
	return New("roadmap", store, source, WithNow(func() time.Time { return fetchTime }))
}

func TestPad_LoadMissFetchesAndCaches(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := newFakeSource()

	p := newTestPad(t, store, source)
	require.NoError(t, p.Load(ctx, hackpad.FormatText))

	assert.False(t, p.FromCache())
	assert.Equal(t, 1, source.calls[hackpad.FormatText])
	assert.Equal(t, "Roadmap", p.Title())
	assert.Equal(t, "Roadmap\nQ1 goals\nQ2 goals\n", p.Content())
	assert.Equal(t, 3, p.Lines())
	assert.Equal(t, 26, p.Chars())
	assert.Equal(t, "domain", p.GuestPolicy())
	assert.True(t, p.Moderated())
	assert.True(t, p.CachedAt().Equal(fetchTime))

	rec, err := store.Get(ctx, "roadmap")
	require.NoError(t, err)
	assert.True(t, rec.HasFormat(hackpad.FormatText))
}

func TestPad_LoadHitSkipsRemote(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := newFakeSource()

	require.NoError(t, newTestPad(t, store, source).Load(ctx, hackpad.FormatText))

	again := newTestPad(t, store, source)
	require.NoError(t, again.Load(ctx, hackpad.FormatText))

	assert.True(t, again.FromCache())
	assert.Equal(t, 1, source.total())
	assert.Equal(t, "Roadmap", again.Title())
	assert.True(t, again.CachedAt().Equal(fetchTime))
}

func TestPad_FormatsAreCachedIndependently(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := newFakeSource()

	require.NoError(t, newTestPad(t, store, source).Load(ctx, hackpad.FormatText))

	html := newTestPad(t, store, source)
	require.NoError(t, html.Load(ctx, hackpad.FormatHTML))
	assert.False(t, html.FromCache())
	assert.Equal(t, "<h1>Roadmap</h1><p>Q1 goals</p><p>Q2 goals</p>", html.Content())

	rec, err := store.Get(ctx, "roadmap")
	require.NoError(t, err)
	assert.Equal(t, []hackpad.Format{hackpad.FormatText, hackpad.FormatHTML}, rec.Formats())

	txt := newTestPad(t, store, source)
	require.NoError(t, txt.Load(ctx, hackpad.FormatText))
	assert.True(t, txt.FromCache())
	assert.Equal(t, 1, source.calls[hackpad.FormatText])
	assert.Equal(t, 1, source.calls[hackpad.FormatHTML])
}

func TestPad_CountsFollowLoadedFormat(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := newFakeSource()

	txt := newTestPad(t, store, source)
	require.NoError(t, txt.Load(ctx, hackpad.FormatText))
	assert.Equal(t, 26, txt.Chars())
	assert.Equal(t, 3, txt.Lines())

	html := newTestPad(t, store, source)
	require.NoError(t, html.Load(ctx, hackpad.FormatHTML))
	assert.Equal(t, 46, html.Chars())
	assert.Equal(t, 1, html.Lines())

	again := newTestPad(t, store, source)
	require.NoError(t, again.Load(ctx, hackpad.FormatText))
	assert.True(t, again.FromCache())
	assert.Equal(t, 26, again.Chars())
	assert.Equal(t, 3, again.Lines())
}

func TestPad_EnsureOptionsForListedPad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := newFakeSource()

	require.NoError(t, store.ApplyListing(ctx, []*hackpad.Record{{
		ID:       "roadmap",
		Title:    "Roadmap",
		Content:  map[hackpad.Format]string{hackpad.FormatText: "Roadmap\nQ1 goals\nQ2 goals\n"},
		CachedAt: fetchTime,
	}}))

	p := newTestPad(t, store, source)
	require.NoError(t, p.Load(ctx, hackpad.FormatText))
	assert.True(t, p.FromCache())
	assert.Empty(t, p.GuestPolicy())

	require.NoError(t, p.EnsureOptions(ctx))
	assert.Equal(t, "domain", p.GuestPolicy())
	assert.True(t, p.Moderated())
	assert.Equal(t, "Roadmap\nQ1 goals\nQ2 goals\n", p.Content())
	assert.Equal(t, 1, source.options)

	again := newTestPad(t, store, source)
	require.NoError(t, again.Load(ctx, hackpad.FormatText))
	require.NoError(t, again.EnsureOptions(ctx))
	assert.Equal(t, "domain", again.GuestPolicy())
	assert.Equal(t, 1, source.options)
	assert.Zero(t, source.total())
}

func TestPad_EnsureOptionsSkipsFetchedPad(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource()

	p := newTestPad(t, newTestStore(t), source)
	require.NoError(t, p.Load(ctx, hackpad.FormatText))
	require.NoError(t, p.EnsureOptions(ctx))
	assert.Zero(t, source.options)
}

func TestPad_EnsureOptionsFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := newFakeSource()

	require.Error(t, newTestPad(t, store, source).EnsureOptions(ctx))

	require.NoError(t, store.ApplyListing(ctx, []*hackpad.Record{{
		ID:      "roadmap",
		Content: map[hackpad.Format]string{hackpad.FormatText: "Roadmap\n"},
	}}))
	p := newTestPad(t, store, source)
	require.NoError(t, p.Load(ctx, hackpad.FormatText))

	source.err = errors.New("connection reset")
	err := p.EnsureOptions(ctx)
	var fe *hackpad.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "pad options", fe.Op)

	rec, err := store.Get(ctx, "roadmap")
	require.NoError(t, err)
	assert.False(t, rec.HasOptions)
}

func TestPad_FetchFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := newFakeSource()

	require.NoError(t, newTestPad(t, store, source).Load(ctx, hackpad.FormatText))
	before, err := store.Get(ctx, "roadmap")
	require.NoError(t, err)

	source.err = errors.New("connection reset")
	p := newTestPad(t, store, source)
	err = p.Load(ctx, hackpad.FormatHTML)

	var fe *hackpad.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "roadmap", fe.ID)
	assert.False(t, p.Loaded())

	after, err := store.Get(ctx, "roadmap")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPad_FetchFailureOnEmptyCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := newFakeSource()
	source.err = &hackpad.FetchError{Op: "pad content", ID: "roadmap", Err: errors.New("404")}

	err := newTestPad(t, store, source).Load(ctx, hackpad.FormatText)
	var fe *hackpad.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "pad content", fe.Op)

	_, err = store.Get(ctx, "roadmap")
	require.ErrorIs(t, err, padstore.ErrNotFound)
}

func TestPad_ReloadBypassesCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	source := newFakeSource()

	require.NoError(t, newTestPad(t, store, source).Load(ctx, hackpad.FormatText))

	source.bodies[hackpad.FormatText] = "Roadmap\nrevised\n"
	p := newTestPad(t, store, source)
	require.NoError(t, p.Reload(ctx, hackpad.FormatText))

	assert.False(t, p.FromCache())
	assert.Equal(t, 2, source.calls[hackpad.FormatText])
	assert.Equal(t, "Roadmap\nrevised\n", p.Content())

	rec, err := store.Get(ctx, "roadmap")
	require.NoError(t, err)
	assert.Equal(t, "Roadmap\nrevised\n", rec.Content[hackpad.FormatText])
}

func TestPad_AccessorsBeforeLoad(t *testing.T) {
	p := New("unloaded", nil, nil)

	assert.False(t, p.Loaded())
	assert.Equal(t, "unloaded", p.ID())
	assert.Empty(t, p.Title())
	assert.Empty(t, p.Content())
	assert.Zero(t, p.Chars())
	assert.Zero(t, p.Lines())
	assert.Empty(t, p.GuestPolicy())
	assert.False(t, p.Moderated())
	assert.True(t, p.CachedAt().IsZero())
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*hackpad.Record, error) {
	return nil, &hackpad.StorageError{Op: "get", Err: padstore.ErrCorrupted}
}

func (brokenStore) Put(context.Context, *hackpad.Record) error {
	return errors.New("unexpected put")
}

func TestPad_StorageErrorIsSurfaced(t *testing.T) {
	source := newFakeSource()

	err := newTestPad(t, brokenStore{}, source).Load(context.Background(), hackpad.FormatText)

	var se *hackpad.StorageError
	require.ErrorAs(t, err, &se)
	assert.Zero(t, source.total())
}
