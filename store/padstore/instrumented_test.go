package padstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/hackpad-cli"
)

func TestInstrumentedStore_Delegates(t *testing.T) {
	ctx := context.Background()
	is := NewInstrumentedStore(newTestBoltStore(t))

	require.NoError(t, is.Put(ctx, &hackpad.Record{ID: "a", Title: "A"}))

	rec, err := is.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "A", rec.Title)

	_, err = is.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, is.ApplyListing(ctx, []*hackpad.Record{{ID: "a", Title: "A2"}}))
	ids, err := is.KnownIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, ids)

	n, err := is.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, is.Clear(ctx))
	_, ok, err := is.LastRefresh(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	_, isBolt := is.Unwrap().(*BoltStore)
	require.True(t, isBolt)
}

func TestOutcomeFromError(t *testing.T) {
	require.Equal(t, "success", outcomeFromError(nil))
	require.Equal(t, "not_found", outcomeFromError(ErrNotFound))
	require.Equal(t, "error", outcomeFromError(&hackpad.StorageError{Op: "get", Err: ErrCorrupted}))
}
