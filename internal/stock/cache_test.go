package stock

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type cachedReport struct {
	Rows  []ClosingStockRow `json:"rows"`
	Total int               `json:"total"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheFetchJSONMissThenHit(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	key, err := c.BuildKey(ctx, keyClosingStock(5, "", 1, 50)...)
	require.NoError(t, err)

	loads := 0
	loader := func(context.Context) (interface{}, error) {
		loads++
		return cachedReport{Rows: []ClosingStockRow{{FranchiseID: 5, MedicineID: 7, Quantity: 13}}, Total: 1}, nil
	}

	var first cachedReport
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, 1, loads)
	require.Equal(t, 1, first.Total)

	var second cachedReport
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, 1, loads)
	require.Equal(t, first, second)
}

func TestCacheBumpInvalidatesKey(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	before, err := c.BuildKey(ctx, keyClosingStock(5, "", 1, 50)...)
	require.NoError(t, err)

	loads := 0
	loader := func(context.Context) (interface{}, error) {
		loads++
		return cachedReport{Total: loads}, nil
	}
	var out cachedReport
	require.NoError(t, c.FetchJSON(ctx, before, &out, loader))
	require.Equal(t, 1, out.Total)

	require.NoError(t, c.Bump(ctx))

	after, err := c.BuildKey(ctx, keyClosingStock(5, "", 1, 50)...)
	require.NoError(t, err)
	require.NotEqual(t, before, after)

	// the bumped key misses, so the loader runs again
	require.NoError(t, c.FetchJSON(ctx, after, &out, loader))
	require.Equal(t, 2, out.Total)
}

func TestCacheNilClientPassthrough(t *testing.T) {
	ctx := context.Background()
	c := NewCache(nil, time.Minute)

	key, err := c.BuildKey(ctx, keyClosingStock(5, "amox", 2, 25)...)
	require.NoError(t, err)
	require.Equal(t, "stock:closing:5:amox:2:25", key)

	loads := 0
	loader := func(context.Context) (interface{}, error) {
		loads++
		return cachedReport{Total: loads}, nil
	}
	var out cachedReport
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 2, loads)
	require.Equal(t, 2, out.Total)

	require.NoError(t, c.Bump(ctx))
	ver, err := c.Version(ctx)
	require.NoError(t, err)
	require.Zero(t, ver)
}
