package materials

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestInventoryCacheVersioning(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewInventoryCache(client, time.Minute)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) ([]InventoryEntry, error) {
		loads++
		return []InventoryEntry{{MaterialCode: "CEM", Quantity: float64(loads)}}, nil
	}

	entries, err := cache.FetchInventory(ctx, 1, loader)
	require.NoError(t, err)
	require.Equal(t, 1.0, entries[0].Quantity)

	// Second fetch is served from the cached snapshot.
	entries, err = cache.FetchInventory(ctx, 1, loader)
	require.NoError(t, err)
	require.Equal(t, 1.0, entries[0].Quantity)
	require.Equal(t, 1, loads)

	// Bumping the version forces a reload without touching old keys.
	require.NoError(t, cache.Bump(ctx))
	entries, err = cache.FetchInventory(ctx, 1, loader)
	require.NoError(t, err)
	require.Equal(t, 2.0, entries[0].Quantity)
	require.Equal(t, 2, loads)
}

func TestInventoryCacheNilClientFallsThrough(t *testing.T) {
	var cache *InventoryCache
	entries, err := cache.FetchInventory(context.Background(), 1, func(context.Context) ([]InventoryEntry, error) {
		return []InventoryEntry{{MaterialCode: "CEM", Quantity: 4}}, nil
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, cache.Bump(context.Background()))
}
