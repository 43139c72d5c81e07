package materials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const inventoryVersionKey = "materials:inventory:version"

// InventoryCache caches project inventory snapshots in Redis behind a
// global version counter. Writers bump the version instead of deleting
// keys, so stale entries simply expire.
type InventoryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewInventoryCache instantiates the cache helper.
func NewInventoryCache(client *redis.Client, ttl time.Duration) *InventoryCache {
	return &InventoryCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *InventoryCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, inventoryVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, inventoryVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *InventoryCache) buildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchInventory loads the cached project snapshot or populates it using
// the loader.
func (c *InventoryCache) FetchInventory(ctx context.Context, projectID int64, loader func(context.Context) ([]InventoryEntry, error)) ([]InventoryEntry, error) {
	if loader == nil {
		return nil, errors.New("materials: inventory loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.buildKey(ctx, "materials", "inventory", fmt.Sprintf("%d", projectID))
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var entries []InventoryEntry
		if err := json.Unmarshal(payload, &entries); err == nil {
			return entries, nil
		}
	} else if err != redis.Nil {
		return nil, err
	}
	entries, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Bump invalidates every cached snapshot by incrementing the version.
func (c *InventoryCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, inventoryVersionKey).Err()
}
