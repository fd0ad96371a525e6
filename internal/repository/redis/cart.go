package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/condorshop/storefront/internal/domain"
	"github.com/condorshop/storefront/internal/store"
)

const keyPrefix = "cart:" + store.SchemaVersion + ":"

// CartPersister stores the raw line items of one cart as a JSON array under a
// versioned Redis key. Derived totals are never written.
type CartPersister struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
}

// NewCartPersister creates a Redis-backed persister bound to the given owner
// (the shopper session ID).
func NewCartPersister(client *redis.Client, owner string, ttl time.Duration) *CartPersister {
	return &CartPersister{
		client: client,
		owner:  owner,
		ttl:    ttl,
	}
}

func (p *CartPersister) key() string {
	return keyPrefix + p.owner
}

// Load returns the raw persisted item records. A missing key yields an empty
// slice; shape validation happens in store.MigrateItems, not here.
func (p *CartPersister) Load(ctx context.Context) ([]json.RawMessage, error) {
	data, err := p.client.Get(ctx, p.key()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get cart items: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal cart items: %w", err)
	}
	return raw, nil
}

// Save overwrites the persisted line items with the configured TTL.
func (p *CartPersister) Save(ctx context.Context, items []domain.LineItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart items: %w", err)
	}

	if err := p.client.Set(ctx, p.key(), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart items: %w", err)
	}
	return nil
}

// Delete removes the persisted record.
func (p *CartPersister) Delete(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key()).Err(); err != nil {
		return fmt.Errorf("redis del cart items: %w", err)
	}
	return nil
}
