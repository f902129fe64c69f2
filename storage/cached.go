package storage

import (
	"context"

	"go.uber.org/zap"

	"petshop/core"
)

// CachedStore serves Get from a PetCache and keeps the cache coherent on writes.
// Cache failures are logged and never fail the call.
type CachedStore struct {
	next   PetStore
	cache  core.PetCache
	logger *zap.SugaredLogger
}

// NewCachedStore wraps next with a read-through cache
func NewCachedStore(next PetStore, cache core.PetCache, logger *zap.SugaredLogger) *CachedStore {
	if next == nil {
		panic("next store is required")
	}
	if cache == nil {
		panic("cache is required")
	}
	return &CachedStore{next: next, cache: cache, logger: logger}
}

func (c *CachedStore) Create(ctx context.Context, pet *core.Pet) error {
	return c.next.Create(ctx, pet)
}

func (c *CachedStore) Update(ctx context.Context, pet *core.Pet) error {
	err := c.next.Update(ctx, pet)
	c.evict(ctx, pet.ID)
	return err
}

func (c *CachedStore) Delete(ctx context.Context, id, rev string) error {
	err := c.next.Delete(ctx, id, rev)
	c.evict(ctx, id)
	return err
}

func (c *CachedStore) Get(ctx context.Context, id string) (*core.Pet, error) {
	if pet, found, err := c.cache.Get(ctx, id); err != nil {
		c.logger.Warnw("Pet cache read failed", "id", id, "error", err)
	} else if found {
		return pet, nil
	}

	pet, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, pet); err != nil {
		c.logger.Warnw("Pet cache write failed", "id", id, "error", err)
	}
	return pet, nil
}

func (c *CachedStore) All(ctx context.Context) ([]core.Pet, error) {
	return c.next.All(ctx)
}

func (c *CachedStore) FindBy(ctx context.Context, selector Selector) ([]core.Pet, error) {
	return c.next.FindBy(ctx, selector)
}

func (c *CachedStore) RemoveAll(ctx context.Context) error {
	err := c.next.RemoveAll(ctx)
	if ferr := c.cache.Flush(ctx); ferr != nil {
		c.logger.Warnw("Pet cache flush failed", "error", ferr)
	}
	return err
}

func (c *CachedStore) Ping(ctx context.Context) error {
	return c.next.Ping(ctx)
}

func (c *CachedStore) Close(ctx context.Context) error {
	if err := c.cache.Close(); err != nil {
		c.logger.Warnw("Failed to close pet cache", "error", err)
	}
	return c.next.Close(ctx)
}

// evict drops id from the cache even when the write failed.
func (c *CachedStore) evict(ctx context.Context, id string) {
	if err := c.cache.Delete(ctx, id); err != nil {
		c.logger.Warnw("Pet cache eviction failed", "id", id, "error", err)
	}
}
