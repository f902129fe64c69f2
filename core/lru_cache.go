package core

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"petshop/metrics"
)

const lruBackend = "lru"

// LRUCache is an in-process PetCache with a bounded size and per-entry TTL.
type LRUCache struct {
	lru *expirable.LRU[string, Pet]
}

// NewLRUCache creates an LRU cache holding at most size pets for ttl each.
func NewLRUCache(size int, ttl time.Duration) (*LRUCache, error) {
	if size <= 0 {
		return nil, errors.New("lru cache size must be greater than 0")
	}
	return &LRUCache{lru: expirable.NewLRU[string, Pet](size, nil, ttl)}, nil
}

func (c *LRUCache) Get(_ context.Context, id string) (*Pet, bool, error) {
	pet, ok := c.lru.Get(id)
	if !ok {
		metrics.CacheMisses.WithLabelValues(lruBackend).Inc()
		return nil, false, nil
	}
	metrics.CacheHits.WithLabelValues(lruBackend).Inc()
	return &pet, true, nil
}

// Set stores a copy of pet so later mutations by the caller do not leak into the cache.
func (c *LRUCache) Set(_ context.Context, pet *Pet) error {
	if pet == nil || pet.ID == "" {
		return errors.New("cannot cache a pet without an id")
	}
	c.lru.Add(pet.ID, *pet)
	return nil
}

func (c *LRUCache) Delete(_ context.Context, id string) error {
	c.lru.Remove(id)
	return nil
}

func (c *LRUCache) Flush(_ context.Context) error {
	c.lru.Purge()
	return nil
}

// Len returns the number of cached pets, including ones that have expired but not yet been evicted.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}

func (c *LRUCache) Close() error {
	c.lru.Purge()
	return nil
}
