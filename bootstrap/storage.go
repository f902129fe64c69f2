package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"petshop/config"
	"petshop/core"
	"petshop/storage"
)

// RetryPolicyFromConfig converts the retry settings into a storage.RetryPolicy.
func RetryPolicyFromConfig(cfg *config.Config) storage.RetryPolicy {
	return storage.RetryPolicy{
		Attempts:   cfg.Retry.Count,
		Delay:      cfg.RetryDelay(),
		Multiplier: cfg.Retry.Backoff,
	}
}

// withConnectRetry runs connect until it succeeds or the retry policy is used up.
func withConnectRetry(ctx context.Context, cfg *config.Config, target string, sugar *zap.SugaredLogger, connect func() error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := connect()
		if err != nil && core.IsDataValidationError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		sugar.Warnw("Connection attempt failed",
			"target", target,
			"attempt", attempt,
			"max_attempts", cfg.Retry.Count,
			"retry_in", wait,
			"error", err)
	}

	policy := RetryPolicyFromConfig(cfg)
	return backoff.RetryNotify(operation, backoff.WithContext(policy.BackOff(), ctx), notify)
}

// OpenCouchDB resolves the Cloudant credentials and builds a CouchDB client.
func OpenCouchDB(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.CouchDB, error) {
	provider := config.NewCredentialProvider(cfg.Cloudant)
	creds, err := provider.Credentials()
	if err != nil {
		return nil, err
	}
	sugar.Infow("Cloudant credentials resolved", "source", provider.Source())
	return storage.NewCouchDB(cfg.Cloudant, creds, sugar)
}

// InitCouchDB connects to CouchDB/Cloudant, retrying until the pets database is available.
func InitCouchDB(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*storage.CouchStore, error) {
	couch, err := OpenCouchDB(cfg, sugar)
	if err != nil {
		return nil, err
	}

	var store *storage.CouchStore
	err = withConnectRetry(ctx, cfg, "cloudant", sugar, func() error {
		var ensureErr error
		store, ensureErr = couch.EnsureDatabase(ctx)
		return ensureErr
	})
	if err != nil {
		_ = couch.Close()
		endpoint := cfg.Cloudant.URL
		if creds, credErr := config.NewCredentialProvider(cfg.Cloudant).Credentials(); credErr == nil {
			if stripped, endErr := creds.Endpoint(); endErr == nil {
				endpoint = stripped
			}
		}
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: Cloudant Connection Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", ClassifyConnectionError(err, endpoint))
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to connect to Cloudant after %d attempts: %w", cfg.Retry.Count, err)
	}

	sugar.Infow("Connected to Cloudant", "database", cfg.Cloudant.Database)
	return store, nil
}

// InitMongoDB connects to MongoDB with the same retry policy as Cloudant.
func InitMongoDB(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*storage.MongoStore, error) {
	var mongoDB *storage.MongoDB
	err := withConnectRetry(ctx, cfg, "mongodb", sugar, func() error {
		var connErr error
		mongoDB, connErr = storage.NewMongoDB(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database, cfg.MongoDB.MaxPoolSize, cfg.MongoDB.Timeout, sugar)
		return connErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB after %d attempts: %w", cfg.Retry.Count, err)
	}

	store, err := storage.NewMongoStore(ctx, mongoDB, sugar)
	if err != nil {
		_ = mongoDB.Client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// InitCache builds the configured pet cache, or nil when caching is off.
func InitCache(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (core.PetCache, error) {
	switch cfg.Cache.Backend {
	case config.CacheLRU:
		cache, err := core.NewLRUCache(cfg.Cache.Size, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		sugar.Infow("Using in-process pet cache", "size", cfg.Cache.Size, "ttl", cfg.Cache.TTL)
		return cache, nil
	case config.CacheRedis:
		cache, err := core.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis cache: %w", err)
		}
		if err := cache.Ping(ctx); err != nil {
			// The service still works without its cache
			sugar.Warnw("Redis cache is not reachable yet", "error", err)
		}
		sugar.Infow("Using Redis pet cache", "ttl", cfg.Cache.TTL)
		return cache, nil
	default:
		return nil, nil
	}
}

// InitStore builds the configured backend and wraps it with retries, the circuit breaker
// and the cache.
func InitStore(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (storage.PetStore, error) {
	var base storage.PetStore
	switch cfg.Storage.Backend {
	case config.BackendCouchDB:
		couch, err := InitCouchDB(ctx, cfg, sugar)
		if err != nil {
			return nil, err
		}
		base = couch
	case config.BackendMongoDB:
		mongo, err := InitMongoDB(ctx, cfg, sugar)
		if err != nil {
			return nil, err
		}
		base = mongo
	case config.BackendMemory:
		sugar.Warn("Using in-memory pet store, data is lost on restart")
		base = storage.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	breaker, err := core.NewCircuitBreaker(core.BreakerConfig{
		MaxFailures: cfg.CircuitBreaker.MaxFailures,
		OpenTimeout: cfg.CircuitBreaker.OpenTimeout,
		MaxProbes:   cfg.CircuitBreaker.MaxProbes,
	})
	if err != nil {
		_ = base.Close(ctx)
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	var store storage.PetStore = storage.NewRetryingStore(base, RetryPolicyFromConfig(cfg), breaker, sugar)

	cache, err := InitCache(ctx, cfg, sugar)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	if cache != nil {
		store = storage.NewCachedStore(store, cache, sugar)
	}
	return store, nil
}
