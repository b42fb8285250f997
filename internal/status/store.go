package status

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vidproc/internal/config"
	"vidproc/internal/services"
)

// Store persists one status record per video.
type Store interface {
	// Exists reports whether a record is present regardless of its status.
	Exists(ctx context.Context, id string) (bool, error)
	// Get returns the record or nil when absent.
	Get(ctx context.Context, id string) (*Record, error)
	// Claim atomically creates a processing record when none exists, or
	// re-claims a failed one that has fewer than maxAttempts attempts. It
	// returns false, and writes nothing, when the video is already known.
	Claim(ctx context.Context, rec Record, maxAttempts int) (bool, error)
	// Upsert creates the record if absent, else merges the set fields.
	Upsert(ctx context.Context, id string, patch Patch) error
	// List returns records filtered by status (all when none given), oldest first.
	List(ctx context.Context, statuses ...Status) ([]*Record, error)
	// Delete removes a record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	// Touch refreshes updated_at on a processing record and reports whether
	// one was found. Records in any other status are left alone.
	Touch(ctx context.Context, id string) (bool, error)
	// ReclaimStale marks processing records not updated since cutoff as failed.
	ReclaimStale(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by status.backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Status.Backend {
	case "sqlite":
		return OpenSQLite(ctx, cfg.Status.SQLitePath)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Status.RedisAddr,
			Password: cfg.Status.RedisPassword,
			DB:       cfg.Status.RedisDB,
		})
		store := NewRedis(client, cfg.Status.KeyPrefix)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, services.Wrap(services.ErrTransient, "status", "connect redis", cfg.Status.RedisAddr, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unsupported status backend %q", services.ErrConfiguration, cfg.Status.Backend)
	}
}

func validateClaim(rec Record, maxAttempts int) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if maxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be positive", ErrInvalidRecord)
	}
	return nil
}
