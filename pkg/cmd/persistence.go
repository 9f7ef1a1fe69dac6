// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/persistence/memory"
	"github.com/dripline/dripline/pkg/persistence/redis"
)

// NewPersistence creates the persistence backend for a database URL.
// "memory://" keeps everything in process; "redis://..." is the durable
// multi-process backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	provider, _, _ := strings.Cut(databaseURL, "://")

	switch provider {
	case "", "memory":
		logger.InfoContext(ctx, "Using in-memory persistence")

		return memory.NewPersistence()
	case "redis", "rediss":
		p, err := redis.NewPersistence(databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to redis: %w", err))
		}

		logger.InfoContext(ctx, "Using redis persistence")

		return p
	default:
		panic("Unsupported persistence provider: " + provider)
	}
}
