package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"genstudio/internal/config"
)

// Stores bundles the two namespaces and whatever must be closed with them.
type Stores struct {
	Tokens   *TokenStore
	Snapshot *SnapshotStore
	closer   func() error
}

func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Open builds the state stores for the configured backend.
func Open(ctx context.Context, cfg *config.Client) (*Stores, error) {
	switch cfg.StateBackend {
	case "memory":
		return &Stores{
			Tokens:   NewTokenStore(NewMemoryKV()),
			Snapshot: NewSnapshotStore(NewMemoryKV()),
		}, nil

	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opt)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ping Redis: %w", err)
		}
		return &Stores{
			Tokens:   NewTokenStore(NewRedisKV(client, NamespaceTokens)),
			Snapshot: NewSnapshotStore(NewRedisKV(client, NamespaceState)),
			closer:   client.Close,
		}, nil

	case "sqlite", "":
		db, err := OpenSQLite(cfg.StatePath())
		if err != nil {
			return nil, err
		}
		tokensKV, _ := NewSQLiteKV(db, NamespaceTokens)
		stateKV, _ := NewSQLiteKV(db, NamespaceState)
		return &Stores{
			Tokens:   NewTokenStore(tokensKV),
			Snapshot: NewSnapshotStore(stateKV),
			closer:   db.Close,
		}, nil
	}

	return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
}
