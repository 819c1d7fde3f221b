package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/config"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/docstore"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/mirror"
)

// closeFunc releases the connections behind a store.
type closeFunc func(ctx context.Context) error

func noClose(context.Context) error { return nil }

// openStore connects the configured backend and, when enabled, wraps it with
// the GitHub mirror.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (docstore.Store, closeFunc, error) {
	store, closer, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Mirror.Enabled {
		return store, closer, nil
	}

	gh := cfg.Mirror.GitHub
	sink, err := mirror.NewGitHubSink(mirror.GitHubConfig{
		Owner:   gh.Owner,
		Repo:    gh.Repo,
		Branch:  gh.Branch,
		Dir:     gh.Path,
		Token:   gh.Token,
		BaseURL: gh.BaseURL,
	})
	if err != nil {
		_ = closer(ctx)
		return nil, nil, fmt.Errorf("create mirror: %w", err)
	}
	mode := mirror.ModeRequired
	if !cfg.Mirror.Required {
		mode = mirror.ModeBestEffort
	}
	logger.Info("mirroring documents to github",
		"owner", gh.Owner, "repo", gh.Repo, "path", gh.Path, "mode", mode)
	return mirror.NewReplicated(store, sink, mirror.WithMode(mode), mirror.WithLogger(logger)), closer, nil
}

func openBackend(ctx context.Context, cfg config.Store) (docstore.Store, closeFunc, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return docstore.NewMemoryStore(), noClose, nil

	case config.DriverFile:
		s, err := docstore.NewFileStore(cfg.File.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, noClose, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		var opts []docstore.PostgresOption
		if cfg.Postgres.Table != "" {
			opts = append(opts, docstore.WithTableName(cfg.Postgres.Table))
		}
		s, err := docstore.NewPostgresStore(ctx, pool, opts...)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, func(context.Context) error { pool.Close(); return nil }, nil

	case config.DriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		var opts []docstore.MongoOption
		if cfg.Mongo.Collection != "" {
			opts = append(opts, docstore.WithCollectionName(cfg.Mongo.Collection))
		}
		s, err := docstore.NewMongoStore(client.Database(cfg.Mongo.Database), opts...)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return s, client.Disconnect, nil

	case config.DriverRedis:
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		var opts []docstore.RedisOption
		if cfg.Redis.Prefix != "" {
			opts = append(opts, docstore.WithKeyPrefix(cfg.Redis.Prefix))
		}
		return docstore.NewRedisStore(client, opts...), func(context.Context) error { return client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
