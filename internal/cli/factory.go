package cli

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aretw0/comfyflow/internal/config"
	"github.com/aretw0/comfyflow/pkg/adapters/file"
	"github.com/aretw0/comfyflow/pkg/adapters/memory"
	"github.com/aretw0/comfyflow/pkg/adapters/postgres"
	"github.com/aretw0/comfyflow/pkg/adapters/redis"
	"github.com/aretw0/comfyflow/pkg/host"
	"github.com/aretw0/comfyflow/pkg/persistence/middleware"
	"github.com/aretw0/comfyflow/pkg/ports"
)

// openStore builds the prompt store selected by cfg, wrapped with the
// configured redaction and encryption. The returned func releases its
// connections. A nil store means records are not kept.
func openStore(ctx context.Context, cfg config.StoreConfig) (ports.PromptStore, func(), error) {
	store, closeFn, err := openBackend(ctx, cfg)
	if err != nil || store == nil {
		return store, closeFn, err
	}

	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Redact))
	}
	if cfg.EncryptionKey != "" {
		keys, err := cfg.Keys()
		if err != nil {
			closeFn()
			return nil, func() {}, err
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: keys[0], FallbackKeys: keys[1:]})
		if err != nil {
			closeFn()
			return nil, func() {}, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), closeFn, nil
}

func openBackend(ctx context.Context, cfg config.StoreConfig) (ports.PromptStore, func(), error) {
	noop := func() {}
	switch cfg.Kind {
	case config.StoreNone:
		return nil, noop, nil

	case config.StoreMemory:
		return memory.NewStore(), noop, nil

	case config.StoreFile:
		return file.New(cfg.Dir), noop, nil

	case config.StoreRedis:
		opts, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, noop, fmt.Errorf("invalid redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("failed to reach redis: %w", err)
		}
		var ropts []redis.Option
		if cfg.Prefix != "" {
			ropts = append(ropts, redis.WithPrefix(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			ropts = append(ropts, redis.WithTTL(cfg.TTL))
		}
		store := redis.NewFromClient(client, ropts...)
		return store, func() { _ = store.Close() }, nil

	case config.StorePostgres:
		var popts []postgres.Option
		if cfg.Table != "" {
			popts = append(popts, postgres.WithTable(cfg.Table))
		}
		store, err := postgres.Connect(ctx, cfg.URL, popts...)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown store kind %q", cfg.Kind)
}

// createHost initializes a host with standard CLI conventions.
func createHost(cfg *config.Config, logger *slog.Logger, store ports.PromptStore, extra ...host.Option) (*host.Host, error) {
	opts := []host.Option{host.WithLogger(logger)}
	if cfg.Debug {
		opts = append(opts, host.WithLifecycleHooks(createDebugHooks(logger)))
	}
	if store != nil {
		opts = append(opts, host.WithStore(store))
	}
	opts = append(opts, extra...)

	h, err := host.New(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing host: %w", err)
	}
	return h, nil
}
