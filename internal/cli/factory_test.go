package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/comfyflow/internal/config"
	"github.com/aretw0/comfyflow/pkg/adapters/file"
	"github.com/aretw0/comfyflow/pkg/adapters/memory"
	"github.com/aretw0/comfyflow/pkg/adapters/redis"
	"github.com/aretw0/comfyflow/pkg/domain"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("None", func(t *testing.T) {
		store, closeFn, err := openStore(ctx, config.StoreConfig{})
		require.NoError(t, err)
		defer closeFn()
		assert.Nil(t, store)
	})

	t.Run("Memory", func(t *testing.T) {
		store, closeFn, err := openStore(ctx, config.StoreConfig{Kind: config.StoreMemory})
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &memory.Store{}, store)
	})

	t.Run("File", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "prompts")
		store, closeFn, err := openStore(ctx, config.StoreConfig{Kind: config.StoreFile, Dir: dir})
		require.NoError(t, err)
		defer closeFn()
		require.IsType(t, &file.Store{}, store)
		assert.Equal(t, dir, store.(*file.Store).BasePath)
	})

	t.Run("Redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, closeFn, err := openStore(ctx, config.StoreConfig{
			Kind:   config.StoreRedis,
			URL:    "redis://" + mr.Addr(),
			Prefix: "test:",
		})
		require.NoError(t, err)
		defer closeFn()
		require.IsType(t, &redis.Store{}, store)

		require.NoError(t, store.Save(ctx, &domain.PromptRecord{ID: "p-1", Status: domain.PromptRunning}))
		assert.True(t, mr.Exists("test:p-1"))
	})

	t.Run("Redis Unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, _, err := openStore(ctx, config.StoreConfig{Kind: config.StoreRedis, URL: "redis://" + addr})
		assert.ErrorContains(t, err, "failed to reach redis")
	})

	t.Run("Redis Bad URL", func(t *testing.T) {
		_, _, err := openStore(ctx, config.StoreConfig{Kind: config.StoreRedis, URL: "http://nope"})
		assert.ErrorContains(t, err, "invalid redis url")
	})

	t.Run("Redacted And Encrypted", func(t *testing.T) {
		store, closeFn, err := openStore(ctx, config.StoreConfig{
			Kind:          config.StoreMemory,
			Redact:        []string{`/home/\w+`},
			EncryptionKey: base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32)),
		})
		require.NoError(t, err)
		defer closeFn()

		require.NoError(t, store.Save(ctx, &domain.PromptRecord{ID: "p-1", Error: "no file /home/bob/x"}))
		rec, err := store.Load(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, "no file ***/x", rec.Error)
	})

	t.Run("Bad Key", func(t *testing.T) {
		_, _, err := openStore(ctx, config.StoreConfig{Kind: config.StoreMemory, EncryptionKey: "short"})
		assert.Error(t, err)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, _, err := openStore(ctx, config.StoreConfig{Kind: "etcd"})
		assert.Error(t, err)
	})
}

func TestCreateHost(t *testing.T) {
	cfg := &config.Config{}
	cfg.Host.Address = "127.0.0.1:1"
	cfg.Host.OutputDir = t.TempDir()
	cfg.Debug = true

	h, err := createHost(cfg, createLogger(true), memory.NewStore())
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, "http://127.0.0.1:1", h.Config().HTTPURL())
	assert.False(t, h.IsConnected())

	cfg.Host.Address = "http://127.0.0.1:1"
	_, err = createHost(cfg, createLogger(false), nil)
	assert.ErrorContains(t, err, "error initializing host")
}
