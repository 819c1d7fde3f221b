package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/config"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/docstore"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/mirror"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	s, closer, err := openBackend(ctx, config.Store{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &docstore.MemoryStore{}, s)
	assert.NoError(t, closer(ctx))

	s, _, err = openBackend(ctx, config.Store{Driver: config.DriverFile, File: config.File{Dir: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &docstore.FileStore{}, s)

	_, _, err = openBackend(ctx, config.Store{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestOpenStore_WrapsMirror(t *testing.T) {
	cfg := &config.Config{
		Store: config.Store{Driver: config.DriverMemory},
		Mirror: config.Mirror{
			Enabled:  true,
			Required: false,
			GitHub:   config.GitHub{Owner: "acme", Repo: "licenses", Path: "state", BaseURL: "http://127.0.0.1:0"},
		},
	}
	s, _, err := openStore(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.IsType(t, &mirror.Replicated{}, s)

	cfg.Mirror.GitHub.Repo = ""
	_, _, err = openStore(context.Background(), cfg, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}
