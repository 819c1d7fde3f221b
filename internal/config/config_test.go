package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(WithEnvFiles())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, DriverFile, cfg.Store.Driver)
	assert.Equal(t, "data", cfg.Store.File.Dir)
	assert.False(t, cfg.Mirror.Enabled)
	assert.True(t, cfg.Mirror.Required)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
server:
  addr: ":9090"
  shutdown_timeout: 30s
store:
  driver: postgres
  postgres:
    dsn: postgres://localhost/keys
logging:
  level: debug
  format: text
`), 0600))

	cfg, err := Load(WithConfigFile(path), WithEnvFiles())
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/keys", cfg.Store.Postgres.DSN)
	assert.Equal(t, "keyserver_documents", cfg.Store.Postgres.Table)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0600))

	t.Setenv("KEYSERVER_SERVER_ADDR", ":7070")
	t.Setenv("KEYSERVER_STORE_DRIVER", "memory")

	cfg, err := Load(WithConfigFile(path), WithEnvFiles())
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("KEYSERVER_STORE_REDIS_URL=redis://localhost:6379/0\n"), 0600))
	t.Setenv("KEYSERVER_STORE_DRIVER", "redis")
	// Registered so the value loaded from the file is cleaned up after the test.
	t.Setenv("KEYSERVER_STORE_REDIS_URL", "")
	require.NoError(t, os.Unsetenv("KEYSERVER_STORE_REDIS_URL"))

	cfg, err := Load(WithEnvFiles(envFile))
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.Redis.URL)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml")), WithEnvFiles())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:  Server{Addr: ":8080"},
			Store:   Store{Driver: DriverMemory},
			Logging: Logging{Format: "json"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"memory", func(*Config) {}, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, false},
		{"file without dir", func(c *Config) { c.Store.Driver = DriverFile }, false},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, false},
		{"mongo without database", func(c *Config) {
			c.Store.Driver = DriverMongo
			c.Store.Mongo.URI = "mongodb://localhost"
		}, false},
		{"redis without url", func(c *Config) { c.Store.Driver = DriverRedis }, false},
		{"mirror without repo", func(c *Config) {
			c.Mirror.Enabled = true
			c.Mirror.GitHub.Owner = "acme"
		}, false},
		{"mirror complete", func(c *Config) {
			c.Mirror.Enabled = true
			c.Mirror.GitHub.Owner = "acme"
			c.Mirror.GitHub.Repo = "licenses"
		}, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, false},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
