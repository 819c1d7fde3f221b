package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "KEYSERVER"

// LoaderOption configures Load.
type LoaderOption func(*loader)

type loader struct {
	configFile string
	envFiles   []string
}

// WithConfigFile reads the YAML file at path. Without it no file is read.
func WithConfigFile(path string) LoaderOption {
	return func(l *loader) {
		l.configFile = path
	}
}

// WithEnvFiles loads the given dotenv files before reading the environment.
// Missing files are ignored. Default: ".env".
func WithEnvFiles(paths ...string) LoaderOption {
	return func(l *loader) {
		l.envFiles = paths
	}
}

// Load resolves the configuration. Precedence, highest first: environment,
// dotenv files, config file, defaults.
func Load(opts ...LoaderOption) (*Config, error) {
	l := &loader{envFiles: []string{".env"}}
	for _, opt := range opts {
		opt(l)
	}

	for _, path := range l.envFiles {
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("store.driver", DriverFile)
	v.SetDefault("store.file.dir", "data")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.table", "keyserver_documents")
	v.SetDefault("store.mongo.uri", "")
	v.SetDefault("store.mongo.database", "keyserver")
	v.SetDefault("store.mongo.collection", "keyserver_documents")
	v.SetDefault("store.redis.url", "")
	v.SetDefault("store.redis.prefix", "keyserver:doc:")

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.required", true)
	v.SetDefault("mirror.github.owner", "")
	v.SetDefault("mirror.github.repo", "")
	v.SetDefault("mirror.github.branch", "main")
	v.SetDefault("mirror.github.path", "keyserver")
	v.SetDefault("mirror.github.token", "")
	v.SetDefault("mirror.github.base_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
}
