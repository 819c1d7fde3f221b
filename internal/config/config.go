// Package config loads key server configuration from an optional YAML file,
// a .env file and KEYSERVER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

// Config is the fully resolved configuration.
type Config struct {
	Environment string  `mapstructure:"environment"`
	Server      Server  `mapstructure:"server"`
	Store       Store   `mapstructure:"store"`
	Mirror      Mirror  `mapstructure:"mirror"`
	Logging     Logging `mapstructure:"logging"`
}

type Server struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Store selects and configures the document store backend.
type Store struct {
	Driver   string   `mapstructure:"driver"`
	File     File     `mapstructure:"file"`
	Postgres Postgres `mapstructure:"postgres"`
	Mongo    Mongo    `mapstructure:"mongo"`
	Redis    Redis    `mapstructure:"redis"`
}

type File struct {
	Dir string `mapstructure:"dir"`
}

type Postgres struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type Mongo struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type Redis struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// Mirror configures replication of store documents to GitHub.
type Mirror struct {
	Enabled bool `mapstructure:"enabled"`
	// Required makes a failed mirror write fail the operation. When false
	// mirror failures are logged only.
	Required bool   `mapstructure:"required"`
	GitHub   GitHub `mapstructure:"github"`
}

type GitHub struct {
	Owner   string `mapstructure:"owner"`
	Repo    string `mapstructure:"repo"`
	Branch  string `mapstructure:"branch"`
	Path    string `mapstructure:"path"`
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Store.File.Dir == "" {
			errs = append(errs, errors.New("store.file.dir is required for the file driver"))
		}
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required for the postgres driver"))
		}
	case DriverMongo:
		if c.Store.Mongo.URI == "" || c.Store.Mongo.Database == "" {
			errs = append(errs, errors.New("store.mongo.uri and store.mongo.database are required for the mongo driver"))
		}
	case DriverRedis:
		if c.Store.Redis.URL == "" {
			errs = append(errs, errors.New("store.redis.url is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	if c.Mirror.Enabled && (c.Mirror.GitHub.Owner == "" || c.Mirror.GitHub.Repo == "") {
		errs = append(errs, errors.New("mirror.github.owner and mirror.github.repo are required when the mirror is enabled"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown logging format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
