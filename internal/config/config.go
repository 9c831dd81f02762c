// Package config loads gqlbind settings from defaults, an optional yaml
// file, a .env file and GQLBIND_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix starts every environment variable read by Load.
const EnvPrefix = "GQLBIND_"

type Config struct {
	Server  Server  `koanf:"server"`
	GraphQL GraphQL `koanf:"graphql"`
	Log     Log     `koanf:"log"`
	Otel    Otel    `koanf:"otel"`
}

type Server struct {
	Addr         string        `koanf:"addr"`
	Timeout      time.Duration `koanf:"timeout"`
	Pretty       bool          `koanf:"pretty"`
	MaxBodyBytes int64         `koanf:"max_body_bytes"`
	CORS         []string      `koanf:"cors"`
	GraphiQL     bool          `koanf:"graphiql"`
}

type GraphQL struct {
	Introspection bool `koanf:"introspection"`
	// Schema lists SDL files replacing the built-in example schema.
	Schema             []string `koanf:"schema"`
	CollectErrors      bool     `koanf:"collect_errors"`
	AllowUnimplemented bool     `koanf:"allow_unimplemented"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

type Otel struct {
	Endpoint string `koanf:"endpoint"`
	Service  string `koanf:"service"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":                 ":8080",
		"server.timeout":              "10s",
		"server.pretty":               false,
		"server.max_body_bytes":       1 << 20,
		"server.cors":                 []string{},
		"server.graphiql":             true,
		"graphql.introspection":       true,
		"graphql.schema":              []string{},
		"graphql.collect_errors":      false,
		"graphql.allow_unimplemented": false,
		"log.level":                   "info",
		"log.format":                  "console",
		"log.file":                    "",
		"otel.endpoint":               "",
		"otel.service":                "gqlbind",
	}
}

type options struct {
	file    string
	envFile string
}

type Option func(*options)

// WithFile reads a yaml file. A missing file is an error.
func WithFile(path string) Option { return func(o *options) { o.file = path } }

// WithEnvFile reads variables from a dotenv file if it exists. Variables
// already set in the process win. The default is ".env".
func WithEnvFile(path string) Option { return func(o *options) { o.envFile = path } }

// Load returns the merged configuration.
func Load(opts ...Option) (*Config, error) {
	o := options{envFile: ".env"}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	if o.file != "" {
		// yaml also reads JSON files.
		if err := k.Load(file.Provider(o.file), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", o.file, err)
		}
	}
	if err := loadEnvFile(o.envFile); err != nil {
		return nil, err
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var listKeys = map[string]bool{"server.cors": true, "graphql.schema": true}

// envValue maps GQLBIND_SERVER_MAX_BODY_BYTES to server.max_body_bytes. Only
// the first underscore separates the section from the key. List settings
// are comma separated.
func envValue(name, value string) (string, any) {
	key := strings.Replace(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "_", ".", 1)
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate checks values that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Timeout < 0 {
		errs = append(errs, fmt.Errorf("server.timeout must not be negative, got %s", c.Server.Timeout))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must not be negative, got %d", c.Server.MaxBodyBytes))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
