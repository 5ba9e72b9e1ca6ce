// Package config loads weft settings with koanf.
//
// Sources are layered: built-in defaults, then a YAML file, then WEFT_*
// environment variables. WEFT_STORE_DRIVER sets store.driver and
// WEFT_EXECUTOR_ACTION_TIMEOUT sets executor.action_timeout.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/mitchellh/mapstructure"
)

const (
	// FileName is looked up in the project directory when no file is given.
	FileName = "weft.yaml"

	// EnvPrefix marks environment overrides.
	EnvPrefix = "WEFT_"

	delimiter = "."
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// Config is the full weft configuration.
type Config struct {
	Dir      string         `koanf:"dir"`
	Store    StoreConfig    `koanf:"store"`
	Executor ExecutorConfig `koanf:"executor"`
	Agent    AgentConfig    `koanf:"agent"`
	Log      LogConfig      `koanf:"log"`
	HTTP     HTTPConfig     `koanf:"http"`
}

type StoreConfig struct {
	Driver        string      `koanf:"driver"`
	Path          string      `koanf:"path"`
	Redis         RedisConfig `koanf:"redis"`
	MaskKeys      []string    `koanf:"mask_keys"`
	EncryptionKey string      `koanf:"encryption_key"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

type ExecutorConfig struct {
	MaxDepth      int           `koanf:"max_depth"`
	ActionTimeout time.Duration `koanf:"action_timeout"`
	ShellGrace    time.Duration `koanf:"shell_grace"`
}

// AgentConfig selects the prompt backend. An empty Command means the echo agent.
type AgentConfig struct {
	Command       string        `koanf:"command"`
	Args          []string      `koanf:"args"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxRetries    int           `koanf:"max_retries"`
	RatePerMinute int           `koanf:"rate_per_minute"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// Defaults returns the built-in settings.
func Defaults() map[string]any {
	return map[string]any{
		"dir":                     ".",
		"store.driver":            DriverFile,
		"store.path":              ".weft",
		"store.redis.addr":        "localhost:6379",
		"store.redis.password":    "",
		"store.redis.db":          0,
		"store.redis.prefix":      "weft:",
		"store.redis.ttl":         "0s",
		"store.mask_keys":         []string{},
		"store.encryption_key":    "",
		"executor.max_depth":      8,
		"executor.action_timeout": "10m",
		"executor.shell_grace":    "5s",
		"agent.command":           "",
		"agent.args":              []string{},
		"agent.timeout":           "10m",
		"agent.max_retries":       3,
		"agent.rate_per_minute":   0,
		"log.level":               "info",
		"log.format":              "text",
		"http.addr":               ":8080",
	}
}

// Options selects where Load reads from.
type Options struct {
	// Dir is the project directory searched for weft.yaml.
	Dir string
	// File overrides the weft.yaml lookup. A missing explicit file is an error.
	File string
	// Overrides are applied last, e.g. from CLI flags. Keys use dots.
	Overrides map[string]any
}

// Load builds the configuration from defaults, the config file, the
// environment and the overrides, in that order.
func Load(opts Options) (*Config, error) {
	k := koanf.New(delimiter)

	defaults := Defaults()
	if err := k.Load(confmap.Provider(defaults, delimiter), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, FileName)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	keys := envKeys(defaults)
	if err := k.Load(env.Provider(EnvPrefix, delimiter, func(s string) string {
		return keys[strings.ToLower(strings.TrimPrefix(s, EnvPrefix))]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if opts.Dir != "" {
		opts.Overrides = withDefault(opts.Overrides, "dir", opts.Dir)
	}
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToSliceHook(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that decoding cannot.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverFile, DriverRedis:
	default:
		return fmt.Errorf("unknown store driver %q (want memory, file or redis)", c.Store.Driver)
	}
	if c.Executor.MaxDepth < 1 {
		return fmt.Errorf("executor.max_depth must be at least 1, got %d", c.Executor.MaxDepth)
	}
	if c.Executor.ActionTimeout < 0 || c.Agent.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// StorePath resolves store.path against the project directory.
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(c.Dir, c.Store.Path)
}

// envKeys maps WEFT_ suffixes (lowercase, underscores) to dotted keys.
func envKeys(defaults map[string]any) map[string]string {
	out := make(map[string]string, len(defaults))
	for key := range defaults {
		out[strings.ReplaceAll(key, delimiter, "_")] = key
	}
	return out
}

// stringToSliceHook splits comma separated environment values into lists.
func stringToSliceHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if s == "" {
			return []string{}, nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}

func withDefault(m map[string]any, key string, value any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	if _, ok := m[key]; !ok {
		m[key] = value
	}
	return m
}
