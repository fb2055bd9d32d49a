package flowplugin

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"github.com/shaharia-lab/flowplugin/observability"
)

// EnvPrefix prefixes every environment variable that overrides the config file.
const EnvPrefix = "FLOWPLUGIN_"

// Store drivers.
const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
)

// LogConfig defines logging knobs.
type LogConfig struct {
	Path   string `toml:"path"`
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// StoreConfig selects where stored items live.
type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// RPCConfig tunes the JSON-RPC connection.
type RPCConfig struct {
	MaxFrameBytes         int           `toml:"maxFrameBytes"`
	MaxConcurrentHandlers int64         `toml:"maxConcurrentHandlers"`
	RequestTimeout        time.Duration `toml:"requestTimeout"`
	HandlerTimeout        time.Duration `toml:"handlerTimeout"`
	ReplyOnCancel         bool          `toml:"replyOnCancel"`
	UpdateInterval        time.Duration `toml:"updateInterval"`
}

// MetricsConfig enables the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Config is the process configuration of a plugin.
type Config struct {
	Log     LogConfig     `toml:"log"`
	Store   StoreConfig   `toml:"store"`
	RPC     RPCConfig     `toml:"rpc"`
	Metrics MetricsConfig `toml:"metrics"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: observability.FormatLogrus,
		},
		Store: StoreConfig{
			Driver: StoreDriverMemory,
		},
		RPC: RPCConfig{
			MaxFrameBytes:  jsonrpc.DefaultMaxFrameBytes,
			UpdateInterval: 500 * time.Millisecond,
		},
	}
}

// LoadConfig reads the TOML file at path over the defaults, then applies
// FLOWPLUGIN_* environment overrides. A .env file next to the config file,
// or in the working directory when path is empty, is loaded first; variables
// already set in the environment win over it.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
		return nil
	}

	str("LOG_PATH", &cfg.Log.Path)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("STORE_PATH", &cfg.Store.Path)
	str("METRICS_ADDR", &cfg.Metrics.Addr)

	for key, dst := range map[string]*time.Duration{
		"REQUEST_TIMEOUT": &cfg.RPC.RequestTimeout,
		"HANDLER_TIMEOUT": &cfg.RPC.HandlerTimeout,
		"UPDATE_INTERVAL": &cfg.RPC.UpdateInterval,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvPrefix + "MAX_CONCURRENT_HANDLERS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_CONCURRENT_HANDLERS: %w", EnvPrefix, err)
		}
		cfg.RPC.MaxConcurrentHandlers = n
	}
	if v, ok := lookup(EnvPrefix + "REPLY_ON_CANCEL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sREPLY_ON_CANCEL: %w", EnvPrefix, err)
		}
		cfg.RPC.ReplyOnCancel = b
	}
	return nil
}

func (cfg *Config) validate() error {
	switch cfg.Store.Driver {
	case "":
		cfg.Store.Driver = StoreDriverMemory
	case StoreDriverMemory:
	case StoreDriverSQLite:
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	switch cfg.Log.Format {
	case "", observability.FormatLogrus, observability.FormatZap, observability.FormatSlog:
	default:
		return fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}

	if cfg.RPC.MaxFrameBytes <= 0 {
		cfg.RPC.MaxFrameBytes = jsonrpc.DefaultMaxFrameBytes
	}
	if cfg.RPC.MaxConcurrentHandlers < 0 {
		return fmt.Errorf("rpc.maxConcurrentHandlers cannot be negative")
	}
	if cfg.RPC.RequestTimeout < 0 || cfg.RPC.HandlerTimeout < 0 || cfg.RPC.UpdateInterval < 0 {
		return fmt.Errorf("rpc timeouts and intervals cannot be negative")
	}
	return nil
}

// ConnOptions translates the RPC section into connection options.
func (cfg *Config) ConnOptions() []jsonrpc.Option {
	return []jsonrpc.Option{
		jsonrpc.UseMaxFrameBytes(cfg.RPC.MaxFrameBytes),
		jsonrpc.UseMaxConcurrentHandlers(cfg.RPC.MaxConcurrentHandlers),
		jsonrpc.UseRequestTimeout(cfg.RPC.RequestTimeout),
		jsonrpc.UseHandlerTimeout(cfg.RPC.HandlerTimeout),
		jsonrpc.UseReplyOnCancel(cfg.RPC.ReplyOnCancel),
	}
}

// OpenStore creates the configured Store.
func (cfg *Config) OpenStore(logger observability.Logger) (Store, error) {
	switch cfg.Store.Driver {
	case StoreDriverSQLite:
		return NewSQLiteStore(cfg.Store.Path, logger)
	default:
		return NewInMemoryStore(), nil
	}
}
