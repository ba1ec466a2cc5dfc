// Package config loads the crosschain server configuration from YAML, JSON or TOML.
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aretw0/crosschain/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "crosschain.yaml"

// State backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Duration accepts Go duration strings ("5s") in YAML, JSON and TOML.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the root of the configuration file.
type Config struct {
	Server ServerConfig  `yaml:"server" json:"server" toml:"server"`
	Router RouterConfig  `yaml:"router" json:"router" toml:"router"`
	State  StateConfig   `yaml:"state" json:"state" toml:"state"`
	Health HealthConfig  `yaml:"health" json:"health" toml:"health"`
	Chains []ChainConfig `yaml:"chains" json:"chains" toml:"chains"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" toml:"addr"`
}

// RouterConfig configures message routing.
type RouterConfig struct {
	MaxHops              int `yaml:"max_hops" json:"max_hops" toml:"max_hops"`
	BroadcastConcurrency int `yaml:"broadcast_concurrency" json:"broadcast_concurrency" toml:"broadcast_concurrency"`
}

// StateConfig selects the shared state backend.
type StateConfig struct {
	Backend string       `yaml:"backend" json:"backend" toml:"backend"`
	Redis   RedisConfig  `yaml:"redis" json:"redis" toml:"redis"`
	File    FileConfig   `yaml:"file" json:"file" toml:"file"`
	SQLite  SQLiteConfig `yaml:"sqlite" json:"sqlite" toml:"sqlite"`

	// EncryptionKey is a base64 AES-256 key; when set, values are encrypted at rest.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key" toml:"encryption_key"`
	// FallbackKeys decrypt values written before a key rotation.
	FallbackKeys []string `yaml:"fallback_keys" json:"fallback_keys" toml:"fallback_keys"`
	// PIIPatterns mask matching map entries before they are stored.
	PIIPatterns []string `yaml:"pii_patterns" json:"pii_patterns" toml:"pii_patterns"`
}

// FileConfig configures the file backend.
type FileConfig struct {
	Dir string `yaml:"dir" json:"dir" toml:"dir"`
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string `yaml:"path" json:"path" toml:"path"`
}

// Keys decodes the encryption keys. ok is false when encryption is disabled.
func (s StateConfig) Keys() (active []byte, fallback [][]byte, ok bool, err error) {
	if s.EncryptionKey == "" {
		return nil, nil, false, nil
	}
	active, err = decodeKey(s.EncryptionKey)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%w: state.encryption_key: %v", ErrInvalid, err)
	}
	for i, raw := range s.FallbackKeys {
		k, err := decodeKey(raw)
		if err != nil {
			return nil, nil, false, fmt.Errorf("%w: state.fallback_keys[%d]: %v", ErrInvalid, i, err)
		}
		fallback = append(fallback, k)
	}
	return active, fallback, true, nil
}

func decodeKey(raw string) ([]byte, error) {
	k, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(k) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(k))
	}
	return k, nil
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string   `yaml:"addr" json:"addr" toml:"addr"`
	Password string   `yaml:"password" json:"password" toml:"password"`
	DB       int      `yaml:"db" json:"db" toml:"db"`
	Prefix   string   `yaml:"prefix" json:"prefix" toml:"prefix"`
	TTL      Duration `yaml:"ttl" json:"ttl" toml:"ttl"`
	LockTTL  Duration `yaml:"lock_ttl" json:"lock_ttl" toml:"lock_ttl"`
}

// HealthConfig configures heartbeats.
type HealthConfig struct {
	DefaultPingInterval Duration `yaml:"default_ping_interval" json:"default_ping_interval" toml:"default_ping_interval"`
	PingerInterval      Duration `yaml:"pinger_interval" json:"pinger_interval" toml:"pinger_interval"`
}

// ChainConfig declares a chain registered at startup.
type ChainConfig struct {
	ID           string            `yaml:"id" json:"id" toml:"id"`
	PingInterval Duration          `yaml:"ping_interval" json:"ping_interval" toml:"ping_interval"`
	Metadata     map[string]string `yaml:"metadata" json:"metadata" toml:"metadata"`
	Handlers     []HandlerConfig   `yaml:"handlers" json:"handlers" toml:"handlers"`
}

// HandlerConfig runs an external command for one message type of a chain.
type HandlerConfig struct {
	Type    string            `yaml:"type" json:"type" toml:"type"`
	Command string            `yaml:"command" json:"command" toml:"command"`
	Args    []string          `yaml:"args" json:"args" toml:"args"`
	Env     map[string]string `yaml:"env" json:"env" toml:"env"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Router: RouterConfig{MaxHops: domain.DefaultMaxHops},
		State: StateConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Prefix:  "crosschain:",
				LockTTL: Duration(30 * time.Second),
			},
			File:   FileConfig{Dir: filepath.Join(".crosschain", "state")},
			SQLite: SQLiteConfig{Path: filepath.Join(".crosschain", "state.db")},
		},
		Health: HealthConfig{
			DefaultPingInterval: Duration(domain.DefaultPingInterval),
			PingerInterval:      Duration(2 * time.Second),
		},
	}
}

// Load reads a configuration file (YAML, JSON or TOML, chosen by extension) over the defaults.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".toml":
		_, err = toml.Decode(string(data), &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges and chain declarations.
func (c Config) Validate() error {
	if c.Router.MaxHops < 0 {
		return fmt.Errorf("%w: router.max_hops must not be negative", ErrInvalid)
	}
	if c.Router.BroadcastConcurrency < 0 {
		return fmt.Errorf("%w: router.broadcast_concurrency must not be negative", ErrInvalid)
	}
	switch c.State.Backend {
	case "", BackendMemory:
	case BackendRedis:
		if c.State.Redis.Addr == "" {
			return fmt.Errorf("%w: state.redis.addr is required for the redis backend", ErrInvalid)
		}
	case BackendFile:
		if c.State.File.Dir == "" {
			return fmt.Errorf("%w: state.file.dir is required for the file backend", ErrInvalid)
		}
	case BackendSQLite:
		if c.State.SQLite.Path == "" {
			return fmt.Errorf("%w: state.sqlite.path is required for the sqlite backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown state backend %q", ErrInvalid, c.State.Backend)
	}
	if _, _, _, err := c.State.Keys(); err != nil {
		return err
	}
	for _, p := range c.State.PIIPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: state.pii_patterns: %v", ErrInvalid, err)
		}
	}

	seen := make(map[string]bool, len(c.Chains))
	for i, ch := range c.Chains {
		if ch.ID == "" {
			return fmt.Errorf("%w: chains[%d] has no id", ErrInvalid, i)
		}
		if seen[ch.ID] {
			return fmt.Errorf("%w: chain %q declared twice", ErrInvalid, ch.ID)
		}
		seen[ch.ID] = true
		for j, h := range ch.Handlers {
			if h.Type == "" || h.Command == "" {
				return fmt.Errorf("%w: chain %q handlers[%d] needs type and command", ErrInvalid, ch.ID, j)
			}
		}
	}
	return nil
}
