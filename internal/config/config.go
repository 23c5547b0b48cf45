package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"registry-federation/internal/metrics"
	"registry-federation/internal/peers"
)

var (
	ErrUnknownCacheBackend    = errors.New("unknown cache backend")
	ErrUnknownBaselineBackend = errors.New("unknown baseline backend")
)

// Config represents the federation service configuration.
type Config struct {
	ListenAddr string         `toml:"listen_addr"`
	LogLevel   string         `toml:"log_level"`
	LogBuffer  int            `toml:"log_buffer"`
	Cache      CacheConfig    `toml:"cache"`
	Baseline   BaselineConfig `toml:"baseline"`
	Fetch      FetchConfig    `toml:"fetch"`
	Health     HealthConfig   `toml:"health"`
	Peers      []PeerEntry    `toml:"peers"`
}

// CacheConfig uses a tagged union pattern: Backend selects which other
// fields are relevant.
type CacheConfig struct {
	Backend       string   `toml:"backend"`                  // "memory" or "etcd"
	EtcdEndpoints []string `toml:"etcd_endpoints,omitempty"` // only used for backend=etcd
	EtcdPrefix    string   `toml:"etcd_prefix,omitempty"`    // only used for backend=etcd
	SweepInterval Duration `toml:"sweep_interval"`           // only used for backend=memory
}

type BaselineConfig struct {
	Backend string `toml:"backend"`        // "memory" or "sqlite"
	Path    string `toml:"path,omitempty"` // only used for backend=sqlite
}

// FetchConfig controls remote fetches and how long their results stay cached.
type FetchConfig struct {
	Timeout     Duration `toml:"timeout"`
	MaxRetries  int      `toml:"max_retries"`
	BaseBackoff Duration `toml:"base_backoff"`
	MaxBackoff  Duration `toml:"max_backoff"`
	PeerTTL     Duration `toml:"peer_ttl"`
}

type HealthConfig struct {
	FailureThreshold int `toml:"failure_threshold"`
	SuccessThreshold int `toml:"success_threshold"`
}

// PeerEntry is one configured peer as written in the file. The ID is
// derived from the URI and never stored.
type PeerEntry struct {
	URI  string `toml:"uri"`
	Type string `toml:"type"`
}

// Duration is a time.Duration written as a string such as "72h".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	pc := peers.DefaultPeerConfig()
	return &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		LogBuffer:  1000,
		Cache: CacheConfig{
			Backend:       "memory",
			EtcdPrefix:    "/federation/cache/",
			SweepInterval: Duration{time.Minute},
		},
		Baseline: BaselineConfig{Backend: "memory"},
		Fetch: FetchConfig{
			Timeout:     Duration{pc.Timeout.FetchTimeout},
			MaxRetries:  pc.Retry.MaxRetries,
			BaseBackoff: Duration{pc.Retry.BaseBackoff},
			MaxBackoff:  Duration{pc.Retry.MaxBackoff},
			PeerTTL:     Duration{72 * time.Hour},
		},
		Health: HealthConfig{
			FailureThreshold: pc.Health.FailureThreshold,
			SuccessThreshold: pc.Health.SuccessThreshold,
		},
	}
}

// Validate checks backend selections and every peer entry.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory":
	case "etcd":
		if len(c.Cache.EtcdEndpoints) == 0 {
			return fmt.Errorf("cache backend etcd requires etcd_endpoints")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCacheBackend, c.Cache.Backend)
	}

	switch c.Baseline.Backend {
	case "memory":
	case "sqlite":
		if c.Baseline.Path == "" {
			return fmt.Errorf("baseline backend sqlite requires path")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBaselineBackend, c.Baseline.Backend)
	}

	seen := make(map[string]bool, len(c.Peers))
	for i, e := range c.Peers {
		p, err := peers.New(e.URI, peers.Relationship(e.Type))
		if err != nil {
			return fmt.Errorf("peer %d: %w", i, err)
		}
		if seen[p.ID] {
			return fmt.Errorf("peer %d: %w: %s", i, peers.ErrDuplicatePeer, p.URI)
		}
		seen[p.ID] = true
	}
	return nil
}

// PeerConfig converts the fetch and health sections into peer policies.
func (c *Config) PeerConfig() peers.PeerConfig {
	pc := peers.DefaultPeerConfig()
	pc.Timeout.FetchTimeout = c.Fetch.Timeout.Duration
	pc.Retry.MaxRetries = c.Fetch.MaxRetries
	pc.Retry.BaseBackoff = c.Fetch.BaseBackoff.Duration
	pc.Retry.MaxBackoff = c.Fetch.MaxBackoff.Duration
	pc.Health.FailureThreshold = c.Health.FailureThreshold
	pc.Health.SuccessThreshold = c.Health.SuccessThreshold
	return pc
}

// BuildRegistry loads the configured peers, in file order, into a registry.
func (c *Config) BuildRegistry(reg *metrics.Registry) (*peers.Registry, error) {
	r := peers.NewRegistry(c.PeerConfig(), reg)
	for i, e := range c.Peers {
		if _, err := r.Add(e.URI, peers.Relationship(e.Type)); err != nil {
			return nil, fmt.Errorf("peer %d: %w", i, err)
		}
	}
	return r, nil
}

// AddPeer appends a validated peer entry, storing the normalized URI.
func (c *Config) AddPeer(uri, typ string) (peers.Peer, error) {
	rel, err := peers.ParseRelationship(typ)
	if err != nil {
		return peers.Peer{}, err
	}
	p, err := peers.New(uri, rel)
	if err != nil {
		return peers.Peer{}, err
	}
	for _, e := range c.Peers {
		if existing, err := peers.NormalizeURI(e.URI); err == nil && existing == p.URI {
			return peers.Peer{}, fmt.Errorf("%w: %s", peers.ErrDuplicatePeer, p.URI)
		}
	}
	c.Peers = append(c.Peers, PeerEntry{URI: p.URI, Type: string(p.Type)})
	return p, nil
}

// RemovePeer drops the entry whose derived ID equals id.
func (c *Config) RemovePeer(id string) (peers.Peer, error) {
	for i, e := range c.Peers {
		p, err := peers.New(e.URI, peers.Relationship(e.Type))
		if err != nil || p.ID != id {
			continue
		}
		c.Peers = append(c.Peers[:i:i], c.Peers[i+1:]...)
		return p, nil
	}
	return peers.Peer{}, fmt.Errorf("%w: %s", peers.ErrPeerNotFound, id)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r on top of Default, so omitted fields keep
// their defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// WriteToFile writes cfg to path, creating the parent directory.
func WriteToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
