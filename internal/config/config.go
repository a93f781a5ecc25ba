// Package config loads the vault daemon configuration from YAML.
//
// A file is optional: Default supplies every value and LoadFile overlays the
// fields present in the file. Validate must pass before the values are used.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ChainVault/internal/fragment"
	"ChainVault/internal/transport"
	"ChainVault/internal/trust"
)

// Transport kinds.
const (
	TransportLocal  = "local"  // fragments of every node in a pebble store under data_dir
	TransportMemory = "memory" // fragments and ledger in RAM, lost on exit
	TransportQUIC   = "quic"   // remote storage nodes
)

// Config is the daemon configuration.
type Config struct {
	DataDir       string `yaml:"data_dir"`        // DataDir holds the ledger database
	HTTPAddr      string `yaml:"http_addr"`       // HTTPAddr is the API listen address
	QUICAddr      string `yaml:"quic_addr"`       // QUICAddr is the local QUIC address; empty dials only
	KeyPath       string `yaml:"key_path"`        // KeyPath is the Ed25519 identity key file
	MasterKeyPath string `yaml:"master_key_path"` // MasterKeyPath is the hex master key file

	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Trust     trust.Policy    `yaml:"trust"`
	Transport TransportConfig `yaml:"transport"`

	// Nodes are registered at startup when not already known.
	Nodes []NodeConfig `yaml:"nodes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"` // Level is debug, info, warn or error
}

// StorageConfig shapes fragments.
type StorageConfig struct {
	FragmentSize int    `yaml:"fragment_size"`
	Redundancy   int    `yaml:"redundancy"`
	Compression  string `yaml:"compression"` // Compression is none, lz4 or zstd
}

// TransportConfig selects and tunes node I/O.
type TransportConfig struct {
	Kind             string        `yaml:"kind"`
	NodeTimeout      time.Duration `yaml:"node_timeout"`
	PlacementRetries int           `yaml:"placement_retries"`
	MaxParallel      int           `yaml:"max_parallel"`
}

// NodeConfig is a bootstrap node registration.
type NodeConfig struct {
	Identity   string `yaml:"identity"`
	TrustScore int    `yaml:"trust_score"`
}

// Default returns a single-process configuration on the local transport.
func Default() *Config {
	return &Config{
		DataDir:       "./data",
		HTTPAddr:      ":8080",
		MasterKeyPath: "./data/master.key",
		Log:           LogConfig{Level: "info"},
		Storage: StorageConfig{
			FragmentSize: fragment.DefaultSize,
			Redundancy:   2,
			Compression:  "zstd",
		},
		Trust: trust.DefaultPolicy(),
		Transport: TransportConfig{
			Kind:             TransportLocal,
			NodeTimeout:      5 * time.Second,
			PlacementRetries: 3,
			MaxParallel:      8,
		},
	}
}

// LoadFile reads path over the defaults. A missing path is an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s:\n%w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s:\n%w", path, err)
	}

	return cfg, nil
}

// Validate checks every field and returns all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not debug, info, warn or error", c.Log.Level))
	}

	if c.Storage.FragmentSize <= 0 {
		errs = append(errs, fmt.Errorf("storage.fragment_size must be positive, got %d", c.Storage.FragmentSize))
	}

	if c.Storage.Redundancy < 1 {
		errs = append(errs, fmt.Errorf("storage.redundancy must be at least 1, got %d", c.Storage.Redundancy))
	}

	if _, err := fragment.ParseCompression(c.Storage.Compression); err != nil {
		errs = append(errs, fmt.Errorf("storage.compression: %w", err))
	}

	if err := c.Trust.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("trust: %w", err))
	}

	switch c.Transport.Kind {
	case TransportLocal, TransportMemory:
	case TransportQUIC:
		if c.Storage.FragmentSize > transport.MaxFragmentSize {
			errs = append(errs, fmt.Errorf("storage.fragment_size %d exceeds the quic frame limit %d", c.Storage.FragmentSize, transport.MaxFragmentSize))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q is not local, memory or quic", c.Transport.Kind))
	}

	if c.Transport.NodeTimeout <= 0 {
		errs = append(errs, errors.New("transport.node_timeout must be positive"))
	}

	if c.Transport.PlacementRetries < 1 {
		errs = append(errs, errors.New("transport.placement_retries must be at least 1"))
	}

	if c.Transport.MaxParallel < 1 {
		errs = append(errs, errors.New("transport.max_parallel must be at least 1"))
	}

	seen := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		switch {
		case n.Identity == "":
			errs = append(errs, fmt.Errorf("nodes[%d].identity is required", i))
		case seen[n.Identity]:
			errs = append(errs, fmt.Errorf("nodes[%d]: duplicate identity %s", i, n.Identity))
		}
		seen[n.Identity] = true

		if n.TrustScore < trust.MinScore || n.TrustScore > trust.MaxScore {
			errs = append(errs, fmt.Errorf("nodes[%d].trust_score %d outside [%d,%d]", i, n.TrustScore, trust.MinScore, trust.MaxScore))
		}
	}

	return errors.Join(errs...)
}

// Compression returns the parsed storage compression. Call after Validate.
func (c *Config) Compression() fragment.Compression {
	comp, _ := fragment.ParseCompression(c.Storage.Compression)
	return comp
}
