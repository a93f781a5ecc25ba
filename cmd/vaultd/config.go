package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"ChainVault/internal/codec"
	"ChainVault/internal/config"
)

// options are flags that are not part of the config file.
type options struct {
	restorePath string // restorePath is a snapshot loaded into an empty ledger at startup
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig(args []string) (*config.Config, options, error) {
	fs := pflag.NewFlagSet("vaultd", pflag.ContinueOnError)

	var (
		opts       options
		configPath string
		dataDir    string
		httpAddr   string
		quicAddr   string
		keyPath    string
		masterKey  string
		logLevel   string
		kind       string
		redundancy int
	)

	fs.StringVarP(&configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&dataDir, "data", "", "Data directory path")
	fs.StringVar(&httpAddr, "http", "", "HTTP API address")
	fs.StringVar(&quicAddr, "quic", "", "Local QUIC address (dial-only when empty)")
	fs.StringVar(&keyPath, "key", "", "Ed25519 identity key path (generates new if missing)")
	fs.StringVar(&masterKey, "master-key", "", "Hex master key path (generates new if missing)")
	fs.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&kind, "transport", "", "Node transport: local, memory or quic")
	fs.IntVar(&redundancy, "redundancy", 0, "Replicas per fragment")
	fs.StringVar(&opts.restorePath, "restore", "", "Ledger snapshot to restore before serving")

	if err := fs.Parse(args); err != nil {
		return nil, opts, err
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return nil, opts, err
		}
	}

	if fs.Changed("data") {
		cfg.DataDir = dataDir
		if cfg.MasterKeyPath == config.Default().MasterKeyPath {
			cfg.MasterKeyPath = filepath.Join(dataDir, "master.key")
		}
	}

	if fs.Changed("http") {
		cfg.HTTPAddr = httpAddr
	}

	if fs.Changed("quic") {
		cfg.QUICAddr = quicAddr
	}

	if fs.Changed("key") {
		cfg.KeyPath = keyPath
	}

	if fs.Changed("master-key") {
		cfg.MasterKeyPath = masterKey
	}

	if fs.Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	if fs.Changed("transport") {
		cfg.Transport.Kind = kind
	}

	if fs.Changed("redundancy") {
		cfg.Storage.Redundancy = redundancy
	}

	if err := cfg.Validate(); err != nil {
		return nil, opts, fmt.Errorf("invalid config:\n%w", err)
	}

	return cfg, opts, nil
}

// loadOrGenerateMasterKey reads a hex master key, creating one when the file is missing.
func loadOrGenerateMasterKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return generateAndSaveMasterKey(path)
	}

	if err != nil {
		return nil, fmt.Errorf("read master key:\n%w", err)
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode master key %s:\n%w", path, err)
	}

	if len(key) != codec.KeySize {
		return nil, fmt.Errorf("invalid master key size: got %d, want %d", len(key), codec.KeySize)
	}

	return key, nil
}

// generateAndSaveMasterKey creates a new master key and saves it to path.
func generateAndSaveMasterKey(path string) ([]byte, error) {
	key, err := codec.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory:\n%w", err)
	}

	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("save master key to %s:\n%w", path, err)
	}

	return key, nil
}
