package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"ChainVault/internal/logger"
)

// Config holds the storage node configuration.
type Config struct {
	DataPath    string             // DataPath is the fragment store directory
	QUICAddress string             // QUICAddress is the listen address, also the node identity
	KeyPath     string             // KeyPath is the Ed25519 key file
	LogLevel    string             // LogLevel is the minimum log level
	PrivateKey  ed25519.PrivateKey // PrivateKey is the loaded identity key
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run(args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	logger.Init(cfg.LogLevel)

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("create node:\n%w", err)
	}

	logger.Info("starting storage node",
		"pubkey", hex.EncodeToString(cfg.PrivateKey.Public().(ed25519.PublicKey)),
		"quic", cfg.QUICAddress,
		"data", cfg.DataPath,
	)

	return node.Run()
}

// parseFlags parses command-line flags into Config.
func parseFlags(args []string) (*Config, error) {
	cfg := &Config{}

	fs := pflag.NewFlagSet("storagenode", pflag.ContinueOnError)
	fs.StringVar(&cfg.DataPath, "data", "./node-data", "Fragment store directory")
	fs.StringVar(&cfg.QUICAddress, "quic", ":9000", "QUIC listen address")
	fs.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.QUICAddress == "" {
		return nil, fmt.Errorf("--quic is required")
	}

	return cfg, nil
}
