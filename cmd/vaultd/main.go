package main

import (
	"fmt"
	"os"

	"ChainVault/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run(args []string) error {
	cfg, opts, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger.Init(cfg.Log.Level)

	d, err := NewDaemon(cfg, opts)
	if err != nil {
		return fmt.Errorf("create daemon:\n%w", err)
	}

	logger.Info("starting vault daemon",
		"http", cfg.HTTPAddr,
		"data", cfg.DataDir,
		"transport", cfg.Transport.Kind,
		"redundancy", cfg.Storage.Redundancy,
		"compression", cfg.Storage.Compression,
	)

	return d.Run()
}
