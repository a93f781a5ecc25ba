package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ChainVault/internal/fragstore"
	"ChainVault/internal/logger"
	"ChainVault/internal/network"
	"ChainVault/internal/storage"
)

// statsInterval is how often the node logs what it holds.
const statsInterval = time.Minute

// Node is a running storage node.
type Node struct {
	cfg     *Config
	storage *storage.Storage
	store   *fragstore.Store
	network *network.Node
	done    chan struct{}
}

// NewNode loads the identity key and opens the fragment store.
func NewNode(cfg *Config) (*Node, error) {
	key, err := network.LoadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load key:\n%w", err)
	}
	cfg.PrivateKey = key

	if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(filepath.Join(cfg.DataPath, "fragments"))
	if err != nil {
		return nil, fmt.Errorf("init storage:\n%w", err)
	}

	node, err := network.NewNode(network.Config{PrivateKey: key, ListenAddr: cfg.QUICAddress})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create network node:\n%w", err)
	}

	return &Node{
		cfg:     cfg,
		storage: db,
		store:   fragstore.NewStore(db),
		network: node,
		done:    make(chan struct{}),
	}, nil
}

// Run serves fragment requests until a shutdown signal.
func (n *Node) Run() error {
	fragstore.NewHandler(n.store).Register(n.network)

	if err := n.network.Start(); err != nil {
		return fmt.Errorf("start network:\n%w", err)
	}

	logger.Info("serving fragments", "addr", n.network.Addr())

	go n.reportStats()

	return n.waitForShutdown()
}

// reportStats periodically logs the fragment count and size.
func (n *Node) reportStats() {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			count, bytes, err := n.store.Stats()
			if err != nil {
				logger.Warn("fragment stats failed", "error", err)
				continue
			}

			logger.Info("fragment store", "fragments", count, "bytes", bytes, "peers", n.network.Peers())
		case <-n.done:
			return
		}
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close stops the listener and closes the store.
func (n *Node) Close() error {
	close(n.done)
	n.network.Close()

	return n.storage.Close()
}
