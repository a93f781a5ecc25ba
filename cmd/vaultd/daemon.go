package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.opentelemetry.io/otel"

	"ChainVault/internal/access"
	"ChainVault/internal/api"
	"ChainVault/internal/config"
	"ChainVault/internal/coordinator"
	"ChainVault/internal/fragstore"
	"ChainVault/internal/ledger"
	"ChainVault/internal/logger"
	"ChainVault/internal/metrics"
	"ChainVault/internal/network"
	"ChainVault/internal/selector"
	"ChainVault/internal/storage"
	"ChainVault/internal/transport"
	"ChainVault/internal/trust"
)

// Daemon is a running vault coordinator.
type Daemon struct {
	cfg       *config.Config
	opts      options
	storage   *storage.Storage
	fragments *storage.Storage // fragments is the local transport database, nil otherwise
	ledger    *ledger.Ledger
	registry  *trust.Registry
	access    *access.Control
	network   *network.Node // network is nil unless the transport is quic
	transport transport.Transport
	collector *metrics.Collector
	engine    *coordinator.Coordinator
	api       *api.Server
}

// NewDaemon opens storage and builds every component.
func NewDaemon(cfg *config.Config, opts options) (*Daemon, error) {
	d := &Daemon{cfg: cfg, opts: opts}

	if err := d.initStorage(); err != nil {
		return nil, err
	}

	if err := d.initTransport(); err != nil {
		d.Close()
		return nil, err
	}

	if err := d.initEngine(); err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

// initStorage opens the ledger and applies a snapshot when requested.
func (d *Daemon) initStorage() error {
	if err := os.MkdirAll(d.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := d.openLedger()
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	d.storage = db
	d.ledger = ledger.New(db)

	if d.opts.restorePath == "" {
		return nil
	}

	return d.restore(d.opts.restorePath)
}

// openLedger opens the ledger database. The memory transport loses its fragments on exit,
// so its ledger must not outlive them.
func (d *Daemon) openLedger() (*storage.Storage, error) {
	if d.cfg.Transport.Kind == config.TransportMemory {
		logger.Warn("memory transport: ledger and fragments are discarded on exit")
		return storage.NewInMemory()
	}

	return storage.New(filepath.Join(d.cfg.DataDir, "ledger"))
}

// restore loads a snapshot into an empty ledger.
func (d *Daemon) restore(path string) error {
	files, err := d.ledger.Files()
	if err != nil {
		return err
	}

	nodes, err := d.ledger.Nodes()
	if err != nil {
		return err
	}

	if len(files) > 0 || len(nodes) > 0 {
		return fmt.Errorf("refusing to restore %s over a non-empty ledger", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot:\n%w", err)
	}

	n, err := d.ledger.Restore(data)
	if err != nil {
		return fmt.Errorf("restore snapshot:\n%w", err)
	}

	logger.Info("ledger restored", "path", path, "entries", n)

	return nil
}

// initTransport builds the node transport.
func (d *Daemon) initTransport() error {
	switch d.cfg.Transport.Kind {
	case config.TransportMemory:
		d.transport = transport.NewMemory()
		return nil

	case config.TransportLocal:
		db, err := storage.New(filepath.Join(d.cfg.DataDir, "fragments"))
		if err != nil {
			return fmt.Errorf("open fragment storage:\n%w", err)
		}

		d.fragments = db
		d.transport = fragstore.NewLocal(db)

		return nil
	}

	key, err := network.LoadOrGenerateKey(d.cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	node, err := network.NewNode(network.Config{PrivateKey: key, ListenAddr: d.cfg.QUICAddr})
	if err != nil {
		return fmt.Errorf("create network node:\n%w", err)
	}

	d.network = node
	d.transport = transport.NewQUIC(node)

	return nil
}

// initEngine builds trust, access, metrics and the coordinator.
func (d *Daemon) initEngine() error {
	masterKey, err := loadOrGenerateMasterKey(d.cfg.MasterKeyPath)
	if err != nil {
		return err
	}

	d.registry = trust.New(d.ledger, d.cfg.Trust)
	d.access = access.New(d.ledger)

	d.collector = metrics.NewCollector()
	otel.SetMeterProvider(d.collector.Provider())

	m, err := metrics.New(d.collector.Provider())
	if err != nil {
		return err
	}

	d.engine, err = coordinator.New(coordinator.Config{
		MasterKey:        masterKey,
		FragmentSize:     d.cfg.Storage.FragmentSize,
		Compression:      d.cfg.Compression(),
		Redundancy:       d.cfg.Storage.Redundancy,
		NodeTimeout:      d.cfg.Transport.NodeTimeout,
		PlacementRetries: d.cfg.Transport.PlacementRetries,
		MaxParallel:      d.cfg.Transport.MaxParallel,
	}, coordinator.Deps{
		Transport: d.transport,
		Placer:    selector.New(d.registry),
		Trust:     d.registry,
		Files:     d.ledger,
		Access:    d.access,
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("create coordinator:\n%w", err)
	}

	return d.registerBootstrapNodes()
}

// registerBootstrapNodes registers configured nodes that are not yet known.
func (d *Daemon) registerBootstrapNodes() error {
	for _, n := range d.cfg.Nodes {
		_, err := d.registry.Register(n.Identity, n.TrustScore)

		var dup *trust.DuplicateNodeError
		if errors.As(err, &dup) {
			logger.Debug("bootstrap node already registered", "node", n.Identity)
			continue
		}

		if err != nil {
			return fmt.Errorf("register bootstrap node %s:\n%w", n.Identity, err)
		}
	}

	return nil
}

// Run starts the network and HTTP API and blocks until a shutdown signal.
func (d *Daemon) Run() error {
	if d.network != nil && d.cfg.QUICAddr != "" {
		if err := d.network.Start(); err != nil {
			return fmt.Errorf("start network:\n%w", err)
		}
	}

	d.api = api.New(d.cfg.HTTPAddr, api.Deps{
		Engine:  d.engine,
		Nodes:   d.registry,
		Access:  d.access,
		Ledger:  d.ledger,
		Metrics: d.collector,
	})
	if err := d.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	return d.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM.
func (d *Daemon) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return d.Close()
}

// Close shuts down all daemon components gracefully.
func (d *Daemon) Close() error {
	if d.api != nil {
		d.api.Stop()
	}

	if d.network != nil {
		d.network.Close()
	}

	if d.collector != nil {
		d.collector.Shutdown(context.Background())
	}

	if d.fragments != nil {
		d.fragments.Close()
	}

	if d.storage != nil {
		d.storage.Close()
	}

	return nil
}
