package coordinator

import (
	"fmt"
	"time"

	"ChainVault/internal/codec"
	"ChainVault/internal/fragment"
	"ChainVault/internal/keylock"
	"ChainVault/internal/ledger"
	"ChainVault/internal/metrics"
	"ChainVault/internal/selector"
	"ChainVault/internal/transport"
)

// Defaults applied by New to zero Config fields.
const (
	defaultRedundancy       = 2
	defaultNodeTimeout      = 5 * time.Second
	defaultPlacementRetries = 3
	defaultMaxParallel      = 8
)

// Config tunes the coordinator.
type Config struct {
	MasterKey        []byte               // MasterKey derives every per-file key
	FragmentSize     int                  // FragmentSize is the maximum fragment length
	Compression      fragment.Compression // Compression is applied before encryption
	Redundancy       int                  // Redundancy is the number of distinct nodes per fragment
	NodeTimeout      time.Duration        // NodeTimeout bounds each put and get
	PlacementRetries int                  // PlacementRetries is the number of replacement nodes tried per replica
	MaxParallel      int                  // MaxParallel caps concurrent fragment transfers per operation
}

// Placer chooses nodes for fragments.
type Placer interface {
	Select(count, redundancy int) (selector.Placement, error)
	Replacement(exclude map[string]bool) (string, error)
}

// Trust receives retrieval outcomes and placement counts.
type Trust interface {
	RecordOutcome(id string, succeeded bool) (ledger.StorageNode, error)
	AddStored(id string, count uint64) error
}

// Files is the file metadata store.
type Files interface {
	CreateFile(rec ledger.FileRecord) error
	File(hash string) (ledger.FileRecord, error)
	Files() ([]ledger.FileRecord, error)
}

// Authorizer gates retrievals.
type Authorizer interface {
	Authorize(hash, identity string) (ledger.FileRecord, error)
}

// Deps are the collaborators of a coordinator.
type Deps struct {
	Transport transport.Transport
	Placer    Placer
	Trust     Trust
	Files     Files
	Access    Authorizer
	Metrics   *metrics.Metrics // Metrics is optional; the global provider is used when nil
}

// Coordinator orchestrates uploads and retrievals.
type Coordinator struct {
	cfg       Config
	transport transport.Transport
	placer    Placer
	trust     Trust
	files     Files
	access    Authorizer
	metrics   *metrics.Metrics
	uploads   *keylock.Map // uploads serializes uploads of the same content
}

// New validates cfg, fills defaults and builds a coordinator.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if len(cfg.MasterKey) != codec.KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", codec.KeySize, len(cfg.MasterKey))
	}

	if cfg.FragmentSize == 0 {
		cfg.FragmentSize = fragment.DefaultSize
	}

	if cfg.FragmentSize < 0 {
		return nil, fmt.Errorf("fragment size must be positive, got %d", cfg.FragmentSize)
	}

	if cfg.Redundancy == 0 {
		cfg.Redundancy = defaultRedundancy
	}

	if cfg.Redundancy < 1 {
		return nil, fmt.Errorf("redundancy must be at least 1, got %d", cfg.Redundancy)
	}

	if cfg.NodeTimeout == 0 {
		cfg.NodeTimeout = defaultNodeTimeout
	}

	if cfg.PlacementRetries == 0 {
		cfg.PlacementRetries = defaultPlacementRetries
	}

	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultMaxParallel
	}

	if deps.Transport == nil || deps.Placer == nil || deps.Trust == nil || deps.Files == nil || deps.Access == nil {
		return nil, fmt.Errorf("transport, placer, trust, files and access are required")
	}

	m := deps.Metrics
	if m == nil {
		var err error
		if m, err = metrics.New(nil); err != nil {
			return nil, err
		}
	}

	return &Coordinator{
		cfg:       cfg,
		transport: deps.Transport,
		placer:    deps.Placer,
		trust:     deps.Trust,
		files:     deps.Files,
		access:    deps.Access,
		metrics:   m,
		uploads:   keylock.New(),
	}, nil
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// File returns a registered file record.
func (c *Coordinator) File(hash string) (ledger.FileRecord, error) {
	return c.files.File(hash)
}

// VerifyIntegrity reports whether candidate hashes to expected without touching any node.
func (c *Coordinator) VerifyIntegrity(expected string, candidate []byte) bool {
	return codec.VerifyContent(expected, candidate)
}

// Verify is VerifyIntegrity that also returns the candidate's hash.
func (c *Coordinator) Verify(expected string, candidate []byte) (bool, string) {
	return codec.VerifyContent(expected, candidate), codec.ContentHash(candidate)
}

// Stats summarizes registered files.
type Stats struct {
	Files                   int     `json:"totalFiles"`
	Fragments               int     `json:"totalFragments"`
	Replicas                int     `json:"totalReplicas"`
	Bytes                   int64   `json:"totalSize"`
	AverageFragmentsPerFile float64 `json:"averageFragmentsPerFile"`
}

// Stats walks every file record.
func (c *Coordinator) Stats() (Stats, error) {
	files, err := c.files.Files()
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	for _, f := range files {
		s.Files++
		s.Fragments += len(f.Fragments)
		s.Bytes += f.FileSize

		for _, ref := range f.Fragments {
			s.Replicas += len(ref.Replicas)
		}
	}

	if s.Files > 0 {
		s.AverageFragmentsPerFile = float64(s.Fragments) / float64(s.Files)
	}

	return s, nil
}
