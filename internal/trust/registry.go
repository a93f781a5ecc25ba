package trust

import (
	"errors"
	"fmt"
	"time"

	"ChainVault/internal/ledger"
	"ChainVault/internal/logger"
)

// DuplicateNodeError is returned when registering an identity twice.
type DuplicateNodeError struct {
	Identity string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %s already registered", e.Identity)
}

// UnknownNodeError is returned for operations on an unregistered identity.
type UnknownNodeError struct {
	Identity string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("node %s not registered", e.Identity)
}

// ErrInvalidScore is returned for scores outside [MinScore, MaxScore].
var ErrInvalidScore = errors.New("trust score out of range")

// Store persists node records with atomic per-node updates.
type Store interface {
	CreateNode(n ledger.StorageNode) error
	Node(id string) (ledger.StorageNode, error)
	Nodes() ([]ledger.StorageNode, error)
	UpdateNode(id string, fn func(*ledger.StorageNode) error) (ledger.StorageNode, error)
}

// Registry is the authoritative view of node trust.
// Mutations are atomic per node and never serialize unrelated nodes.
type Registry struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// New creates a registry over store.
func New(store Store, policy Policy) *Registry {
	return &Registry{
		store:  store,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the active scoring policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// IsTrusted reports whether n may receive new fragments.
func IsTrusted(n ledger.StorageNode) bool {
	return n.IsActive && n.TrustScore >= TrustedThreshold
}

// Register adds an active node with the given initial score.
func (r *Registry) Register(id string, score int) (ledger.StorageNode, error) {
	if id == "" {
		return ledger.StorageNode{}, fmt.Errorf("empty node identity")
	}

	if score < MinScore || score > MaxScore {
		return ledger.StorageNode{}, fmt.Errorf("register %s with %d: %w", id, score, ErrInvalidScore)
	}

	now := r.now()
	n := ledger.StorageNode{
		Identity:     id,
		TrustScore:   score,
		IsActive:     true,
		RegisteredAt: now,
		LastActivity: now,
	}

	if err := r.store.CreateNode(n); err != nil {
		if errors.Is(err, ledger.ErrExists) {
			return ledger.StorageNode{}, &DuplicateNodeError{Identity: id}
		}

		return ledger.StorageNode{}, fmt.Errorf("register %s:\n%w", id, err)
	}

	logger.Info("node registered", "node", id, "trust", score, "level", LevelOf(score))

	return n, nil
}

// Node returns one node record.
func (r *Registry) Node(id string) (ledger.StorageNode, error) {
	n, err := r.store.Node(id)
	if errors.Is(err, ledger.ErrNotFound) {
		return n, &UnknownNodeError{Identity: id}
	}

	return n, err
}

// Nodes returns every node record ordered by identity.
func (r *Registry) Nodes() ([]ledger.StorageNode, error) {
	return r.store.Nodes()
}

// AllNodes returns every registered identity ordered by identity.
func (r *Registry) AllNodes() ([]string, error) {
	nodes, err := r.store.Nodes()
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Identity
	}

	return ids, nil
}

// TrustedNodes returns the records of every active node scoring at least TrustedThreshold,
// ordered by identity.
func (r *Registry) TrustedNodes() ([]ledger.StorageNode, error) {
	nodes, err := r.store.Nodes()
	if err != nil {
		return nil, err
	}

	trusted := nodes[:0]
	for _, n := range nodes {
		if IsTrusted(n) {
			trusted = append(trusted, n)
		}
	}

	return trusted, nil
}

// TrustedIdentities returns the identities of TrustedNodes.
func (r *Registry) TrustedIdentities() ([]string, error) {
	nodes, err := r.TrustedNodes()
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Identity
	}

	return ids, nil
}

// RecordOutcome applies one retrieval outcome to a node: counters, activity time and score.
// A node falling under the deactivation threshold is deactivated in the same update.
func (r *Registry) RecordOutcome(id string, succeeded bool) (ledger.StorageNode, error) {
	var deactivated bool

	n, err := r.update(id, func(n *ledger.StorageNode) error {
		if succeeded {
			n.SuccessfulRetrievals++
		} else {
			n.FailedRetrievals++
		}

		n.LastActivity = r.now()
		n.TrustScore = r.policy.apply(n.TrustScore, succeeded)

		if n.IsActive && r.policy.DeactivateBelow > 0 && n.TrustScore < r.policy.DeactivateBelow {
			n.IsActive = false
			deactivated = true
		}

		return nil
	})
	if err != nil {
		return n, err
	}

	logger.Debug("trust outcome", "node", id, "ok", succeeded, "trust", n.TrustScore)

	if deactivated {
		logger.Warn("node deactivated", "node", id, "trust", n.TrustScore, "threshold", r.policy.DeactivateBelow)
	}

	return n, nil
}

// AddStored increases a node's stored fragment count.
func (r *Registry) AddStored(id string, count uint64) error {
	_, err := r.update(id, func(n *ledger.StorageNode) error {
		n.TotalStored += count
		n.LastActivity = r.now()
		return nil
	})

	return err
}

// SetScore overwrites a node's trust score.
func (r *Registry) SetScore(id string, score int) (ledger.StorageNode, error) {
	if score < MinScore || score > MaxScore {
		return ledger.StorageNode{}, fmt.Errorf("set %s to %d: %w", id, score, ErrInvalidScore)
	}

	n, err := r.update(id, func(n *ledger.StorageNode) error {
		n.TrustScore = score
		return nil
	})
	if err == nil {
		logger.Info("trust score set", "node", id, "trust", score)
	}

	return n, err
}

// Deactivate removes a node from future selection. Existing placements stay valid.
func (r *Registry) Deactivate(id string) (ledger.StorageNode, error) {
	return r.setActive(id, false)
}

// Activate makes a node eligible for selection again.
func (r *Registry) Activate(id string) (ledger.StorageNode, error) {
	return r.setActive(id, true)
}

func (r *Registry) setActive(id string, active bool) (ledger.StorageNode, error) {
	n, err := r.update(id, func(n *ledger.StorageNode) error {
		n.IsActive = active
		return nil
	})
	if err == nil {
		logger.Info("node activity changed", "node", id, "active", active)
	}

	return n, err
}

// update runs an atomic read-modify-write and maps a missing node to UnknownNodeError.
func (r *Registry) update(id string, fn func(*ledger.StorageNode) error) (ledger.StorageNode, error) {
	n, err := r.store.UpdateNode(id, fn)
	if errors.Is(err, ledger.ErrNotFound) {
		return n, &UnknownNodeError{Identity: id}
	}

	return n, err
}

// Summary aggregates the registry for operators.
type Summary struct {
	Total        int     `json:"total"`
	Active       int     `json:"active"`
	Trusted      int     `json:"trusted"`
	High         int     `json:"high"`
	Medium       int     `json:"medium"`
	Low          int     `json:"low"`
	AverageScore float64 `json:"averageScore"`
}

// Summary counts nodes per trust level and averages their scores.
func (r *Registry) Summary() (Summary, error) {
	nodes, err := r.store.Nodes()
	if err != nil {
		return Summary{}, err
	}

	var (
		s   Summary
		sum int
	)

	for _, n := range nodes {
		s.Total++
		sum += n.TrustScore

		if n.IsActive {
			s.Active++
		}

		if IsTrusted(n) {
			s.Trusted++
		}

		switch LevelOf(n.TrustScore) {
		case LevelHigh:
			s.High++
		case LevelMedium:
			s.Medium++
		default:
			s.Low++
		}
	}

	if s.Total > 0 {
		s.AverageScore = float64(sum) / float64(s.Total)
	}

	return s, nil
}
