package selector

import (
	"fmt"
	"sort"

	"ChainVault/internal/ledger"
	"ChainVault/internal/trust"
)

// InsufficientTrustedNodesError is returned when the trusted pool cannot hold
// the requested number of distinct replicas.
type InsufficientTrustedNodesError struct {
	Required  int // Required is the number of distinct nodes needed
	Available int // Available is the number of trusted nodes found
}

func (e *InsufficientTrustedNodesError) Error() string {
	return fmt.Sprintf("insufficient trusted nodes: need %d, have %d", e.Required, e.Available)
}

// Source provides the current trusted node records.
type Source interface {
	TrustedNodes() ([]ledger.StorageNode, error)
}

// Selector assigns fragments to trusted nodes.
type Selector struct {
	src Source // src is the trust registry
}

// New creates a selector over src.
func New(src Source) *Selector {
	return &Selector{src: src}
}

// Placement lists, per fragment index, the nodes holding that fragment.
// Replica 0 is the primary.
type Placement [][]string

// Select assigns count fragments with redundancy replicas each.
// Nodes are ranked by trust (desc), stored fragments (asc), then identity (asc),
// and slot (i, r) takes ranked[(i*redundancy + r) mod n]. Replicas of one
// fragment are always distinct nodes; nodes are reused across fragments.
func (s *Selector) Select(count, redundancy int) (Placement, error) {
	if count <= 0 {
		return nil, fmt.Errorf("fragment count must be positive, got %d", count)
	}

	if redundancy < 1 {
		return nil, fmt.Errorf("redundancy must be at least 1, got %d", redundancy)
	}

	ranked, err := s.ranked()
	if err != nil {
		return nil, err
	}

	if len(ranked) < redundancy || len(ranked) == 0 {
		return nil, &InsufficientTrustedNodesError{Required: redundancy, Available: len(ranked)}
	}

	n := len(ranked)
	placement := make(Placement, count)

	for i := 0; i < count; i++ {
		replicas := make([]string, redundancy)
		for r := 0; r < redundancy; r++ {
			replicas[r] = ranked[(i*redundancy+r)%n].Identity
		}

		placement[i] = replicas
	}

	return placement, nil
}

// Replacement returns the best-ranked trusted node not in exclude.
func (s *Selector) Replacement(exclude map[string]bool) (string, error) {
	ranked, err := s.ranked()
	if err != nil {
		return "", err
	}

	for _, n := range ranked {
		if !exclude[n.Identity] {
			return n.Identity, nil
		}
	}

	return "", &InsufficientTrustedNodesError{Required: len(exclude) + 1, Available: len(ranked)}
}

// ranked returns the trusted nodes in selection order.
func (s *Selector) ranked() ([]ledger.StorageNode, error) {
	nodes, err := s.src.TrustedNodes()
	if err != nil {
		return nil, fmt.Errorf("load trusted nodes:\n%w", err)
	}

	eligible := make([]ledger.StorageNode, 0, len(nodes))
	for _, n := range nodes {
		if trust.IsTrusted(n) {
			eligible = append(eligible, n)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]

		if a.TrustScore != b.TrustScore {
			return a.TrustScore > b.TrustScore
		}

		if a.TotalStored != b.TotalStored {
			return a.TotalStored < b.TotalStored
		}

		return a.Identity < b.Identity
	})

	return eligible, nil
}
