package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ChainVault/internal/codec"
	"ChainVault/internal/fragment"
	"ChainVault/internal/ledger"
	"ChainVault/internal/logger"
	"ChainVault/internal/metrics"
)

// RetrieveOptions alters a single retrieval.
type RetrieveOptions struct {
	SimulateFailure     bool // SimulateFailure makes the first replicas of every fragment fail without I/O
	FailuresPerFragment int  // FailuresPerFragment is how many replicas fail when simulating (default 1)
}

// Report describes how a retrieval went.
type Report struct {
	OperationID          string   `json:"operationId"`
	FragmentsUsed        int      `json:"fragmentsUsed"`
	TotalFragments       int      `json:"totalFragments"`
	FailedNodes          []string `json:"failedNodes"`
	FailedFragmentHashes []string `json:"failedFragmentHashes"`
	Attempts             int      `json:"attempts"`
}

// Retrieval is a reconstructed file.
type Retrieval struct {
	Record ledger.FileRecord
	Data   []byte
	Report Report
}

// nodeOutcome is what one node did during a retrieval.
type nodeOutcome struct {
	served bool // served is true when the node returned a verified fragment
	failed bool // failed is true when any attempt against the node failed
}

// outcomes collects the trust outcomes of one retrieval. A node that failed one fragment
// and served another is credited with both.
type outcomes struct {
	mu       sync.Mutex
	byNode   map[string]*nodeOutcome
	order    []string
	failed   map[string]bool // failed holds fragment hashes that needed a fallback
	attempts int
}

func newOutcomes() *outcomes {
	return &outcomes{byNode: make(map[string]*nodeOutcome), failed: make(map[string]bool)}
}

func (o *outcomes) record(node, hash string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.attempts++

	n, seen := o.byNode[node]
	if !seen {
		n = &nodeOutcome{}
		o.byNode[node] = n
		o.order = append(o.order, node)
	}

	if ok {
		n.served = true
	} else {
		n.failed = true
		o.failed[hash] = true
	}
}

// failedNodes lists every node with at least one failed attempt.
func (o *outcomes) failedNodes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []string
	for node, n := range o.byNode {
		if n.failed {
			out = append(out, node)
		}
	}
	sort.Strings(out)

	return out
}

func (o *outcomes) failedHashes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]string, 0, len(o.failed))
	for h := range o.failed {
		out = append(out, h)
	}
	sort.Strings(out)

	return out
}

// RetrieveFile authorizes requester, fetches every fragment from its replicas in order,
// and reconstructs the file. Every node contacted gets its trust outcomes recorded,
// also when the retrieval fails or is cancelled.
func (c *Coordinator) RetrieveFile(ctx context.Context, hash, requester string, opts RetrieveOptions) (*Retrieval, error) {
	start := time.Now()
	opID := uuid.NewString()
	log := logger.With("op", opID, "file", hash)
	log.Debug("retrieval requested", "state", "RETRIEVE_REQUESTED", "requester", requester)

	rec, err := c.access.Authorize(hash, requester)
	if err != nil {
		c.metrics.Retrieval(ctx, metrics.ResultDenied, time.Since(start))
		return nil, err
	}

	if opts.SimulateFailure && opts.FailuresPerFragment <= 0 {
		opts.FailuresPerFragment = 1
	}

	log.Debug("retrieval authorized", "state", "FETCHING", "requester", requester, "fragments", len(rec.Fragments), "simulate", opts.SimulateFailure)

	out := newOutcomes()
	frags, fetchErr := c.fetchAll(ctx, rec, opts, out)

	c.flushOutcomes(ctx, out)

	report := Report{
		OperationID:          opID,
		TotalFragments:       len(rec.Fragments),
		FailedNodes:          out.failedNodes(),
		FailedFragmentHashes: out.failedHashes(),
		Attempts:             out.attempts,
	}

	if fetchErr != nil {
		c.metrics.Retrieval(ctx, resultOf(fetchErr), time.Since(start))
		log.Warn("retrieval failed", "state", "FAILED", "error", fetchErr, "failedNodes", report.FailedNodes)

		return nil, fetchErr
	}

	key, err := codec.DeriveFileKey(c.cfg.MasterKey, hash)
	if err != nil {
		return nil, err
	}

	data, err := fragment.Reassemble(frags, key, hash)
	if err != nil {
		var ierr *fragment.IntegrityError
		if errors.As(err, &ierr) {
			c.metrics.IntegrityFailure(ctx)
		}

		c.metrics.Retrieval(ctx, resultOf(err), time.Since(start))
		log.Error("reconstruction failed", "state", "FAILED", "error", err)

		return nil, err
	}

	report.FragmentsUsed = len(frags)
	c.metrics.Retrieval(ctx, metrics.ResultOK, time.Since(start))

	log.Info("retrieval complete", "state", "RECONSTRUCTED", "requester", requester, "fragments", report.FragmentsUsed,
		"failedNodes", len(report.FailedNodes), logger.Timed(start))

	return &Retrieval{Record: rec, Data: data, Report: report}, nil
}

// fetchAll fetches every fragment concurrently. The first hard failure cancels the rest.
func (c *Coordinator) fetchAll(ctx context.Context, rec ledger.FileRecord, opts RetrieveOptions, out *outcomes) ([]fragment.Fragment, error) {
	frags := make([]fragment.Fragment, len(rec.Fragments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallel)

	for i, ref := range rec.Fragments {
		g.Go(func() error {
			data, err := c.fetchFragment(gctx, rec.FileHash, ref, opts, out)
			if err != nil {
				return err
			}

			frags[i] = fragment.Fragment{Index: ref.Index, Data: data, Hash: ref.Hash, Size: len(data)}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return frags, nil
}

// fetchFragment walks the replicas of one fragment until one returns the expected bytes.
func (c *Coordinator) fetchFragment(ctx context.Context, fileHash string, ref ledger.FragmentRef, opts RetrieveOptions, out *outcomes) ([]byte, error) {
	replicas := ref.Replicas
	if len(replicas) == 0 && ref.AssignedNode != "" {
		replicas = []string{ref.AssignedNode}
	}

	var failed []string

	for attempt, node := range replicas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if opts.SimulateFailure && attempt < opts.FailuresPerFragment {
			out.record(node, ref.Hash, false)
			failed = append(failed, node)

			continue
		}

		data, err := c.get(ctx, node, ref.Hash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			logger.Warn("fragment get failed", "file", fileHash, "fragment", ref.Index, "node", node, "error", err)
			out.record(node, ref.Hash, false)
			failed = append(failed, node)

			continue
		}

		if got := codec.ContentHash(data); got != ref.Hash {
			out.record(node, ref.Hash, false)
			c.metrics.IntegrityFailure(ctx)
			logger.Error("fragment failed integrity check", "file", fileHash, "fragment", ref.Index, "node", node)

			return nil, &fragment.IntegrityError{
				FileHash: fileHash,
				Index:    ref.Index,
				Node:     node,
				Expected: ref.Hash,
				Actual:   got,
			}
		}

		out.record(node, ref.Hash, true)

		return data, nil
	}

	return nil, &UnrecoverableFragmentError{FileHash: fileHash, Index: ref.Index, FailedNodes: failed}
}

// get fetches one fragment with the per-node timeout.
func (c *Coordinator) get(ctx context.Context, node, hash string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.NodeTimeout)
	defer cancel()

	return c.transport.Get(ctx, node, hash)
}

// flushOutcomes applies the collected outcomes to the trust registry in first-contact order.
// Each node gets at most one failure and at most one success per retrieval.
func (c *Coordinator) flushOutcomes(ctx context.Context, out *outcomes) {
	out.mu.Lock()
	order := append([]string(nil), out.order...)
	results := make(map[string]nodeOutcome, len(out.byNode))
	for k, v := range out.byNode {
		results[k] = *v
	}
	out.mu.Unlock()

	for _, node := range order {
		n := results[node]

		if n.failed {
			c.metrics.NodeFailure(context.WithoutCancel(ctx), node)
			c.recordOutcome(node, false)
		}

		if n.served {
			c.recordOutcome(node, true)
		}
	}
}

func (c *Coordinator) recordOutcome(node string, ok bool) {
	if _, err := c.trust.RecordOutcome(node, ok); err != nil {
		logger.Warn("trust outcome not recorded", "node", node, "succeeded", ok, "error", err)
	}
}

// resultOf maps a retrieval error to its metrics result label.
func resultOf(err error) string {
	var (
		ierr *fragment.IntegrityError
		uerr *UnrecoverableFragmentError
	)

	switch {
	case errors.As(err, &ierr):
		return metrics.ResultIntegrity
	case errors.As(err, &uerr):
		return metrics.ResultUnrecovered
	default:
		return metrics.ResultError
	}
}
