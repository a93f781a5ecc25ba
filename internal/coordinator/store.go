package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ChainVault/internal/codec"
	"ChainVault/internal/fragment"
	"ChainVault/internal/ledger"
	"ChainVault/internal/logger"
	"ChainVault/internal/transport"
)

// cleanupTimeout bounds orphan removal after a failed upload.
const cleanupTimeout = 10 * time.Second

// written is one replica stored during an upload.
type written struct {
	node string
	hash string
}

// StoreFile fragments, encrypts and places data, then registers the file.
// Uploading identical bytes again as the same owner returns the existing record.
// On any failure no record is registered and written replicas are removed.
func (c *Coordinator) StoreFile(ctx context.Context, owner string, data []byte, name string) (ledger.FileRecord, error) {
	start := time.Now()
	fileHash := codec.ContentHash(data)
	log := logger.With("op", uuid.NewString(), "file", fileHash)

	if owner == "" {
		return ledger.FileRecord{}, fmt.Errorf("owner is required")
	}

	log.Info("upload requested", "state", "UPLOAD_REQUESTED", "owner", owner, "name", name, "bytes", len(data))

	unlock := c.uploads.Lock(fileHash)
	defer unlock()

	existing, err := c.files.File(fileHash)
	switch {
	case err == nil && existing.Owner == owner:
		log.Info("upload deduplicated", "owner", owner)
		return existing, nil
	case err == nil:
		return ledger.FileRecord{}, &DuplicateFileError{FileHash: fileHash, Owner: existing.Owner}
	case !errors.Is(err, ledger.ErrNotFound):
		return ledger.FileRecord{}, fmt.Errorf("lookup %s:\n%w", fileHash, err)
	}

	key, err := codec.DeriveFileKey(c.cfg.MasterKey, fileHash)
	if err != nil {
		return ledger.FileRecord{}, err
	}

	set, err := fragment.Split(data, key, fragment.Options{Size: c.cfg.FragmentSize, Compression: c.cfg.Compression})
	if err != nil {
		return ledger.FileRecord{}, err
	}

	log.Debug("fragmented", "state", "FRAGMENTED", "fragments", len(set.Fragments))

	placement, err := c.placer.Select(len(set.Fragments), c.cfg.Redundancy)
	if err != nil {
		return ledger.FileRecord{}, err
	}

	refs, stored, err := c.place(ctx, set, placement)
	if err != nil {
		c.removeOrphans(stored)
		log.Warn("upload failed", "state", "FAILED", "error", err, "orphans", len(stored))

		return ledger.FileRecord{}, err
	}

	log.Debug("placed", "state", "PLACED", "replicas", len(stored))

	rec := ledger.FileRecord{
		FileHash:    fileHash,
		Owner:       owner,
		FileName:    name,
		FileSize:    int64(set.FileSize),
		Compression: c.cfg.Compression.String(),
		UploadedAt:  time.Now().UTC(),
		Fragments:   refs,
		Exists:      true,
	}

	if err := c.files.CreateFile(rec); err != nil {
		c.removeOrphans(stored)

		if errors.Is(err, ledger.ErrExists) {
			return ledger.FileRecord{}, &DuplicateFileError{FileHash: fileHash, Owner: owner}
		}

		return ledger.FileRecord{}, fmt.Errorf("register %s:\n%w", fileHash, err)
	}

	c.countStored(stored)
	c.metrics.Upload(ctx, rec.FileSize)

	log.Info("upload registered", "state", "REGISTERED", "fragments", len(refs), "redundancy", c.cfg.Redundancy, logger.Timed(start))

	return rec, nil
}

// place writes every replica of every fragment. It returns the refs in index order and
// every replica actually written, including on failure.
func (c *Coordinator) place(ctx context.Context, set *fragment.Set, placement [][]string) ([]ledger.FragmentRef, []written, error) {
	refs := make([]ledger.FragmentRef, len(set.Fragments))

	var (
		mu     sync.Mutex
		stored []written
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallel)

	for i, frag := range set.Fragments {
		g.Go(func() error {
			replicas, err := c.placeFragment(gctx, set.FileHash, frag, placement[i], func(node string) {
				mu.Lock()
				stored = append(stored, written{node: node, hash: frag.Hash})
				mu.Unlock()
			})
			if err != nil {
				return err
			}

			refs[i] = ledger.FragmentRef{
				Index:        frag.Index,
				Hash:         frag.Hash,
				Size:         frag.Size,
				AssignedNode: replicas[0],
				Replicas:     replicas,
			}

			return nil
		})
	}

	err := g.Wait()

	return refs, stored, err
}

// placeFragment writes one fragment to each planned node, replacing failed nodes with
// fresh trusted nodes up to the retry budget. Replicas always land on distinct nodes.
func (c *Coordinator) placeFragment(ctx context.Context, fileHash string, frag fragment.Fragment, planned []string, onWrite func(string)) ([]string, error) {
	used := make(map[string]bool, len(planned))
	for _, n := range planned {
		used[n] = true
	}

	replicas := make([]string, 0, len(planned))

	for _, node := range planned {
		var tried []string
		retries := 0

		for {
			tried = append(tried, node)

			err := c.put(ctx, node, frag)
			if err == nil {
				onWrite(node)
				replicas = append(replicas, node)
				break
			}

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			logger.Warn("fragment put failed", "file", fileHash, "index", frag.Index, "node", node, "error", err)

			if retries >= c.cfg.PlacementRetries {
				return nil, &PlacementError{FileHash: fileHash, Index: frag.Index, Tried: tried, Err: err}
			}
			retries++

			next, rerr := c.placer.Replacement(used)
			if rerr != nil {
				return nil, &PlacementError{FileHash: fileHash, Index: frag.Index, Tried: tried, Err: errors.Join(err, rerr)}
			}

			used[next] = true
			node = next
		}
	}

	return replicas, nil
}

// put writes one fragment with the per-node timeout.
func (c *Coordinator) put(ctx context.Context, node string, frag fragment.Fragment) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.NodeTimeout)
	defer cancel()

	return c.transport.Put(ctx, node, frag.Hash, frag.Data)
}

// removeOrphans deletes replicas of an upload that was not registered. Failures are logged.
func (c *Coordinator) removeOrphans(stored []written) {
	remover, ok := c.transport.(transport.Remover)
	if !ok || len(stored) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	for _, w := range stored {
		if err := remover.Remove(ctx, w.node, w.hash); err != nil {
			logger.Warn("orphan fragment left on node", "node", w.node, "hash", w.hash, "error", err)
		}
	}
}

// countStored adds each node's replica count to its totalStored counter.
func (c *Coordinator) countStored(stored []written) {
	counts := make(map[string]uint64)
	for _, w := range stored {
		counts[w.node]++
	}

	for node, n := range counts {
		if err := c.trust.AddStored(node, n); err != nil {
			logger.Warn("stored count not updated", "node", node, "error", err)
		}
	}
}
