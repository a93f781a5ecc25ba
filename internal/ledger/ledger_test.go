package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainVault/internal/storage"
)

// newTestLedger creates a ledger on an in-memory store.
func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	db, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db)
}

func testFile(hash, owner string) FileRecord {
	return FileRecord{
		FileHash:   hash,
		Owner:      owner,
		FileName:   "hello.txt",
		FileSize:   11,
		UploadedAt: time.Now().UTC(),
		Fragments: []FragmentRef{
			{Index: 0, Hash: "h0", Size: 10, AssignedNode: "n1", Replicas: []string{"n1", "n2"}},
			{Index: 1, Hash: "h1", Size: 5, AssignedNode: "n2", Replicas: []string{"n2", "n1"}},
		},
	}
}

// TestNodeLifecycle tests create, read, duplicate and listing.
func TestNodeLifecycle(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.CreateNode(StorageNode{Identity: "b", TrustScore: 80, IsActive: true}))
	require.NoError(t, l.CreateNode(StorageNode{Identity: "a", TrustScore: 40, IsActive: true}))

	err := l.CreateNode(StorageNode{Identity: "a", TrustScore: 99})
	assert.ErrorIs(t, err, ErrExists)

	n, err := l.Node("a")
	require.NoError(t, err)
	assert.Equal(t, 40, n.TrustScore)

	_, err = l.Node("zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	nodes, err := l.Nodes()
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "a", nodes[0].Identity)
	assert.Equal(t, "b", nodes[1].Identity)
}

// TestUpdateNodeAtomic tests that concurrent read-modify-writes lose no updates.
func TestUpdateNodeAtomic(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.CreateNode(StorageNode{Identity: "n", IsActive: true}))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := l.UpdateNode("n", func(n *StorageNode) error {
				n.SuccessfulRetrievals++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := l.Node("n")
	require.NoError(t, err)
	assert.Equal(t, uint64(64), n.SuccessfulRetrievals)
}

// TestUpdateNodeAbort tests that a failing mutator writes nothing.
func TestUpdateNodeAbort(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.CreateNode(StorageNode{Identity: "n", TrustScore: 50}))

	boom := errors.New("boom")
	_, err := l.UpdateNode("n", func(n *StorageNode) error {
		n.TrustScore = 0
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := l.Node("n")
	require.NoError(t, err)
	assert.Equal(t, 50, n.TrustScore)

	_, err = l.UpdateNode("missing", func(*StorageNode) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestFileWriteOnce tests that file records cannot be overwritten.
func TestFileWriteOnce(t *testing.T) {
	l := newTestLedger(t)

	rec := testFile("aa", "alice")
	require.NoError(t, l.CreateFile(rec))

	other := testFile("aa", "mallory")
	assert.ErrorIs(t, l.CreateFile(other), ErrExists)

	got, err := l.File("aa")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)
	assert.True(t, got.Exists)
	assert.Equal(t, rec.Fragments, got.Fragments)
	assert.True(t, rec.UploadedAt.Equal(got.UploadedAt))

	files, err := l.Files()
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

// TestGrants tests idempotent grant and revoke plus reverse lookup.
func TestGrants(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.CreateFile(testFile("aa", "alice")))
	require.NoError(t, l.CreateFile(testFile("bb", "alice")))

	require.NoError(t, l.SetGrant("aa", "bob", true))
	require.NoError(t, l.SetGrant("aa", "bob", true))
	require.NoError(t, l.SetGrant("bb", "bob", true))
	require.NoError(t, l.SetGrant("aa", "carol:9000", true))

	grantees, err := l.Grantees("aa")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol:9000"}, grantees)

	hashes, err := l.GrantedTo("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb"}, hashes)

	require.NoError(t, l.SetGrant("aa", "bob", false))
	require.NoError(t, l.SetGrant("aa", "bob", false))

	has, err := l.HasGrant("aa", "bob")
	require.NoError(t, err)
	assert.False(t, has)

	assert.ErrorIs(t, l.SetGrant("zz", "bob", true), ErrNotFound)
}

// TestSnapshotRestore tests export into a fresh ledger and checksum validation.
func TestSnapshotRestore(t *testing.T) {
	src := newTestLedger(t)
	require.NoError(t, src.CreateNode(StorageNode{Identity: "n1", TrustScore: 95, IsActive: true}))
	require.NoError(t, src.CreateFile(testFile("aa", "alice")))
	require.NoError(t, src.SetGrant("aa", "bob", true))

	snap, err := src.Snapshot()
	require.NoError(t, err)

	dst := newTestLedger(t)
	n, err := dst.Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	node, err := dst.Node("n1")
	require.NoError(t, err)
	assert.Equal(t, 95, node.TrustScore)

	has, err := dst.HasGrant("aa", "bob")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = dst.Restore([]byte("garbage"))
	assert.Error(t, err)
}

// TestSnapshotChecksumMismatch tests that edited entries are rejected.
func TestSnapshotChecksumMismatch(t *testing.T) {
	src := newTestLedger(t)
	require.NoError(t, src.CreateNode(StorageNode{Identity: "n1", TrustScore: 95}))

	snap, err := src.Snapshot()
	require.NoError(t, err)

	raw, err := decompressSnapshot(snap)
	require.NoError(t, err)

	var body snapshotBody
	require.NoError(t, unmarshal(raw, &body))
	body.Entries[0].Value = []byte("tampered")

	edited, err := marshal(body)
	require.NoError(t, err)

	packed, err := compressSnapshot(edited)
	require.NoError(t, err)

	_, err = newTestLedger(t).Restore(packed)
	assert.ErrorContains(t, err, "checksum mismatch")
}

// TestSnapshotIsPointInTime tests that writes after the view is taken are excluded from every prefix.
func TestSnapshotIsPointInTime(t *testing.T) {
	src := newTestLedger(t)
	require.NoError(t, src.CreateNode(StorageNode{Identity: "n1", TrustScore: 95, IsActive: true}))

	view := src.db.NewSnapshot()

	require.NoError(t, src.CreateFile(testFile("aa", "alice")))
	_, err := src.UpdateNode("n1", func(n *StorageNode) error {
		n.TotalStored += 2
		return nil
	})
	require.NoError(t, err)

	snap, err := src.snapshotOf(view)
	require.NoError(t, err)

	dst := newTestLedger(t)
	n, err := dst.Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = dst.File("aa")
	assert.ErrorIs(t, err, ErrNotFound)

	node, err := dst.Node("n1")
	require.NoError(t, err)
	assert.Zero(t, node.TotalStored)
}
