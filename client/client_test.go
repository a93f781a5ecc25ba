package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainVault/internal/access"
	"ChainVault/internal/api"
	"ChainVault/internal/codec"
	"ChainVault/internal/coordinator"
	"ChainVault/internal/ledger"
	"ChainVault/internal/selector"
	"ChainVault/internal/storage"
	"ChainVault/internal/transport"
	"ChainVault/internal/trust"
)

// newTestClient serves a full in-memory daemon and returns a client for it.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	db, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := ledger.New(db)
	reg := trust.New(l, trust.DefaultPolicy())
	ctl := access.New(l)

	key, err := codec.GenerateKey()
	require.NoError(t, err)

	engine, err := coordinator.New(coordinator.Config{MasterKey: key, FragmentSize: 128}, coordinator.Deps{
		Transport: transport.NewMemory(),
		Placer:    selector.New(reg),
		Trust:     reg,
		Files:     l,
		Access:    ctl,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.New(":0", api.Deps{Engine: engine, Nodes: reg, Access: ctl, Ledger: l}).Handler())
	t.Cleanup(srv.Close)

	return New(srv.URL)
}

// TestClientNodeLifecycle tests node registration and administration.
func TestClientNodeLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	for i, score := range []int{95, 85, 75, 60, 40} {
		_, err := c.RegisterNode(ctx, fmt.Sprintf("10.0.0.%d:9000", i+1), score)
		require.NoError(t, err)
	}

	_, err := c.RegisterNode(ctx, "10.0.0.1:9000", 50)

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusConflict, serr.Status)
	assert.Contains(t, serr.Message, "already registered")

	trusted, err := c.TrustedNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, trusted, 3)

	n, err := c.Node(ctx, "10.0.0.4:9000")
	require.NoError(t, err)
	assert.Equal(t, trust.LevelMedium, n.Level)

	n, err = c.SetTrust(ctx, "10.0.0.4:9000", 90)
	require.NoError(t, err)
	assert.True(t, n.Trusted)

	n, err = c.Deactivate(ctx, "10.0.0.4:9000")
	require.NoError(t, err)
	assert.False(t, n.IsActive)

	n, err = c.Activate(ctx, "10.0.0.4:9000")
	require.NoError(t, err)
	assert.True(t, n.IsActive)

	summary, err := c.NodeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)

	all, err := c.Nodes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

// TestClientFileFlow tests upload, sharing, retrieval and verification.
func TestClientFileFlow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	for i, score := range []int{95, 85, 75} {
		_, err := c.RegisterNode(ctx, fmt.Sprintf("node-%d", i+1), score)
		require.NoError(t, err)
	}

	data := []byte("hello world")
	rec, err := c.Upload(ctx, "alice", "hello.txt", data)
	require.NoError(t, err)
	assert.Equal(t, codec.ContentHash(data), rec.FileHash)

	got, err := c.File(ctx, rec.FileHash)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", got.FileName)

	_, err = c.Retrieve(ctx, rec.FileHash, "bob", coordinator.RetrieveOptions{})

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusForbidden, serr.Status)

	require.NoError(t, c.Grant(ctx, rec.FileHash, "alice", "bob"))

	ok, err := c.HasAccess(ctx, rec.FileHash, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	grantees, err := c.Grantees(ctx, rec.FileHash, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, grantees)

	entries, err := c.Files(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, access.KindGranted, entries[0].Access)

	resp, err := c.Retrieve(ctx, rec.FileHash, "bob", coordinator.RetrieveOptions{SimulateFailure: true})
	require.NoError(t, err)
	assert.Equal(t, data, resp.Data)
	assert.Len(t, resp.Report.FailedNodes, 1)

	require.NoError(t, c.Revoke(ctx, rec.FileHash, "alice", "bob"))

	ok, err = c.HasAccess(ctx, rec.FileHash, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := c.Verify(ctx, rec.FileHash, data)
	require.NoError(t, err)
	assert.True(t, v.IsValid)

	v, err = c.Verify(ctx, rec.FileHash, []byte("hello World"))
	require.NoError(t, err)
	assert.False(t, v.IsValid)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snap)
}
