package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// find returns the first point with name and matching attribute value.
func find(points []Point, name, key, value string) (Point, bool) {
	for _, p := range points {
		if p.Name == name && (key == "" || p.Attributes[key] == value) {
			return p, true
		}
	}

	return Point{}, false
}

// TestMetricsRecorded tests each instrument through the manual collector.
func TestMetricsRecorded(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()
	t.Cleanup(func() { c.Shutdown(ctx) })

	m, err := New(c.Provider())
	require.NoError(t, err)

	m.Upload(ctx, 11)
	m.Upload(ctx, 5)
	m.Retrieval(ctx, ResultOK, 20*time.Millisecond)
	m.Retrieval(ctx, ResultUnrecovered, 10*time.Millisecond)
	m.NodeFailure(ctx, "node-1")
	m.NodeFailure(ctx, "node-1")
	m.IntegrityFailure(ctx)

	points, err := c.Collect(ctx)
	require.NoError(t, err)

	p, ok := find(points, "chainvault.uploads", "", "")
	require.True(t, ok)
	assert.Equal(t, 2.0, p.Value)

	p, ok = find(points, "chainvault.upload.bytes", "", "")
	require.True(t, ok)
	assert.Equal(t, 16.0, p.Value)

	p, ok = find(points, "chainvault.retrievals", "result", ResultOK)
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Value)

	p, ok = find(points, "chainvault.node_failures", "node", "node-1")
	require.True(t, ok)
	assert.Equal(t, 2.0, p.Value)

	p, ok = find(points, "chainvault.retrieve.duration", "result", ResultOK)
	require.True(t, ok)
	assert.Equal(t, uint64(1), p.Count)
	assert.InDelta(t, 0.02, p.Value, 1e-9)

	_, ok = find(points, "chainvault.integrity_failures", "", "")
	assert.True(t, ok)
}

// TestNewGlobalProvider tests that a nil provider falls back to the global one.
func TestNewGlobalProvider(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.Upload(context.Background(), 1)
}
