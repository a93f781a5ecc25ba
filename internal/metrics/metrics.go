package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName scopes every instrument of the engine.
const meterName = "chainvault"

// Retrieval results recorded on chainvault.retrievals.
const (
	ResultOK          = "ok"
	ResultDenied      = "denied"
	ResultUnrecovered = "unrecoverable"
	ResultIntegrity   = "integrity"
	ResultError       = "error"
)

// Metrics records engine activity on OpenTelemetry instruments.
type Metrics struct {
	uploads           metric.Int64Counter
	uploadBytes       metric.Int64Counter
	retrievals        metric.Int64Counter
	nodeFailures      metric.Int64Counter
	integrityFailures metric.Int64Counter
	retrieveDuration  metric.Float64Histogram
}

// New creates the instruments on mp, or on the global provider when mp is nil.
func New(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(meterName)

	var (
		m   Metrics
		err error
	)

	if m.uploads, err = meter.Int64Counter("chainvault.uploads",
		metric.WithDescription("Files registered"),
		metric.WithUnit("{file}"),
	); err != nil {
		return nil, fmt.Errorf("uploads counter: %w", err)
	}

	if m.uploadBytes, err = meter.Int64Counter("chainvault.upload.bytes",
		metric.WithDescription("Plaintext bytes registered"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("upload bytes counter: %w", err)
	}

	if m.retrievals, err = meter.Int64Counter("chainvault.retrievals",
		metric.WithDescription("Retrievals by result"),
		metric.WithUnit("{retrieval}"),
	); err != nil {
		return nil, fmt.Errorf("retrievals counter: %w", err)
	}

	if m.nodeFailures, err = meter.Int64Counter("chainvault.node_failures",
		metric.WithDescription("Failed node operations observed during retrieval"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, fmt.Errorf("node failures counter: %w", err)
	}

	if m.integrityFailures, err = meter.Int64Counter("chainvault.integrity_failures",
		metric.WithDescription("Fragments or files that failed hash verification"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, fmt.Errorf("integrity failures counter: %w", err)
	}

	if m.retrieveDuration, err = meter.Float64Histogram("chainvault.retrieve.duration",
		metric.WithDescription("Retrieval latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return nil, fmt.Errorf("retrieve duration histogram: %w", err)
	}

	return &m, nil
}

// Upload records one registered file.
func (m *Metrics) Upload(ctx context.Context, size int64) {
	m.uploads.Add(ctx, 1)
	m.uploadBytes.Add(ctx, size)
}

// Retrieval records one retrieval and its latency.
func (m *Metrics) Retrieval(ctx context.Context, result string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("result", result))

	m.retrievals.Add(ctx, 1, attrs)
	m.retrieveDuration.Record(ctx, d.Seconds(), attrs)
}

// NodeFailure records a failed node operation.
func (m *Metrics) NodeFailure(ctx context.Context, node string) {
	m.nodeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("node", node)))
}

// IntegrityFailure records a hash mismatch.
func (m *Metrics) IntegrityFailure(ctx context.Context) {
	m.integrityFailures.Add(ctx, 1)
}
