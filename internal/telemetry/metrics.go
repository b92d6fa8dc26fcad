package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/docsign"
)

// Verification outcomes recorded on docsign.verifications.total
const (
	OutcomeValid     = "valid"
	OutcomeInvalid   = "invalid"
	OutcomeMalformed = "malformed"
	OutcomeNotSigned = "not_signed"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Key and certificate issuance
	KeysGeneratedTotal      metric.Int64Counter
	KeyGenerateDuration     metric.Float64Histogram
	CertificatesIssuedTotal metric.Int64Counter

	// Signing
	SignaturesCreatedTotal metric.Int64Counter
	SignConflictsTotal     metric.Int64Counter

	// Verification
	VerificationsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.KeysGeneratedTotal, _ = meter.Int64Counter(
		"docsign.keys.generated.total",
		metric.WithDescription("Total number of RSA key pairs generated"),
		metric.WithUnit("{key}"),
	)

	m.KeyGenerateDuration, _ = meter.Float64Histogram(
		"docsign.keys.generate.duration",
		metric.WithDescription("Duration of RSA key pair generation"),
		metric.WithUnit("ms"),
	)

	m.CertificatesIssuedTotal, _ = meter.Int64Counter(
		"docsign.certificates.issued.total",
		metric.WithDescription("Total number of certificates issued"),
		metric.WithUnit("{certificate}"),
	)

	m.SignaturesCreatedTotal, _ = meter.Int64Counter(
		"docsign.signatures.created.total",
		metric.WithDescription("Total number of document signatures stored"),
		metric.WithUnit("{signature}"),
	)

	m.SignConflictsTotal, _ = meter.Int64Counter(
		"docsign.signatures.conflicts.total",
		metric.WithDescription("Total number of sign attempts rejected because the document was already signed"),
		metric.WithUnit("{attempt}"),
	)

	m.VerificationsTotal, _ = meter.Int64Counter(
		"docsign.verifications.total",
		metric.WithDescription("Total number of signature verifications by outcome"),
		metric.WithUnit("{verification}"),
	)

	return m
}

// RecordKeyGeneration records keys generated key pairs of the given size, taking elapsed in total.
func (m *Metrics) RecordKeyGeneration(ctx context.Context, bits int, keys int64, elapsed time.Duration) {
	if keys <= 0 {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("bits", bits))
	m.KeysGeneratedTotal.Add(ctx, keys, attrs)
	m.KeyGenerateDuration.Record(ctx, float64(elapsed.Milliseconds())/float64(keys), attrs)
}

// RecordCertificates records issued certificates by role.
func (m *Metrics) RecordCertificates(ctx context.Context, role string, n int64) {
	m.CertificatesIssuedTotal.Add(ctx, n, metric.WithAttributes(attribute.String("role", role)))
}

// RecordVerification records a verification outcome.
func (m *Metrics) RecordVerification(ctx context.Context, outcome string) {
	m.VerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
