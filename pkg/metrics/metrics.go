// Package metrics exports Prometheus metrics for rollback, signature and audit
// activity.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Registry holds all gxa metrics on a dedicated Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	rollbacks        *prometheus.CounterVec
	rollbackDuration prometheus.Histogram
	signatureChecks  *prometheus.CounterVec
	auditEntries     *prometheus.CounterVec
}

// NewRegistry creates a registry with the Go runtime and process collectors
// plus the gxa collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gxa_rollback_total",
			Help: "Rollback requests by terminal outcome.",
		}, []string{"outcome"}),
		rollbackDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gxa_rollback_duration_seconds",
			Help:    "Wall time of rollback execution from eligibility check to commit.",
			Buckets: prometheus.DefBuckets,
		}),
		signatureChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gxa_signature_verifications_total",
			Help: "Audit entry signature verifications by result.",
		}, []string{"result"}),
		auditEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gxa_audit_entries_total",
			Help: "Audit entries appended by action.",
		}, []string{"action"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.rollbacks,
		r.rollbackDuration,
		r.signatureChecks,
		r.auditEntries,
	)
	return r
}

// RecordRollback records one rollback outcome and its duration.
func (r *Registry) RecordRollback(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.rollbacks.WithLabelValues(outcome).Inc()
	r.rollbackDuration.Observe(duration.Seconds())
}

// RecordSignatureCheck records a signature verification result.
func (r *Registry) RecordSignatureCheck(valid bool) {
	if r == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	r.signatureChecks.WithLabelValues(result).Inc()
}

// RecordAuditEntry records an appended audit entry.
func (r *Registry) RecordAuditEntry(action string) {
	if r == nil {
		return
	}
	r.auditEntries.WithLabelValues(action).Inc()
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
