// Package doctor runs health checks against a gxa database.
package doctor

import (
	"context"
	"fmt"

	"github.com/gxp-audit/gxa/internal/restore"
	"github.com/gxp-audit/gxa/internal/verify"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

// Store is what the checks read.
type Store interface {
	verify.Store
	Ping(ctx context.Context) error
	Migrated(ctx context.Context) bool
	AuditedEntityTypes(ctx context.Context) ([]string, error)
}

// Doctor performs health checks.
type Doctor struct {
	store    Store
	registry *restore.Registry
	verifier *verify.Verifier
}

// NewDoctor creates a new doctor. verifier may be nil, in which case strict
// checks are skipped.
func NewDoctor(store Store, registry *restore.Registry, verifier *verify.Verifier) *Doctor {
	return &Doctor{store: store, registry: registry, verifier: verifier}
}

// Check runs all diagnostic checks. Strict adds a full tamper scan of the
// audit log.
func (d *Doctor) Check(ctx context.Context, strict bool) *Result {
	result := &Result{Healthy: true, Findings: []Finding{}}

	if err := d.store.Ping(ctx); err != nil {
		result.add("database", err.Error(), "critical")
		return result
	}
	if !d.store.Migrated(ctx) {
		result.add("schema", "audit tables missing; run 'gxa init'", "critical")
		return result
	}

	d.checkHandlers(ctx, result)

	if strict && d.verifier != nil {
		d.checkIntegrity(ctx, result)
	}
	return result
}

func (d *Doctor) checkHandlers(ctx context.Context, result *Result) {
	types, err := d.store.AuditedEntityTypes(ctx)
	if err != nil {
		result.add("handlers", fmt.Sprintf("cannot list audited entity types: %v", err), "error")
		return
	}
	for _, t := range types {
		if _, ok := d.registry.Resolve(t); !ok {
			// Entries of this type can be listed and verified but never
			// rolled back.
			result.Findings = append(result.Findings, Finding{
				Category:    "handlers",
				Description: fmt.Sprintf("no restore handler registered for entity type '%s'", t),
				Severity:    "warning",
			})
		}
	}
}

func (d *Doctor) checkIntegrity(ctx context.Context, result *Result) {
	results, err := d.verifier.VerifyAll(ctx)
	if err != nil {
		result.add("integrity", fmt.Sprintf("verification failed: %v", err), "error")
		return
	}
	for _, r := range results {
		if r.TamperDetected {
			result.add("integrity", fmt.Sprintf("stream %s: %s", r.Stream, r.Error), "critical")
		}
	}
}

func (r *Result) add(category, description, severity string) {
	r.Findings = append(r.Findings, Finding{Category: category, Description: description, Severity: severity})
	r.Healthy = false
}
