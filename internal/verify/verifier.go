// Package verify checks stored audit entries for tampering: every entry's
// signature and the hash chain of every entity stream.
package verify

import (
	"context"
	"fmt"

	"github.com/gxp-audit/gxa/internal/audit"
	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/pkg/progress"
	"github.com/gxp-audit/gxa/pkg/model"
)

// Severity levels.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// Store is the read access the verifier needs.
type Store interface {
	Streams(ctx context.Context) ([]model.EntityKey, error)
	StreamOldestFirst(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error)
}

// EntryFailure is one audit entry whose signature did not verify.
type EntryFailure struct {
	EntryID model.EntryID         `json:"entry_id"`
	Action  model.Action          `json:"action"`
	Status  model.SignatureStatus `json:"status"`
}

// Result contains verification results for one entity stream.
type Result struct {
	Stream          model.EntityKey `json:"stream"`
	Entries         int             `json:"entries"`
	SignaturesValid bool            `json:"signatures_valid"`
	ChainValid      bool            `json:"chain_valid"`
	TamperDetected  bool            `json:"tamper_detected"`
	Severity        string          `json:"severity,omitempty"`
	Error           string          `json:"error,omitempty"`
	BadSignatures   []EntryFailure  `json:"bad_signatures,omitempty"`
	ChainBreak      *audit.Break    `json:"chain_break,omitempty"`
}

// Verifier performs tamper checks on the audit log.
type Verifier struct {
	store  Store
	signer *signature.Service
}

// NewVerifier creates a new verifier.
func NewVerifier(store Store, signer *signature.Service) *Verifier {
	return &Verifier{store: store, signer: signer}
}

// VerifyStream verifies one entity stream. Tampering is reported in the
// Result; the error is reserved for storage failures.
func (v *Verifier) VerifyStream(ctx context.Context, key model.EntityKey) (*Result, error) {
	entries, err := v.store.StreamOldestFirst(ctx, key.Type, key.ID)
	if err != nil {
		return nil, err
	}
	result := &Result{
		Stream:          key,
		Entries:         len(entries),
		SignaturesValid: true,
	}

	for i := range entries {
		e := &entries[i]
		if status := v.signer.Status(e); status != model.SignatureValid {
			result.SignaturesValid = false
			result.BadSignatures = append(result.BadSignatures, EntryFailure{EntryID: e.ID, Action: e.Action, Status: status})
		}
	}

	brk, err := audit.VerifyChain(entries)
	result.ChainValid = err == nil
	result.ChainBreak = brk

	switch {
	case !result.ChainValid:
		result.TamperDetected = true
		result.Severity = SeverityCritical
		result.Error = err.Error()
	case !result.SignaturesValid:
		result.TamperDetected = true
		result.Severity = SeverityCritical
		result.Error = fmt.Sprintf("%d entries with invalid signature", len(result.BadSignatures))
	}
	return result, nil
}

// VerifyAll verifies every stream in the audit log.
func (v *Verifier) VerifyAll(ctx context.Context) ([]*Result, error) {
	return v.VerifyAllProgress(ctx, progress.Noop)
}

// VerifyAllProgress is VerifyAll reporting each finished stream to cb.
func (v *Verifier) VerifyAllProgress(ctx context.Context, cb progress.Callback) ([]*Result, error) {
	if cb == nil {
		cb = progress.Noop
	}
	keys, err := v.store.Streams(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*Result, 0, len(keys))
	for i, key := range keys {
		r, err := v.VerifyStream(ctx, key)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
		cb(i+1, len(keys), key.String())
	}
	return results, nil
}

// Tampered reports whether any result detected tampering.
func Tampered(results []*Result) bool {
	for _, r := range results {
		if r.TamperDetected {
			return true
		}
	}
	return false
}
