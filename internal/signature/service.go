package signature

import (
	"strings"
	"time"

	"github.com/gxp-audit/gxa/pkg/metrics"
	"github.com/gxp-audit/gxa/pkg/model"
)

// Service signs new audit entries and verifies stored ones.
type Service struct {
	now     func() time.Time
	metrics *metrics.Registry
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used by Stamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records verification results on r.
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Service) { s.metrics = r }
}

// NewService creates a Service using the wall clock.
func NewService(opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time in UTC truncated to microseconds, the
// precision every supported database stores exactly.
func (s *Service) Now() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Sign fixes OccurredAt if unset and sets SignatureHash over the V1 payload.
func (s *Service) Sign(e *model.AuditEntry) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.Now()
	} else {
		e.OccurredAt = e.OccurredAt.UTC().Truncate(time.Microsecond)
	}
	e.SignatureHash = ComputeHash(EntryPayload(e))
}

// VerifyEntry recomputes the V1 payload digest and compares it with the
// stored signature.
func (s *Service) VerifyEntry(e *model.AuditEntry) bool {
	ok := Verify(EntryPayload(e), string(e.SignatureHash))
	s.metrics.RecordSignatureCheck(ok)
	return ok
}

// Status classifies an entry's signature for display. An entry without a
// stored signature is unavailable rather than invalid.
func (s *Service) Status(e *model.AuditEntry) model.SignatureStatus {
	if strings.TrimSpace(string(e.SignatureHash)) == "" {
		return model.SignatureUnavailable
	}
	if s.VerifyEntry(e) {
		return model.SignatureValid
	}
	return model.SignatureInvalid
}
