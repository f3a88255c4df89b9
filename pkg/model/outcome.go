package model

import (
	"errors"

	"github.com/gxp-audit/gxa/pkg/errclass"
)

// RollbackOutcome is the terminal state of one rollback request.
type RollbackOutcome string

const (
	OutcomeCompleted           RollbackOutcome = "Completed"
	OutcomeIneligible          RollbackOutcome = "Ineligible"
	OutcomeSignatureInvalid    RollbackOutcome = "SignatureInvalid"
	OutcomeNoHandler           RollbackOutcome = "NoHandler"
	OutcomeConcurrencyConflict RollbackOutcome = "ConcurrencyConflict"
	OutcomeApplyFailed         RollbackOutcome = "ApplyFailed"
	OutcomeCancelled           RollbackOutcome = "Cancelled"
	OutcomeNotFound            RollbackOutcome = "NotFound"
)

var outcomeStatus = map[RollbackOutcome]string{
	OutcomeCompleted:           "Rollback completed: the entity was restored to its previous state.",
	OutcomeIneligible:          "This audit entry does not expose the data required for a rollback.",
	OutcomeSignatureInvalid:    "The audit entry signature is invalid; the snapshot cannot be trusted.",
	OutcomeNoHandler:           "Rollback is not supported for this entity type.",
	OutcomeConcurrencyConflict: "The entity changed after the audit entry was selected; reload and try again.",
	OutcomeApplyFailed:         "Rollback failed while writing to storage; no changes were made.",
	OutcomeCancelled:           "Rollback cancelled by the operator.",
	OutcomeNotFound:            "The audit entry was not found for this entity.",
}

// Status returns the human-readable status line for the outcome.
func (o RollbackOutcome) Status() string {
	if s, ok := outcomeStatus[o]; ok {
		return s
	}
	return "Unknown rollback outcome."
}

// OutcomeOf classifies an error returned by the rollback coordinator. A nil
// error is Completed; unclassified errors count as ApplyFailed.
func OutcomeOf(err error) RollbackOutcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, errclass.ErrIneligible):
		return OutcomeIneligible
	case errors.Is(err, errclass.ErrSignatureInvalid):
		return OutcomeSignatureInvalid
	case errors.Is(err, errclass.ErrNoHandler):
		return OutcomeNoHandler
	case errors.Is(err, errclass.ErrConcurrencyConflict):
		return OutcomeConcurrencyConflict
	case errors.Is(err, errclass.ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, errclass.ErrEntryNotFound):
		return OutcomeNotFound
	default:
		return OutcomeApplyFailed
	}
}
