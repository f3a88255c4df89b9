package rollback

import (
	"strings"

	"github.com/gxp-audit/gxa/pkg/jsonutil"
	"github.com/gxp-audit/gxa/pkg/model"
)

// IsEligible reports whether e carries what a rollback needs: a prior
// snapshot that is not the empty object and a full entity identity. It does
// not look at the signature.
func IsEligible(e *model.AuditEntry) bool {
	if e == nil {
		return false
	}
	if strings.TrimSpace(e.EntityType) == "" || strings.TrimSpace(e.EntityID) == "" {
		return false
	}
	return !jsonutil.IsEmptySnapshot(e.OldSnapshot)
}
