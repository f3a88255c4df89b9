// Package signature computes and verifies the SHA-256 tamper-evidence digest
// bound to every audit entry.
//
// The signed payload is "action|note|occurred_at" with the timestamp in the
// fixed round-trip layout. The payload does not cover the snapshots or the
// actor fields; the per-entity hash chain in internal/audit covers those.
package signature

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gxp-audit/gxa/pkg/hexcodec"
	"github.com/gxp-audit/gxa/pkg/model"
)

// TimestampLayout renders UTC timestamps with seven fractional digits and a
// "Z" suffix, e.g. 2024-01-01T00:00:00.0000000Z.
const TimestampLayout = "2006-01-02T15:04:05.0000000Z07:00"

// PayloadV1 identifies the only payload scheme this package produces.
const PayloadV1 = "v1"

const digestHexLen = sha256.Size * 2

// FormatTimestamp renders t in TimestampLayout after converting it to UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CanonicalPayload joins the signed fields with "|". The separator is not
// escaped, so a note containing "|" can collide with a different
// action/note split of the same text.
func CanonicalPayload(action, note, occurredAt string) []byte {
	var b strings.Builder
	b.Grow(len(action) + len(note) + len(occurredAt) + 2)
	b.WriteString(action)
	b.WriteByte('|')
	b.WriteString(note)
	b.WriteByte('|')
	b.WriteString(occurredAt)
	return []byte(b.String())
}

// EntryPayload builds the V1 payload from an entry's signed fields.
func EntryPayload(e *model.AuditEntry) []byte {
	return CanonicalPayload(string(e.Action), e.Note, FormatTimestamp(e.OccurredAt))
}

// ComputeHash returns the SHA-256 of payload as 64 lowercase hex characters.
func ComputeHash(payload []byte) model.HashValue {
	sum := sha256.Sum256(payload)
	return model.HashValue(hexcodec.Encode(sum[:]))
}

// Verify reports whether expectedHex is the digest of payload. Malformed
// input yields false. The final comparison is constant time.
func Verify(payload []byte, expectedHex string) bool {
	trimmed := strings.TrimSpace(expectedHex)
	if trimmed == "" {
		return false
	}
	expected, err := hexcodec.Decode(trimmed)
	if err != nil {
		return false
	}
	actual := sha256.Sum256(payload)
	if len(expected) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, actual[:]) == 1
}

// WellFormed reports whether h has the wire shape of a digest: 64 lowercase
// hex characters.
func WellFormed(h model.HashValue) bool {
	if len(h) != digestHexLen {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
