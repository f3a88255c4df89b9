// Package audit maintains the per-entity hash chain over audit entries.
//
// Each entry's record_hash is the SHA-256 of its canonical JSON with
// record_hash left out, and prev_hash holds the record_hash of the previous
// entry in the same entity stream. The first entry of a stream has an empty
// prev_hash.
package audit

import (
	"crypto/sha256"
	"fmt"

	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/hexcodec"
	"github.com/gxp-audit/gxa/pkg/jsonutil"
	"github.com/gxp-audit/gxa/pkg/model"
)

// hashRecord is the hashed view of an entry. OccurredAt is rendered with the
// signing layout so the hash does not depend on the time zone a database
// driver hands back.
type hashRecord struct {
	ID            model.EntryID   `json:"id"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Action        model.Action    `json:"action"`
	ActorID       string          `json:"actor_id"`
	ActorIP       string          `json:"actor_ip"`
	ActorDevice   string          `json:"actor_device"`
	SessionID     string          `json:"session_id"`
	OccurredAt    string          `json:"occurred_at"`
	OldSnapshot   string          `json:"old_snapshot"`
	NewSnapshot   string          `json:"new_snapshot"`
	SignatureHash model.HashValue `json:"signature_hash"`
	Note          string          `json:"note"`
	PrevHash      model.HashValue `json:"prev_hash"`
}

// RecordHash computes the chain hash of e. The stored RecordHash is ignored.
func RecordHash(e *model.AuditEntry) (model.HashValue, error) {
	rec := hashRecord{
		ID:            e.ID,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		Action:        e.Action,
		ActorID:       e.ActorID,
		ActorIP:       e.ActorIP,
		ActorDevice:   e.ActorDevice,
		SessionID:     e.SessionID,
		OccurredAt:    signature.FormatTimestamp(e.OccurredAt),
		OldSnapshot:   e.OldSnapshot,
		NewSnapshot:   e.NewSnapshot,
		SignatureHash: e.SignatureHash,
		Note:          e.Note,
		PrevHash:      e.PrevHash,
	}
	data, err := jsonutil.CanonicalMarshal(rec)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	sum := sha256.Sum256(data)
	return model.HashValue(hexcodec.Encode(sum[:])), nil
}

// Link attaches e to the stream whose last record hash is prev and fills in
// its RecordHash. e must be fully populated, signature included.
func Link(prev model.HashValue, e *model.AuditEntry) error {
	e.PrevHash = prev
	h, err := RecordHash(e)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	e.RecordHash = h
	return nil
}

// Break describes the first inconsistency found in a stream.
type Break struct {
	EntryID model.EntryID `json:"entry_id"`
	Index   int           `json:"index"`
	Reason  string        `json:"reason"`
}

// VerifyChain checks one entity stream given oldest first. It returns nil
// for an intact stream and an ErrAuditChainBroken error otherwise.
func VerifyChain(entries []model.AuditEntry) (*Break, error) {
	var prev model.HashValue
	for i := range entries {
		e := &entries[i]
		if e.PrevHash != prev {
			return chainBreak(e, i, "prev_hash does not match previous record")
		}
		h, err := RecordHash(e)
		if err != nil {
			return nil, err
		}
		if h != e.RecordHash {
			return chainBreak(e, i, "record_hash mismatch")
		}
		prev = e.RecordHash
	}
	return nil, nil
}

func chainBreak(e *model.AuditEntry, i int, reason string) (*Break, error) {
	b := &Break{EntryID: e.ID, Index: i, Reason: reason}
	return b, errclass.ErrAuditChainBroken.WithMessagef("entry %s: %s", e.ID, reason)
}
