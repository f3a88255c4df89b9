// Package entity is the catalog of audited entity types: their Go
// representation, validation, display names and restore handlers.
package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gxp-audit/gxa/internal/mutation"
	"github.com/gxp-audit/gxa/internal/restore"
	"github.com/gxp-audit/gxa/pkg/model"
)

// Entity type names.
const (
	TypeMachines = "machines"
	TypeAssets   = "assets"
	TypeParts    = "parts"
	TypeSettings = "settings"
)

// Writer is the untyped face of an AuditedMutation, used by the CLI and the
// HTTP API where entity bodies arrive as JSON.
type Writer interface {
	Put(ctx context.Context, rc model.RequestContext, entityID, body, note string) (*model.AuditEntry, error)
	Delete(ctx context.Context, rc model.RequestContext, entityID, note string) (*model.AuditEntry, error)
}

type kind interface {
	handler() restore.Handler
	displayName(snapshot string) (string, bool)
	writer(rec *mutation.Recorder) (Writer, error)
}

type typed[T model.DisplayNamer] struct {
	name string
}

// handler restores any well-formed object; T's validation only guards new
// writes.
func (k typed[T]) handler() restore.Handler {
	return restore.SnapshotHandler(k.name)
}

// displayName decodes leniently: old snapshots may carry fields the
// current struct no longer has.
func (k typed[T]) displayName(snapshot string) (string, bool) {
	var v T
	if err := json.Unmarshal([]byte(snapshot), &v); err != nil {
		return "", false
	}
	return v.DisplayName()
}

func (k typed[T]) writer(rec *mutation.Recorder) (Writer, error) {
	m, err := mutation.For[T](rec, k.name)
	if err != nil {
		return nil, err
	}
	return jsonWriter[T]{m: m}, nil
}

type jsonWriter[T any] struct {
	m *mutation.AuditedMutation[T]
}

func (w jsonWriter[T]) Put(ctx context.Context, rc model.RequestContext, entityID, body, note string) (*model.AuditEntry, error) {
	v, err := restore.DecodeStrict[T](body)
	if err != nil {
		return nil, err
	}
	return w.m.Put(ctx, rc, entityID, v, note)
}

func (w jsonWriter[T]) Delete(ctx context.Context, rc model.RequestContext, entityID, note string) (*model.AuditEntry, error) {
	return w.m.Delete(ctx, rc, entityID, note)
}

var catalog = map[string]kind{
	TypeMachines: typed[Machine]{name: TypeMachines},
	TypeAssets:   typed[Asset]{name: TypeAssets},
	TypeParts:    typed[Part]{name: TypeParts},
	TypeSettings: typed[Setting]{name: TypeSettings},
}

// Types lists the catalog's entity types in sorted order.
func Types() []string {
	out := make([]string, 0, len(catalog))
	for t := range catalog {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Known reports whether entityType is in the catalog.
func Known(entityType string) bool {
	_, ok := catalog[entityType]
	return ok
}

// RegisterHandlers registers a restore handler for every catalog type.
func RegisterHandlers(reg *restore.Registry) error {
	for _, t := range Types() {
		if err := reg.Register(t, catalog[t].handler()); err != nil {
			return fmt.Errorf("register %s: %w", t, err)
		}
	}
	return nil
}

// DisplayName returns the human-readable name held in a snapshot of
// entityType. It has the signature of rollback.DisplayNameFunc.
func DisplayName(entityType, snapshot string) (string, bool) {
	k, ok := catalog[entityType]
	if !ok {
		return "", false
	}
	return k.displayName(snapshot)
}

// Writers builds one Writer per catalog type on top of rec.
func Writers(rec *mutation.Recorder) (map[string]Writer, error) {
	out := make(map[string]Writer, len(catalog))
	for t, k := range catalog {
		w, err := k.writer(rec)
		if err != nil {
			return nil, err
		}
		out[t] = w
	}
	return out, nil
}
