// Package restore maps entity types to the handlers that write a snapshot
// back as the entity's current state.
package restore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/jsonutil"
	"github.com/gxp-audit/gxa/pkg/naming"
)

// SnapshotWriter is the storage capability a handler writes through. Inside
// a rollback it is bound to the rollback's transaction.
type SnapshotWriter interface {
	ApplyEntitySnapshot(ctx context.Context, entityType, entityID, snapshot string) error
}

// Handler restores one entity from a JSON snapshot.
type Handler func(ctx context.Context, w SnapshotWriter, entityID, snapshot string) error

// Validator is implemented by entity types that check their own invariants
// before being written.
type Validator interface {
	Validate() error
}

// Registry is a concurrency-safe map from entity type to Handler. It is
// normally filled at start-up and only read afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to entityType. Registering the same type again replaces
// the previous handler.
func (r *Registry) Register(entityType string, h Handler) error {
	if err := naming.ValidateEntityType(entityType); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("register %s: nil handler", entityType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[entityType] = h
	return nil
}

// Resolve returns the handler for entityType. A missing handler is a normal
// result, not an error.
func (r *Registry) Resolve(entityType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[entityType]
	return h, ok
}

// Types lists registered entity types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SnapshotHandler builds the Handler used for historical state. It accepts
// any JSON object and writes it back in canonical form. Business validation
// belongs to the forward mutation path: a prior state recorded under older
// rules must stay restorable.
func SnapshotHandler(entityType string) Handler {
	return func(ctx context.Context, w SnapshotWriter, entityID, snapshot string) error {
		canon, err := jsonutil.CanonicalSnapshot(snapshot)
		if err != nil {
			return errclass.ErrSnapshotInvalid.Wrapf(err, "decode snapshot")
		}
		if !strings.HasPrefix(canon, "{") {
			return errclass.ErrSnapshotInvalid.WithMessage("snapshot is not a JSON object")
		}
		return w.ApplyEntitySnapshot(ctx, entityType, entityID, canon)
	}
}

// JSONHandler builds a strict Handler for entities represented by T. The
// snapshot is decoded strictly into T, validated when T implements Validator
// and written back in canonical form. Use it only for types whose history
// always satisfies today's rules.
func JSONHandler[T any](entityType string) Handler {
	return func(ctx context.Context, w SnapshotWriter, entityID, snapshot string) error {
		v, err := DecodeStrict[T](snapshot)
		if err != nil {
			return err
		}
		canon, err := jsonutil.CanonicalMarshal(v)
		if err != nil {
			return errclass.ErrSnapshotInvalid.Wrap(err)
		}
		return w.ApplyEntitySnapshot(ctx, entityType, entityID, string(canon))
	}
}

// DecodeStrict decodes snapshot into T rejecting unknown fields and trailing
// data, then runs T's validation if it has one.
func DecodeStrict[T any](snapshot string) (*T, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(snapshot)))
	dec.DisallowUnknownFields()
	v := new(T)
	if err := dec.Decode(v); err != nil {
		return nil, errclass.ErrSnapshotInvalid.Wrapf(err, "decode snapshot")
	}
	if dec.More() {
		return nil, errclass.ErrSnapshotInvalid.WithMessage("trailing data after snapshot")
	}
	if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return nil, errclass.ErrSnapshotInvalid.Wrap(err)
		}
	}
	return v, nil
}
