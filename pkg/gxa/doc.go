// Package gxa provides the library API of the gxa audit store.
//
// A Client is built in two phases. New validates configuration and wires
// nothing that touches the outside world; Initialize opens the database,
// applies migrations, registers restore handlers and starts event delivery.
// Close releases everything Initialize acquired.
//
// # Concurrency Safety
//
// An initialized Client is safe for concurrent use. Writes to the same
// entity (audited mutations and rollbacks alike) are serialized by a
// per-entity lock; writes to different entities proceed in parallel.
// Processes sharing one database are protected by revision-guarded
// updates, which surface as ErrConcurrencyConflict.
//
// # Usage
//
//	client, err := gxa.New(cfg)
//	if err := client.Initialize(ctx); err != nil { ... }
//	defer client.Close()
//
//	rc := model.RequestContext{ActorID: "qa-lead", SessionID: sid}
//	entry, err := client.Put(ctx, rc, "machines", "42", `{"code":"M-42","name":"Autoclave"}`, "")
//	outcome := client.RequestRollback(ctx, rc, "machines", "42", entry.ID, rollback.Static(true))
package gxa
