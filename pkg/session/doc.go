// Package session persists the per-channel agent session and poll cursor.
//
// Invariants:
// - Channel keys are validated and path-safe.
// - Each record is loaded and saved whole; there is no partial update.
// - Writes go through a single in-process lock (one owning process per data dir).
// - AdvanceCursor overwrites unconditionally; monotonicity is the caller's job.
//
// Usage:
//
//	store, _ := session.NewFileStore("/tmp/chanbridge")
//	_ = store.PutSession(ctx, "C024BE91L", session.Session{ProjectPath: "/src/app", SessionID: "abc"})
//	sess, _ := store.GetSession(ctx, "C024BE91L")
//	_ = sess
package session
