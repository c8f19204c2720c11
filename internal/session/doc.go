// Package session provides the conversation data model, its PostgreSQL
// persistence, and the process-wide in-memory cache that front-ends it.
//
// # Cache and store
//
// [Cache] holds one entry per session with per-entry locking. Message lists
// hydrate lazily on first access; an explicit loaded flag distinguishes
// "not yet fetched" from "genuinely empty". [Cache.List] is a wholesale
// destructive refresh from the store.
//
// Mutations update the cache first, then the store, so a store failure
// leaves the cache ahead; such errors satisfy errors.Is(err, ErrCacheAhead)
// instead of being masked.
//
// # Transaction safety
//
// [Store.AppendTurn] persists a whole turn as one unit: it locks the
// session row with SELECT ... FOR UPDATE, inserts the prompt and completion
// messages, and advances the cumulative token counter. Any failure rolls
// the unit back; partial application is never visible.
package session
