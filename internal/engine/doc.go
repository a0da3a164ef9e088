// Package engine implements the replication engine: one Replica per
// process, each holding a private copy of the feed, the message log, the
// profile directory, and presence, kept in step with sibling processes by
// exchanging events over a broadcast bus.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// A Replica processes all work in a single goroutine (Run). Bus handlers
// and timer callbacks only enqueue; local intents enqueue a closure and
// wait for its result. Handlers run to completion one at a time, so the
// replica's state needs no locking.
//
// Lifecycle:
//  1. Hydrate posts, messages, and identity from the durable store.
//  2. Subscribe to the bus and broadcast SYNC_REQUEST.
//  3. Arm the sync timeout, heartbeat, and expiry sweep timers.
//  4. Serve until the context is cancelled; then cancel the subscription
//     and stop the timers.
//
// The replica starts SYNCING and becomes LIVE on the earlier of the sync
// timeout or an accepted SYNC_RESPONSE. There is no failure state.
//
// Every accepted mutation is written through to the store. Persistence and
// publish failures are logged and counted, never fatal.
//
// Readers observe state through View, an immutable snapshot swapped after
// every change, and through the Changes and Notifications channels.
package engine
