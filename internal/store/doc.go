// Package store provides the durable key/value storage replicas use as a
// write-through cache of their in-memory model.
//
// One SQLite database file plays the role of an origin: every process that
// opens the same file shares the same keys. There is no cross-process
// locking beyond SQLite's own; two processes saving the same key race and
// the last writer wins.
//
// # Keys
//
//   - KeyFeed: JSON forest of posts
//   - KeyMessages: JSON direct-message log
//   - KeyIdentity: JSON profile of the local user
//
// # Database Configuration
//
//   - WAL mode: concurrent readers while another process writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks held by sibling processes
//
// The same database also hosts the bus_frames table used by the SQLite
// broadcast bus (see internal/bus).
package store
