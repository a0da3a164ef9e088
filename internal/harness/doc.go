// Package harness runs replication scenarios against real replicas.
//
// Every replica in a scenario runs its own event loop over an in-memory
// store. All replicas share one manually delivered bus and one fake clock,
// so the harness alone decides when frames arrive and when timers fire.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	replicas:
//	  - name: a
//	    seed: 1
//	  - name: b
//	    seed: 2
//	    deferred: true
//	steps:
//	  - action: advance
//	    duration: 1500ms
//	  - action: post
//	    replica: a
//	    content: "hello @Player_2"
//	  - action: start
//	    replica: b
//	  - action: settle
//	assertions:
//	  - type: posts
//	    replica: b
//	    ids: [a-1]
//	  - type: converged
//
// A replica's origin is its name, its generated identity is
// Player_<seed>, and the ids it mints are <name>-1, <name>-2, and so on.
//
// # Steps
//
// Intents (post, reply, delete, like, share, view, watch, dm, follow,
// rename, bio) apply on the named replica at once. Their frames wait on
// the bus until a settle or advance step, which lets a scenario build
// arbitrary interleavings. redeliver replays every frame seen so far,
// optionally in reverse. A step that declares error: must fail with an
// error containing that text.
//
// # Assertion Types
//
//   - state: replica is SYNCING or LIVE
//   - posts: exact root post ids, newest first
//   - post: existence, counters, reply count, or content of one post
//   - size: total posts including replies
//   - converged: every started replica holds the same content
//   - inbox, notifications, online, viewers: counts
//   - profile: a directory entry's followers, following, or bio
//   - me: the replica's own handle
//
// # Deterministic Testing
//
// Frames are delivered one endpoint at a time in declaration order and
// each replica is drained before the next one receives, so renders are
// identical across runs and can be compared with golden files.
package harness
