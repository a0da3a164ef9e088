// Package feed defines the replicated social-feed model: posts with nested
// replies, profiles, direct messages, and the mutations the replication
// engine applies to them.
//
// # Tree Shape
//
// A feed is a forest of Post values. Every level is ordered newest first and
// an identifier appears at most once across the whole forest. The helpers in
// tree.go walk the forest depth-first and mutate it in place; callers own the
// slice they pass in.
//
// # Counters
//
// Likes and shares move only on a membership transition of LikedBy/SharedBy
// and never drop below zero. Views is always len(ViewedBy).
package feed
