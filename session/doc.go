// Package session implements the hybrid session state manager: an
// in-memory authoritative cache of active SessionStates, write-coalesced
// checkpointing to the persistent store, and TTL-based eviction of idle
// sessions.
//
// The manager is the only structure mutated from multiple logical flows
// (control-loop updates and the background eviction sweep). Its critical
// sections are short map operations; it never holds the cache lock across
// store I/O, model calls or tool executions.
package session
