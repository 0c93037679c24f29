// Package store provides persistent storage for the agent mesh using SQLite.
//
// # Architecture
//
// The Store interface is the single source of truth for every entity in the
// mesh. Services (registry, router, groups, memory) hold no private copies;
// they read-modify-write through the store on every operation, which makes
// the store the natural point for concurrency control.
//
// # Data Models
//
//   - Agent: registered agent process; name uniquely determines id forever
//   - Skill: capability declared by an agent at registration
//   - Message: agent-to-agent message with delivery status lifecycle
//   - Group/Membership: named agent collections with per-member roles
//   - MemoryEntry: per-(group, key) versioned shared state
//
// # Concurrency
//
// Read-modify-write sequences that must not race run inside a single
// transaction opened with _txlock=immediate:
//
//   - RegisterAgent: identity-preserving upsert keyed by name
//   - WriteMemory: version increment on the existing row
//   - TransitionMessage: guarded UPDATE against the current status
//
// Cross-record operations (batch message creation for broadcasts) use a
// transaction for convenience but carry no all-or-nothing guarantee at the
// contract level.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as fixed-width RFC 3339 TEXT so lexicographic
// ORDER BY matches chronological order.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateMember: (group, agent) pair already exists
//   - ErrIllegalTransition: status update not permitted from current status
//   - ErrReadonlyEntry: non-creator write/delete of a readonly memory entry
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore with a t.TempDir() path, or ":memory:" for throwaway
// fixtures.
package store
