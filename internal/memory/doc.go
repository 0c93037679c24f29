// ABOUTME: Package documentation for the memory package
// ABOUTME: Describes per-group versioned key-value memory

// Package memory implements per-group collective memory.
//
// Entries are keyed by (group, key) and carry a version that starts at 1 and
// increments by exactly 1 on every write. Writers must be group members.
// Entries of type readonly accept writes and deletes only from their
// creator. History is a projection of the live row; prior values are not
// retained.
package memory
