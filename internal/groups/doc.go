// ABOUTME: Package documentation for the groups package
// ABOUTME: Describes membership rules and group broadcast

// Package groups manages named agent collections and group-scoped broadcast.
// Membership pairs are unique, the creator joins as admin at creation time,
// and group broadcasts exclude the sender and start in status delivered.
package groups
