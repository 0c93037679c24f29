// ABOUTME: Package documentation for the registry package
// ABOUTME: Describes identity-preserving registration and derived presence

// Package registry manages agent identity and presence.
//
// # Registration
//
// Agents register by name. Registering an existing name refreshes the row
// (endpoint, capabilities, skills, last_seen) but keeps the original agent
// ID, so an agent that restarts keeps its identity and its message history.
// Skills are replaced wholesale on every registration.
//
// # Presence
//
// The registry never marks an agent offline. "Online" is derived at read
// time as now - last_seen < presence age, refreshed by Heartbeat.
package registry
