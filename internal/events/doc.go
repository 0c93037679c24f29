// ABOUTME: Package documentation for the events package
// ABOUTME: Describes the fan-out broker and its delivery guarantees

// Package events implements the mesh's pub/sub fan-out.
//
// Every mutating operation publishes exactly one event. Delivery is
// fire-and-forget: subscribers with full buffers lose events, and late
// subscribers receive nothing retroactively. Anything that must not be
// missed belongs in the store, not on the event stream.
package events
