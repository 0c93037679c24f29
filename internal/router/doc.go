// ABOUTME: Package documentation for the router package
// ABOUTME: Describes the message delivery lifecycle and timeout sweep

// Package router moves messages between agents and tracks their delivery
// lifecycle.
//
// # Lifecycle
//
// A direct send creates a message in status pending. Legal transitions:
//
//	pending    -> delivered, failed, timeout
//	delivered  -> processing
//	processing -> completed, failed, timeout
//
// completed, failed, and timeout are terminal except through Retry, which
// requeues a failed or timed-out message as pending. No other path reaches
// pending a second time.
//
// # Timeouts
//
// Senders may bound delivery with a timeout. The sweeper periodically moves
// expired pending and processing messages to timeout; messages sent without
// a timeout are never swept.
package router
