// ABOUTME: Package documentation for the client package
// ABOUTME: Describes the Go SDK for the mesh HTTP API

// Package client is a Go SDK for the mesh hub.
//
// A [Client] wraps every hub operation with typed requests and responses.
// Hub failures come back as *apperr.Error values carrying the hub's
// taxonomy code, so callers can branch with apperr.Is without parsing
// response bodies. StreamEvents handles the token mint and WebSocket dial
// for the event stream.
package client
