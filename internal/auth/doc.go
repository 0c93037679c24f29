// ABOUTME: Package documentation for the auth package
// ABOUTME: Describes shared-secret enforcement and subscriber tokens

// Package auth guards the mesh API.
//
// # Shared Secret
//
// Every mutating and reading endpoint sits behind [RequireSecret], which
// compares the X-API-Key header (or a Bearer Authorization header) against
// the single secret configured for the mesh. There are no per-agent
// credentials; any caller holding the secret may act as any agent.
//
// # Subscriber Tokens
//
// The event stream endpoint cannot always carry custom headers, so the API
// mints short-lived HS256 tokens signed with the same shared secret. A
// subscriber trades the secret for a token over the normal API, then presents
// the token as a query parameter when opening the WebSocket. [JWTVerifier]
// handles both minting and verification.
package auth
