// ABOUTME: Package documentation for the api package
// ABOUTME: Describes routes, auth, and error mapping

// Package api exposes the mesh over HTTP.
//
// # Routes
//
// All functional routes live under /v1 behind the shared secret. /healthz is
// open, and /v1/events authenticates with a minted subscriber token instead
// of a header so WebSocket clients can connect from restricted environments.
//
// # Error Mapping
//
// Handlers never invent error shapes. Service errors carry an apperr code
// which maps one-to-one onto an HTTP status: validation 400, unauthorized
// 401, forbidden 403, not_found 404, conflict 409, internal 500. Internal
// causes are logged server-side and never leak into response bodies.
package api
