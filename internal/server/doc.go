// Package server exposes account linking, playlist sync and the friend graph over HTTP.
//
// # Routing
//
// [NewRouter] builds a chi router with request IDs, real-IP resolution, a charmbracelet/log
// request logger and panic recovery, then mounts every [Handler]. [App] is the web service's
// handler and [OAuthHandler] is the one-shot loopback callback used by the CLI login command.
//
// # Sessions
//
// [SessionStore] keeps sessions in memory behind a random cookie. The OAuth state travels in a
// short-lived per-platform cookie and is cleared on the first callback.
//
// # Errors
//
// Domain errors map onto status codes: token failures are 401, platform listing failures 502,
// unknown platforms 404, visibility failures 403, bad input 400 and uniqueness conflicts 409.
// Bodies are JSON objects with a single error field.
package server
