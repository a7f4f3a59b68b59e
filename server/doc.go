// Package server exposes a runtime's status over HTTP.
//
// It mounts three read-only Gin endpoints — GET /healthz, GET /status, and
// GET /metrics — on an h2c-wrapped http.Server with graceful shutdown. The
// server is optional: the runtime is fully usable as an in-process library
// without it.
package server
