// Package smartthings provides the SmartThings cloud API client.
//
// This package manages:
//   - Authenticated HTTP requests with bearer tokens
//   - Bounded retry with fixed backoff for transient failures
//   - Client-side sliding-window rate limiting
//   - TTL caching of device status payloads with lazy expiry
//   - A typed error taxonomy (sentinel errors + APIError)
//
// # Error Classification
//
// Every failure maps to exactly one sentinel: ErrUnauthorized and
// ErrForbidden are permanent (never retried); ErrRateLimited, ErrServer,
// ErrNetwork, and ErrTimeout are transient (retried up to the configured
// limit). Check with errors.Is; reach for *APIError when the HTTP status
// code matters.
//
// # Caching
//
// DeviceStatus serves from a per-device TTL cache. A successful
// ExecuteCommand invalidates the device's entry so the next read
// observes post-command state.
//
// # Rate Limiting
//
// The cloud allows roughly 10 requests per 10 seconds per token. The
// client enforces a configurable sliding window (default 8/10s) before
// each request, blocking until a slot frees up.
package smartthings
