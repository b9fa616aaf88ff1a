// Package main is the entry point for the prediction client service.
//
// The service fronts the remote AI prediction API with a resilient client:
// circuit breaker, exponential-backoff retries, background health probing,
// and cached or simulated fallback responses. An admin HTTP surface exposes
// invocation, status, metrics, and operational controls.
//
// Configuration comes from environment variables (12-factor); see
// internal/config for the full list. Startup fails fast with every
// configuration violation reported at once.
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
