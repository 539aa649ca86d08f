// Package observability provides structured logging and metrics
// for the gateway.
//
// This package implements:
//   - zap logger construction from level/format settings
//   - Prometheus collectors for the caches, the auth gateway and the
//     streaming proxy
//
// Every long-lived service receives a named *zap.Logger and a *Metrics.
package observability
