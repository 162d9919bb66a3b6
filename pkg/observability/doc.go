// Package observability provides structured logging, Prometheus metrics,
// health checks and graceful shutdown for the relay service.
//
//   - Logger: structured JSON logging on stdlib slog
//   - Metrics: HTTP, delivery and cache counters/histograms
//   - HealthChecker: liveness and readiness probes over postgres and redis
//   - ShutdownManager: signal-driven graceful shutdown
package observability
