// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Refresh cycle count and duration by result
//   - Time of the last successful refresh
//   - Snapshot observer count
//   - Sink publish counts and failures
//   - Connected stream clients
package metrics
