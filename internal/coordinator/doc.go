// Package coordinator implements the Polling Coordinator.
//
// The Polling Coordinator:
//   - Owns the single current model.Snapshot
//   - Refreshes it synchronously on Start, then on a fixed interval and on demand
//   - Coalesces overlapping refresh requests into the in-flight attempt
//   - Keeps the last good snapshot when a cycle fails and exposes the failure in Status
//   - Notifies snapshot subscribers once per successful cycle and status
//     subscribers once per cycle
package coordinator
