// Package server exposes the bridge over HTTP.
//
// Routes:
//
//	GET  /health          healthy, degraded (serving a stale snapshot) or unhealthy
//	GET  /api/status      coordinator refresh status
//	GET  /api/states      projected entity states
//	GET  /api/snapshot    the current raw snapshot
//	POST /api/refresh     trigger a refresh and wait for its result
//	GET  /api/websocket   live state stream, when configured
//	GET  {metrics path}   Prometheus metrics, when configured
package server
