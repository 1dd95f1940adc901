// Package api provides the AirVPN REST API client.
//
// Endpoints (all GET, authenticated by the "key" query parameter):
//   - /userinfo/  account attributes under "user", active sessions under "sessions"
//   - /devices/   registered devices under "devices"
//
// Production base URL: https://airvpn.org/api
package api
