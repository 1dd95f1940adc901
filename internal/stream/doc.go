// Package stream pushes entity states to WebSocket clients.
//
// A client that connects to the Hub first receives a "states" event holding
// every current state, then an "availability" event once availability is
// known. After that it receives a "state_changed" event for each publish that
// changes at least one state, and an "availability" event when availability
// flips. Clients that fall behind are disconnected.
package stream
