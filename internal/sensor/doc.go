// Package sensor projects AirVPN snapshots into individually addressable
// entity states and fans them out to publishing sinks.
//
// Projection is table driven: every Description names one upstream field and
// how to present it. Account fields become entities of a single account
// device; device fields become entities of one device per upstream device;
// session fields attach to the device whose name matches the session's
// device_name and are omitted when no session matches.
//
// Manager subscribes to a coordinator, keeps the latest projected states and
// publishes them to every Sink after each successful refresh. Availability
// follows the coordinator's last result.
package sensor
