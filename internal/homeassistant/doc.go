// Package homeassistant publishes entity states to Home Assistant over MQTT.
//
// Each entity is announced with a retained discovery config on
//
//	{discovery_prefix}/{platform}/airvpn/{unique_id}/config
//
// and its value is published to {base}/{unique_id}/state with extra
// attributes as JSON on {base}/{unique_id}/attributes. Every entity shares
// the availability topic {base}/status, which carries "online" or "offline"
// and doubles as the MQTT last will.
//
// When Home Assistant announces "online" on {discovery_prefix}/status the
// discovery configs and last states are published again.
package homeassistant
