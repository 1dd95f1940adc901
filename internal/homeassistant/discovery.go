package homeassistant

import (
	"github.com/rickgao/airvpn-bridge/internal/sensor"
	"github.com/rickgao/airvpn-bridge/internal/version"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	payloadOn      = "ON"
	payloadOff     = "OFF"
	payloadUnknown = "None"

	nodeID = "airvpn"
)

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

type discoveryConfig struct {
	Name                string          `json:"name"`
	UniqueID            string          `json:"unique_id"`
	ObjectID            string          `json:"object_id"`
	StateTopic          string          `json:"state_topic"`
	JSONAttributesTopic string          `json:"json_attributes_topic,omitempty"`
	AvailabilityTopic   string          `json:"availability_topic"`
	PayloadAvailable    string          `json:"payload_available"`
	PayloadNotAvailable string          `json:"payload_not_available"`
	PayloadOn           string          `json:"payload_on,omitempty"`
	PayloadOff          string          `json:"payload_off,omitempty"`
	UnitOfMeasurement   string          `json:"unit_of_measurement,omitempty"`
	Icon                string          `json:"icon,omitempty"`
	DeviceClass         string          `json:"device_class,omitempty"`
	StateClass          string          `json:"state_class,omitempty"`
	EntityCategory      string          `json:"entity_category,omitempty"`
	Device              discoveryDevice `json:"device"`
}

// Topics derives every topic from the two configured prefixes.
type Topics struct {
	DiscoveryPrefix string
	Base            string
}

// Config returns the discovery topic for an entity.
func (t Topics) Config(e sensor.Entity) string {
	return t.DiscoveryPrefix + "/" + string(e.Platform()) + "/" + nodeID + "/" + e.UniqueID + "/config"
}

// State returns the state topic for an entity.
func (t Topics) State(e sensor.Entity) string {
	return t.Base + "/" + e.UniqueID + "/state"
}

// Attributes returns the attributes topic for an entity.
func (t Topics) Attributes(e sensor.Entity) string {
	return t.Base + "/" + e.UniqueID + "/attributes"
}

// Availability returns the shared availability topic.
func (t Topics) Availability() string {
	return t.Base + "/status"
}

// HAStatus returns the topic Home Assistant announces its own status on.
func (t Topics) HAStatus() string {
	return t.DiscoveryPrefix + "/status"
}

func (t Topics) discovery(e sensor.Entity) discoveryConfig {
	d := e.Description
	cfg := discoveryConfig{
		Name:                e.Name,
		UniqueID:            e.UniqueID,
		ObjectID:            e.UniqueID,
		StateTopic:          t.State(e),
		AvailabilityTopic:   t.Availability(),
		PayloadAvailable:    payloadOnline,
		PayloadNotAvailable: payloadOffline,
		UnitOfMeasurement:   d.Unit,
		Icon:                d.Icon,
		DeviceClass:         d.DeviceClass,
		StateClass:          d.StateClass,
		EntityCategory:      d.Category,
		Device: discoveryDevice{
			Identifiers:  []string{e.Device.ID},
			Name:         e.Device.Name,
			Model:        e.Device.Model,
			Manufacturer: e.Device.Manufacturer,
			SWVersion:    version.Version,
		},
	}
	if d.Humanize != sensor.HumanizeNone {
		cfg.JSONAttributesTopic = t.Attributes(e)
	}
	if e.Platform() == sensor.PlatformBinarySensor {
		cfg.PayloadOn = payloadOn
		cfg.PayloadOff = payloadOff
	}
	return cfg
}

// statePayload renders a state the way Home Assistant's MQTT platforms
// expect: ON/OFF for binary sensors and "None" for unknown.
func statePayload(st sensor.State) string {
	if !st.Known() {
		return payloadUnknown
	}
	s := st.String()
	if st.Entity.Platform() == sensor.PlatformBinarySensor {
		if s == "on" {
			return payloadOn
		}
		return payloadOff
	}
	return s
}
