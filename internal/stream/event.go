package stream

import (
	"maps"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/rickgao/airvpn-bridge/internal/sensor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event types.
const (
	EventStates       = "states"
	EventStateChanged = "state_changed"
	EventAvailability = "availability"
)

// Event is one message sent to clients.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Time      time.Time   `json:"time"`
	States    []StateView `json:"states,omitempty"`
	Removed   []string    `json:"removed,omitempty"`
	Available *bool       `json:"available,omitempty"`
}

// StateView is the wire form of a sensor.State.
type StateView struct {
	EntityID   string            `json:"entity_id"`
	Name       string            `json:"name"`
	Platform   string            `json:"platform"`
	DeviceID   string            `json:"device_id"`
	State      string            `json:"state"`
	Known      bool              `json:"known"`
	Unit       string            `json:"unit,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ViewOf converts a state to its wire form.
func ViewOf(st sensor.State) StateView {
	return StateView{
		EntityID:   st.Entity.UniqueID,
		Name:       st.Entity.Name,
		Platform:   string(st.Entity.Platform()),
		DeviceID:   st.Entity.Device.ID,
		State:      st.String(),
		Known:      st.Known(),
		Unit:       st.Entity.Description.Unit,
		Attributes: st.Attributes,
		UpdatedAt:  st.UpdatedAt,
	}
}

// sameValue ignores UpdatedAt so an unchanged value is not re-sent every cycle.
func sameValue(a, b StateView) bool {
	return a.State == b.State &&
		a.Known == b.Known &&
		a.Name == b.Name &&
		maps.Equal(a.Attributes, b.Attributes)
}

func newEvent(typ string) Event {
	return Event{ID: uuid.NewString(), Type: typ, Time: time.Now().UTC()}
}
