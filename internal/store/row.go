package store

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rickgao/airvpn-bridge/internal/sensor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Row is one persisted entity state.
type Row struct {
	EntityID   string
	DeviceID   string
	Platform   string
	Name       string
	State      string
	Known      bool
	Attributes string // JSON object, "{}" when empty
	UpdatedAt  time.Time
}

func rowsFrom(states []sensor.State) ([]Row, error) {
	rows := make([]Row, 0, len(states))
	for _, st := range states {
		attrs := "{}"
		if len(st.Attributes) > 0 {
			b, err := json.Marshal(st.Attributes)
			if err != nil {
				return nil, fmt.Errorf("marshal attributes %s: %w", st.Entity.UniqueID, err)
			}
			attrs = string(b)
		}
		rows = append(rows, Row{
			EntityID:   st.Entity.UniqueID,
			DeviceID:   st.Entity.Device.ID,
			Platform:   string(st.Entity.Platform()),
			Name:       st.Entity.Name,
			State:      st.String(),
			Known:      st.Known(),
			Attributes: attrs,
			UpdatedAt:  st.UpdatedAt.UTC(),
		})
	}
	return rows, nil
}

// cutoff is the oldest UpdatedAt in a publish; rows older than it belong to
// entities that were not projected this time.
func cutoff(rows []Row) time.Time {
	var t time.Time
	for i, r := range rows {
		if i == 0 || r.UpdatedAt.Before(t) {
			t = r.UpdatedAt
		}
	}
	return t
}
