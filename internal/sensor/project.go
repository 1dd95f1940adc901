package sensor

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rickgao/airvpn-bridge/internal/model"
)

const (
	manufacturer = "AirVPN"
	accountModel = "Account"
	deviceModel  = "Device"
)

// DeviceInfo groups entities under one platform device.
type DeviceInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
}

// Entity is one addressable state value.
type Entity struct {
	UniqueID    string      `json:"unique_id"`
	Name        string      `json:"name"`
	Description Description `json:"-"`
	Device      DeviceInfo  `json:"device"`
}

// Platform returns the entity's platform.
func (e Entity) Platform() Platform {
	return e.Description.Platform
}

// State is the projected value of one entity.
type State struct {
	Entity     Entity
	Value      any  // Raw upstream value; nil when missing or null
	Missing    bool // Key absent from the upstream record
	Attributes map[string]string
	UpdatedAt  time.Time
}

// String renders the state for publishing. Missing or unrenderable values
// are "unknown". Binary sensors are "on" or "off" and only for JSON booleans.
func (s State) String() string {
	if !s.Known() {
		return "unknown"
	}
	if s.Entity.Platform() == PlatformBinarySensor {
		if s.Value.(bool) {
			return "on"
		}
		return "off"
	}
	out, _ := model.Format(s.Value)
	return out
}

// Known reports whether the state holds a renderable value.
func (s State) Known() bool {
	if s.Missing {
		return false
	}
	if s.Entity.Platform() == PlatformBinarySensor {
		_, ok := s.Value.(bool)
		return ok
	}
	_, ok := model.Format(s.Value)
	return ok
}

// Project converts a snapshot into entity states: account states first, then
// each device's states followed by its session states when a session with a
// matching device_name exists.
func Project(snap *model.Snapshot) []State {
	if snap == nil {
		return nil
	}

	var states []State

	login, _ := snap.Login()
	account := AccountDevice(login)
	for _, d := range DescriptionsFor(SourceUser) {
		states = append(states, project(d, account, "AirVPN", snap.User, snap.FetchedAt))
	}

	deviceDescs := DescriptionsFor(SourceDevice)
	sessionDescs := DescriptionsFor(SourceSession)

	for _, rec := range snap.Devices {
		dev := DeviceFor(rec)
		for _, d := range deviceDescs {
			states = append(states, project(d, dev, dev.Name, rec, snap.FetchedAt))
		}

		name, _ := rec.String("name")
		sess, ok := snap.SessionFor(name)
		if !ok {
			continue
		}
		for _, d := range sessionDescs {
			states = append(states, project(d, dev, dev.Name, sess, snap.FetchedAt))
		}
	}

	return states
}

// AccountDevice returns the device grouping the account entities.
func AccountDevice(login string) DeviceInfo {
	id := "airvpn_account"
	name := "AirVPN Account"
	if login != "" {
		id += "_" + Slug(login)
		name += " " + login
	}
	return DeviceInfo{ID: id, Name: name, Model: accountModel, Manufacturer: manufacturer}
}

// DeviceFor returns the device grouping one upstream device's entities.
// The upstream id is preferred; the name is used when id is absent.
func DeviceFor(rec model.Record) DeviceInfo {
	name, _ := rec.String("name")
	key, ok := rec.String("id")
	if !ok || key == "" {
		key = name
	}
	if name == "" {
		name = key
	}
	return DeviceInfo{
		ID:           "airvpn_device_" + Slug(key),
		Name:         "AirVPN " + name,
		Model:        deviceModel,
		Manufacturer: manufacturer,
	}
}

func project(d Description, dev DeviceInfo, prefix string, rec model.Record, at time.Time) State {
	v, ok := rec.Value(d.Key)
	st := State{
		Entity: Entity{
			UniqueID:    dev.ID + "_" + d.Key,
			Name:        prefix + " " + d.Name,
			Description: d,
			Device:      dev,
		},
		Value:     v,
		Missing:   !ok,
		UpdatedAt: at,
	}

	if ok && d.Humanize != HumanizeNone {
		if n, ok := rec.Int64(d.Key); ok && n >= 0 {
			human := humanize.Bytes(uint64(n))
			if d.Humanize == HumanizeSpeed {
				human += "/s"
			}
			st.Attributes = map[string]string{"human": human}
		}
	}

	return st
}

// Slug lowercases s and replaces every run of characters outside [a-z0-9]
// with a single underscore.
func Slug(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
