package sensor

// Platform is the kind of entity a field is published as.
type Platform string

const (
	PlatformSensor       Platform = "sensor"
	PlatformBinarySensor Platform = "binary_sensor"
)

// Source is the snapshot section a field is read from.
type Source string

const (
	SourceUser    Source = "user"
	SourceDevice  Source = "device"
	SourceSession Source = "session"
)

// Humanize selects a human-readable rendering added as an attribute.
type Humanize int

const (
	HumanizeNone Humanize = iota
	HumanizeBytes
	HumanizeSpeed
)

// Description declares one projected field.
type Description struct {
	Key         string   // Upstream record key
	Name        string   // Human label
	Platform    Platform // sensor or binary_sensor
	Source      Source   // user, device or session
	Unit        string   // Unit of measurement, empty if none
	Icon        string   // mdi icon
	DeviceClass string
	StateClass  string
	Category    string // "diagnostic" or empty
	Humanize    Humanize
}

// Descriptions is the full field table, in publishing order.
var Descriptions = []Description{
	// Account
	{Key: "login", Name: "Login", Platform: PlatformSensor, Source: SourceUser,
		Icon: "mdi:account", Category: "diagnostic"},
	{Key: "credits", Name: "Credits", Platform: PlatformSensor, Source: SourceUser,
		Icon: "mdi:cash", StateClass: "measurement"},
	{Key: "expiration_days", Name: "Expiration Days", Platform: PlatformSensor, Source: SourceUser,
		Unit: "d", Icon: "mdi:calendar-clock", StateClass: "measurement"},
	{Key: "last_activity_date", Name: "Last Activity", Platform: PlatformSensor, Source: SourceUser,
		Icon: "mdi:clock-outline", Category: "diagnostic"},
	{Key: "connected", Name: "Connected", Platform: PlatformBinarySensor, Source: SourceUser,
		Icon: "mdi:vpn", DeviceClass: "connectivity"},
	{Key: "premium", Name: "Premium", Platform: PlatformBinarySensor, Source: SourceUser,
		Icon: "mdi:star", Category: "diagnostic"},

	// Device
	{Key: "status", Name: "Status", Platform: PlatformSensor, Source: SourceDevice,
		Icon: "mdi:lan-connect"},
	{Key: "vpn_attempt_date", Name: "Last Attempt", Platform: PlatformSensor, Source: SourceDevice,
		Icon: "mdi:clock-start", Category: "diagnostic"},
	{Key: "vpn_last_from_date", Name: "Last Session Start", Platform: PlatformSensor, Source: SourceDevice,
		Icon: "mdi:clock-start", Category: "diagnostic"},
	{Key: "vpn_last_to_date", Name: "Last Session End", Platform: PlatformSensor, Source: SourceDevice,
		Icon: "mdi:clock-end", Category: "diagnostic"},

	// Session
	{Key: "server_name", Name: "Server", Platform: PlatformSensor, Source: SourceSession,
		Icon: "mdi:server"},
	{Key: "server_country", Name: "Server Country", Platform: PlatformSensor, Source: SourceSession,
		Icon: "mdi:earth"},
	{Key: "vpn_ip", Name: "VPN IP", Platform: PlatformSensor, Source: SourceSession,
		Icon: "mdi:ip-network", Category: "diagnostic"},
	{Key: "entry_ip", Name: "Entry IP", Platform: PlatformSensor, Source: SourceSession,
		Icon: "mdi:ip-network-outline", Category: "diagnostic"},
	{Key: "exit_ip", Name: "Exit IP", Platform: PlatformSensor, Source: SourceSession,
		Icon: "mdi:ip-network-outline", Category: "diagnostic"},
	{Key: "connected_since_date", Name: "Connected Since", Platform: PlatformSensor, Source: SourceSession,
		Icon: "mdi:timer-outline"},
	{Key: "bytes_read", Name: "Downloaded", Platform: PlatformSensor, Source: SourceSession,
		Unit: "B", Icon: "mdi:download", DeviceClass: "data_size", StateClass: "total_increasing",
		Humanize: HumanizeBytes},
	{Key: "bytes_write", Name: "Uploaded", Platform: PlatformSensor, Source: SourceSession,
		Unit: "B", Icon: "mdi:upload", DeviceClass: "data_size", StateClass: "total_increasing",
		Humanize: HumanizeBytes},
	{Key: "speed_read", Name: "Download Speed", Platform: PlatformSensor, Source: SourceSession,
		Unit: "B/s", Icon: "mdi:download-network", DeviceClass: "data_rate", StateClass: "measurement",
		Humanize: HumanizeSpeed},
	{Key: "speed_write", Name: "Upload Speed", Platform: PlatformSensor, Source: SourceSession,
		Unit: "B/s", Icon: "mdi:upload-network", DeviceClass: "data_rate", StateClass: "measurement",
		Humanize: HumanizeSpeed},
	{Key: "server_bw", Name: "Server Bandwidth", Platform: PlatformSensor, Source: SourceSession,
		Unit: "Mbit/s", Icon: "mdi:speedometer", DeviceClass: "data_rate", StateClass: "measurement"},
}

// DescriptionsFor returns the table entries for one source, in order.
func DescriptionsFor(src Source) []Description {
	var out []Description
	for _, d := range Descriptions {
		if d.Source == src {
			out = append(out, d)
		}
	}
	return out
}
