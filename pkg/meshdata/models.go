// Package meshdata defines the typed intermediate representation of mesh
// network state and the normalizers that produce it from decoded device
// output. The IR is independent of the input shape: the text report and the
// YAML configuration export both normalize into the same records.
package meshdata

import "time"

// ChannelType classifies a mesh channel slot.
type ChannelType string

const (
	// ChannelPrimary is the main channel the device transmits on.
	ChannelPrimary ChannelType = "PRIMARY"
	// ChannelSecondary is any additional configured channel.
	ChannelSecondary ChannelType = "SECONDARY"
)

// DeviceIdentity identifies the mesh owner the catalog is scoped to.
// ShortName is the catalog selection key and is immutable once resolved
// for a session.
type DeviceIdentity struct {
	NodeNum   uint64 `json:"node_num"`
	LongName  string `json:"long_name"`
	ShortName string `json:"short_name"` // at most 4 characters
}

// NodeRecord represents one node seen in the mesh.
// NodeID uniquely identifies the node within a catalog; re-ingestion of the
// same NodeID must never create a duplicate row.
type NodeRecord struct {
	NodeID     string `json:"node_id"` // e.g. "!a1b2c3d4", at most 9 chars
	Num        uint64 `json:"num"`
	LongName   string `json:"long_name"`
	ShortName  string `json:"short_name"`
	MACAddress string `json:"macaddr"`
	HWModel    string `json:"hw_model"`
	Role       string `json:"role"`
	// Position (integer fields are the device's fixed-point representation,
	// degrees * 1e7 for latitude/longitude)
	LatitudeI    int64   `json:"latitude_i"`
	LongitudeI   int64   `json:"longitude_i"`
	Altitude     int64   `json:"altitude"`
	PositionTime int64   `json:"position_time"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	// Telemetry
	LastHeard          uint64  `json:"last_heard"`
	BatteryLevel       uint8   `json:"battery_level"`
	Voltage            float64 `json:"voltage"`
	ChannelUtilization float64 `json:"channel_utilization"`
	AirUtilTx          float64 `json:"air_util_tx"`
	SNR                float64 `json:"snr"`
	// Channel is the node's channel index. Distinct from ChannelRecord's
	// ChannelType; the two are not the same concept and are kept apart.
	Channel uint8 `json:"channel"`
}

// ChannelRecord represents one configured channel, unique by name within a
// catalog. Re-ingestion updates PSK and flags in place.
type ChannelRecord struct {
	Name            string      `json:"name"`
	ChannelType     ChannelType `json:"channel_type"`
	PSK             string      `json:"psk"`
	UplinkEnabled   bool        `json:"uplink_enabled"`
	DownlinkEnabled bool        `json:"downlink_enabled"`
}

// PreferenceRecord holds the device's radio preference sections as opaque
// structured values, one row per owning node.
type PreferenceRecord struct {
	NodeNum   uint64         `json:"node_num"`
	Device    map[string]any `json:"device"`
	Position  map[string]any `json:"position"`
	Power     map[string]any `json:"power"`
	Network   map[string]any `json:"network"`
	Display   map[string]any `json:"display"`
	LoRa      map[string]any `json:"lora"`
	Bluetooth map[string]any `json:"bluetooth"`
}

// ModulePreferenceRecord holds the device's module configuration sections as
// opaque structured values, one row per owning node.
type ModulePreferenceRecord struct {
	NodeNum              uint64         `json:"node_num"`
	MQTT                 map[string]any `json:"mqtt"`
	Serial               map[string]any `json:"serial"`
	ExternalNotification map[string]any `json:"external_notification"`
	StoreForward         map[string]any `json:"store_forward"`
	RangeTest            map[string]any `json:"range_test"`
	Telemetry            map[string]any `json:"telemetry"`
	CannedMessage        map[string]any `json:"canned_message"`
	Audio                map[string]any `json:"audio"`
	RemoteHardware       map[string]any `json:"remote_hardware"`
	NeighborInfo         map[string]any `json:"neighbor_info"`
	AmbientLighting      map[string]any `json:"ambient_lighting"`
	DetectionSensor      map[string]any `json:"detection_sensor"`
	Paxcounter           map[string]any `json:"paxcounter"`
}

// Snapshot is the full IR produced by one sync pass: everything the device
// reported, normalized and ready for reconciliation.
type Snapshot struct {
	Identity          DeviceIdentity          `json:"identity"`
	FirmwareVersion   string                  `json:"firmware_version"`
	Nodes             []*NodeRecord           `json:"nodes"`
	Channels          []*ChannelRecord        `json:"channels"`
	Preferences       *PreferenceRecord       `json:"preferences,omitempty"`
	ModulePreferences *ModulePreferenceRecord `json:"module_preferences,omitempty"`
	CapturedAt        time.Time               `json:"captured_at"`
}
