package meshdata

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Normalizer converts loosely typed decoded trees into the typed IR.
// All methods are pure; a Normalizer carries no state and is safe for
// concurrent use.
type Normalizer struct{}

// NewNormalizer creates a new normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeNodes converts the "nodes" tree (nodeID -> node detail) into
// NodeRecords. Nodes missing a mandatory field (num, user.longName,
// user.shortName, user.macaddr, user.hwModel) fail individually; the batch
// continues. Records are returned sorted by node ID so output is stable
// across passes.
func (n *Normalizer) NormalizeNodes(nodes map[string]any) ([]*NodeRecord, []error) {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var records []*NodeRecord
	var errs []error
	for _, id := range ids {
		detail, ok := asMap(nodes[id])
		if !ok {
			errs = append(errs, &NormalizationError{Record: id, Field: "node"})
			continue
		}
		rec, err := n.normalizeNode(id, detail)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

// maxNodeIDLen bounds the node identifier ("!" plus eight hex digits).
const maxNodeIDLen = 9

func (n *Normalizer) normalizeNode(id string, detail map[string]any) (*NodeRecord, error) {
	if id == "" || len(id) > maxNodeIDLen {
		return nil, &NormalizationError{Record: id, Field: "nodeID"}
	}
	num, ok := asUint(detail["num"])
	if !ok {
		return nil, &NormalizationError{Record: id, Field: "num"}
	}
	user, ok := asMap(detail["user"])
	if !ok {
		return nil, &NormalizationError{Record: id, Field: "user"}
	}

	rec := &NodeRecord{NodeID: id, Num: num}
	for _, f := range []struct {
		field string
		dst   *string
	}{
		{"longName", &rec.LongName},
		{"shortName", &rec.ShortName},
		{"macaddr", &rec.MACAddress},
		{"hwModel", &rec.HWModel},
	} {
		v, ok := asString(user[f.field])
		if !ok {
			return nil, &NormalizationError{Record: id, Field: "user." + f.field}
		}
		*f.dst = trimQuotes(v)
	}
	if role, ok := asString(user["role"]); ok {
		rec.Role = role
	}

	if pos, ok := asMap(detail["position"]); ok {
		rec.LatitudeI, _ = asInt(pos["latitudeI"])
		rec.LongitudeI, _ = asInt(pos["longitudeI"])
		rec.Altitude, _ = asInt(pos["altitude"])
		rec.PositionTime, _ = asInt(pos["time"])
		if lat, ok := asFloat(pos["latitude"]); ok {
			rec.Latitude = lat
		} else if rec.LatitudeI != 0 {
			rec.Latitude = float64(rec.LatitudeI) * 1e-7
		}
		if lon, ok := asFloat(pos["longitude"]); ok {
			rec.Longitude = lon
		} else if rec.LongitudeI != 0 {
			rec.Longitude = float64(rec.LongitudeI) * 1e-7
		}
	}

	if metrics, ok := asMap(detail["deviceMetrics"]); ok {
		if battery, ok := asUint(metrics["batteryLevel"]); ok && battery <= 255 {
			rec.BatteryLevel = uint8(battery)
		}
		rec.Voltage, _ = asFloat(metrics["voltage"])
		rec.ChannelUtilization, _ = asFloat(metrics["channelUtilization"])
		rec.AirUtilTx, _ = asFloat(metrics["airUtilTx"])
	}

	rec.LastHeard, _ = asUint(detail["lastHeard"])
	rec.SNR, _ = asFloat(detail["snr"])
	if ch, ok := asUint(detail["channel"]); ok && ch <= 255 {
		rec.Channel = uint8(ch)
	}
	return rec, nil
}

// NormalizeChannels converts the config-export channel mapping
// (channel-type label -> detail) into ChannelRecords. The channel type is
// the upper-cased label; name is mandatory, PSK and the uplink/downlink
// flags default to empty/false.
func (n *Normalizer) NormalizeChannels(channels map[string]any) ([]*ChannelRecord, []error) {
	labels := make([]string, 0, len(channels))
	for label := range channels {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var records []*ChannelRecord
	var errs []error
	for _, label := range labels {
		detail, ok := asMap(channels[label])
		if !ok {
			errs = append(errs, &NormalizationError{Record: label, Field: "channel"})
			continue
		}
		rec, err := n.normalizeChannel(label, detail)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

// NormalizeChannelList converts the report form of the channels section,
// a list of channel objects each carrying its own "role" label.
func (n *Normalizer) NormalizeChannelList(list []any) ([]*ChannelRecord, []error) {
	var records []*ChannelRecord
	var errs []error
	for i, entry := range list {
		detail, ok := asMap(entry)
		if !ok {
			errs = append(errs, &NormalizationError{Record: indexLabel(i), Field: "channel"})
			continue
		}
		label, _ := asString(detail["role"])
		if label == "" {
			label = indexLabel(i)
		}
		rec, err := n.normalizeChannel(label, detail)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

func indexLabel(i int) string {
	return fmt.Sprintf("channel#%d", i)
}

func (n *Normalizer) normalizeChannel(label string, detail map[string]any) (*ChannelRecord, error) {
	// Channel settings may sit one level down in the report form.
	if settings, ok := asMap(detail["settings"]); ok {
		merged := make(map[string]any, len(detail)+len(settings))
		for k, v := range detail {
			merged[k] = v
		}
		for k, v := range settings {
			merged[k] = v
		}
		detail = merged
	}

	name, ok := asString(detail["name"])
	if !ok || strings.TrimSpace(name) == "" {
		return nil, &NormalizationError{Record: label, Field: "name"}
	}

	chType := ChannelSecondary
	if strings.EqualFold(label, string(ChannelPrimary)) {
		chType = ChannelPrimary
	}

	rec := &ChannelRecord{
		Name:        trimQuotes(name),
		ChannelType: chType,
	}
	if psk, ok := asString(detail["psk"]); ok {
		rec.PSK = trimQuotes(psk)
	}
	rec.UplinkEnabled, _ = asBool(detail["uplinkEnabled"])
	rec.DownlinkEnabled, _ = asBool(detail["downlinkEnabled"])
	return rec, nil
}

// NormalizeOwnerLine parses the scalar "Owner:" report line, which has the
// shape `Long Name (ABCD)`. Both names are trimmed of surrounding quote
// characters before use.
func (n *Normalizer) NormalizeOwnerLine(line string) (longName, shortName string, err error) {
	line = strings.TrimSpace(line)
	open := strings.LastIndex(line, "(")
	close := strings.LastIndex(line, ")")
	if open < 0 || close < open {
		return "", "", &NormalizationError{Record: "owner", Field: "shortName"}
	}
	longName = trimQuotes(strings.TrimSpace(line[:open]))
	shortName = trimQuotes(strings.TrimSpace(line[open+1 : close]))
	if shortName == "" {
		return "", "", &NormalizationError{Record: "owner", Field: "shortName"}
	}
	if longName == "" {
		return "", "", &NormalizationError{Record: "owner", Field: "longName"}
	}
	return longName, shortName, nil
}

// NormalizeIdentity builds the device identity from already-isolated owner
// fields plus the owning node number (from "My info:" or the export).
func (n *Normalizer) NormalizeIdentity(longName, shortName string, nodeNum uint64) (DeviceIdentity, error) {
	longName = trimQuotes(strings.TrimSpace(longName))
	shortName = trimQuotes(strings.TrimSpace(shortName))
	if shortName == "" {
		return DeviceIdentity{}, &NormalizationError{Record: "owner", Field: "shortName"}
	}
	return DeviceIdentity{
		NodeNum:   nodeNum,
		LongName:  longName,
		ShortName: shortName,
	}, nil
}

// NormalizePreferences captures the radio preference sections wholesale as
// opaque structured values. Absent sections stay nil.
func (n *Normalizer) NormalizePreferences(cfg map[string]any, nodeNum uint64) *PreferenceRecord {
	if len(cfg) == 0 {
		return nil
	}
	rec := &PreferenceRecord{NodeNum: nodeNum}
	rec.Device, _ = asMap(cfg["device"])
	rec.Position, _ = asMap(cfg["position"])
	rec.Power, _ = asMap(cfg["power"])
	rec.Network, _ = asMap(cfg["network"])
	rec.Display, _ = asMap(cfg["display"])
	rec.LoRa, _ = asMap(cfg["lora"])
	rec.Bluetooth, _ = asMap(cfg["bluetooth"])
	return rec
}

// NormalizeModulePreferences captures the module configuration sections
// wholesale as opaque structured values. Absent sections stay nil.
func (n *Normalizer) NormalizeModulePreferences(cfg map[string]any, nodeNum uint64) *ModulePreferenceRecord {
	if len(cfg) == 0 {
		return nil
	}
	rec := &ModulePreferenceRecord{NodeNum: nodeNum}
	rec.MQTT, _ = asMap(cfg["mqtt"])
	rec.Serial, _ = asMap(cfg["serial"])
	rec.ExternalNotification, _ = asMap(cfg["externalNotification"])
	rec.StoreForward, _ = asMap(cfg["storeForward"])
	rec.RangeTest, _ = asMap(cfg["rangeTest"])
	rec.Telemetry, _ = asMap(cfg["telemetry"])
	rec.CannedMessage, _ = asMap(cfg["cannedMessage"])
	rec.Audio, _ = asMap(cfg["audio"])
	rec.RemoteHardware, _ = asMap(cfg["remoteHardware"])
	rec.NeighborInfo, _ = asMap(cfg["neighborInfo"])
	rec.AmbientLighting, _ = asMap(cfg["ambientLighting"])
	rec.DetectionSensor, _ = asMap(cfg["detectionSensor"])
	rec.Paxcounter, _ = asMap(cfg["paxcounter"])
	return rec
}

// NewSnapshot assembles the IR for one pass and stamps it.
func NewSnapshot(identity DeviceIdentity, firmware string) *Snapshot {
	return &Snapshot{
		Identity:        identity,
		FirmwareVersion: firmware,
		CapturedAt:      time.Now(),
	}
}

// trimQuotes strips one layer of surrounding single or double quotes.
func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Loose coercion helpers. Decoded trees mix types depending on the input
// path: encoding/json produces float64 and json.Number, yaml.v3 produces
// int and uint64.

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}

func asUint(v any) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case uint64:
		return t, true
	case json.Number:
		i, err := t.Int64()
		if err != nil || i < 0 {
			return 0, false
		}
		return uint64(i), true
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case uint64:
		return int64(t), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
