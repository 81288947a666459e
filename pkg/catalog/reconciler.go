package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/meshhive/meshsync/pkg/meshdata"
)

// Reconciler applies a normalized snapshot against one catalog. Every
// upsert is keyed by the record's natural identifier: insert if absent,
// otherwise update all mutable fields in place so telemetry never goes
// stale. The whole batch runs in a single transaction; either every
// record of the pass commits or none do.
type Reconciler struct {
	store *Store
}

// NewReconciler creates a reconciler bound to an open catalog.
func NewReconciler(store *Store) *Reconciler {
	return &Reconciler{store: store}
}

// Apply reconciles the snapshot into the catalog and returns the number of
// records written. On any error the transaction rolls back and the catalog
// is left exactly as it was.
func (r *Reconciler) Apply(ctx context.Context, snap *meshdata.Snapshot) (int, error) {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &CatalogError{Name: r.store.name, Op: "begin", Err: err}
	}
	defer tx.Rollback()

	now := time.Now()
	written := 0

	for _, node := range snap.Nodes {
		if err := upsertNode(ctx, tx, node, now); err != nil {
			return 0, &CatalogError{Name: r.store.name, Op: "upsert node " + node.NodeID, Err: err}
		}
		written++
	}

	for _, ch := range snap.Channels {
		if err := upsertChannel(ctx, tx, ch, now); err != nil {
			return 0, &CatalogError{Name: r.store.name, Op: "upsert channel " + ch.Name, Err: err}
		}
		written++
	}

	if snap.Preferences != nil {
		if err := upsertPreferences(ctx, tx, snap.Preferences, now); err != nil {
			return 0, &CatalogError{Name: r.store.name, Op: "upsert preferences", Err: err}
		}
		written++
	}

	if snap.ModulePreferences != nil {
		if err := upsertModulePreferences(ctx, tx, snap.ModulePreferences, now); err != nil {
			return 0, &CatalogError{Name: r.store.name, Op: "upsert module preferences", Err: err}
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, &CatalogError{Name: r.store.name, Op: "commit", Err: err}
	}
	return written, nil
}

// RecordSyncState persists the pass summary row. Kept outside Apply's
// transaction scope deliberately: state is written only after the batch has
// committed.
func (r *Reconciler) RecordSyncState(ctx context.Context, state SyncState) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_sync_at, records_written, record_errors, firmware_version)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			records_written = excluded.records_written,
			record_errors = excluded.record_errors,
			firmware_version = excluded.firmware_version`,
		state.LastSyncAt, state.RecordsWritten, state.RecordErrors, state.FirmwareVersion)
	if err != nil {
		return &CatalogError{Name: r.store.name, Op: "record sync state", Err: err}
	}
	return nil
}

func upsertNode(ctx context.Context, tx *sql.Tx, n *meshdata.NodeRecord, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (node_id, num, long_name, short_name, macaddr, hw_model, role,
			latitude_i, longitude_i, altitude, position_time, latitude, longitude,
			last_heard, battery_level, voltage, channel_utilization, air_util_tx, snr, channel, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			num = excluded.num, long_name = excluded.long_name, short_name = excluded.short_name,
			macaddr = excluded.macaddr, hw_model = excluded.hw_model, role = excluded.role,
			latitude_i = excluded.latitude_i, longitude_i = excluded.longitude_i,
			altitude = excluded.altitude, position_time = excluded.position_time,
			latitude = excluded.latitude, longitude = excluded.longitude,
			last_heard = excluded.last_heard, battery_level = excluded.battery_level,
			voltage = excluded.voltage, channel_utilization = excluded.channel_utilization,
			air_util_tx = excluded.air_util_tx, snr = excluded.snr, channel = excluded.channel,
			updated_at = excluded.updated_at`,
		n.NodeID, n.Num, n.LongName, n.ShortName, n.MACAddress, n.HWModel, n.Role,
		n.LatitudeI, n.LongitudeI, n.Altitude, n.PositionTime, n.Latitude, n.Longitude,
		n.LastHeard, n.BatteryLevel, n.Voltage, n.ChannelUtilization, n.AirUtilTx, n.SNR, n.Channel, now)
	return err
}

func upsertChannel(ctx context.Context, tx *sql.Tx, c *meshdata.ChannelRecord, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO channels (name, channel_type, psk, uplink_enabled, downlink_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			channel_type = excluded.channel_type, psk = excluded.psk,
			uplink_enabled = excluded.uplink_enabled, downlink_enabled = excluded.downlink_enabled,
			updated_at = excluded.updated_at`,
		c.Name, string(c.ChannelType), c.PSK, c.UplinkEnabled, c.DownlinkEnabled, now)
	return err
}

func upsertPreferences(ctx context.Context, tx *sql.Tx, p *meshdata.PreferenceRecord, now time.Time) error {
	blobs, err := marshalBlobs(
		p.Device, p.Position, p.Power, p.Network, p.Display, p.LoRa, p.Bluetooth,
	)
	if err != nil {
		return err
	}
	args := append([]any{p.NodeNum}, blobs...)
	args = append(args, now)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO preferences (node_num, device, position, power, network, display, lora, bluetooth, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_num) DO UPDATE SET
			device = excluded.device, position = excluded.position, power = excluded.power,
			network = excluded.network, display = excluded.display, lora = excluded.lora,
			bluetooth = excluded.bluetooth, updated_at = excluded.updated_at`,
		args...)
	return err
}

func upsertModulePreferences(ctx context.Context, tx *sql.Tx, p *meshdata.ModulePreferenceRecord, now time.Time) error {
	blobs, err := marshalBlobs(
		p.MQTT, p.Serial, p.ExternalNotification, p.StoreForward, p.RangeTest,
		p.Telemetry, p.CannedMessage, p.Audio, p.RemoteHardware, p.NeighborInfo,
		p.AmbientLighting, p.DetectionSensor, p.Paxcounter,
	)
	if err != nil {
		return err
	}
	args := append([]any{p.NodeNum}, blobs...)
	args = append(args, now)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO module_preferences (node_num, mqtt, serial, external_notification,
			store_forward, range_test, telemetry, canned_message, audio, remote_hardware,
			neighbor_info, ambient_lighting, detection_sensor, paxcounter, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_num) DO UPDATE SET
			mqtt = excluded.mqtt, serial = excluded.serial,
			external_notification = excluded.external_notification,
			store_forward = excluded.store_forward, range_test = excluded.range_test,
			telemetry = excluded.telemetry, canned_message = excluded.canned_message,
			audio = excluded.audio, remote_hardware = excluded.remote_hardware,
			neighbor_info = excluded.neighbor_info, ambient_lighting = excluded.ambient_lighting,
			detection_sensor = excluded.detection_sensor, paxcounter = excluded.paxcounter,
			updated_at = excluded.updated_at`,
		args...)
	return err
}

// marshalBlobs renders each preference section as JSON text. Nil sections
// become SQL NULL.
func marshalBlobs(sections ...map[string]any) ([]any, error) {
	out := make([]any, len(sections))
	for i, section := range sections {
		if section == nil {
			out[i] = nil
			continue
		}
		data, err := json.Marshal(section)
		if err != nil {
			return nil, err
		}
		out[i] = string(data)
	}
	return out, nil
}
