// Package catalog manages the per-owner SQLite catalogs and reconciles
// normalized mesh records into them. A catalog is a logically isolated
// namespace scoped to one device owner: one database file per owner short
// name, created lazily on first sync and never deleted by this engine.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meshhive/meshsync/pkg/meshdata"
)

// Store is an open handle to one catalog.
type Store struct {
	name string // owner short name
	db   *sql.DB
}

// openStore opens (creating if needed) the catalog database at path and
// runs migrations.
func openStore(name, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	s := &Store{name: name, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}
	return s, nil
}

// migrate runs catalog schema migrations.
func (s *Store) migrate() error {
	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		// Table doesn't exist, run initial schema
		if _, err := s.db.Exec(Schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		_, err = s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion)
		return err
	}

	for v := currentVersion + 1; v <= SchemaVersion; v++ {
		migration, ok := Migrations[v]
		if !ok {
			continue
		}
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", v, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", v, err)
		}
	}
	return nil
}

// Name returns the owner short name this catalog is scoped to.
func (s *Store) Name() string {
	return s.name
}

// Close closes the catalog connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// GetNode fetches one node by its stable node ID.
func (s *Store) GetNode(ctx context.Context, nodeID string) (*meshdata.NodeRecord, error) {
	rec := &meshdata.NodeRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT node_id, num, long_name, short_name, macaddr, hw_model, role,
			latitude_i, longitude_i, altitude, position_time, latitude, longitude,
			last_heard, battery_level, voltage, channel_utilization, air_util_tx, snr, channel
		FROM nodes WHERE node_id = ?`, nodeID).Scan(
		&rec.NodeID, &rec.Num, &rec.LongName, &rec.ShortName, &rec.MACAddress, &rec.HWModel, &rec.Role,
		&rec.LatitudeI, &rec.LongitudeI, &rec.Altitude, &rec.PositionTime, &rec.Latitude, &rec.Longitude,
		&rec.LastHeard, &rec.BatteryLevel, &rec.Voltage, &rec.ChannelUtilization, &rec.AirUtilTx, &rec.SNR, &rec.Channel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListNodes returns all nodes in the catalog, most recently heard first.
func (s *Store) ListNodes(ctx context.Context) ([]*meshdata.NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, num, long_name, short_name, macaddr, hw_model, role,
			latitude_i, longitude_i, altitude, position_time, latitude, longitude,
			last_heard, battery_level, voltage, channel_utilization, air_util_tx, snr, channel
		FROM nodes ORDER BY last_heard DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*meshdata.NodeRecord
	for rows.Next() {
		rec := &meshdata.NodeRecord{}
		if err := rows.Scan(
			&rec.NodeID, &rec.Num, &rec.LongName, &rec.ShortName, &rec.MACAddress, &rec.HWModel, &rec.Role,
			&rec.LatitudeI, &rec.LongitudeI, &rec.Altitude, &rec.PositionTime, &rec.Latitude, &rec.Longitude,
			&rec.LastHeard, &rec.BatteryLevel, &rec.Voltage, &rec.ChannelUtilization, &rec.AirUtilTx, &rec.SNR, &rec.Channel); err != nil {
			return nil, err
		}
		nodes = append(nodes, rec)
	}
	return nodes, rows.Err()
}

// CountNodes returns the number of node rows in the catalog.
func (s *Store) CountNodes(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes").Scan(&n)
	return n, err
}

// ListChannels returns all channels in the catalog ordered by name.
func (s *Store) ListChannels(ctx context.Context) ([]*meshdata.ChannelRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, channel_type, psk, uplink_enabled, downlink_enabled
		FROM channels ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []*meshdata.ChannelRecord
	for rows.Next() {
		rec := &meshdata.ChannelRecord{}
		if err := rows.Scan(&rec.Name, &rec.ChannelType, &rec.PSK, &rec.UplinkEnabled, &rec.DownlinkEnabled); err != nil {
			return nil, err
		}
		channels = append(channels, rec)
	}
	return channels, rows.Err()
}

// SyncState summarizes the last completed pass against a catalog.
type SyncState struct {
	LastSyncAt      time.Time `json:"last_sync_at"`
	RecordsWritten  int       `json:"records_written"`
	RecordErrors    int       `json:"record_errors"`
	FirmwareVersion string    `json:"firmware_version"`
}

// GetSyncState returns the catalog's last pass summary, or nil if no pass
// has completed yet.
func (s *Store) GetSyncState(ctx context.Context) (*SyncState, error) {
	st := &SyncState{}
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sync_at, records_written, record_errors, COALESCE(firmware_version, '')
		FROM sync_state WHERE id = 1`).Scan(
		&st.LastSyncAt, &st.RecordsWritten, &st.RecordErrors, &st.FirmwareVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}
