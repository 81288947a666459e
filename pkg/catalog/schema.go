package catalog

// Schema contains the per-catalog SQLite schema. Every catalog file carries
// the same four record tables plus sync bookkeeping. All creation is
// idempotent so it is safe to run on every pass.
const Schema = `
-- Nodes in the mesh: one row per node, keyed by the stable node ID.
-- Absence from a later report never deletes a row; telemetry is updated
-- in place on re-ingestion.
CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    node_id TEXT NOT NULL UNIQUE,      -- e.g. "!a1b2c3d4", at most 9 chars
    num INTEGER NOT NULL,
    long_name TEXT,
    short_name TEXT,
    macaddr TEXT,
    hw_model TEXT,
    role TEXT,
    latitude_i INTEGER DEFAULT 0,      -- degrees * 1e7
    longitude_i INTEGER DEFAULT 0,
    altitude INTEGER DEFAULT 0,
    position_time INTEGER DEFAULT 0,
    latitude REAL DEFAULT 0,
    longitude REAL DEFAULT 0,
    last_heard INTEGER DEFAULT 0,
    battery_level INTEGER DEFAULT 0,
    voltage REAL DEFAULT 0,
    channel_utilization REAL DEFAULT 0,
    air_util_tx REAL DEFAULT 0,
    snr REAL DEFAULT 0,
    channel INTEGER DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_nodes_num ON nodes(num);
CREATE INDEX IF NOT EXISTS idx_nodes_last_heard ON nodes(last_heard);

-- Configured channels: unique by name within the catalog. PSK and flags
-- are mutable and updated in place.
CREATE TABLE IF NOT EXISTS channels (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    channel_type TEXT NOT NULL,        -- 'PRIMARY' or 'SECONDARY'
    psk TEXT,
    uplink_enabled INTEGER DEFAULT 0,
    downlink_enabled INTEGER DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Radio preferences: one row per owning node, sections stored as JSON text
-- and overwritten wholesale each pass.
CREATE TABLE IF NOT EXISTS preferences (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    node_num INTEGER NOT NULL UNIQUE,
    device TEXT,
    position TEXT,
    power TEXT,
    network TEXT,
    display TEXT,
    lora TEXT,
    bluetooth TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Module preferences: one row per owning node, same lifecycle as
-- preferences.
CREATE TABLE IF NOT EXISTS module_preferences (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    node_num INTEGER NOT NULL UNIQUE,
    mqtt TEXT,
    serial TEXT,
    external_notification TEXT,
    store_forward TEXT,
    range_test TEXT,
    telemetry TEXT,
    canned_message TEXT,
    audio TEXT,
    remote_hardware TEXT,
    neighbor_info TEXT,
    ambient_lighting TEXT,
    detection_sensor TEXT,
    paxcounter TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Sync bookkeeping: a single row summarizing the last completed pass.
CREATE TABLE IF NOT EXISTS sync_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_sync_at DATETIME,
    records_written INTEGER DEFAULT 0,
    record_errors INTEGER DEFAULT 0,
    firmware_version TEXT
);

-- Schema version for migrations
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// Migrations contains SQL migrations indexed by version.
// Each migration upgrades from version N-1 to version N.
var Migrations = map[int]string{
	1: Schema, // Initial schema
}
