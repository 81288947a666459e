package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshhive/meshsync/pkg/catalog"
	"github.com/meshhive/meshsync/pkg/meshdata"
	"github.com/meshhive/meshsync/pkg/report"
)

const passReport = `Connected to radio
Owner: Mesh Base (MBSE)
My info: { "myNodeNum": 305419896, "rebootCount": 3 }
Metadata: { "firmwareVersion": "2.2.17.abcdef" }
Nodes in mesh: {
  "!12345678": {
    "num": 305419896,
    "user": { "longName": "Mesh Base", "shortName": "MBSE", "macaddr": "aa:bb:cc:dd:ee:ff", "hwModel": "TBEAM" },
    "deviceMetrics": { "batteryLevel": 80, "voltage": 4.01 },
    "lastHeard": 1700000000
  },
  "!9abcdef0": {
    "num": 2596069104,
    "user": { "longName": "Remote", "shortName": "RMT1", "macaddr": "11:22:33:44:55:66", "hwModel": "HELTEC_V3" }
  }
}
Preferences: { "device": { "role": "CLIENT" } }
Module preferences: { "mqtt": { "enabled": false } }
Channels: [ { "role": "PRIMARY", "settings": { "name": "LongFast", "psk": "AQ==" } } ]
Primary channel URL: https://meshtastic.org/e/#CgMSAQE
`

const passExport = `owner: Mesh Base
owner_short: MBSE
channel_url: https://meshtastic.org/e/#CgMSAQE
nodes:
  "!12345678":
    num: 305419896
    user:
      longName: Mesh Base
      shortName: MBSE
      macaddr: "aa:bb:cc:dd:ee:ff"
      hwModel: TBEAM
    deviceMetrics:
      batteryLevel: 72
channels:
  primary:
    name: LongFast
    psk: "AQ=="
config:
  device:
    role: CLIENT
module_config:
  mqtt:
    enabled: false
`

type fakeSource struct {
	report    string
	reportErr error
	export    []byte
	exportErr error
}

func (f *fakeSource) FetchReport(ctx context.Context) (string, error) {
	return f.report, f.reportErr
}

func (f *fakeSource) FetchConfigExport(ctx context.Context) ([]byte, error) {
	return f.export, f.exportErr
}

func newTestEngine(t *testing.T, source *fakeSource) (*Engine, *catalog.Resolver) {
	t.Helper()
	resolver, err := catalog.NewResolver(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { resolver.Close() })
	return New(source, resolver), resolver
}

func TestSyncFromReport(t *testing.T) {
	ctx := context.Background()
	eng, resolver := newTestEngine(t, &fakeSource{report: passReport})

	summary := eng.SyncFromReport(ctx)
	require.NoError(t, summary.PassError)
	assert.Equal(t, "MBSE", summary.ShortName)
	assert.Empty(t, summary.RecordErrors)
	// Two nodes, one channel, preferences, module preferences.
	assert.Equal(t, 5, summary.RecordsWritten)

	store, created, err := resolver.Resolve(meshdata.DeviceIdentity{ShortName: "MBSE"})
	require.NoError(t, err)
	assert.False(t, created)

	count, err := store.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	node, err := store.GetNode(ctx, "!12345678")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "Mesh Base", node.LongName)
	assert.Equal(t, uint8(80), node.BatteryLevel)

	state, err := store.GetSyncState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 5, state.RecordsWritten)
	assert.Equal(t, "2.2.17.abcdef", state.FirmwareVersion)

	snap := eng.LastSnapshot()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(305419896), snap.Identity.NodeNum)
}

func TestSyncFromReportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, resolver := newTestEngine(t, &fakeSource{report: passReport})

	require.NoError(t, eng.SyncFromReport(ctx).PassError)
	require.NoError(t, eng.SyncFromReport(ctx).PassError)

	store, _, err := resolver.Resolve(meshdata.DeviceIdentity{ShortName: "MBSE"})
	require.NoError(t, err)
	count, err := store.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSyncFromReportMissingSentinel(t *testing.T) {
	ctx := context.Background()
	eng, resolver := newTestEngine(t, &fakeSource{report: "meshtastic: connection refused\n"})

	summary := eng.SyncFromReport(ctx)
	require.Error(t, summary.PassError)

	var extErr *report.ExtractionError
	assert.ErrorAs(t, summary.PassError, &extErr)
	assert.Zero(t, summary.RecordsWritten)

	// An aborted pass must not create a catalog.
	names, err := resolver.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSyncFromReportSourceError(t *testing.T) {
	ctx := context.Background()
	fetchErr := errors.New("serial port busy")
	eng, _ := newTestEngine(t, &fakeSource{reportErr: fetchErr})

	summary := eng.SyncFromReport(ctx)
	assert.ErrorIs(t, summary.PassError, fetchErr)
	assert.Zero(t, summary.RecordsWritten)
}

func TestSyncFromReportIsolatesBadNode(t *testing.T) {
	ctx := context.Background()
	broken := `Connected to radio
Owner: Mesh Base (MBSE)
My info: { "myNodeNum": 305419896 }
Nodes in mesh: {
  "!12345678": {
    "num": 305419896,
    "user": { "longName": "Mesh Base", "shortName": "MBSE", "macaddr": "aa:bb:cc:dd:ee:ff", "hwModel": "TBEAM" }
  },
  "!deadbeef": {
    "num": 3735928559,
    "user": { "longName": "No MAC", "shortName": "NMAC", "hwModel": "TBEAM" }
  }
}
`
	eng, resolver := newTestEngine(t, &fakeSource{report: broken})

	summary := eng.SyncFromReport(ctx)
	require.NoError(t, summary.PassError)
	require.Len(t, summary.RecordErrors, 1)

	var normErr *meshdata.NormalizationError
	require.ErrorAs(t, summary.RecordErrors[0], &normErr)
	assert.Equal(t, "!deadbeef", normErr.Record)
	assert.Equal(t, "user.macaddr", normErr.Field)

	store, _, err := resolver.Resolve(meshdata.DeviceIdentity{ShortName: "MBSE"})
	require.NoError(t, err)
	count, err := store.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "valid records still land when one fails")

	state, err := store.GetSyncState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 1, state.RecordErrors)
}

func TestSyncFromConfigExport(t *testing.T) {
	ctx := context.Background()
	eng, resolver := newTestEngine(t, &fakeSource{export: []byte(passExport)})

	summary := eng.SyncFromConfigExport(ctx)
	require.NoError(t, summary.PassError)
	assert.Equal(t, "MBSE", summary.ShortName)
	// One node, one channel, preferences, module preferences.
	assert.Equal(t, 4, summary.RecordsWritten)

	store, _, err := resolver.Resolve(meshdata.DeviceIdentity{ShortName: "MBSE"})
	require.NoError(t, err)

	node, err := store.GetNode(ctx, "!12345678")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, uint8(72), node.BatteryLevel)

	channels, err := store.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, meshdata.ChannelPrimary, channels[0].ChannelType)

	// The owning node number is recovered by matching the owner short name.
	snap := eng.LastSnapshot()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(305419896), snap.Identity.NodeNum)
}

func TestSyncFromConfigExportRejectsUnrelatedDocument(t *testing.T) {
	ctx := context.Background()
	eng, resolver := newTestEngine(t, &fakeSource{export: []byte("foo: bar\n")})

	summary := eng.SyncFromConfigExport(ctx)
	require.Error(t, summary.PassError)

	names, err := resolver.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRunDaemonExportPath(t *testing.T) {
	source := &fakeSource{export: []byte(passExport)}
	eng, resolver := newTestEngine(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	// The first pass runs before the ticker fires; with the export flag set
	// it must go through the config-export path.
	err := eng.RunDaemon(ctx, time.Hour, true)
	assert.ErrorIs(t, err, context.Canceled)

	store, _, err := resolver.Resolve(meshdata.DeviceIdentity{ShortName: "MBSE"})
	require.NoError(t, err)
	count, err := store.CountNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReportThenExportConverge(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{report: passReport, export: []byte(passExport)}
	eng, resolver := newTestEngine(t, source)

	require.NoError(t, eng.SyncFromReport(ctx).PassError)
	require.NoError(t, eng.SyncFromConfigExport(ctx).PassError)

	store, _, err := resolver.Resolve(meshdata.DeviceIdentity{ShortName: "MBSE"})
	require.NoError(t, err)

	// The export pass updated the first node in place and left the node the
	// export does not mention untouched.
	count, err := store.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	node, err := store.GetNode(ctx, "!12345678")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, uint8(72), node.BatteryLevel)
}
