package report

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `Connected to radio
Owner: Test Owner (TSTO)
My info: { "myNodeNum": 123456789, "rebootCount": 5 }
Metadata: { "firmwareVersion": "2.2.17", "role": "CLIENT", "hwModel": "HELTEC_V3" }
Nodes in mesh: {
  "!a1b2c3d4": {
    "num": 123456789,
    "user": {
      "longName": "Node A",
      "shortName": "NDA",
      "macaddr": "aa:bb:cc:dd:ee:ff",
      "hwModel": "HELTEC_V3"
    },
    "position": { "latitudeI": 450000000, "longitudeI": -930000000, "altitude": 250, "time": 1700000000 },
    "deviceMetrics": { "batteryLevel": 80, "voltage": 3.92, "channelUtilization": 5.5, "airUtilTx": 1.2 },
    "lastHeard": 1700000000,
    "snr": 6.25,
    "channel": 0
  }
}
Preferences: { "device": { "role": "CLIENT" }, "lora": { "region": "US" } }
Module preferences: { "mqtt": { "enabled": false } }
Channels: [ { "role": "PRIMARY", "settings": { "name": "LongFast", "psk": "AQ==", "uplinkEnabled": true } } ]
Primary channel URL: https://meshtastic.org/e/#ChMSAQE
`

func TestExtractSections(t *testing.T) {
	sections, err := ExtractSections(sampleReport)
	require.NoError(t, err)

	for _, name := range []string{
		SectionOwner, SectionMyInfo, SectionMetadata, SectionNodes,
		SectionPreferences, SectionModulePreferences, SectionChannels, SectionChannelURL,
	} {
		assert.Contains(t, sections, name)
	}

	assert.Equal(t, "Test Owner (TSTO)", sections[SectionOwner])
	assert.Equal(t, "https://meshtastic.org/e/#ChMSAQE", sections[SectionChannelURL])

	nodes := sections[SectionNodes]
	assert.True(t, strings.HasPrefix(nodes, "{"))
	assert.True(t, strings.HasSuffix(nodes, "}"))
	assert.Contains(t, nodes, `"!a1b2c3d4"`)
	// Multi-line payload must be captured through the balanced close, not a
	// fixed-length slice.
	assert.Contains(t, nodes, `"snr": 6.25`)
}

func TestExtractSectionsMissingSentinel(t *testing.T) {
	_, err := ExtractSections("Owner: Test Owner (TSTO)\nNodes in mesh: {}\n")
	require.Error(t, err)

	var extractErr *ExtractionError
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, "connection marker absent", extractErr.Reason)
}

func TestExtractSectionsLabelMustAnchorLine(t *testing.T) {
	text := "Connected to radio\nSee the Owner: field below\nOwner: Real Owner (REAL)\n"
	sections, err := ExtractSections(text)
	require.NoError(t, err)
	assert.Equal(t, "Real Owner (REAL)", sections[SectionOwner])
}

func TestExtractSectionsIgnoresAbsentSections(t *testing.T) {
	text := "Connected to radio\nOwner: Solo (SOLO)\n"
	sections, err := ExtractSections(text)
	require.NoError(t, err)
	assert.Contains(t, sections, SectionOwner)
	assert.NotContains(t, sections, SectionNodes)
}

func TestScanBalancedBracesInsideStrings(t *testing.T) {
	payload := `{"name": "weird {value}", "nested": {"a": "]"}}`
	body, ok := scanBalanced(payload)
	require.True(t, ok)
	assert.Equal(t, payload, body)
}

func TestScanBalancedUnterminated(t *testing.T) {
	_, ok := scanBalanced(`{"name": "open`)
	assert.False(t, ok)
}

func TestScanBalancedArray(t *testing.T) {
	payload := `[{"a": 1}, {"b": [2, 3]}]`
	body, ok := scanBalanced(payload + " trailing text")
	require.True(t, ok)
	assert.Equal(t, payload, body)
}
