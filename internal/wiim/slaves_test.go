package wiim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlaveList(t *testing.T) {
	payload := `{
		"slaves": 2,
		"slave_list": [
			{
				"name": "4b69746368656e",
				"uuid": "AA31F09E1A5020113B0A3918",
				"ip": "192.168.1.21",
				"volume": "35",
				"mute": "1",
				"channel": "1"
			},
			{
				"name": "Bedroom",
				"uuid": "BB31F09E1A5020113B0A3918",
				"ip": "192.168.1.22",
				"volume": 80,
				"mute": 0,
				"channel": 0
			}
		]
	}`

	list, err := parseSlaveList([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, 2, list.Count)
	require.Len(t, list.Slaves, 2)

	kitchen := list.Slaves[0]
	assert.Equal(t, "Kitchen", kitchen.Name)
	assert.Equal(t, "AA31F09E1A5020113B0A3918", kitchen.UUID)
	assert.Equal(t, "192.168.1.21", kitchen.IP)
	assert.InDelta(t, 0.35, kitchen.VolumeLevel, 0.001)
	assert.True(t, kitchen.Mute)
	assert.Equal(t, ChannelLeft, kitchen.Channel)

	bedroom := list.Slaves[1]
	assert.Equal(t, "Bedroom", bedroom.Name)
	assert.InDelta(t, 0.80, bedroom.VolumeLevel, 0.001)
	assert.False(t, bedroom.Mute)
	assert.Equal(t, ChannelStereo, bedroom.Channel)
}

func TestParseSlaveListEmpty(t *testing.T) {
	// A solo or guest device reports an empty list; that is a valid,
	// successful result.
	list, err := parseSlaveList([]byte(`{"slaves": 0, "slave_list": []}`))
	require.NoError(t, err)
	assert.Equal(t, 0, list.Count)
	assert.Empty(t, list.Slaves)
	assert.Empty(t, list.MasterUUID)
}

func TestParseSlaveListGuestReport(t *testing.T) {
	// Guests report their master in the same response on some firmwares.
	list, err := parseSlaveList([]byte(`{"slaves": 0, "slave_list": [], "master_uuid": "FF31F09E1A5020113B0A3918"}`))
	require.NoError(t, err)
	assert.Equal(t, "FF31F09E1A5020113B0A3918", list.MasterUUID)
}

func TestParseSlaveListMalformed(t *testing.T) {
	_, err := parseSlaveList([]byte(`unknown command`))
	require.ErrorIs(t, err, ErrParse)
}
