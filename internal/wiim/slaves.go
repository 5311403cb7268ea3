package wiim

import (
	"encoding/json"
	"fmt"
)

// Channel assignment of a group member.
const (
	ChannelStereo = 0
	ChannelLeft   = 1
	ChannelRight  = 2
)

// SlaveInfo is one canonicalized entry from a master's slave list.
type SlaveInfo struct {
	Name        string
	UUID        string
	IP          string
	VolumeLevel float64 // 0.0-1.0
	Mute        bool
	Channel     int
}

// SlaveList is the result of the group-membership query. An empty list is a
// valid, successful result: the device is solo or itself a guest.
type SlaveList struct {
	Count  int
	Slaves []SlaveInfo

	// MasterUUID is set when the queried device is itself a guest and
	// the firmware reports its master in the same response.
	MasterUUID string
}

type rawSlaveEntry struct {
	Name    string  `json:"name"`
	UUID    string  `json:"uuid"`
	IP      string  `json:"ip"`
	Volume  flexInt `json:"volume"`
	Mute    flexInt `json:"mute"`
	Channel flexInt `json:"channel"`
}

type rawSlaveList struct {
	Slaves     flexInt         `json:"slaves"`
	SlaveList  []rawSlaveEntry `json:"slave_list"`
	MasterUUID string          `json:"master_uuid"`
}

// parseSlaveList canonicalizes the multiroom:getSlaveList payload: device
// volumes 0-100 become 0.0-1.0 levels, hex-encoded names are decoded to
// UTF-8 and integer mute flags become booleans.
func parseSlaveList(body []byte) (*SlaveList, error) {
	var raw rawSlaveList
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: slave list: %v", ErrParse, err)
	}

	list := &SlaveList{
		Count:      raw.Slaves.Int(len(raw.SlaveList)),
		Slaves:     make([]SlaveInfo, 0, len(raw.SlaveList)),
		MasterUUID: raw.MasterUUID,
	}
	for _, entry := range raw.SlaveList {
		list.Slaves = append(list.Slaves, SlaveInfo{
			Name:        hexToString(entry.Name),
			UUID:        entry.UUID,
			IP:          entry.IP,
			VolumeLevel: VolumeLevel(entry.Volume.Int(0)),
			Mute:        entry.Mute.Bool(),
			Channel:     entry.Channel.Int(ChannelStereo),
		})
	}
	return list, nil
}
