package wiim

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// PlayState is the canonical playback state of a device.
type PlayState string

const (
	PlayStatePlaying PlayState = "playing"
	PlayStatePaused  PlayState = "paused"
	PlayStateStopped PlayState = "stopped"
	PlayStateIdle    PlayState = "idle"
)

// RepeatMode is the canonical repeat setting decoded from the LinkPlay
// loop code.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// StatusSnapshot is the canonical per-device state derived from one poll.
// Immutable once created; superseded as a whole by the next successful poll.
type StatusSnapshot struct {
	// Device identity as reported by firmware.
	UUID     string
	Name     string
	Model    string
	Firmware string

	// Playback.
	State    PlayState
	Title    string
	Artist   string
	Album    string
	Position time.Duration
	Duration time.Duration

	VolumeLevel float64 // 0.0-1.0
	Mute        bool
	Shuffle     bool
	Repeat      RepeatMode

	// Raw multiroom role hint. GuestHint is the "type"/"group" flag,
	// MasterUUID the referenced master if the device claims guest role.
	// Both are advisory only; the resolver cross-checks them against the
	// master's own slave list.
	GuestHint  bool
	MasterUUID string

	// Seq is a monotonically increasing poll sequence number, assigned
	// by the poll coordinator. PolledAt is the poll instant.
	Seq      uint64
	PolledAt time.Time
}

// rawPlayerStatus is the getPlayerStatusEx payload shape.
type rawPlayerStatus struct {
	Status *string `json:"status"`
	Vol    flexInt `json:"vol"`
	Mute   flexInt `json:"mute"`
	Loop   flexInt `json:"loop"`
	Curpos flexInt `json:"curpos"`
	Totlen flexInt `json:"totlen"`
	Title  string  `json:"Title"`
	Artist string  `json:"Artist"`
	Album  string  `json:"Album"`
	Type   flexInt `json:"type"`
}

// rawDeviceStatus is the getStatusEx payload shape. Only the fields the
// core consumes are listed; firmwares ship dozens more.
type rawDeviceStatus struct {
	UUID       string  `json:"uuid"`
	DeviceName string  `json:"DeviceName"`
	Project    string  `json:"project"`
	Firmware   string  `json:"firmware"`
	Group      flexInt `json:"group"`
	MasterUUID string  `json:"master_uuid"`
}

// parseStatus combines a player-status and a device-status payload into one
// canonical snapshot. A missing required field is a parse error.
func parseStatus(playerBody, deviceBody []byte) (*StatusSnapshot, error) {
	var player rawPlayerStatus
	if err := json.Unmarshal(playerBody, &player); err != nil {
		return nil, fmt.Errorf("%w: player status: %v", ErrParse, err)
	}
	var device rawDeviceStatus
	if err := json.Unmarshal(deviceBody, &device); err != nil {
		return nil, fmt.Errorf("%w: device status: %v", ErrParse, err)
	}

	if player.Status == nil {
		return nil, fmt.Errorf("%w: missing required field %q", ErrParse, "status")
	}
	if !player.Vol.Present() {
		return nil, fmt.Errorf("%w: missing required field %q", ErrParse, "vol")
	}
	if device.UUID == "" {
		return nil, fmt.Errorf("%w: missing required field %q", ErrParse, "uuid")
	}

	shuffle, repeat := decodeLoopMode(player.Loop.Int(4))

	return &StatusSnapshot{
		UUID:        device.UUID,
		Name:        device.DeviceName,
		Model:       device.Project,
		Firmware:    device.Firmware,
		State:       decodePlayState(*player.Status),
		Title:       hexToString(player.Title),
		Artist:      hexToString(player.Artist),
		Album:       hexToString(player.Album),
		Position:    time.Duration(player.Curpos.Int(0)) * time.Millisecond,
		Duration:    time.Duration(player.Totlen.Int(0)) * time.Millisecond,
		VolumeLevel: VolumeLevel(player.Vol.Int(0)),
		Mute:        player.Mute.Bool(),
		Shuffle:     shuffle,
		Repeat:      repeat,
		GuestHint:   player.Type.Bool() || device.Group.Bool(),
		MasterUUID:  device.MasterUUID,
		PolledAt:    time.Now(),
	}, nil
}

func decodePlayState(raw string) PlayState {
	switch raw {
	case "play":
		return PlayStatePlaying
	case "pause":
		return PlayStatePaused
	case "stop":
		return PlayStateStopped
	default:
		return PlayStateIdle
	}
}

// decodeLoopMode translates the LinkPlay loop code into shuffle/repeat.
func decodeLoopMode(loop int) (shuffle bool, repeat RepeatMode) {
	switch loop {
	case 0:
		return false, RepeatAll
	case 1:
		return false, RepeatOne
	case 2:
		return true, RepeatAll
	case 3:
		return true, RepeatOff
	default:
		return false, RepeatOff
	}
}

// VolumeLevel maps a device volume (0-100) to the canonical 0.0-1.0 scale.
func VolumeLevel(vol int) float64 {
	return clampLevel(float64(vol) / 100)
}

// DeviceVolume maps a canonical level back to the 0-100 device scale.
func DeviceVolume(level float64) int {
	return int(math.Round(clampLevel(level) * 100))
}

func clampLevel(level float64) float64 {
	return math.Min(1, math.Max(0, level))
}

// hexToString decodes the hex-encoded UTF-8 strings LinkPlay uses for track
// metadata. Values that are not valid hex (already plain text on some
// firmwares) pass through unchanged.
func hexToString(val string) string {
	if val == "" {
		return ""
	}
	decoded, err := hex.DecodeString(val)
	if err != nil || !utf8.Valid(decoded) {
		return val
	}
	return string(decoded)
}
