package wiim

import "fmt"

// LinkPlay HTTP command tokens. All commands are issued as
// GET https://<host>/httpapi.asp?command=<token>.
const (
	cmdPlayerStatus       = "getPlayerStatusEx"
	cmdPlayerStatusLegacy = "getPlayerStatus"
	cmdDeviceStatus       = "getStatusEx"
	cmdSlaveList          = "multiroom:getSlaveList"

	cmdPlay  = "setPlayerCmd:play"
	cmdPause = "setPlayerCmd:pause"
	cmdStop  = "setPlayerCmd:stop"

	cmdVolumePrefix = "setPlayerCmd:vol:"
	cmdMutePrefix   = "setPlayerCmd:mute:"
	cmdPresetPrefix = "MCUKeyShortClick:"

	cmdGroupCreate     = "setMultiroom:Master"
	cmdGroupJoinPrefix = "setMultiroom:Slave:"
	cmdGroupExit       = "setMultiroom:Exit"
	cmdGroupDelete     = "setMultiroom:Delete"
)

func volumeCommand(vol int) string {
	return fmt.Sprintf("%s%d", cmdVolumePrefix, vol)
}

func muteCommand(mute bool) string {
	if mute {
		return cmdMutePrefix + "1"
	}
	return cmdMutePrefix + "0"
}

func presetCommand(preset int) string {
	return fmt.Sprintf("%s%d", cmdPresetPrefix, preset)
}

func joinGroupCommand(masterHost string) string {
	return cmdGroupJoinPrefix + masterHost
}
