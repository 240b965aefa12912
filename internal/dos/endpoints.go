package dos

import "net/url"

const (
	apiPrefix     = "/ipcontrol/v1"
	devicesPrefix = apiPrefix + "/devices"
	systemPrefix  = apiPrefix + "/systems/current"
	groupsPrefix  = apiPrefix + "/groups/current"
)

// Query endpoints (GET)
const (
	PathDeviceInfo    = devicesPrefix + "/current"
	PathVolume        = systemPrefix + "/sources/current/soundControl/volume"
	PathNightMode     = systemPrefix + "/settings/audio/nightMode"
	PathEqualizer     = systemPrefix + "/settings/audio/equalizer"
	PathPower         = systemPrefix + "/power"
	PathSoundMode     = systemPrefix + "/settings/audio/soundMode"
	PathSources       = groupsPrefix + "/sources"
	PathCurrentSource = groupsPrefix + "/sources/current"
)

// Mutation endpoints (POST)
const (
	PathPowerOff   = systemPrefix + "/powerOff"
	PathVolumeUp   = systemPrefix + "/sources/current/soundControl/volumeUp"
	PathVolumeDown = systemPrefix + "/sources/current/soundControl/volumeDown"
	PathMute       = groupsPrefix + "/sources/current/playback/mute"
	PathUnmute     = groupsPrefix + "/sources/current/playback/unmute"
	PathPlay       = groupsPrefix + "/sources/current/playback/play"
	PathPause      = groupsPrefix + "/sources/current/playback/pause"
	PathPrevious   = groupsPrefix + "/sources/current/playback/previous"
	PathNext       = groupsPrefix + "/sources/current/playback/next"
)

// SelectSourcePath returns the endpoint that starts playback on a source
func SelectSourcePath(sourceID string) string {
	return groupsPrefix + "/sources/" + url.PathEscape(sourceID) + "/playback/play"
}
