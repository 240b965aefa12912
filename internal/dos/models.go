package dos

import (
	"fmt"
	"strings"
)

// Release describes the firmware running on a device
type Release struct {
	BuildType        string `json:"buildType"`
	CanonicalVersion string `json:"canonicalVersion"`
	Version          string `json:"version"`
}

// DeviceInformation is the document served at PathDeviceInfo.
// Discovery uses DeviceID as the stable identity and GroupID/IsSystemLeader
// to assemble groups.
type DeviceInformation struct {
	AvailableFeatures []string `json:"availableFeatures"`
	DeviceID          string   `json:"deviceId"`
	DeviceName        string   `json:"deviceName"`
	FirmwareFamily    string   `json:"firmwareFamily"`
	GroupID           string   `json:"groupId"`
	InstallationID    string   `json:"installationId"`
	IPControlVersion  string   `json:"ipControlVersion"`
	IsSystemLeader    bool     `json:"isSystemLeader"`
	Model             string   `json:"model"`
	ModelFamily       string   `json:"modelFamily"`
	PowerRating       string   `json:"powerRating"`
	Release           Release  `json:"release"`
	Role              string   `json:"role"`
	Serial            string   `json:"serial"`
	SetupState        string   `json:"setupState"`
	SystemID          string   `json:"systemId"`
}

// Clone returns a deep copy
func (d DeviceInformation) Clone() DeviceInformation {
	if d.AvailableFeatures != nil {
		d.AvailableFeatures = append([]string(nil), d.AvailableFeatures...)
	}
	return d
}

// HasFeature reports whether the device advertises a feature
func (d DeviceInformation) HasFeature(feature string) bool {
	for _, f := range d.AvailableFeatures {
		if strings.EqualFold(f, feature) {
			return true
		}
	}
	return false
}

// String returns a human-readable summary
func (d DeviceInformation) String() string {
	role := "member"
	if d.IsSystemLeader {
		role = "leader"
	}
	return fmt.Sprintf("%s %s (%s, %s, group %s)", d.Model, d.DeviceName, d.DeviceID, role, d.GroupID)
}

// SourceType identifies the kind of audio input
type SourceType string

const (
	SourceAirplay          SourceType = "airplay2"
	SourceBluetooth        SourceType = "bluetooth"
	SourceDigitalLeft      SourceType = "digital_left"
	SourceDigitalRight     SourceType = "digital_right"
	SourceLine             SourceType = "line"
	SourceUPnP             SourceType = "upnp"
	SourceOptical          SourceType = "optical"
	SourceOpticalLeft      SourceType = "optical_left"
	SourceOpticalRight     SourceType = "optical_right"
	SourceOpticalJack      SourceType = "opticaljack"
	SourceOpticalJackLeft  SourceType = "opticaljack_left"
	SourceOpticalJackRight SourceType = "opticaljack_right"
	SourcePhono            SourceType = "phono"
	SourceRaat             SourceType = "raat"
	SourceSpotifyConnect   SourceType = "spotifyconnect"
)

var knownSourceTypes = map[SourceType]bool{
	SourceAirplay: true, SourceBluetooth: true, SourceDigitalLeft: true, SourceDigitalRight: true,
	SourceLine: true, SourceUPnP: true, SourceOptical: true, SourceOpticalLeft: true,
	SourceOpticalRight: true, SourceOpticalJack: true, SourceOpticalJackLeft: true,
	SourceOpticalJackRight: true, SourcePhono: true, SourceRaat: true, SourceSpotifyConnect: true,
}

// Valid reports whether t is one of the source types devices report
func (t SourceType) Valid() bool {
	return knownSourceTypes[t]
}

// Source is one selectable audio input of a group
type Source struct {
	DeviceID string     `json:"deviceId"`
	SourceID string     `json:"sourceId"`
	Type     SourceType `json:"type"`
}

// TrackMetadata describes what is currently playing
type TrackMetadata struct {
	Album               string  `json:"album"`
	Artist              string  `json:"artist"`
	CoverArtDataPresent bool    `json:"coverArtDataPresent"`
	Duration            float64 `json:"duration"`
	MediaType           string  `json:"mediaType"`
	Title               string  `json:"title"`
}

// Playback operations a source may allow
const (
	OperationPlay     = "play"
	OperationPause    = "pause"
	OperationNext     = "next"
	OperationPrevious = "previous"
	OperationSeek     = "seek"
)

// GroupState is the playback state of the current source of a group
type GroupState struct {
	AvailableOperations []string       `json:"availableOperations"`
	Metadata            *TrackMetadata `json:"metadata,omitempty"`
	MuteState           string         `json:"muteState"`
	PeerDeviceName      string         `json:"peerDeviceName"`
	PlayingState        string         `json:"playingState"`
	Source              Source         `json:"source"`
}

// Muted reports whether the group is muted
func (s *GroupState) Muted() bool {
	return s.MuteState == "muted"
}

// Playing reports whether the group is playing
func (s *GroupState) Playing() bool {
	return s.PlayingState == "playing"
}

// ErrorBody is the document a device returns instead of a result, e.g. when no
// source is active
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
