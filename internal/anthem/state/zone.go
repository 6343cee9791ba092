package state

import "github.com/strefethen/anthem-hub-go/internal/anthem/protocol"

// Unknown is the placeholder for telemetry not yet reported.
const Unknown = "Unknown"

// Attribute names a ZoneState field in change notifications.
type Attribute string

const (
	AttrPower           Attribute = "power"
	AttrVolume          Attribute = "volume"
	AttrMuted           Attribute = "muted"
	AttrInput           Attribute = "input"
	AttrAudioFormat     Attribute = "audio_format"
	AttrAudioChannels   Attribute = "audio_channels"
	AttrVideoResolution Attribute = "video_resolution"
	AttrListeningMode   Attribute = "listening_mode"
	AttrSampleRateInfo  Attribute = "sample_rate_info"
	AttrSampleRate      Attribute = "sample_rate"
	AttrBitDepth        Attribute = "bit_depth"
)

// ZoneState is the cached state of one zone.
type ZoneState struct {
	Zone                int    `json:"zone"`
	Power               bool   `json:"power"`
	VolumeDB            int    `json:"volume_db"`
	Muted               bool   `json:"muted"`
	InputNumber         int    `json:"input_number"`
	InputName           string `json:"input_name"`
	AudioFormat         string `json:"audio_format"`
	AudioChannels       string `json:"audio_channels"`
	VideoResolution     string `json:"video_resolution"`
	ListeningMode       string `json:"listening_mode"`
	ListeningModeNumber int    `json:"listening_mode_number"`
	SampleRateInfo      string `json:"sample_rate_info"`
	SampleRateKHz       int    `json:"sample_rate_khz"`
	BitDepth            int    `json:"bit_depth"`
}

// VolumePercent is the linear 0..100 rendering of VolumeDB.
func (z ZoneState) VolumePercent() int {
	return protocol.DBToPercent(z.VolumeDB)
}

func newZoneState(zone int) *ZoneState {
	return &ZoneState{
		Zone:            zone,
		VolumeDB:        protocol.MinVolumeDB,
		InputName:       Unknown,
		AudioFormat:     Unknown,
		AudioChannels:   Unknown,
		VideoResolution: Unknown,
		ListeningMode:   Unknown,
		SampleRateInfo:  Unknown,
	}
}
