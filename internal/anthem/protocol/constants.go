package protocol

import "strconv"

// DefaultPort is the Anthem IP control port.
const DefaultPort = 14999

// MaxInputCount is the largest ICN value the two-digit ISN index can
// address. Larger counts are treated as line noise.
const MaxInputCount = 99

// Terminators used by the two protocol families.
const (
	TerminatorSemicolon byte = ';'
	TerminatorCR        byte = '\r'
)

// System commands.
const (
	CmdEchoOff          = "ECH0"
	CmdStandbyIPControl = "SIP1"
	CmdModelQuery       = "IDM?"
	CmdInputCountQuery  = "ICN?"
)

// Response prefixes.
const (
	respErrorInvalid   = "!I"
	respErrorExecution = "!E"
	respModel          = "IDM"
	respDeviceName     = "IDN"
	respRegion         = "IDR"
	respSoftware       = "IDS"
	respStandbyControl = "SIP"
	respInputCount     = "ICN"
)

// Zone sub-tags. Commands and responses share them.
const (
	tagPower           = "POW"
	tagVolume          = "VOL"
	tagVolumeUp        = "VUP"
	tagVolumeDown      = "VDN"
	tagMute            = "MUT"
	tagInput           = "INP"
	tagAudioFormat     = "AIF"
	tagAudioChannels   = "AIC"
	tagVideoResolution = "VIR"
	tagListeningMode   = "ALM"
	tagSampleRateInfo  = "AIR"
	tagSampleRate      = "SRT"
	tagBitDepth        = "BDP"
)

const (
	querySuffix = "?"
	valueOn     = "1"
	valueOff    = "0"
	valueToggle = "t"
)

// Volume bounds in dB.
const (
	MinVolumeDB = -90
	MaxVolumeDB = 0
)

// ListeningModes maps ALM codes to display names.
var ListeningModes = map[int]string{
	0:  "None",
	1:  "AnthemLogic Cinema",
	2:  "AnthemLogic Music",
	3:  "Dolby Surround",
	4:  "DTS Neural:X",
	5:  "Stereo",
	6:  "Multi-Channel Stereo",
	7:  "All-Channel Stereo",
	8:  "PLIIx Movie",
	9:  "PLIIx Music",
	10: "Neo:6 Cinema",
	11: "Neo:6 Music",
	12: "Dolby Digital",
	13: "DTS",
	14: "PCM Stereo",
	15: "Direct",
}

// ListeningModeName returns the display name for an ALM code.
func ListeningModeName(code int) string {
	if name, ok := ListeningModes[code]; ok {
		return name
	}
	return "Mode " + strconv.Itoa(code)
}

// ListeningModeCode resolves a display name back to its ALM code.
func ListeningModeCode(name string) (int, bool) {
	for code, modeName := range ListeningModes {
		if modeName == name {
			return code, true
		}
	}
	return 0, false
}

// DefaultInputs is the source list offered before the receiver reports anything.
var DefaultInputs = []string{
	"HDMI 1", "HDMI 2", "HDMI 3", "HDMI 4",
	"HDMI 5", "HDMI 6", "HDMI 7", "HDMI 8",
	"Analog 1", "Analog 2",
	"Digital 1", "Digital 2",
	"USB", "Network", "ARC",
}
