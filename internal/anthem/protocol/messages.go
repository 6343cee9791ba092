package protocol

// Message is one decoded protocol line. The set of implementations is
// closed; consumers switch on the concrete type.
type Message interface {
	isMessage()
}

// ZoneMessage is implemented by every zone-scoped message.
type ZoneMessage interface {
	Message
	ZoneNumber() int
}

// DeviceError is a "!I" (invalid command) or "!E" (execution failed) reply.
type DeviceError struct {
	Code string
	Line string
}

// SystemModel carries the IDM model string.
type SystemModel struct {
	Model string
}

// SystemInfoKind identifies the IDN/IDR/IDS records.
type SystemInfoKind string

const (
	InfoDeviceName SystemInfoKind = "device_name"
	InfoRegion     SystemInfoKind = "region"
	InfoSoftware   SystemInfoKind = "software_version"
)

// SystemInfo carries one of the string-valued identification records.
type SystemInfo struct {
	Kind  SystemInfoKind
	Value string
}

// StandbyControl reports whether standby IP control (SIP) is enabled.
type StandbyControl struct {
	Enabled bool
}

// InputCount is the ICN reply.
type InputCount struct {
	Count int
}

// InputName is an ISN or IS..IN reply. Input numbers are 1-based.
type InputName struct {
	InputNumber int
	Name        string
}

// Zone carries the zone number shared by zone-scoped messages.
type Zone struct {
	Zone int
}

// ZoneNumber returns the zone the message refers to.
func (z Zone) ZoneNumber() int { return z.Zone }

type ZonePower struct {
	Zone
	On bool
}

type ZoneVolume struct {
	Zone
	VolumeDB int
}

type ZoneMute struct {
	Zone
	Muted bool
}

type ZoneInput struct {
	Zone
	InputNumber int
}

type ZoneAudioFormat struct {
	Zone
	Format string
}

type ZoneAudioChannels struct {
	Zone
	Channels string
}

type ZoneVideoResolution struct {
	Zone
	Resolution string
}

type ZoneListeningMode struct {
	Zone
	Code int
	Name string
}

type ZoneSampleRateInfo struct {
	Zone
	Info string
}

// ZoneSampleRate is the SRT reply in kHz.
type ZoneSampleRate struct {
	Zone
	RateKHz int
}

type ZoneBitDepth struct {
	Zone
	Depth int
}

// Unrecognized is any line this package does not model.
type Unrecognized struct {
	Line string
}

func (DeviceError) isMessage()         {}
func (SystemModel) isMessage()         {}
func (SystemInfo) isMessage()          {}
func (StandbyControl) isMessage()      {}
func (InputCount) isMessage()          {}
func (InputName) isMessage()           {}
func (ZonePower) isMessage()           {}
func (ZoneVolume) isMessage()          {}
func (ZoneMute) isMessage()            {}
func (ZoneInput) isMessage()           {}
func (ZoneAudioFormat) isMessage()     {}
func (ZoneAudioChannels) isMessage()   {}
func (ZoneVideoResolution) isMessage() {}
func (ZoneListeningMode) isMessage()   {}
func (ZoneSampleRateInfo) isMessage()  {}
func (ZoneSampleRate) isMessage()      {}
func (ZoneBitDepth) isMessage()        {}
func (Unrecognized) isMessage()        {}
