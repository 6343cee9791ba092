package protocol

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned for commands the dialect cannot express.
var ErrUnsupported = errors.New("command not supported by this receiver")

// Encoder builds outbound command strings, without the terminator.
type Encoder struct {
	Dialect Dialect
}

// NewEncoder creates an encoder for the given dialect.
func NewEncoder(dialect Dialect) Encoder {
	return Encoder{Dialect: dialect}
}

func zoneCommand(zone int, tag, value string) string {
	return fmt.Sprintf("Z%d%s%s", zone, tag, value)
}

// Power turns a zone on or off.
func (e Encoder) Power(zone int, on bool) string {
	if on {
		return zoneCommand(zone, tagPower, valueOn)
	}
	return zoneCommand(zone, tagPower, valueOff)
}

// SetVolume sets an absolute level. Out-of-range values are clamped.
func (e Encoder) SetVolume(zone, db int) string {
	return zoneCommand(zone, tagVolume, fmt.Sprintf("%d", ClampVolumeDB(db)))
}

// VolumeUp steps the volume up by one.
func (e Encoder) VolumeUp(zone int) string {
	return zoneCommand(zone, tagVolumeUp, e.stepSuffix())
}

// VolumeDown steps the volume down by one.
func (e Encoder) VolumeDown(zone int) string {
	return zoneCommand(zone, tagVolumeDown, e.stepSuffix())
}

func (e Encoder) stepSuffix() string {
	if e.Dialect.StepSuffix {
		return "01"
	}
	return ""
}

// Mute sets the mute state explicitly.
func (e Encoder) Mute(zone int, muted bool) string {
	if muted {
		return zoneCommand(zone, tagMute, valueOn)
	}
	return zoneCommand(zone, tagMute, valueOff)
}

// MuteToggle uses the receiver's native toggle.
func (e Encoder) MuteToggle(zone int) (string, error) {
	if !e.Dialect.NativeMuteToggle {
		return "", ErrUnsupported
	}
	return zoneCommand(zone, tagMute, valueToggle), nil
}

// SelectInput selects an input by its 1-based number.
func (e Encoder) SelectInput(zone, input int) string {
	return zoneCommand(zone, tagInput, fmt.Sprintf("%d", input))
}

// SetListeningMode selects an ALM code.
func (e Encoder) SetListeningMode(zone, code int) string {
	return zoneCommand(zone, tagListeningMode, fmt.Sprintf("%d", code))
}

func (e Encoder) QueryPower(zone int) string  { return zoneCommand(zone, tagPower, querySuffix) }
func (e Encoder) QueryVolume(zone int) string { return zoneCommand(zone, tagVolume, querySuffix) }
func (e Encoder) QueryMute(zone int) string   { return zoneCommand(zone, tagMute, querySuffix) }
func (e Encoder) QueryInput(zone int) string  { return zoneCommand(zone, tagInput, querySuffix) }

// AudioInfoQueries lists the telemetry queries for a zone in send order.
func (e Encoder) AudioInfoQueries(zone int) []string {
	tags := []string{
		tagAudioFormat,
		tagAudioChannels,
		tagVideoResolution,
		tagListeningMode,
		tagSampleRateInfo,
		tagSampleRate,
		tagBitDepth,
	}
	commands := make([]string, 0, len(tags))
	for _, tag := range tags {
		commands = append(commands, zoneCommand(zone, tag, querySuffix))
	}
	return commands
}

// InputNameQuery asks for the name of one input slot.
func (e Encoder) InputNameQuery(input int) string {
	if e.Dialect.InputNames == InputNameShort {
		return fmt.Sprintf("ISN%02d?", input)
	}
	return fmt.Sprintf("IS%dIN?", input)
}

// Handshake returns the initialization commands sent after connect.
func (e Encoder) Handshake(zones []int) []string {
	commands := []string{CmdEchoOff, CmdStandbyIPControl, CmdModelQuery, CmdInputCountQuery}
	for _, zone := range zones {
		commands = append(commands, e.QueryPower(zone))
	}
	return commands
}
