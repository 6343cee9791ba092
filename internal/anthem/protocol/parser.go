package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	inputCountPattern  = regexp.MustCompile(`^ICN(\d+)$`)
	shortNamePattern   = regexp.MustCompile(`^ISN(\d{2})(.+)$`)
	legacyNamePattern  = regexp.MustCompile(`^IS(\d{1,2})IN(.+)$`)
	zonePattern        = regexp.MustCompile(`^Z(\d+)([A-Z]{3})(.*)$`)
	volumePattern      = regexp.MustCompile(`^(-?\d+)(\.\d+)?$`)
	digitsPattern      = regexp.MustCompile(`^\d+$`)
	unsignedIntPattern = regexp.MustCompile(`^(\d+)`)
)

// Parse decodes one framed line. It has no side effects. The input-name
// grammar is chosen by the caller from the known model; it is never
// guessed per line.
func Parse(line string, format InputNameFormat) Message {
	if line == "" {
		return Unrecognized{}
	}

	if strings.HasPrefix(line, respErrorInvalid) || strings.HasPrefix(line, respErrorExecution) {
		return DeviceError{Code: line[:2], Line: line}
	}

	switch {
	case strings.HasPrefix(line, respModel):
		return SystemModel{Model: strings.TrimSpace(line[len(respModel):])}
	case strings.HasPrefix(line, respDeviceName):
		return SystemInfo{Kind: InfoDeviceName, Value: strings.TrimSpace(line[len(respDeviceName):])}
	case strings.HasPrefix(line, respRegion):
		return SystemInfo{Kind: InfoRegion, Value: strings.TrimSpace(line[len(respRegion):])}
	case strings.HasPrefix(line, respSoftware):
		return SystemInfo{Kind: InfoSoftware, Value: strings.TrimSpace(line[len(respSoftware):])}
	}

	switch line {
	case respStandbyControl + valueOn:
		return StandbyControl{Enabled: true}
	case respStandbyControl + valueOff:
		return StandbyControl{Enabled: false}
	}

	if m := inputCountPattern.FindStringSubmatch(line); m != nil {
		count, err := strconv.Atoi(m[1])
		if err != nil || count > MaxInputCount {
			return Unrecognized{Line: line}
		}
		return InputCount{Count: count}
	}

	if strings.HasPrefix(line, "IS") {
		return parseInputName(line, format)
	}

	if m := zonePattern.FindStringSubmatch(line); m != nil {
		zone, err := strconv.Atoi(m[1])
		if err != nil {
			return Unrecognized{Line: line}
		}
		return parseZone(line, zone, m[2], m[3])
	}

	return Unrecognized{Line: line}
}

func parseInputName(line string, format InputNameFormat) Message {
	pattern := legacyNamePattern
	if format == InputNameShort {
		pattern = shortNamePattern
	}
	m := pattern.FindStringSubmatch(line)
	if m == nil {
		return Unrecognized{Line: line}
	}
	number, err := strconv.Atoi(m[1])
	if err != nil || number < 1 {
		return Unrecognized{Line: line}
	}
	name := strings.TrimSpace(m[2])
	if name == "" || name == querySuffix {
		return Unrecognized{Line: line}
	}
	return InputName{InputNumber: number, Name: name}
}

func parseZone(line string, zone int, tag, rest string) Message {
	z := Zone{Zone: zone}

	switch tag {
	case tagPower:
		on, ok := parseFlag(rest)
		if !ok {
			break
		}
		return ZonePower{Zone: z, On: on}

	case tagVolume:
		m := volumePattern.FindStringSubmatch(rest)
		if m == nil {
			break
		}
		value, err := strconv.ParseFloat(m[0], 64)
		if err != nil {
			break
		}
		// int() truncates toward zero: "-35.5" is -35 dB.
		return ZoneVolume{Zone: z, VolumeDB: int(value)}

	case tagMute:
		muted, ok := parseFlag(rest)
		if !ok {
			break
		}
		return ZoneMute{Zone: z, Muted: muted}

	case tagInput:
		if !digitsPattern.MatchString(rest) {
			break
		}
		number, err := strconv.Atoi(rest)
		if err != nil {
			break
		}
		return ZoneInput{Zone: z, InputNumber: number}

	case tagAudioFormat:
		if value, ok := textValue(rest); ok {
			return ZoneAudioFormat{Zone: z, Format: value}
		}

	case tagAudioChannels:
		if value, ok := textValue(rest); ok {
			return ZoneAudioChannels{Zone: z, Channels: value}
		}

	case tagVideoResolution:
		if value, ok := textValue(rest); ok {
			return ZoneVideoResolution{Zone: z, Resolution: value}
		}

	case tagListeningMode:
		if strings.HasSuffix(rest, querySuffix) {
			break
		}
		code, ok := leadingInt(rest)
		if !ok {
			break
		}
		return ZoneListeningMode{Zone: z, Code: code, Name: ListeningModeName(code)}

	case tagSampleRateInfo:
		if value, ok := textValue(rest); ok {
			return ZoneSampleRateInfo{Zone: z, Info: value}
		}

	case tagSampleRate:
		if rate, ok := leadingInt(rest); ok {
			return ZoneSampleRate{Zone: z, RateKHz: rate}
		}

	case tagBitDepth:
		if depth, ok := leadingInt(rest); ok {
			return ZoneBitDepth{Zone: z, Depth: depth}
		}
	}

	return Unrecognized{Line: line}
}

func parseFlag(value string) (bool, bool) {
	switch value {
	case valueOn:
		return true, true
	case valueOff:
		return false, true
	}
	return false, false
}

// textValue trims a free-text payload and any surrounding quotes. Empty
// payloads and query echoes are rejected.
func textValue(rest string) (string, bool) {
	value := strings.TrimSpace(rest)
	value = strings.Trim(value, `"`)
	value = strings.TrimSpace(value)
	if value == "" || value == querySuffix {
		return "", false
	}
	return value, true
}

func leadingInt(rest string) (int, bool) {
	m := unsignedIntPattern.FindStringSubmatch(strings.TrimSpace(rest))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
