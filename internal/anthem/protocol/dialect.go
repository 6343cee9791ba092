package protocol

import "regexp"

// InputNameFormat selects one of the two input-name grammars.
type InputNameFormat int

const (
	// InputNameLegacy is IS<n>IN<name>, used by MRX x10 and older units.
	InputNameLegacy InputNameFormat = iota
	// InputNameShort is ISN<nn><name>, used by MRX x20/x40 and AVM 60/70/90.
	InputNameShort
)

func (f InputNameFormat) String() string {
	if f == InputNameShort {
		return "ISN"
	}
	return "IS..IN"
}

// Dialect captures the model-specific formatting differences.
type Dialect struct {
	InputNames InputNameFormat
	// StepSuffix appends "01" to VUP/VDN.
	StepSuffix bool
	// NativeMuteToggle enables MUTt.
	NativeMuteToggle bool
}

var newerFamily = regexp.MustCompile(`(?i)\b(MRX\s*-?\s*(5|7|11)[24]0|AVM\s*-?\s*(60|70|90))\b`)

// IsNewerFamily reports whether a model string belongs to the ISN family.
func IsNewerFamily(model string) bool {
	return newerFamily.MatchString(model)
}

// DialectForModel derives the dialect from an IDM model string. An unknown
// or empty model gets the legacy dialect.
func DialectForModel(model string, nativeMuteToggle bool) Dialect {
	if IsNewerFamily(model) {
		return Dialect{InputNames: InputNameShort, StepSuffix: true, NativeMuteToggle: nativeMuteToggle}
	}
	return Dialect{InputNames: InputNameLegacy, NativeMuteToggle: nativeMuteToggle}
}
