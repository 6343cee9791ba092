package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncoder_ZoneCommands(t *testing.T) {
	enc := NewEncoder(Dialect{})

	require.Equal(t, "Z1POW1", enc.Power(1, true))
	require.Equal(t, "Z2POW0", enc.Power(2, false))
	require.Equal(t, "Z1VOL-35", enc.SetVolume(1, -35))
	require.Equal(t, "Z1MUT1", enc.Mute(1, true))
	require.Equal(t, "Z1MUT0", enc.Mute(1, false))
	require.Equal(t, "Z3INP7", enc.SelectInput(3, 7))
	require.Equal(t, "Z1ALM5", enc.SetListeningMode(1, 5))
	require.Equal(t, "Z1POW?", enc.QueryPower(1))
	require.Equal(t, "Z1VOL?", enc.QueryVolume(1))
	require.Equal(t, "Z1MUT?", enc.QueryMute(1))
	require.Equal(t, "Z1INP?", enc.QueryInput(1))
}

func TestEncoder_SetVolumeClamps(t *testing.T) {
	enc := NewEncoder(Dialect{})

	require.Equal(t, "Z1VOL0", enc.SetVolume(1, 12))
	require.Equal(t, "Z1VOL-90", enc.SetVolume(1, -120))
}

func TestEncoder_VolumeStepSuffix(t *testing.T) {
	legacy := NewEncoder(Dialect{})
	require.Equal(t, "Z1VUP", legacy.VolumeUp(1))
	require.Equal(t, "Z1VDN", legacy.VolumeDown(1))

	newer := NewEncoder(Dialect{StepSuffix: true})
	require.Equal(t, "Z2VUP01", newer.VolumeUp(2))
	require.Equal(t, "Z2VDN01", newer.VolumeDown(2))
}

func TestEncoder_MuteToggleIsCapability(t *testing.T) {
	_, err := NewEncoder(Dialect{}).MuteToggle(1)
	require.ErrorIs(t, err, ErrUnsupported)

	cmd, err := NewEncoder(Dialect{NativeMuteToggle: true}).MuteToggle(1)
	require.NoError(t, err)
	require.Equal(t, "Z1MUTt", cmd)
}

func TestEncoder_InputNameQuery(t *testing.T) {
	require.Equal(t, "IS3IN?", NewEncoder(Dialect{InputNames: InputNameLegacy}).InputNameQuery(3))
	require.Equal(t, "ISN03?", NewEncoder(Dialect{InputNames: InputNameShort}).InputNameQuery(3))
	require.Equal(t, "ISN12?", NewEncoder(Dialect{InputNames: InputNameShort}).InputNameQuery(12))
}

func TestEncoder_Handshake(t *testing.T) {
	commands := NewEncoder(Dialect{}).Handshake([]int{1, 2})

	require.Equal(t, []string{"ECH0", "SIP1", "IDM?", "ICN?", "Z1POW?", "Z2POW?"}, commands)
}

func TestEncoder_AudioInfoQueries(t *testing.T) {
	commands := NewEncoder(Dialect{}).AudioInfoQueries(2)

	require.Equal(t, []string{"Z2AIF?", "Z2AIC?", "Z2VIR?", "Z2ALM?", "Z2AIR?", "Z2SRT?", "Z2BDP?"}, commands)
}

func TestDialectForModel(t *testing.T) {
	for _, model := range []string{"MRX 520", "MRX 720", "MRX 1120", "MRX 740", "MRX1140", "AVM 60", "AVM 90"} {
		dialect := DialectForModel(model, false)
		require.Equal(t, InputNameShort, dialect.InputNames, model)
		require.True(t, dialect.StepSuffix, model)
	}

	for _, model := range []string{"", "MRX 710", "MRX 310", "AVM 50v", "STR Integrated"} {
		dialect := DialectForModel(model, true)
		require.Equal(t, InputNameLegacy, dialect.InputNames, model)
		require.False(t, dialect.StepSuffix, model)
		require.True(t, dialect.NativeMuteToggle, model)
	}
}

func TestVolumeConversions(t *testing.T) {
	for _, db := range []int{-90, -45, 0} {
		require.Equal(t, db, PercentToDB(DBToPercent(db)), "dB %d", db)
	}

	require.Equal(t, 0, DBToPercent(-90))
	require.Equal(t, 100, DBToPercent(0))
	require.Equal(t, 50, DBToPercent(-45))
	require.Equal(t, -90, PercentToDB(0))
	require.Equal(t, 0, PercentToDB(100))

	require.Equal(t, 0, DBToPercent(-200))
	require.Equal(t, 100, DBToPercent(10))
	require.Equal(t, -90, PercentToDB(-5))
	require.Equal(t, 0, PercentToDB(150))
}

func TestListeningModeLookup(t *testing.T) {
	require.Equal(t, "Direct", ListeningModeName(15))
	require.Equal(t, "Mode 99", ListeningModeName(99))

	code, ok := ListeningModeCode("Dolby Surround")
	require.True(t, ok)
	require.Equal(t, 3, code)

	_, ok = ListeningModeCode("Nope")
	require.False(t, ok)
}
