package state

import (
	"bytes"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/anthem-hub-go/internal/anthem/protocol"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T, seed []string) (*Store, *fakeClock, *bytes.Buffer) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var buf bytes.Buffer
	store := NewStore(seed, WithClock(clock.now), WithLogger(log.New(&buf, "", 0)))
	return store, clock, &buf
}

func applyLine(s *Store, line string, format protocol.InputNameFormat) Effects {
	return s.Apply(protocol.Parse(line, format))
}

func TestStore_DiscoveryCompletesExactlyOnce(t *testing.T) {
	store, _, _ := newTestStore(t, nil)

	fx := applyLine(store, "ICN3", protocol.InputNameShort)
	require.Equal(t, 3, fx.StartDiscovery)
	require.Nil(t, fx.DiscoveryComplete)

	completions := 0
	for _, line := range []string{"ISN01Apple TV", "ISN02Blu-ray", "ISN03Game"} {
		fx = applyLine(store, line, protocol.InputNameShort)
		if fx.DiscoveryComplete != nil {
			completions++
			require.Equal(t, "ISN03Game", line)
			require.Equal(t, []string{"Apple TV", "Blu-ray", "Game"}, fx.DiscoveryComplete)
		}
	}
	require.Equal(t, 1, completions)
	require.True(t, store.DiscoveryComplete())
	require.Empty(t, store.MissingInputs())

	// A repeat of an already-known name does not complete again.
	fx = applyLine(store, "ISN02Blu-ray", protocol.InputNameShort)
	require.Nil(t, fx.DiscoveryComplete)
}

func TestStore_NewCountStartsNewRound(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	applyLine(store, "ICN1", protocol.InputNameLegacy)
	fx := applyLine(store, "IS1INTV", protocol.InputNameLegacy)
	require.Equal(t, []string{"TV"}, fx.DiscoveryComplete)

	applyLine(store, "ICN2", protocol.InputNameLegacy)
	require.False(t, store.DiscoveryComplete())
	require.Equal(t, []int{2}, store.MissingInputs())
	require.Equal(t, []string{"TV", "Input 2"}, store.InputList())

	fx = applyLine(store, "IS2INRadio", protocol.InputNameLegacy)
	require.Equal(t, []string{"TV", "Radio"}, fx.DiscoveryComplete)

	fx = applyLine(store, "IS1INTV", protocol.InputNameLegacy)
	require.Nil(t, fx.DiscoveryComplete)
}

func TestStore_RepeatCountKeepsKnownNames(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	for _, line := range []string{"ICN2", "ISN01Blu-ray", "ISN02Apple TV", "Z1INP2"} {
		applyLine(store, line, protocol.InputNameShort)
	}

	fx := applyLine(store, "ICN2", protocol.InputNameShort)
	require.Equal(t, 2, fx.StartDiscovery)
	require.Empty(t, fx.ZoneChanges)
	require.Equal(t, []string{"Blu-ray", "Apple TV"}, store.InputList())

	number, ok := store.InputNumberByName("Apple TV")
	require.True(t, ok)
	require.Equal(t, 2, number)

	zone, ok := store.Zone(1)
	require.True(t, ok)
	require.Equal(t, "Apple TV", zone.InputName)

	// The new round still completes exactly once.
	fx = applyLine(store, "ISN01Blu-ray", protocol.InputNameShort)
	require.Equal(t, []string{"Blu-ray", "Apple TV"}, fx.DiscoveryComplete)
	fx = applyLine(store, "ISN02Apple TV", protocol.InputNameShort)
	require.Nil(t, fx.DiscoveryComplete)
}

func TestStore_SmallerCountForgetsRemovedInputs(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	for _, line := range []string{"ICN3", "ISN01Blu-ray", "ISN02Apple TV", "ISN03Game"} {
		applyLine(store, line, protocol.InputNameShort)
	}

	applyLine(store, "ICN2", protocol.InputNameShort)
	require.Equal(t, []string{"Blu-ray", "Apple TV"}, store.InputList())
	_, ok := store.InputNumberByName("Game")
	require.False(t, ok)
}

func TestStore_NamesBeforeCountSurvive(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	applyLine(store, "ISN02Apple TV", protocol.InputNameShort)
	applyLine(store, "ICN2", protocol.InputNameShort)

	require.Equal(t, []int{1}, store.MissingInputs())
	fx := applyLine(store, "ISN01Blu-ray", protocol.InputNameShort)
	require.Equal(t, []string{"Blu-ray", "Apple TV"}, fx.DiscoveryComplete)
}

func TestStore_ImplausibleInputCountIsIgnored(t *testing.T) {
	store, _, logs := newTestStore(t, nil)
	applyLine(store, "ICN2", protocol.InputNameShort)

	fx := applyLine(store, "ICN999999999999", protocol.InputNameShort)
	require.True(t, fx.Empty())

	fx = store.Apply(protocol.InputCount{Count: 1000000000})
	require.Zero(t, fx.StartDiscovery)
	require.Contains(t, logs.String(), "implausible input count")

	require.Equal(t, 2, store.InputCount())
	require.Len(t, store.InputList(), 2)
}

func TestStore_InputListFallbacks(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	require.Equal(t, protocol.DefaultInputs, store.InputList())

	seeded, _, _ := newTestStore(t, []string{"Cable", "Roku"})
	require.Equal(t, []string{"Cable", "Roku"}, seeded.InputList())

	number, ok := seeded.InputNumberByName("Roku")
	require.True(t, ok)
	require.Equal(t, 2, number)

	_, ok = seeded.InputNumberByName("HDMI 1")
	require.False(t, ok)
}

func TestStore_InputNumberByNameAfterDiscovery(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	applyLine(store, "ICN3", protocol.InputNameShort)
	applyLine(store, "ISN01Apple TV", protocol.InputNameShort)
	applyLine(store, "ISN03Game", protocol.InputNameShort)

	number, ok := store.InputNumberByName("Game")
	require.True(t, ok)
	require.Equal(t, 3, number)

	// Gap names resolve too.
	number, ok = store.InputNumberByName("Input 2")
	require.True(t, ok)
	require.Equal(t, 2, number)

	_, ok = store.InputNumberByName("Phono")
	require.False(t, ok)
}

func TestStore_ZoneInputResolvesName(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	applyLine(store, "ICN2", protocol.InputNameShort)

	fx := applyLine(store, "Z1INP2", protocol.InputNameShort)
	require.Len(t, fx.ZoneChanges, 1)
	require.Equal(t, "Input 2", fx.ZoneChanges[0].State.InputName)

	// Discovering the name refreshes the zone.
	fx = applyLine(store, "ISN02Blu-ray", protocol.InputNameShort)
	require.Len(t, fx.ZoneChanges, 1)
	require.Equal(t, []Attribute{AttrInput}, fx.ZoneChanges[0].Changed)
	require.Equal(t, "Blu-ray", fx.ZoneChanges[0].State.InputName)

	zone, ok := store.Zone(1)
	require.True(t, ok)
	require.Equal(t, 2, zone.InputNumber)
	require.Equal(t, "Blu-ray", zone.InputName)
}

func TestStore_OutOfRangeVolumeIsIgnored(t *testing.T) {
	store, _, logs := newTestStore(t, nil)
	applyLine(store, "Z1VOL-40", protocol.InputNameLegacy)

	fx := applyLine(store, "Z1VOL5", protocol.InputNameLegacy)
	require.Empty(t, fx.ZoneChanges)
	require.Contains(t, logs.String(), "out-of-range volume 5 dB")

	fx = applyLine(store, "Z1VOL-120", protocol.InputNameLegacy)
	require.Empty(t, fx.ZoneChanges)

	zone, _ := store.Zone(1)
	require.Equal(t, -40, zone.VolumeDB)
}

func TestStore_VolumeDebounce(t *testing.T) {
	store, clock, _ := newTestStore(t, nil)

	fx := applyLine(store, "Z1VOL-45", protocol.InputNameLegacy)
	require.Len(t, fx.ZoneChanges, 1)
	require.Equal(t, 50, fx.ZoneChanges[0].State.VolumePercent())

	clock.advance(50 * time.Millisecond)
	fx = applyLine(store, "Z1VOL-45", protocol.InputNameLegacy)
	require.Empty(t, fx.ZoneChanges)

	// A different zone is tracked independently.
	fx = applyLine(store, "Z2VOL-45", protocol.InputNameLegacy)
	require.Len(t, fx.ZoneChanges, 1)

	// A different value is never suppressed.
	fx = applyLine(store, "Z1VOL-30", protocol.InputNameLegacy)
	require.Len(t, fx.ZoneChanges, 1)

	clock.advance(150 * time.Millisecond)
	fx = applyLine(store, "Z1VOL-30", protocol.InputNameLegacy)
	require.Len(t, fx.ZoneChanges, 1)
}

func TestStore_RepeatedAttributesAlwaysEmit(t *testing.T) {
	store, _, _ := newTestStore(t, nil)

	for i := 0; i < 3; i++ {
		fx := applyLine(store, "Z1POW1", protocol.InputNameLegacy)
		require.Len(t, fx.ZoneChanges, 1)
		require.Equal(t, []Attribute{AttrPower}, fx.ZoneChanges[0].Changed)
		require.True(t, fx.ZoneChanges[0].State.Power)
	}
}

func TestStore_DeviceErrorsLeaveStateUntouched(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	applyLine(store, "Z1POW1", protocol.InputNameLegacy)
	before := store.Zones()

	fx := applyLine(store, "!EZ1POW0", protocol.InputNameLegacy)
	require.Equal(t, "!EZ1POW0", fx.DeviceError)
	require.Empty(t, fx.ZoneChanges)

	fx = applyLine(store, "!IZ1VOL-200", protocol.InputNameLegacy)
	require.Equal(t, "!IZ1VOL-200", fx.DeviceError)

	require.Equal(t, before, store.Zones())
}

func TestStore_SystemRecords(t *testing.T) {
	store, _, _ := newTestStore(t, nil)

	fx := applyLine(store, "IDMMRX 720", protocol.InputNameLegacy)
	require.Equal(t, "MRX 720", fx.ModelLearned)
	require.Equal(t, "MRX 720", store.Model())

	fx = applyLine(store, "IDMMRX 720", protocol.InputNameLegacy)
	require.Empty(t, fx.ModelLearned)

	applyLine(store, "IDNTheater", protocol.InputNameLegacy)
	require.Equal(t, "Theater", store.SystemInfo()[protocol.InfoDeviceName])

	fx = applyLine(store, "SIP0", protocol.InputNameLegacy)
	require.True(t, fx.StandbyDisabled)
	fx = applyLine(store, "SIP1", protocol.InputNameLegacy)
	require.False(t, fx.StandbyDisabled)
	require.True(t, fx.Empty())
}

func TestStore_NewZoneDefaults(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	fx := applyLine(store, "Z2MUT1", protocol.InputNameLegacy)

	state := fx.ZoneChanges[0].State
	require.Equal(t, 2, state.Zone)
	require.True(t, state.Muted)
	require.Equal(t, protocol.MinVolumeDB, state.VolumeDB)
	require.Equal(t, Unknown, state.AudioFormat)
	require.Equal(t, Unknown, state.InputName)
}

func TestStore_TelemetryAndListeningMode(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	applyLine(store, "Z1AIFDolby Atmos", protocol.InputNameLegacy)
	applyLine(store, "Z1ALM4", protocol.InputNameLegacy)
	applyLine(store, "Z1SRT48", protocol.InputNameLegacy)
	applyLine(store, "Z1BDP24", protocol.InputNameLegacy)

	zone, ok := store.Zone(1)
	require.True(t, ok)
	require.Equal(t, "Dolby Atmos", zone.AudioFormat)
	require.Equal(t, "DTS Neural:X", zone.ListeningMode)
	require.Equal(t, 4, zone.ListeningModeNumber)
	require.Equal(t, 48, zone.SampleRateKHz)
	require.Equal(t, 24, zone.BitDepth)
}

func TestStore_ZonesReturnsCopies(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	applyLine(store, "Z2POW1", protocol.InputNameLegacy)
	applyLine(store, "Z1POW0", protocol.InputNameLegacy)

	zones := store.Zones()
	require.Len(t, zones, 2)
	require.Equal(t, 1, zones[0].Zone)
	require.Equal(t, 2, zones[1].Zone)

	zones[1].Power = false
	zone, _ := store.Zone(2)
	require.True(t, zone.Power)
}
