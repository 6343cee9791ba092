package state

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/strefethen/anthem-hub-go/internal/anthem/protocol"
)

// DefaultVolumeDebounce suppresses repeated identical volume echoes.
const DefaultVolumeDebounce = 100 * time.Millisecond

// ZoneChange describes one zone update produced by Apply.
type ZoneChange struct {
	Zone    int
	Changed []Attribute
	State   ZoneState
}

// Effects is everything Apply wants the caller to act on.
type Effects struct {
	ZoneChanges []ZoneChange
	// StartDiscovery is the input count to enumerate, zero for none.
	StartDiscovery int
	// DiscoveryComplete carries the final source list once per round.
	DiscoveryComplete []string
	ModelLearned      string
	StandbyDisabled   bool
	DeviceError       string
}

// Empty reports whether Apply produced nothing to act on.
func (e Effects) Empty() bool {
	return len(e.ZoneChanges) == 0 && e.StartDiscovery == 0 && e.DiscoveryComplete == nil &&
		e.ModelLearned == "" && !e.StandbyDisabled && e.DeviceError == ""
}

type volumeEmit struct {
	percent int
	at      time.Time
}

// Store caches per-zone state and receiver capabilities. Apply is the only
// mutation path and is expected to run on a single goroutine; readers may
// call the accessors concurrently.
type Store struct {
	mu         sync.RWMutex
	zones      map[int]*ZoneState
	caps       *Capabilities
	model      string
	info       map[protocol.SystemInfoKind]string
	lastVolume map[int]volumeEmit
	debounce   time.Duration
	logger     *log.Logger
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithVolumeDebounce overrides DefaultVolumeDebounce.
func WithVolumeDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// WithLogger sets the logger used for rejected values.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty store. seed is a previously discovered source
// list used until live discovery fills the table.
func NewStore(seed []string, options ...Option) *Store {
	s := &Store{
		zones:      make(map[int]*ZoneState),
		caps:       newCapabilities(seed),
		info:       make(map[protocol.SystemInfoKind]string),
		lastVolume: make(map[int]volumeEmit),
		debounce:   DefaultVolumeDebounce,
		logger:     log.Default(),
		now:        time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Apply folds one parsed message into the store.
func (s *Store) Apply(msg protocol.Message) Effects {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fx Effects

	switch m := msg.(type) {
	case protocol.DeviceError:
		fx.DeviceError = m.Line

	case protocol.SystemModel:
		if m.Model != "" && m.Model != s.model {
			s.model = m.Model
			fx.ModelLearned = m.Model
		}

	case protocol.SystemInfo:
		s.info[m.Kind] = m.Value

	case protocol.StandbyControl:
		fx.StandbyDisabled = !m.Enabled

	case protocol.InputCount:
		if m.Count < 0 || m.Count > protocol.MaxInputCount {
			s.logger.Printf("ANTHEM: Ignoring implausible input count %d", m.Count)
			break
		}
		s.caps.setCount(m.Count)
		fx.StartDiscovery = m.Count
		s.refreshInputNames(&fx)

	case protocol.InputName:
		if s.caps.addName(m.InputNumber, m.Name) {
			fx.DiscoveryComplete = s.caps.list()
		}
		s.refreshInputNames(&fx)

	case protocol.ZonePower:
		z := s.zone(m.Zone.Zone)
		z.Power = m.On
		fx.add(z, AttrPower)

	case protocol.ZoneVolume:
		s.applyVolume(m, &fx)

	case protocol.ZoneMute:
		z := s.zone(m.Zone.Zone)
		z.Muted = m.Muted
		fx.add(z, AttrMuted)

	case protocol.ZoneInput:
		z := s.zone(m.Zone.Zone)
		z.InputNumber = m.InputNumber
		z.InputName = s.caps.name(m.InputNumber)
		fx.add(z, AttrInput)

	case protocol.ZoneAudioFormat:
		z := s.zone(m.Zone.Zone)
		z.AudioFormat = m.Format
		fx.add(z, AttrAudioFormat)

	case protocol.ZoneAudioChannels:
		z := s.zone(m.Zone.Zone)
		z.AudioChannels = m.Channels
		fx.add(z, AttrAudioChannels)

	case protocol.ZoneVideoResolution:
		z := s.zone(m.Zone.Zone)
		z.VideoResolution = m.Resolution
		fx.add(z, AttrVideoResolution)

	case protocol.ZoneListeningMode:
		z := s.zone(m.Zone.Zone)
		z.ListeningMode = m.Name
		z.ListeningModeNumber = m.Code
		fx.add(z, AttrListeningMode)

	case protocol.ZoneSampleRateInfo:
		z := s.zone(m.Zone.Zone)
		z.SampleRateInfo = m.Info
		fx.add(z, AttrSampleRateInfo)

	case protocol.ZoneSampleRate:
		z := s.zone(m.Zone.Zone)
		z.SampleRateKHz = m.RateKHz
		fx.add(z, AttrSampleRate)

	case protocol.ZoneBitDepth:
		z := s.zone(m.Zone.Zone)
		z.BitDepth = m.Depth
		fx.add(z, AttrBitDepth)

	case protocol.Unrecognized:
		// Undocumented or unmodelled protocol surface.
	}

	return fx
}

func (s *Store) applyVolume(m protocol.ZoneVolume, fx *Effects) {
	zone := m.Zone.Zone
	if !protocol.ValidVolumeDB(m.VolumeDB) {
		s.logger.Printf("ANTHEM: Ignoring out-of-range volume %d dB for zone %d", m.VolumeDB, zone)
		return
	}

	z := s.zone(zone)
	z.VolumeDB = m.VolumeDB

	percent := protocol.DBToPercent(m.VolumeDB)
	now := s.now()
	if last, ok := s.lastVolume[zone]; ok && last.percent == percent && now.Sub(last.at) < s.debounce {
		return
	}
	s.lastVolume[zone] = volumeEmit{percent: percent, at: now}
	fx.add(z, AttrVolume)
}

// refreshInputNames re-resolves zone input names after the table changed.
func (s *Store) refreshInputNames(fx *Effects) {
	for _, z := range s.zones {
		if z.InputNumber == 0 {
			continue
		}
		name := s.caps.name(z.InputNumber)
		if name != z.InputName {
			z.InputName = name
			fx.add(z, AttrInput)
		}
	}
}

func (s *Store) zone(number int) *ZoneState {
	z, ok := s.zones[number]
	if !ok {
		z = newZoneState(number)
		s.zones[number] = z
	}
	return z
}

func (fx *Effects) add(z *ZoneState, attr Attribute) {
	for i := range fx.ZoneChanges {
		if fx.ZoneChanges[i].Zone == z.Zone {
			fx.ZoneChanges[i].Changed = append(fx.ZoneChanges[i].Changed, attr)
			fx.ZoneChanges[i].State = *z
			return
		}
	}
	fx.ZoneChanges = append(fx.ZoneChanges, ZoneChange{Zone: z.Zone, Changed: []Attribute{attr}, State: *z})
}

// Zone returns a copy of a zone's state.
func (s *Store) Zone(number int) (ZoneState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zones[number]
	if !ok {
		return ZoneState{}, false
	}
	return *z, true
}

// Zones returns copies of every known zone ordered by number.
func (s *Store) Zones() []ZoneState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ZoneState, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, *z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Zone < out[j].Zone })
	return out
}

// Model returns the IDM model string, empty until reported.
func (s *Store) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SystemInfo returns the IDN/IDR/IDS records seen so far.
func (s *Store) SystemInfo() map[protocol.SystemInfoKind]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[protocol.SystemInfoKind]string, len(s.info))
	for k, v := range s.info {
		out[k] = v
	}
	return out
}

// InputCount returns the ICN value, zero until reported.
func (s *Store) InputCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps.count
}

// InputList returns the available source names in input-number order.
func (s *Store) InputList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps.list()
}

// InputNumberByName resolves a source name to its input number.
func (s *Store) InputNumberByName(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps.numberByName(name)
}

// DiscoveryComplete reports whether every input has a live name.
func (s *Store) DiscoveryComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps.isComplete()
}

// MissingInputs lists input numbers still lacking a live name.
func (s *Store) MissingInputs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps.missing()
}
