package receivers

import (
	"bufio"
	"context"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/anthem-hub-go/internal/anthem/session"
	"github.com/strefethen/anthem-hub-go/internal/api"
	"github.com/strefethen/anthem-hub-go/internal/audit"
	"github.com/strefethen/anthem-hub-go/internal/config"
)

const testWait = 3 * time.Second

// fakeReceiver answers semicolon-terminated commands from a reply table.
type fakeReceiver struct {
	ln       net.Listener
	mu       sync.Mutex
	replies  map[string][]string
	received chan string
	conns    chan net.Conn
}

func newFakeReceiver(t *testing.T, replies map[string][]string) *fakeReceiver {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	r := &fakeReceiver{
		ln:       ln,
		replies:  replies,
		received: make(chan string, 512),
		conns:    make(chan net.Conn, 8),
	}
	if r.replies == nil {
		r.replies = map[string][]string{}
	}
	t.Cleanup(func() { ln.Close() })
	go r.serve()
	return r
}

func (r *fakeReceiver) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		r.conns <- conn
		go r.handle(conn)
	}
}

func (r *fakeReceiver) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString(';')
		if err != nil {
			return
		}
		cmd := strings.TrimSuffix(line, ";")
		r.received <- cmd

		r.mu.Lock()
		reply := r.replies[cmd]
		r.mu.Unlock()
		for _, l := range reply {
			if _, err := conn.Write([]byte(l + ";")); err != nil {
				return
			}
		}
	}
}

func (r *fakeReceiver) port(t *testing.T) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(r.ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func (r *fakeReceiver) acceptedConn(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-r.conns:
		return conn
	case <-time.After(testWait):
		t.Fatal("receiver never accepted a connection")
		return nil
	}
}

func (r *fakeReceiver) waitForCommand(t *testing.T, cmd string) {
	t.Helper()
	timeout := time.After(testWait)
	for {
		select {
		case got := <-r.received:
			if got == cmd {
				return
			}
		case <-timeout:
			t.Fatalf("never received %q", cmd)
		}
	}
}

type memoryInputs struct {
	mu    sync.Mutex
	saved map[string][]string
}

func newMemoryInputs() *memoryInputs {
	return &memoryInputs{saved: map[string][]string{}}
}

func (m *memoryInputs) Save(deviceID string, inputs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[deviceID] = append([]string(nil), inputs...)
	return nil
}

func (m *memoryInputs) Load(deviceID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[deviceID], nil
}

func (m *memoryInputs) Prune(keep []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id := range m.saved {
		if !slices.Contains(keep, id) {
			delete(m.saved, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryInputs) get(deviceID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[deviceID]
}

type memoryLog struct {
	mu     sync.Mutex
	events []audit.WriteEventInput
}

func (m *memoryLog) RecordEvent(input audit.WriteEventInput) (*audit.ReceiverEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, input)
	return &audit.ReceiverEvent{DeviceID: input.DeviceID, Type: input.Type}, nil
}

func (m *memoryLog) has(eventType audit.EventType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range m.events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func (m *memoryLog) find(eventType audit.EventType) *audit.WriteEventInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].Type == eventType {
			event := m.events[i]
			return &event
		}
	}
	return nil
}

func testConfig() config.Config {
	return config.Config{
		ConnectMaxAttempts:       1,
		ConnectBaseDelayMs:       10,
		ConnectBackoffMultiplier: 1,
		ReconnectIntervalMs:      50,
		CommandDelayMs:           0,
		ReadTimeoutSec:           30,
	}
}

func testDevice(id string, port int) config.DeviceConfig {
	return config.DeviceConfig{
		ID:         id,
		Name:       strings.ToUpper(id),
		Host:       "127.0.0.1",
		Port:       port,
		Model:      "MRX",
		TimeoutSec: 1,
		Zones:      []config.ZoneConfig{{Number: 1, Name: "Main"}, {Number: 2, Name: "Patio"}},
	}
}

// closedPort returns a port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func startService(t *testing.T, devices []config.DeviceConfig, opts Options) *Service {
	t.Helper()
	svc := NewService(testConfig(), devices, opts)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	return svc
}

func waitAvailable(t *testing.T, svc *Service, id string, available bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		snapshot, err := svc.Get(id)
		return err == nil && snapshot.Available == available
	}, testWait, 10*time.Millisecond)
}

func TestService_ConnectsAndTracksState(t *testing.T) {
	fake := newFakeReceiver(t, map[string][]string{
		"IDM?":   {"IDMMRX 720"},
		"ICN?":   {"ICN2"},
		"ISN01?": {"ISN01Apple TV"},
		"ISN02?": {"ISN02Phono"},
		"Z1POW?": {"Z1POW1", "Z1VOL-40", "Z1INP2"},
	})
	inputs := newMemoryInputs()
	eventLog := &memoryLog{}
	svc := startService(t, []config.DeviceConfig{testDevice("den", fake.port(t))}, Options{Inputs: inputs, EventLog: eventLog})

	waitAvailable(t, svc, "den", true)
	require.Eventually(t, func() bool {
		return len(inputs.get("den")) == 2
	}, testWait, 10*time.Millisecond)
	require.Equal(t, []string{"Apple TV", "Phono"}, inputs.get("den"))

	require.Eventually(t, func() bool {
		zone, err := svc.Zone("den", 1)
		return err == nil && zone.State.VolumeDB == -40 && zone.State.InputName == "Phono"
	}, testWait, 10*time.Millisecond)

	snapshot, err := svc.Get("den")
	require.NoError(t, err)
	require.Equal(t, "MRX 720", snapshot.Model)
	require.Equal(t, session.StateReady, snapshot.State)
	require.NotNil(t, snapshot.ConnectedAt)
	require.Len(t, snapshot.Zones, 2)
	require.True(t, snapshot.Zones[0].Reported)
	require.False(t, snapshot.Zones[1].Reported)

	require.Eventually(t, func() bool {
		return eventLog.has(audit.EventReceiverConnected) && eventLog.has(audit.EventInputsDiscovered)
	}, testWait, 10*time.Millisecond)
}

func TestService_SeedsFromInputCache(t *testing.T) {
	inputs := newMemoryInputs()
	require.NoError(t, inputs.Save("den", []string{"Cached 1", "Cached 2"}))

	svc := NewService(testConfig(), []config.DeviceConfig{testDevice("den", closedPort(t))}, Options{Inputs: inputs})
	snapshot, err := svc.Get("den")
	require.NoError(t, err)
	require.Equal(t, []string{"Cached 1", "Cached 2"}, snapshot.Inputs)
}

func TestService_PrunesInputsOfRemovedReceivers(t *testing.T) {
	inputs := newMemoryInputs()
	require.NoError(t, inputs.Save("den", []string{"Cached"}))
	require.NoError(t, inputs.Save("garage", []string{"Old"}))

	NewService(testConfig(), []config.DeviceConfig{testDevice("den", closedPort(t))}, Options{Inputs: inputs})

	require.Equal(t, []string{"Cached"}, inputs.get("den"))
	require.Nil(t, inputs.get("garage"))
}

func TestService_ConfiguredInputsWinOverCache(t *testing.T) {
	inputs := newMemoryInputs()
	require.NoError(t, inputs.Save("den", []string{"Cached"}))

	device := testDevice("den", closedPort(t))
	device.DiscoveredInputs = []string{"Configured"}
	svc := NewService(testConfig(), []config.DeviceConfig{device}, Options{Inputs: inputs})

	snapshot, err := svc.Get("den")
	require.NoError(t, err)
	require.Equal(t, []string{"Configured"}, snapshot.Inputs)
}

func TestService_OfflineReceiver(t *testing.T) {
	eventLog := &memoryLog{}
	svc := startService(t, []config.DeviceConfig{testDevice("den", closedPort(t))}, Options{EventLog: eventLog})

	require.Eventually(t, func() bool { return eventLog.has(audit.EventConnectFailed) }, testWait, 10*time.Millisecond)

	snapshot, err := svc.Get("den")
	require.NoError(t, err)
	require.False(t, snapshot.Available)
	require.NotEmpty(t, snapshot.LastError)

	zone, err := svc.Zone("den", 1)
	require.NoError(t, err)
	require.False(t, zone.Available)

	err = svc.Command(testContext(t), "den", 1, "power on=true", func(_ context.Context, s *session.Session) error {
		return nil
	})
	require.ErrorIs(t, err, ErrReceiverOffline)
}

func TestService_ReconnectsAfterPeerClose(t *testing.T) {
	fake := newFakeReceiver(t, nil)
	eventLog := &memoryLog{}
	svc := startService(t, []config.DeviceConfig{testDevice("den", fake.port(t))}, Options{EventLog: eventLog})

	first := fake.acceptedConn(t)
	waitAvailable(t, svc, "den", true)

	require.NoError(t, first.Close())
	fake.acceptedConn(t)
	waitAvailable(t, svc, "den", true)
	require.Eventually(t, func() bool { return eventLog.has(audit.EventReceiverDisconnected) }, testWait, 10*time.Millisecond)
}

func TestService_ReconnectRequest(t *testing.T) {
	fake := newFakeReceiver(t, nil)
	svc := startService(t, []config.DeviceConfig{testDevice("den", fake.port(t))}, Options{})

	fake.acceptedConn(t)
	waitAvailable(t, svc, "den", true)

	require.NoError(t, svc.Reconnect("den"))
	fake.acceptedConn(t)
	waitAvailable(t, svc, "den", true)

	require.ErrorIs(t, svc.Reconnect("missing"), ErrReceiverNotFound)
}

func TestService_CommandChecks(t *testing.T) {
	fake := newFakeReceiver(t, nil)
	device := testDevice("den", fake.port(t))
	disabled := false
	device.Zones[1].Enabled = &disabled
	eventLog := &memoryLog{}
	svc := startService(t, []config.DeviceConfig{device}, Options{EventLog: eventLog})
	waitAvailable(t, svc, "den", true)

	ctx := testContext(t)
	err := svc.Command(ctx, "missing", 1, "x", func(context.Context, *session.Session) error { return nil })
	require.ErrorIs(t, err, ErrReceiverNotFound)

	err = svc.Command(ctx, "den", 2, "x", func(context.Context, *session.Session) error { return nil })
	require.ErrorIs(t, err, ErrZoneNotFound)

	err = svc.Command(ctx, "den", 3, "x", func(context.Context, *session.Session) error { return nil })
	require.ErrorIs(t, err, ErrZoneNotFound)

	err = svc.Command(api.WithRequestID(ctx, "req-1"), "den", 1, "volume db=-30", func(ctx context.Context, s *session.Session) error {
		return s.SetVolume(ctx, 1, -30)
	})
	require.NoError(t, err)
	fake.waitForCommand(t, "Z1VOL-30")

	sent := eventLog.find(audit.EventCommandSent)
	require.NotNil(t, sent)
	require.NotNil(t, sent.RequestID)
	require.Equal(t, "req-1", *sent.RequestID)
	require.Equal(t, "volume db=-30", sent.Message)
}

func TestService_RefreshAll(t *testing.T) {
	fake := newFakeReceiver(t, nil)
	svc := startService(t, []config.DeviceConfig{testDevice("den", fake.port(t))}, Options{})
	waitAvailable(t, svc, "den", true)

	svc.RefreshAll()
	fake.waitForCommand(t, "Z1VOL?")
	fake.waitForCommand(t, "Z2INP?")
}

func TestService_InvalidCron(t *testing.T) {
	cfg := testConfig()
	cfg.StatusRefreshCron = "not a schedule"
	svc := NewService(cfg, []config.DeviceConfig{testDevice("den", closedPort(t))}, Options{})
	require.Error(t, svc.Start())
	svc.Stop()
}

func TestService_StopIsIdempotent(t *testing.T) {
	fake := newFakeReceiver(t, nil)
	svc := NewService(testConfig(), []config.DeviceConfig{testDevice("den", fake.port(t))}, Options{})
	require.NoError(t, svc.Start())
	waitAvailable(t, svc, "den", true)

	svc.Stop()
	svc.Stop()

	snapshot, err := svc.Get("den")
	require.NoError(t, err)
	require.Equal(t, session.StateDisconnected, snapshot.State)
}

// testContext stands in for testing.T.Context (Go 1.24+): a context that is
// cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
