package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/anthem-hub-go/internal/anthem/session"
	"github.com/strefethen/anthem-hub-go/internal/anthem/state"
	"github.com/strefethen/anthem-hub-go/internal/auth"
)

func dialHub(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var welcome map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, "connected", welcome["type"])
	require.NotEmpty(t, welcome["client_id"])
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHub_BroadcastFiltersByDevice(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	all := dialHub(t, server, "")
	den := dialHub(t, server, "device_id=den")
	waitForClients(t, hub, 2)

	theater, ok := NewEnvelope("theater", session.ConnectionChanged{State: session.StateReady}, time.Now())
	require.True(t, ok)
	hub.Broadcast(theater)

	den1, ok := NewEnvelope("den", session.DeviceFault{Code: "!E", Line: "!EZ1VOL"}, time.Now())
	require.True(t, ok)
	hub.Broadcast(den1)

	first := readEnvelope(t, all)
	require.Equal(t, TypeConnectionChanged, first["type"])
	require.Equal(t, "theater", first["device_id"])
	second := readEnvelope(t, all)
	require.Equal(t, TypeDeviceFault, second["type"])

	only := readEnvelope(t, den)
	require.Equal(t, "den", only["device_id"])
	require.Equal(t, "!E", only["data"].(map[string]any)["code"])
}

func TestHub_ScopedClientStreamsOnlyGrantedReceivers(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithClient(r.Context(), auth.Client{Sub: "wall", Scope: auth.ScopeMonitor, Receivers: []string{"den"}})
		hub.ServeHTTP(w, r.WithContext(ctx))
	}))
	defer server.Close()
	defer hub.Close()

	resp, err := http.Get(server.URL + "/?device_id=theater")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	conn := dialHub(t, server, "")
	waitForClients(t, hub, 1)

	theater, ok := NewEnvelope("theater", session.ConnectionChanged{State: session.StateReady}, time.Now())
	require.True(t, ok)
	hub.Broadcast(theater)
	den, ok := NewEnvelope("den", session.ConnectionChanged{State: session.StateReady}, time.Now())
	require.True(t, ok)
	hub.Broadcast(den)

	env := readEnvelope(t, conn)
	require.Equal(t, "den", env["device_id"])
}

func TestHub_PingPong(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dialHub(t, server, "")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	require.Equal(t, "pong", readEnvelope(t, conn)["type"])
}

func TestHub_ClientDisconnectIsRemoved(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialHub(t, server, "")
	waitForClients(t, hub, 1)
	require.NoError(t, conn.Close())
	waitForClients(t, hub, 0)

	hub.Close()
	hub.Close()
	hub.Broadcast(Envelope{Type: TypeConnectionChanged, DeviceID: "den"})
}

func TestNewEnvelope_ZoneChanged(t *testing.T) {
	at := time.Date(2026, 5, 1, 8, 30, 0, 0, time.FixedZone("X", 3600))
	env, ok := NewEnvelope("den", session.ZoneChanged{
		Zone:    1,
		Changed: []state.Attribute{state.AttrVolume, state.AttrMuted},
		State:   state.ZoneState{Zone: 1, VolumeDB: -45, Muted: true, InputName: "Apple TV"},
	}, at)
	require.True(t, ok)
	require.Equal(t, TypeZoneChanged, env.Type)
	require.Equal(t, time.UTC, env.Timestamp.Location())

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded struct {
		Data struct {
			Zone    int      `json:"zone"`
			Changed []string `json:"changed"`
			State   struct {
				VolumeDB      int    `json:"volume_db"`
				VolumePercent int    `json:"volume_percent"`
				Muted         bool   `json:"muted"`
				InputName     string `json:"input_name"`
			} `json:"state"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, []string{"volume", "muted"}, decoded.Data.Changed)
	require.Equal(t, -45, decoded.Data.State.VolumeDB)
	require.Equal(t, state.ZoneState{VolumeDB: -45}.VolumePercent(), decoded.Data.State.VolumePercent)
	require.True(t, decoded.Data.State.Muted)
	require.Equal(t, "Apple TV", decoded.Data.State.InputName)
}

func TestNewEnvelope_InputsDiscovered(t *testing.T) {
	inputs := []string{"HDMI 1", "Phono"}
	env, ok := NewEnvelope("den", session.InputsDiscovered{Inputs: inputs}, time.Now())
	require.True(t, ok)
	inputs[0] = "mutated"
	require.Equal(t, []string{"HDMI 1", "Phono"}, env.Data.(InputsDiscoveredData).Inputs)
}
