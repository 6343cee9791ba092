package events

import (
	"time"

	"github.com/strefethen/anthem-hub-go/internal/anthem/session"
	"github.com/strefethen/anthem-hub-go/internal/anthem/state"
)

// Envelope types.
const (
	TypeZoneChanged       = "zone_changed"
	TypeInputsDiscovered  = "inputs_discovered"
	TypeConnectionChanged = "connection_changed"
	TypeDeviceFault       = "device_fault"
)

// Envelope is the JSON shape pushed to websocket clients and published to
// NATS.
type Envelope struct {
	Type      string    `json:"type"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// ZonePayload is a zone snapshot including the derived volume percent.
type ZonePayload struct {
	state.ZoneState
	VolumePercent int `json:"volume_percent"`
}

// NewZonePayload wraps a zone snapshot.
func NewZonePayload(zone state.ZoneState) ZonePayload {
	return ZonePayload{ZoneState: zone, VolumePercent: zone.VolumePercent()}
}

// ZoneChangedData is the data of a zone_changed envelope.
type ZoneChangedData struct {
	Zone    int         `json:"zone"`
	Changed []string    `json:"changed"`
	State   ZonePayload `json:"state"`
}

// InputsDiscoveredData is the data of an inputs_discovered envelope.
type InputsDiscoveredData struct {
	Inputs []string `json:"inputs"`
}

// ConnectionChangedData is the data of a connection_changed envelope.
type ConnectionChangedData struct {
	State string `json:"state"`
}

// DeviceFaultData is the data of a device_fault envelope.
type DeviceFaultData struct {
	Code string `json:"code"`
	Line string `json:"line"`
}

// NewEnvelope converts a session event. ok is false for unknown events.
func NewEnvelope(deviceID string, event session.Event, at time.Time) (Envelope, bool) {
	env := Envelope{DeviceID: deviceID, Timestamp: at.UTC()}

	switch ev := event.(type) {
	case session.ZoneChanged:
		changed := make([]string, len(ev.Changed))
		for i, attr := range ev.Changed {
			changed[i] = string(attr)
		}
		env.Type = TypeZoneChanged
		env.Data = ZoneChangedData{Zone: ev.Zone, Changed: changed, State: NewZonePayload(ev.State)}
	case session.InputsDiscovered:
		env.Type = TypeInputsDiscovered
		env.Data = InputsDiscoveredData{Inputs: append([]string(nil), ev.Inputs...)}
	case session.ConnectionChanged:
		env.Type = TypeConnectionChanged
		env.Data = ConnectionChangedData{State: ev.State.String()}
	case session.DeviceFault:
		env.Type = TypeDeviceFault
		env.Data = DeviceFaultData{Code: ev.Code, Line: ev.Line}
	default:
		return Envelope{}, false
	}
	return env, true
}
