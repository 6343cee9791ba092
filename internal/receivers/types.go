package receivers

import (
	"errors"
	"time"

	"github.com/strefethen/anthem-hub-go/internal/anthem/session"
	"github.com/strefethen/anthem-hub-go/internal/anthem/state"
	"github.com/strefethen/anthem-hub-go/internal/audit"
)

var (
	ErrReceiverNotFound = errors.New("receiver not found")
	ErrReceiverOffline  = errors.New("receiver offline")
	ErrZoneNotFound     = errors.New("zone not configured")
)

// InputStore persists discovered input lists between runs.
type InputStore interface {
	Save(deviceID string, inputs []string) error
	Load(deviceID string) ([]string, error)
	// Prune forgets devices that are no longer configured.
	Prune(keep []string) (int, error)
}

// EventRecorder persists connection history and faults.
type EventRecorder interface {
	RecordEvent(input audit.WriteEventInput) (*audit.ReceiverEvent, error)
}

// Snapshot is the read model of one receiver. Cached zone state is kept
// while the receiver is offline, with Available false.
type Snapshot struct {
	ID                string
	Name              string
	Host              string
	Port              int
	ConfiguredModel   string
	Model             string
	State             session.State
	Available         bool
	Info              map[string]string
	Inputs            []string
	InputCount        int
	DiscoveryComplete bool
	Zones             []ZoneSnapshot
	ConnectedAt       *time.Time
	LastError         string
}

// ZoneSnapshot is one configured zone with its cached state.
type ZoneSnapshot struct {
	Number    int
	Name      string
	Enabled   bool
	Available bool
	Reported  bool
	State     state.ZoneState
}
