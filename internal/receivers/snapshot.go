package receivers

import (
	"context"
	"errors"
	"time"

	"github.com/strefethen/anthem-hub-go/internal/anthem/session"
	"github.com/strefethen/anthem-hub-go/internal/anthem/state"
	"github.com/strefethen/anthem-hub-go/internal/api"
	"github.com/strefethen/anthem-hub-go/internal/audit"
)

// List returns snapshots in configured order.
func (s *Service) List() []Snapshot {
	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.snapshot(s.receivers[id]))
	}
	return out
}

// Get returns one receiver snapshot.
func (s *Service) Get(id string) (Snapshot, error) {
	r, ok := s.receivers[id]
	if !ok {
		return Snapshot{}, ErrReceiverNotFound
	}
	return s.snapshot(r), nil
}

// Zone returns one configured zone of a receiver.
func (s *Service) Zone(id string, zone int) (ZoneSnapshot, error) {
	r, ok := s.receivers[id]
	if !ok {
		return ZoneSnapshot{}, ErrReceiverNotFound
	}
	cfg, ok := r.cfg.Zone(zone)
	if !ok {
		return ZoneSnapshot{}, ErrZoneNotFound
	}
	return zoneSnapshot(r, cfg.Number, cfg.Name, cfg.IsEnabled(), r.session.State() == session.StateReady), nil
}

// Command runs fn against a ready receiver's session. zone 0 skips the
// zone check for receiver-wide commands. Successful commands are written
// to the event log with the action and the request id carried by ctx.
func (s *Service) Command(ctx context.Context, id string, zone int, action string, fn func(context.Context, *session.Session) error) error {
	r, ok := s.receivers[id]
	if !ok {
		return ErrReceiverNotFound
	}
	if zone != 0 {
		cfg, ok := r.cfg.Zone(zone)
		if !ok || !cfg.IsEnabled() {
			return ErrZoneNotFound
		}
	}
	if r.session.State() != session.StateReady {
		return ErrReceiverOffline
	}

	if err := fn(ctx, r.session); err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			return ErrReceiverOffline
		}
		return err
	}

	input := audit.WriteEventInput{
		DeviceID: id,
		Type:     audit.EventCommandSent,
		Level:    audit.EventLevelDebug,
		Message:  action,
	}
	if zone != 0 {
		input.Zone = &zone
	}
	if requestID := api.RequestIDFromContext(ctx); requestID != "" {
		input.RequestID = &requestID
	}
	s.record(input)
	return nil
}

func (s *Service) snapshot(r *receiver) Snapshot {
	store := r.session.Store()
	current := r.session.State()
	ready := current == session.StateReady

	info := make(map[string]string)
	for kind, value := range store.SystemInfo() {
		info[string(kind)] = value
	}

	model := store.Model()
	if model == "" {
		model = r.cfg.Model
	}

	zones := make([]ZoneSnapshot, 0, len(r.cfg.Zones))
	for _, zone := range r.cfg.Zones {
		zones = append(zones, zoneSnapshot(r, zone.Number, zone.Name, zone.IsEnabled(), ready))
	}

	r.mu.RLock()
	var connectedAt *time.Time
	if !r.connectedAt.IsZero() && ready {
		at := r.connectedAt
		connectedAt = &at
	}
	lastError := r.lastError
	r.mu.RUnlock()

	return Snapshot{
		ID:                r.cfg.ID,
		Name:              r.cfg.Name,
		Host:              r.cfg.Host,
		Port:              r.cfg.Port,
		ConfiguredModel:   r.cfg.Model,
		Model:             model,
		State:             current,
		Available:         ready,
		Info:              info,
		Inputs:            store.InputList(),
		InputCount:        store.InputCount(),
		DiscoveryComplete: store.DiscoveryComplete(),
		Zones:             zones,
		ConnectedAt:       connectedAt,
		LastError:         lastError,
	}
}

func zoneSnapshot(r *receiver, number int, name string, enabled, ready bool) ZoneSnapshot {
	zs, reported := r.session.Store().Zone(number)
	if !reported {
		zs = state.ZoneState{Zone: number}
	}
	return ZoneSnapshot{
		Number:    number,
		Name:      name,
		Enabled:   enabled,
		Available: ready && enabled,
		Reported:  reported,
		State:     zs,
	}
}
