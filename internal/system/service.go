package system

import (
	"context"
	"database/sql"
	"log"
	"runtime"
	"time"

	"github.com/strefethen/anthem-hub-go/internal/auth"
	"github.com/strefethen/anthem-hub-go/internal/config"
	"github.com/strefethen/anthem-hub-go/internal/receivers"
)

// Version is the hub version, set at build time or defaulted.
var Version = "1.0.0"

// faultWindow bounds the device fault count on the dashboard.
const faultWindow = 24 * time.Hour

// ReceiverLister provides receiver snapshots.
type ReceiverLister interface {
	List() []receivers.Snapshot
}

// HealthReporter reports event log health.
type HealthReporter interface {
	IsHealthy() bool
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Service provides system information and dashboard data.
// Uses reader connection only as this service only performs SELECT queries.
type Service struct {
	cfg       config.Config
	logger    *log.Logger
	reader    *sql.DB
	receivers ReceiverLister
	eventLog  HealthReporter
	sinks     []string
	startTime time.Time
	now       func() time.Time
}

// NewService creates a new system service. sinks names the external
// event sinks that connected at startup.
func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger, receiverLister ReceiverLister, eventLog HealthReporter, sinks []string) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		cfg:       cfg,
		logger:    logger,
		reader:    dbPair.Reader(),
		receivers: receiverLister,
		eventLog:  eventLog,
		sinks:     sinks,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// SystemInfo holds system information.
type SystemInfo struct {
	HubVersion      string   `json:"hub_version"`
	Uptime          int64    `json:"uptime_seconds"`
	MemoryUsageMB   float64  `json:"memory_mb"`
	Goroutines      int      `json:"goroutines"`
	SQLiteConnected bool     `json:"sqlite_connected"`
	EventLogHealthy bool     `json:"event_log_healthy"`
	ReceiversOnline int      `json:"receivers_online"`
	ReceiversTotal  int      `json:"receivers_total"`
	RefreshSchedule string   `json:"refresh_schedule"`
	AuthEnabled     bool     `json:"auth_enabled"`
	Sinks           []string `json:"sinks"`
}

// ReceiverSummary is one receiver row on the dashboard.
type ReceiverSummary struct {
	ID           string
	Name         string
	Model        string
	State        string
	Available    bool
	ZonesOn      int
	ZonesEnabled int
}

// AttentionItem represents an item that needs user attention.
type AttentionItem struct {
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	ResolveHint string         `json:"resolve_hint,omitempty"`
}

// DashboardData holds data for the dashboard view.
type DashboardData struct {
	Receivers      []ReceiverSummary
	AttentionItems []AttentionItem
}

// GetSystemInfo returns current system information.
func (s *Service) GetSystemInfo() (*SystemInfo, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sqliteConnected := s.reader.Ping() == nil

	online, total := 0, 0
	if s.receivers != nil {
		for _, snapshot := range s.receivers.List() {
			total++
			if snapshot.Available {
				online++
			}
		}
	}

	eventLogHealthy := true
	if s.eventLog != nil {
		eventLogHealthy = s.eventLog.IsHealthy()
	}

	sinks := s.sinks
	if sinks == nil {
		sinks = []string{}
	}

	return &SystemInfo{
		HubVersion:      Version,
		Uptime:          int64(s.now().Sub(s.startTime).Seconds()),
		MemoryUsageMB:   float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:      runtime.NumGoroutine(),
		SQLiteConnected: sqliteConnected,
		EventLogHealthy: eventLogHealthy,
		ReceiversOnline: online,
		ReceiversTotal:  total,
		RefreshSchedule: s.cfg.StatusRefreshCron,
		AuthEnabled:     s.cfg.AuthEnabled,
		Sinks:           sinks,
	}, nil
}

// GetDashboardData summarizes the receivers visible to the caller on ctx
// and lists what needs attention on them.
func (s *Service) GetDashboardData(ctx context.Context) (*DashboardData, error) {
	dashboard := &DashboardData{
		Receivers:      []ReceiverSummary{},
		AttentionItems: []AttentionItem{},
	}

	var snapshots []receivers.Snapshot
	if s.receivers != nil {
		for _, snapshot := range s.receivers.List() {
			if auth.Visible(ctx, snapshot.ID) {
				snapshots = append(snapshots, snapshot)
			}
		}
	}
	for _, snapshot := range snapshots {
		summary := ReceiverSummary{
			ID:        snapshot.ID,
			Name:      snapshot.Name,
			Model:     snapshot.Model,
			State:     snapshot.State.String(),
			Available: snapshot.Available,
		}
		for _, zone := range snapshot.Zones {
			if !zone.Enabled {
				continue
			}
			summary.ZonesEnabled++
			if zone.State.Power {
				summary.ZonesOn++
			}
		}
		dashboard.Receivers = append(dashboard.Receivers, summary)
	}

	dashboard.AttentionItems = s.checkAttentionItems(ctx, snapshots)
	return dashboard, nil
}

func (s *Service) checkAttentionItems(ctx context.Context, snapshots []receivers.Snapshot) []AttentionItem {
	items := []AttentionItem{}

	var offline []string
	var incomplete []string
	for _, snapshot := range snapshots {
		if !snapshot.Available {
			offline = append(offline, snapshot.ID)
			continue
		}
		if snapshot.InputCount > 0 && !snapshot.DiscoveryComplete {
			incomplete = append(incomplete, snapshot.ID)
		}
	}
	if len(offline) > 0 {
		items = append(items, AttentionItem{
			Type:     "receiver_offline",
			Severity: "warning",
			Message:  "Some receivers are offline",
			Details: map[string]any{
				"offline_count": len(offline),
				"receiver_ids":  offline,
			},
			ResolveHint: "Check receiver power, network and that IP control is enabled",
		})
	}
	if len(incomplete) > 0 {
		items = append(items, AttentionItem{
			Type:     "input_discovery_incomplete",
			Severity: "info",
			Message:  "Input names are still being discovered",
			Details: map[string]any{
				"receiver_ids": incomplete,
			},
			ResolveHint: "POST /v1/receivers/{id}/rediscover to query the input list again",
		})
	}

	// Timestamps are fixed-width UTC strings, so they compare lexically.
	cutoff := s.now().Add(-faultWindow).UTC().Format("2006-01-02T15:04:05.000000Z")
	faultCount, err := s.countFaults(ctx, cutoff)
	if err != nil {
		s.logger.Printf("Failed to count device faults: %v", err)
	} else if faultCount > 0 {
		items = append(items, AttentionItem{
			Type:     "device_faults",
			Severity: "error",
			Message:  "Receivers reported command errors",
			Details: map[string]any{
				"fault_count": faultCount,
				"time_window": "24 hours",
			},
			ResolveHint: "Review DEVICE_FAULT entries in /v1/audit/events",
		})
	}

	if s.eventLog != nil && !s.eventLog.IsHealthy() {
		items = append(items, AttentionItem{
			Type:        "event_log_unhealthy",
			Severity:    "error",
			Message:     "Receiver events are not being recorded",
			ResolveHint: "Check database file permissions and disk space",
		})
	}

	if err := s.reader.Ping(); err != nil {
		items = append(items, AttentionItem{
			Type:        "database_unhealthy",
			Severity:    "critical",
			Message:     "Database connection is unhealthy",
			ResolveHint: "Check database file permissions and disk space",
		})
	}

	return items
}

// countFaults sums DEVICE_FAULT entries newer than cutoff for receivers
// the caller can see.
func (s *Service) countFaults(ctx context.Context, cutoff string) (int, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT device_id, COUNT(*) FROM receiver_events
		WHERE type = 'DEVICE_FAULT' AND timestamp > ?
		GROUP BY device_id
	`, cutoff)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var deviceID string
		var count int
		if err := rows.Scan(&deviceID, &count); err != nil {
			return 0, err
		}
		if auth.Visible(ctx, deviceID) {
			total += count
		}
	}
	return total, rows.Err()
}
