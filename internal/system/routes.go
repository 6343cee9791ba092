package system

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/anthem-hub-go/internal/api"
	"github.com/strefethen/anthem-hub-go/internal/apperrors"
)

// RegisterRoutes wires system routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/system/info", api.Handler(getSystemInfo(service)))
	router.Method(http.MethodGet, "/v1/dashboard", api.Handler(getDashboard(service)))
}

// getSystemInfo handles GET /v1/system/info
func getSystemInfo(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		info, err := service.GetSystemInfo()
		if err != nil {
			return apperrors.NewInternalError("Failed to get system info")
		}
		return api.WriteResource(w, http.StatusOK, formatSystemInfo(info))
	}
}

// getDashboard handles GET /v1/dashboard
func getDashboard(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		data, err := service.GetDashboardData(r.Context())
		if err != nil {
			return apperrors.NewInternalError("Failed to get dashboard data")
		}
		return api.WriteResource(w, http.StatusOK, formatDashboardData(data))
	}
}

func formatSystemInfo(info *SystemInfo) map[string]any {
	return map[string]any{
		"object":            "system_info",
		"hub_version":       info.HubVersion,
		"uptime_seconds":    info.Uptime,
		"memory_mb":         info.MemoryUsageMB,
		"goroutines":        info.Goroutines,
		"sqlite_connected":  info.SQLiteConnected,
		"event_log_healthy": info.EventLogHealthy,
		"receivers_online":  info.ReceiversOnline,
		"receivers_total":   info.ReceiversTotal,
		"refresh_schedule":  info.RefreshSchedule,
		"auth_enabled":      info.AuthEnabled,
		"sinks":             info.Sinks,
	}
}

func formatDashboardData(data *DashboardData) map[string]any {
	receivers := make([]map[string]any, 0, len(data.Receivers))
	for _, summary := range data.Receivers {
		receivers = append(receivers, map[string]any{
			"id":            summary.ID,
			"name":          summary.Name,
			"model":         summary.Model,
			"state":         summary.State,
			"available":     summary.Available,
			"zones_on":      summary.ZonesOn,
			"zones_enabled": summary.ZonesEnabled,
		})
	}

	items := make([]map[string]any, 0, len(data.AttentionItems))
	for _, item := range data.AttentionItems {
		formatted := map[string]any{
			"type":     item.Type,
			"severity": item.Severity,
			"message":  item.Message,
		}
		if item.Details != nil {
			formatted["details"] = item.Details
		}
		if item.ResolveHint != "" {
			formatted["resolve_hint"] = item.ResolveHint
		}
		items = append(items, formatted)
	}

	return map[string]any{
		"object":          "dashboard",
		"receivers":       receivers,
		"attention_items": items,
	}
}
