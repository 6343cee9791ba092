package receivers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/anthem-hub-go/internal/anthem/protocol"
	"github.com/strefethen/anthem-hub-go/internal/anthem/session"
	"github.com/strefethen/anthem-hub-go/internal/api"
	"github.com/strefethen/anthem-hub-go/internal/apperrors"
	"github.com/strefethen/anthem-hub-go/internal/auth"
)

type powerRequest struct {
	On *bool `json:"on"`
}

type volumeRequest struct {
	DB      *int `json:"db"`
	Percent *int `json:"percent"`
}

type muteRequest struct {
	Muted  *bool `json:"muted"`
	Toggle bool  `json:"toggle"`
}

type inputRequest struct {
	Number *int   `json:"number"`
	Name   string `json:"name"`
}

type listeningModeRequest struct {
	Mode *int   `json:"mode"`
	Name string `json:"name"`
}

// RegisterRoutes wires receiver routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/receivers", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		snapshots := service.List()
		formatted := make([]map[string]any, 0, len(snapshots))
		for _, snapshot := range snapshots {
			if !auth.Visible(r.Context(), snapshot.ID) {
				continue
			}
			formatted = append(formatted, formatReceiverSummary(snapshot))
		}
		return api.WriteList(w, "/v1/receivers", formatted, false)
	}))

	router.Method(http.MethodGet, "/v1/receivers/{id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		if err := readable(r, id); err != nil {
			return err
		}
		snapshot, err := service.Get(id)
		if err != nil {
			return mapError(id, 0, err)
		}
		return api.WriteResource(w, http.StatusOK, formatReceiver(snapshot))
	}))

	router.Method(http.MethodGet, "/v1/receivers/{id}/sources", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		if err := readable(r, id); err != nil {
			return err
		}
		snapshot, err := service.Get(id)
		if err != nil {
			return mapError(id, 0, err)
		}
		return api.WriteList(w, "/v1/receivers/"+id+"/sources", formatSources(snapshot.Inputs), false)
	}))

	router.Method(http.MethodGet, "/v1/receivers/{id}/zones/{zone}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		if err := readable(r, id); err != nil {
			return err
		}
		zone, err := zoneParam(r)
		if err != nil {
			return err
		}
		snapshot, err := service.Zone(id, zone)
		if err != nil {
			return mapError(id, zone, err)
		}
		return api.WriteResource(w, http.StatusOK, formatZone(id, snapshot))
	}))

	router.Method(http.MethodPost, "/v1/receivers/{id}/reconnect", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		if err := controllable(r, id); err != nil {
			return err
		}
		if err := service.Reconnect(id); err != nil {
			return mapError(id, 0, err)
		}
		return api.WriteAction(w, http.StatusAccepted, actionResult(id, 0, "reconnect"))
	}))

	router.Method(http.MethodPost, "/v1/receivers/{id}/rediscover", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		if err := controllable(r, id); err != nil {
			return err
		}
		err := service.Command(r.Context(), id, 0, protocol.CmdInputCountQuery, func(ctx context.Context, s *session.Session) error {
			return s.RediscoverInputs(ctx)
		})
		if err != nil {
			return mapError(id, 0, err)
		}
		return api.WriteAction(w, http.StatusAccepted, actionResult(id, 0, "rediscover"))
	}))

	zoneCommand(router, service, "/power", func(r *http.Request) (string, zoneFunc, error) {
		var req powerRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			return "", nil, err
		}
		if req.On == nil {
			return "", nil, apperrors.NewValidationError("'on' is required", nil)
		}
		on := *req.On
		return fmt.Sprintf("power on=%t", on), func(ctx context.Context, s *session.Session, zone int) error {
			if on {
				return s.PowerOn(ctx, zone)
			}
			return s.PowerOff(ctx, zone)
		}, nil
	})

	zoneCommand(router, service, "/volume", func(r *http.Request) (string, zoneFunc, error) {
		var req volumeRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			return "", nil, err
		}
		switch {
		case req.DB != nil && req.Percent != nil:
			return "", nil, apperrors.NewValidationError("Provide either 'db' or 'percent', not both", nil)
		case req.DB != nil:
			db := *req.DB
			if !protocol.ValidVolumeDB(db) {
				return "", nil, apperrors.NewValidationError("Volume out of range", map[string]any{
					"db": db, "min": protocol.MinVolumeDB, "max": protocol.MaxVolumeDB,
				})
			}
			return fmt.Sprintf("volume db=%d", db), func(ctx context.Context, s *session.Session, zone int) error {
				return s.SetVolume(ctx, zone, db)
			}, nil
		case req.Percent != nil:
			percent := *req.Percent
			if percent < 0 || percent > 100 {
				return "", nil, apperrors.NewValidationError("Percent must be between 0 and 100", map[string]any{"percent": percent})
			}
			return fmt.Sprintf("volume percent=%d", percent), func(ctx context.Context, s *session.Session, zone int) error {
				return s.SetVolumePercent(ctx, zone, percent)
			}, nil
		}
		return "", nil, apperrors.NewValidationError("'db' or 'percent' is required", nil)
	})

	zoneCommand(router, service, "/volume/up", func(r *http.Request) (string, zoneFunc, error) {
		return "volume up", func(ctx context.Context, s *session.Session, zone int) error {
			return s.VolumeUp(ctx, zone)
		}, nil
	})

	zoneCommand(router, service, "/volume/down", func(r *http.Request) (string, zoneFunc, error) {
		return "volume down", func(ctx context.Context, s *session.Session, zone int) error {
			return s.VolumeDown(ctx, zone)
		}, nil
	})

	zoneCommand(router, service, "/mute", func(r *http.Request) (string, zoneFunc, error) {
		var req muteRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			return "", nil, err
		}
		if req.Toggle {
			return "mute toggle", func(ctx context.Context, s *session.Session, zone int) error {
				return s.ToggleMute(ctx, zone)
			}, nil
		}
		if req.Muted == nil {
			return "", nil, apperrors.NewValidationError("'muted' or 'toggle' is required", nil)
		}
		muted := *req.Muted
		return fmt.Sprintf("mute muted=%t", muted), func(ctx context.Context, s *session.Session, zone int) error {
			return s.SetMute(ctx, zone, muted)
		}, nil
	})

	zoneCommand(router, service, "/input", func(r *http.Request) (string, zoneFunc, error) {
		var req inputRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			return "", nil, err
		}
		switch {
		case req.Number != nil:
			number := *req.Number
			return fmt.Sprintf("input number=%d", number), func(ctx context.Context, s *session.Session, zone int) error {
				return s.SelectInput(ctx, zone, number)
			}, nil
		case req.Name != "":
			name := req.Name
			return fmt.Sprintf("input name=%q", name), func(ctx context.Context, s *session.Session, zone int) error {
				return s.SelectInputByName(ctx, zone, name)
			}, nil
		}
		return "", nil, apperrors.NewValidationError("'number' or 'name' is required", nil)
	})

	zoneCommand(router, service, "/listening-mode", func(r *http.Request) (string, zoneFunc, error) {
		var req listeningModeRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			return "", nil, err
		}
		switch {
		case req.Mode != nil:
			mode := *req.Mode
			if _, ok := protocol.ListeningModes[mode]; !ok {
				return "", nil, apperrors.NewUnsupportedError("Unknown listening mode: " + strconv.Itoa(mode))
			}
			return fmt.Sprintf("listening mode=%d", mode), func(ctx context.Context, s *session.Session, zone int) error {
				return s.SetListeningMode(ctx, zone, mode)
			}, nil
		case req.Name != "":
			name := req.Name
			return fmt.Sprintf("listening mode name=%q", name), func(ctx context.Context, s *session.Session, zone int) error {
				return s.SetListeningModeByName(ctx, zone, name)
			}, nil
		}
		return "", nil, apperrors.NewValidationError("'mode' or 'name' is required", nil)
	})

	zoneCommand(router, service, "/refresh", func(r *http.Request) (string, zoneFunc, error) {
		return "refresh", func(ctx context.Context, s *session.Session, zone int) error {
			if err := s.QueryAllStatus(ctx, zone); err != nil {
				return err
			}
			return s.QueryAudioInfo(ctx, zone)
		}, nil
	})
}

type zoneFunc func(ctx context.Context, s *session.Session, zone int) error

// zoneCommand registers POST /v1/receivers/{id}/zones/{zone}<suffix>. parse
// validates the body and returns the action label and the session call.
func zoneCommand(router chi.Router, service *Service, suffix string, parse func(r *http.Request) (string, zoneFunc, error)) {
	router.Method(http.MethodPost, "/v1/receivers/{id}/zones/{zone}"+suffix, api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		if err := controllable(r, id); err != nil {
			return err
		}
		zone, err := zoneParam(r)
		if err != nil {
			return err
		}
		action, fn, err := parse(r)
		if err != nil {
			return err
		}

		err = service.Command(r.Context(), id, zone, action, func(ctx context.Context, s *session.Session) error {
			return fn(ctx, s, zone)
		})
		if err != nil {
			return mapError(id, zone, err)
		}
		return api.WriteAction(w, http.StatusAccepted, actionResult(id, zone, action))
	}))
}

// readable hides receivers outside the caller's grant as not found.
func readable(r *http.Request, id string) error {
	if !auth.Visible(r.Context(), id) {
		return apperrors.NewDeviceNotFound(id)
	}
	return nil
}

// controllable additionally requires the control scope.
func controllable(r *http.Request, id string) error {
	if err := readable(r, id); err != nil {
		return err
	}
	return auth.RequireControl(r.Context(), id)
}

func zoneParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "zone")
	zone, err := strconv.Atoi(raw)
	if err != nil || zone < 1 {
		return 0, apperrors.NewValidationError("Invalid zone", map[string]any{"zone": raw})
	}
	return zone, nil
}

// mapError converts service and session errors into API errors.
func mapError(id string, zone int, err error) error {
	switch {
	case errors.Is(err, ErrReceiverNotFound):
		return apperrors.NewDeviceNotFound(id)
	case errors.Is(err, ErrReceiverOffline), errors.Is(err, session.ErrNotConnected):
		return apperrors.NewDeviceOffline(id)
	case errors.Is(err, ErrZoneNotFound), errors.Is(err, session.ErrInvalidZone):
		return apperrors.NewZoneNotFound(id, zone)
	case errors.Is(err, session.ErrUnknownInput):
		return apperrors.NewInputNotFound(err.Error())
	case errors.Is(err, session.ErrUnknownListeningMode):
		return apperrors.NewUnsupportedError(err.Error())
	case errors.Is(err, session.ErrNonASCII):
		return apperrors.NewValidationError(err.Error(), nil)
	}
	return err
}

func actionResult(id string, zone int, action string) map[string]any {
	result := map[string]any{
		"object":      "receiver_action",
		"receiver_id": id,
		"action":      action,
		"status":      "sent",
	}
	if zone != 0 {
		result["zone"] = zone
	}
	return result
}

func formatReceiverSummary(snapshot Snapshot) map[string]any {
	return map[string]any{
		"object":    "receiver",
		"id":        snapshot.ID,
		"name":      snapshot.Name,
		"host":      snapshot.Host,
		"port":      snapshot.Port,
		"model":     snapshot.Model,
		"state":     snapshot.State.String(),
		"available": snapshot.Available,
	}
}

func formatReceiver(snapshot Snapshot) map[string]any {
	result := formatReceiverSummary(snapshot)
	result["configured_model"] = snapshot.ConfiguredModel
	result["info"] = snapshot.Info
	result["input_count"] = snapshot.InputCount
	result["discovery_complete"] = snapshot.DiscoveryComplete
	result["sources"] = formatSources(snapshot.Inputs)

	zones := make([]map[string]any, 0, len(snapshot.Zones))
	for _, zone := range snapshot.Zones {
		zones = append(zones, formatZone(snapshot.ID, zone))
	}
	result["zones"] = zones

	if snapshot.ConnectedAt != nil {
		result["connected_at"] = snapshot.ConnectedAt.UTC().Format(time.RFC3339)
	} else {
		result["connected_at"] = nil
	}
	if snapshot.LastError != "" {
		result["last_error"] = snapshot.LastError
	}
	return result
}

func formatSources(inputs []string) []map[string]any {
	sources := make([]map[string]any, 0, len(inputs))
	for i, name := range inputs {
		sources = append(sources, map[string]any{
			"object": "source",
			"number": i + 1,
			"name":   name,
		})
	}
	return sources
}

func formatZone(id string, zone ZoneSnapshot) map[string]any {
	z := zone.State
	return map[string]any{
		"object":                "zone",
		"receiver_id":           id,
		"zone":                  zone.Number,
		"name":                  zone.Name,
		"enabled":               zone.Enabled,
		"available":             zone.Available,
		"reported":              zone.Reported,
		"power":                 z.Power,
		"volume_db":             z.VolumeDB,
		"volume_percent":        z.VolumePercent(),
		"muted":                 z.Muted,
		"input_number":          z.InputNumber,
		"input_name":            z.InputName,
		"listening_mode":        z.ListeningMode,
		"listening_mode_number": z.ListeningModeNumber,
		"audio_format":          z.AudioFormat,
		"audio_channels":        z.AudioChannels,
		"video_resolution":      z.VideoResolution,
		"sample_rate_info":      z.SampleRateInfo,
		"sample_rate_khz":       z.SampleRateKHz,
		"bit_depth":             z.BitDepth,
	}
}
