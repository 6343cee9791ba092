package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/anthem-hub-go/internal/api"
	"github.com/strefethen/anthem-hub-go/internal/apperrors"
	"github.com/strefethen/anthem-hub-go/internal/auth"
)

// RegisterRoutes wires receiver event log routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/audit/events", api.Handler(queryEvents(service)))
	router.Method(http.MethodGet, "/v1/audit/events/{event_id}", api.Handler(getEvent(service)))
}

// GET /v1/audit/events
func queryEvents(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}

		events, _, hasMore, err := service.QueryEvents(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query receiver events")
		}

		formatted := make([]map[string]any, 0, len(events))
		for i := range events {
			formatted = append(formatted, formatEvent(&events[i]))
		}
		return api.WriteList(w, "/v1/audit/events", formatted, hasMore)
	}
}

// GET /v1/audit/events/{event_id}
func getEvent(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		eventID := chi.URLParam(r, "event_id")

		event, err := service.GetEvent(eventID)
		if err != nil {
			var notFoundErr *EventNotFoundError
			if errors.As(err, &notFoundErr) {
				return apperrors.NewNotFoundError("Event not found", map[string]any{"event_id": eventID})
			}
			return apperrors.NewInternalError("Failed to get receiver event")
		}
		if !auth.Visible(r.Context(), event.DeviceID) {
			return apperrors.NewNotFoundError("Event not found", map[string]any{"event_id": eventID})
		}

		return api.WriteResource(w, http.StatusOK, formatEvent(event))
	}
}

func parseQueryFilters(r *http.Request) (EventQueryFilters, error) {
	filters := EventQueryFilters{Limit: DefaultQueryLimit}
	query := r.URL.Query()

	if from := query.Get("from"); from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid 'from' datetime format, expected ISO 8601", map[string]any{"from": from})
		}
		filters.StartDate = &parsed
	}
	if to := query.Get("to"); to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid 'to' datetime format, expected ISO 8601", map[string]any{"to": to})
		}
		filters.EndDate = &parsed
	}

	deviceID := query.Get("device_id")
	if deviceID != "" {
		if !auth.Visible(r.Context(), deviceID) {
			return filters, apperrors.NewDeviceNotFound(deviceID)
		}
		filters.DeviceID = &deviceID
	} else if client, ok := auth.ClientFromContext(r.Context()); ok && len(client.Receivers) > 0 {
		// Events are filtered per device, so a partial grant must name one.
		return filters, apperrors.NewValidationError("device_id is required for tokens scoped to specific receivers", map[string]any{
			"receivers": client.Receivers,
		})
	}
	if eventType := query.Get("type"); eventType != "" {
		if !validEventTypes[eventType] {
			return filters, apperrors.NewValidationError("invalid event type", map[string]any{"type": eventType})
		}
		parsed := EventType(eventType)
		filters.Type = &parsed
	}
	if level := query.Get("level"); level != "" {
		parsed, ok := validEventLevels[level]
		if !ok {
			return filters, apperrors.NewValidationError("invalid level", map[string]any{
				"level":        level,
				"valid_levels": []string{"DEBUG", "INFO", "WARN", "ERROR"},
			})
		}
		filters.Level = &parsed
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{"limit": limitStr})
		}
		filters.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return filters, apperrors.NewValidationError("invalid offset, must be >= 0", map[string]any{"offset": offsetStr})
		}
		filters.Offset = offset
	}

	return filters, nil
}

func formatEvent(event *ReceiverEvent) map[string]any {
	result := map[string]any{
		"object":    "receiver_event",
		"id":        event.EventID,
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
		"device_id": event.DeviceID,
		"type":      string(event.Type),
		"level":     string(event.Level),
		"message":   event.Message,
	}
	if event.Zone != nil {
		result["zone"] = *event.Zone
	}
	if event.RequestID != nil {
		result["request_id"] = *event.RequestID
	}
	if len(event.Payload) > 0 {
		result["payload"] = event.Payload
	}
	return result
}
