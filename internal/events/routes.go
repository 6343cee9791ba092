package events

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/anthem-hub-go/internal/api"
)

// RegisterRoutes wires the websocket stream and its stats endpoint.
func RegisterRoutes(router chi.Router, hub *Hub) {
	router.Handle("/v1/events", hub)
	router.Method(http.MethodGet, "/v1/events/stats", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":            "event_stream",
			"connected_clients": hub.ClientCount(),
		})
	}))
}
