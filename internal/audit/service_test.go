package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/anthem-hub-go/internal/auth"
	"github.com/strefethen/anthem-hub-go/internal/config"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(config.Config{EventRetentionDays: 7}, setupTestDB(t), nil)
}

func TestService_RecordAndGet(t *testing.T) {
	service := newTestService(t)

	event, err := service.RecordEvent(WriteEventInput{DeviceID: "den", Type: EventInputsDiscovered, Message: "8 inputs"})
	require.NoError(t, err)
	require.Equal(t, EventLevelInfo, event.Level)

	fetched, err := service.GetEvent(event.EventID)
	require.NoError(t, err)
	require.Equal(t, "8 inputs", fetched.Message)

	_, err = service.GetEvent("missing")
	var notFound *EventNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.True(t, service.IsHealthy())
}

func TestService_QueryEvents_ClampsLimit(t *testing.T) {
	service := newTestService(t)
	for i := 0; i < 3; i++ {
		_, err := service.RecordEvent(WriteEventInput{DeviceID: "den", Type: EventCommandSent, Message: "cmd"})
		require.NoError(t, err)
	}

	events, total, hasMore, err := service.QueryEvents(EventQueryFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, 3, total)
	require.True(t, hasMore)

	events, _, hasMore, err = service.QueryEvents(EventQueryFilters{Limit: MaxQueryLimit + 50})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.False(t, hasMore)
}

func TestService_PruneUsesRetention(t *testing.T) {
	service := newTestService(t)

	service.repo.now = func() time.Time { return time.Now().AddDate(0, 0, -8) }
	_, err := service.RecordEvent(WriteEventInput{DeviceID: "den", Type: EventDeviceFault, Message: "!E"})
	require.NoError(t, err)
	service.repo.now = time.Now
	_, err = service.RecordEvent(WriteEventInput{DeviceID: "den", Type: EventDeviceFault, Message: "!E"})
	require.NoError(t, err)

	deleted, err := service.Prune()
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}

func TestService_PruneJobStartStop(t *testing.T) {
	service := newTestService(t)
	service.StartPruneJob()
	service.StopPruneJob()
	service.StopPruneJob()
}

func TestRoutes_QueryAndGet(t *testing.T) {
	service := newTestService(t)
	event, err := service.RecordEvent(WriteEventInput{DeviceID: "den", Zone: intPtr(1), Type: EventCommandSent, Message: "Z1VOL-30"})
	require.NoError(t, err)
	_, err = service.RecordEvent(WriteEventInput{DeviceID: "theater", Type: EventReceiverConnected, Message: "ready"})
	require.NoError(t, err)

	router := chi.NewRouter()
	RegisterRoutes(router, service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audit/events?device_id=den", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Object  string           `json:"object"`
		Data    []map[string]any `json:"data"`
		HasMore bool             `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 1)
	require.Equal(t, "den", list.Data[0]["device_id"])
	require.Equal(t, float64(1), list.Data[0]["zone"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audit/events/"+event.EventID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"object":"receiver_event"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audit/events/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_RejectsBadFilters(t *testing.T) {
	router := chi.NewRouter()
	RegisterRoutes(router, newTestService(t))

	for _, query := range []string{"level=LOUD", "type=NOPE", "limit=0", "offset=-1", "from=yesterday"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audit/events?"+query, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestRoutes_ScopedClientSeesOnlyGrantedReceivers(t *testing.T) {
	service := newTestService(t)
	denEvent, err := service.RecordEvent(WriteEventInput{DeviceID: "den", Type: EventCommandSent, Message: "Z1POW1"})
	require.NoError(t, err)
	theaterEvent, err := service.RecordEvent(WriteEventInput{DeviceID: "theater", Type: EventCommandSent, Message: "Z1POW0"})
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithClient(r.Context(), auth.Client{Sub: "panel", Scope: auth.ScopeMonitor, Receivers: []string{"den"}})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	RegisterRoutes(router, service)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/v1/audit/events?device_id=den")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Z1POW1")

	rec = get("/v1/audit/events?device_id=theater")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "DEVICE_NOT_FOUND")

	rec = get("/v1/audit/events")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, get("/v1/audit/events/"+denEvent.EventID).Code)
	require.Equal(t, http.StatusNotFound, get("/v1/audit/events/"+theaterEvent.EventID).Code)
}
