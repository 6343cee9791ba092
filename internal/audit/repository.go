package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timestampLayout sorts lexically in UTC.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// ReceiverEvent is one persisted receiver log entry.
type ReceiverEvent struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	DeviceID  string         `json:"device_id"`
	Zone      *int           `json:"zone,omitempty"`
	Type      EventType      `json:"type"`
	Level     EventLevel     `json:"level"`
	RequestID *string        `json:"request_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload"`
}

// WriteEventInput contains the fields for a new receiver event.
type WriteEventInput struct {
	DeviceID  string
	Zone      *int
	Type      EventType
	Level     EventLevel
	RequestID *string
	Message   string
	Payload   map[string]any
}

// EventQueryFilters contains optional filters for querying events.
type EventQueryFilters struct {
	DeviceID  *string
	Type      *EventType
	Level     *EventLevel
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for receiver events.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
	now    func() time.Time
}

// NewRepository creates a new receiver event Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{
		reader: dbPair.Reader(),
		writer: dbPair.Writer(),
		now:    time.Now,
	}
}

// InsertEvent writes a new event. Level defaults to INFO.
func (r *Repository) InsertEvent(input WriteEventInput) (*ReceiverEvent, error) {
	if input.DeviceID == "" {
		return nil, errors.New("device id is required")
	}

	level := input.Level
	if level == "" {
		level = EventLevelInfo
	}

	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	eventID := uuid.New().String()
	_, err = r.writer.Exec(`
		INSERT INTO receiver_events (event_id, timestamp, device_id, zone, type, level, request_id, message, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, r.now().UTC().Format(timestampLayout), input.DeviceID, input.Zone, string(input.Type), string(level), input.RequestID, input.Message, string(payloadJSON))
	if err != nil {
		return nil, err
	}

	return r.GetEvent(eventID)
}

// GetEvent retrieves a single event by ID.
// Returns nil, nil if not found.
func (r *Repository) GetEvent(eventID string) (*ReceiverEvent, error) {
	row := r.reader.QueryRow(`
		SELECT event_id, timestamp, device_id, zone, type, level, request_id, message, payload
		FROM receiver_events
		WHERE event_id = ?
	`, eventID)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// QueryEvents returns matching events newest first, plus the total count.
func (r *Repository) QueryEvents(filters EventQueryFilters) ([]ReceiverEvent, int, error) {
	whereClause, args := buildWhereClause(filters)

	var total int
	if err := r.reader.QueryRow("SELECT COUNT(*) FROM receiver_events "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := `
		SELECT event_id, timestamp, device_id, zone, type, level, request_id, message, payload
		FROM receiver_events
		` + whereClause + `
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.reader.Query(query, append(args, limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []ReceiverEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// Prune deletes events older than the cutoff and returns the count.
func (r *Repository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.writer.Exec(`
		DELETE FROM receiver_events
		WHERE timestamp < ?
	`, cutoff.UTC().Format(timestampLayout))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func buildWhereClause(filters EventQueryFilters) (string, []any) {
	conditions := []string{}
	args := []any{}

	if filters.DeviceID != nil {
		conditions = append(conditions, "device_id = ?")
		args = append(args, *filters.DeviceID)
	}
	if filters.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, string(*filters.Type))
	}
	if filters.Level != nil {
		conditions = append(conditions, "level = ?")
		args = append(args, string(*filters.Level))
	}
	if filters.StartDate != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filters.StartDate.UTC().Format(timestampLayout))
	}
	if filters.EndDate != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filters.EndDate.UTC().Format(timestampLayout))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*ReceiverEvent, error) {
	var event ReceiverEvent
	var timestamp, eventType, level, payloadJSON string
	var zone sql.NullInt64
	var requestID sql.NullString

	if err := row.Scan(
		&event.EventID,
		&timestamp,
		&event.DeviceID,
		&zone,
		&eventType,
		&level,
		&requestID,
		&event.Message,
		&payloadJSON,
	); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(timestampLayout, timestamp)
	if err != nil {
		parsed, _ = time.Parse("2006-01-02 15:04:05", timestamp)
	}
	event.Timestamp = parsed
	event.Type = EventType(eventType)
	event.Level = EventLevel(level)

	if zone.Valid {
		z := int(zone.Int64)
		event.Zone = &z
	}
	if requestID.Valid {
		event.RequestID = &requestID.String
	}

	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, err
	}
	return &event, nil
}
