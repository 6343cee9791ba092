// Package inputcache persists discovered receiver input names so a
// restarted hub can resolve inputs by name before discovery completes.
package inputcache

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository stores one ordered input list per device.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
	now    func() time.Time
}

// NewRepository creates a new input cache Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer(), now: time.Now}
}

// Save replaces the cached inputs for deviceID. Input numbers are 1-based
// positions in inputs.
func (r *Repository) Save(deviceID string, inputs []string) error {
	tx, err := r.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM discovered_inputs WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("clear inputs: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO discovered_inputs (device_id, input_number, name, updated_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	updatedAt := r.now().UTC().Format(time.RFC3339)
	for i, name := range inputs {
		if _, err := stmt.Exec(deviceID, i+1, name, updatedAt); err != nil {
			return fmt.Errorf("insert input %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// Load returns the cached inputs for deviceID ordered by input number, or
// nil when nothing is cached.
func (r *Repository) Load(deviceID string) ([]string, error) {
	rows, err := r.reader.Query(`
		SELECT name FROM discovered_inputs
		WHERE device_id = ?
		ORDER BY input_number
	`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inputs []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		inputs = append(inputs, name)
	}
	return inputs, rows.Err()
}

// Prune drops cached inputs for every device not listed in keep and
// returns how many devices were removed.
func (r *Repository) Prune(keep []string) (int, error) {
	where := ""
	args := make([]any, 0, len(keep))
	if len(keep) > 0 {
		where = ` WHERE device_id NOT IN (?` + strings.Repeat(`, ?`, len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}

	var removed int
	if err := r.reader.QueryRow(`SELECT COUNT(DISTINCT device_id) FROM discovered_inputs`+where, args...).Scan(&removed); err != nil {
		return 0, fmt.Errorf("count stale inputs: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}
	if _, err := r.writer.Exec(`DELETE FROM discovered_inputs`+where, args...); err != nil {
		return 0, fmt.Errorf("prune inputs: %w", err)
	}
	return removed, nil
}
