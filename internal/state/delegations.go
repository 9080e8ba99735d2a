package state

import (
	"database/sql"
	"fmt"
	"time"

	"maestro/pkg/models"
)

// Delegation is one persisted delegation outcome.
type Delegation struct {
	TaskID     string
	AgentType  string
	Mode       models.ExecutionMode
	ReturnCode models.ReturnCode
	Fallback   bool
	Duration   time.Duration
	Error      string
	StartedAt  time.Time
}

// Summary aggregates persisted delegation outcomes for reporting.
type Summary struct {
	Total     int64
	ByCode    map[string]int64
	Fallbacks int64
	ByAgent   map[string]int64
}

// RecordDelegation upserts one delegation outcome.
func (db *DB) RecordDelegation(d Delegation) error {
	fallback := 0
	if d.Fallback {
		fallback = 1
	}
	_, err := db.Exec(`
		INSERT INTO delegations (task_id, agent_type, mode, return_code, fallback, duration_ms, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			agent_type = excluded.agent_type,
			mode = excluded.mode,
			return_code = excluded.return_code,
			fallback = excluded.fallback,
			duration_ms = excluded.duration_ms,
			error = excluded.error
	`, d.TaskID, d.AgentType, string(d.Mode), int(d.ReturnCode), fallback,
		d.Duration.Milliseconds(), nullIfEmpty(d.Error), formatTime(d.StartedAt))
	if err != nil {
		return fmt.Errorf("record delegation %s: %w", d.TaskID, err)
	}
	return nil
}

// RecentDelegations returns up to limit delegations, newest first.
func (db *DB) RecentDelegations(limit int) ([]Delegation, error) {
	rows, err := db.Query(`
		SELECT task_id, agent_type, mode, return_code, fallback, duration_ms, error, started_at
		FROM delegations
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list delegations: %w", err)
	}
	defer rows.Close()

	var out []Delegation
	for rows.Next() {
		var d Delegation
		var mode string
		var code, fallback int
		var durationMS int64
		var errStr sql.NullString
		var startedAt string
		if err := rows.Scan(&d.TaskID, &d.AgentType, &mode, &code, &fallback, &durationMS, &errStr, &startedAt); err != nil {
			return nil, fmt.Errorf("scan delegation: %w", err)
		}
		d.Mode = models.ExecutionMode(mode)
		d.ReturnCode = models.ReturnCode(code)
		d.Fallback = fallback != 0
		d.Duration = time.Duration(durationMS) * time.Millisecond
		if errStr.Valid {
			d.Error = errStr.String
		}
		if t, err := parseTime(startedAt); err == nil {
			d.StartedAt = t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Summarize aggregates all persisted delegations.
func (db *DB) Summarize() (*Summary, error) {
	s := &Summary{
		ByCode:  make(map[string]int64),
		ByAgent: make(map[string]int64),
	}

	rows, err := db.Query(`
		SELECT return_code, COUNT(*) FROM delegations GROUP BY return_code
	`)
	if err != nil {
		return nil, fmt.Errorf("summarize by code: %w", err)
	}
	for rows.Next() {
		var code int
		var count int64
		if err := rows.Scan(&code, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan code count: %w", err)
		}
		s.ByCode[models.ReturnCode(code).String()] = count
		s.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.Query(`
		SELECT agent_type, COUNT(*) FROM delegations GROUP BY agent_type
	`)
	if err != nil {
		return nil, fmt.Errorf("summarize by agent: %w", err)
	}
	for rows.Next() {
		var agent string
		var count int64
		if err := rows.Scan(&agent, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan agent count: %w", err)
		}
		s.ByAgent[agent] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row := db.QueryRow("SELECT COUNT(*) FROM delegations WHERE fallback = 1")
	if err := row.Scan(&s.Fallbacks); err != nil {
		return nil, fmt.Errorf("count fallbacks: %w", err)
	}

	return s, nil
}

// PurgeOldDelegations deletes delegations older than the given duration.
// Returns the number of rows deleted.
func (db *DB) PurgeOldDelegations(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec("DELETE FROM delegations WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old delegations: %w", err)
	}
	return result.RowsAffected()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
