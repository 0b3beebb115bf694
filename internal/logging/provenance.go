package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (validation_id, stage, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ValidationID,
		entry.Stage,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}
// #endregion log-decision

// #region list
// ListDecisions returns the most recent provenance entries for a session.
func ListDecisions(db *sql.DB, validationID string, limit int) ([]ProvenanceEntry, error) {
	rows, err := db.Query(
		`SELECT validation_id, stage, decision, reason, created_at
		 FROM provenance_log WHERE validation_id = ? ORDER BY id DESC LIMIT ?`,
		validationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var entries []ProvenanceEntry
	for rows.Next() {
		var e ProvenanceEntry
		var reason sql.NullString
		var createdStr string
		if err := rows.Scan(&e.ValidationID, &e.Stage, &e.Decision, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
// #endregion list

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
