package reputation

// #region imports
import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/trustmesh/validation-engine/internal/scoring"
)

// #endregion

// #region schema

const workerOutcomesSchema = `
CREATE TABLE IF NOT EXISTS worker_outcomes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    validation_id TEXT NOT NULL,
    worker_id     TEXT NOT NULL,
    outlier       INTEGER NOT NULL,
    created_at    TEXT NOT NULL
);
`

const workerOutcomesIndex = `
CREATE INDEX IF NOT EXISTS idx_worker_outcomes_lookup
ON worker_outcomes(worker_id);
`

// #endregion

// #region tracker-struct

// Tracker persists per-worker outlier history in SQLite and derives a
// decay-weighted 0-10 reputation signal for the composite scorer.
type Tracker struct {
	db *sql.DB
}

// NewTracker initializes the worker_outcomes table and returns a Tracker.
func NewTracker(db *sql.DB) (*Tracker, error) {
	if _, err := db.Exec(workerOutcomesSchema); err != nil {
		return nil, fmt.Errorf("migrate outcomes: %w", err)
	}
	if _, err := db.Exec(workerOutcomesIndex); err != nil {
		return nil, fmt.Errorf("index outcomes: %w", err)
	}
	return &Tracker{db: db}, nil
}

// #endregion

// #region record-outcome

// RecordOutcome persists whether a worker was flagged as outlier in a
// validation run.
func (t *Tracker) RecordOutcome(validationID, workerID string, outlier bool, at time.Time) error {
	flag := 0
	if outlier {
		flag = 1
	}
	_, err := t.db.Exec(
		`INSERT INTO worker_outcomes (validation_id, worker_id, outlier, created_at) VALUES (?, ?, ?, ?)`,
		validationID, workerID, flag, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// #endregion

// #region reputation

// Reputation returns the decay-weighted 0-10 reputation across the given
// workers, skipping outcomes recorded under excludeValidationID so that
// re-scoring a session sees the same signal the first run saw. Outcomes
// lose half their weight every 7 days. With fewer than 3 samples the
// default reputation applies.
func (t *Tracker) Reputation(workerIDs []string, excludeValidationID string) (int, error) {
	if len(workerIDs) == 0 {
		return scoring.DefaultReputation, nil
	}

	now := time.Now()
	halfLife := 7.0 * 24.0 // hours

	var weightedGood, totalWeight float64
	samples := 0

	for _, id := range workerIDs {
		rows, err := t.db.Query(
			`SELECT outlier, created_at FROM worker_outcomes
			 WHERE worker_id = ? AND validation_id != ?`, id, excludeValidationID,
		)
		if err != nil {
			return 0, fmt.Errorf("query outcomes: %w", err)
		}
		for rows.Next() {
			var outlier int
			var createdStr string
			if err := rows.Scan(&outlier, &createdStr); err != nil {
				rows.Close()
				return 0, fmt.Errorf("scan outcome: %w", err)
			}
			createdAt, err := time.Parse(time.RFC3339, createdStr)
			if err != nil {
				continue
			}
			weight := math.Exp(-now.Sub(createdAt).Hours() / halfLife)
			if outlier == 0 {
				weightedGood += weight
			}
			totalWeight += weight
			samples++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return 0, fmt.Errorf("iterate outcomes: %w", err)
		}
		rows.Close()
	}

	if samples < 3 || totalWeight == 0 {
		return scoring.DefaultReputation, nil
	}
	return int(math.Round(10 * weightedGood / totalWeight)), nil
}

// #endregion
