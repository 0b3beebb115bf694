package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/trustmesh/validation-engine/internal/scoring"
)

// ErrNotFound is returned when no session exists for a validation id.
var ErrNotFound = errors.New("session not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS validation_sessions (
	validation_id     TEXT PRIMARY KEY,
	prompt            TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	scored            INTEGER NOT NULL DEFAULT 0,
	trust_score       INTEGER,
	consensus_reached INTEGER,
	breakdown_json    TEXT,
	evidence_json     BLOB,
	evidence_cid      TEXT
);

CREATE TABLE IF NOT EXISTS worker_responses (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	validation_id TEXT NOT NULL,
	worker_id     TEXT NOT NULL,
	response_text TEXT NOT NULL,
	latency_ms    INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (validation_id) REFERENCES validation_sessions(validation_id)
);

CREATE TABLE IF NOT EXISTS validation_history (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	validation_id     TEXT NOT NULL,
	prompt            TEXT NOT NULL,
	trust_score       INTEGER NOT NULL,
	consensus_reached INTEGER NOT NULL,
	created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	validation_id TEXT NOT NULL,
	stage         TEXT NOT NULL,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store persists validation sessions in SQLite. SQLite serializes
// writers, which gives per-session response appends linearizability
// without any engine-side locking.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	// One writer connection keeps per-session appends linearizable.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages
// (logging, reputation).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region create
// Create inserts a new validation session for a prompt and returns it.
func (s *Store) Create(prompt string) (Record, error) {
	rec := Record{
		ValidationID: uuid.New().String(),
		Prompt:       prompt,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO validation_sessions (validation_id, prompt, created_at) VALUES (?, ?, ?)`,
		rec.ValidationID, rec.Prompt, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert session: %w", err)
	}
	return rec, nil
}
// #endregion create

// #region get
// Get retrieves a session and its ordered responses.
func (s *Store) Get(validationID string) (Record, error) {
	var rec Record
	var createdStr string
	var scored int
	var trustScore, consensus sql.NullInt64
	var breakdownJSON, evidenceCID sql.NullString

	err := s.db.QueryRow(
		`SELECT validation_id, prompt, created_at, scored, trust_score, consensus_reached, breakdown_json, evidence_cid
		 FROM validation_sessions WHERE validation_id = ?`, validationID,
	).Scan(&rec.ValidationID, &rec.Prompt, &createdStr, &scored, &trustScore, &consensus, &breakdownJSON, &evidenceCID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("session %s: %w", validationID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get session %s: %w", validationID, err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	rec.Scored = scored != 0
	if trustScore.Valid {
		rec.TrustScore = int(trustScore.Int64)
	}
	if consensus.Valid {
		rec.ConsensusReached = consensus.Int64 != 0
	}
	if breakdownJSON.Valid {
		if err := json.Unmarshal([]byte(breakdownJSON.String), &rec.Breakdown); err != nil {
			return Record{}, fmt.Errorf("unmarshal breakdown: %w", err)
		}
	}
	if evidenceCID.Valid {
		rec.EvidenceCID = evidenceCID.String
	}

	rows, err := s.db.Query(
		`SELECT worker_id, response_text, latency_ms FROM worker_responses
		 WHERE validation_id = ? ORDER BY id ASC`, validationID,
	)
	if err != nil {
		return Record{}, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wr WorkerResponse
		if err := rows.Scan(&wr.WorkerID, &wr.Text, &wr.LatencyMs); err != nil {
			return Record{}, fmt.Errorf("scan response: %w", err)
		}
		rec.Responses = append(rec.Responses, wr)
	}
	return rec, rows.Err()
}
// #endregion get

// #region append-response
// AppendResponse records one worker response against a session.
// Fails with ErrNotFound for an unknown validation id.
func (s *Store) AppendResponse(validationID string, wr WorkerResponse) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM validation_sessions WHERE validation_id = ?`, validationID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("session %s: %w", validationID, ErrNotFound)
	}

	_, err = s.db.Exec(
		`INSERT INTO worker_responses (validation_id, worker_id, response_text, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		validationID, wr.WorkerID, wr.Text, wr.LatencyMs, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}
// #endregion append-response

// #region save-score
// SaveScore persists the scorer output and evidence against a session.
// Idempotent: re-scoring the same session overwrites deterministically.
func (s *Store) SaveScore(validationID string, result scoring.Result, evidenceJSON []byte, evidenceCID string) error {
	breakdownJSON, err := json.Marshal(result.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	consensus := 0
	if result.ConsensusReached {
		consensus = 1
	}
	res, err := s.db.Exec(
		`UPDATE validation_sessions
		 SET scored = 1, trust_score = ?, consensus_reached = ?, breakdown_json = ?, evidence_json = ?, evidence_cid = ?
		 WHERE validation_id = ?`,
		result.TrustScore, consensus, string(breakdownJSON), evidenceJSON, evidenceCID, validationID,
	)
	if err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", validationID, ErrNotFound)
	}
	return nil
}
// #endregion save-score

// #region get-evidence
// GetEvidence returns the persisted canonical evidence bytes and CID.
// ErrNotFound covers both an unknown session and a session not yet scored.
func (s *Store) GetEvidence(validationID string) ([]byte, string, error) {
	var evidenceJSON []byte
	var cid sql.NullString
	err := s.db.QueryRow(
		`SELECT evidence_json, evidence_cid FROM validation_sessions WHERE validation_id = ?`,
		validationID,
	).Scan(&evidenceJSON, &cid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("session %s: %w", validationID, ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("get evidence %s: %w", validationID, err)
	}
	if len(evidenceJSON) == 0 || !cid.Valid {
		return nil, "", fmt.Errorf("evidence for %s: %w", validationID, ErrNotFound)
	}
	return evidenceJSON, cid.String, nil
}
// #endregion get-evidence

// #region history
// AppendHistory records a completed validation in the history log.
func (s *Store) AppendHistory(entry HistoryEntry) error {
	consensus := 0
	if entry.ConsensusReached {
		consensus = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO validation_history (validation_id, prompt, trust_score, consensus_reached, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ValidationID, entry.Prompt, entry.TrustScore, consensus,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// ListHistory returns the most recent completed validations.
func (s *Store) ListHistory(limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT validation_id, prompt, trust_score, consensus_reached, created_at
		 FROM validation_history ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var consensus int
		var createdStr string
		if err := rows.Scan(&e.ValidationID, &e.Prompt, &e.TrustScore, &consensus, &createdStr); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.ConsensusReached = consensus != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
// #endregion history

// #region list-sessions
// ListSessions returns the most recent sessions without their responses.
func (s *Store) ListSessions(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT validation_id, prompt, created_at, scored, trust_score, consensus_reached, evidence_cid
		 FROM validation_sessions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var createdStr string
		var scored int
		var trustScore, consensus sql.NullInt64
		var cid sql.NullString
		if err := rows.Scan(&rec.ValidationID, &rec.Prompt, &createdStr, &scored, &trustScore, &consensus, &cid); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		rec.Scored = scored != 0
		if trustScore.Valid {
			rec.TrustScore = int(trustScore.Int64)
		}
		if consensus.Valid {
			rec.ConsensusReached = consensus.Int64 != 0
		}
		if cid.Valid {
			rec.EvidenceCID = cid.String
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
// #endregion list-sessions
