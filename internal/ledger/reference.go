package ledger

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trustmesh/validation-engine/internal/evidence"
	"github.com/trustmesh/validation-engine/internal/gate"
)

// #endregion

// #region schema

const certificateSchema = `
CREATE TABLE IF NOT EXISTS trust_certificates (
	validation_id  TEXT PRIMARY KEY,
	trust_score    INTEGER NOT NULL,
	evidence_cid   TEXT NOT NULL,
	prompt_excerpt TEXT NOT NULL,
	issued_at      TEXT NOT NULL,
	owner          TEXT NOT NULL
);
`

// #endregion

// #region reference-ledger

// Reference is the in-process ledger used in place of the on-chain
// contract. It enforces the same preconditions the contract would:
// sufficient payment, verifiable evidence, consensus reached, and
// one certificate per validation id.
type Reference struct {
	db  *sql.DB
	fee uint64
}

// NewReference creates a reference ledger backed by the given database.
func NewReference(db *sql.DB, fee uint64) (*Reference, error) {
	if _, err := db.Exec(certificateSchema); err != nil {
		return nil, fmt.Errorf("migrate certificates: %w", err)
	}
	return &Reference{db: db, fee: fee}, nil
}

// Fee returns the fixed issuance fee.
func (r *Reference) Fee() uint64 {
	return r.fee
}

// #endregion

// #region issue

// Issue mints a certificate after re-deriving the CID from the evidence
// bytes and recomputing the score through the canonical formula.
func (r *Reference) Issue(ctx context.Context, req gate.IssuanceRequest, evidenceJSON []byte, payment uint64) (Certificate, error) {
	if payment < r.fee {
		return Certificate{}, fmt.Errorf("payment %d < fee %d: %w", payment, r.fee, ErrPaymentInsufficient)
	}

	if cid := evidence.CID(evidenceJSON); cid != req.EvidenceCID {
		return Certificate{}, fmt.Errorf("evidence cid mismatch: %s != %s", cid, req.EvidenceCID)
	}

	var bundle evidence.Bundle
	if err := json.Unmarshal(evidenceJSON, &bundle); err != nil {
		return Certificate{}, fmt.Errorf("unmarshal evidence: %w", err)
	}
	if err := VerifyEvidence(bundle); err != nil {
		return Certificate{}, fmt.Errorf("verify evidence: %w", err)
	}
	if !bundle.ConsensusReached {
		return Certificate{}, fmt.Errorf("validation %s: consensus not reached", req.ValidationID)
	}

	cert := Certificate{
		ValidationID:  req.ValidationID,
		TrustScore:    req.TrustScore,
		EvidenceCID:   req.EvidenceCID,
		PromptExcerpt: req.PromptExcerpt,
		IssuedAt:      time.Now().UTC(),
		Owner:         req.Recipient,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO trust_certificates (validation_id, trust_score, evidence_cid, prompt_excerpt, issued_at, owner)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(validation_id) DO NOTHING`,
		cert.ValidationID, cert.TrustScore, cert.EvidenceCID, cert.PromptExcerpt,
		cert.IssuedAt.Format(time.RFC3339Nano), cert.Owner,
	)
	if err != nil {
		return Certificate{}, fmt.Errorf("insert certificate: %w", err)
	}
	return cert, nil
}

// #endregion

// #region lookup

// CertificateFor looks up an issued certificate by validation id.
func (r *Reference) CertificateFor(ctx context.Context, validationID string) (Certificate, bool, error) {
	var cert Certificate
	var issuedStr string
	err := r.db.QueryRowContext(ctx,
		`SELECT validation_id, trust_score, evidence_cid, prompt_excerpt, issued_at, owner
		 FROM trust_certificates WHERE validation_id = ?`, validationID,
	).Scan(&cert.ValidationID, &cert.TrustScore, &cert.EvidenceCID, &cert.PromptExcerpt, &issuedStr, &cert.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return Certificate{}, false, nil
	}
	if err != nil {
		return Certificate{}, false, fmt.Errorf("get certificate %s: %w", validationID, err)
	}
	cert.IssuedAt, _ = time.Parse(time.RFC3339Nano, issuedStr)
	return cert, true, nil
}

// #endregion
