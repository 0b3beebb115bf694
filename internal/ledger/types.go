package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/trustmesh/validation-engine/internal/gate"
)

// ErrPaymentInsufficient is the ledger-side precondition failure for
// issuance. Distinct from a score-based gate rejection.
var ErrPaymentInsufficient = errors.New("payment below issuance fee")

// #region certificate

// Certificate is the durable, non-repudiable record issued on consensus.
// Immutable once issued.
type Certificate struct {
	ValidationID  string    `json:"validationId"`
	TrustScore    int       `json:"trustScore"`
	EvidenceCID   string    `json:"evidenceCid"`
	PromptExcerpt string    `json:"promptExcerpt"`
	IssuedAt      time.Time `json:"issuedAt"`
	Owner         string    `json:"owner"`
}

// #endregion

// #region ledger-interface

// Ledger is the external durable store that issues certificates. The
// engine checks the fee precondition synchronously and dispatches Issue
// fire-and-forget; confirmation is reconciled later via CertificateFor.
type Ledger interface {
	// Fee is the fixed issuance fee, in the ledger's smallest unit.
	Fee() uint64

	// Issue verifies the evidence bytes against the request and mints a
	// certificate. Fails with ErrPaymentInsufficient when payment < Fee.
	Issue(ctx context.Context, req gate.IssuanceRequest, evidenceJSON []byte, payment uint64) (Certificate, error)

	// CertificateFor looks up an issued certificate by validation id.
	CertificateFor(ctx context.Context, validationID string) (Certificate, bool, error)
}

// #endregion
