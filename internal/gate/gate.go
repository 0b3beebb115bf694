package gate

import (
	"fmt"

	"github.com/trustmesh/validation-engine/internal/evidence"
)

// #region not-ready

// NotReadyError reports that a session has not met the consensus
// threshold. It carries the current score so the caller can explain the
// shortfall or decide to re-prompt.
type NotReadyError struct {
	ValidationID string
	Score        int
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("validation %s not ready for certificate: trust score %d below consensus", e.ValidationID, e.Score)
}

// #endregion

// #region evaluate

// Evaluate decides whether certificate issuance is authorized for a
// scored session. All values in the issuance request are taken verbatim
// from the evidence bundle, never recomputed, so the certificate always
// matches the evidence that justified it.
func Evaluate(bundle evidence.Bundle, cid string, scored bool, recipient string) (IssuanceRequest, error) {
	if !scored || !bundle.ConsensusReached {
		return IssuanceRequest{}, &NotReadyError{
			ValidationID: bundle.ValidationID,
			Score:        bundle.TrustScore,
		}
	}

	return IssuanceRequest{
		ValidationID:  bundle.ValidationID,
		TrustScore:    bundle.TrustScore,
		EvidenceCID:   cid,
		PromptExcerpt: excerpt(bundle.Prompt),
		Timestamp:     bundle.Timestamp,
		Recipient:     recipient,
	}, nil
}

// #endregion

// #region excerpt

// maxExcerptLen bounds the prompt excerpt carried on a certificate.
const maxExcerptLen = 160

func excerpt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= maxExcerptLen {
		return prompt
	}
	return string(runes[:maxExcerptLen-3]) + "..."
}

// #endregion
