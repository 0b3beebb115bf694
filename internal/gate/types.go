package gate

// #region issuance-request
// IssuanceRequest is what the gate hands to the ledger when issuance is
// authorized. Every field is copied from the evidence bundle verbatim.
type IssuanceRequest struct {
	ValidationID  string `json:"validationId"`
	TrustScore    int    `json:"trustScore"`
	EvidenceCID   string `json:"evidenceCid"`
	PromptExcerpt string `json:"promptExcerpt"`
	Timestamp     string `json:"timestamp"`
	Recipient     string `json:"recipient"`
}
// #endregion issuance-request
