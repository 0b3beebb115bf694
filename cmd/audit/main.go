package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/trustmesh/validation-engine/internal/evidence"
	"github.com/trustmesh/validation-engine/internal/ledger"
	"github.com/trustmesh/validation-engine/internal/session"
)

// audit replays every stored evidence bundle through the canonical
// scoring formula and reports score, flag, or CID divergence. A clean
// run proves the persisted evidence is reproducible end to end.

// #region main
func main() {
	dbPath := flag.String("db", envOr("VALIDATION_DB", "validation.db"), "sqlite database path")
	limit := flag.Int("limit", 1000, "max sessions to audit")
	flag.Parse()

	store, err := session.NewStore(*dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	records, err := store.ListSessions(*limit)
	if err != nil {
		log.Fatalf("list sessions: %v", err)
	}

	audited, failed := 0, 0
	for _, rec := range records {
		if !rec.Scored {
			continue
		}
		audited++
		if err := auditSession(store, rec.ValidationID); err != nil {
			failed++
			fmt.Printf("FAIL  %s  %v\n", rec.ValidationID, err)
		}
	}

	fmt.Printf("audited %d scored sessions, %d divergent\n", audited, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// #endregion

// #region audit-session
func auditSession(store *session.Store, validationID string) error {
	canonical, storedCID, err := store.GetEvidence(validationID)
	if err != nil {
		return err
	}

	if cid := evidence.CID(canonical); cid != storedCID {
		return fmt.Errorf("cid mismatch: recomputed %s != stored %s", cid, storedCID)
	}

	var bundle evidence.Bundle
	if err := json.Unmarshal(canonical, &bundle); err != nil {
		return fmt.Errorf("unmarshal evidence: %w", err)
	}

	// Canonical round-trip must be byte-stable or the CID is meaningless.
	reserialized, err := bundle.Canonical()
	if err != nil {
		return err
	}
	if string(reserialized) != string(canonical) {
		return fmt.Errorf("canonical serialization not stable")
	}

	return ledger.VerifyEvidence(bundle)
}

// #endregion

// #region env
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion
