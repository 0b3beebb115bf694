package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/trustmesh/validation-engine/internal/ledger"
	"github.com/trustmesh/validation-engine/internal/logging"
	"github.com/trustmesh/validation-engine/internal/session"
)

// #region main
func main() {
	dbPath := flag.String("db", envOr("VALIDATION_DB", "validation.db"), "sqlite database path")
	validationID := flag.String("id", "", "show one session in detail")
	limit := flag.Int("limit", 20, "max rows to list")
	flag.Parse()

	store, err := session.NewStore(*dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if *validationID != "" {
		showSession(store, *validationID, *limit)
		return
	}
	listSessions(store, *limit)
}

// #endregion

// #region list
func listSessions(store *session.Store, limit int) {
	records, err := store.ListSessions(limit)
	if err != nil {
		log.Fatalf("list sessions: %v", err)
	}
	fmt.Printf("%-36s  %-6s  %-5s  %-9s  %s\n", "VALIDATION", "SCORED", "SCORE", "CONSENSUS", "PROMPT")
	for _, rec := range records {
		fmt.Printf("%-36s  %-6v  %-5d  %-9v  %s\n",
			rec.ValidationID, rec.Scored, rec.TrustScore, rec.ConsensusReached, truncate(rec.Prompt, 50))
	}
}

// #endregion

// #region show
func showSession(store *session.Store, validationID string, limit int) {
	rec, err := store.Get(validationID)
	if err != nil {
		log.Fatalf("get session: %v", err)
	}

	fmt.Printf("Validation: %s\n", rec.ValidationID)
	fmt.Printf("Prompt:     %s\n", rec.Prompt)
	fmt.Printf("Created:    %s\n", rec.CreatedAt.Format(time.RFC3339Nano))
	fmt.Printf("Scored:     %v", rec.Scored)
	if rec.Scored {
		fmt.Printf("  score=%d consensus=%v cid=%s", rec.TrustScore, rec.ConsensusReached, rec.EvidenceCID)
	}
	fmt.Println()

	fmt.Printf("Responses (%d):\n", len(rec.Responses))
	for _, wr := range rec.Responses {
		fmt.Printf("  %-16s %5dms  %s\n", wr.WorkerID, wr.LatencyMs, truncate(wr.Text, 60))
	}

	entries, err := logging.ListDecisions(store.DB(), validationID, limit)
	if err != nil {
		log.Fatalf("list decisions: %v", err)
	}
	if len(entries) > 0 {
		fmt.Println("Provenance:")
		for _, e := range entries {
			fmt.Printf("  %s  %-5s  %-10s  %s\n",
				e.CreatedAt.Format(time.RFC3339), e.Stage, e.Decision, e.Reason)
		}
	}

	ref, err := ledger.NewReference(store.DB(), 1)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	if cert, found, err := ref.CertificateFor(context.Background(), validationID); err == nil && found {
		fmt.Printf("Certificate: owner=%s issued=%s cid=%s\n",
			cert.Owner, cert.IssuedAt.Format(time.RFC3339), cert.EvidenceCID)
	}
}

// #endregion

// #region helpers
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion
