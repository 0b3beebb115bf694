package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/trustmesh/validation-engine/internal/engine"
	"github.com/trustmesh/validation-engine/internal/ledger"
	"github.com/trustmesh/validation-engine/internal/reputation"
	"github.com/trustmesh/validation-engine/internal/session"
	"github.com/trustmesh/validation-engine/internal/workers"
)

// #region main
func main() {
	dbPath := flag.String("db", envOr("VALIDATION_DB", "validation.db"), "sqlite database path")
	prompt := flag.String("prompt", "", "one-shot: validate this prompt and exit")
	history := flag.Bool("history", false, "list validation history and exit")
	export := flag.String("export", "", "export validation history to a JSON file and exit")
	flag.Parse()

	store, err := session.NewStore(*dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	tracker, err := reputation.NewTracker(store.DB())
	if err != nil {
		log.Fatalf("failed to init reputation tracker: %v", err)
	}
	ref, err := ledger.NewReference(store.DB(), 1)
	if err != nil {
		log.Fatalf("failed to init reference ledger: %v", err)
	}

	pool := workers.NewPool([]workers.Worker{
		&workers.StubWorker{WorkerID: "stub-0", Text: "stub response", Delay: 10 * time.Millisecond},
		&workers.StubWorker{WorkerID: "stub-1", Text: "stub response", Delay: 15 * time.Millisecond},
		&workers.StubWorker{WorkerID: "stub-2", Text: "stub response", Delay: 20 * time.Millisecond},
	}, 10*time.Second)

	eng := engine.NewEngine(store, tracker, ref, pool, nil)

	switch {
	case *history:
		printHistory(eng)
	case *export != "":
		exportHistory(eng, *export)
	case *prompt != "":
		runOnce(eng, *prompt)
	default:
		repl(eng)
	}
}

// #endregion

// #region run-once
func runOnce(eng *engine.Engine, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	out, err := eng.Validate(ctx, prompt)
	if err != nil {
		log.Fatalf("validation failed: %v", err)
	}
	fmt.Printf("Validation ID: %s\n", out.ValidationID)
	fmt.Printf("Trust score:   %d/100\n", out.TrustScore)
	fmt.Printf("Consensus:     %v\n", out.ConsensusReached)
	fmt.Printf("Breakdown:     semantic=%d consensus=%d timing=%d reputation=%d\n",
		out.Breakdown.SemanticSimilarity, out.Breakdown.ConsensusRatio,
		out.Breakdown.TimeConsistency, out.Breakdown.WorkerReputation)
	fmt.Printf("Evidence:      ipfs://%s\n", out.EvidenceCID)
}

// #endregion

// #region repl
func repl(eng *engine.Engine) {
	fmt.Println("Consensus validation engine ready.")
	fmt.Println("Type a prompt (or 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if prompt == "quit" || prompt == "exit" {
			break
		}
		runOnce(eng, prompt)
	}
}

// #endregion

// #region history
func printHistory(eng *engine.Engine) {
	entries, err := eng.History(50)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	for _, e := range entries {
		fmt.Printf("%s  score=%3d consensus=%-5v  %s\n",
			e.CreatedAt.Format(time.RFC3339), e.TrustScore, e.ConsensusReached, truncate(e.Prompt, 60))
	}
}

func exportHistory(eng *engine.Engine, path string) {
	entries, err := eng.History(1000)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Fatalf("marshal history: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatalf("write %s: %v", path, err)
	}
	fmt.Printf("History exported to %s (%d entries)\n", path, len(entries))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
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
