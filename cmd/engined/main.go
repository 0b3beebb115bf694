package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/trustmesh/validation-engine/internal/engine"
	"github.com/trustmesh/validation-engine/internal/httpapi"
	"github.com/trustmesh/validation-engine/internal/ledger"
	"github.com/trustmesh/validation-engine/internal/reputation"
	"github.com/trustmesh/validation-engine/internal/session"
	"github.com/trustmesh/validation-engine/internal/workers"
)

// #region main
func main() {
	dbPath := envOr("VALIDATION_DB", "validation.db")
	listenAddr := envOr("LISTEN_ADDR", ":3000")
	originsEnv := envOr("ALLOWED_ORIGINS", "*")
	workerEnv := envOr("WORKER_ENDPOINTS", "")
	workerTimeout := envDuration("WORKER_TIMEOUT", 30*time.Second)
	issuanceFee := uint64(1)

	store, err := session.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	tracker, err := reputation.NewTracker(store.DB())
	if err != nil {
		log.Fatalf("failed to init reputation tracker: %v", err)
	}

	ref, err := ledger.NewReference(store.DB(), issuanceFee)
	if err != nil {
		log.Fatalf("failed to init reference ledger: %v", err)
	}

	pool := buildPool(workerEnv, workerTimeout)
	eng := engine.NewEngine(store, tracker, ref, pool, nil)
	server := httpapi.NewServer(eng, ref)

	log.Printf("[ENGINED] listening on %s (db=%s workers=%d)", listenAddr, dbPath, pool.Size())
	if err := http.ListenAndServe(listenAddr, server.Handler(strings.Split(originsEnv, ","))); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// #endregion

// #region pool
// buildPool creates HTTP workers from a comma-separated endpoint list,
// falling back to three local stub workers when none are configured.
func buildPool(workerEnv string, timeout time.Duration) *workers.Pool {
	var pool []workers.Worker
	if workerEnv != "" {
		for i, endpoint := range strings.Split(workerEnv, ",") {
			endpoint = strings.TrimSpace(endpoint)
			if endpoint == "" {
				continue
			}
			id := fmt.Sprintf("worker-%d", i)
			pool = append(pool, workers.NewHTTPWorker(id, endpoint, nil))
		}
	}
	if len(pool) == 0 {
		log.Println("[ENGINED] no WORKER_ENDPOINTS set, using stub workers")
		pool = []workers.Worker{
			&workers.StubWorker{WorkerID: "stub-0", Text: "stub response", Delay: 10 * time.Millisecond},
			&workers.StubWorker{WorkerID: "stub-1", Text: "stub response", Delay: 20 * time.Millisecond},
			&workers.StubWorker{WorkerID: "stub-2", Text: "stub response", Delay: 30 * time.Millisecond},
		}
	}
	return workers.NewPool(pool, timeout)
}

// #endregion

// #region env
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// #endregion
