package engine

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/trustmesh/validation-engine/internal/gate"
	"github.com/trustmesh/validation-engine/internal/ledger"
	"github.com/trustmesh/validation-engine/internal/reputation"
	"github.com/trustmesh/validation-engine/internal/session"
	"github.com/trustmesh/validation-engine/internal/workers"
)

func testEngine(t *testing.T, fee uint64) (*Engine, *ledger.Reference) {
	t.Helper()
	store, err := session.NewStore(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tracker, err := reputation.NewTracker(store.DB())
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	ref, err := ledger.NewReference(store.DB(), fee)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return NewEngine(store, tracker, ref, nil, func(string, int) {}), ref
}

func submitSession(t *testing.T, eng *Engine, prompt string, responses []session.WorkerResponse) string {
	t.Helper()
	rec, err := eng.CreateSession(prompt)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	count, err := eng.SubmitResponses(rec.ValidationID, responses)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if count != len(responses) {
		t.Fatalf("expected %d responses recorded, got %d", len(responses), count)
	}
	return rec.ValidationID
}

func identicalResponses() []session.WorkerResponse {
	return []session.WorkerResponse{
		{WorkerID: "w0", Text: "the quick brown fox jumps over the lazy dog", LatencyMs: 200},
		{WorkerID: "w1", Text: "the quick brown fox jumps over the lazy dog", LatencyMs: 200},
		{WorkerID: "w2", Text: "the quick brown fox jumps over the lazy dog", LatencyMs: 200},
	}
}

func TestScenarioIdenticalResponses(t *testing.T) {
	eng, _ := testEngine(t, 1)
	id := submitSession(t, eng, "describe the fox", identicalResponses())

	out, err := eng.Score(id)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for i, row := range out.Bundle.SimilarityMatrix {
		for j, v := range row {
			if v != 100 {
				t.Fatalf("matrix[%d][%d] = %d, expected 100", i, j, v)
			}
		}
	}
	for i, flagged := range out.Bundle.OutlierFlags {
		if flagged {
			t.Fatalf("index %d flagged outlier on identical responses", i)
		}
	}
	if out.Breakdown.SemanticSimilarity != 60 || out.Breakdown.ConsensusRatio != 20 {
		t.Fatalf("unexpected breakdown: %+v", out.Breakdown)
	}
	if out.TrustScore < 90 || !out.ConsensusReached {
		t.Fatalf("expected consensus with score >= 90, got %d/%v", out.TrustScore, out.ConsensusReached)
	}
}

func TestScenarioDisjointResponses(t *testing.T) {
	eng, _ := testEngine(t, 1)
	id := submitSession(t, eng, "prompt", []session.WorkerResponse{
		{WorkerID: "w0", Text: "alpha bravo charlie delta", LatencyMs: 100},
		{WorkerID: "w1", Text: "echo golf hotel india", LatencyMs: 100},
		{WorkerID: "w2", Text: "kilo lima mike november", LatencyMs: 100},
	})

	out, err := eng.Score(id)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if out.ConsensusReached {
		t.Fatalf("disjoint responses reached consensus at %d", out.TrustScore)
	}
	if out.TrustScore >= 70 {
		t.Fatalf("trust score %d too high for disjoint responses", out.TrustScore)
	}
	// All rows are roughly equally dissimilar, so nobody is an outlier
	// and the agreement component stays full.
	if out.Breakdown.ConsensusRatio != 20 {
		t.Fatalf("expected full agreement component, got %d", out.Breakdown.ConsensusRatio)
	}
}

func outlierResponses() []session.WorkerResponse {
	return []session.WorkerResponse{
		{WorkerID: "w0", Text: "the quick brown fox jumps over the lazy dog", LatencyMs: 100},
		{WorkerID: "w1", Text: "the quick brown fox jumps over the lazy dog", LatencyMs: 500},
		{WorkerID: "w2", Text: "zzz qqq xxx", LatencyMs: 2000},
	}
}

func TestScenarioOutlierRejectedAtGate(t *testing.T) {
	eng, _ := testEngine(t, 1)
	id := submitSession(t, eng, "prompt", outlierResponses())

	out, err := eng.Score(id)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if out.Bundle.OutlierFlags[0] || out.Bundle.OutlierFlags[1] || !out.Bundle.OutlierFlags[2] {
		t.Fatalf("expected only worker 2 flagged, got %v", out.Bundle.OutlierFlags)
	}
	if out.Breakdown.ConsensusRatio != 13 {
		t.Fatalf("expected agreement component 13 with 2/3 valid, got %d", out.Breakdown.ConsensusRatio)
	}
	if out.ConsensusReached {
		t.Fatalf("consensus reached at %d with an outlier and wide latency spread", out.TrustScore)
	}

	_, err = eng.RequestCertificate(context.Background(), id, "0xrecipient", 1)
	var notReady *gate.NotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected NotReadyError, got %v", err)
	}
	if notReady.Score != out.TrustScore {
		t.Fatalf("rejection carries %d, score was %d", notReady.Score, out.TrustScore)
	}
}

func TestInsufficientWorkers(t *testing.T) {
	eng, _ := testEngine(t, 1)
	id := submitSession(t, eng, "prompt", identicalResponses()[:2])

	_, err := eng.Score(id)
	if !errors.Is(err, ErrInsufficientWorkers) {
		t.Fatalf("expected ErrInsufficientWorkers, got %v", err)
	}
}

func TestScoreUnknownSession(t *testing.T) {
	eng, _ := testEngine(t, 1)
	_, err := eng.Score("no-such-id")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScoringIsIdempotent(t *testing.T) {
	eng, _ := testEngine(t, 1)
	id := submitSession(t, eng, "prompt", outlierResponses())

	first, err := eng.Score(id)
	if err != nil {
		t.Fatalf("first score: %v", err)
	}
	second, err := eng.Score(id)
	if err != nil {
		t.Fatalf("second score: %v", err)
	}
	if first.EvidenceCID != second.EvidenceCID {
		t.Fatalf("CIDs diverged: %s vs %s", first.EvidenceCID, second.EvidenceCID)
	}

	_, canonicalFirst, _, err := eng.GetEvidence(id)
	if err != nil {
		t.Fatalf("get evidence: %v", err)
	}
	bundleBytes, err := second.Bundle.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if !bytes.Equal(canonicalFirst, bundleBytes) {
		t.Fatal("re-scoring produced different evidence bytes")
	}
}

func TestCertificateIssuedOnConsensus(t *testing.T) {
	eng, ref := testEngine(t, 2)
	id := submitSession(t, eng, "prompt", identicalResponses())

	if _, err := eng.Score(id); err != nil {
		t.Fatalf("score: %v", err)
	}

	req, err := eng.RequestCertificate(context.Background(), id, "0xrecipient", 2)
	if err != nil {
		t.Fatalf("request certificate: %v", err)
	}
	if req.ValidationID != id || req.Recipient != "0xrecipient" {
		t.Fatalf("unexpected issuance request: %+v", req)
	}

	// Issuance is dispatched fire-and-forget; wait for the mint.
	deadline := time.Now().Add(2 * time.Second)
	for {
		cert, found, err := ref.CertificateFor(context.Background(), id)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if found {
			if cert.TrustScore != req.TrustScore || cert.EvidenceCID != req.EvidenceCID {
				t.Fatalf("certificate diverges from request: %+v", cert)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("certificate never issued")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCertificateRejectsInsufficientPayment(t *testing.T) {
	eng, _ := testEngine(t, 5)
	id := submitSession(t, eng, "prompt", identicalResponses())

	if _, err := eng.Score(id); err != nil {
		t.Fatalf("score: %v", err)
	}
	_, err := eng.RequestCertificate(context.Background(), id, "0xrecipient", 4)
	if !errors.Is(err, ledger.ErrPaymentInsufficient) {
		t.Fatalf("expected ErrPaymentInsufficient, got %v", err)
	}
}

func TestCertificateBeforeScoring(t *testing.T) {
	eng, _ := testEngine(t, 1)
	id := submitSession(t, eng, "prompt", identicalResponses())

	_, err := eng.RequestCertificate(context.Background(), id, "0xrecipient", 1)
	var notReady *gate.NotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected NotReadyError before scoring, got %v", err)
	}
}

func TestAlertFiresBelowThreshold(t *testing.T) {
	store, err := session.NewStore(filepath.Join(t.TempDir(), "alert.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var alerted bool
	var alertScore int
	eng := NewEngine(store, nil, nil, nil, func(id string, score int) {
		alerted = true
		alertScore = score
	})

	id := submitSession(t, eng, "prompt", outlierResponses())
	out, err := eng.Score(id)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !alerted {
		t.Fatal("alert did not fire for sub-threshold score")
	}
	if alertScore != out.TrustScore {
		t.Fatalf("alert carried %d, score was %d", alertScore, out.TrustScore)
	}
}

func TestValidateRunsFullPipeline(t *testing.T) {
	store, err := session.NewStore(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	pool := workers.NewPool([]workers.Worker{
		&workers.StubWorker{WorkerID: "s0", Text: "stub answer text"},
		&workers.StubWorker{WorkerID: "s1", Text: "stub answer text"},
		&workers.StubWorker{WorkerID: "s2", Text: "stub answer text"},
	}, time.Second)

	eng := NewEngine(store, nil, nil, pool, func(string, int) {})
	out, err := eng.Validate(context.Background(), "any prompt")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !out.ConsensusReached {
		t.Fatalf("identical stub answers should reach consensus, got %d", out.TrustScore)
	}

	entries, err := eng.History(10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].ValidationID != out.ValidationID {
		t.Fatalf("history not recorded: %+v", entries)
	}
}
