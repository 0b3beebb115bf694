package engine

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/trustmesh/validation-engine/internal/evidence"
	"github.com/trustmesh/validation-engine/internal/gate"
	"github.com/trustmesh/validation-engine/internal/ledger"
	"github.com/trustmesh/validation-engine/internal/logging"
	"github.com/trustmesh/validation-engine/internal/reputation"
	"github.com/trustmesh/validation-engine/internal/scoring"
	"github.com/trustmesh/validation-engine/internal/session"
	"github.com/trustmesh/validation-engine/internal/workers"
)

// #endregion

// ErrInsufficientWorkers fires when scoring is attempted with fewer than
// the minimum response count. Recoverable: wait for more responses.
var ErrInsufficientWorkers = errors.New("insufficient worker responses")

// #region engine-struct

// AlertFunc is invoked when a completed validation scores below the
// consensus threshold.
type AlertFunc func(validationID string, score int)

// Engine coordinates the scoring pipeline: session store, worker
// fan-out, similarity/outlier/composite scoring, evidence assembly, and
// the certificate gate.
type Engine struct {
	store   *session.Store
	tracker *reputation.Tracker
	ledger  ledger.Ledger
	pool    *workers.Pool
	alert   AlertFunc
}

// NewEngine wires an engine. pool may be nil when responses arrive via
// SubmitResponses only; alert may be nil for the default log line.
func NewEngine(store *session.Store, tracker *reputation.Tracker, ldg ledger.Ledger, pool *workers.Pool, alert AlertFunc) *Engine {
	if alert == nil {
		alert = func(validationID string, score int) {
			log.Printf("[ALERT] validation %s scored %d, below consensus threshold", validationID, score)
		}
	}
	return &Engine{store: store, tracker: tracker, ledger: ldg, pool: pool, alert: alert}
}

// #endregion

// #region submit

// CreateSession opens a new validation session for a prompt.
func (e *Engine) CreateSession(prompt string) (session.Record, error) {
	return e.store.Create(prompt)
}

// SubmitResponses appends worker responses to a session and returns the
// total response count now present.
func (e *Engine) SubmitResponses(validationID string, responses []session.WorkerResponse) (int, error) {
	for _, wr := range responses {
		if err := e.store.AppendResponse(validationID, wr); err != nil {
			return 0, err
		}
	}
	rec, err := e.store.Get(validationID)
	if err != nil {
		return 0, err
	}
	return len(rec.Responses), nil
}

// #endregion

// #region validate

// Validate runs the full pipeline for a prompt: create a session, fan
// the prompt out to the worker pool, then score. Requires a pool.
func (e *Engine) Validate(ctx context.Context, prompt string) (ScoreOutput, error) {
	if e.pool == nil {
		return ScoreOutput{}, errors.New("no worker pool configured")
	}

	rec, err := e.store.Create(prompt)
	if err != nil {
		return ScoreOutput{}, err
	}
	log.Printf("[ENGINE] validation %s: fan-out to %d workers", rec.ValidationID, e.pool.Size())

	responses := e.pool.Collect(ctx, prompt)
	if _, err := e.SubmitResponses(rec.ValidationID, responses); err != nil {
		return ScoreOutput{}, err
	}
	return e.Score(rec.ValidationID)
}

// #endregion

// #region score

// ScoreOutput is the result of one scoring run.
type ScoreOutput struct {
	ValidationID     string
	TrustScore       int
	ConsensusReached bool
	Breakdown        scoring.Breakdown
	EvidenceCID      string
	Bundle           evidence.Bundle
}

// Score runs similarity, outlier detection, composite scoring and
// evidence assembly for a session. Fails with session.ErrNotFound for an
// unknown id and ErrInsufficientWorkers below the minimum count; the
// math itself cannot fail.
func (e *Engine) Score(validationID string) (ScoreOutput, error) {
	rec, err := e.store.Get(validationID)
	if err != nil {
		return ScoreOutput{}, err
	}
	if len(rec.Responses) < scoring.MinWorkers {
		return ScoreOutput{}, fmt.Errorf(
			"validation %s has %d of %d required responses: %w",
			validationID, len(rec.Responses), scoring.MinWorkers, ErrInsufficientWorkers,
		)
	}
	alreadyScored := rec.Scored

	workerIDs := make([]string, len(rec.Responses))
	texts := make([]string, len(rec.Responses))
	latencies := make([]int64, len(rec.Responses))
	for i, wr := range rec.Responses {
		workerIDs[i] = wr.WorkerID
		texts[i] = wr.Text
		latencies[i] = wr.LatencyMs
	}

	matrix := scoring.SimilarityMatrix(texts)
	outliers := scoring.Outliers(matrix)

	rep := scoring.DefaultReputation
	if e.tracker != nil {
		rep, err = e.tracker.Reputation(workerIDs, rec.ValidationID)
		if err != nil {
			return ScoreOutput{}, fmt.Errorf("reputation: %w", err)
		}
	}

	result := scoring.Score(matrix, outliers, latencies, rep)

	bundle := evidence.Assemble(evidence.Input{
		ValidationID: rec.ValidationID,
		Prompt:       rec.Prompt,
		CreatedAt:    rec.CreatedAt,
		WorkerIDs:    workerIDs,
		Responses:    texts,
		Latencies:    latencies,
		Result:       result,
	})
	canonical, err := bundle.Canonical()
	if err != nil {
		return ScoreOutput{}, err
	}
	cid := evidence.CID(canonical)

	if err := e.store.SaveScore(validationID, result, canonical, cid); err != nil {
		return ScoreOutput{}, err
	}

	if !alreadyScored {
		e.recordOutcome(rec, result)
	}

	_ = logging.LogDecision(e.store.DB(), logging.ProvenanceEntry{
		ValidationID: validationID,
		Stage:        "score",
		Decision:     "scored",
		Reason:       fmt.Sprintf("trust_score=%d consensus=%v cid=%s", result.TrustScore, result.ConsensusReached, cid),
	})
	log.Printf("[ENGINE] validation %s: score=%d consensus=%v cid=%s",
		validationID, result.TrustScore, result.ConsensusReached, cid)

	if !result.ConsensusReached {
		e.alert(validationID, result.TrustScore)
	}

	return ScoreOutput{
		ValidationID:     validationID,
		TrustScore:       result.TrustScore,
		ConsensusReached: result.ConsensusReached,
		Breakdown:        result.Breakdown,
		EvidenceCID:      cid,
		Bundle:           bundle,
	}, nil
}

// recordOutcome updates history and per-worker reputation after a first
// successful scoring run. Failures here are logged, never fatal.
func (e *Engine) recordOutcome(rec session.Record, result scoring.Result) {
	if err := e.store.AppendHistory(session.HistoryEntry{
		ValidationID:     rec.ValidationID,
		Prompt:           rec.Prompt,
		TrustScore:       result.TrustScore,
		ConsensusReached: result.ConsensusReached,
		CreatedAt:        rec.CreatedAt,
	}); err != nil {
		log.Printf("[ENGINE] history append failed: %v", err)
	}
	if e.tracker == nil {
		return
	}
	for i, wr := range rec.Responses {
		if err := e.tracker.RecordOutcome(rec.ValidationID, wr.WorkerID, result.OutlierFlags[i], rec.CreatedAt); err != nil {
			log.Printf("[ENGINE] outcome record failed for %s: %v", wr.WorkerID, err)
		}
	}
}

// #endregion

// #region evidence

// GetEvidence returns the persisted bundle, its canonical bytes and CID.
func (e *Engine) GetEvidence(validationID string) (evidence.Bundle, []byte, string, error) {
	canonical, cid, err := e.store.GetEvidence(validationID)
	if err != nil {
		return evidence.Bundle{}, nil, "", err
	}
	var bundle evidence.Bundle
	if err := json.Unmarshal(canonical, &bundle); err != nil {
		return evidence.Bundle{}, nil, "", fmt.Errorf("unmarshal evidence: %w", err)
	}
	return bundle, canonical, cid, nil
}

// #endregion

// #region request-certificate

// RequestCertificate runs the certificate gate for a scored session and,
// when authorized, dispatches issuance to the ledger fire-and-forget.
// The payment precondition is checked synchronously so the distinct
// ledger failure surfaces to the caller; the mint itself is not awaited.
func (e *Engine) RequestCertificate(ctx context.Context, validationID, recipient string, payment uint64) (gate.IssuanceRequest, error) {
	rec, err := e.store.Get(validationID)
	if err != nil {
		return gate.IssuanceRequest{}, err
	}
	if !rec.Scored {
		return gate.IssuanceRequest{}, &gate.NotReadyError{ValidationID: validationID, Score: 0}
	}

	bundle, canonical, cid, err := e.GetEvidence(validationID)
	if err != nil {
		return gate.IssuanceRequest{}, err
	}

	req, err := gate.Evaluate(bundle, cid, rec.Scored, recipient)
	if err != nil {
		_ = logging.LogDecision(e.store.DB(), logging.ProvenanceEntry{
			ValidationID: validationID,
			Stage:        "gate",
			Decision:     "reject",
			Reason:       err.Error(),
		})
		return gate.IssuanceRequest{}, err
	}

	if e.ledger != nil {
		if payment < e.ledger.Fee() {
			return gate.IssuanceRequest{}, fmt.Errorf(
				"payment %d < fee %d: %w", payment, e.ledger.Fee(), ledger.ErrPaymentInsufficient)
		}
		go func() {
			if _, err := e.ledger.Issue(context.WithoutCancel(ctx), req, canonical, payment); err != nil {
				log.Printf("[GATE] issuance dispatch for %s failed: %v", validationID, err)
				return
			}
			log.Printf("[GATE] certificate issued for %s (score=%d)", validationID, req.TrustScore)
		}()
	}

	_ = logging.LogDecision(e.store.DB(), logging.ProvenanceEntry{
		ValidationID: validationID,
		Stage:        "gate",
		Decision:     "authorize",
		Reason:       fmt.Sprintf("score=%d recipient=%s", req.TrustScore, recipient),
	})
	return req, nil
}

// #endregion

// #region history

// History returns the most recent completed validations.
func (e *Engine) History(limit int) ([]session.HistoryEntry, error) {
	return e.store.ListHistory(limit)
}

// #endregion
