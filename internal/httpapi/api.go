package httpapi

// #region imports
import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/trustmesh/validation-engine/internal/engine"
	"github.com/trustmesh/validation-engine/internal/gate"
	"github.com/trustmesh/validation-engine/internal/ledger"
	"github.com/trustmesh/validation-engine/internal/session"
)

// #endregion

// #region server

// Server exposes the engine operations as a JSON/HTTP API for the dApp
// frontend and external worker generators.
type Server struct {
	engine *engine.Engine
	ledger ledger.Ledger
}

// NewServer wires the API around an engine. ledger may be nil when
// certificate lookup is not served.
func NewServer(eng *engine.Engine, ldg ledger.Ledger) *Server {
	return &Server{engine: eng, ledger: ldg}
}

// Handler builds the routed handler with CORS for browser callers.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/infer", s.handleInfer).Methods(http.MethodPost)
	r.HandleFunc("/responses", s.handleResponses).Methods(http.MethodPost)
	r.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	r.HandleFunc("/evidence/{id}", s.handleEvidence).Methods(http.MethodGet)
	r.HandleFunc("/certificate", s.handleRequestCertificate).Methods(http.MethodPost)
	r.HandleFunc("/certificate/{id}", s.handleGetCertificate).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(r)
}

// #endregion

// #region infer

type inferRequest struct {
	Prompt string `json:"prompt"`
}

type inferResponse struct {
	ValidationID string `json:"validationId"`
	WorkerCount  int    `json:"workerCount"`
}

// handleInfer opens a session and fans the prompt out to the worker pool.
func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt required")
		return
	}

	out, err := s.engine.Validate(r.Context(), req.Prompt)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inferResponse{
		ValidationID: out.ValidationID,
		WorkerCount:  len(out.Bundle.Workers),
	})
}

// #endregion

// #region responses

type submitRequest struct {
	ValidationID string `json:"validationId"`
	Prompt       string `json:"prompt"`
	Responses    []struct {
		WorkerID  string `json:"workerId"`
		Text      string `json:"text"`
		LatencyMs int64  `json:"latencyMs"`
	} `json:"responses"`
}

type submitResponse struct {
	ValidationID string `json:"validationId"`
	WorkerCount  int    `json:"workerCount"`
}

// handleResponses records externally generated worker responses. With no
// validationId a new session is created from the prompt.
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	validationID := req.ValidationID
	if validationID == "" {
		if req.Prompt == "" {
			writeError(w, http.StatusBadRequest, "validationId or prompt required")
			return
		}
		rec, err := s.engine.CreateSession(req.Prompt)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		validationID = rec.ValidationID
	}

	responses := make([]session.WorkerResponse, len(req.Responses))
	for i, wr := range req.Responses {
		responses[i] = session.WorkerResponse{
			WorkerID:  wr.WorkerID,
			Text:      wr.Text,
			LatencyMs: wr.LatencyMs,
		}
	}
	count, err := s.engine.SubmitResponses(validationID, responses)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{ValidationID: validationID, WorkerCount: count})
}

// #endregion

// #region validate

type validateRequest struct {
	ValidationID string `json:"validationId"`
}

type validateResponse struct {
	ValidationID     string `json:"validationId"`
	TrustScore       int    `json:"trustScore"`
	ConsensusReached bool   `json:"consensusReached"`
	Breakdown        any    `json:"breakdown"`
	EvidenceCID      string `json:"evidenceCid"`
}

// handleValidate scores a session.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ValidationID == "" {
		writeError(w, http.StatusBadRequest, "validationId required")
		return
	}

	out, err := s.engine.Score(req.ValidationID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		ValidationID:     out.ValidationID,
		TrustScore:       out.TrustScore,
		ConsensusReached: out.ConsensusReached,
		Breakdown:        out.Breakdown,
		EvidenceCID:      out.EvidenceCID,
	})
}

// #endregion

// #region evidence

// handleEvidence serves the canonical evidence bundle bytes.
func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	_, canonical, _, err := s.engine.GetEvidence(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(canonical)
}

// #endregion

// #region certificate

type certificateRequest struct {
	ValidationID string `json:"validationId"`
	Recipient    string `json:"recipient"`
	Payment      uint64 `json:"payment"`
}

// handleRequestCertificate runs the gate and dispatches issuance.
func (s *Server) handleRequestCertificate(w http.ResponseWriter, r *http.Request) {
	var req certificateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ValidationID == "" || req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "validationId and recipient required")
		return
	}

	issuance, err := s.engine.RequestCertificate(r.Context(), req.ValidationID, req.Recipient, req.Payment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, issuance)
}

// handleGetCertificate looks up an issued certificate.
func (s *Server) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, "no ledger configured")
		return
	}
	id := mux.Vars(r)["id"]
	cert, found, err := s.ledger.CertificateFor(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "certificate not found")
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

// #endregion

// #region history

// handleHistory lists recent completed validations.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.engine.History(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []session.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// #endregion

// #region error-mapping

type errorResponse struct {
	Error string `json:"error"`
	Score *int   `json:"currentScore,omitempty"`
}

// writeEngineError maps the engine error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var notReady *gate.NotReadyError
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrInsufficientWorkers):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &notReady):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Score: &notReady.Score})
	case errors.Is(err, ledger.ErrPaymentInsufficient):
		writeError(w, http.StatusPaymentRequired, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// #endregion
