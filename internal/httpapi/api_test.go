package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/trustmesh/validation-engine/internal/engine"
	"github.com/trustmesh/validation-engine/internal/ledger"
	"github.com/trustmesh/validation-engine/internal/reputation"
	"github.com/trustmesh/validation-engine/internal/session"
)

func testHandler(t *testing.T, fee uint64) http.Handler {
	t.Helper()
	store, err := session.NewStore(filepath.Join(t.TempDir(), "api.db"))
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
	eng := engine.NewEngine(store, tracker, ref, nil, func(string, int) {})
	return NewServer(eng, ref).Handler([]string{"*"})
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func getPath(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func submitResponses(t *testing.T, h http.Handler, texts []string) string {
	t.Helper()
	body := map[string]any{
		"prompt": "which color is the sky",
		"responses": []map[string]any{
			{"workerId": "w0", "text": texts[0], "latencyMs": 120},
			{"workerId": "w1", "text": texts[1], "latencyMs": 140},
			{"workerId": "w2", "text": texts[2], "latencyMs": 130},
		},
	}
	rr := postJSON(t, h, "/responses", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("submit returned %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		ValidationID string `json:"validationId"`
		WorkerCount  int    `json:"workerCount"`
	}
	decodeBody(t, rr, &out)
	if out.WorkerCount != 3 {
		t.Fatalf("expected 3 responses recorded, got %d", out.WorkerCount)
	}
	return out.ValidationID
}

func TestSubmitValidateEvidenceFlow(t *testing.T) {
	h := testHandler(t, 1)
	text := "the sky is blue during the day"
	id := submitResponses(t, h, []string{text, text, text})

	rr := postJSON(t, h, "/validate", map[string]string{"validationId": id})
	if rr.Code != http.StatusOK {
		t.Fatalf("validate returned %d: %s", rr.Code, rr.Body.String())
	}
	var verdict struct {
		ValidationID     string `json:"validationId"`
		TrustScore       int    `json:"trustScore"`
		ConsensusReached bool   `json:"consensusReached"`
		EvidenceCID      string `json:"evidenceCid"`
	}
	decodeBody(t, rr, &verdict)
	if verdict.ValidationID != id || !verdict.ConsensusReached {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}

	rr = getPath(t, h, "/evidence/"+id)
	if rr.Code != http.StatusOK {
		t.Fatalf("evidence returned %d", rr.Code)
	}
	var bundle struct {
		ValidationID string `json:"validationId"`
		TrustScore   int    `json:"trustScore"`
	}
	decodeBody(t, rr, &bundle)
	if bundle.ValidationID != id || bundle.TrustScore != verdict.TrustScore {
		t.Fatalf("evidence disagrees with verdict: %+v vs %+v", bundle, verdict)
	}
}

func TestCertificateFlow(t *testing.T) {
	h := testHandler(t, 2)
	text := "the sky is blue during the day"
	id := submitResponses(t, h, []string{text, text, text})

	if rr := postJSON(t, h, "/validate", map[string]string{"validationId": id}); rr.Code != http.StatusOK {
		t.Fatalf("validate returned %d", rr.Code)
	}

	rr := postJSON(t, h, "/certificate", map[string]any{
		"validationId": id, "recipient": "0xabc", "payment": 2,
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("certificate request returned %d: %s", rr.Code, rr.Body.String())
	}
	var issuance struct {
		ValidationID string `json:"validationId"`
		EvidenceCID  string `json:"evidenceCid"`
	}
	decodeBody(t, rr, &issuance)
	if issuance.ValidationID != id || issuance.EvidenceCID == "" {
		t.Fatalf("unexpected issuance: %+v", issuance)
	}
}

func TestValidateUnknownSessionIs404(t *testing.T) {
	h := testHandler(t, 1)
	rr := postJSON(t, h, "/validate", map[string]string{"validationId": "missing"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestValidateTooFewResponsesIs422(t *testing.T) {
	h := testHandler(t, 1)
	body := map[string]any{
		"prompt": "p",
		"responses": []map[string]any{
			{"workerId": "w0", "text": "only one", "latencyMs": 100},
		},
	}
	rr := postJSON(t, h, "/responses", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("submit returned %d", rr.Code)
	}
	var out struct {
		ValidationID string `json:"validationId"`
	}
	decodeBody(t, rr, &out)

	rr = postJSON(t, h, "/validate", map[string]string{"validationId": out.ValidationID})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCertificateWithoutConsensusIs409(t *testing.T) {
	h := testHandler(t, 1)
	id := submitResponses(t, h, []string{
		"alpha bravo charlie delta",
		"echo golf hotel india",
		"kilo lima mike november",
	})
	if rr := postJSON(t, h, "/validate", map[string]string{"validationId": id}); rr.Code != http.StatusOK {
		t.Fatalf("validate returned %d", rr.Code)
	}

	rr := postJSON(t, h, "/certificate", map[string]any{
		"validationId": id, "recipient": "0xabc", "payment": 1,
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Error string `json:"error"`
		Score *int   `json:"currentScore"`
	}
	decodeBody(t, rr, &body)
	if body.Score == nil || *body.Score >= 70 {
		t.Fatalf("rejection should carry the sub-threshold score, got %+v", body)
	}
}

func TestCertificateUnderpaidIs402(t *testing.T) {
	h := testHandler(t, 10)
	text := "the sky is blue during the day"
	id := submitResponses(t, h, []string{text, text, text})
	if rr := postJSON(t, h, "/validate", map[string]string{"validationId": id}); rr.Code != http.StatusOK {
		t.Fatalf("validate returned %d", rr.Code)
	}

	rr := postJSON(t, h, "/certificate", map[string]any{
		"validationId": id, "recipient": "0xabc", "payment": 9,
	})
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHistoryListsCompletedValidations(t *testing.T) {
	h := testHandler(t, 1)
	text := "the sky is blue during the day"
	for i := 0; i < 2; i++ {
		id := submitResponses(t, h, []string{text, text, text})
		if rr := postJSON(t, h, "/validate", map[string]string{"validationId": id}); rr.Code != http.StatusOK {
			t.Fatalf("validate %d returned %d", i, rr.Code)
		}
	}

	rr := getPath(t, h, "/history?limit=10")
	if rr.Code != http.StatusOK {
		t.Fatalf("history returned %d", rr.Code)
	}
	var entries []struct {
		ValidationID string `json:"validationId"`
		TrustScore   int    `json:"trustScore"`
	}
	decodeBody(t, rr, &entries)
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
}

func TestMissingFieldsAre400(t *testing.T) {
	h := testHandler(t, 1)
	cases := []struct {
		path string
		body any
	}{
		{"/validate", map[string]string{}},
		{"/certificate", map[string]string{"validationId": "x"}},
		{"/responses", map[string]string{}},
	}
	for _, tc := range cases {
		rr := postJSON(t, h, tc.path, tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.path, rr.Code)
		}
	}
}

func TestCertificateLookupNotFound(t *testing.T) {
	h := testHandler(t, 1)
	rr := getPath(t, h, fmt.Sprintf("/certificate/%s", "nope"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
