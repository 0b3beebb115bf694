package workers

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// #endregion

// #region types

// inferRequest is the JSON body sent to a worker node endpoint.
type inferRequest struct {
	Prompt string `json:"prompt"`
}

// inferResponse is the JSON body a worker node returns.
type inferResponse struct {
	Text string `json:"text"`
}

// #endregion

// #region http-worker

// HTTPWorker talks to one remote worker node over JSON/HTTP.
type HTTPWorker struct {
	id       string
	endpoint string
	client   *http.Client
}

// NewHTTPWorker creates a worker client for a node endpoint.
// client may be nil, in which case a default client is used; the pool's
// per-worker timeout still applies through the request context.
func NewHTTPWorker(id, endpoint string, client *http.Client) *HTTPWorker {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPWorker{id: id, endpoint: endpoint, client: client}
}

// ID returns the worker's opaque identifier.
func (w *HTTPWorker) ID() string {
	return w.id
}

// Generate posts the prompt to the worker node and returns its answer.
func (w *HTTPWorker) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(inferRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("infer %s: %w", w.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("infer %s: status %d", w.endpoint, resp.StatusCode)
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Text, nil
}

// #endregion
