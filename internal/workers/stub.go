package workers

// #region imports
import (
	"context"
	"time"
)

// #endregion

// #region stub-worker

// StubWorker returns a fixed answer after an optional artificial delay.
// Used by the CLI and by tests in place of a real model endpoint.
type StubWorker struct {
	WorkerID string
	Text     string
	Delay    time.Duration
	Err      error
}

// ID returns the worker's opaque identifier.
func (w *StubWorker) ID() string {
	return w.WorkerID
}

// Generate waits for the configured delay, then returns the fixed text.
// Respects context cancellation so pool timeouts apply.
func (w *StubWorker) Generate(ctx context.Context, prompt string) (string, error) {
	if w.Delay > 0 {
		select {
		case <-time.After(w.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if w.Err != nil {
		return "", w.Err
	}
	return w.Text, nil
}

// #endregion
