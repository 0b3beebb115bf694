package workers

// #region imports
import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trustmesh/validation-engine/internal/session"
)

// #endregion

// #region worker-interface

// Worker produces one answer to a prompt. Implementations are expected
// to be independent of one another; the pool enforces that with one
// task and one timeout per worker.
type Worker interface {
	ID() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// #endregion

// #region pool

// Pool fans a prompt out to all workers concurrently and joins the
// responses. A worker that errors or exceeds the per-worker timeout is
// recorded as absent; the caller decides whether enough responses remain.
type Pool struct {
	workers []Worker
	timeout time.Duration
}

// NewPool creates a pool over the given workers with a per-worker timeout.
func NewPool(workers []Worker, timeout time.Duration) *Pool {
	return &Pool{workers: workers, timeout: timeout}
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}

// #endregion

// #region collect

// Collect runs the fan-out and returns the responses of all workers that
// answered in time, in worker order. A slow or failing worker never
// blocks collection of the others.
func (p *Pool) Collect(ctx context.Context, prompt string) []session.WorkerResponse {
	results := make([]*session.WorkerResponse, len(p.workers))

	var g errgroup.Group
	for i, w := range p.workers {
		i, w := i, w
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			start := time.Now()
			text, err := w.Generate(wctx, prompt)
			if err != nil {
				log.Printf("[WORKERS] %s absent: %v", w.ID(), err)
				return nil
			}
			results[i] = &session.WorkerResponse{
				WorkerID:  w.ID(),
				Text:      text,
				LatencyMs: time.Since(start).Milliseconds(),
			}
			return nil
		})
	}
	_ = g.Wait()

	var responses []session.WorkerResponse
	for _, r := range results {
		if r != nil {
			responses = append(responses, *r)
		}
	}
	return responses
}

// #endregion
