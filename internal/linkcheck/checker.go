package linkcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/trail-data-etl/internal/observability"
	"github.com/couchcryptid/trail-data-etl/internal/store"
)

// Validation outcomes recorded per URL.
const (
	OutcomeValid  = "valid"  // 2xx or 3xx response
	OutcomeBroken = "broken" // 4xx or 5xx response
	OutcomeError  = "error"  // transport failure or timeout
)

// Summary totals one validation run.
type Summary struct {
	Valid   int
	Broken  int
	Errors  int
	Skipped int // already checked in a previous interrupted run
}

// Checker validates trail reference URLs in small parallel batches, pausing
// between batches so reference hosts never see a burst of traffic. Progress
// is checkpointed after every batch.
type Checker struct {
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock
	concurrency int
	batchSize   int
	batchDelay  time.Duration
	progressDir string
}

// NewChecker creates a Checker. concurrency bounds in-flight requests within
// a batch; batchSize and batchDelay shape the pause cadence.
func NewChecker(timeout time.Duration, concurrency, batchSize int, batchDelay time.Duration, progressDir string, logger *slog.Logger, metrics *observability.Metrics) *Checker {
	if concurrency < 1 {
		concurrency = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &Checker{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:      logger,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
		concurrency: concurrency,
		batchSize:   batchSize,
		batchDelay:  batchDelay,
		progressDir: progressDir,
	}
}

// SetClock replaces the checker's clock. Tests use this to avoid real
// batch delays.
func (c *Checker) SetClock(clock clockwork.Clock) {
	c.clock = clock
}

// Run validates every reference URL for a region, resuming from a previous
// interrupted run if a progress file exists. The progress file is deleted on
// completion; on cancellation it is kept for the next run.
func (c *Checker) Run(ctx context.Context, regionCode string, refs []store.TrailRef) (Summary, error) {
	progress, err := LoadProgress(c.progressDir, regionCode, c.clock.Now().UTC())
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	pending := make([]store.TrailRef, 0, len(refs))
	for _, ref := range refs {
		if _, done := progress.Checked[ref.TrailID]; done {
			summary.Skipped++
			continue
		}
		pending = append(pending, ref)
	}

	c.logger.Info("link check starting",
		"region", regionCode, "pending", len(pending), "skipped", summary.Skipped)

	for start := 0; start < len(pending); start += c.batchSize {
		if start > 0 && !c.sleep(ctx, c.batchDelay) {
			return summary, ctx.Err()
		}

		end := start + c.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		results := c.checkBatch(ctx, pending[start:end])
		if ctx.Err() != nil {
			// Keep the progress file so the next run resumes here.
			return summary, ctx.Err()
		}

		for id, outcome := range results {
			progress.Checked[id] = outcome
			c.metrics.LinksChecked.WithLabelValues(outcome).Inc()
			switch outcome {
			case OutcomeValid:
				summary.Valid++
			case OutcomeBroken:
				summary.Broken++
			default:
				summary.Errors++
			}
		}
		if err := progress.Save(c.progressDir); err != nil {
			return summary, err
		}
	}

	if err := RemoveProgress(c.progressDir, regionCode); err != nil {
		return summary, err
	}
	c.logger.Info("link check complete",
		"region", regionCode,
		"valid", summary.Valid,
		"broken", summary.Broken,
		"errors", summary.Errors,
	)
	return summary, nil
}

// checkBatch validates one batch with at most c.concurrency requests in
// flight and returns outcome per trail ID.
func (c *Checker) checkBatch(ctx context.Context, batch []store.TrailRef) map[string]string {
	results := make(map[string]string, len(batch))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.concurrency)

	for _, ref := range batch {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(ref store.TrailRef) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := c.checkURL(ctx, ref.URL)
			mu.Lock()
			results[ref.TrailID] = outcome
			mu.Unlock()
		}(ref)
	}
	wg.Wait()

	if ctx.Err() != nil {
		// Drop partial results; unchecked URLs stay pending for the resume.
		return nil
	}
	return results
}

func (c *Checker) checkURL(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return OutcomeError
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return OutcomeError
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()              //nolint:errcheck

	// Some hosts reject HEAD outright; retry those with GET before calling
	// the link broken.
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		return c.checkURLWithGet(ctx, url)
	}
	return classifyStatus(resp.StatusCode)
}

func (c *Checker) checkURLWithGet(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return OutcomeError
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return OutcomeError
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()              //nolint:errcheck
	return classifyStatus(resp.StatusCode)
}

func classifyStatus(status int) string {
	if status < 400 {
		return OutcomeValid
	}
	return OutcomeBroken
}

func (c *Checker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
