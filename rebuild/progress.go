package rebuild

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker tracks and reports progress of a rebuild job.
type ProgressTracker struct {
	writer         io.Writer
	total          int
	indexed        int
	skipped        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// writer: where to write progress output (typically os.Stderr)
// total: expected number of entities, or 0 when unknown
// reportInterval: report progress every N entities
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: max(reportInterval, 1),
	}
}

// Start begins tracking progress from the given counts, which are non-zero
// when a job is resumed.
func (p *ProgressTracker) Start(indexed, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.indexed = indexed
	p.skipped = skipped
	p.lastReported = indexed + skipped
}

// Increment adds to the indexed and skipped counts.
func (p *ProgressTracker) Increment(indexed, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.indexed += indexed
	p.skipped += skipped

	// Report if we've crossed a report interval
	if p.done()-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.done()
	}
}

// Finish prints final progress.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer) // Print newline after final progress
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}

	return time.Since(p.startTime)
}

func (p *ProgressTracker) done() int {
	return p.indexed + p.skipped
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.indexed) / elapsed.Seconds()
	}

	if p.total > 0 {
		percentage := min(float64(p.done())/float64(p.total)*100.0, 100.0)
		fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%), %d skipped - %.1f entities/s",
			p.done(), p.total, percentage, p.skipped, rate)
		return
	}
	fmt.Fprintf(p.writer, "\rProgress: %d indexed, %d skipped - %.1f entities/s",
		p.indexed, p.skipped, rate)
}
