package project

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"featurestore/logging"
)

// StepResult is the outcome of one per-image step
type StepResult struct {
	Name string
	Err  error
}

// ProgressTracker counts step results as workers report them and prints a
// progress line periodically
type ProgressTracker struct {
	step       string
	out        io.Writer
	totalFiles int

	mu        sync.Mutex
	processed int
	errors    []error

	results  chan StepResult
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	start    time.Time
}

// NewProgressTracker starts tracking total results for step
func NewProgressTracker(step string, total int, out io.Writer) *ProgressTracker {
	if out == nil {
		out = io.Discard
	}
	tracker := &ProgressTracker{
		step:       step,
		out:        out,
		totalFiles: total,
		results:    make(chan StepResult, 100),
		ticker:     time.NewTicker(500 * time.Millisecond),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
		start:      time.Now(),
	}

	go tracker.displayProgress()
	go tracker.processResults()

	return tracker
}

// Record hands one result to the tracker
func (p *ProgressTracker) Record(result StepResult) {
	p.results <- result
}

func (p *ProgressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			if len(p.errors) > 0 {
				fmt.Fprintf(p.out, "\r%s: %d/%d (Errors: %d)", p.step, p.processed, p.totalFiles, len(p.errors))
			} else {
				fmt.Fprintf(p.out, "\r%s: %d/%d", p.step, p.processed, p.totalFiles)
			}
			p.mu.Unlock()
		}
	}
}

func (p *ProgressTracker) processResults() {
	defer close(p.finished)
	for result := range p.results {
		p.mu.Lock()
		p.processed++
		if result.Err != nil {
			p.errors = append(p.errors, fmt.Errorf("%s: %w", result.Name, result.Err))
			logging.LogImageProcessed(result.Name, false, result.Err.Error())
		} else {
			logging.LogImageProcessed(result.Name, true, "")
		}
		p.mu.Unlock()
	}
}

// Stop waits for every recorded result, prints the final line and returns
// the per-image errors joined. Record must not be called after Stop.
func (p *ProgressTracker) Stop() error {
	close(p.results)
	<-p.finished
	p.ticker.Stop()
	close(p.done)

	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.start).Round(time.Millisecond)
	fmt.Fprintf(p.out, "\r%s: %d/%d done in %v", p.step, p.processed, p.totalFiles, elapsed)
	if len(p.errors) > 0 {
		fmt.Fprintf(p.out, " (%d errors, see log)", len(p.errors))
	}
	fmt.Fprintln(p.out)
	logging.DebugLog("%s completed in %v. Processed: %d, Errors: %d", p.step, elapsed, p.processed, len(p.errors))

	return errors.Join(p.errors...)
}

// Processed returns how many results have been counted so far
func (p *ProgressTracker) Processed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}
