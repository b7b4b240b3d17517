package engine

import (
	"context"
	"log/slog"
	"sync"
)

// JobResult is one job's outcome as surfaced by the Executor.
type JobResult struct {
	Job *Job
	Err error
}

// JobPrioritizer reports job ids that were left in an unfinished state by
// a previous run, so the Executor can run them ahead of freshly submitted
// jobs. Implemented by *ledger.Ledger; declared here, rather than importing
// the ledger package, so the engine stays free of storage concerns.
type JobPrioritizer interface {
	InFlightIDs() ([]string, error)
}

// Executor runs several Drivers concurrently, bounded by a separate
// width from the per-job segment concurrency. Each job is independent:
// one job's failure never blocks or cancels another's.
type Executor struct {
	newDriver func() *Driver
	maxJobs   int
	logger    *slog.Logger

	onResult    func(JobResult)
	prioritizer JobPrioritizer
}

// NewExecutor builds an Executor. newDriver is called once per job run
// (a Driver carries no per-job mutable state itself, but constructing one
// per job keeps the call sites simple and matches how the Job Driver is
// described in the spec as something the executor "runs", not a shared
// singleton). maxJobs is C_job.
func NewExecutor(newDriver func() *Driver, maxJobs int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if maxJobs <= 0 {
		maxJobs = 2
	}
	return &Executor{newDriver: newDriver, maxJobs: maxJobs, logger: logger}
}

// OnResult registers a callback invoked as each job finishes (success or
// failure), from the job's own goroutine.
func (e *Executor) OnResult(fn func(JobResult)) { e.onResult = fn }

// ResumeFrom installs p as the source of in-flight job ids: on the next
// Run, any submitted job whose id is in-flight per p runs ahead of the
// rest of the queue.
func (e *Executor) ResumeFrom(p JobPrioritizer) { e.prioritizer = p }

// reorderInFlight stable-partitions jobs so ids reported by e.prioritizer
// as still Downloading or Merging from a previous run come first. A
// failure to query the prioritizer is non-fatal: the ledger is a record
// of past runs, not an authority the executor must have to proceed.
func (e *Executor) reorderInFlight(jobs []Job) []Job {
	if e.prioritizer == nil {
		return jobs
	}
	ids, err := e.prioritizer.InFlightIDs()
	if err != nil {
		e.logger.Warn("failed to query in-flight jobs, running queue as submitted", "err", err)
		return jobs
	}
	if len(ids) == 0 {
		return jobs
	}
	inFlight := make(map[string]bool, len(ids))
	for _, id := range ids {
		inFlight[id] = true
	}

	ordered := make([]Job, 0, len(jobs))
	var rest []Job
	for _, j := range jobs {
		if inFlight[j.LowerID()] {
			ordered = append(ordered, j)
		} else {
			rest = append(rest, j)
		}
	}
	if len(ordered) > 0 {
		e.logger.Info("resuming in-flight jobs ahead of queue", "count", len(ordered))
	}
	return append(ordered, rest...)
}

// Run drives every job in jobs to completion, at most e.maxJobs at a
// time, and returns one JobResult per job (order not guaranteed to match
// input order).
func (e *Executor) Run(ctx context.Context, jobs []Job) []JobResult {
	jobs = e.reorderInFlight(jobs)
	sem := make(chan struct{}, e.maxJobs)
	results := make(chan JobResult, len(jobs))
	var wg sync.WaitGroup

	for i := range jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- JobResult{Job: &job, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			driver := e.newDriver()
			err := driver.Run(ctx, &job)
			if err != nil {
				e.logger.Error("job failed", "job", job.LowerID(), "err", err)
			}
			res := JobResult{Job: &job, Err: err}
			if e.onResult != nil {
				e.onResult(res)
			}
			results <- res
		}(jobs[i])
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]JobResult, 0, len(jobs))
	for r := range results {
		out = append(out, r)
	}
	return out
}
