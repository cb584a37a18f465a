package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"travel-inquiry-agent/config"
	"travel-inquiry-agent/internal/dedup"
	"travel-inquiry-agent/internal/extraction"
	"travel-inquiry-agent/internal/fetcher"
	"travel-inquiry-agent/internal/metrics"
	"travel-inquiry-agent/internal/model"
	"travel-inquiry-agent/internal/quote"
	"travel-inquiry-agent/internal/thread"
)

// BatchReport summarizes one batch run. Fetched = Succeeded + Skipped +
// Failed once the run completes.
type BatchReport struct {
	Fetched   int
	Succeeded int
	Skipped   int
	Failed    int
	Errors    []string
}

// job carries one message through the worker pool. attempts counts
// completed processing attempts for the message within this batch.
type job struct {
	msg      model.EmailMessage
	attempts int
}

// Pipeline orchestrates one "process inbox" run: fetch a batch, then for
// each message check the dedup cache, resolve its thread, extract the
// inquiry and emit a quote. Messages are processed by a bounded worker
// pool; failures of one message never abort the batch.
type Pipeline struct {
	fetcher   fetcher.Fetcher
	cache     dedup.Cache
	resolver  *thread.Resolver
	extractor extraction.Extractor
	emitter   quote.Emitter
	metrics   *metrics.Metrics
	cfg       config.PipelineConfig

	locks *keyLock
}

// New creates a pipeline wired to its collaborators.
func New(
	f fetcher.Fetcher,
	cache dedup.Cache,
	resolver *thread.Resolver,
	extractor extraction.Extractor,
	emitter quote.Emitter,
	m *metrics.Metrics,
	cfg config.PipelineConfig,
) *Pipeline {
	return &Pipeline{
		fetcher:   f,
		cache:     cache,
		resolver:  resolver,
		extractor: extractor,
		emitter:   emitter,
		metrics:   m,
		cfg:       cfg,
		locks:     newKeyLock(),
	}
}

// ProcessBatch runs one batch to completion and returns its report. The
// run is bounded by the configured batch timeout; on timeout or caller
// cancellation, in-flight messages finish their current step and queued
// messages fail as cancelled. A fetch error is the only error return;
// per-message failures land in the report instead.
func (p *Pipeline) ProcessBatch(ctx context.Context) (BatchReport, error) {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.BatchesTotal.Inc()
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
	defer cancel()

	batch, err := p.fetcher.FetchBatch(ctx, p.cfg.MaxBatchSize)
	if err != nil {
		return BatchReport{}, fmt.Errorf("failed to fetch batch: %w", err)
	}

	report := BatchReport{Fetched: len(batch)}
	if len(batch) == 0 {
		logrus.Info("Batch run found no new messages")
		return report, nil
	}

	logrus.Infof("Processing batch of %d messages with %d workers", len(batch), p.cfg.MaxWorkers)
	if p.metrics != nil {
		p.metrics.MessagesFetched.Add(float64(len(batch)))
		p.metrics.QueueDepth.Set(float64(len(batch)))
		defer p.metrics.QueueDepth.Set(0)
	}

	// Every message occupies at most one slot: a retryable job is
	// requeued only after it has been taken off the channel.
	jobs := make(chan job, len(batch))
	var pending sync.WaitGroup
	pending.Add(len(batch))
	for _, msg := range batch {
		jobs <- job{msg: msg}
	}
	go func() {
		pending.Wait()
		close(jobs)
	}()

	var mu sync.Mutex
	record := func(outcome string, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case "succeeded":
			report.Succeeded++
			if p.metrics != nil {
				p.metrics.MessagesSucceeded.Inc()
			}
		case "skipped":
			report.Skipped++
			if p.metrics != nil {
				p.metrics.MessagesSkipped.Inc()
			}
		case "failed":
			report.Failed++
			if err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
			if p.metrics != nil {
				p.metrics.MessagesFailed.Inc()
			}
		}
	}

	var workers sync.WaitGroup
	for i := 0; i < p.cfg.MaxWorkers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for j := range jobs {
				p.runJob(ctx, j, jobs, &pending, record)
			}
		}()
	}
	workers.Wait()

	if p.metrics != nil {
		p.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}
	logrus.Infof("Batch complete in %s: %d succeeded, %d skipped, %d failed",
		time.Since(start).Round(time.Millisecond), report.Succeeded, report.Skipped, report.Failed)
	return report, nil
}

// runJob processes one attempt of one message and settles its outcome:
// done, requeued with backoff, or failed terminally.
func (p *Pipeline) runJob(ctx context.Context, j job, jobs chan<- job, pending *sync.WaitGroup, record func(string, error)) {
	outcome, err := p.processMessage(ctx, j.msg)
	if outcome != outcomeRetry {
		record(outcome, err)
		pending.Done()
		return
	}

	j.attempts++
	if j.attempts >= p.cfg.MaxAttempts {
		record("failed", fmt.Errorf("message %s: retry budget exhausted: %v", j.msg.ID, err))
		pending.Done()
		return
	}

	if p.metrics != nil {
		p.metrics.ExtractionRetries.Inc()
	}
	backoff := time.Duration(1<<uint(j.attempts-1)) * time.Second
	logrus.Warnf("Requeueing message %s after attempt %d/%d (backoff %s): %v",
		j.msg.ID, j.attempts, p.cfg.MaxAttempts, backoff, err)

	// The jobs channel stays open while this message is pending, and its
	// slot is free, so the delayed send cannot block or race the close.
	go func() {
		select {
		case <-ctx.Done():
			record("failed", fmt.Errorf("message %s: cancelled while waiting to retry: %v", j.msg.ID, err))
			pending.Done()
		case <-time.After(backoff):
			jobs <- j
		}
	}()
}

const outcomeRetry = "retry"

// processMessage runs the per-message steps under the thread-key lock.
// Steps after the dedup check never interleave with another message of
// the same thread, which keeps thread appends insertion-ordered and
// inquiry versions sequential.
func (p *Pipeline) processMessage(ctx context.Context, msg model.EmailMessage) (string, error) {
	if ctx.Err() != nil {
		return "failed", fmt.Errorf("message %s: cancelled before processing: %v", msg.ID, ctx.Err())
	}

	key := thread.KeyFor(msg)
	p.locks.Lock(key)
	defer p.locks.Unlock(key)

	processed, err := p.cache.IsProcessed(ctx, msg.ID)
	if err != nil {
		return outcomeRetry, fmt.Errorf("dedup check failed: %w", err)
	}
	if processed {
		logrus.Debugf("Skipping message %s: already processed", msg.ID)
		return "skipped", nil
	}

	threadKey, history, err := p.resolver.Resolve(ctx, msg)
	if err != nil {
		return outcomeRetry, fmt.Errorf("thread resolution failed: %w", err)
	}

	extractStart := time.Now()
	inquiry, err := p.extractor.Extract(ctx, threadKey, history)
	if p.metrics != nil {
		p.metrics.ExtractionDuration.Observe(time.Since(extractStart).Seconds())
	}
	if err != nil {
		if extraction.Classify(err) == extraction.Terminal {
			return "failed", fmt.Errorf("message %s: %v", msg.ID, err)
		}
		return outcomeRetry, err
	}

	if _, err := p.emitter.Emit(ctx, inquiry); err != nil {
		// No dedup mark: the message must be reprocessed until a quote
		// has durably left the pipeline.
		return outcomeRetry, fmt.Errorf("quote emission failed: %w", err)
	}
	if p.metrics != nil {
		p.metrics.QuotesEmitted.Inc()
	}

	if err := p.cache.MarkProcessed(ctx, msg.ID); err != nil {
		// The quote is out; a redelivery will be re-emitted, which
		// at-least-once delivery permits. Log and count the success.
		logrus.Warnf("Failed to mark message %s processed: %v", msg.ID, err)
	}

	logrus.Infof("Processed message %s into thread %s", msg.ID, shortKey(threadKey))
	return "succeeded", nil
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
