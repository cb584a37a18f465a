package scheduler

import (
	"context"
	"testing"
	"time"

	"travel-inquiry-agent/config"
	"travel-inquiry-agent/internal/dedup"
	"travel-inquiry-agent/internal/model"
	"travel-inquiry-agent/internal/pipeline"
	"travel-inquiry-agent/internal/thread"
)

// emptyFetcher returns no messages, so a batch run completes immediately.
type emptyFetcher struct{}

func (emptyFetcher) FetchBatch(ctx context.Context, max int) ([]model.EmailMessage, error) {
	return nil, nil
}
func (emptyFetcher) Close() error { return nil }

type noopExtractor struct{}

func (noopExtractor) Extract(ctx context.Context, threadKey string, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
	return &model.TravelInquiry{ThreadKey: threadKey}, nil
}

type noopEmitter struct{}

func (noopEmitter) Emit(ctx context.Context, inquiry *model.TravelInquiry) (*model.QuoteDocument, error) {
	return &model.QuoteDocument{}, nil
}

func testPipeline() *pipeline.Pipeline {
	cfg := config.PipelineConfig{
		MaxBatchSize: 10,
		BatchTimeout: time.Second,
		MaxWorkers:   1,
		MaxAttempts:  1,
		DedupTTL:     time.Hour,
	}
	return pipeline.New(emptyFetcher{}, dedup.NewMemoryCache(time.Hour),
		thread.NewResolver(thread.NewMemoryStore()), noopExtractor{}, noopEmitter{}, nil, cfg)
}

func TestSchedulerRestart(t *testing.T) {
	cfg := &config.SchedulerConfig{IntervalMinutes: 60}
	sched := New(cfg, testPipeline())

	if err := sched.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after Start")
	}
	if err := sched.Start(); err == nil {
		t.Fatalf("second start while running should fail")
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sched.IsRunning() {
		t.Fatalf("scheduler should not be running after Stop")
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after restart")
	}
	// context should be active
	if sched.ctx == nil || sched.ctx.Err() != nil {
		t.Fatalf("scheduler context should be active after restart")
	}
	sched.Stop()
}

func TestSchedulerRunOnce(t *testing.T) {
	cfg := &config.SchedulerConfig{IntervalMinutes: 60}
	sched := New(cfg, testPipeline())

	report, err := sched.RunOnce()
	if err != nil {
		t.Fatalf("run once failed: %v", err)
	}
	if report.Fetched != 0 || report.Failed != 0 {
		t.Fatalf("unexpected report for empty mailbox: %+v", report)
	}
}

func TestSchedulerNextRun(t *testing.T) {
	cfg := &config.SchedulerConfig{IntervalMinutes: 5}
	sched := New(cfg, testPipeline())

	if !sched.GetNextRun().IsZero() {
		t.Fatalf("next run should be zero before Start")
	}

	if err := sched.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sched.Stop()

	next := sched.GetNextRun()
	if next.IsZero() || next.Before(time.Now()) {
		t.Fatalf("next run should be in the future, got %v", next)
	}
}
