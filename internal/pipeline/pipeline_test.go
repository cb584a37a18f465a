package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-inquiry-agent/config"
	"travel-inquiry-agent/internal/dedup"
	"travel-inquiry-agent/internal/extraction"
	"travel-inquiry-agent/internal/model"
	"travel-inquiry-agent/internal/thread"
)

type fakeFetcher struct {
	batch []model.EmailMessage
}

func (f *fakeFetcher) FetchBatch(ctx context.Context, max int) ([]model.EmailMessage, error) {
	if len(f.batch) > max {
		return f.batch[:max], nil
	}
	return f.batch, nil
}

func (f *fakeFetcher) Close() error { return nil }

type fakeExtractor struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(threadKey string, call int, messages []model.ThreadMessage) (*model.TravelInquiry, error)
}

func newFakeExtractor(fn func(threadKey string, call int, messages []model.ThreadMessage) (*model.TravelInquiry, error)) *fakeExtractor {
	return &fakeExtractor{calls: make(map[string]int), fn: fn}
}

func (e *fakeExtractor) Extract(ctx context.Context, threadKey string, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
	e.mu.Lock()
	e.calls[threadKey]++
	call := e.calls[threadKey]
	e.mu.Unlock()
	return e.fn(threadKey, call, messages)
}

func (e *fakeExtractor) totalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, n := range e.calls {
		total += n
	}
	return total
}

func validInquiry(threadKey string) *model.TravelInquiry {
	return &model.TravelInquiry{
		ThreadKey:     threadKey,
		Destination:   "Lisbon",
		DepartureDate: time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		Passengers:    2,
		Confidence:    model.ConfidenceHigh,
	}
}

type fakeEmitter struct {
	mu      sync.Mutex
	emitted []*model.TravelInquiry
	fail    atomic.Bool
}

func (e *fakeEmitter) Emit(ctx context.Context, inquiry *model.TravelInquiry) (*model.QuoteDocument, error) {
	if e.fail.Load() {
		return nil, fmt.Errorf("quote store unavailable")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitted = append(e.emitted, inquiry)
	return &model.QuoteDocument{ThreadKey: inquiry.ThreadKey}, nil
}

func (e *fakeEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.emitted)
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MaxBatchSize: 50,
		BatchTimeout: 30 * time.Second,
		MaxWorkers:   4,
		MaxAttempts:  3,
		DedupTTL:     time.Hour,
	}
}

func message(id, subject, from string, at time.Time) model.EmailMessage {
	return model.EmailMessage{
		ID:         id,
		Subject:    subject,
		From:       from,
		Body:       "Looking to book a trip.",
		ReceivedAt: at,
	}
}

func TestProcessBatchMixedOutcomes(t *testing.T) {
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	msgA := message("msg-a", "Lisbon in September", "alice@example.com", base)
	msgB := message("msg-b", "Re: Rome anniversary trip", "bob@example.com", base)
	msgC := message("msg-c", "Kyoto cherry blossoms", "carol@example.com", base)

	cache := dedup.NewMemoryCache(time.Hour)
	require.NoError(t, cache.MarkProcessed(context.Background(), "msg-b"))

	keyC := thread.KeyFor(msgC)
	extractor := newFakeExtractor(func(threadKey string, call int, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
		if threadKey == keyC {
			return nil, &extraction.Failure{Kind: extraction.KindInvalidSchema, Err: fmt.Errorf("malformed payload")}
		}
		return validInquiry(threadKey), nil
	})
	emitter := &fakeEmitter{}

	p := New(&fakeFetcher{batch: []model.EmailMessage{msgA, msgB, msgC}}, cache,
		thread.NewResolver(thread.NewMemoryStore()), extractor, emitter, nil, testPipelineConfig())

	report, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "msg-c")

	// The duplicate never reached the extractor, and the schema failure
	// was not retried at the pipeline level.
	assert.Equal(t, 2, extractor.totalCalls())
	assert.Equal(t, 1, emitter.count())

	// Success is dedup-marked, terminal failure is not.
	marked, err := cache.IsProcessed(context.Background(), "msg-a")
	require.NoError(t, err)
	assert.True(t, marked)
	marked, err = cache.IsProcessed(context.Background(), "msg-c")
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestProcessBatchRerunIsIdempotent(t *testing.T) {
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	batch := []model.EmailMessage{
		message("msg-1", "Lisbon in September", "alice@example.com", base),
		message("msg-2", "Safari quote", "bob@example.com", base),
	}

	cache := dedup.NewMemoryCache(time.Hour)
	extractor := newFakeExtractor(func(threadKey string, call int, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
		return validInquiry(threadKey), nil
	})
	emitter := &fakeEmitter{}
	p := New(&fakeFetcher{batch: batch}, cache, thread.NewResolver(thread.NewMemoryStore()),
		extractor, emitter, nil, testPipelineConfig())

	report, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	// The mailbox redelivers the same batch: everything skips, nothing is
	// extracted or emitted again.
	report, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 2, extractor.totalCalls())
	assert.Equal(t, 2, emitter.count())
}

func TestProcessBatchSerializesSameThread(t *testing.T) {
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	batch := []model.EmailMessage{
		message("msg-1", "Group trip to Lisbon", "alice@example.com", base),
		message("msg-2", "Re: Group trip to Lisbon", "alice@example.com", base.Add(time.Minute)),
		message("msg-3", "Re: Group trip to Lisbon", "alice@example.com", base.Add(2*time.Minute)),
	}

	store := thread.NewMemoryStore()
	var historyLens []int
	var mu sync.Mutex
	extractor := newFakeExtractor(func(threadKey string, call int, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
		mu.Lock()
		historyLens = append(historyLens, len(messages))
		mu.Unlock()
		return validInquiry(threadKey), nil
	})

	p := New(&fakeFetcher{batch: batch}, dedup.NewMemoryCache(time.Hour), thread.NewResolver(store),
		extractor, &fakeEmitter{}, nil, testPipelineConfig())

	report, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)

	// All three messages share a thread and their appends were serialized:
	// each extraction saw strictly more history than the previous one.
	assert.ElementsMatch(t, []int{1, 2, 3}, historyLens)

	messages, err := store.Messages(context.Background(), thread.KeyFor(batch[0]))
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "msg-1", messages[0].MessageID)
	assert.Equal(t, "msg-2", messages[1].MessageID)
	assert.Equal(t, "msg-3", messages[2].MessageID)
}

func TestProcessBatchRequeuesRetryableFailure(t *testing.T) {
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	msg := message("msg-1", "Lisbon in September", "alice@example.com", base)

	extractor := newFakeExtractor(func(threadKey string, call int, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
		if call == 1 {
			return nil, &extraction.Failure{Kind: extraction.KindBackendUnavailable, Err: fmt.Errorf("backend down")}
		}
		return validInquiry(threadKey), nil
	})
	emitter := &fakeEmitter{}

	p := New(&fakeFetcher{batch: []model.EmailMessage{msg}}, dedup.NewMemoryCache(time.Hour),
		thread.NewResolver(thread.NewMemoryStore()), extractor, emitter, nil, testPipelineConfig())

	report, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 2, extractor.totalCalls())
	assert.Equal(t, 1, emitter.count())
}

func TestProcessBatchExhaustsRetryBudget(t *testing.T) {
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	msg := message("msg-1", "Lisbon in September", "alice@example.com", base)

	extractor := newFakeExtractor(func(threadKey string, call int, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
		return nil, &extraction.Failure{Kind: extraction.KindBackendUnavailable, Err: fmt.Errorf("backend down")}
	})

	cfg := testPipelineConfig()
	cfg.MaxAttempts = 2
	p := New(&fakeFetcher{batch: []model.EmailMessage{msg}}, dedup.NewMemoryCache(time.Hour),
		thread.NewResolver(thread.NewMemoryStore()), extractor, &fakeEmitter{}, nil, cfg)

	report, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "retry budget exhausted")
	assert.Equal(t, 2, extractor.totalCalls())
}

func TestProcessBatchEmissionFailureWithholdsDedupMark(t *testing.T) {
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	msg := message("msg-1", "Lisbon in September", "alice@example.com", base)

	cache := dedup.NewMemoryCache(time.Hour)
	extractor := newFakeExtractor(func(threadKey string, call int, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
		return validInquiry(threadKey), nil
	})
	emitter := &fakeEmitter{}
	emitter.fail.Store(true)

	cfg := testPipelineConfig()
	cfg.MaxAttempts = 2
	fetcherStub := &fakeFetcher{batch: []model.EmailMessage{msg}}
	p := New(fetcherStub, cache, thread.NewResolver(thread.NewMemoryStore()), extractor, emitter, nil, cfg)

	report, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	marked, err := cache.IsProcessed(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.False(t, marked, "a message whose quote never left must stay unmarked")

	// The store recovers and the redelivered message goes all the way
	// through instead of being skipped.
	emitter.fail.Store(false)
	report, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 1, emitter.count())
}

func TestProcessBatchTimeoutFailsQueuedMessages(t *testing.T) {
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	batch := []model.EmailMessage{
		message("msg-1", "Lisbon in September", "alice@example.com", base),
		message("msg-2", "Safari quote", "bob@example.com", base),
		message("msg-3", "Kyoto cherry blossoms", "carol@example.com", base),
	}

	extractor := newFakeExtractor(func(threadKey string, call int, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
		if threadKey == thread.KeyFor(batch[0]) {
			return validInquiry(threadKey), nil
		}
		// Simulate a hung backend: block until the batch deadline hits.
		time.Sleep(500 * time.Millisecond)
		return nil, &extraction.Failure{Kind: extraction.KindBackendUnavailable, Err: context.DeadlineExceeded}
	})

	cfg := testPipelineConfig()
	cfg.MaxWorkers = 2
	cfg.MaxAttempts = 2
	cfg.BatchTimeout = 200 * time.Millisecond
	p := New(&fakeFetcher{batch: batch}, dedup.NewMemoryCache(time.Hour),
		thread.NewResolver(thread.NewMemoryStore()), extractor, &fakeEmitter{}, nil, cfg)

	report, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	// The fast message finished; the hung ones failed once the deadline
	// passed instead of hanging the batch forever.
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 3, report.Fetched)
}

func TestKeyLockSerializesSameKeyOnly(t *testing.T) {
	locks := newKeyLock()

	locks.Lock("a")

	otherDone := make(chan struct{})
	go func() {
		locks.Lock("b")
		locks.Unlock("b")
		close(otherDone)
	}()

	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatal("different key must not block")
	}

	sameDone := make(chan struct{})
	go func() {
		locks.Lock("a")
		locks.Unlock("a")
		close(sameDone)
	}()

	select {
	case <-sameDone:
		t.Fatal("same key must block until released")
	case <-time.After(50 * time.Millisecond):
	}

	locks.Unlock("a")
	select {
	case <-sameDone:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}
