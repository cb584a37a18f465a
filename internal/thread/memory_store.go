package thread

import (
	"context"
	"sort"
	"sync"

	"travel-inquiry-agent/internal/model"
)

// MemoryStore is an in-process Store used in tests.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string][]model.ThreadMessage
	seen     map[string]bool
}

// NewMemoryStore creates an empty in-memory thread store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]model.ThreadMessage),
		seen:     make(map[string]bool),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, key string, msg model.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[msg.ID] {
		return nil
	}
	s.seen[msg.ID] = true
	s.messages[key] = append(s.messages[key], model.ThreadMessage{
		ThreadKey:  key,
		MessageID:  msg.ID,
		Sender:     msg.From,
		Body:       msg.Text(),
		ReceivedAt: msg.ReceivedAt,
	})
	return nil
}

func (s *MemoryStore) Messages(ctx context.Context, key string) ([]model.ThreadMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ThreadMessage, len(s.messages[key]))
	copy(out, s.messages[key])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out, nil
}
