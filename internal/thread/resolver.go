package thread

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"travel-inquiry-agent/internal/model"
)

// replyPrefixPattern matches a single leading reply or forward marker.
// Applied repeatedly so "Re: Fwd: Re: Bali trip" reduces to "Bali trip".
var replyPrefixPattern = regexp.MustCompile(`(?i)^(re|fwd|fw)\s*:\s*`)

// Store persists conversation threads and their messages.
type Store interface {
	// Upsert creates the thread row for the key if it does not exist and
	// bumps its last-updated time, then appends the message. Appending the
	// same message id twice is a no-op.
	Upsert(ctx context.Context, key string, msg model.EmailMessage) error
	// Messages returns all messages of the thread ordered by received time.
	Messages(ctx context.Context, key string) ([]model.ThreadMessage, error)
}

// Resolver assigns every inbound message to a conversation thread. The
// thread key is deterministic: the same message always resolves to the
// same thread, which keeps retries idempotent.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// NormalizeSubject strips reply and forward prefixes, collapses inner
// whitespace and lowercases the remainder.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := replyPrefixPattern.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// KeyFor derives the thread key for a message. Correlation uses the
// normalized subject plus the root reference header; a message with an
// empty subject and no references falls back to sender plus the UTC day
// it arrived, so unrelated blank messages from different senders never
// collapse into one thread.
func KeyFor(msg model.EmailMessage) string {
	subject := NormalizeSubject(msg.Subject)
	root := msg.RootReference()

	var material string
	switch {
	case subject == "" && root == "":
		material = fmt.Sprintf("sender|%s|%s", strings.ToLower(msg.From), msg.ReceivedAt.UTC().Format("2006-01-02"))
	default:
		material = fmt.Sprintf("subject|%s|ref|%s", subject, root)
	}

	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// Resolve determines the thread for the message, records the message in
// it and returns the thread key together with the full ordered message
// history including the new message.
func (r *Resolver) Resolve(ctx context.Context, msg model.EmailMessage) (string, []model.ThreadMessage, error) {
	key := KeyFor(msg)

	if err := r.store.Upsert(ctx, key, msg); err != nil {
		return "", nil, fmt.Errorf("failed to record message in thread: %w", err)
	}

	messages, err := r.store.Messages(ctx, key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load thread history: %w", err)
	}

	logrus.Debugf("Resolved message %s to thread %s (%d messages)", msg.ID, key[:12], len(messages))
	return key, messages, nil
}

// touchTime returns the later of the message arrival and now, used as the
// thread last-updated value.
func touchTime(msg model.EmailMessage) time.Time {
	if msg.ReceivedAt.After(time.Now()) {
		return time.Now()
	}
	if msg.ReceivedAt.IsZero() {
		return time.Now()
	}
	return msg.ReceivedAt
}
