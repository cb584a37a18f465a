package fetcher

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"

	"travel-inquiry-agent/config"
	"travel-inquiry-agent/internal/model"
)

// IMAPFetcher implements Fetcher using IMAP.
type IMAPFetcher struct {
	client        *client.Client
	subjectFilter string
	lastCheck     time.Time
}

// NewIMAPFetcher creates a new IMAP fetcher
func NewIMAPFetcher(cfg config.MailboxConfig) (*IMAPFetcher, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.IMAPUser, cfg.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return &IMAPFetcher{
		client:        c,
		subjectFilter: cfg.SubjectFilter,
		lastCheck:     time.Now().Add(-24 * time.Hour), // Start with emails from last 24 hours
	}, nil
}

// FetchBatch fetches messages that arrived since the previous call.
func (f *IMAPFetcher) FetchBatch(ctx context.Context, max int) ([]model.EmailMessage, error) {
	_, err := f.client.Select("INBOX", false)
	if err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = f.lastCheck

	uids, err := f.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	if len(uids) == 0 {
		f.lastCheck = time.Now()
		return []model.EmailMessage{}, nil
	}
	if len(uids) > max {
		uids = uids[:max]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- f.client.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchBody, imap.FetchUid, imap.FetchInternalDate}, messages)
	}()

	var emails []model.EmailMessage

	for msg := range messages {
		email, err := f.parseMessage(msg)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message: %v", err)
			continue
		}
		if !matchesSubjectFilter(email.Subject, f.subjectFilter) {
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	f.lastCheck = time.Now()
	return emails, nil
}

// parseMessage converts an IMAP message into the pipeline's message type.
func (f *IMAPFetcher) parseMessage(msg *imap.Message) (model.EmailMessage, error) {
	email := model.EmailMessage{
		Headers:    make(map[string]string),
		ReceivedAt: msg.InternalDate,
	}

	if msg.Envelope != nil {
		email.ID = strings.Trim(msg.Envelope.MessageId, "<>")
		email.Subject = msg.Envelope.Subject
		email.InReplyTo = strings.Trim(msg.Envelope.InReplyTo, "<>")
		if len(msg.Envelope.From) > 0 {
			email.From = msg.Envelope.From[0].Address()
		}
		for _, addr := range msg.Envelope.To {
			email.To = append(email.To, addr.Address())
		}
		if email.ReceivedAt.IsZero() {
			email.ReceivedAt = msg.Envelope.Date
		}
	}
	if email.ID == "" {
		email.ID = fmt.Sprintf("imap-uid-%d", msg.Uid)
	}

	if err := f.parseBody(msg, &email); err != nil {
		return email, err
	}

	return email, nil
}

// parseBody parses the IMAP message body and the reference headers that
// the envelope does not carry.
func (f *IMAPFetcher) parseBody(msg *imap.Message, email *model.EmailMessage) error {
	if msg.Body == nil {
		return nil
	}

	section := &imap.BodySectionName{}
	r := msg.GetBody(section)
	if r == nil {
		return fmt.Errorf("failed to get message body")
	}

	entity, err := message.Read(r)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if refs := entity.Header.Get("References"); refs != "" {
		for _, ref := range strings.Fields(refs) {
			email.References = append(email.References, strings.Trim(ref, "<>"))
		}
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read part: %w", err)
			}

			content, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read part body: %w", err)
			}

			contentType := p.Header.Get("Content-Type")
			if strings.Contains(contentType, "text/plain") {
				email.Body = string(content)
			} else if strings.Contains(contentType, "text/html") {
				email.HTMLBody = string(content)
			}
		}
	} else {
		content, err := io.ReadAll(entity.Body)
		if err != nil {
			return fmt.Errorf("failed to read message body: %w", err)
		}

		contentType := entity.Header.Get("Content-Type")
		if strings.Contains(contentType, "text/plain") {
			email.Body = string(content)
		} else if strings.Contains(contentType, "text/html") {
			email.HTMLBody = string(content)
		}
	}

	return nil
}

// Close closes the IMAP fetcher
func (f *IMAPFetcher) Close() error {
	return f.client.Logout()
}
