package fetcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"travel-inquiry-agent/config"
	"travel-inquiry-agent/internal/model"
)

// GmailFetcher implements Fetcher using the Gmail API.
type GmailFetcher struct {
	service       *gmail.Service
	userEmail     string
	subjectFilter string
	lastCheck     time.Time
}

// NewGmailFetcher creates a new Gmail API fetcher
func NewGmailFetcher(cfg config.MailboxConfig) (*GmailFetcher, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailFetcher{
		service:       service,
		userEmail:     cfg.UserEmail,
		subjectFilter: cfg.SubjectFilter,
		lastCheck:     time.Now().Add(-24 * time.Hour), // Start with emails from last 24 hours
	}, nil
}

// FetchBatch fetches messages that arrived since the previous call.
func (f *GmailFetcher) FetchBatch(ctx context.Context, max int) ([]model.EmailMessage, error) {
	query := fmt.Sprintf("after:%d", f.lastCheck.Unix())

	call := f.service.Users.Messages.List(f.userEmail).Q(query).MaxResults(int64(max))
	response, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var emails []model.EmailMessage

	for _, msg := range response.Messages {
		if len(emails) >= max {
			break
		}

		full, err := f.service.Users.Messages.Get(f.userEmail, msg.Id).Format("full").Context(ctx).Do()
		if err != nil {
			logrus.Warnf("Failed to get message %s: %v", msg.Id, err)
			continue
		}

		email, err := f.parseMessage(full)
		if err != nil {
			logrus.Warnf("Failed to parse message %s: %v", msg.Id, err)
			continue
		}

		if !matchesSubjectFilter(email.Subject, f.subjectFilter) {
			continue
		}

		emails = append(emails, email)
	}

	f.lastCheck = time.Now()
	return emails, nil
}

// parseMessage converts a Gmail API message into the pipeline's message type.
func (f *GmailFetcher) parseMessage(msg *gmail.Message) (model.EmailMessage, error) {
	email := model.EmailMessage{
		ID:         msg.Id,
		Headers:    make(map[string]string),
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}

	for _, header := range msg.Payload.Headers {
		email.Headers[header.Name] = header.Value

		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.From = header.Value
		case "To":
			email.To = strings.Split(header.Value, ",")
		case "References":
			email.References = strings.Fields(header.Value)
		case "In-Reply-To":
			email.InReplyTo = strings.TrimSpace(header.Value)
		}
	}

	if err := f.parseBody(msg.Payload, &email); err != nil {
		return email, err
	}

	return email, nil
}

// parseBody recursively parses Gmail message body parts
func (f *GmailFetcher) parseBody(part *gmail.MessagePart, email *model.EmailMessage) error {
	if part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return fmt.Errorf("failed to decode body data: %w", err)
		}

		content := string(data)

		switch part.MimeType {
		case "text/plain":
			email.Body = content
		case "text/html":
			email.HTMLBody = content
		}
	}

	if part.Parts != nil {
		for _, subPart := range part.Parts {
			if err := f.parseBody(subPart, email); err != nil {
				return err
			}
		}
	}

	return nil
}

// Close closes the Gmail fetcher
func (f *GmailFetcher) Close() error {
	// Gmail API service doesn't need explicit closing
	return nil
}
