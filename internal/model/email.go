package model

import "time"

// EmailMessage represents a raw inbound message as returned by a fetcher.
// It is immutable once fetched and owned by the pipeline for the duration
// of one processing attempt.
type EmailMessage struct {
	ID         string            `json:"id"`
	Subject    string            `json:"subject"`
	From       string            `json:"from"`
	To         []string          `json:"to"`
	Body       string            `json:"body"`
	HTMLBody   string            `json:"html_body"`
	Headers    map[string]string `json:"headers"`
	References []string          `json:"references"`
	InReplyTo  string            `json:"in_reply_to"`
	ReceivedAt time.Time         `json:"received_at"`
}

// Text returns the best available text content of the message.
func (m EmailMessage) Text() string {
	if m.Body != "" {
		return m.Body
	}
	return m.HTMLBody
}

// RootReference returns the oldest traceable reference header of the
// message, or an empty string when the message starts a new conversation.
func (m EmailMessage) RootReference() string {
	if len(m.References) > 0 {
		return m.References[0]
	}
	return m.InReplyTo
}
