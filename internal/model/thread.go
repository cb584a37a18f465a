package model

import (
	"time"

	"gorm.io/gorm"
)

// ConversationThread groups correlated messages of one travel inquiry
// conversation. Thread records are long-lived; they are never expired.
type ConversationThread struct {
	ID          uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	ThreadKey   string         `json:"thread_key" gorm:"type:varchar(64);not null;uniqueIndex"`
	Subject     string         `json:"subject" gorm:"type:varchar(512)"`
	SenderEmail string         `json:"sender_email" gorm:"type:varchar(255);index"`
	LastUpdated time.Time      `json:"last_updated"`
	CreatedAt   time.Time      `json:"created_at"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for ConversationThread
func (ConversationThread) TableName() string {
	return "conversation_threads"
}

// ThreadMessage is one message appended to a conversation thread. The
// sequence of rows for a thread key is insertion-ordered by received time.
type ThreadMessage struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ThreadKey  string    `json:"thread_key" gorm:"type:varchar(64);not null;index"`
	MessageID  string    `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	Sender     string    `json:"sender" gorm:"type:varchar(255)"`
	Body       string    `json:"body" gorm:"type:mediumtext"`
	ReceivedAt time.Time `json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for ThreadMessage
func (ThreadMessage) TableName() string {
	return "thread_messages"
}
