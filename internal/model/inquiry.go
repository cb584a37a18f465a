package model

import (
	"time"

	"gorm.io/gorm"
)

// Extraction confidence values. Confidence is low when any optional field
// could not be extracted from the conversation.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// TravelInquiry is the structured travel request extracted from one
// conversation thread. Rows are immutable: a re-extraction on the same
// thread inserts a new version instead of updating in place, preserving
// audit history.
type TravelInquiry struct {
	ID               uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	ThreadKey        string         `json:"thread_key" gorm:"type:varchar(64);not null;index:idx_inquiry_thread_version,priority:1"`
	Version          int            `json:"version" gorm:"not null;index:idx_inquiry_thread_version,priority:2"`
	Origin           string         `json:"origin" gorm:"type:varchar(255)"`
	Destination      string         `json:"destination" gorm:"type:varchar(255);not null"`
	DepartureDate    time.Time      `json:"departure_date"`
	ReturnDate       *time.Time     `json:"return_date,omitempty"`
	Passengers       int            `json:"passengers" gorm:"not null"`
	Budget           float64        `json:"budget"`
	BudgetCurrency   string         `json:"budget_currency" gorm:"type:varchar(8)"`
	Notes            string         `json:"notes" gorm:"type:text"`
	Confidence       string         `json:"confidence" gorm:"type:varchar(16);not null"`
	SourceMessageIDs string         `json:"source_message_ids" gorm:"type:text"`
	CreatedAt        time.Time      `json:"created_at"`
	DeletedAt        gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for TravelInquiry
func (TravelInquiry) TableName() string {
	return "travel_inquiries"
}
