package model

import (
	"time"

	"gorm.io/gorm"
)

// QuoteDocument is the generated quote for one travel inquiry version.
// Versions count up per thread key, mirroring the inquiry versioning.
type QuoteDocument struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Handle    string         `json:"handle" gorm:"type:varchar(64);not null;uniqueIndex"`
	ThreadKey string         `json:"thread_key" gorm:"type:varchar(64);not null;index"`
	InquiryID uint           `json:"inquiry_id" gorm:"not null;index"`
	Version   int            `json:"version" gorm:"not null"`
	Payload   string         `json:"payload" gorm:"type:mediumtext"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	Inquiry *TravelInquiry `json:"inquiry,omitempty" gorm:"foreignKey:InquiryID"`
}

// TableName specifies the table name for QuoteDocument
func (QuoteDocument) TableName() string {
	return "quote_documents"
}
