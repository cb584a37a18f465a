package quote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"travel-inquiry-agent/internal/model"
)

// Store persists inquiries and their quote documents in MySQL. Each Emit
// writes a new inquiry version and a matching quote row in one
// transaction, so a quote always references an inquiry that exists.
type Store struct {
	db *gorm.DB
}

// NewStore creates a database backed quote emitter.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Emit(ctx context.Context, inquiry *model.TravelInquiry) (*model.QuoteDocument, error) {
	var doc *model.QuoteDocument

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest int
		err := tx.Model(&model.TravelInquiry{}).
			Where("thread_key = ?", inquiry.ThreadKey).
			Select("COALESCE(MAX(version), 0)").
			Scan(&latest).Error
		if err != nil {
			return fmt.Errorf("failed to read latest inquiry version: %w", err)
		}
		inquiry.Version = latest + 1

		if err := tx.Create(inquiry).Error; err != nil {
			return fmt.Errorf("failed to persist inquiry: %w", err)
		}

		payload, err := json.Marshal(inquiry)
		if err != nil {
			return fmt.Errorf("failed to marshal quote payload: %w", err)
		}

		doc = &model.QuoteDocument{
			Handle:    uuid.New().String(),
			ThreadKey: inquiry.ThreadKey,
			InquiryID: inquiry.ID,
			Version:   inquiry.Version,
			Payload:   string(payload),
		}
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("failed to persist quote document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.Infof("Emitted quote %s for thread %s (inquiry version %d)", doc.Handle, shortKey(inquiry.ThreadKey), inquiry.Version)
	return doc, nil
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
