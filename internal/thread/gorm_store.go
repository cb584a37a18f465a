package thread

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"travel-inquiry-agent/internal/model"
)

// GormStore persists threads in MySQL via GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a database backed thread store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Upsert(ctx context.Context, key string, msg model.EmailMessage) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		thread := model.ConversationThread{
			ThreadKey:   key,
			Subject:     NormalizeSubject(msg.Subject),
			SenderEmail: msg.From,
			LastUpdated: touchTime(msg),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "thread_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_updated"}),
		}).Create(&thread).Error; err != nil {
			return fmt.Errorf("failed to upsert thread: %w", err)
		}

		message := model.ThreadMessage{
			ThreadKey:  key,
			MessageID:  msg.ID,
			Sender:     msg.From,
			Body:       msg.Text(),
			ReceivedAt: msg.ReceivedAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).Create(&message).Error; err != nil {
			return fmt.Errorf("failed to append thread message: %w", err)
		}
		return nil
	})
}

func (s *GormStore) Messages(ctx context.Context, key string) ([]model.ThreadMessage, error) {
	var messages []model.ThreadMessage
	err := s.db.WithContext(ctx).
		Where("thread_key = ?", key).
		Order("received_at ASC, id ASC").
		Find(&messages).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load thread messages: %w", err)
	}
	return messages, nil
}
