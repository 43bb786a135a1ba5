package implementation

import (
	"context"
	"errors"
	"time"

	"entrust-concierge-be/internal/model"
	"entrust-concierge-be/internal/repository/contract"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRecordRepositoryImpl struct {
	db *gorm.DB
}

func NewConversationRecordRepository(db *gorm.DB) contract.ConversationRecordRepository {
	return &ConversationRecordRepositoryImpl{db: db}
}

func (r *ConversationRecordRepositoryImpl) Migrate() error {
	return r.db.AutoMigrate(&model.ConversationRecord{})
}

func (r *ConversationRecordRepositoryImpl) Get(ctx context.Context, key string) (string, bool, error) {
	var record model.ConversationRecord
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return record.Payload, true, nil
}

// Set upserts the record so repeated persists of the same visitor overwrite.
func (r *ConversationRecordRepositoryImpl) Set(ctx context.Context, key, value string) error {
	record := model.ConversationRecord{
		Key:       key,
		Payload:   value,
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&record).Error
}

func (r *ConversationRecordRepositoryImpl) Remove(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("key = ?", key).Delete(&model.ConversationRecord{}).Error
}
