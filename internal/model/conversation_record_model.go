package model

import "time"

// ConversationRecord is one visitor's serialized transcript, keyed by the
// schema-versioned storage key.
type ConversationRecord struct {
	Key       string    `gorm:"type:varchar(128);primaryKey" json:"key"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ConversationRecord) TableName() string {
	return "conversation_records"
}
