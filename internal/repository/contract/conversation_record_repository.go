package contract

import "context"

// ConversationRecordRepository is the durable key-value port behind the
// conversation store.
type ConversationRecordRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Migrate() error
}
