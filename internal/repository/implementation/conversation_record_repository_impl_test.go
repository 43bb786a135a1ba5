package implementation

import (
	"context"
	"log"
	"os"
	"testing"

	"entrust-concierge-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRecordRepository(t *testing.T) {
	// Load .env from root
	if err := godotenv.Load("../../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, true, database.DefaultPool())
	require.NoError(t, err)

	repo := NewConversationRecordRepository(db)
	require.NoError(t, repo.Migrate())

	ctx := context.Background()
	key := "concierge_test:" + uuid.NewString()
	t.Cleanup(func() { repo.Remove(ctx, key) })

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, key, `[{"role":"user","text":"hi"}]`))
		require.NoError(t, repo.Set(ctx, key, `[]`))

		value, ok, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `[]`, value)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, repo.Remove(ctx, key))
		_, ok, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
