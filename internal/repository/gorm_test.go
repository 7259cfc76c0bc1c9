package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a fresh in-memory SQLite database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to :memory: is its own database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func TestGormRoomRepository(t *testing.T) {
	testRoomRepository(t, func(t *testing.T) RoomRepository {
		return NewGormRoomRepository(setupTestDB(t))
	})
}

func TestGormRoomRepository_DocumentSurvivesReload(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	room := domain.NewRoom("Physics", "host", "888888")
	require.NoError(t, NewGormRoomRepository(db).Create(ctx, room))
	require.NoError(t, NewGormRoomRepository(db).SaveDocument(ctx, room.ID, "notes"))

	got, err := NewGormRoomRepository(db).FindRoom(ctx, "888888")
	require.NoError(t, err)
	assert.Equal(t, "notes", got.DocumentContent)
	assert.Equal(t, "host", got.Host)
}

func TestGormRoomRepository_EqualTimestampsKeepAppendOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRoomRepository(setupTestDB(t))
	frozen := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.clock = newStampClock(func() time.Time { return frozen })

	room := domain.NewRoom("History", "host", "777777")
	require.NoError(t, repo.Create(ctx, room))

	want := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		content := fmt.Sprintf("m%02d", i)
		_, err := repo.AppendMessage(ctx, room.ID, "u", "User", content)
		require.NoError(t, err)
		want = append(want, content)
	}

	history, err := repo.ListMessages(ctx, room.ID, 0)
	require.NoError(t, err)
	got := make([]string, 0, len(history))
	for _, msg := range history {
		assert.Equal(t, frozen, msg.CreatedAt)
		got = append(got, msg.Content)
	}
	assert.Equal(t, want, got)

	latest, err := repo.ListMessages(ctx, room.ID, 3)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, "m09", latest[0].Content)
	assert.Equal(t, "m11", latest[2].Content)
}
