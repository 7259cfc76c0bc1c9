package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/internal/repository/mocks"
	"github.com/immxrtalbeast/studyroom/lib/logger/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testQuiet = 30 * time.Millisecond

// savesRecorder wraps a gateway and remembers every document write.
type savesRecorder struct {
	repository.Gateway

	mu    sync.Mutex
	saves []string
}

func (g *savesRecorder) SaveDocument(ctx context.Context, roomID uuid.UUID, content string) error {
	g.mu.Lock()
	g.saves = append(g.saves, content)
	g.mu.Unlock()
	return g.Gateway.SaveDocument(ctx, roomID, content)
}

func (g *savesRecorder) Saves() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.saves...)
}

func newDocumentFixture(t *testing.T) (*DocumentSync, *ConnectionRegistry, *savesRecorder, string) {
	t.Helper()

	repo := repository.NewInMemoryRoomRepository()
	room := domain.NewRoom("Algebra", "host", "123456")
	require.NoError(t, repo.Create(context.Background(), room))

	gateway := &savesRecorder{Gateway: repo}
	registry := NewConnectionRegistry()
	docs := NewDocumentSync(registry, gateway, newKeyedMutex(), testQuiet, time.Second, slogdiscard.NewDiscardLogger())
	return docs, registry, gateway, room.ID.String()
}

func TestDocumentSync_DebouncesRapidEdits(t *testing.T) {
	docs, registry, gateway, key := newDocumentFixture(t)
	editor, peer := &recordingSink{}, &recordingSink{}
	registry.Register("A", editor)
	registry.Register("B", peer)
	registry.Attach("A", key, "u-a", "Ann")
	registry.Attach("B", key, "u-b", "Bob")

	const edits = 10
	for i := 0; i < edits; i++ {
		assert.Equal(t, 1, docs.OnEdit(key, fmt.Sprintf("v%d", i), "A"))
	}

	updates := peer.OfType(domain.EventDocumentUpdate)
	require.Len(t, updates, edits)
	assert.Equal(t, domain.DocumentData{Content: "v9"}, updates[edits-1].Data)
	assert.Empty(t, editor.Events())

	require.Eventually(t, func() bool {
		return len(gateway.Saves()) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(3 * testQuiet)
	assert.Equal(t, []string{"v9"}, gateway.Saves())
	assert.Equal(t, 0, docs.Pending())

	room, err := gateway.FindRoom(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "v9", room.DocumentContent)
}

func TestDocumentSync_SeparateRoomsHaveSeparateTimers(t *testing.T) {
	docs, _, gateway, key := newDocumentFixture(t)
	other := domain.NewRoom("Physics", "host", "654321")
	require.NoError(t, gateway.Gateway.(*repository.InMemoryRoomRepository).Create(context.Background(), other))

	docs.OnEdit(key, "first room", "A")
	docs.OnEdit(other.ID.String(), "second room", "B")

	require.Eventually(t, func() bool {
		return len(gateway.Saves()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"first room", "second room"}, gateway.Saves())
}

func TestDocumentSync_SaveCancelsPendingWrite(t *testing.T) {
	docs, _, gateway, key := newDocumentFixture(t)

	docs.OnEdit(key, "draft", "A")
	require.NoError(t, docs.Save(context.Background(), key, "final"))
	assert.Equal(t, []string{"final"}, gateway.Saves())
	assert.Equal(t, 0, docs.Pending())

	time.Sleep(3 * testQuiet)
	assert.Equal(t, []string{"final"}, gateway.Saves())
}

func TestDocumentSync_ReleaseFlushesImmediately(t *testing.T) {
	docs, _, gateway, key := newDocumentFixture(t)

	docs.Release(key)
	assert.Empty(t, gateway.Saves())

	docs.OnEdit(key, "last words", "A")
	docs.Release(key)
	assert.Equal(t, []string{"last words"}, gateway.Saves())

	time.Sleep(3 * testQuiet)
	assert.Equal(t, []string{"last words"}, gateway.Saves())
}

func TestDocumentSync_Flush(t *testing.T) {
	docs, _, gateway, key := newDocumentFixture(t)

	docs.OnEdit(key, "pending", "A")
	docs.OnEdit("not-a-room", "lost", "A")

	err := docs.Flush(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, []string{"pending"}, gateway.Saves())
	assert.Equal(t, 0, docs.Pending())
}

func TestDocumentSync_FailureStartsNewCycleOnNextEdit(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	roomID := uuid.New()

	calls := make(chan string, 2)
	gomock.InOrder(
		gateway.EXPECT().SaveDocument(gomock.Any(), roomID, "v1").
			DoAndReturn(func(_ context.Context, _ uuid.UUID, content string) error {
				calls <- content
				return errors.New("db down")
			}),
		gateway.EXPECT().SaveDocument(gomock.Any(), roomID, "v2").
			DoAndReturn(func(_ context.Context, _ uuid.UUID, content string) error {
				calls <- content
				return nil
			}),
	)

	docs := NewDocumentSync(NewConnectionRegistry(), gateway, newKeyedMutex(), testQuiet, time.Second, slogdiscard.NewDiscardLogger())

	docs.OnEdit(roomID.String(), "v1", "A")
	assert.Equal(t, "v1", <-calls)

	docs.OnEdit(roomID.String(), "v2", "A")
	assert.Equal(t, "v2", <-calls)
}

func TestDocumentSync_ConcurrentEditsPersistWhatPeersSawLast(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRoomRepository()
	room := domain.NewRoom("Algebra", "host", "123456")
	require.NoError(t, repo.Create(ctx, room))

	gateway := &savesRecorder{Gateway: repo}
	registry := NewConnectionRegistry()
	docs := NewDocumentSync(registry, gateway, newKeyedMutex(), time.Hour, time.Second, slogdiscard.NewDiscardLogger())

	key := room.ID.String()
	watcher := &recordingSink{}
	registry.Register("W", watcher)
	registry.Attach("W", key, "w", "Watcher")

	for i := 0; i < 300; i++ {
		var wg sync.WaitGroup
		for _, editor := range []string{"X", "Y"} {
			editor := editor
			wg.Add(1)
			go func() {
				defer wg.Done()
				docs.OnEdit(key, fmt.Sprintf("%s-%d", editor, i), editor)
			}()
		}
		wg.Wait()
		require.NoError(t, docs.Flush(ctx))

		updates := watcher.OfType(domain.EventDocumentUpdate)
		require.NotEmpty(t, updates)
		seen := updates[len(updates)-1].Data.(domain.DocumentData).Content

		saves := gateway.Saves()
		require.NotEmpty(t, saves)
		require.Equal(t, seen, saves[len(saves)-1], "iteration %d", i)
	}
}
