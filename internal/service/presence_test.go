package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
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

type presenceFixture struct {
	registry *ConnectionRegistry
	presence *PresenceBroadcaster
	docs     *DocumentSync
	repo     *repository.InMemoryRoomRepository
	room     *domain.Room
}

func newPresenceFixture(t *testing.T) *presenceFixture {
	t.Helper()

	repo := repository.NewInMemoryRoomRepository()
	room := domain.NewRoom("Algebra", "host", "123456")
	require.NoError(t, repo.Create(context.Background(), room))

	return newPresenceFixtureWith(t, repo, room)
}

func newPresenceFixtureWith(t *testing.T, gateway repository.Gateway, room *domain.Room) *presenceFixture {
	t.Helper()

	log := slogdiscard.NewDiscardLogger()
	registry := NewConnectionRegistry()
	locks := newKeyedMutex()
	docs := NewDocumentSync(registry, gateway, locks, time.Hour, time.Second, log)
	f := &presenceFixture{
		registry: registry,
		presence: NewPresenceBroadcaster(registry, gateway, locks, docs, time.Second, log),
		docs:     docs,
		room:     room,
	}
	if repo, ok := gateway.(*repository.InMemoryRoomRepository); ok {
		f.repo = repo
	}
	return f
}

func (f *presenceFixture) connect(id string) *recordingSink {
	sink := &recordingSink{}
	f.registry.Register(id, sink)
	return sink
}

func existingOf(t *testing.T, sink *recordingSink) []string {
	t.Helper()
	events := sink.OfType(domain.EventExistingParticipants)
	require.NotEmpty(t, events)
	ids, ok := events[len(events)-1].Data.([]string)
	require.True(t, ok)
	return ids
}

func joinedOf(sink *recordingSink) []string {
	var ids []string
	for _, e := range sink.OfType(domain.EventUserJoined) {
		ids = append(ids, e.Data.(domain.UserJoinedData).ConnectionID)
	}
	return ids
}

func TestPresence_JoinScenario(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)
	a := f.connect("A")
	b := f.connect("B")

	key, err := f.presence.Join(ctx, "A", f.room.ID.String(), "u-a", "Ann")
	require.NoError(t, err)
	assert.Equal(t, f.room.ID.String(), key)
	assert.Empty(t, existingOf(t, a))

	_, err = f.presence.Join(ctx, "B", f.room.ID.String(), "u-b", "Bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, existingOf(t, b))

	joined := a.OfType(domain.EventUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, domain.UserJoinedData{UserID: "u-b", Username: "Bob", ConnectionID: "B"}, joined[0].Data)
	assert.Empty(t, b.OfType(domain.EventUserJoined))

	room, err := f.repo.FindRoom(ctx, f.room.ID.String())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"host", "u-a", "u-b"}, room.Participants)
}

func TestPresence_JoinByCodeUsesRoomID(t *testing.T) {
	f := newPresenceFixture(t)
	f.connect("A")

	key, err := f.presence.Join(context.Background(), "A", "123456", "u", "Ann")
	require.NoError(t, err)
	assert.Equal(t, f.room.ID.String(), key)
	assert.Equal(t, []string{"A"}, f.registry.PeersOf(f.room.ID.String(), ""))
}

func TestPresence_JoinMissingRoom(t *testing.T) {
	f := newPresenceFixture(t)
	a := f.connect("A")

	_, err := f.presence.Join(context.Background(), "A", "999999", "u", "Ann")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)

	conn, _ := f.registry.Lookup("A")
	assert.False(t, conn.InRoom())
	assert.Empty(t, a.Events())

	_, err = f.presence.Join(context.Background(), "A", "  ", "u", "Ann")
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = f.presence.Join(context.Background(), "ghost", f.room.ID.String(), "u", "Ann")
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestPresence_SwitchingRoomsLeavesTheOldOne(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)
	other := domain.NewRoom("Physics", "host", "654321")
	require.NoError(t, f.repo.Create(ctx, other))

	f.connect("A")
	b := f.connect("B")
	_, err := f.presence.Join(ctx, "A", f.room.ID.String(), "u-a", "Ann")
	require.NoError(t, err)
	_, err = f.presence.Join(ctx, "B", f.room.ID.String(), "u-b", "Bob")
	require.NoError(t, err)

	_, err = f.presence.Join(ctx, "A", other.ID.String(), "u-a", "Ann")
	require.NoError(t, err)

	left := b.OfType(domain.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.UserLeftData{ConnectionID: "A", Username: "Ann"}, left[0].Data)
	assert.Equal(t, []string{"B"}, f.registry.PeersOf(f.room.ID.String(), ""))
	assert.Equal(t, []string{"A"}, f.registry.PeersOf(other.ID.String(), ""))
}

func TestPresence_RejoinDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)
	a := f.connect("A")
	f.connect("B")

	_, err := f.presence.Join(ctx, "A", f.room.ID.String(), "u-a", "Ann")
	require.NoError(t, err)
	_, err = f.presence.Join(ctx, "B", f.room.ID.String(), "u-b", "Bob")
	require.NoError(t, err)
	_, err = f.presence.Join(ctx, "B", f.room.ID.String(), "u-b", "Bobby")
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, joinedOf(a))
	conn, _ := f.registry.Lookup("B")
	assert.Equal(t, "Bobby", conn.Username)
}

func TestPresence_Leave(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)
	a := f.connect("A")
	f.connect("B")

	_, err := f.presence.Join(ctx, "A", f.room.ID.String(), "u-a", "Ann")
	require.NoError(t, err)
	_, err = f.presence.Join(ctx, "B", f.room.ID.String(), "u-b", "Bob")
	require.NoError(t, err)

	prev, ok := f.presence.Leave("B")
	require.True(t, ok)
	assert.Equal(t, "Bob", prev.Username)

	left := a.OfType(domain.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "B", left[0].Data.(domain.UserLeftData).ConnectionID)

	_, ok = f.presence.Leave("B")
	assert.False(t, ok)

	// Leaving never shrinks the durable participant set.
	room, err := f.repo.FindRoom(ctx, f.room.ID.String())
	require.NoError(t, err)
	assert.Contains(t, room.Participants, "u-b")
}

func TestPresence_LastLeaveReleasesDocument(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)
	f.connect("A")
	key, err := f.presence.Join(ctx, "A", f.room.ID.String(), "u-a", "Ann")
	require.NoError(t, err)

	f.docs.OnEdit(key, "draft", "A")
	require.Equal(t, 1, f.docs.Pending())

	f.presence.Leave("A")
	assert.Equal(t, 0, f.docs.Pending())

	room, err := f.repo.FindRoom(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "draft", room.DocumentContent)
}

func TestPresence_ReplayMatchesMembership(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)

	const n = 6
	sinks := make(map[string]*recordingSink, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c%d", i)
		sinks[id] = f.connect(id)
		_, err := f.presence.Join(ctx, id, f.room.ID.String(), "u"+id, "user "+id)
		require.NoError(t, err)
	}

	for id, sink := range sinks {
		seen := append(existingOf(t, sink), joinedOf(sink)...)
		assert.Len(t, seen, n-1, id)
		assert.ElementsMatch(t, f.registry.PeersOf(f.room.ID.String(), id), seen, id)
	}
}

func TestPresence_ParticipantFailureDoesNotBlockJoin(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	room := domain.NewRoom("Algebra", "host", "123456")

	gateway.EXPECT().FindRoom(gomock.Any(), room.ID.String()).Return(room.Clone(), nil)
	gateway.EXPECT().AddParticipant(gomock.Any(), room.ID, "u-a").Return(errors.New("db down"))

	f := newPresenceFixtureWith(t, gateway, room)
	a := f.connect("A")

	key, err := f.presence.Join(context.Background(), "A", room.ID.String(), "u-a", "Ann")
	require.NoError(t, err)
	assert.Equal(t, room.ID.String(), key)
	assert.Empty(t, existingOf(t, a))
	assert.Equal(t, []string{"A"}, f.registry.PeersOf(key, ""))
}

func TestPresence_LookupFailureFallsBackToReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)

	gateway.EXPECT().FindRoom(gomock.Any(), "R1").Return(nil, errors.New("timeout"))

	f := newPresenceFixtureWith(t, gateway, nil)
	f.connect("A")

	key, err := f.presence.Join(context.Background(), "A", "R1", "u-a", "Ann")
	require.NoError(t, err)
	assert.Equal(t, "R1", key)
	assert.Equal(t, []string{"A"}, f.registry.PeersOf("R1", ""))
}

// journal records gateway writes and sink deliveries in one timeline.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

func (j *journal) reset() {
	j.mu.Lock()
	j.entries = nil
	j.mu.Unlock()
}

func (j *journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

type journalSink struct {
	name string
	j    *journal
}

func (s *journalSink) Send(event domain.Event) bool {
	s.j.add(fmt.Sprintf("%s:%s", s.name, event.Type))
	return true
}

func (s *journalSink) Close() {}

type journalGateway struct {
	repository.Gateway
	j *journal
}

func (g *journalGateway) AddParticipant(ctx context.Context, roomID uuid.UUID, userID string) error {
	g.j.add("add-participant:" + userID)
	return g.Gateway.AddParticipant(ctx, roomID, userID)
}

func TestPresence_ParticipantRecordedBeforeAnnouncement(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRoomRepository()
	room := domain.NewRoom("Algebra", "host", "123456")
	require.NoError(t, repo.Create(ctx, room))

	j := &journal{}
	f := newPresenceFixtureWith(t, &journalGateway{Gateway: repo, j: j}, room)
	f.registry.Register("A", &journalSink{name: "A", j: j})
	f.registry.Register("B", &journalSink{name: "B", j: j})

	_, err := f.presence.Join(ctx, "A", room.ID.String(), "u-a", "Ann")
	require.NoError(t, err)
	j.reset()

	_, err = f.presence.Join(ctx, "B", room.ID.String(), "u-b", "Bob")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"add-participant:u-b",
		"A:" + string(domain.EventUserJoined),
		"B:" + string(domain.EventExistingParticipants),
	}, j.Entries())
}

func TestPresence_ConcurrentJoinsSeeEveryPeerOnce(t *testing.T) {
	const n = 12

	for iter := 0; iter < 50; iter++ {
		f := newPresenceFixture(t)
		sinks := make(map[string]*recordingSink, n)
		ids := make([]string, 0, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("c%02d", i)
			sinks[id] = f.connect(id)
			ids = append(ids, id)
		}

		var wg sync.WaitGroup
		for _, id := range ids {
			id := id
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.presence.Join(context.Background(), id, "123456", "u"+id, "user "+id)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		require.Equal(t, ids, f.registry.PeersOf(f.room.ID.String(), ""))
		for _, id := range ids {
			others := slices.DeleteFunc(slices.Clone(ids), func(other string) bool { return other == id })
			seen := append(append([]string(nil), existingOf(t, sinks[id])...), joinedOf(sinks[id])...)
			require.ElementsMatch(t, others, seen, "iteration %d, connection %s", iter, id)
		}
	}
}
