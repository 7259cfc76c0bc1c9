package domain

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoomCode(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code := GenerateRoomCode()
		require.Len(t, code, 6)
		assert.True(t, IsRoomCode(code), code)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestIsRoomCode(t *testing.T) {
	assert.True(t, IsRoomCode("123456"))
	assert.False(t, IsRoomCode("012345"))
	assert.False(t, IsRoomCode("12345"))
	assert.False(t, IsRoomCode("12345a"))
	assert.False(t, IsRoomCode(""))
}

func TestRoom_CloneAndParticipants(t *testing.T) {
	room := NewRoom("Algebra", "host", "123456")
	assert.True(t, room.HasParticipant("host"))
	assert.False(t, room.HasParticipant("guest"))

	clone := room.Clone()
	clone.Participants[0] = "changed"
	assert.Equal(t, "host", room.Participants[0])

	var nilRoom *Room
	assert.Nil(t, nilRoom.Clone())
	assert.False(t, nilRoom.HasParticipant("host"))
}
