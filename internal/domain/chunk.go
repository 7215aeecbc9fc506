package domain

import (
	"time"

	"github.com/google/uuid"
)

// AudioChunk is one unit of streamed audio from a participant.
// Immutable after NewAudioChunk.
type AudioChunk struct {
	ID        string
	RoomID    RoomID
	UserID    UserID
	Seq       uint64
	Payload   []byte
	Filename  string
	DoDenoise bool
	ArrivedAt time.Time
}

const DefaultChunkFilename = "chunk.webm"

func NewAudioChunk(room RoomID, user UserID, seq uint64, payload []byte, filename string, denoise bool) *AudioChunk {
	if filename == "" {
		filename = DefaultChunkFilename
	}
	return &AudioChunk{
		ID:        uuid.NewString(),
		RoomID:    room,
		UserID:    user,
		Seq:       seq,
		Payload:   payload,
		Filename:  filename,
		DoDenoise: denoise,
		ArrivedAt: time.Now().UTC(),
	}
}
