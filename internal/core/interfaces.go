package core

import (
	"context"
	"time"

	"github.com/dkeye/Roomscribe/internal/domain"
)

// PublishResult reports delivery stats/backpressure to callers.
type PublishResult struct {
	SendTo  int
	Dropped []SignalConnection
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID           domain.UserID `json:"userId"`
	Username     string        `json:"userName"`
	SpeakerLabel string        `json:"speakerLabel"`
	JoinedAt     time.Time     `json:"joinedAt"`
}

// RosterSnapshot is the full roster of a room at one version.
type RosterSnapshot struct {
	RoomID       domain.RoomID `json:"roomId"`
	Version      uint64        `json:"version"`
	Participants []MemberDTO   `json:"participants"`
}

// Names returns display names in roster order.
func (s RosterSnapshot) Names() []string {
	out := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, p.Username)
	}
	return out
}

type RoomInfo struct {
	ID          domain.RoomID    `json:"id"`
	MemberCount int              `json:"memberCount"`
	State       domain.RoomState `json:"state"`
	Entries     int              `json:"entries"`
	CreatedAt   time.Time        `json:"createdAt"`
}

type TranscribeRequest struct {
	ChunkID   string
	Filename  string
	Payload   []byte
	DoDenoise bool
	DoDiarize bool
	Language  string
}

type Segment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// Transcription is what the speech engine returned for one chunk.
type Transcription struct {
	Text         string
	SpeakerLabel string
	Segments     []Segment
}

// Transcriber turns one audio chunk into text. Implementations must be safe
// for concurrent use; the same ChunkID may be submitted more than once.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (Transcription, error)
}

// Renderer builds notes, summaries and documents from a meeting payload.
type Renderer interface {
	Render(ctx context.Context, kind domain.ArtifactKind, payload domain.MeetingPayload) (domain.Document, error)
}
