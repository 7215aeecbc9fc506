package app

import (
	"fmt"

	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
)

// Broadcaster merges transcription results into each room's ordered log and
// pushes them to the room's subscribers. Room.Append is the only place a
// transcript sequence number is assigned.
type Broadcaster struct {
	Rooms  core.RoomManager
	Policy Policy
}

func NewBroadcaster(rooms core.RoomManager, policy Policy) *Broadcaster {
	return &Broadcaster{Rooms: rooms, Policy: policy}
}

// Append records text spoken by uid. An empty speaker label falls back to the
// participant's room label.
func (b *Broadcaster) Append(roomID domain.RoomID, uid domain.UserID, speaker, text string) (domain.TranscriptEntry, error) {
	return b.AppendEntry(domain.TranscriptEntry{RoomID: roomID, UserID: uid, Speaker: speaker, Text: text})
}

// AppendDropped records a gap for a chunk that could not be transcribed.
func (b *Broadcaster) AppendDropped(roomID domain.RoomID, uid domain.UserID, chunkSeq uint64) (domain.TranscriptEntry, error) {
	return b.AppendEntry(domain.TranscriptEntry{RoomID: roomID, UserID: uid, ChunkSeq: chunkSeq, Dropped: true})
}

func (b *Broadcaster) AppendEntry(entry domain.TranscriptEntry) (domain.TranscriptEntry, error) {
	room, ok := b.Rooms.GetRoom(entry.RoomID)
	if !ok {
		return domain.TranscriptEntry{}, fmt.Errorf("append to %q: %w", entry.RoomID, domain.ErrRoomNotFound)
	}
	if m, ok := room.Member(entry.UserID); ok {
		entry.UserName = m.Name
		if entry.Speaker == "" {
			entry.Speaker = m.SpeakerLabel
		}
	} else if entry.Speaker == "" {
		entry.Speaker = room.SpeakerLabel(entry.UserID)
	}
	if entry.UserName == "" {
		entry.UserName = string(entry.UserID)
	}

	out, res := room.Append(entry)
	applyPolicy(b.Policy, room, res)
	if out.Dropped {
		log.Warn().Str("module", "app.transcript").Str("room", string(out.RoomID)).Str("user", string(out.UserID)).
			Uint64("seq", out.Seq).Uint64("chunk", out.ChunkSeq).Msg("gap recorded")
	}
	return out, nil
}

func (b *Broadcaster) Subscribe(roomID domain.RoomID, conn core.SignalConnection) error {
	room, ok := b.Rooms.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Subscribe(conn)
	return nil
}

func (b *Broadcaster) Unsubscribe(roomID domain.RoomID, conn core.SignalConnection) {
	if room, ok := b.Rooms.GetRoom(roomID); ok {
		room.Unsubscribe(conn)
	}
}
