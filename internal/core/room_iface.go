package core

import (
	"time"

	"github.com/dkeye/Roomscribe/internal/domain"
)

// JoinResult describes the roster change made by AddMember.
type JoinResult struct {
	Roster   RosterSnapshot
	Member   MemberDTO
	Replaced SignalConnection
	Rejoin   bool
	Publish  PublishResult
}

// LeaveResult describes the roster change made by RemoveMember.
type LeaveResult struct {
	Roster  RosterSnapshot
	Member  MemberDTO
	Conn    SignalConnection
	Emptied bool
	Publish PublishResult
}

// RoomService is the core-facing API of a room.
// It owns the roster and the transcript log but never touches transport
// resources beyond TrySend. Roster and log are guarded by independent locks.
type RoomService interface {
	ID() domain.RoomID
	CreatedAt() time.Time
	State() domain.RoomState
	Info() RoomInfo

	MemberCount() int
	Roster() RosterSnapshot
	Member(uid domain.UserID) (domain.Member, bool)
	SpeakerLabel(uid domain.UserID) string
	NextChunkSeq(uid domain.UserID) (uint64, bool)
	Connections() []SignalConnection

	AddMember(p domain.Participant, conn SignalConnection) (JoinResult, error)
	// RemoveMember removes uid. A non-nil conn must match the member's current
	// connection, otherwise nothing changes.
	RemoveMember(uid domain.UserID, conn SignalConnection) (LeaveResult, bool)

	Append(entry domain.TranscriptEntry) (domain.TranscriptEntry, PublishResult)
	Subscribe(conn SignalConnection)
	Unsubscribe(conn SignalConnection)
	Subscribers() int
	TranscriptSnapshot() []domain.TranscriptEntry

	// Reap moves a draining room with no members to Reaped.
	Reap() bool
	// Close force-reaps the room and returns the connections it held.
	Close() []SignalConnection
}

// RoomManager owns the room table and the reap timers.
type RoomManager interface {
	GetOrCreateRoom(id domain.RoomID) RoomService
	GetRoom(id domain.RoomID) (RoomService, bool)
	ReapIfEmpty(id domain.RoomID) bool
	ScheduleReap(id domain.RoomID)
	CancelReap(id domain.RoomID)
	OnReap(fn func(domain.RoomID))
	List() []RoomInfo
	StopRoom(id domain.RoomID) []SignalConnection
}
