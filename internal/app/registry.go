package app

import (
	"errors"
	"sync"

	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxJoinAttempts = 3

type binding struct {
	RoomID domain.RoomID
	UserID domain.UserID
}

// Registry tracks which connection is which participant in which room.
// The roster itself lives in the room; the registry only maps transports.
type Registry struct {
	Rooms       core.RoomManager
	Policy      Policy
	Transcripts *Broadcaster

	mu       sync.RWMutex
	bindings map[core.SignalConnection]binding
}

func NewRegistry(rooms core.RoomManager, policy Policy, transcripts *Broadcaster) *Registry {
	return &Registry{
		Rooms:       rooms,
		Policy:      policy,
		Transcripts: transcripts,
		bindings:    make(map[core.SignalConnection]binding),
	}
}

// Join registers participant uid in roomID on conn. A repeated uid replaces
// (and closes) the previous connection; chunks it already submitted still
// complete.
func (r *Registry) Join(
	roomID domain.RoomID,
	uid domain.UserID,
	name string,
	conn core.SignalConnection,
) (core.RosterSnapshot, error) {
	p, err := domain.NewParticipant(uid, name)
	if err != nil {
		return core.RosterSnapshot{}, err
	}
	if conn == nil {
		return core.RosterSnapshot{}, domain.ErrTransportFailure
	}

	if prev, ok := r.lookup(conn); ok && prev != (binding{RoomID: roomID, UserID: uid}) {
		r.leave(prev.RoomID, prev.UserID, conn)
	}

	var (
		room core.RoomService
		res  core.JoinResult
	)
	for attempt := 0; ; attempt++ {
		room = r.Rooms.GetOrCreateRoom(roomID)
		res, err = room.AddMember(*p, conn)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrRoomReaped) || attempt+1 >= maxJoinAttempts {
			return core.RosterSnapshot{}, err
		}
	}
	r.Rooms.CancelReap(roomID)

	r.mu.Lock()
	if res.Replaced != nil {
		delete(r.bindings, res.Replaced)
	}
	r.bindings[conn] = binding{RoomID: roomID, UserID: uid}
	r.mu.Unlock()

	if err := r.Transcripts.Subscribe(roomID, conn); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("room", string(roomID)).Msg("transcript subscribe failed")
	}
	if res.Replaced != nil {
		r.Transcripts.Unsubscribe(roomID, res.Replaced)
		res.Replaced.Close()
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("user", string(uid)).
			Msg("replaced previous connection")
	}
	applyPolicy(r.Policy, room, res.Publish)

	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("user", string(uid)).
		Int("members", len(res.Roster.Participants)).Msg("joined")
	return res.Roster, nil
}

// Leave removes uid from roomID. The transport stays open.
func (r *Registry) Leave(roomID domain.RoomID, uid domain.UserID) core.RosterSnapshot {
	return r.leave(roomID, uid, nil)
}

// HandleDisconnect removes whoever was bound to conn exactly as Leave would.
// A connection that was replaced by a rejoin is already unbound and ignored.
func (r *Registry) HandleDisconnect(conn core.SignalConnection) {
	b, ok := r.lookup(conn)
	if !ok {
		return
	}
	log.Info().Str("module", "app.registry").Str("room", string(b.RoomID)).Str("user", string(b.UserID)).
		Msg("transport closed, leaving")
	r.leave(b.RoomID, b.UserID, conn)
}

func (r *Registry) leave(roomID domain.RoomID, uid domain.UserID, conn core.SignalConnection) core.RosterSnapshot {
	room, ok := r.Rooms.GetRoom(roomID)
	if !ok {
		r.unbind(conn, roomID, uid)
		return core.RosterSnapshot{RoomID: roomID, Participants: []core.MemberDTO{}}
	}
	res, removed := room.RemoveMember(uid, conn)
	if !removed {
		r.unbind(conn, roomID, uid)
		return room.Roster()
	}
	r.unbind(res.Conn, roomID, uid)
	r.Transcripts.Unsubscribe(roomID, res.Conn)
	if res.Emptied {
		r.Rooms.ScheduleReap(roomID)
	}
	applyPolicy(r.Policy, room, res.Publish)

	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("user", string(uid)).
		Int("members", len(res.Roster.Participants)).Msg("left")
	return res.Roster
}

// unbind drops conn's binding if it still points at (roomID, uid).
func (r *Registry) unbind(conn core.SignalConnection, roomID domain.RoomID, uid domain.UserID) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bindings[conn]; ok && b.RoomID == roomID && b.UserID == uid {
		delete(r.bindings, conn)
	}
}

func (r *Registry) lookup(conn core.SignalConnection) (binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[conn]
	return b, ok
}

// RoomOf reports the room and participant bound to conn.
func (r *Registry) RoomOf(conn core.SignalConnection) (domain.RoomID, domain.UserID, bool) {
	b, ok := r.lookup(conn)
	return b.RoomID, b.UserID, ok
}

func (r *Registry) Bound() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
