package core

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
)

type memberEntry struct {
	meta     domain.Member
	conn     SignalConnection
	chunkSeq atomic.Uint64
}

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id        domain.RoomID
	createdAt time.Time

	mu      sync.RWMutex
	members map[domain.UserID]*memberEntry
	labels  map[domain.UserID]string
	version uint64
	state   atomic.Int32

	logMu   sync.Mutex
	entries []domain.TranscriptEntry
	nextSeq uint64
	subs    map[SignalConnection]struct{}
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:        id,
		createdAt: time.Now().UTC(),
		members:   make(map[domain.UserID]*memberEntry),
		labels:    make(map[domain.UserID]string),
		subs:      make(map[SignalConnection]struct{}),
	}
}

func (r *roomImpl) ID() domain.RoomID       { return r.id }
func (r *roomImpl) CreatedAt() time.Time    { return r.createdAt }
func (r *roomImpl) State() domain.RoomState { return domain.RoomState(r.state.Load()) }

func (r *roomImpl) Info() RoomInfo {
	r.mu.RLock()
	count := len(r.members)
	r.mu.RUnlock()
	r.logMu.Lock()
	entries := len(r.entries)
	r.logMu.Unlock()
	return RoomInfo{
		ID:          r.id,
		MemberCount: count,
		State:       r.State(),
		Entries:     entries,
		CreatedAt:   r.createdAt,
	}
}

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *roomImpl) Roster() RosterSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked()
}

func (r *roomImpl) Member(uid domain.UserID) (domain.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[uid]
	if !ok {
		return domain.Member{}, false
	}
	return m.meta, true
}

// SpeakerLabel survives leave and rejoin for the lifetime of the room.
func (r *roomImpl) SpeakerLabel(uid domain.UserID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.labels[uid]
}

func (r *roomImpl) NextChunkSeq(uid domain.UserID) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[uid]
	if !ok {
		return 0, false
	}
	return m.chunkSeq.Add(1) - 1, true
}

func (r *roomImpl) Connections() []SignalConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connsLocked()
}

func (r *roomImpl) AddMember(p domain.Participant, conn SignalConnection) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == domain.RoomReaped {
		return JoinResult{}, domain.ErrRoomReaped
	}

	res := JoinResult{}
	if m, ok := r.members[p.ID]; ok {
		res.Rejoin = true
		if m.conn != conn {
			res.Replaced = m.conn
		}
		m.conn = conn
		m.meta.Name = p.Name
	} else {
		label, ok := r.labels[p.ID]
		if !ok {
			label = domain.SpeakerLabel(len(r.labels) + 1)
			r.labels[p.ID] = label
		}
		r.members[p.ID] = &memberEntry{meta: *domain.NewMember(p, label), conn: conn}
	}
	r.state.Store(int32(domain.RoomActive))
	r.version++

	res.Member = toDTO(r.members[p.ID].meta)
	res.Roster = r.rosterLocked()
	res.Publish = r.publishRosterLocked(res.Roster, EventParticipantJoined, res.Member)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(p.ID)).
		Bool("rejoin", res.Rejoin).Uint64("version", r.version).Msg("member added")
	return res, nil
}

func (r *roomImpl) RemoveMember(uid domain.UserID, conn SignalConnection) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[uid]
	if !ok || (conn != nil && m.conn != conn) {
		return LeaveResult{}, false
	}
	delete(r.members, uid)
	r.version++

	res := LeaveResult{Member: toDTO(m.meta), Conn: m.conn}
	if len(r.members) == 0 {
		r.state.Store(int32(domain.RoomDraining))
		res.Emptied = true
	}
	res.Roster = r.rosterLocked()
	res.Publish = r.publishRosterLocked(res.Roster, EventParticipantLeft, res.Member)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(uid)).
		Bool("emptied", res.Emptied).Uint64("version", r.version).Msg("member removed")
	return res, true
}

// Append assigns the next room sequence and pushes the entry to every
// subscriber inside the same critical section, so all subscribers observe
// the same order.
func (r *roomImpl) Append(entry domain.TranscriptEntry) (domain.TranscriptEntry, PublishResult) {
	r.logMu.Lock()
	defer r.logMu.Unlock()

	entry.RoomID = r.id
	entry.Seq = r.nextSeq
	r.nextSeq++
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	r.entries = append(r.entries, entry)

	frame, err := EncodeJSON(TranscriptEvent{Type: EventNewTranscript, Entry: entry})
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("encode transcript")
		return entry, PublishResult{}
	}
	subs := make([]SignalConnection, 0, len(r.subs))
	for c := range r.subs {
		subs = append(subs, c)
	}
	res := fanout(subs, frame)
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Uint64("seq", entry.Seq).
		Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("transcript appended")
	return entry, res
}

func (r *roomImpl) Subscribe(conn SignalConnection) {
	if conn == nil {
		return
	}
	r.logMu.Lock()
	defer r.logMu.Unlock()
	r.subs[conn] = struct{}{}
}

func (r *roomImpl) Unsubscribe(conn SignalConnection) {
	if conn == nil {
		return
	}
	r.logMu.Lock()
	defer r.logMu.Unlock()
	delete(r.subs, conn)
}

func (r *roomImpl) Subscribers() int {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	return len(r.subs)
}

func (r *roomImpl) TranscriptSnapshot() []domain.TranscriptEntry {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	out := make([]domain.TranscriptEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *roomImpl) Reap() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.State()
	if len(r.members) > 0 || (st != domain.RoomDraining && st != domain.RoomEmpty) {
		return false
	}
	r.state.Store(int32(domain.RoomReaped))
	return true
}

func (r *roomImpl) Close() []SignalConnection {
	r.mu.Lock()
	conns := r.connsLocked()
	r.members = make(map[domain.UserID]*memberEntry)
	r.version++
	r.state.Store(int32(domain.RoomReaped))
	r.mu.Unlock()

	r.logMu.Lock()
	r.subs = make(map[SignalConnection]struct{})
	r.logMu.Unlock()
	return conns
}

func (r *roomImpl) connsLocked() []SignalConnection {
	out := make([]SignalConnection, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.conn)
	}
	return out
}

// rosterLocked orders members by join time so snapshots are stable.
func (r *roomImpl) rosterLocked() RosterSnapshot {
	out := make([]MemberDTO, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, toDTO(m.meta))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return RosterSnapshot{RoomID: r.id, Version: r.version, Participants: out}
}

func (r *roomImpl) publishRosterLocked(roster RosterSnapshot, kind string, who MemberDTO) PublishResult {
	full, err := EncodeJSON(ParticipantsEvent{Type: EventParticipants, RosterSnapshot: roster})
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("encode roster")
		return PublishResult{}
	}
	delta, err := EncodeJSON(ParticipantEvent{Type: kind, RoomID: r.id, Participant: who})
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("encode roster delta")
		return PublishResult{}
	}
	return fanout(r.connsLocked(), full, delta)
}

func toDTO(m domain.Member) MemberDTO {
	return MemberDTO{ID: m.ID, Username: m.Name, SpeakerLabel: m.SpeakerLabel, JoinedAt: m.JoinedAt}
}
