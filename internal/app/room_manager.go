package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl is the room table. Lock order is manager then room;
// rooms never call back into the manager while holding their own locks.
type RoomManagerImpl struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]core.RoomService
	timers map[domain.RoomID]*time.Timer
	grace  time.Duration

	hooksMu sync.RWMutex
	onReap  []func(domain.RoomID)
}

func NewRoomManager(grace time.Duration) *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms:  make(map[domain.RoomID]core.RoomService),
		timers: make(map[domain.RoomID]*time.Timer),
		grace:  grace,
	}
}

func (m *RoomManagerImpl) GetOrCreateRoom(id domain.RoomID) core.RoomService {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok && room.State() != domain.RoomReaped {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[id]; ok && room.State() != domain.RoomReaped {
		return room
	}
	room = core.NewRoomService(id)
	m.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

func (m *RoomManagerImpl) GetRoom(id domain.RoomID) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// ScheduleReap arms (or re-arms) the grace timer for an emptied room.
// A fired timer drops its own entry whether or not the room was reaped.
func (m *RoomManagerImpl) ScheduleReap(id domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[id]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(m.grace, func() {
		m.mu.Lock()
		if m.timers[id] == t {
			delete(m.timers, id)
		}
		m.mu.Unlock()
		m.ReapIfEmpty(id)
	})
	m.timers[id] = t
	log.Debug().Str("module", "app.rooms").Str("room", string(id)).Dur("grace", m.grace).Msg("reap scheduled")
}

func (m *RoomManagerImpl) CancelReap(id domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
		log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("reap cancelled")
	}
}

// ReapIfEmpty discards a draining room with no participants.
// Safe to call any number of times.
func (m *RoomManagerImpl) ReapIfEmpty(id domain.RoomID) bool {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if !ok || !room.Reap() {
		m.mu.Unlock()
		return false
	}
	delete(m.rooms, id)
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()

	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room reaped")
	m.fireReap(id)
	return true
}

// OnReap registers a callback run after a room leaves the table.
func (m *RoomManagerImpl) OnReap(fn func(domain.RoomID)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onReap = append(m.onReap, fn)
}

func (m *RoomManagerImpl) List() []core.RoomInfo {
	m.mu.RLock()
	rooms := make([]core.RoomService, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StopRoom removes a room regardless of its members and returns their
// connections so the caller can close them.
func (m *RoomManagerImpl) StopRoom(id domain.RoomID) []core.SignalConnection {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if ok {
		delete(m.rooms, id)
	}
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	conns := room.Close()
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Int("members", len(conns)).Msg("room stopped")
	m.fireReap(id)
	return conns
}

func (m *RoomManagerImpl) fireReap(id domain.RoomID) {
	m.hooksMu.RLock()
	hooks := append([]func(domain.RoomID){}, m.onReap...)
	m.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
}
