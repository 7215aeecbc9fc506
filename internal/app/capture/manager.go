// Package capture turns inbound WebRTC audio tracks into transcription chunks.
package capture

import (
	"context"
	"sync"

	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
)

type Config struct {
	PacketsPerChunk int
	SampleRate      uint32
	Channels        uint16
	Denoise         bool
}

func (c Config) withDefaults() Config {
	if c.PacketsPerChunk <= 0 {
		// 20ms Opus frames, five seconds of audio
		c.PacketsPerChunk = 250
	}
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Channels == 0 {
		c.Channels = 2
	}
	return c
}

type key struct {
	room domain.RoomID
	user domain.UserID
}

// Manager keeps at most one recorder per participant.
type Manager struct {
	cfg  Config
	sink Submitter

	mu        sync.RWMutex
	recorders map[key]*Recorder
}

func NewManager(cfg Config, sink Submitter) *Manager {
	return &Manager{
		cfg:       cfg.withDefaults(),
		sink:      sink,
		recorders: make(map[key]*Recorder),
	}
}

// Start begins capturing src for uid, replacing any running recorder.
func (m *Manager) Start(ctx context.Context, roomID domain.RoomID, uid domain.UserID, src PacketSource) *Recorder {
	logger := log.With().
		Str("module", "capture").
		Str("room", string(roomID)).
		Str("user", string(uid)).
		Logger()

	recCtx, cancel := context.WithCancel(ctx)
	rec := newRecorder(roomID, uid, src, m.cfg, m.sink, cancel)

	k := key{room: roomID, user: uid}
	m.mu.Lock()
	if old, ok := m.recorders[k]; ok {
		logger.Info().Msg("replacing existing recorder")
		old.cancel()
	}
	m.recorders[k] = rec
	m.mu.Unlock()

	logger.Info().Int("packets_per_chunk", m.cfg.PacketsPerChunk).Msg("starting capture loop")
	go func() {
		rec.loop(recCtx, &logger)
		m.forget(k, rec)
	}()
	return rec
}

// Stop cancels uid's recorder. The loop flushes what it holds once the
// current read returns.
func (m *Manager) Stop(roomID domain.RoomID, uid domain.UserID) {
	k := key{room: roomID, user: uid}
	m.mu.Lock()
	rec, ok := m.recorders[k]
	if ok {
		delete(m.recorders, k)
	}
	m.mu.Unlock()
	if ok {
		rec.cancel()
	}
}

func (m *Manager) StopRoom(roomID domain.RoomID) {
	m.mu.Lock()
	var stopped []*Recorder
	for k, rec := range m.recorders {
		if k.room == roomID {
			stopped = append(stopped, rec)
			delete(m.recorders, k)
		}
	}
	m.mu.Unlock()
	for _, rec := range stopped {
		rec.cancel()
	}
}

func (m *Manager) Active(roomID domain.RoomID, uid domain.UserID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.recorders[key{room: roomID, user: uid}]
	return ok
}

func (m *Manager) forget(k key, rec *Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.recorders[k]; ok && cur == rec {
		delete(m.recorders, k)
	}
}
