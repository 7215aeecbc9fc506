// Package ingest sequences audio chunks per participant and feeds them to the
// transcriber on a fixed pool of workers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var ErrStopped = errors.New("ingestion pipeline stopped")

// Sink receives transcription outcomes. Implemented by app.Broadcaster.
type Sink interface {
	AppendEntry(entry domain.TranscriptEntry) (domain.TranscriptEntry, error)
	AppendDropped(roomID domain.RoomID, uid domain.UserID, chunkSeq uint64) (domain.TranscriptEntry, error)
}

type Config struct {
	Workers      int
	QueueSize    int
	Retries      int
	RetryBackoff time.Duration
	Language     string
	Diarize      bool
	// RateLimit is chunks per second per participant; zero disables it.
	RateLimit float64
	Burst     int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

type limiterKey struct {
	room domain.RoomID
	user domain.UserID
}

type Pipeline struct {
	cfg         Config
	rooms       core.RoomManager
	transcriber core.Transcriber
	sink        Sink

	mu      sync.RWMutex
	workers []*worker
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	limMu    sync.Mutex
	limiters map[limiterKey]*rate.Limiter
}

func NewPipeline(cfg Config, rooms core.RoomManager, transcriber core.Transcriber, sink Sink) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:         cfg,
		rooms:       rooms,
		transcriber: transcriber,
		sink:        sink,
		limiters:    make(map[limiterKey]*rate.Limiter),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.workers = append(p.workers, newWorker(i, cfg.QueueSize, p))
	}
	rooms.OnReap(p.Forget)
	return p
}

func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("ingestion pipeline already started")
	}
	if p.stopped {
		return ErrStopped
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.started = true
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run(ctx, &p.wg)
	}
	log.Info().Str("module", "ingest").Int("workers", len(p.workers)).Int("queue", p.cfg.QueueSize).Msg("pipeline started")
	return nil
}

// Stop refuses new chunks and waits for queued ones to finish.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, w := range p.workers {
		close(w.queue)
	}
	started := p.started
	p.mu.Unlock()

	if started {
		p.wg.Wait()
		p.cancel()
	}
	log.Info().Str("module", "ingest").Msg("pipeline stopped")
}

// Submit sequences a chunk for uid and queues it on the worker owning
// (roomID, uid). It never blocks; a full queue records a gap right away.
func (p *Pipeline) Submit(roomID domain.RoomID, uid domain.UserID, payload []byte, filename string, denoise bool) (uint64, error) {
	room, ok := p.rooms.GetRoom(roomID)
	if !ok {
		return 0, fmt.Errorf("submit to %q: %w", roomID, domain.ErrNotJoined)
	}
	if _, ok := room.Member(uid); !ok {
		return 0, fmt.Errorf("submit by %q to %q: %w", uid, roomID, domain.ErrNotJoined)
	}
	if len(payload) == 0 {
		return 0, fmt.Errorf("%w: empty audio payload", domain.ErrInvalidInput)
	}
	if !p.allow(roomID, uid) {
		return 0, domain.ErrRateLimited
	}
	seq, ok := room.NextChunkSeq(uid)
	if !ok {
		return 0, fmt.Errorf("submit by %q to %q: %w", uid, roomID, domain.ErrNotJoined)
	}
	chunk := domain.NewAudioChunk(roomID, uid, seq, payload, filename, denoise)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return seq, ErrStopped
	}
	w := p.workers[p.shard(roomID, uid)]
	select {
	case w.queue <- chunk:
		log.Debug().Str("module", "ingest").Str("room", string(roomID)).Str("user", string(uid)).
			Uint64("seq", seq).Int("worker", w.id).Int("bytes", len(payload)).Msg("chunk queued")
		return seq, nil
	default:
		log.Warn().Str("module", "ingest").Str("room", string(roomID)).Str("user", string(uid)).
			Uint64("seq", seq).Int("worker", w.id).Msg("worker queue full, dropping chunk")
		if _, err := p.sink.AppendDropped(roomID, uid, seq); err != nil {
			log.Debug().Err(err).Str("module", "ingest").Msg("gap not recorded")
		}
		return seq, domain.ErrOverloaded
	}
}

// Forget drops per-participant state of a reaped room.
func (p *Pipeline) Forget(roomID domain.RoomID) {
	p.limMu.Lock()
	defer p.limMu.Unlock()
	for k := range p.limiters {
		if k.room == roomID {
			delete(p.limiters, k)
		}
	}
}

func (p *Pipeline) shard(roomID domain.RoomID, uid domain.UserID) int {
	h := xxhash.New()
	_, _ = h.WriteString(string(roomID))
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(string(uid))
	return int(h.Sum64() % uint64(len(p.workers)))
}

func (p *Pipeline) allow(roomID domain.RoomID, uid domain.UserID) bool {
	if p.cfg.RateLimit <= 0 {
		return true
	}
	k := limiterKey{room: roomID, user: uid}
	p.limMu.Lock()
	l, ok := p.limiters[k]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.cfg.RateLimit), p.cfg.Burst)
		p.limiters[k] = l
	}
	p.limMu.Unlock()
	return l.Allow()
}
