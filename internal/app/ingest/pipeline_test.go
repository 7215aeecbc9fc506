package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Roomscribe/internal/app"
	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/core/coretest"
	"github.com/dkeye/Roomscribe/internal/domain"
)

// fakeTranscriber echoes the payload as text. Payloads listed in fail error
// out; delay slows every call down.
type fakeTranscriber struct {
	mu    sync.Mutex
	fail  map[string]int
	delay time.Duration
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req core.TranscribeRequest) (core.Transcription, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return core.Transcription{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	n, bad := f.fail[string(req.Payload)]
	if bad && n != 0 {
		if n > 0 {
			f.fail[string(req.Payload)] = n - 1
		}
		f.mu.Unlock()
		return core.Transcription{}, errors.New("engine unavailable")
	}
	f.mu.Unlock()
	if string(req.Payload) == "silence" {
		return core.Transcription{}, nil
	}
	return core.Transcription{
		Text:     string(req.Payload),
		Segments: []core.Segment{{Start: 0.5, End: 1.5, Text: string(req.Payload)}},
	}, nil
}

type fixture struct {
	rooms *app.RoomManagerImpl
	reg   *app.Registry
	sink  *app.Broadcaster
	tr    *fakeTranscriber
	p     *Pipeline
}

func newFixture(t *testing.T, cfg Config, tr *fakeTranscriber) *fixture {
	t.Helper()
	rooms := app.NewRoomManager(time.Minute)
	f := &fixture{
		rooms: rooms,
		reg:   app.NewRegistry(rooms, app.SimplePolicy{}, app.NewBroadcaster(rooms, app.SimplePolicy{})),
		sink:  app.NewBroadcaster(rooms, app.SimplePolicy{}),
		tr:    tr,
	}
	f.p = NewPipeline(cfg, rooms, tr, f.sink)
	if err := f.p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(f.p.Stop)
	return f
}

func (f *fixture) join(t *testing.T, room domain.RoomID, uid domain.UserID) *coretest.MemConn {
	t.Helper()
	conn := coretest.NewMemConn(256)
	if _, err := f.reg.Join(room, uid, "name-"+string(uid), conn); err != nil {
		t.Fatalf("join %s: %v", uid, err)
	}
	return conn
}

func waitEntries(t *testing.T, rooms core.RoomManager, room domain.RoomID, n int) []domain.TranscriptEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, ok := rooms.GetRoom(room)
		if ok {
			if got := r.TranscriptSnapshot(); len(got) >= n {
				return got
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d entries", n)
	return nil
}

func TestPipelineRejectsNonMember(t *testing.T) {
	f := newFixture(t, Config{Workers: 2}, &fakeTranscriber{})
	if _, err := f.p.Submit("r1", "ghost", []byte("x"), "", false); !errors.Is(err, domain.ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
	f.join(t, "r1", "u1")
	if _, err := f.p.Submit("r1", "ghost", []byte("x"), "", false); !errors.Is(err, domain.ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
	if _, err := f.p.Submit("r1", "u1", nil, "", false); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPipelinePreservesPerParticipantOrder(t *testing.T) {
	f := newFixture(t, Config{Workers: 4, QueueSize: 64}, &fakeTranscriber{})
	users := []domain.UserID{"a", "b", "c"}
	for _, u := range users {
		f.join(t, "r1", u)
	}

	const perUser = 20
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u domain.UserID) {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				seq, err := f.p.Submit("r1", u, []byte(fmt.Sprintf("%s-%02d", u, i)), "", false)
				if err != nil {
					t.Errorf("submit: %v", err)
					return
				}
				if seq != uint64(i) {
					t.Errorf("expected chunk seq %d, got %d", i, seq)
				}
			}
		}(u)
	}
	wg.Wait()

	entries := waitEntries(t, f.rooms, "r1", perUser*len(users))
	next := map[domain.UserID]int{}
	for i, e := range entries {
		if e.Seq != uint64(i) {
			t.Fatalf("room seq gap at %d: %d", i, e.Seq)
		}
		want := fmt.Sprintf("%s-%02d", e.UserID, next[e.UserID])
		if e.Text != want {
			t.Fatalf("out of order for %s: got %q want %q", e.UserID, e.Text, want)
		}
		if e.ChunkSeq != uint64(next[e.UserID]) {
			t.Fatalf("chunk seq mismatch for %s: %d", e.UserID, e.ChunkSeq)
		}
		next[e.UserID]++
	}
}

func TestPipelineRetriesThenRecordsGap(t *testing.T) {
	tr := &fakeTranscriber{fail: map[string]int{"bad": -1, "flaky": 1}}
	f := newFixture(t, Config{Workers: 1, Retries: 2, RetryBackoff: time.Millisecond}, tr)
	f.join(t, "r1", "u1")

	for _, payload := range []string{"bad", "flaky", "good"} {
		if _, err := f.p.Submit("r1", "u1", []byte(payload), "", false); err != nil {
			t.Fatalf("submit %s: %v", payload, err)
		}
	}
	entries := waitEntries(t, f.rooms, "r1", 3)
	if !entries[0].Dropped || entries[0].ChunkSeq != 0 {
		t.Fatalf("expected gap for chunk 0, got %+v", entries[0])
	}
	if entries[1].Text != "flaky" || entries[1].Dropped {
		t.Fatalf("expected flaky to succeed on retry, got %+v", entries[1])
	}
	if entries[2].Text != "good" {
		t.Fatalf("expected good, got %+v", entries[2])
	}
	// bad: 1 + 2 retries, flaky: 2, good: 1
	if got := tr.calls.Load(); got != 6 {
		t.Fatalf("expected 6 transcriber calls, got %d", got)
	}
}

func TestPipelineSilenceAppendsNothing(t *testing.T) {
	f := newFixture(t, Config{Workers: 1}, &fakeTranscriber{})
	f.join(t, "r1", "u1")
	if _, err := f.p.Submit("r1", "u1", []byte("silence"), "", false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.p.Submit("r1", "u1", []byte("words"), "", false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	entries := waitEntries(t, f.rooms, "r1", 1)
	time.Sleep(20 * time.Millisecond)
	r, _ := f.rooms.GetRoom("r1")
	entries = r.TranscriptSnapshot()
	if len(entries) != 1 || entries[0].Text != "words" || entries[0].ChunkSeq != 1 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestPipelineOverloadRecordsGap(t *testing.T) {
	tr := &fakeTranscriber{gate: make(chan struct{})}
	f := newFixture(t, Config{Workers: 1, QueueSize: 1}, tr)
	f.join(t, "r1", "u1")

	// first chunk is picked up by the worker and parks on the gate,
	// the second fills the queue, the third overflows
	if _, err := f.p.Submit("r1", "u1", []byte("one"), "", false); err != nil {
		t.Fatalf("submit one: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for tr.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := f.p.Submit("r1", "u1", []byte("two"), "", false); err != nil {
		t.Fatalf("submit two: %v", err)
	}
	seq, err := f.p.Submit("r1", "u1", []byte("three"), "", false)
	if !errors.Is(err, domain.ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded, got %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected dropped chunk seq 2, got %d", seq)
	}
	close(tr.gate)

	entries := waitEntries(t, f.rooms, "r1", 3)
	if !entries[0].Dropped || entries[0].ChunkSeq != 2 {
		t.Fatalf("expected immediate gap for chunk 2, got %+v", entries[0])
	}
	if entries[1].Text != "one" || entries[2].Text != "two" {
		t.Fatalf("unexpected order %+v", entries)
	}
}

func TestPipelineRateLimit(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, RateLimit: 0.001, Burst: 2}, &fakeTranscriber{})
	f.join(t, "r1", "u1")
	f.join(t, "r1", "u2")

	for i := 0; i < 2; i++ {
		if _, err := f.p.Submit("r1", "u1", []byte("x"), "", false); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if _, err := f.p.Submit("r1", "u1", []byte("x"), "", false); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if _, err := f.p.Submit("r1", "u2", []byte("x"), "", false); err != nil {
		t.Fatalf("other participant must not be limited: %v", err)
	}
}

func TestPipelineResultAfterLeaveStillAttributed(t *testing.T) {
	tr := &fakeTranscriber{delay: 30 * time.Millisecond}
	f := newFixture(t, Config{Workers: 1}, tr)
	f.join(t, "r1", "keeper")
	f.join(t, "r1", "u1")

	if _, err := f.p.Submit("r1", "u1", []byte("parting words"), "", false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.reg.Leave("r1", "u1")

	entries := waitEntries(t, f.rooms, "r1", 1)
	if entries[0].UserID != "u1" || entries[0].Speaker != "Speaker 2" {
		t.Fatalf("unexpected attribution %+v", entries[0])
	}
}

func TestPipelineStopRefusesNewChunks(t *testing.T) {
	rooms := app.NewRoomManager(time.Minute)
	reg := app.NewRegistry(rooms, app.SimplePolicy{}, app.NewBroadcaster(rooms, app.SimplePolicy{}))
	p := NewPipeline(Config{Workers: 2}, rooms, &fakeTranscriber{}, app.NewBroadcaster(rooms, app.SimplePolicy{}))
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := reg.Join("r1", "u1", "Alice", coretest.NewMemConn(16)); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := p.Submit("r1", "u1", []byte("last"), "", false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	p.Stop()
	p.Stop()

	r, _ := rooms.GetRoom("r1")
	if got := r.TranscriptSnapshot(); len(got) != 1 {
		t.Fatalf("queued chunk must finish before Stop returns, got %d entries", len(got))
	}
	if _, err := p.Submit("r1", "u1", []byte("late"), "", false); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
