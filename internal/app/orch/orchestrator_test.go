package orch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Roomscribe/internal/app"
	"github.com/dkeye/Roomscribe/internal/app/capture"
	"github.com/dkeye/Roomscribe/internal/app/ingest"
	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/core/coretest"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/pion/rtp"
)

// scriptedTranscriber fails chunks whose payload is listed in failFor.
type scriptedTranscriber struct {
	mu      sync.Mutex
	failFor map[string]bool
}

func (s *scriptedTranscriber) Transcribe(_ context.Context, req core.TranscribeRequest) (core.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[string(req.Payload)] {
		return core.Transcription{}, errors.New("engine down")
	}
	return core.Transcription{Text: "said " + string(req.Payload)}, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, kind domain.ArtifactKind, p domain.MeetingPayload) (domain.Document, error) {
	return domain.Document{Kind: kind, ContentType: "application/json", Body: []byte(p.RoomID)}, nil
}

func newTestOrchestrator(t *testing.T, tr core.Transcriber) *Orchestrator {
	t.Helper()
	o := New(Deps{
		Rooms:       app.NewRoomManager(50 * time.Millisecond),
		Transcriber: tr,
		Renderer:    stubRenderer{},
		Ingest:      ingest.Config{Workers: 4, Retries: 2, RetryBackoff: time.Millisecond},
		Capture:     capture.Config{PacketsPerChunk: 2},
		Language:    "en",
	})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(o.Stop)
	return o
}

func waitLog(t *testing.T, o *Orchestrator, room domain.RoomID, n int) []domain.TranscriptEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if entries, err := o.Transcript(room); err == nil && len(entries) >= n {
			return entries
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d entries in %s", n, room)
	return nil
}

func TestMeetingScenario(t *testing.T) {
	tr := &scriptedTranscriber{failFor: map[string]bool{"b-1": true}}
	o := newTestOrchestrator(t, tr)
	a, b := coretest.NewMemConn(64), coretest.NewMemConn(64)

	if _, err := o.Join("demo", "A", "Alice", a); err != nil {
		t.Fatalf("join A: %v", err)
	}
	if _, err := o.Join("demo", "B", "Bob", b); err != nil {
		t.Fatalf("join B: %v", err)
	}
	for _, chunk := range []string{"a-1", "a-2", "a-3"} {
		if _, _, err := o.SubmitAudio(a, []byte(chunk), "", false); err != nil {
			t.Fatalf("submit %s: %v", chunk, err)
		}
	}
	waitLog(t, o, "demo", 3)
	if _, _, err := o.SubmitAudio(b, []byte("b-1"), "", false); err != nil {
		t.Fatalf("submit b-1: %v", err)
	}
	entries := waitLog(t, o, "demo", 4)

	for i := 0; i < 3; i++ {
		if entries[i].Seq != uint64(i) || entries[i].UserID != "A" || entries[i].Dropped {
			t.Fatalf("entry %d: %+v", i, entries[i])
		}
	}
	if !entries[3].Dropped || entries[3].UserID != "B" || entries[3].Text != "" || entries[3].Seq != 3 {
		t.Fatalf("expected dropped entry for B, got %+v", entries[3])
	}

	payload, err := o.Assembler.Assemble("demo", "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if got := payload.Meeting.Roster; len(got) != 2 || got[0] != "Alice" || got[1] != "Bob" {
		t.Fatalf("unexpected roster %v", got)
	}
	if len(payload.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(payload.Segments))
	}

	// both subscribers saw all four entries
	for _, c := range []*coretest.MemConn{a, b} {
		seen := 0
		var ev core.TranscriptEvent
		for c.Next(core.EventNewTranscript, &ev, 50*time.Millisecond) {
			seen++
		}
		if seen != 4 {
			t.Fatalf("subscriber saw %d entries", seen)
		}
	}
}

func TestSubmitAudioRequiresJoin(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedTranscriber{})
	if _, _, err := o.SubmitAudio(coretest.NewMemConn(4), []byte("x"), "", false); !errors.Is(err, domain.ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
}

func TestDisconnectRemovesParticipantAndReaps(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedTranscriber{})
	reaped := make(chan domain.RoomID, 1)
	o.Rooms.OnReap(func(id domain.RoomID) { reaped <- id })

	conn := coretest.NewMemConn(16)
	if _, err := o.Join("demo", "A", "Alice", conn); err != nil {
		t.Fatalf("join: %v", err)
	}
	o.OnDisconnect(conn)

	select {
	case <-reaped:
	case <-time.After(time.Second):
		t.Fatalf("room not reaped after disconnect")
	}
	if _, err := o.Transcript("demo"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestEvictRoomClosesConnections(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedTranscriber{})
	a, b := coretest.NewMemConn(16), coretest.NewMemConn(16)
	if _, err := o.Join("demo", "A", "Alice", a); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := o.Join("demo", "B", "Bob", b); err != nil {
		t.Fatalf("join: %v", err)
	}
	if !o.EvictRoom("demo") {
		t.Fatalf("expected eviction")
	}
	if !a.Closed() || !b.Closed() {
		t.Fatalf("expected both connections closed")
	}
	if o.EvictRoom("demo") {
		t.Fatalf("second eviction must report false")
	}
}

type chanSource chan *rtp.Packet

func (c chanSource) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-c
	if !ok {
		return nil, context.Canceled
	}
	return pkt, nil
}

func TestOnTrackFeedsPipeline(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedTranscriber{})
	conn := coretest.NewMemConn(64)
	if _, err := o.Join("demo", "A", "Alice", conn); err != nil {
		t.Fatalf("join: %v", err)
	}
	src := make(chanSource, 8)
	if !o.OnTrack(context.Background(), conn, src) {
		t.Fatalf("expected capture to start")
	}
	for i := 0; i < 4; i++ {
		src <- &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: uint16(i), Timestamp: uint32(i * 960)}, Payload: []byte{0xfc, 0x01}}
	}
	close(src)

	entries := waitLog(t, o, "demo", 2)
	for _, e := range entries {
		if e.UserID != "A" || e.Dropped {
			t.Fatalf("unexpected entry %+v", e)
		}
	}
	if o.OnTrack(context.Background(), coretest.NewMemConn(1), src) {
		t.Fatalf("unjoined connection must not start capture")
	}
}
