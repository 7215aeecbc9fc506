package capture

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/pion/rtp"
)

type fakeSource struct {
	ch chan *rtp.Packet
}

func newFakeSource() *fakeSource { return &fakeSource{ch: make(chan *rtp.Packet, 64)} }

func (s *fakeSource) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-s.ch
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

func (s *fakeSource) push(n int) {
	for i := 0; i < n; i++ {
		s.ch <- &rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: []byte{0xfc, 0xff, 0xfe},
		}
	}
}

type submission struct {
	room     domain.RoomID
	user     domain.UserID
	payload  []byte
	filename string
}

type recordingSink struct {
	mu   sync.Mutex
	subs []submission
	got  chan struct{}
}

func newRecordingSink() *recordingSink { return &recordingSink{got: make(chan struct{}, 16)} }

func (s *recordingSink) Submit(room domain.RoomID, uid domain.UserID, payload []byte, filename string, _ bool) (uint64, error) {
	s.mu.Lock()
	seq := uint64(len(s.subs))
	s.subs = append(s.subs, submission{room: room, user: uid, payload: payload, filename: filename})
	s.mu.Unlock()
	s.got <- struct{}{}
	return seq, nil
}

func (s *recordingSink) wait(t *testing.T, n int) []submission {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for chunk %d", i)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submission(nil), s.subs...)
}

func TestRecorderChunksEveryNPackets(t *testing.T) {
	sink := newRecordingSink()
	m := NewManager(Config{PacketsPerChunk: 5}, sink)
	src := newFakeSource()

	rec := m.Start(context.Background(), "r1", "u1", src)
	src.push(12)
	close(src.ch)

	subs := sink.wait(t, 3)
	<-rec.Done()
	if len(subs) != 3 {
		t.Fatalf("expected 3 chunks (5+5+2), got %d", len(subs))
	}
	for i, s := range subs {
		if !bytes.HasPrefix(s.payload, []byte("OggS")) {
			t.Fatalf("chunk %d is not an ogg stream", i)
		}
		if s.filename != chunkFilename || s.room != "r1" || s.user != "u1" {
			t.Fatalf("unexpected submission %+v", s)
		}
	}
	if len(subs[2].payload) >= len(subs[0].payload) {
		t.Fatalf("tail chunk should be smaller than a full one")
	}

	deadline := time.Now().Add(time.Second)
	for m.Active("r1", "u1") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.Active("r1", "u1") {
		t.Fatalf("finished recorder still registered")
	}
}

func TestRecorderSkipsEmptyTrack(t *testing.T) {
	sink := newRecordingSink()
	m := NewManager(Config{PacketsPerChunk: 5}, sink)
	src := newFakeSource()
	rec := m.Start(context.Background(), "r1", "u1", src)
	close(src.ch)
	<-rec.Done()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.subs) != 0 {
		t.Fatalf("expected no chunks, got %d", len(sink.subs))
	}
}

func TestManagerStopRoomFlushesPartialChunk(t *testing.T) {
	sink := newRecordingSink()
	m := NewManager(Config{PacketsPerChunk: 100}, sink)
	src := newFakeSource()
	rec := m.Start(context.Background(), "r1", "u1", src)
	src.push(3)

	// let the loop consume the packets before cancelling
	time.Sleep(20 * time.Millisecond)
	m.StopRoom("r1")
	if m.Active("r1", "u1") {
		t.Fatalf("recorder still active after StopRoom")
	}
	// unblock the pending read so the loop observes the cancel
	src.push(1)

	subs := sink.wait(t, 1)
	<-rec.Done()
	if !bytes.HasPrefix(subs[0].payload, []byte("OggS")) {
		t.Fatalf("expected ogg payload")
	}
}
