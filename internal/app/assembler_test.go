package app

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/dkeye/Roomscribe/internal/core/coretest"
	"github.com/dkeye/Roomscribe/internal/domain"
)

type stubRenderer struct {
	err   error
	calls int
	last  domain.MeetingPayload
}

func (s *stubRenderer) Render(_ context.Context, kind domain.ArtifactKind, payload domain.MeetingPayload) (domain.Document, error) {
	s.calls++
	s.last = payload
	if s.err != nil {
		return domain.Document{}, s.err
	}
	return domain.Document{Kind: kind, ContentType: "text/plain", Body: []byte("ok")}, nil
}

func seededRoom(t *testing.T) (*RoomManagerImpl, *Broadcaster) {
	t.Helper()
	m := NewRoomManager(time.Minute)
	b := NewBroadcaster(m, SimplePolicy{})
	reg := NewRegistry(m, SimplePolicy{}, b)
	if _, err := reg.Join("r1", "a", "Alice", coretest.NewMemConn(32)); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := reg.Join("r1", "b", "Bob", coretest.NewMemConn(32)); err != nil {
		t.Fatalf("join b: %v", err)
	}
	for _, line := range []struct {
		uid  domain.UserID
		text string
	}{{"a", "hi"}, {"b", "hello"}, {"a", "agenda"}} {
		if _, err := b.Append("r1", line.uid, "", line.text); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return m, b
}

func TestAssemblerAssembleIsIdempotent(t *testing.T) {
	m, _ := seededRoom(t)
	a := NewAssembler(m, &stubRenderer{}, "ru")

	p1, err := a.Assemble("r1", "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	p2, err := a.Assemble("r1", "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !reflect.DeepEqual(p1, p2) {
		t.Fatalf("payloads differ:\n%+v\n%+v", p1, p2)
	}
	if len(p1.Segments) != 3 || p1.Segments[1].Text != "hello" {
		t.Fatalf("unexpected segments %+v", p1.Segments)
	}
	if p1.Meeting.Language != "ru" {
		t.Fatalf("expected default language, got %q", p1.Meeting.Language)
	}
	if got := p1.Meeting.Roster; len(got) != 2 || got[0] != "Alice" {
		t.Fatalf("unexpected roster %v", got)
	}
}

func TestAssemblerSnapshotExcludesLaterEntries(t *testing.T) {
	m, b := seededRoom(t)
	a := NewAssembler(m, &stubRenderer{}, "en")
	p, err := a.Assemble("r1", "en")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if _, err := b.Append("r1", "a", "", "after"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(p.Segments) != 3 {
		t.Fatalf("snapshot grew to %d", len(p.Segments))
	}
}

func TestAssemblerRenderWrapsFailure(t *testing.T) {
	m, _ := seededRoom(t)
	r := &stubRenderer{err: errors.New("boom")}
	a := NewAssembler(m, r, "en")

	_, err := a.Render(context.Background(), domain.ArtifactSummary, "r1", "")
	if !errors.Is(err, domain.ErrArtifactGenerationFailed) {
		t.Fatalf("expected ErrArtifactGenerationFailed, got %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("renderer must not be retried, got %d calls", r.calls)
	}
}

func TestAssemblerRenderEmptyDocument(t *testing.T) {
	m := NewRoomManager(time.Minute)
	m.GetOrCreateRoom("r1")
	r := &stubRenderer{}
	a := NewAssembler(m, r, "en")

	if _, err := a.Render(context.Background(), domain.ArtifactTranscriptDocx, "r1", ""); !errors.Is(err, domain.ErrNoTranscript) {
		t.Fatalf("expected ErrNoTranscript, got %v", err)
	}
	if r.calls != 0 {
		t.Fatalf("renderer called for empty transcript")
	}
	if _, err := a.Render(context.Background(), domain.ArtifactNotes, "r1", ""); err != nil {
		t.Fatalf("notes on empty room: %v", err)
	}
	if _, err := a.Render(context.Background(), domain.ArtifactNotes, "missing", ""); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}
