package app

import (
	"context"
	"fmt"

	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
)

// Assembler snapshots a room into a MeetingPayload and hands it to the
// document renderer.
type Assembler struct {
	Rooms           core.RoomManager
	Renderer        core.Renderer
	DefaultLanguage string
}

func NewAssembler(rooms core.RoomManager, renderer core.Renderer, language string) *Assembler {
	return &Assembler{Rooms: rooms, Renderer: renderer, DefaultLanguage: language}
}

// Assemble copies the transcript log at a single instant; entries appended
// afterwards never appear in the payload.
func (a *Assembler) Assemble(roomID domain.RoomID, language string) (domain.MeetingPayload, error) {
	room, ok := a.Rooms.GetRoom(roomID)
	if !ok {
		return domain.MeetingPayload{}, fmt.Errorf("assemble %q: %w", roomID, domain.ErrRoomNotFound)
	}
	if language == "" {
		language = a.DefaultLanguage
	}

	segments := room.TranscriptSnapshot()
	roster := room.Roster()

	participants := make([]domain.Participant, 0, len(roster.Participants))
	for _, m := range roster.Participants {
		participants = append(participants, domain.Participant{ID: m.ID, Name: m.Username, JoinedAt: m.JoinedAt})
	}
	return domain.MeetingPayload{
		RoomID:   roomID,
		Segments: segments,
		Roster:   participants,
		Meeting: domain.MeetingMetadata{
			StartedAt: room.CreatedAt(),
			Roster:    roster.Names(),
			Language:  language,
		},
	}, nil
}

// Render assembles roomID and renders kind. Renderer errors are not retried.
func (a *Assembler) Render(ctx context.Context, kind domain.ArtifactKind, roomID domain.RoomID, language string) (domain.Document, error) {
	payload, err := a.Assemble(roomID, language)
	if err != nil {
		return domain.Document{}, err
	}
	if kind.IsDocument() && len(payload.Segments) == 0 {
		return domain.Document{}, fmt.Errorf("render %s for %q: %w", kind, roomID, domain.ErrNoTranscript)
	}
	return a.RenderPayload(ctx, kind, payload)
}

// RenderPayload renders a caller supplied payload, e.g. an edited transcript.
func (a *Assembler) RenderPayload(ctx context.Context, kind domain.ArtifactKind, payload domain.MeetingPayload) (domain.Document, error) {
	if a.Renderer == nil {
		return domain.Document{}, fmt.Errorf("%w: no renderer configured", domain.ErrArtifactGenerationFailed)
	}
	doc, err := a.Renderer.Render(ctx, kind, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.artifacts").Str("room", string(payload.RoomID)).
			Str("kind", string(kind)).Msg("render failed")
		return domain.Document{}, fmt.Errorf("%w: %s: %v", domain.ErrArtifactGenerationFailed, kind, err)
	}
	log.Info().Str("module", "app.artifacts").Str("room", string(payload.RoomID)).Str("kind", string(kind)).
		Int("segments", len(payload.Segments)).Int("bytes", len(doc.Body)).Msg("rendered")
	return doc, nil
}
