// Package orch ties participants, ingestion, capture and artifacts together
// behind the operations the transports call.
package orch

import (
	"context"

	"github.com/dkeye/Roomscribe/internal/app"
	"github.com/dkeye/Roomscribe/internal/app/capture"
	"github.com/dkeye/Roomscribe/internal/app/ingest"
	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/domain"
)

type Orchestrator struct {
	Registry    *app.Registry
	Rooms       core.RoomManager
	Pipeline    *ingest.Pipeline
	Broadcaster *app.Broadcaster
	Assembler   *app.Assembler
	Captures    *capture.Manager
}

type Deps struct {
	Rooms       core.RoomManager
	Policy      app.Policy
	Transcriber core.Transcriber
	Renderer    core.Renderer
	Ingest      ingest.Config
	Capture     capture.Config
	Language    string
}

func New(d Deps) *Orchestrator {
	if d.Policy == nil {
		d.Policy = app.SimplePolicy{}
	}
	bc := app.NewBroadcaster(d.Rooms, d.Policy)
	pipe := ingest.NewPipeline(d.Ingest, d.Rooms, d.Transcriber, bc)
	o := &Orchestrator{
		Registry:    app.NewRegistry(d.Rooms, d.Policy, bc),
		Rooms:       d.Rooms,
		Pipeline:    pipe,
		Broadcaster: bc,
		Assembler:   app.NewAssembler(d.Rooms, d.Renderer, d.Language),
		Captures:    capture.NewManager(d.Capture, pipe),
	}
	d.Rooms.OnReap(o.Captures.StopRoom)
	return o
}

func (o *Orchestrator) Start(ctx context.Context) error { return o.Pipeline.Start(ctx) }

// Stop drains the pipeline. In-flight chunks finish and land in their rooms.
func (o *Orchestrator) Stop() { o.Pipeline.Stop() }

func (o *Orchestrator) Artifact(ctx context.Context, kind domain.ArtifactKind, roomID domain.RoomID, lang string) (domain.Document, error) {
	return o.Assembler.Render(ctx, kind, roomID, lang)
}

func (o *Orchestrator) Transcript(roomID domain.RoomID) ([]domain.TranscriptEntry, error) {
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room.TranscriptSnapshot(), nil
}
