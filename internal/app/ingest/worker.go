package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// worker owns a FIFO of chunks. Every chunk of one participant hashes to the
// same worker, which keeps that participant's transcripts in submission order.
type worker struct {
	id    int
	queue chan *domain.AudioChunk
	p     *Pipeline
}

func newWorker(id, size int, p *Pipeline) *worker {
	return &worker{id: id, queue: make(chan *domain.AudioChunk, size), p: p}
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := log.With().Str("module", "ingest").Int("worker", w.id).Logger()
	for chunk := range w.queue {
		w.process(ctx, chunk, &logger)
	}
	logger.Debug().Msg("worker drained")
}

func (w *worker) process(ctx context.Context, chunk *domain.AudioChunk, logger *zerolog.Logger) {
	l := logger.With().Str("room", string(chunk.RoomID)).Str("user", string(chunk.UserID)).
		Uint64("seq", chunk.Seq).Str("chunk_id", chunk.ID).Logger()

	res, err := w.transcribe(ctx, chunk, &l)
	if err != nil {
		l.Error().Err(err).Msg("chunk dropped after retries")
		if _, err := w.p.sink.AppendDropped(chunk.RoomID, chunk.UserID, chunk.Seq); err != nil {
			l.Debug().Err(err).Msg("gap not recorded")
		}
		return
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		l.Debug().Msg("empty transcription")
		return
	}
	entry := domain.TranscriptEntry{
		RoomID:   chunk.RoomID,
		UserID:   chunk.UserID,
		Speaker:  res.SpeakerLabel,
		Text:     text,
		ChunkSeq: chunk.Seq,
	}
	if n := len(res.Segments); n > 0 {
		entry.Start = res.Segments[0].Start
		entry.End = res.Segments[n-1].End
	}
	out, err := w.p.sink.AppendEntry(entry)
	if err != nil {
		// the room was reaped while the chunk was in flight
		l.Debug().Err(err).Msg("transcript discarded")
		return
	}
	l.Debug().Uint64("room_seq", out.Seq).Msg("transcript appended")
}

func (w *worker) transcribe(ctx context.Context, chunk *domain.AudioChunk, logger *zerolog.Logger) (core.Transcription, error) {
	req := core.TranscribeRequest{
		ChunkID:   chunk.ID,
		Filename:  chunk.Filename,
		Payload:   chunk.Payload,
		DoDenoise: chunk.DoDenoise,
		DoDiarize: w.p.cfg.Diarize,
		Language:  w.p.cfg.Language,
	}

	var (
		out     core.Transcription
		attempt int
	)
	op := func() error {
		attempt++
		res, err := w.p.transcriber.Transcribe(ctx, req)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("transcription attempt failed")
			return err
		}
		out = res
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.p.cfg.RetryBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.p.cfg.Retries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return core.Transcription{}, fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}
	return out, nil
}
