package capture

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
)

const chunkFilename = "webrtc.ogg"

// PacketSource yields RTP packets of one inbound audio track.
type PacketSource interface {
	ReadRTP() (*rtp.Packet, error)
}

// TrackSource adapts a remote pion track to PacketSource.
type TrackSource struct {
	Track *webrtc.TrackRemote
}

func (s TrackSource) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := s.Track.ReadRTP()
	return pkt, err
}

// Submitter accepts finished chunks. Implemented by ingest.Pipeline.
type Submitter interface {
	Submit(roomID domain.RoomID, uid domain.UserID, payload []byte, filename string, denoise bool) (uint64, error)
}

// Recorder muxes the Opus packets of one participant into Ogg pages and
// hands off a self-contained Ogg file every PacketsPerChunk packets.
type Recorder struct {
	RoomID domain.RoomID
	UserID domain.UserID
	Src    PacketSource

	cfg    Config
	sink   Submitter
	cancel context.CancelFunc
	done   chan struct{}

	buf     bytes.Buffer
	w       *oggwriter.OggWriter
	packets int
	chunks  int
}

func newRecorder(roomID domain.RoomID, uid domain.UserID, src PacketSource, cfg Config, sink Submitter, cancel context.CancelFunc) *Recorder {
	return &Recorder{
		RoomID: roomID,
		UserID: uid,
		Src:    src,
		cfg:    cfg,
		sink:   sink,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Done is closed once the loop has flushed its last chunk.
func (r *Recorder) Done() <-chan struct{} { return r.done }

func (r *Recorder) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	defer r.flush(logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("capture ctx done")
			return
		default:
		}
		pkt, err := r.Src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Msg("track ended")
			} else {
				logger.Warn().Err(err).Msg("read RTP error, stopping capture")
			}
			return
		}
		if err := r.write(pkt); err != nil {
			logger.Error().Err(err).Msg("ogg write error, chunk discarded")
			r.reset()
			continue
		}
		if r.packets >= r.cfg.PacketsPerChunk {
			r.flush(logger)
		}
	}
}

func (r *Recorder) write(pkt *rtp.Packet) error {
	if pkt == nil || len(pkt.Payload) == 0 {
		return nil
	}
	if r.w == nil {
		w, err := oggwriter.NewWith(&r.buf, r.cfg.SampleRate, r.cfg.Channels)
		if err != nil {
			return err
		}
		r.w = w
	}
	if err := r.w.WriteRTP(pkt); err != nil {
		return err
	}
	r.packets++
	return nil
}

func (r *Recorder) flush(logger *zerolog.Logger) {
	if r.w == nil || r.packets == 0 {
		r.reset()
		return
	}
	if err := r.w.Close(); err != nil {
		logger.Error().Err(err).Msg("ogg close error")
	}
	payload := append([]byte(nil), r.buf.Bytes()...)
	packets := r.packets
	r.reset()

	seq, err := r.sink.Submit(r.RoomID, r.UserID, payload, chunkFilename, r.cfg.Denoise)
	if err != nil {
		logger.Warn().Err(err).Uint64("seq", seq).Msg("chunk not accepted")
		return
	}
	r.chunks++
	logger.Debug().Uint64("seq", seq).Int("packets", packets).Int("bytes", len(payload)).Msg("chunk submitted")
}

func (r *Recorder) reset() {
	r.buf.Reset()
	r.w = nil
	r.packets = 0
}
