package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Roomscribe/internal/adapters/rtc"
	"github.com/dkeye/Roomscribe/internal/app/capture"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) sendCandidate(c *WsSignalConn, ci webrtc.ICECandidateInit) {
	resp := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{
		Type:      "candidate",
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		resp.SDPMLineIndex = *ci.SDPMLineIndex
	}
	ctl.sendJSON(c, resp)
}

// handleOffer starts capturing the participant's microphone over WebRTC.
func (ctl *SignalWSController) handleOffer(
	ctx context.Context,
	conn *WsSignalConn,
	data []byte,
) {
	type offerPayload struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	var p offerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if _, _, ok := ctl.Orch.Registry.RoomOf(conn); !ok {
		ctl.sendError(conn, "not_joined")
		return
	}

	peer, err := rtc.NewPeer(rtc.DefaultConfig(ctl.Cfg.ICEServers), conn.token)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		ctl.sendError(conn, "media_failed")
		return
	}
	peer.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(conn, ci)
	})
	peer.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote) {
		ctl.Orch.OnTrack(trackCtx, conn, capture.TrackSource{Track: track})
	})
	peer.OnClosed(func() { ctl.Orch.OnMediaClosed(conn) })
	peer.Start(ctx)

	answer, err := peer.Answer(p.SDP)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		peer.Close()
		ctl.sendError(conn, "media_failed")
		return
	}
	if old := conn.setPeer(peer); old != nil {
		old.Close()
	}

	ctl.sendJSON(conn, map[string]string{
		"type": "answer",
		"sdp":  answer,
	})
}

func (ctl *SignalWSController) handleCandidate(
	conn *WsSignalConn,
	data []byte,
) {
	type candidatePayload struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}

	cand := webrtc.ICECandidateInit{
		Candidate: p.Candidate,
	}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex

	peer := conn.currentPeer()
	if peer == nil {
		log.Warn().Str("module", "signal").Str("client", conn.token).Msg("candidate: no media connection")
		return
	}
	if err := peer.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
