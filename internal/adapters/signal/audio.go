package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

type audioMeta struct {
	RoomID    string `json:"roomId" msgpack:"roomId"`
	UserID    string `json:"userId" msgpack:"userId"`
	UserName  string `json:"userName" msgpack:"userName"`
	Filename  string `json:"filename" msgpack:"filename"`
	DoDenoise bool   `json:"doDenoise" msgpack:"doDenoise"`
}

// audioBlob arrives either as JSON with a base64 payload or as a msgpack
// binary frame with raw bytes.
type audioBlob struct {
	Type     string    `json:"type" msgpack:"type"`
	Metadata audioMeta `json:"metadata" msgpack:"metadata"`
	Payload  []byte    `json:"payload" msgpack:"payload"`
}

func (ctl *SignalWSController) handleAudioJSON(conn *WsSignalConn, data []byte) {
	var blob audioBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad audio_blob payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.submitAudio(conn, &blob)
}

func (ctl *SignalWSController) handleBinary(conn *WsSignalConn, data []byte) {
	var blob audioBlob
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad msgpack frame")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if blob.Type != "audio_blob" {
		ctl.sendError(conn, "unknown_type")
		return
	}
	ctl.submitAudio(conn, &blob)
}

func (ctl *SignalWSController) submitAudio(conn *WsSignalConn, blob *audioBlob) {
	roomID, uid, ok := ctl.Orch.Registry.RoomOf(conn)
	m := blob.Metadata
	if !ok || (m.RoomID != "" && domain.RoomID(m.RoomID) != roomID) || (m.UserID != "" && domain.UserID(m.UserID) != uid) {
		log.Warn().Str("module", "signal").Str("client", conn.token).Str("room", m.RoomID).Str("user", m.UserID).
			Msg("audio from non-member")
		ctl.sendError(conn, "not_joined")
		return
	}

	_, seq, err := ctl.Orch.SubmitAudio(conn, blob.Payload, m.Filename, m.DoDenoise)
	if err != nil && !errors.Is(err, domain.ErrOverloaded) {
		ctl.sendError(conn, errorCode(err))
		return
	}
	ack := struct {
		Type    string        `json:"type"`
		RoomID  domain.RoomID `json:"roomId"`
		Seq     uint64        `json:"seq"`
		Dropped bool          `json:"dropped,omitempty"`
	}{
		Type:    "audio_ack",
		RoomID:  roomID,
		Seq:     seq,
		Dropped: err != nil,
	}
	ctl.sendJSON(conn, ack)
}
