package signal

import (
	"encoding/json"

	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
)

type joinPayload struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type leavePayload struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

func (ctl *SignalWSController) handleJoin(
	conn *WsSignalConn,
	data []byte,
) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.joins.Allow(conn.token) {
		log.Warn().Str("module", "signal").Str("client", conn.token).Msg("join rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}
	roomID, err := domain.NormalizeRoomID(p.RoomID)
	if err != nil {
		ctl.sendError(conn, errorCode(err))
		return
	}
	uid := domain.UserID(p.UserID)
	if uid == "" {
		uid = domain.UserID(conn.token)
	}

	log.Info().Str("module", "signal").Str("room", string(roomID)).Str("user", string(uid)).Msg("join")
	roster, err := ctl.Orch.Join(roomID, uid, p.UserName, conn)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("join rejected")
		ctl.sendError(conn, errorCode(err))
		return
	}

	resp := struct {
		Type   string              `json:"type"`
		RoomID domain.RoomID       `json:"roomId"`
		UserID domain.UserID       `json:"userId"`
		Roster core.RosterSnapshot `json:"roster"`
	}{
		Type:   "joined",
		RoomID: roomID,
		UserID: uid,
		Roster: roster,
	}
	ctl.sendJSON(conn, resp)
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	conn *WsSignalConn,
	data []byte,
) {
	var p leavePayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	roomID, uid, ok := ctl.Orch.Registry.RoomOf(conn)
	if !ok || (p.RoomID != "" && domain.RoomID(p.RoomID) != roomID) || (p.UserID != "" && domain.UserID(p.UserID) != uid) {
		log.Warn().Str("module", "signal").Str("client", conn.token).Str("room", p.RoomID).Msg("leave by non-member")
		ctl.sendError(conn, "not_joined")
		return
	}
	if peer := conn.setPeer(nil); peer != nil {
		peer.Close()
	}

	log.Info().Str("module", "signal").Str("room", string(roomID)).Str("user", string(uid)).Msg("leave")
	ctl.Orch.Leave(roomID, uid)
	ctl.sendJSON(conn, map[string]any{
		"type":   "left",
		"roomId": roomID,
	})
}
