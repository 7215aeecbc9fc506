package signal

import "github.com/dkeye/Roomscribe/internal/domain"

func (ctl *SignalWSController) handleWhoAmI(
	conn *WsSignalConn,
) {
	resp := struct {
		Type   string        `json:"type"`
		Client string        `json:"client"`
		UserID domain.UserID `json:"userId,omitempty"`
		RoomID domain.RoomID `json:"roomId,omitempty"`
	}{
		Type:   "whoami",
		Client: conn.token,
	}
	if roomID, uid, ok := ctl.Orch.Registry.RoomOf(conn); ok {
		resp.RoomID = roomID
		resp.UserID = uid
	}
	ctl.sendJSON(conn, resp)
}
