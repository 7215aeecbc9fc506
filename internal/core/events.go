package core

import (
	"encoding/json"

	"github.com/dkeye/Roomscribe/internal/domain"
)

const (
	EventParticipants      = "participants"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventNewTranscript     = "new_transcript"
)

type ParticipantsEvent struct {
	Type string `json:"type"`
	RosterSnapshot
}

type ParticipantEvent struct {
	Type        string        `json:"type"`
	RoomID      domain.RoomID `json:"roomId"`
	Participant MemberDTO     `json:"participant"`
}

type TranscriptEvent struct {
	Type  string                 `json:"type"`
	Entry domain.TranscriptEntry `json:"entry"`
}

// EncodeJSON marshals an outbound event into a frame.
func EncodeJSON(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}

func fanout(conns []SignalConnection, frames ...Frame) PublishResult {
	res := PublishResult{}
	for _, c := range conns {
		ok := true
		for _, f := range frames {
			if err := c.TrySend(f); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			res.Dropped = append(res.Dropped, c)
			continue
		}
		res.SendTo++
	}
	return res
}
