package domain

import "fmt"

// Member represents participant's meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	Participant
	SpeakerLabel string `json:"speakerLabel"`
}

func NewMember(p Participant, label string) *Member {
	return &Member{Participant: p, SpeakerLabel: label}
}

// SpeakerLabel numbers speakers in order of their first join to a room.
func SpeakerLabel(n int) string {
	return fmt.Sprintf("Speaker %d", n)
}
