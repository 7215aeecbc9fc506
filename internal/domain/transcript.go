package domain

import "time"

// TranscriptEntry is one ordered, attributed unit of recognized text.
// Seq is assigned by the room log at append time and never changes.
type TranscriptEntry struct {
	RoomID    RoomID    `json:"roomId"`
	Seq       uint64    `json:"seq"`
	UserID    UserID    `json:"userId"`
	UserName  string    `json:"userName"`
	Speaker   string    `json:"speakerLabel"`
	Text      string    `json:"text"`
	ChunkSeq  uint64    `json:"chunkSeq"`
	Dropped   bool      `json:"dropped,omitempty"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Timestamp time.Time `json:"timestamp"`
}
