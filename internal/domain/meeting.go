package domain

import "time"

type ArtifactKind string

const (
	ArtifactNotes          ArtifactKind = "notes"
	ArtifactSummary        ArtifactKind = "summary"
	ArtifactTranscriptDocx ArtifactKind = "transcript_docx"
	ArtifactNotesDocx      ArtifactKind = "notes_docx"
	ArtifactSummaryDocx    ArtifactKind = "summary_docx"
)

func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch k := ArtifactKind(s); k {
	case ArtifactNotes, ArtifactSummary, ArtifactTranscriptDocx, ArtifactNotesDocx, ArtifactSummaryDocx:
		return k, nil
	}
	return "", invalid("unknown artifact kind " + s)
}

// IsDocument reports whether the kind renders to a binary document.
func (k ArtifactKind) IsDocument() bool {
	switch k {
	case ArtifactTranscriptDocx, ArtifactNotesDocx, ArtifactSummaryDocx:
		return true
	}
	return false
}

type MeetingMetadata struct {
	StartedAt time.Time `json:"startedAt"`
	Roster    []string  `json:"roster"`
	Language  string    `json:"language"`
}

// MeetingPayload is everything a renderer needs to build an artifact.
type MeetingPayload struct {
	RoomID   RoomID            `json:"roomId"`
	Segments []TranscriptEntry `json:"segments"`
	Roster   []Participant     `json:"roster"`
	Meeting  MeetingMetadata   `json:"meeting"`
}

// Document is a rendered artifact.
type Document struct {
	Kind        ArtifactKind
	ContentType string
	Filename    string
	Body        []byte
}
