package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput             = errors.New("invalid input")
	ErrNotJoined                = errors.New("not joined")
	ErrTranscriptionFailed      = errors.New("transcription failed")
	ErrArtifactGenerationFailed = errors.New("artifact generation failed")
	ErrTransportFailure         = errors.New("transport failure")

	ErrRoomNotFound = errors.New("room not found")
	ErrRoomReaped   = errors.New("room reaped")
	ErrNoTranscript = errors.New("no transcript for room")
	ErrOverloaded   = errors.New("ingestion queue full")
	ErrRateLimited  = errors.New("rate limited")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
