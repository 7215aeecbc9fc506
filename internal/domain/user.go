// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 64
)

type UserID string

// Participant is one connected user identity within a room.
type Participant struct {
	ID       UserID    `json:"userId"`
	Name     string    `json:"userName"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewParticipant validates client supplied identity before it reaches a room.
func NewParticipant(id UserID, name string) (*Participant, error) {
	if err := ValidateUserID(id); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("userName is empty")
	}
	if utf8.RuneCountInString(name) > MaxUsernameLen {
		return nil, invalid("userName too long")
	}
	return &Participant{ID: id, Name: name, JoinedAt: time.Now().UTC()}, nil
}

func ValidateUserID(id UserID) error {
	if id == "" {
		return invalid("userId is empty")
	}
	if len(id) > MaxUserIDLen {
		return invalid("userId too long")
	}
	return nil
}
