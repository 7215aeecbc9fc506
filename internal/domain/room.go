package domain

type RoomID string

const DefaultRoomID RoomID = "main"

const MaxRoomIDLen = 64

// RoomState is the lifecycle state of a room.
type RoomState int32

const (
	RoomEmpty RoomState = iota
	RoomActive
	RoomDraining
	RoomReaped
)

func (s RoomState) String() string {
	switch s {
	case RoomEmpty:
		return "empty"
	case RoomActive:
		return "active"
	case RoomDraining:
		return "draining"
	case RoomReaped:
		return "reaped"
	default:
		return "unknown"
	}
}

func (s RoomState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NormalizeRoomID applies the default room and the length limit.
func NormalizeRoomID(raw string) (RoomID, error) {
	if raw == "" {
		return DefaultRoomID, nil
	}
	if len(raw) > MaxRoomIDLen {
		return "", invalid("roomId too long")
	}
	return RoomID(raw), nil
}
