package app

import "github.com/dkeye/Roomscribe/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackPressure(room core.RoomService, conn core.SignalConnection) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room core.RoomService, conn core.SignalConnection) BackpressureAction {
	return KickMember
}

// applyPolicy closes kicked connections; their read loops then report the
// disconnect through the registry.
func applyPolicy(p Policy, room core.RoomService, res core.PublishResult) {
	if p == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch p.OnBackPressure(room, slow) {
		case KickMember:
			slow.Close()
		case MarkSlow, DropFrame, NoAction:
		}
	}
}
