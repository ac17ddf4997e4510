package collision

import "github.com/banshee-data/vessel.report/internal/vessel"

// Handler receives detected events. The host decides whether to pause,
// notify or ignore.
type Handler interface {
	// OnCollision is called with the other vessel, where and when the
	// collision is predicted, and the other vessel's heading there (rad).
	OnCollision(vesselID string, pos vessel.Position, heading, t float64)

	// OnGrounding is called with the grounding vessel and its pose.
	OnGrounding(vesselID string, pos vessel.Position, orientation vessel.Eta)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Collision func(vesselID string, pos vessel.Position, heading, t float64)
	Grounding func(vesselID string, pos vessel.Position, orientation vessel.Eta)
}

func (h HandlerFuncs) OnCollision(vesselID string, pos vessel.Position, heading, t float64) {
	if h.Collision != nil {
		h.Collision(vesselID, pos, heading, t)
	}
}

func (h HandlerFuncs) OnGrounding(vesselID string, pos vessel.Position, orientation vessel.Eta) {
	if h.Grounding != nil {
		h.Grounding(vesselID, pos, orientation)
	}
}
