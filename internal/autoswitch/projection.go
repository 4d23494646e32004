package autoswitch

import (
	"fmt"
	"strconv"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

// Tone classifies a projected status for presentation.
type Tone int

const (
	ToneNeutral Tone = iota
	TonePositive
	ToneCautionary
)

// Projection is the display-ready view of a monitor status.
type Projection struct {
	Label  string
	Tone   Tone
	Detail string
}

// Project derives the presentation view from a raw monitor status. It
// is pure and recomputed on every read; unknown states render neutral.
func Project(st model.AutoSwitchStatus) Projection {
	switch st.State {
	case model.StateRunning:
		return Projection{
			Label:  "running",
			Tone:   TonePositive,
			Detail: "balance " + strconv.FormatFloat(st.LastBalance, 'f', -1, 64),
		}
	case model.StateCooldown:
		return Projection{
			Label:  "cooldown",
			Tone:   ToneCautionary,
			Detail: fmt.Sprintf("%ds remaining", st.CooldownRemaining),
		}
	case model.StateStopped:
		return Projection{Label: "stopped", Tone: ToneNeutral}
	default:
		return Projection{Label: string(st.State), Tone: ToneNeutral}
	}
}
