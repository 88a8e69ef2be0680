package turn

import (
	"time"

	"github.com/google/uuid"
)

// Turn is the ephemeral aggregate for one student interaction. It is
// created when the controller leaves idle and fully discarded when the
// controller returns to idle; nothing here survives the interaction.
type Turn struct {
	ID         string
	StartedAt  time.Time
	Audio      []byte
	Transcript string
	Reply      string
}

func NewTurn() *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
}
