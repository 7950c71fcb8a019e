package core

import (
	"github.com/google/uuid"

	"pkt.systems/jrepl/schema"
)

// newInteractionID returns a time-ordered ID so interactions sort by start.
func newInteractionID() schema.InteractionID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return schema.InteractionID(id.String())
}
