package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the read model returned to the dispatcher.
type Status struct {
	State        State
	SessionID    *uuid.UUID
	Active       bool
	RegisteredAt time.Time
	LastActive   time.Time
}

// Outcome describes a request that succeeded without failing but may not have changed anything.
type Outcome string

const (
	OutcomeSearching        Outcome = "searching"
	OutcomeAlreadySearching Outcome = "already_searching"
	OutcomeSearchCancelled  Outcome = "search_cancelled"
	OutcomeNotSearching     Outcome = "not_searching"
	OutcomeEnded            Outcome = "ended"
	OutcomeNoSession        Outcome = "no_session"
)

// Changed is false for the no-op outcomes.
func (o Outcome) Changed() bool {
	switch o {
	case OutcomeAlreadySearching, OutcomeNotSearching, OutcomeNoSession:
		return false
	default:
		return true
	}
}
