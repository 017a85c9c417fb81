package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session pairs exactly two participants.
// First and Second are kept in lexicographic order so two sessions over the same pair compare equal.
type Session struct {
	ID        uuid.UUID
	First     string
	Second    string
	StartedAt time.Time
	EndedAt   *time.Time
	Active    bool
}

func NewSession(a, b string, at time.Time) Session {
	if b < a {
		a, b = b, a
	}
	return Session{
		ID:        uuid.New(),
		First:     a,
		Second:    b,
		StartedAt: at,
		Active:    true,
	}
}

func (s Session) Contains(participantID string) bool {
	return s.First == participantID || s.Second == participantID
}

// PartnerOf returns the other member, or an empty string if participantID is not a member.
func (s Session) PartnerOf(participantID string) string {
	switch participantID {
	case s.First:
		return s.Second
	case s.Second:
		return s.First
	default:
		return ""
	}
}

func (s Session) Members() [2]string {
	return [2]string{s.First, s.Second}
}

// End marks the session inactive. Ending an ended session keeps the first EndedAt.
func (s Session) End(at time.Time) Session {
	if !s.Active {
		return s
	}
	s.Active = false
	s.EndedAt = &at
	return s
}
