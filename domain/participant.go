// Package domain contains core concepts of the chat system.
// This file defines Participant entities and their conversational state.
// No runtime, network, or storage logic should be added here.
package domain

import "time"

type State string

const (
	Idle      State = "idle"
	Searching State = "searching"
	Chatting  State = "chatting"
)

func (s State) String() string {
	return string(s)
}

func (s State) Valid() bool {
	switch s {
	case Idle, Searching, Chatting:
		return true
	default:
		return false
	}
}

// Profile is what the platform tells us about a user.
// It is never disclosed to a chat partner.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

// Participant is identified by the opaque platform identity.
// State is Chatting if and only if the participant belongs to exactly one active Session.
type Participant struct {
	ID           string
	Profile      Profile
	State        State
	Active       bool
	RegisteredAt time.Time
	LastActive   time.Time
}

func NewParticipant(id string, profile Profile, at time.Time) Participant {
	return Participant{
		ID:           id,
		Profile:      profile,
		State:        Idle,
		Active:       true,
		RegisteredAt: at,
		LastActive:   at,
	}
}

// DisplayName is only used for logs.
func (p Participant) DisplayName() string {
	if p.Profile.FirstName != "" {
		return p.Profile.FirstName
	}
	return p.ID
}
