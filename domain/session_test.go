package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSession_Orders_Members(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()

	// When the pair is given in both orders
	s1 := NewSession("bob", "alice", at)
	s2 := NewSession("alice", "bob", at)

	// Then members are stored in the same order
	req.Equal("alice", s1.First)
	req.Equal("bob", s1.Second)
	req.Equal(s1.Members(), s2.Members())
	req.True(s1.Active)
	req.Nil(s1.EndedAt)
	req.NotEqual(s1.ID, s2.ID)
}

func TestSession_PartnerOf(t *testing.T) {
	req := require.New(t)
	session := NewSession("alice", "bob", time.Now().UTC())

	req.Equal("bob", session.PartnerOf("alice"))
	req.Equal("alice", session.PartnerOf("bob"))
	req.Empty(session.PartnerOf("carol"))
	req.True(session.Contains("alice"))
	req.False(session.Contains("carol"))
}

func TestSession_End_Keeps_First_End_Time(t *testing.T) {
	req := require.New(t)
	start := time.Now().UTC()
	session := NewSession("alice", "bob", start)

	ended := session.End(start.Add(time.Minute))
	req.False(ended.Active)
	req.NotNil(ended.EndedAt)
	req.Equal(start.Add(time.Minute), *ended.EndedAt)

	// Ending twice changes nothing
	again := ended.End(start.Add(time.Hour))
	req.Equal(ended, again)

	// The original value is untouched
	req.True(session.Active)
}

func TestNewChatMessage_Targets_Partner(t *testing.T) {
	req := require.New(t)
	session := NewSession("alice", "bob", time.Now().UTC())

	message := NewChatMessage(session, "bob", "hi", time.Now().UTC())
	req.Equal(session.ID, message.SessionID)
	req.Equal("bob", message.SenderID)
	req.Equal("alice", message.RecipientID)
	req.Equal("hi", message.Content)
}

func TestOutcome_Changed(t *testing.T) {
	req := require.New(t)
	req.True(OutcomeSearching.Changed())
	req.True(OutcomeSearchCancelled.Changed())
	req.True(OutcomeEnded.Changed())
	req.False(OutcomeAlreadySearching.Changed())
	req.False(OutcomeNotSearching.Changed())
	req.False(OutcomeNoSession.Changed())
}

func TestParticipant_New_Is_Idle_And_Active(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()
	p := NewParticipant("42", Profile{Username: "neo"}, at)

	req.Equal(Idle, p.State)
	req.True(p.Active)
	req.Equal(at, p.RegisteredAt)
	req.Equal(at, p.LastActive)
	req.True(p.State.Valid())
	req.False(State("dancing").Valid())
}
