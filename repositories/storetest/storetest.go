// Package storetest holds the behaviour every contract.IStore implementation must share.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"stranger-chat/contract"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) contract.IStore

func Run(t *testing.T, newStore Factory) {
	t.Run("Create and Get", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("GetByState skips inactive", func(t *testing.T) { testGetByState(t, newStore(t)) })
	t.Run("TransitionState compare and set", func(t *testing.T) { testTransitionState(t, newStore(t)) })
	t.Run("Claim pairs two searchers", func(t *testing.T) { testClaim(t, newStore(t)) })
	t.Run("Claim rejects busy or idle participants", func(t *testing.T) { testClaimConflict(t, newStore(t)) })
	t.Run("Concurrent claims create one session", func(t *testing.T) { testConcurrentClaims(t, newStore(t)) })
	t.Run("End is idempotent", func(t *testing.T) { testEnd(t, newStore(t)) })
	t.Run("Messages keep insertion order", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("Append after End is rejected", func(t *testing.T) { testAppendAfterEnd(t, newStore(t)) })
	t.Run("Claim orders identities bytewise", func(t *testing.T) { testClaimMixedCase(t, newStore(t)) })
}

func register(t *testing.T, store contract.IStore, state domain.State, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		_, err := store.Create(ctx, id, domain.Profile{FirstName: id})
		require.NoError(t, err)
		if state != domain.Idle {
			require.NoError(t, store.SetState(ctx, id, state))
		}
	}
}

func testCreateAndGet(t *testing.T, store contract.IStore) {
	req := require.New(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "alice", domain.Profile{Username: "al", FirstName: "Alice"})
	req.NoError(err)
	req.Equal(domain.Idle, created.State)
	req.True(created.Active)

	fetched, err := store.Get(ctx, "alice")
	req.NoError(err)
	req.Equal("alice", fetched.ID)
	req.Equal("Alice", fetched.Profile.FirstName)
	req.Equal("al", fetched.Profile.Username)
	req.Equal(domain.Idle, fetched.State)

	_, err = store.Create(ctx, "alice", domain.Profile{})
	req.ErrorIs(err, errors.ErrAlreadyExists)

	_, err = store.Get(ctx, "nobody")
	req.ErrorIs(err, errors.ErrParticipantNotFound)
	req.ErrorIs(store.SetState(ctx, "nobody", domain.Searching), errors.ErrParticipantNotFound)
	req.ErrorIs(store.SetActivity(ctx, "nobody", false), errors.ErrParticipantNotFound)

	req.NoError(store.SetActivity(ctx, "alice", false))
	fetched, err = store.Get(ctx, "alice")
	req.NoError(err)
	req.False(fetched.Active)
	req.False(fetched.LastActive.Before(created.LastActive))
}

func testGetByState(t *testing.T, store contract.IStore) {
	req := require.New(t)
	ctx := context.Background()
	register(t, store, domain.Searching, "alice", "bob", "carol")
	register(t, store, domain.Idle, "dave")
	req.NoError(store.SetActivity(ctx, "carol", false))

	searching, err := store.GetByState(ctx, domain.Searching)
	req.NoError(err)
	ids := lo.Map(searching, func(p domain.Participant, _ int) string { return p.ID })
	sort.Strings(ids)
	req.Equal([]string{"alice", "bob"}, ids)

	idle, err := store.GetByState(ctx, domain.Idle)
	req.NoError(err)
	req.Len(idle, 1)
	req.Equal("dave", idle[0].ID)

	// Moving a participant removes it from the previous state
	req.NoError(store.SetState(ctx, "alice", domain.Idle))
	searching, err = store.GetByState(ctx, domain.Searching)
	req.NoError(err)
	req.Len(searching, 1)
	req.Equal("bob", searching[0].ID)
}

func testTransitionState(t *testing.T, store contract.IStore) {
	req := require.New(t)
	ctx := context.Background()
	register(t, store, domain.Idle, "alice")

	req.NoError(store.TransitionState(ctx, "alice", domain.Idle, domain.Searching))
	req.ErrorIs(store.TransitionState(ctx, "alice", domain.Idle, domain.Searching), errors.ErrStateConflict)
	req.ErrorIs(store.TransitionState(ctx, "nobody", domain.Idle, domain.Searching), errors.ErrParticipantNotFound)

	p, err := store.Get(ctx, "alice")
	req.NoError(err)
	req.Equal(domain.Searching, p.State)
}

func testClaim(t *testing.T, store contract.IStore) {
	req := require.New(t)
	ctx := context.Background()
	register(t, store, domain.Searching, "bob", "alice")

	session, err := store.Claim(ctx, "bob", "alice")
	req.NoError(err)
	req.True(session.Active)
	req.Equal("alice", session.First)
	req.Equal("bob", session.Second)

	for _, id := range []string{"alice", "bob"} {
		p, err := store.Get(ctx, id)
		req.NoError(err)
		req.Equal(domain.Chatting, p.State)

		active, err := store.GetActiveByParticipant(ctx, id)
		req.NoError(err)
		req.Equal(session.ID, active.ID)
	}

	stored, err := store.GetSession(ctx, session.ID)
	req.NoError(err)
	req.Equal(session.Members(), stored.Members())

	_, err = store.GetSession(ctx, uuid.New())
	req.ErrorIs(err, errors.ErrSessionNotFound)
}

func testClaimConflict(t *testing.T, store contract.IStore) {
	req := require.New(t)
	ctx := context.Background()
	register(t, store, domain.Searching, "alice", "bob", "carol")
	register(t, store, domain.Idle, "dave")

	_, err := store.Claim(ctx, "alice", "bob")
	req.NoError(err)

	// Given alice is already paired
	_, err = store.Claim(ctx, "carol", "alice")
	req.ErrorIs(err, errors.ErrClaimConflict)

	// Given dave is not searching
	_, err = store.Claim(ctx, "carol", "dave")
	req.ErrorIs(err, errors.ErrClaimConflict)

	// Given carol became unreachable
	register(t, store, domain.Searching, "erin")
	req.NoError(store.SetActivity(ctx, "carol", false))
	_, err = store.Claim(ctx, "erin", "carol")
	req.ErrorIs(err, errors.ErrClaimConflict)

	// A failed claim leaves states untouched
	p, err := store.Get(ctx, "erin")
	req.NoError(err)
	req.Equal(domain.Searching, p.State)
	_, err = store.GetActiveByParticipant(ctx, "erin")
	req.ErrorIs(err, errors.ErrNotInSession)
}

func testConcurrentClaims(t *testing.T, store contract.IStore) {
	req := require.New(t)
	ctx := context.Background()
	const n = 8
	ids := lo.Times(n, func(i int) string { return fmt.Sprintf("p%02d", i) })
	register(t, store, domain.Searching, ids...)

	// Every participant tries to claim every other one at the same time
	var wg sync.WaitGroup
	var mu sync.Mutex
	var sessions []domain.Session
	var unexpected []error
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			wg.Add(1)
			go func(a, b string) {
				defer wg.Done()
				session, err := store.Claim(ctx, a, b)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					sessions = append(sessions, session)
				case !errors.Is(err, errors.ErrClaimConflict):
					unexpected = append(unexpected, err)
				}
			}(ids[i], ids[j])
		}
	}
	wg.Wait()
	req.Empty(unexpected)

	// Then nobody is in two sessions and every Chatting participant has exactly one
	seen := map[string]int{}
	for _, s := range sessions {
		seen[s.First]++
		seen[s.Second]++
	}
	for _, id := range ids {
		p, err := store.Get(ctx, id)
		req.NoError(err)
		req.LessOrEqual(seen[id], 1, id)
		if seen[id] == 1 {
			req.Equal(domain.Chatting, p.State, id)
		} else {
			req.Equal(domain.Searching, p.State, id)
		}
	}
	req.NotEmpty(sessions)
}

func testEnd(t *testing.T, store contract.IStore) {
	req := require.New(t)
	ctx := context.Background()
	register(t, store, domain.Searching, "alice", "bob")

	session, err := store.Claim(ctx, "alice", "bob")
	req.NoError(err)

	ended, changed, err := store.End(ctx, session.ID)
	req.NoError(err)
	req.True(changed)
	req.False(ended.Active)
	req.NotNil(ended.EndedAt)

	for _, id := range []string{"alice", "bob"} {
		p, err := store.Get(ctx, id)
		req.NoError(err)
		req.Equal(domain.Idle, p.State)
		_, err = store.GetActiveByParticipant(ctx, id)
		req.ErrorIs(err, errors.ErrNotInSession)
	}

	// Ending again reports no change
	_, changed, err = store.End(ctx, session.ID)
	req.NoError(err)
	req.False(changed)

	_, _, err = store.End(ctx, uuid.New())
	req.ErrorIs(err, errors.ErrSessionNotFound)

	// Both can be paired again
	req.NoError(store.SetState(ctx, "alice", domain.Searching))
	req.NoError(store.SetState(ctx, "bob", domain.Searching))
	second, err := store.Claim(ctx, "alice", "bob")
	req.NoError(err)
	req.NotEqual(session.ID, second.ID)
}

func testMessages(t *testing.T, store contract.IStore) {
	req := require.New(t)
	ctx := context.Background()
	register(t, store, domain.Searching, "alice", "bob")
	session, err := store.Claim(ctx, "alice", "bob")
	req.NoError(err)

	var sent []domain.ChatMessage
	for i := 0; i < 12; i++ {
		sender := lo.Ternary(i%2 == 0, "alice", "bob")
		message := domain.NewChatMessage(session, sender, fmt.Sprintf("message %d", i), session.StartedAt)
		req.NoError(store.AppendMessage(ctx, message))
		sent = append(sent, message)
	}

	messages, err := store.GetMessages(ctx, session.ID)
	req.NoError(err)
	req.Len(messages, len(sent))
	for i := range sent {
		req.Equal(sent[i].ID, messages[i].ID)
		req.Equal(sent[i].Content, messages[i].Content)
		req.Equal(sent[i].SenderID, messages[i].SenderID)
		req.Equal(sent[i].RecipientID, messages[i].RecipientID)
	}

	orphan := domain.NewChatMessage(domain.NewSession("x", "y", session.StartedAt), "x", "lost", session.StartedAt)
	req.ErrorIs(store.AppendMessage(ctx, orphan), errors.ErrSessionNotFound)

	_, err = store.GetMessages(ctx, uuid.New())
	req.ErrorIs(err, errors.ErrSessionNotFound)
}

func testAppendAfterEnd(t *testing.T, store contract.IStore) {
	req := require.New(t)
	ctx := context.Background()

	// Given a session with one message that was then ended
	register(t, store, domain.Searching, "alice", "bob")
	session, err := store.Claim(ctx, "alice", "bob")
	req.NoError(err)
	req.NoError(store.AppendMessage(ctx, domain.NewChatMessage(session, "alice", "hi", session.StartedAt)))
	_, changed, err := store.End(ctx, session.ID)
	req.NoError(err)
	req.True(changed)

	// When a message still addressed to that session is appended
	late := domain.NewChatMessage(session, "bob", "late", session.StartedAt)
	err = store.AppendMessage(ctx, late)

	// Then it is refused and the log is unchanged
	req.ErrorIs(err, errors.ErrNotInSession)
	messages, err := store.GetMessages(ctx, session.ID)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("hi", messages[0].Content)
}

func testClaimMixedCase(t *testing.T, store contract.IStore) {
	req := require.New(t)
	ctx := context.Background()

	// Given two searchers whose ids sort differently bytewise than under a locale collation
	register(t, store, domain.Searching, "a", "B")

	// When they are claimed together
	session, err := store.Claim(ctx, "a", "B")

	// Then the session is stored with uppercase first, as Go compares strings
	req.NoError(err)
	req.Equal("B", session.First)
	req.Equal("a", session.Second)

	stored, err := store.GetSession(ctx, session.ID)
	req.NoError(err)
	req.Equal(session.Members(), stored.Members())

	message := domain.NewChatMessage(session, "a", "hello", session.StartedAt)
	req.NoError(store.AppendMessage(ctx, message))
	req.Equal("B", message.RecipientID)
}
