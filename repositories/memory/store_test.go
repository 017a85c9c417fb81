package memory

import (
	"context"
	"stranger-chat/contract"
	"stranger-chat/domain"
	"stranger-chat/repositories/storetest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) contract.IStore {
		return NewStore()
	})
}

func TestStore_GetMessages_Returns_A_Copy(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewStore()
	for _, id := range []string{"alice", "bob"} {
		_, err := store.Create(ctx, id, domain.Profile{})
		req.NoError(err)
		req.NoError(store.SetState(ctx, id, domain.Searching))
	}
	session, err := store.Claim(ctx, "alice", "bob")
	req.NoError(err)
	req.NoError(store.AppendMessage(ctx, domain.NewChatMessage(session, "alice", "hello", session.StartedAt)))

	messages, err := store.GetMessages(ctx, session.ID)
	req.NoError(err)
	messages[0].Content = "tampered"

	again, err := store.GetMessages(ctx, session.ID)
	req.NoError(err)
	req.Equal("hello", again[0].Content)
}
