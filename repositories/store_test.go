package repositories

import (
	"context"
	"log/slog"
	"stranger-chat/contract"
	"stranger-chat/domain"
	"stranger-chat/repositories/storetest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	store := NewBadgerStore(db, slog.Default())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) contract.IStore {
		return newTestStore(t)
	})
}

func TestBadgerStore_Survives_Reopen(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	store, err := OpenBadgerStore(ctx, dir, slog.Default())
	req.NoError(err)
	for _, id := range []string{"alice", "bob"} {
		_, err = store.Create(ctx, id, domain.Profile{FirstName: id})
		req.NoError(err)
		req.NoError(store.SetState(ctx, id, domain.Searching))
	}
	session, err := store.Claim(ctx, "alice", "bob")
	req.NoError(err)
	req.NoError(store.AppendMessage(ctx, domain.NewChatMessage(session, "alice", "hello", session.StartedAt)))
	req.NoError(store.Close())

	// When the database is opened again
	reopened, err := OpenBadgerStore(ctx, dir, slog.Default())
	req.NoError(err)
	defer reopened.Close()

	// Then the pairing and its log are still there
	active, err := reopened.GetActiveByParticipant(ctx, "bob")
	req.NoError(err)
	req.Equal(session.ID, active.ID)

	messages, err := reopened.GetMessages(ctx, session.ID)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("hello", messages[0].Content)

	chatting, err := reopened.GetByState(ctx, domain.Chatting)
	req.NoError(err)
	req.Len(chatting, 2)
}

func TestBadgerStore_Ping_After_Close(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	store := NewBadgerStore(db, slog.Default())

	req.NoError(store.Ping(context.Background()))
	req.NoError(store.Close())
	req.Error(store.Ping(context.Background()))
}

func TestInspectMapper_Decodes_Participant(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Create(ctx, "alice", domain.Profile{})
	req.NoError(err)

	var raw []byte
	req.NoError(store.DB().View(func(txn *badger.Txn) error {
		item, err := txn.Get(participantKey("alice"))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	}))

	row := InspectMapper("participant:alice", raw)
	req.Equal("PARTICIPANT", row.Type)
	req.Contains(row.Detail, "idle")
}
