package services

import (
	"context"
	"fmt"
	"log/slog"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"stranger-chat/mocks"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRelay_Rejects_Invalid_Content(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.paired(t, "alice", "bob")

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"empty", "", errors.ErrEmptyContent},
		{"whitespace only", " \n\t ", errors.ErrEmptyContent},
		{"too long", strings.Repeat("a", 33), errors.ErrContentTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, err := f.relay.Deliver(context.Background(), "alice", tt.content)
			req.ErrorIs(err, tt.want)
		})
	}
}

func TestRelay_Counts_Characters_Not_Bytes(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, time.Minute)
	f.paired(t, "alice", "bob")

	// 32 runes but 64 bytes
	message, err := f.relay.Deliver(context.Background(), "alice", strings.Repeat("é", 32))
	req.NoError(err)
	req.Equal("bob", message.RecipientID)
}

func TestRelay_Requires_Session(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, time.Minute)
	f.register(t, "alice")

	_, err := f.relay.Deliver(context.Background(), "alice", "hello?")
	req.ErrorIs(err, errors.ErrNotInSession)
	req.False(errors.IsNoOp(err))
	req.Empty(f.notifier.For("alice"))
}

func TestRelay_Delivers_To_Partner(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, time.Minute)
	session := f.paired(t, "alice", "bob")

	message, err := f.relay.Deliver(ctx, "alice", "hello")

	req.NoError(err)
	req.Equal(session.ID, message.SessionID)
	req.Equal("alice", message.SenderID)
	req.Equal("bob", message.RecipientID)

	history, err := f.store.GetMessages(ctx, session.ID)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(message.ID, history[0].ID)

	received := f.notifier.For("bob")
	last := received[len(received)-1]
	req.Equal(domain.KindMessage, last.Kind)
	req.Equal("hello", last.Content)
	req.NotContains(f.notifier.Kinds("alice"), domain.KindMessage)
}

func TestRelay_Keeps_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, time.Minute)
	session := f.paired(t, "alice", "bob")

	for i := 0; i < 10; i++ {
		sender := "alice"
		if i%3 == 0 {
			sender = "bob"
		}
		_, err := f.relay.Deliver(ctx, sender, fmt.Sprintf("#%d", i))
		req.NoError(err)
	}

	history, err := f.store.GetMessages(ctx, session.ID)
	req.NoError(err)
	req.Len(history, 10)
	for i, m := range history {
		req.Equal(fmt.Sprintf("#%d", i), m.Content)
	}
}

func TestRelay_Inactive_Partner_Is_Unreachable(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, time.Minute)
	session := f.paired(t, "alice", "bob")
	req.NoError(f.store.SetActivity(ctx, "bob", false))

	_, err := f.relay.Deliver(ctx, "alice", "anyone there?")

	req.ErrorIs(err, errors.ErrPartnerUnreachable)
	req.True(errors.IsInformational(err))
	history, err := f.store.GetMessages(ctx, session.ID)
	req.NoError(err)
	req.Empty(history)

	// The relay itself leaves the session alone
	active, err := f.store.GetActiveByParticipant(ctx, "alice")
	req.NoError(err)
	req.Equal(session.ID, active.ID)
}

func TestRelay_Storage_Failure_Skips_Notification(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	participants := mocks.NewMockIParticipantRepository(ctrl)
	sessions := mocks.NewMockISessionRepository(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	session := domain.NewSession("alice", "bob", time.Now().UTC())

	sessions.EXPECT().GetActiveByParticipant(gomock.Any(), "alice").Return(session, nil)
	participants.EXPECT().Get(gomock.Any(), "bob").Return(domain.Participant{ID: "bob", Active: true}, nil)
	sessions.EXPECT().
		AppendMessage(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("%w: disk full", errors.ErrStorageUnavailable))
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(0)

	relay := NewRelay(slog.Default(), participants, sessions, notifier, newMetrics(), 0)
	_, err := relay.Deliver(ctx, "alice", "hello")

	req.ErrorIs(err, errors.ErrStorageUnavailable)
}

func TestRelay_Session_Ended_Before_Append_Skips_Notification(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// Given a session that bob ends after alice's relay looked it up
	participants := mocks.NewMockIParticipantRepository(ctrl)
	sessions := mocks.NewMockISessionRepository(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	session := domain.NewSession("alice", "bob", time.Now().UTC())

	sessions.EXPECT().GetActiveByParticipant(gomock.Any(), "alice").Return(session, nil)
	participants.EXPECT().Get(gomock.Any(), "bob").Return(domain.Participant{ID: "bob", Active: true}, nil)
	sessions.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).Return(errors.ErrNotInSession)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(0)

	// When alice's message reaches the store
	relay := NewRelay(slog.Default(), participants, sessions, notifier, newMetrics(), 0)
	_, err := relay.Deliver(ctx, "alice", "too late")

	// Then bob hears nothing after partner_left
	req.ErrorIs(err, errors.ErrNotInSession)
}

func TestRelay_Ended_Session_Keeps_Log_Closed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, time.Minute)
	session := f.paired(t, "alice", "bob")

	// Given a chat that bob has ended
	_, changed, err := f.store.End(ctx, session.ID)
	req.NoError(err)
	req.True(changed)

	// When a message computed against the old session is stored directly
	late := domain.NewChatMessage(session, "alice", "late", time.Now().UTC())
	err = f.store.AppendMessage(ctx, late)

	// Then the store refuses it and nothing was delivered to bob
	req.ErrorIs(err, errors.ErrNotInSession)
	messages, err := f.store.GetMessages(ctx, session.ID)
	req.NoError(err)
	req.Empty(messages)
	req.NotContains(f.notifier.Kinds("bob"), domain.KindMessage)
}
