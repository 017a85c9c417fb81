package services

import (
	"context"
	"fmt"
	"log/slog"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"stranger-chat/mocks"
	"stranger-chat/repositories/memory"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMatchmaker_Lone_Searcher_Waits_For_Retry(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, time.Minute)
	f.searching(t, "alice")

	session, err := f.matchmaker.FindPartner(context.Background(), "alice")

	req.NoError(err)
	req.Nil(session)
	req.True(f.scheduler.Pending("alice"))
	req.Equal(domain.Searching, f.state(t, "alice"))
}

func TestMatchmaker_Pairs_Two_Searchers(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, time.Minute)
	f.searching(t, "alice", "bob")

	session, err := f.matchmaker.FindPartner(context.Background(), "bob")

	req.NoError(err)
	req.NotNil(session)
	req.Equal([2]string{"alice", "bob"}, session.Members())
	req.Equal(domain.Chatting, f.state(t, "alice"))
	req.Equal(domain.Chatting, f.state(t, "bob"))
	req.Equal([]domain.NotificationKind{domain.KindPartnerFound}, f.notifier.Kinds("alice"))
	req.Equal([]domain.NotificationKind{domain.KindPartnerFound}, f.notifier.Kinds("bob"))
	req.NotContains(f.notifier.For("alice")[0].Content, "bob")
	req.False(f.scheduler.Pending("alice"))
	req.False(f.scheduler.Pending("bob"))
}

func TestMatchmaker_Uses_Picker(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, time.Minute)
	f.searching(t, "alice", "bob", "carol")

	var offered int
	f.matchmaker.WithPicker(func(n int) int {
		offered = n
		return 0
	})
	session, err := f.matchmaker.FindPartner(context.Background(), "carol")

	req.NoError(err)
	req.NotNil(session)
	req.Equal(2, offered)
	req.True(session.Contains("carol"))
}

func TestMatchmaker_Stale_Retry_Stops_Silently(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, time.Minute)
	f.searching(t, "alice")

	_, err := f.matchmaker.FindPartner(ctx, "alice")
	req.NoError(err)
	req.True(f.scheduler.Pending("alice"))

	// Given alice stopped searching behind the matchmaker's back
	req.NoError(f.store.SetState(ctx, "alice", domain.Idle))

	session, err := f.matchmaker.FindPartner(ctx, "alice")
	req.NoError(err)
	req.Nil(session)
	req.False(f.scheduler.Pending("alice"))
	req.Equal(domain.Idle, f.state(t, "alice"))
}

func TestMatchmaker_Inactive_Candidates_Are_Skipped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, time.Minute)
	f.searching(t, "alice", "bob")
	req.NoError(f.store.SetActivity(ctx, "bob", false))

	session, err := f.matchmaker.FindPartner(ctx, "alice")
	req.NoError(err)
	req.Nil(session)
	req.True(f.scheduler.Pending("alice"))
}

func TestMatchmaker_Retry_Pairs_Later(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, 20*time.Millisecond)
	f.searching(t, "alice")

	_, err := f.matchmaker.FindPartner(ctx, "alice")
	req.NoError(err)

	// When bob starts searching without triggering a search himself
	_, err = f.store.Create(ctx, "bob", domain.Profile{})
	req.NoError(err)
	req.NoError(f.store.SetState(ctx, "bob", domain.Searching))

	// Then alice's retry finds him
	req.Eventually(func() bool {
		return f.state(t, "alice") == domain.Chatting && f.state(t, "bob") == domain.Chatting
	}, time.Second, 5*time.Millisecond)
}

func TestMatchmaker_Concurrent_Searches_Create_One_Session(t *testing.T) {
	for round := 0; round < 20; round++ {
		t.Run(fmt.Sprintf("round %d", round), func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			f := newFixture(t, time.Minute)
			f.searching(t, "alice", "bob")

			var wg sync.WaitGroup
			results := make([]*domain.Session, 2)
			for i, id := range []string{"alice", "bob"} {
				wg.Add(1)
				go func(i int, id string) {
					defer wg.Done()
					session, err := f.matchmaker.FindPartner(ctx, id)
					if err == nil {
						results[i] = session
					}
				}(i, id)
			}
			wg.Wait()

			ids := map[uuid.UUID]struct{}{}
			for _, s := range results {
				if s != nil {
					ids[s.ID] = struct{}{}
				}
			}
			req.Len(ids, 1)

			a, err := f.store.GetActiveByParticipant(ctx, "alice")
			req.NoError(err)
			b, err := f.store.GetActiveByParticipant(ctx, "bob")
			req.NoError(err)
			req.Equal(a.ID, b.ID)
		})
	}
}

func TestMatchmaker_Claim_Conflicts_Fall_Back_To_Retry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := memory.NewStore()
	for _, id := range []string{"alice", "bob"} {
		_, err := store.Create(ctx, id, domain.Profile{})
		req.NoError(err)
		req.NoError(store.SetState(ctx, id, domain.Searching))
	}
	sessions := mocks.NewMockISessionRepository(ctrl)
	scheduler := mocks.NewMockIRetryScheduler(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	// Given every claim loses a race
	sessions.EXPECT().
		Claim(gomock.Any(), "alice", "bob").
		Return(domain.Session{}, errors.ErrClaimConflict).
		Times(3)
	// Then the matchmaker gives up for now and schedules one retry
	scheduler.EXPECT().
		Schedule("alice", 30*time.Second, gomock.Any()).
		Times(1)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(0)

	matchmaker := NewMatchmaker(slog.Default(), store, sessions, scheduler, notifier, newMetrics(), 30*time.Second, 3)
	session, err := matchmaker.FindPartner(ctx, "alice")

	req.NoError(err)
	req.Nil(session)
}

func TestMatchmaker_Storage_Failure_Is_Returned_And_Retried(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	participants := mocks.NewMockIParticipantRepository(ctrl)
	sessions := mocks.NewMockISessionRepository(ctrl)
	scheduler := mocks.NewMockIRetryScheduler(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	participants.EXPECT().
		Get(gomock.Any(), "alice").
		Return(domain.Participant{ID: "alice", State: domain.Searching, Active: true}, nil)
	participants.EXPECT().
		GetByState(gomock.Any(), domain.Searching).
		Return(nil, fmt.Errorf("%w: connection refused", errors.ErrStorageUnavailable))
	scheduler.EXPECT().
		Schedule("alice", DefaultRetryDelay, gomock.Any()).
		Times(1)

	matchmaker := NewMatchmaker(slog.Default(), participants, sessions, scheduler, notifier, newMetrics(), 0, 0)
	session, err := matchmaker.FindPartner(ctx, "alice")

	req.ErrorIs(err, errors.ErrStorageUnavailable)
	req.Nil(session)
}

func TestMatchmaker_Unknown_Participant(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, time.Minute)

	session, err := f.matchmaker.FindPartner(context.Background(), "ghost")

	req.ErrorIs(err, errors.ErrParticipantNotFound)
	req.Nil(session)
	req.False(f.scheduler.Pending("ghost"))
}
