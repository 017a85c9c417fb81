package services

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"stranger-chat/contract"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"stranger-chat/observability"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultRetryDelay       = 10 * time.Second
	DefaultMaxClaimAttempts = 5
)

type IMatchmaker interface {
	FindPartner(ctx context.Context, participantID string) (*domain.Session, error)
}

// Matchmaker pairs a Searching participant with another one picked uniformly at random.
// It never writes participant state itself: the pairing is applied by the store's Claim.
type Matchmaker struct {
	log              *slog.Logger
	participants     contract.IParticipantRepository
	sessions         contract.ISessionRepository
	scheduler        contract.IRetryScheduler
	notifier         contract.Notifier
	metrics          *observability.Metrics
	retryDelay       time.Duration
	maxClaimAttempts int
	pick             func(n int) int
}

func NewMatchmaker(
	log *slog.Logger,
	participants contract.IParticipantRepository,
	sessions contract.ISessionRepository,
	scheduler contract.IRetryScheduler,
	notifier contract.Notifier,
	metrics *observability.Metrics,
	retryDelay time.Duration,
	maxClaimAttempts int,
) *Matchmaker {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if maxClaimAttempts <= 0 {
		maxClaimAttempts = DefaultMaxClaimAttempts
	}
	return &Matchmaker{
		log:              log,
		participants:     participants,
		sessions:         sessions,
		scheduler:        scheduler,
		notifier:         notifier,
		metrics:          metrics,
		retryDelay:       retryDelay,
		maxClaimAttempts: maxClaimAttempts,
		pick:             rand.IntN,
	}
}

// WithPicker replaces the random candidate selection, pick(n) must return an index in [0, n).
func (m *Matchmaker) WithPicker(pick func(n int) int) *Matchmaker {
	m.pick = pick
	return m
}

// FindPartner returns the new session, or nil when the participant keeps waiting
// (a retry is then scheduled) or is no longer searching (the search silently stops).
func (m *Matchmaker) FindPartner(ctx context.Context, participantID string) (*domain.Session, error) {
	for attempt := 1; attempt <= m.maxClaimAttempts; attempt++ {
		self, err := m.participants.Get(ctx, participantID)
		if err != nil {
			return nil, m.abort(participantID, err)
		}
		// A cancelled, disconnected or already paired participant ends the retry chain here.
		if !self.Active || self.State != domain.Searching {
			m.scheduler.Cancel(participantID)
			m.log.Debug("Search no longer pending", "participant", participantID, "state", self.State, "active", self.Active)
			return nil, nil
		}

		searching, err := m.participants.GetByState(ctx, domain.Searching)
		if err != nil {
			return nil, m.abort(participantID, err)
		}
		candidates := lo.Filter(searching, func(p domain.Participant, _ int) bool {
			return p.ID != participantID
		})
		if len(candidates) == 0 {
			m.log.Debug("No partner available yet", "participant", participantID, "retry_in", m.retryDelay)
			m.scheduleRetry(participantID)
			return nil, nil
		}

		partner := candidates[m.pick(len(candidates))]
		session, err := m.sessions.Claim(ctx, participantID, partner.ID)
		if errors.Is(err, errors.ErrClaimConflict) {
			m.metrics.ClaimConflicts.Inc()
			m.log.Debug("Claim lost to a concurrent pairing", "participant", participantID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, m.abort(participantID, err)
		}

		m.scheduler.Cancel(session.First)
		m.scheduler.Cancel(session.Second)
		m.metrics.Pairings.Inc()
		m.log.Info("Participants paired", "session", session.ID, "first", session.First, "second", session.Second)
		for _, member := range session.Members() {
			m.notifier.Notify(ctx, domain.NewNotification(member, domain.KindPartnerFound, domain.PartnerFoundText))
		}
		return &session, nil
	}

	m.log.Warn("Claim attempts exhausted, waiting for next retry", "participant", participantID, "attempts", m.maxClaimAttempts)
	m.scheduleRetry(participantID)
	return nil, nil
}

// abort logs a failed attempt. The search stays alive through a retry unless the participant is gone.
func (m *Matchmaker) abort(participantID string, err error) error {
	m.log.Error("Partner search failed", "participant", participantID, "error", err)
	if !errors.Is(err, errors.ErrParticipantNotFound) {
		m.scheduleRetry(participantID)
	}
	return err
}

func (m *Matchmaker) scheduleRetry(participantID string) {
	m.metrics.RetriesScheduled.Inc()
	m.scheduler.Schedule(participantID, m.retryDelay, func(ctx context.Context) {
		if _, err := m.FindPartner(ctx, participantID); err != nil {
			m.log.Debug("Scheduled partner search failed", "participant", participantID, "error", err)
		}
	})
}
