package services

import (
	"context"
	"log/slog"
	"stranger-chat/contract"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"stranger-chat/observability"

	"github.com/google/uuid"
)

// Reasons used to label ended sessions.
const (
	reasonEnd         = "end"
	reasonDisconnect  = "disconnect"
	reasonUnreachable = "unreachable"
	reasonReport      = "report"
	reasonLeave       = "leave"
)

// IChatService is everything the command dispatcher may call.
type IChatService interface {
	Register(ctx context.Context, participantID string, profile domain.Profile) (domain.Participant, error)
	BeginSearch(ctx context.Context, participantID string) (domain.Outcome, error)
	CancelSearch(ctx context.Context, participantID string) (domain.Outcome, error)
	EndSession(ctx context.Context, participantID string) (domain.Outcome, error)
	Leave(ctx context.Context, participantID string) (domain.Outcome, error)
	Report(ctx context.Context, participantID, reason string) (domain.Outcome, error)
	OnDisconnect(ctx context.Context, participantID string) error
	Deliver(ctx context.Context, senderID, content string) (domain.ChatMessage, error)
	GetStatus(ctx context.Context, participantID string) (domain.Status, error)
	History(ctx context.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error)
}

var _ IChatService = (*Lifecycle)(nil)

// Lifecycle drives the per-participant state machine:
//
//	Idle -> Searching (BeginSearch) -> Chatting (matchmaker claim) -> Idle (EndSession, OnDisconnect)
//	Searching -> Idle (CancelSearch)
//
// It is the only caller allowed to change a participant's state or end a session.
type Lifecycle struct {
	log          *slog.Logger
	participants contract.IParticipantRepository
	sessions     contract.ISessionRepository
	matchmaker   IMatchmaker
	relay        IRelay
	scheduler    contract.IRetryScheduler
	notifier     contract.Notifier
	metrics      *observability.Metrics
}

func NewLifecycle(
	log *slog.Logger,
	participants contract.IParticipantRepository,
	sessions contract.ISessionRepository,
	matchmaker IMatchmaker,
	relay IRelay,
	scheduler contract.IRetryScheduler,
	notifier contract.Notifier,
	metrics *observability.Metrics,
) *Lifecycle {
	return &Lifecycle{
		log:          log,
		participants: participants,
		sessions:     sessions,
		matchmaker:   matchmaker,
		relay:        relay,
		scheduler:    scheduler,
		notifier:     notifier,
		metrics:      metrics,
	}
}

// Register is the first contact. A returning participant is marked reachable again
// and a search left over from a previous connection is dropped.
func (l *Lifecycle) Register(ctx context.Context, participantID string, profile domain.Profile) (domain.Participant, error) {
	participant, err := l.participants.Create(ctx, participantID, profile)
	if err == nil {
		l.log.Info("Participant registered", "participant", participantID, "name", participant.DisplayName())
		return participant, nil
	}
	if !errors.Is(err, errors.ErrAlreadyExists) {
		return domain.Participant{}, err
	}

	if err = l.participants.SetActivity(ctx, participantID, true); err != nil {
		return domain.Participant{}, err
	}
	l.scheduler.Cancel(participantID)
	err = l.participants.TransitionState(ctx, participantID, domain.Searching, domain.Idle)
	if err != nil && !errors.Is(err, errors.ErrStateConflict) {
		return domain.Participant{}, err
	}
	l.log.Info("Participant is back", "participant", participantID)
	return l.participants.Get(ctx, participantID)
}

func (l *Lifecycle) BeginSearch(ctx context.Context, participantID string) (domain.Outcome, error) {
	participant, err := l.participants.Get(ctx, participantID)
	if err != nil {
		return "", err
	}
	if !participant.Active {
		return "", errors.ErrParticipantInactive
	}

	err = l.participants.TransitionState(ctx, participantID, domain.Idle, domain.Searching)
	if errors.Is(err, errors.ErrStateConflict) {
		return l.searchRejected(ctx, participantID)
	}
	if err != nil {
		return "", err
	}

	l.metrics.SearchesStarted.Inc()
	l.log.Info("Participant is looking for a partner", "participant", participantID)
	l.notifier.Notify(ctx, domain.NewNotification(participantID, domain.KindSearchStarted, domain.SearchStartedText))

	// The search is recorded even if this first attempt fails: the matchmaker keeps it alive with a retry.
	if _, err = l.matchmaker.FindPartner(ctx, participantID); err != nil {
		l.log.Warn("First partner search attempt failed", "participant", participantID, "error", err)
	}
	return domain.OutcomeSearching, nil
}

// searchRejected explains why the Idle -> Searching transition did not apply.
func (l *Lifecycle) searchRejected(ctx context.Context, participantID string) (domain.Outcome, error) {
	participant, err := l.participants.Get(ctx, participantID)
	if err != nil {
		return "", err
	}
	switch participant.State {
	case domain.Chatting:
		return "", errors.ErrAlreadyActive
	case domain.Searching:
		return domain.OutcomeAlreadySearching, nil
	default:
		return "", errors.ErrStateConflict
	}
}

func (l *Lifecycle) CancelSearch(ctx context.Context, participantID string) (domain.Outcome, error) {
	err := l.participants.TransitionState(ctx, participantID, domain.Searching, domain.Idle)
	if err == nil {
		l.scheduler.Cancel(participantID)
		l.log.Info("Search cancelled", "participant", participantID)
		return domain.OutcomeSearchCancelled, nil
	}
	if !errors.Is(err, errors.ErrStateConflict) {
		return "", err
	}

	participant, err := l.participants.Get(ctx, participantID)
	if err != nil {
		return "", err
	}
	if participant.State == domain.Chatting {
		// A claim won the race against this cancellation.
		return "", errors.ErrAlreadyActive
	}
	return domain.OutcomeNotSearching, nil
}

// EndSession is idempotent: without an active session it reports OutcomeNoSession.
func (l *Lifecycle) EndSession(ctx context.Context, participantID string) (domain.Outcome, error) {
	return l.endSession(ctx, participantID, reasonEnd)
}

func (l *Lifecycle) endSession(ctx context.Context, participantID, reason string) (domain.Outcome, error) {
	session, err := l.sessions.GetActiveByParticipant(ctx, participantID)
	if errors.Is(err, errors.ErrNotInSession) {
		l.log.Debug("No active chat to end", "participant", participantID)
		return domain.OutcomeNoSession, nil
	}
	if err != nil {
		return "", err
	}

	ended, changed, err := l.sessions.End(ctx, session.ID)
	if err != nil {
		l.log.Error("Session not ended", "session", session.ID, "participant", participantID, "error", err)
		return "", err
	}
	if !changed {
		return domain.OutcomeNoSession, nil
	}

	for _, member := range ended.Members() {
		l.scheduler.Cancel(member)
	}
	l.metrics.SessionsEnded.WithLabelValues(reason).Inc()
	l.log.Info("Chat ended", "session", ended.ID, "by", participantID, "reason", reason)

	partnerID := ended.PartnerOf(participantID)
	l.notifier.Notify(ctx, domain.NewNotification(partnerID, domain.KindPartnerLeft, domain.PartnerLeftText))
	return domain.OutcomeEnded, nil
}

// OnDisconnect treats a platform-level disconnect like an explicit end, and also marks
// the participant unreachable so relays and claims against it fail fast.
func (l *Lifecycle) OnDisconnect(ctx context.Context, participantID string) error {
	l.log.Info("Participant disconnected", "participant", participantID)
	if err := l.participants.SetActivity(ctx, participantID, false); err != nil {
		return err
	}
	l.scheduler.Cancel(participantID)

	err := l.participants.TransitionState(ctx, participantID, domain.Searching, domain.Idle)
	if err != nil && !errors.Is(err, errors.ErrStateConflict) {
		return err
	}
	_, err = l.endSession(ctx, participantID, reasonDisconnect)
	return err
}

// Deliver relays a message. An unreachable partner ends the sender's session and the
// error is returned as information only (see errors.IsInformational).
func (l *Lifecycle) Deliver(ctx context.Context, senderID, content string) (domain.ChatMessage, error) {
	message, err := l.relay.Deliver(ctx, senderID, content)
	if errors.Is(err, errors.ErrPartnerUnreachable) {
		if _, endErr := l.endSession(ctx, senderID, reasonUnreachable); endErr != nil {
			l.log.Error("Could not end session with unreachable partner", "participant", senderID, "error", endErr)
			return domain.ChatMessage{}, endErr
		}
	}
	return message, err
}

// Leave ends the current chat and starts looking for a new partner right away.
func (l *Lifecycle) Leave(ctx context.Context, participantID string) (domain.Outcome, error) {
	outcome, err := l.endSession(ctx, participantID, reasonLeave)
	if err != nil || outcome == domain.OutcomeNoSession {
		return outcome, err
	}
	return l.BeginSearch(ctx, participantID)
}

// Report is the moderation hook: it records the complaint in the logs and ends the chat.
func (l *Lifecycle) Report(ctx context.Context, participantID, reason string) (domain.Outcome, error) {
	session, err := l.sessions.GetActiveByParticipant(ctx, participantID)
	if errors.Is(err, errors.ErrNotInSession) {
		return domain.OutcomeNoSession, nil
	}
	if err != nil {
		return "", err
	}
	if reason == "" {
		reason = "No reason provided"
	}
	l.metrics.Reports.Inc()
	l.log.Warn("Participant reported",
		"reporter", participantID, "reported", session.PartnerOf(participantID),
		"session", session.ID, "reason", reason)

	outcome, err := l.endSession(ctx, participantID, reasonReport)
	if err != nil {
		return "", err
	}
	l.notifier.Notify(ctx, domain.NewNotification(participantID, domain.KindReportReceived, domain.ReportReceivedText))
	return outcome, nil
}

func (l *Lifecycle) GetStatus(ctx context.Context, participantID string) (domain.Status, error) {
	participant, err := l.participants.Get(ctx, participantID)
	if err != nil {
		return domain.Status{}, err
	}
	status := domain.Status{
		State:        participant.State,
		Active:       participant.Active,
		RegisteredAt: participant.RegisteredAt,
		LastActive:   participant.LastActive,
	}
	if participant.State != domain.Chatting {
		return status, nil
	}

	session, err := l.sessions.GetActiveByParticipant(ctx, participantID)
	if errors.Is(err, errors.ErrNotInSession) {
		l.log.Warn("Chatting participant without active session", "participant", participantID)
		return status, nil
	}
	if err != nil {
		return domain.Status{}, err
	}
	status.SessionID = &session.ID
	return status, nil
}

func (l *Lifecycle) History(ctx context.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error) {
	return l.sessions.GetMessages(ctx, sessionID)
}
