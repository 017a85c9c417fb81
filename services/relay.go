package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"stranger-chat/contract"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"stranger-chat/observability"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const DefaultMaxContentLength = 4096

var validate = validator.New()

type IRelay interface {
	Deliver(ctx context.Context, senderID, content string) (domain.ChatMessage, error)
}

// Relay forwards text between the two members of an active session.
// Delivery is at-most-once: a message is persisted before the notifier is called
// and is never re-sent.
type Relay struct {
	log              *slog.Logger
	participants     contract.IParticipantRepository
	sessions         contract.ISessionRepository
	notifier         contract.Notifier
	metrics          *observability.Metrics
	maxContentLength int
	now              func() time.Time
}

func NewRelay(
	log *slog.Logger,
	participants contract.IParticipantRepository,
	sessions contract.ISessionRepository,
	notifier contract.Notifier,
	metrics *observability.Metrics,
	maxContentLength int,
) *Relay {
	if maxContentLength <= 0 {
		maxContentLength = DefaultMaxContentLength
	}
	return &Relay{
		log:              log,
		participants:     participants,
		sessions:         sessions,
		notifier:         notifier,
		metrics:          metrics,
		maxContentLength: maxContentLength,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Deliver returns errors.ErrPartnerUnreachable without touching the session;
// ending it is left to the caller.
func (r *Relay) Deliver(ctx context.Context, senderID, content string) (domain.ChatMessage, error) {
	if err := r.validateContent(content); err != nil {
		return domain.ChatMessage{}, err
	}

	session, err := r.sessions.GetActiveByParticipant(ctx, senderID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	recipientID := session.PartnerOf(senderID)

	recipient, err := r.participants.Get(ctx, recipientID)
	if errors.Is(err, errors.ErrParticipantNotFound) || (err == nil && !recipient.Active) {
		r.log.Info("Chat partner unreachable", "session", session.ID, "sender", senderID)
		return domain.ChatMessage{}, errors.ErrPartnerUnreachable
	}
	if err != nil {
		return domain.ChatMessage{}, err
	}

	message := domain.NewChatMessage(session, senderID, content, r.now())
	err = r.sessions.AppendMessage(ctx, message)
	if errors.Is(err, errors.ErrNotInSession) {
		r.log.Info("Session ended before the message was stored", "session", session.ID, "sender", senderID)
		return domain.ChatMessage{}, err
	}
	if err != nil {
		r.log.Error("Message not persisted", "session", session.ID, "sender", senderID, "error", err)
		return domain.ChatMessage{}, err
	}
	r.metrics.MessagesRelayed.Inc()
	r.log.Debug("Message relayed", "session", session.ID, "message", message.ID)

	r.notifier.Notify(ctx, domain.NewNotification(recipientID, domain.KindMessage, content))
	return message, nil
}

func (r *Relay) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.ErrEmptyContent
	}
	err := validate.Var(content, fmt.Sprintf("max=%d", r.maxContentLength))
	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		return fmt.Errorf("%w: at most %d characters", errors.ErrContentTooLong, r.maxContentLength)
	}
	return err
}
