//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"stranger-chat/domain"
	"time"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Notifier transmits content to a participant's current channel.
// Delivery is best-effort: implementations log their own failures and never report them to the core.
type Notifier interface {
	Notify(ctx context.Context, notification domain.Notification)
}

// IParticipantRepository is the participant directory.
// It does not enforce the one-active-session invariant.
type IParticipantRepository interface {
	Get(ctx context.Context, id string) (domain.Participant, error)
	GetByState(ctx context.Context, state domain.State) ([]domain.Participant, error)
	Create(ctx context.Context, id string, profile domain.Profile) (domain.Participant, error)
	SetState(ctx context.Context, id string, state domain.State) error
	SetActivity(ctx context.Context, id string, active bool) error
	TransitionState(ctx context.Context, id string, from, to domain.State) error
}

// ISessionRepository owns sessions and their message logs.
// Claim and End are the two cross-entity operations and must each be applied atomically.
type ISessionRepository interface {
	// Claim re-checks that both participants are active, Searching and free, then creates
	// the session and moves both to Chatting. It returns errors.ErrClaimConflict otherwise.
	Claim(ctx context.Context, first, second string) (domain.Session, error)
	// End deactivates the session and moves both members to Idle.
	// The boolean is false when the session was already inactive.
	End(ctx context.Context, sessionID uuid.UUID) (domain.Session, bool, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (domain.Session, error)
	GetActiveByParticipant(ctx context.Context, participantID string) (domain.Session, error)
	AppendMessage(ctx context.Context, message domain.ChatMessage) error
	GetMessages(ctx context.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error)
}

type IStore interface {
	IParticipantRepository
	ISessionRepository
	Ping(ctx context.Context) error
	Close() error
}

// IRetryScheduler keeps at most one pending retry per participant.
type IRetryScheduler interface {
	Schedule(participantID string, delay time.Duration, fn func(ctx context.Context))
	Cancel(participantID string) bool
	Pending(participantID string) bool
	Stop()
}
