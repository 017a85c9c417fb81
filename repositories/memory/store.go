// Package memory is the in-process store. A single mutex serializes every
// operation, which trivially makes Claim and End atomic.
package memory

import (
	"context"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	participants map[string]domain.Participant
	sessions     map[uuid.UUID]domain.Session
	active       map[string]uuid.UUID // participant -> active session
	messages     map[uuid.UUID][]domain.ChatMessage
}

func NewStore() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		participants: make(map[string]domain.Participant),
		sessions:     make(map[uuid.UUID]domain.Session),
		active:       make(map[string]uuid.UUID),
		messages:     make(map[uuid.UUID][]domain.ChatMessage),
	}
}

func (s *Store) Get(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, errors.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) GetByState(_ context.Context, state domain.State) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(lo.Values(s.participants), func(p domain.Participant, _ int) bool {
		return p.Active && p.State == state
	}), nil
}

func (s *Store) Create(_ context.Context, id string, profile domain.Profile) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[id]; ok {
		return domain.Participant{}, errors.ErrAlreadyExists
	}
	p := domain.NewParticipant(id, profile, s.now())
	s.participants[id] = p
	return p, nil
}

func (s *Store) SetState(_ context.Context, id string, state domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(id, func(p *domain.Participant) { p.State = state })
}

func (s *Store) SetActivity(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(id, func(p *domain.Participant) { p.Active = active })
}

func (s *Store) TransitionState(_ context.Context, id string, from, to domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return errors.ErrParticipantNotFound
	}
	if p.State != from {
		return errors.ErrStateConflict
	}
	return s.update(id, func(p *domain.Participant) { p.State = to })
}

// update must be called with the write lock held.
func (s *Store) update(id string, mutate func(p *domain.Participant)) error {
	p, ok := s.participants[id]
	if !ok {
		return errors.ErrParticipantNotFound
	}
	mutate(&p)
	p.LastActive = s.now()
	s.participants[id] = p
	return nil
}

func (s *Store) Claim(_ context.Context, first, second string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{first, second} {
		p, ok := s.participants[id]
		if !ok {
			return domain.Session{}, errors.ErrParticipantNotFound
		}
		if !p.Active || p.State != domain.Searching {
			return domain.Session{}, errors.ErrClaimConflict
		}
		if _, busy := s.active[id]; busy {
			return domain.Session{}, errors.ErrClaimConflict
		}
	}

	session := domain.NewSession(first, second, s.now())
	s.sessions[session.ID] = session
	for _, id := range session.Members() {
		s.active[id] = session.ID
		_ = s.update(id, func(p *domain.Participant) { p.State = domain.Chatting })
	}
	return session, nil
}

func (s *Store) End(_ context.Context, sessionID uuid.UUID) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, false, errors.ErrSessionNotFound
	}
	if !session.Active {
		return session, false, nil
	}
	session = session.End(s.now())
	s.sessions[sessionID] = session
	for _, id := range session.Members() {
		if s.active[id] == sessionID {
			delete(s.active, id)
		}
		_ = s.update(id, func(p *domain.Participant) { p.State = domain.Idle })
	}
	return session, true, nil
}

func (s *Store) GetSession(_ context.Context, sessionID uuid.UUID) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) GetActiveByParticipant(_ context.Context, participantID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[participantID]
	if !ok {
		return domain.Session{}, errors.ErrNotInSession
	}
	return s.sessions[id], nil
}

func (s *Store) AppendMessage(_ context.Context, message domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[message.SessionID]
	if !ok {
		return errors.ErrSessionNotFound
	}
	if !session.Active {
		return errors.ErrNotInSession
	}
	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	return nil
}

// GetMessages returns a copy of the log in insertion order.
func (s *Store) GetMessages(_ context.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, errors.ErrSessionNotFound
	}
	return append([]domain.ChatMessage(nil), s.messages[sessionID]...), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
