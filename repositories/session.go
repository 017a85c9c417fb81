package repositories

import (
	"context"
	stderrors "errors"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type diskSession struct {
	ID        string `cbor:"id"`
	First     string `cbor:"first"`
	Second    string `cbor:"second"`
	StartedAt int64  `cbor:"started_at"`
	EndedAt   *int64 `cbor:"ended_at,omitempty"`
	Active    bool   `cbor:"active"`
}

func sessionKey(id uuid.UUID) []byte {
	return []byte("session:" + id.String())
}

func activeKey(participantID string) []byte {
	return []byte("active:" + participantID)
}

// Claim runs the whole check-and-pair step in one Badger transaction. Both participant
// keys and both active keys are read inside it, so under Badger's serializable snapshot
// isolation any concurrent transaction writing one of them makes this commit fail with
// badger.ErrConflict, which is reported as errors.ErrClaimConflict. A claim is never replayed
// here: the matchmaker decides whether to pick a new candidate.
func (s *BadgerStore) Claim(ctx context.Context, first, second string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	session := domain.NewSession(first, second, s.now())
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, id := range session.Members() {
			p, err := getValue[diskParticipant](txn, participantKey(id), errors.ErrParticipantNotFound)
			if err != nil {
				return err
			}
			if !p.Active || domain.State(p.State) != domain.Searching {
				return errors.ErrClaimConflict
			}
			if _, err = txn.Get(activeKey(id)); err == nil {
				return errors.ErrClaimConflict
			} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		if err := setValue(txn, sessionKey(session.ID), fromSession(session)); err != nil {
			return err
		}
		for _, id := range session.Members() {
			if err := txn.Set(activeKey(id), []byte(session.ID.String())); err != nil {
				return err
			}
			err := s.mutate(txn, id, func(p *diskParticipant) error {
				return s.moveState(txn, p, domain.Chatting)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if stderrors.Is(err, badger.ErrConflict) {
		return domain.Session{}, errors.ErrClaimConflict
	}
	if err != nil {
		return domain.Session{}, errors.Storage(err)
	}
	return session, nil
}

// End deactivates the session and returns both members to Idle in one transaction.
func (s *BadgerStore) End(ctx context.Context, sessionID uuid.UUID) (domain.Session, bool, error) {
	var (
		ended   domain.Session
		changed bool
	)
	err := s.update(ctx, func(txn *badger.Txn) error {
		changed = false
		disk, err := getValue[diskSession](txn, sessionKey(sessionID), errors.ErrSessionNotFound)
		if err != nil {
			return err
		}
		ended = toSession(disk)
		if !ended.Active {
			return nil
		}
		ended = ended.End(s.now())
		if err = setValue(txn, sessionKey(sessionID), fromSession(ended)); err != nil {
			return err
		}
		for _, id := range ended.Members() {
			if err = txn.Delete(activeKey(id)); err != nil {
				return err
			}
			err = s.mutate(txn, id, func(p *diskParticipant) error {
				return s.moveState(txn, p, domain.Idle)
			})
			if err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return domain.Session{}, false, err
	}
	return ended, changed, nil
}

func (s *BadgerStore) GetSession(_ context.Context, sessionID uuid.UUID) (domain.Session, error) {
	var session domain.Session
	err := s.view(func(txn *badger.Txn) error {
		disk, err := getValue[diskSession](txn, sessionKey(sessionID), errors.ErrSessionNotFound)
		if err != nil {
			return err
		}
		session = toSession(disk)
		return nil
	})
	return session, err
}

// GetActiveByParticipant resolves the by-participant index of active sessions.
func (s *BadgerStore) GetActiveByParticipant(_ context.Context, participantID string) (domain.Session, error) {
	var session domain.Session
	err := s.view(func(txn *badger.Txn) error {
		item, err := txn.Get(activeKey(participantID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotInSession
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		sessionID, err := uuid.ParseBytes(raw)
		if err != nil {
			return err
		}
		disk, err := getValue[diskSession](txn, sessionKey(sessionID), errors.ErrSessionNotFound)
		if err != nil {
			return err
		}
		session = toSession(disk)
		return nil
	})
	return session, err
}

func fromSession(session domain.Session) diskSession {
	disk := diskSession{
		ID:        session.ID.String(),
		First:     session.First,
		Second:    session.Second,
		StartedAt: session.StartedAt.UnixNano(),
		Active:    session.Active,
	}
	if session.EndedAt != nil {
		endedAt := session.EndedAt.UnixNano()
		disk.EndedAt = &endedAt
	}
	return disk
}

func toSession(disk diskSession) domain.Session {
	session := domain.Session{
		ID:        uuid.MustParse(disk.ID),
		First:     disk.First,
		Second:    disk.Second,
		StartedAt: time.Unix(0, disk.StartedAt).UTC(),
		Active:    disk.Active,
	}
	if disk.EndedAt != nil {
		endedAt := time.Unix(0, *disk.EndedAt).UTC()
		session.EndedAt = &endedAt
	}
	return session
}
