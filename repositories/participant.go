package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// diskParticipant is the stored form of domain.Participant. Timestamps are unix nanoseconds.
type diskParticipant struct {
	ID           string `cbor:"id"`
	Username     string `cbor:"username,omitempty"`
	FirstName    string `cbor:"first_name,omitempty"`
	LastName     string `cbor:"last_name,omitempty"`
	State        string `cbor:"state"`
	Active       bool   `cbor:"active"`
	RegisteredAt int64  `cbor:"registered_at"`
	LastActive   int64  `cbor:"last_active"`
}

func participantKey(id string) []byte {
	return []byte("participant:" + id)
}

func stateKey(state domain.State, id string) []byte {
	return []byte(fmt.Sprintf("state:%s:%s", state, id))
}

func statePrefix(state domain.State) []byte {
	return []byte(fmt.Sprintf("state:%s:", state))
}

func (s *BadgerStore) Get(_ context.Context, id string) (domain.Participant, error) {
	var participant domain.Participant
	err := s.view(func(txn *badger.Txn) error {
		disk, err := getValue[diskParticipant](txn, participantKey(id), errors.ErrParticipantNotFound)
		if err != nil {
			return err
		}
		participant = toParticipant(disk)
		return nil
	})
	return participant, err
}

// GetByState walks the state index and keeps only active participants.
func (s *BadgerStore) GetByState(_ context.Context, state domain.State) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := s.view(func(txn *badger.Txn) error {
		prefix := statePrefix(state)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			disk, err := getValue[diskParticipant](txn, participantKey(id), errors.ErrParticipantNotFound)
			if stderrors.Is(err, errors.ErrParticipantNotFound) {
				s.log.Warn("Dangling state index entry", "participant", id, "state", state)
				continue
			}
			if err != nil {
				return err
			}
			participants = append(participants, toParticipant(disk))
		}
		return nil
	})
	return lo.Filter(participants, func(p domain.Participant, _ int) bool {
		return p.Active && p.State == state
	}), err
}

func (s *BadgerStore) Create(ctx context.Context, id string, profile domain.Profile) (domain.Participant, error) {
	participant := domain.NewParticipant(id, profile, s.now())
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(participantKey(id)); err == nil {
			return errors.ErrAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(stateKey(participant.State, id), []byte{}); err != nil {
			return err
		}
		return setValue(txn, participantKey(id), fromParticipant(participant))
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return participant, nil
}

func (s *BadgerStore) SetState(ctx context.Context, id string, state domain.State) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return s.mutate(txn, id, func(p *diskParticipant) error {
			return s.moveState(txn, p, state)
		})
	})
}

func (s *BadgerStore) SetActivity(ctx context.Context, id string, active bool) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return s.mutate(txn, id, func(p *diskParticipant) error {
			p.Active = active
			return nil
		})
	})
}

func (s *BadgerStore) TransitionState(ctx context.Context, id string, from, to domain.State) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return s.mutate(txn, id, func(p *diskParticipant) error {
			if domain.State(p.State) != from {
				return errors.ErrStateConflict
			}
			return s.moveState(txn, p, to)
		})
	})
}

// mutate loads, changes and stores a participant inside txn, refreshing LastActive.
func (s *BadgerStore) mutate(txn *badger.Txn, id string, change func(p *diskParticipant) error) error {
	disk, err := getValue[diskParticipant](txn, participantKey(id), errors.ErrParticipantNotFound)
	if err != nil {
		return err
	}
	if err = change(&disk); err != nil {
		return err
	}
	disk.LastActive = s.now().UnixNano()
	return setValue(txn, participantKey(id), disk)
}

// moveState keeps the state index in step with the record.
func (s *BadgerStore) moveState(txn *badger.Txn, p *diskParticipant, to domain.State) error {
	from := domain.State(p.State)
	if from == to {
		return nil
	}
	if err := txn.Delete(stateKey(from, p.ID)); err != nil {
		return err
	}
	if err := txn.Set(stateKey(to, p.ID), []byte{}); err != nil {
		return err
	}
	p.State = string(to)
	return nil
}

func fromParticipant(p domain.Participant) diskParticipant {
	return diskParticipant{
		ID:           p.ID,
		Username:     p.Profile.Username,
		FirstName:    p.Profile.FirstName,
		LastName:     p.Profile.LastName,
		State:        string(p.State),
		Active:       p.Active,
		RegisteredAt: p.RegisteredAt.UnixNano(),
		LastActive:   p.LastActive.UnixNano(),
	}
}

func toParticipant(d diskParticipant) domain.Participant {
	return domain.Participant{
		ID: d.ID,
		Profile: domain.Profile{
			Username:  d.Username,
			FirstName: d.FirstName,
			LastName:  d.LastName,
		},
		State:        domain.State(d.State),
		Active:       d.Active,
		RegisteredAt: time.Unix(0, d.RegisteredAt).UTC(),
		LastActive:   time.Unix(0, d.LastActive).UTC(),
	}
}
