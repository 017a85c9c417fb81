package repositories

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type diskMessage struct {
	ID          string `cbor:"id"`
	SessionID   string `cbor:"session_id"`
	SenderID    string `cbor:"sender_id"`
	RecipientID string `cbor:"recipient_id"`
	Content     string `cbor:"content"`
	SentAt      int64  `cbor:"sent_at"`
}

func sequenceKey(sessionID uuid.UUID) []byte {
	return []byte("msgseq:" + sessionID.String())
}

func messagePrefix(sessionID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", sessionID))
}

// messageKey is "msg:{session}:{seq}" with the sequence padded to 20 digits,
// so a prefix scan returns the log in insertion order.
func messageKey(sessionID uuid.UUID, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", sessionID, seq))
}

// AppendMessage allocates the next sequence number of the session and stores the message under it.
// Two concurrent appends to the same session conflict on the sequence key and one is replayed.
func (s *BadgerStore) AppendMessage(ctx context.Context, message domain.ChatMessage) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		// Reading the session puts it in the read set, so a concurrent End conflicts with this append.
		session, err := getValue[diskSession](txn, sessionKey(message.SessionID), errors.ErrSessionNotFound)
		if err != nil {
			return err
		}
		if !session.Active {
			return errors.ErrNotInSession
		}

		var seq uint64
		item, err := txn.Get(sequenceKey(message.SessionID))
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			seq = binary.BigEndian.Uint64(raw)
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		seq++

		next := make([]byte, 8)
		binary.BigEndian.PutUint64(next, seq)
		if err = txn.Set(sequenceKey(message.SessionID), next); err != nil {
			return err
		}
		return setValue(txn, messageKey(message.SessionID, seq), fromMessage(message))
	})
}

// GetMessages returns the whole log of a session, oldest first.
func (s *BadgerStore) GetMessages(_ context.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error) {
	var messages []domain.ChatMessage
	err := s.view(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(sessionID)); stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrSessionNotFound
		} else if err != nil {
			return err
		}

		prefix := messagePrefix(sessionID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var disk diskMessage
				if err := cbor.Unmarshal(value, &disk); err != nil {
					return err
				}
				message, err := toMessage(disk)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

func fromMessage(message domain.ChatMessage) diskMessage {
	return diskMessage{
		ID:          message.ID.String(),
		SessionID:   message.SessionID.String(),
		SenderID:    message.SenderID,
		RecipientID: message.RecipientID,
		Content:     message.Content,
		SentAt:      message.SentAt.UnixNano(),
	}
}

func toMessage(disk diskMessage) (domain.ChatMessage, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	sessionID, err := uuid.Parse(disk.SessionID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return domain.ChatMessage{
		ID:          id,
		SessionID:   sessionID,
		SenderID:    disk.SenderID,
		RecipientID: disk.RecipientID,
		Content:     disk.Content,
		SentAt:      time.Unix(0, disk.SentAt).UTC(),
	}, nil
}
