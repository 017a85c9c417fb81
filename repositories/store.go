package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"stranger-chat/contract"
	"stranger-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// maxConflictRetries bounds how often a single-entity write is replayed after
// Badger reports a serialization conflict with a concurrent transaction.
const maxConflictRetries = 8

var _ contract.IStore = (*BadgerStore)(nil)

// BadgerStore keeps participants, sessions and message logs in one BadgerDB.
// Layout:
//
//	participant:{id}            -> diskParticipant
//	state:{state}:{id}          -> (empty) index for GetByState
//	session:{uuid}              -> diskSession
//	active:{participant}        -> session uuid, present while the session is active
//	msgseq:{uuid}               -> last message sequence of the session
//	msg:{uuid}:{seq020}         -> diskMessage
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	return &BadgerStore{
		db:  db,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// OpenBadgerStore opens (or creates) the database at path.
func OpenBadgerStore(ctx context.Context, path string, log *slog.Logger) (*BadgerStore, error) {
	db, err := badger.Open(buildBadgerOpts(ctx, path, log))
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	return NewBadgerStore(db, log), nil
}

func buildBadgerOpts(ctx context.Context, path string, log *slog.Logger) badger.Options {
	options := badger.DefaultOptions(path)
	if log.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

// DB exposes the underlying database for the debug inspector.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("%w: badger is closed", errors.ErrStorageUnavailable)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	s.log.Info("Closing BadgerDB...")
	return s.db.Close()
}

// update replays fn when Badger detects a conflict. fn must be free of side effects
// outside the transaction.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return errors.Storage(err)
		}
		s.log.Debug("Badger conflict, replaying transaction", "attempt", attempt+1)
	}
	return errors.Storage(err)
}

func (s *BadgerStore) view(fn func(txn *badger.Txn) error) error {
	return errors.Storage(s.db.View(fn))
}

func getValue[T any](txn *badger.Txn, key []byte, notFound error) (T, error) {
	var out T
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return out, notFound
	}
	if err != nil {
		return out, err
	}
	err = item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &out)
	})
	return out, err
}

func setValue(txn *badger.Txn, key []byte, value any) error {
	data, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, data)
}
