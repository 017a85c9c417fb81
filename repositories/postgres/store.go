// Package postgres is the relational implementation of the store contract.
// Cross-entity steps lock the participant rows with SELECT ... FOR UPDATE in id order.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"stranger-chat/contract"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ contract.IStore = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewStore(pool *pgxpool.Pool, log *slog.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// NewPool connects and retries a few times, Postgres may still be starting.
func NewPool(ctx context.Context, databaseURL string, log *slog.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 10; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				log.Info("Database connected", "attempt", attempt)
				return pool, nil
			}
			pool.Close()
		}
		log.Warn("Database connection attempt failed", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect after 10 attempts: %w", err)
}

func (s *Store) Ping(ctx context.Context) error {
	return errors.Storage(s.pool.Ping(ctx))
}

func (s *Store) Close() error {
	s.log.Info("Closing Postgres pool...")
	s.pool.Close()
	return nil
}

const participantColumns = `id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
	state, is_active, registered_at, last_active`

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var (
		p     domain.Participant
		state string
	)
	err := row.Scan(&p.ID, &p.Profile.Username, &p.Profile.FirstName, &p.Profile.LastName,
		&state, &p.Active, &p.RegisteredAt, &p.LastActive)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, errors.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, err
	}
	p.State = domain.State(state)
	p.RegisteredAt = p.RegisteredAt.UTC()
	p.LastActive = p.LastActive.UTC()
	return p, nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.Participant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	p, err := scanParticipant(row)
	return p, errors.Storage(err)
}

func (s *Store) GetByState(ctx context.Context, state domain.State) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE state = $1 AND is_active`, string(state))
	if err != nil {
		return nil, errors.Storage(err)
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, errors.Storage(err)
		}
		participants = append(participants, p)
	}
	return participants, errors.Storage(rows.Err())
}

func (s *Store) Create(ctx context.Context, id string, profile domain.Profile) (domain.Participant, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO participants (id, username, first_name, last_name)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (id) DO NOTHING
		RETURNING `+participantColumns,
		id, profile.Username, profile.FirstName, profile.LastName)
	p, err := scanParticipant(row)
	if stderrors.Is(err, errors.ErrParticipantNotFound) {
		return domain.Participant{}, errors.ErrAlreadyExists
	}
	return p, errors.Storage(err)
}

func (s *Store) SetState(ctx context.Context, id string, state domain.State) error {
	return s.execOne(ctx, `UPDATE participants SET state = $2, last_active = NOW() WHERE id = $1`, id, string(state))
}

func (s *Store) SetActivity(ctx context.Context, id string, active bool) error {
	return s.execOne(ctx, `UPDATE participants SET is_active = $2, last_active = NOW() WHERE id = $1`, id, active)
}

// TransitionState is a single conditional UPDATE; a miss is resolved into not-found or conflict.
func (s *Store) TransitionState(ctx context.Context, id string, from, to domain.State) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE participants SET state = $3, last_active = NOW() WHERE id = $1 AND state = $2`,
		id, string(from), string(to))
	if err != nil {
		return errors.Storage(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err = s.Get(ctx, id); err != nil {
		return err
	}
	return errors.ErrStateConflict
}

func (s *Store) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return errors.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrParticipantNotFound
	}
	return nil
}

// Claim locks both participant rows, re-checks them and creates the session in one transaction.
func (s *Store) Claim(ctx context.Context, first, second string) (domain.Session, error) {
	session := domain.NewSession(first, second, time.Now().UTC())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Session{}, errors.Storage(err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+participantColumns+` FROM participants
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, []string{session.First, session.Second})
	if err != nil {
		return domain.Session{}, errors.Storage(err)
	}
	locked := 0
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			rows.Close()
			return domain.Session{}, errors.Storage(err)
		}
		locked++
		if !p.Active || p.State != domain.Searching {
			rows.Close()
			return domain.Session{}, errors.ErrClaimConflict
		}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return domain.Session{}, errors.Storage(err)
	}
	if locked != 2 {
		return domain.Session{}, errors.ErrParticipantNotFound
	}

	var busy bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sessions
			WHERE is_active AND (first_id = ANY($1) OR second_id = ANY($1))
		)`, []string{session.First, session.Second}).Scan(&busy)
	if err != nil {
		return domain.Session{}, errors.Storage(err)
	}
	if busy {
		return domain.Session{}, errors.ErrClaimConflict
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, first_id, second_id, started_at, is_active)
		VALUES ($1, $2, $3, $4, TRUE)`,
		session.ID, session.First, session.Second, session.StartedAt)
	if err != nil {
		return domain.Session{}, errors.Storage(err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE participants SET state = $2, last_active = NOW() WHERE id = ANY($1)`,
		[]string{session.First, session.Second}, string(domain.Chatting))
	if err != nil {
		return domain.Session{}, errors.Storage(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Session{}, errors.Storage(err)
	}
	return session, nil
}

// End locks the session row, deactivates it and resets both members to Idle.
func (s *Store) End(ctx context.Context, sessionID uuid.UUID) (domain.Session, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Session{}, false, errors.Storage(err)
	}
	defer tx.Rollback(ctx)

	session, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, sessionID))
	if err != nil {
		return domain.Session{}, false, errors.Storage(err)
	}
	if !session.Active {
		return session, false, nil
	}
	session = session.End(time.Now().UTC())

	_, err = tx.Exec(ctx, `UPDATE sessions SET is_active = FALSE, ended_at = $2 WHERE id = $1`,
		sessionID, *session.EndedAt)
	if err != nil {
		return domain.Session{}, false, errors.Storage(err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE participants SET state = $2, last_active = NOW() WHERE id = ANY($1)`,
		[]string{session.First, session.Second}, string(domain.Idle))
	if err != nil {
		return domain.Session{}, false, errors.Storage(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Session{}, false, errors.Storage(err)
	}
	return session, true, nil
}

const sessionColumns = `id, first_id, second_id, started_at, ended_at, is_active`

func scanSession(row pgx.Row) (domain.Session, error) {
	var session domain.Session
	err := row.Scan(&session.ID, &session.First, &session.Second,
		&session.StartedAt, &session.EndedAt, &session.Active)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	session.StartedAt = session.StartedAt.UTC()
	if session.EndedAt != nil {
		endedAt := session.EndedAt.UTC()
		session.EndedAt = &endedAt
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (domain.Session, error) {
	session, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID))
	return session, errors.Storage(err)
}

func (s *Store) GetActiveByParticipant(ctx context.Context, participantID string) (domain.Session, error) {
	session, err := scanSession(s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE is_active AND (first_id = $1 OR second_id = $1)
		LIMIT 1`, participantID))
	if stderrors.Is(err, errors.ErrSessionNotFound) {
		return domain.Session{}, errors.ErrNotInSession
	}
	return session, errors.Storage(err)
}

// AppendMessage holds a share lock on the session row so End, which locks it FOR UPDATE,
// cannot commit between the activity check and the insert.
func (s *Store) AppendMessage(ctx context.Context, message domain.ChatMessage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Storage(err)
	}
	defer tx.Rollback(ctx)

	var active bool
	err = tx.QueryRow(ctx,
		`SELECT is_active FROM sessions WHERE id = $1 FOR SHARE`, message.SessionID).Scan(&active)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.ErrSessionNotFound
	}
	if err != nil {
		return errors.Storage(err)
	}
	if !active {
		return errors.ErrNotInSession
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, session_id, sender_id, recipient_id, content, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		message.ID, message.SessionID, message.SenderID, message.RecipientID, message.Content, message.SentAt)
	if err != nil {
		return errors.Storage(err)
	}
	return errors.Storage(tx.Commit(ctx))
}

// GetMessages orders by the serial column, which follows insertion order.
func (s *Store) GetMessages(ctx context.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, sender_id, recipient_id, content, sent_at
		FROM messages WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, errors.Storage(err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err = rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.RecipientID, &m.Content, &m.SentAt); err != nil {
			return nil, errors.Storage(err)
		}
		m.SentAt = m.SentAt.UTC()
		messages = append(messages, m)
	}
	return messages, errors.Storage(rows.Err())
}

