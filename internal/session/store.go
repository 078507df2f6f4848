// Package session manages conversation persistence on PostgreSQL.
//
// A session row anchors an ordered list of messages. Sequence numbers are
// assigned under a row lock on the session so concurrent writers cannot
// interleave, and every append runs inside a transaction.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// DB is the subset of pgxpool.Pool the store needs, including
// transaction support for message appends.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages session persistence.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a new Store instance.
// logger may be nil, in which case slog.Default() is used.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Ensure creates the session row if it does not exist yet.
// Chat requests carry client-generated (or server-generated) UUIDs, so the
// first message of a conversation creates its session implicitly.
func (s *Store) Ensure(ctx context.Context, id uuid.UUID, modelName string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO sessions (id, model_name) VALUES ($1, NULLIF($2, ''))
		 ON CONFLICT (id) DO NOTHING`,
		id, modelName)
	if err != nil {
		return fmt.Errorf("failed to ensure session %s: %w", id, err)
	}
	return nil
}

// Get retrieves a session by ID. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	var (
		sess  Session
		model *string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, model_name, message_count, created_at, updated_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &model, &sess.MessageCount, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	if model != nil {
		sess.ModelName = *model
	}
	return &sess, nil
}

// List lists sessions with pagination, ordered by updated_at descending.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]*Session, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, model_name, message_count, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		var (
			sess  Session
			model *string
		)
		if err := rows.Scan(&sess.ID, &model, &sess.MessageCount, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if model != nil {
			sess.ModelName = *model
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	s.logger.Debug("listed sessions", "count", len(sessions), "limit", limit, "offset", offset)
	return sessions, nil
}

// Delete deletes a session and its messages (CASCADE).
// Returns ErrNotFound when no such session exists.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("deleted session", "id", id)
	return nil
}

// Messages retrieves messages for a session ordered by sequence number.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, role, content, COALESCE(model, ''), sequence_number, created_at
		 FROM session_messages
		 WHERE session_id = $1
		 ORDER BY sequence_number
		 LIMIT $2 OFFSET $3`,
		sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Recent retrieves the newest messages of a session, capped at limit,
// returned in ascending sequence order. Long conversations keep their
// latest turns; the oldest ones fall out of the window.
func (s *Store) Recent(ctx context.Context, sessionID uuid.UUID, limit int32) ([]*Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, role, content, COALESCE(model, ''), sequence_number, created_at
		 FROM (
		     SELECT id, session_id, role, content, model, sequence_number, created_at
		     FROM session_messages
		     WHERE session_id = $1
		     ORDER BY sequence_number DESC
		     LIMIT $2
		 ) newest
		 ORDER BY sequence_number`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]*Message, error) {
	messages := make([]*Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&msg.Model, &msg.Sequence, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// AppendExchange appends one question/answer pair to a session atomically.
//
// The session row is locked (SELECT ... FOR UPDATE) so concurrent appends
// to the same session serialize and sequence numbers stay dense.
func (s *Store) AppendExchange(ctx context.Context, sessionID uuid.UUID, question, answer, model string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}

	var maxSeq int32
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM session_messages WHERE session_id = $1`,
		sessionID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("failed to get max sequence number: %w", err)
	}

	exchange := []struct {
		role    string
		content string
	}{
		{RoleUser, question},
		{RoleModel, answer},
	}
	for i, msg := range exchange {
		seq := maxSeq + int32(i) + 1 // #nosec G115 -- i is 0 or 1
		if _, err = tx.Exec(ctx,
			`INSERT INTO session_messages (session_id, role, content, model, sequence_number)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
			sessionID, msg.role, msg.content, model, seq); err != nil {
			return fmt.Errorf("failed to insert %s message: %w", msg.role, err)
		}
	}

	newCount := maxSeq + int32(len(exchange)) // #nosec G115 -- exchange has two entries
	if _, err = tx.Exec(ctx,
		`UPDATE sessions SET message_count = $2, updated_at = now() WHERE id = $1`,
		sessionID, newCount); err != nil {
		return fmt.Errorf("failed to update session metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("appended exchange", "session_id", sessionID, "sequence", newCount)
	return nil
}
