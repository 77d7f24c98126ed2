package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"erek/internal/models"

	"github.com/google/uuid"
)

const (
	titleMaxLen      = 42
	titleStorageMax  = 500
	fallbackTitle    = "New chat"
	defaultListLimit = 50
)

// ownerClause scopes a query to the owner's session pool. Anonymous
// requests operate on the owner-NULL pool; authenticated ones never see it.
func ownerClause(ownerID *string) (string, []any) {
	if ownerID == nil || *ownerID == "" {
		return "owner_id IS NULL", nil
	}
	return "owner_id = ?", []any{*ownerID}
}

// CreateSession inserts a new session and returns the record.
func (s *Service) CreateSession(ctx context.Context, ownerID *string) (*models.Session, error) {
	id := uuid.NewString()
	now := time.Now().UnixMilli()
	var owner any
	if ownerID != nil && *ownerID != "" {
		owner = *ownerID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, owner_id, title, pinned, created_at) VALUES (?, ?, NULL, 0, ?)`,
		id, owner, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &models.Session{ID: id, OwnerID: ownerID, Pinned: false, CreatedAt: now}, nil
}

// EnsureSession resolves sessionID to a session in the caller's pool,
// creating a fresh one when the id is absent or not theirs. Calling it
// again with the returned id is a no-op.
func (s *Service) EnsureSession(ctx context.Context, ownerID *string, sessionID string) (string, error) {
	if sessionID != "" {
		clause, args := ownerClause(ownerID)
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM chat_sessions WHERE id = ? AND `+clause,
			append([]any{sessionID}, args...)...,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("resolve session: %w", err)
		}
	}
	session, err := s.CreateSession(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

// AppendMessage stores a new message at the end of the session log.
// Persistence errors propagate; nothing is swallowed here.
func (s *Service) AppendMessage(ctx context.Context, sessionID string, role models.Role, content string) (*models.Message, error) {
	if sessionID == "" {
		return nil, errors.New("session_id is required")
	}
	if content == "" {
		return nil, errors.New("content cannot be empty")
	}

	// Clamp the stamp above the session's current maximum so same-millisecond
	// appends keep their issuance order under ORDER BY created_at.
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM chat_messages WHERE session_id = ?`, sessionID,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("read last stamp: %w", err)
	}
	now := time.Now().UnixMilli()
	if last.Valid && last.Int64 >= now {
		now = last.Int64 + 1
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns the most recent limit messages in chronological
// order; this feeds the prompt transcript, where order matters.
func (s *Service) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 12
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM chat_messages
		 WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// reverse newest-first into oldest-first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Messages returns the session history oldest-first.
func (s *Service) Messages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM chat_messages
		 WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	defer rows.Close()
	var msgs []*models.Message
	for rows.Next() {
		m := new(models.Message)
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		parsed, err := models.ParseRole(role)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = parsed
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// VerifySessionOwner checks the session exists in the caller's pool.
// A foreign or missing session is sql.ErrNoRows either way, so callers
// cannot distinguish absence from someone else's session.
func (s *Service) VerifySessionOwner(ctx context.Context, ownerID *string, sessionID string) error {
	clause, args := ownerClause(ownerID)
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chat_sessions WHERE id = ? AND `+clause,
		append([]any{sessionID}, args...)...,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("verify session: %w", err)
	}
	return nil
}

// ListSessionsForOwner returns the owner's sessions, pinned first then by
// recency, each with its derived display title.
func (s *Service) ListSessionsForOwner(ctx context.Context, ownerID *string, limit int) ([]models.SessionSummary, error) {
	clause, args := ownerClause(ownerID)
	return s.listSessions(ctx, `WHERE `+clause, args, limit)
}

// ListSessions is the admin variant: every session regardless of owner.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]models.SessionSummary, error) {
	return s.listSessions(ctx, "", nil, limit)
}

func (s *Service) listSessions(ctx context.Context, where string, args []any, limit int) ([]models.SessionSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT s.id, s.created_at, s.title, s.pinned,
		(SELECT content FROM chat_messages
		 WHERE session_id = s.id AND role = 'user'
		 ORDER BY created_at ASC LIMIT 1) AS first_user_message
	FROM chat_sessions s ` + where + `
	ORDER BY s.pinned DESC, s.created_at DESC
	LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.SessionSummary, 0)
	for rows.Next() {
		var (
			sum       models.SessionSummary
			custom    sql.NullString
			pinned    int
			firstUser sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &custom, &pinned, &firstUser); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.Pinned = pinned != 0
		sum.Title = displayTitle(custom.String, firstUser.String)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// displayTitle derives the listing title: custom title, else the first user
// message truncated, else a placeholder.
func displayTitle(custom, firstUser string) string {
	raw := strings.TrimSpace(custom)
	if raw == "" {
		raw = strings.TrimSpace(firstUser)
	}
	if raw == "" {
		return fallbackTitle
	}
	runes := []rune(raw)
	if len(runes) > titleMaxLen {
		return string(runes[:titleMaxLen]) + "…"
	}
	return raw
}

// RenameSession sets a custom title on a session the caller owns.
func (s *Service) RenameSession(ctx context.Context, ownerID *string, sessionID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}
	if runes := []rune(title); len(runes) > titleStorageMax {
		title = string(runes[:titleStorageMax])
	}
	clause, args := ownerClause(ownerID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ? WHERE id = ? AND `+clause,
		append([]any{title, sessionID}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return requireRow(res)
}

// SetSessionPinned toggles the pinned flag on a session the caller owns.
func (s *Service) SetSessionPinned(ctx context.Context, ownerID *string, sessionID string, pinned bool) error {
	val := 0
	if pinned {
		val = 1
	}
	clause, args := ownerClause(ownerID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET pinned = ? WHERE id = ? AND `+clause,
		append([]any{val, sessionID}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("pin session: %w", err)
	}
	return requireRow(res)
}

// DeleteSession removes a session and its messages in one transaction.
// Either both go or neither does.
func (s *Service) DeleteSession(ctx context.Context, ownerID *string, sessionID string) error {
	if err := s.VerifySessionOwner(ctx, ownerID, sessionID); err != nil {
		return err
	}
	return s.deleteSessionTx(ctx, sessionID)
}

// DeleteSessionAdmin removes any session regardless of owner.
func (s *Service) DeleteSessionAdmin(ctx context.Context, sessionID string) error {
	return s.deleteSessionTx(ctx, sessionID)
}

func (s *Service) deleteSessionTx(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	var res sql.Result
	res, err = tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	var affected int64
	affected, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete session: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
