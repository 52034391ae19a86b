package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"companion/internal/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrInvalidRole = errors.New("role must be user or model")
	ErrInvalidPage = fmt.Errorf("limit must be within [1,%d] and offset must not be negative", MaxPageSize)
)

// Store reads and writes conversation turns. An empty scope reads the whole
// table; callers that know the speaker should always pass a scope.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore builds a Store on an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// History returns the scope's turns oldest first, for seeding a model session.
// A user turn without a following model turn is returned as is.
func (s *Store) History(ctx context.Context, scope models.Scope) ([]models.HistoryEntry, error) {
	query := `SELECT role, content FROM conversations`
	var args []any
	if scope != "" {
		query += ` WHERE user_id = ?`
		args = append(args, string(scope))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	history := make([]models.HistoryEntry, 0)
	for rows.Next() {
		var entry models.HistoryEntry
		if err := rows.Scan(&entry.Role, &entry.Content); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// Page returns full turns newest first using offset pagination.
func (s *Store) Page(ctx context.Context, scope models.Scope, limit, offset int) ([]models.Turn, error) {
	if limit < 1 || limit > MaxPageSize || offset < 0 {
		return nil, ErrInvalidPage
	}
	query := `SELECT id, created_at, user_id, role, content FROM conversations`
	var args []any
	if scope != "" {
		query += ` WHERE user_id = ?`
		args = append(args, string(scope))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]models.Turn, 0, limit)
	for rows.Next() {
		var (
			turn   models.Turn
			userID sql.NullString
		)
		if err := rows.Scan(&turn.ID, &turn.CreatedAt, &userID, &turn.Role, &turn.Content); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if userID.Valid {
			id := userID.String
			turn.UserID = &id
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// AppendExchange writes the user turn and then the model turn in one transaction.
func (s *Store) AppendExchange(ctx context.Context, scope models.Scope, userContent, modelContent string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	userID := scopeUserID(scope)
	if _, err = s.insert(ctx, tx, models.Turn{UserID: userID, Role: models.RoleUser, Content: userContent}); err != nil {
		return err
	}
	if _, err = s.insert(ctx, tx, models.Turn{UserID: userID, Role: models.RoleModel, Content: modelContent}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit exchange: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, db execer, turn models.Turn) (*models.Turn, error) {
	if !turn.Role.Valid() {
		return nil, ErrInvalidRole
	}
	now := s.now()
	var userID any
	if turn.UserID != nil && strings.TrimSpace(*turn.UserID) != "" {
		userID = *turn.UserID
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO conversations (created_at, user_id, role, content) VALUES (?, ?, ?, ?)`,
		now, userID, string(turn.Role), turn.Content,
	)
	if err != nil {
		return nil, fmt.Errorf("insert %s turn: %w", turn.Role, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("turn id: %w", err)
	}
	turn.ID = id
	turn.CreatedAt = now
	return &turn, nil
}

func scopeUserID(scope models.Scope) *string {
	if scope == "" {
		return nil
	}
	id := string(scope)
	return &id
}
