package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/mqttlink/internal/link"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one persisted link event.
type Entry struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	ClientID   string    `json:"client_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EntryFromEvent converts a link event into a journal entry.
func EntryFromEvent(ev link.Event) Entry {
	e := Entry{
		Kind:       string(ev.Kind),
		ClientID:   ev.ClientID,
		Detail:     ev.Detail,
		OccurredAt: ev.Time,
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e
}

// Filter controls which entries List returns.
type Filter struct {
	Kind     string    // optional: exact event kind
	ClientID string    // optional: exact client id
	Since    time.Time // optional: only entries at or after Since
	Limit    int       // default 50, max 500
	Offset   int       // pagination offset
}

// ListResult contains a page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository persists link events.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository stores entries in the link_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID and OccurredAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.Kind == "" {
		return errors.New("journal entry has no kind")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	e.OccurredAt = e.OccurredAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO link_events (id, kind, client_id, detail, error, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.ClientID, e.Detail,
		nullableString(e.Error),
		e.OccurredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting link event: %w", err)
	}
	return nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.ClientID != "" {
		conditions = append(conditions, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, filter.Since.UTC().UnixNano())
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM link_events " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting link events: %w", err)
	}

	query := "SELECT id, kind, client_id, detail, error, occurred_at FROM link_events " + //nolint:gosec // WHERE built from parameterised conditions
		where + " ORDER BY occurred_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying link events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		var occurred int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.ClientID, &e.Detail, &errText, &occurred); err != nil {
			return nil, fmt.Errorf("scanning link event: %w", err)
		}
		e.Error = errText.String
		e.OccurredAt = time.Unix(0, occurred).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating link events: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Prune deletes entries older than before and reports how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM link_events WHERE occurred_at < ?",
		before.UTC().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning link events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning link events: %w", err)
	}
	return n, nil
}
