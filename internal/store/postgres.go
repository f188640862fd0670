package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// userRepo implements UserRepository.
type userRepo struct {
	pool *pgxpool.Pool
}

func (r *userRepo) UpsertOAuthUser(ctx context.Context, subject, email string) (*User, error) {
	defer observeDB(ctx, "db.users.upsert")()

	const q = `INSERT INTO users (oauth_subject, primary_email, last_login_at)
VALUES ($1, $2, NOW())
ON CONFLICT (oauth_subject) DO UPDATE
SET primary_email = EXCLUDED.primary_email, last_login_at = NOW()
RETURNING id, oauth_subject, primary_email, created_at, last_login_at`

	var u User
	if err := r.pool.QueryRow(ctx, q, subject, email).
		Scan(&u.ID, &u.OAuthSubject, &u.PrimaryEmail, &u.CreatedAt, &u.LastLoginAt); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	defer observeDB(ctx, "db.users.get")()

	const q = `SELECT id, oauth_subject, primary_email, created_at, last_login_at
FROM users WHERE id = $1`

	var u User
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&u.ID, &u.OAuthSubject, &u.PrimaryEmail, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// sessionRepo implements SessionRepository.
type sessionRepo struct {
	pool *pgxpool.Pool
}

func (r *sessionRepo) Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (*Session, error) {
	defer observeDB(ctx, "db.sessions.create")()

	const q = `INSERT INTO sessions (user_id, token_hash, expires_at)
VALUES ($1, $2, $3)
RETURNING id, user_id, token_hash, created_at, expires_at`

	var s Session
	if err := r.pool.QueryRow(ctx, q, userID, tokenHash, expiresAt).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &s, nil
}

func (r *sessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	defer observeDB(ctx, "db.sessions.get")()

	const q = `SELECT id, user_id, token_hash, created_at, expires_at
FROM sessions WHERE token_hash = $1 AND expires_at > NOW()`

	var s Session
	err := r.pool.QueryRow(ctx, q, tokenHash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (r *sessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	defer observeDB(ctx, "db.sessions.delete")()

	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	defer observeDB(ctx, "db.sessions.sweep")()

	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// eventRepo implements EventRepository.
type eventRepo struct {
	pool *pgxpool.Pool
}

const eventColumns = `id, user_id, title, description, start_at, end_at, is_all_day,
location, color,
recurrence_frequency, recurrence_interval, recurrence_days,
recurrence_day_of_month, recurrence_week_of_month, recurrence_day_of_week,
recurrence_end_date, recurrence_count,
created_at, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		e Event
		c ruleColumns
	)
	err := row.Scan(
		&e.ID, &e.UserID, &e.Title, &e.Description, &e.StartAt, &e.EndAt, &e.AllDay,
		&e.Location, &e.Color,
		&c.Frequency, &c.Interval, &c.Days,
		&c.DayOfMonth, &c.WeekOfMonth, &c.DayOfWeek,
		&c.EndDate, &c.Count,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Recurrence = c.rule()
	return &e, nil
}

func (r *eventRepo) Create(ctx context.Context, event Event) (*Event, error) {
	defer observeDB(ctx, "db.events.create")()

	const q = `INSERT INTO events (
	id, user_id, title, description, start_at, end_at, is_all_day, location, color,
	recurrence_frequency, recurrence_interval, recurrence_days,
	recurrence_day_of_month, recurrence_week_of_month, recurrence_day_of_week,
	recurrence_end_date, recurrence_count
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
RETURNING ` + eventColumns

	c := columnsOf(event.Recurrence)
	created, err := scanEvent(r.pool.QueryRow(ctx, q,
		event.ID, event.UserID, event.Title, event.Description,
		event.StartAt, event.EndAt, event.AllDay, event.Location, event.Color,
		c.Frequency, c.Interval, c.Days,
		c.DayOfMonth, c.WeekOfMonth, c.DayOfWeek,
		c.EndDate, c.Count,
	))
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}

func (r *eventRepo) Update(ctx context.Context, event Event) (*Event, error) {
	defer observeDB(ctx, "db.events.update")()

	const q = `UPDATE events SET
	title = $3, description = $4, start_at = $5, end_at = $6, is_all_day = $7,
	location = $8, color = $9,
	recurrence_frequency = $10, recurrence_interval = $11, recurrence_days = $12,
	recurrence_day_of_month = $13, recurrence_week_of_month = $14,
	recurrence_day_of_week = $15, recurrence_end_date = $16, recurrence_count = $17,
	updated_at = NOW()
WHERE id = $1 AND user_id = $2
RETURNING ` + eventColumns

	c := columnsOf(event.Recurrence)
	updated, err := scanEvent(r.pool.QueryRow(ctx, q,
		event.ID, event.UserID, event.Title, event.Description,
		event.StartAt, event.EndAt, event.AllDay, event.Location, event.Color,
		c.Frequency, c.Interval, c.Days,
		c.DayOfMonth, c.WeekOfMonth, c.DayOfWeek,
		c.EndDate, c.Count,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update event %s: %w", event.ID, err)
	}
	return updated, nil
}

func (r *eventRepo) GetByID(ctx context.Context, userID int64, id string) (*Event, error) {
	defer observeDB(ctx, "db.events.get")()

	q := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND user_id = $2`
	event, err := scanEvent(r.pool.QueryRow(ctx, q, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return event, nil
}

func (r *eventRepo) Delete(ctx context.Context, userID int64, id string) error {
	defer observeDB(ctx, "db.events.delete")()

	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *eventRepo) ListForWindow(ctx context.Context, userID int64, from, to time.Time) ([]Event, error) {
	defer observeDB(ctx, "db.events.list_window")()

	q := `SELECT ` + eventColumns + ` FROM events
WHERE user_id = $1
  AND start_at <= $3
  AND (
	(recurrence_frequency = 'none' AND end_at >= $2)
	OR (recurrence_frequency <> 'none'
		AND (recurrence_end_date IS NULL OR recurrence_end_date >= $2))
  )
ORDER BY start_at, id`

	rows, err := r.pool.Query(ctx, q, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}
