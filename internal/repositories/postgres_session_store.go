package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/motioncourse/web/internal/db"
	"github.com/motioncourse/web/internal/models"
	"github.com/motioncourse/web/internal/session"
)

// PostgresSessionStore persists session identities to PostgreSQL.
type PostgresSessionStore struct {
	pool db.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool, ttl time.Duration) *PostgresSessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &PostgresSessionStore{pool: pool, ttl: ttl, now: time.Now}
}

// Save stores or replaces the identity for id.
func (s *PostgresSessionStore) Save(ctx context.Context, id string, user models.User) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	now := s.now().UTC()
	_, err = conn.Exec(ctx, `
        INSERT INTO session_users (session_id, username, email, course_id, expires_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (session_id)
        DO UPDATE SET username = EXCLUDED.username,
                      email = EXCLUDED.email,
                      course_id = EXCLUDED.course_id,
                      expires_at = EXCLUDED.expires_at,
                      updated_at = EXCLUDED.updated_at
    `, id, user.Username, user.Email, user.Course, now.Add(s.ttl), now)
	if err != nil {
		return fmt.Errorf("upsert session user: %w", err)
	}
	return nil
}

// Load returns the identity stored for id if it has not expired.
func (s *PostgresSessionStore) Load(ctx context.Context, id string) (models.User, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT username, email, course_id
        FROM session_users
        WHERE session_id = $1 AND expires_at > $2
    `, id, s.now().UTC())

	var user models.User
	if err := row.Scan(&user.Username, &user.Email, &user.Course); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, session.ErrNotFound
		}
		return models.User{}, fmt.Errorf("select session user: %w", err)
	}
	return user, nil
}

// Delete removes the identity stored for id. Missing rows are not an error.
func (s *PostgresSessionStore) Delete(ctx context.Context, id string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `DELETE FROM session_users WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("delete session user: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired rows and reports how many were removed.
func (s *PostgresSessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM session_users WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge session users: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping reports whether the database answers.
func (s *PostgresSessionStore) Ping(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	return conn.Ping(ctx)
}
