// Package postgres persists asteroids, approaches, accounts, watchlists, and
// chat history in PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cosmicwatch/neo-watch-service/internal/domain"
	"github.com/cosmicwatch/neo-watch-service/internal/pipeline"
)

const uniqueViolation = "23505"

// Store wraps a sqlx database handle.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open prepares a connection pool for the given DSN. No connection is made
// until first use; callers that need to know reachability up front should
// Ping with a bounded context.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, &domain.StorageError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &domain.StorageError{Op: "ping", Err: err}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS asteroids (
		asteroid_id              BIGINT PRIMARY KEY,
		neo_reference_id         TEXT NOT NULL,
		name                     TEXT NOT NULL,
		nasa_jpl_url             TEXT NOT NULL DEFAULT '',
		absolute_magnitude_h     DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_potentially_hazardous BOOLEAN NOT NULL DEFAULT FALSE,
		is_sentry_object         BOOLEAN NOT NULL DEFAULT FALSE,
		est_diam_km_min          DOUBLE PRECISION NOT NULL DEFAULT 0,
		est_diam_km_max          DOUBLE PRECISION NOT NULL DEFAULT 0,
		est_diam_m_min           DOUBLE PRECISION NOT NULL DEFAULT 0,
		est_diam_m_max           DOUBLE PRECISION NOT NULL DEFAULT 0,
		est_diam_miles_min       DOUBLE PRECISION NOT NULL DEFAULT 0,
		est_diam_miles_max       DOUBLE PRECISION NOT NULL DEFAULT 0,
		est_diam_feet_min        DOUBLE PRECISION NOT NULL DEFAULT 0,
		est_diam_feet_max        DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS asteroid_approach (
		approach_id               BIGSERIAL PRIMARY KEY,
		asteroid_id               BIGINT NOT NULL REFERENCES asteroids(asteroid_id),
		approach_date             DATE NOT NULL,
		approach_date_full        TEXT,
		epoch_date_close_approach BIGINT,
		velocity_kmps             DOUBLE PRECISION NOT NULL DEFAULT 0,
		velocity_kmph             DOUBLE PRECISION NOT NULL DEFAULT 0,
		velocity_mph              DOUBLE PRECISION NOT NULL DEFAULT 0,
		miss_distance_au          DOUBLE PRECISION NOT NULL DEFAULT 0,
		miss_distance_lunar       DOUBLE PRECISION NOT NULL DEFAULT 0,
		miss_distance_km          DOUBLE PRECISION NOT NULL DEFAULT 0,
		miss_distance_miles       DOUBLE PRECISION NOT NULL DEFAULT 0,
		orbiting_body             TEXT NOT NULL DEFAULT '',
		risk_score                DOUBLE PRECISION NOT NULL DEFAULT 0,
		UNIQUE (asteroid_id, approach_date, orbiting_body)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_approach_date ON asteroid_approach (approach_date)`,
	`CREATE INDEX IF NOT EXISTS idx_approach_risk ON asteroid_approach (risk_score)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id       BIGSERIAL PRIMARY KEY,
		full_name     TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'user',
		is_verified   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS watchlist (
		user_id     BIGINT NOT NULL REFERENCES users(user_id),
		asteroid_id BIGINT NOT NULL REFERENCES asteroids(asteroid_id),
		added_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, asteroid_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		message_id   BIGSERIAL PRIMARY KEY,
		user_id      BIGINT REFERENCES users(user_id),
		sender_name  TEXT NOT NULL,
		message_text TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages (created_at)`,
}

// RunMigrations creates the schema if it does not exist yet. Statements are
// idempotent so repeated startups are safe.
func (s *Store) RunMigrations(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &domain.StorageError{Op: "migrate", Err: err}
		}
	}
	s.logger.Info("database schema ready")
	return nil
}

// storeTx adapts one sql transaction to the ingestion write surface.
type storeTx struct {
	tx *sqlx.Tx
}

// WithinTx runs fn inside a single transaction, rolling back on error.
func (s *Store) WithinTx(ctx context.Context, fn func(tx pipeline.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin tx", Err: err}
	}
	defer tx.Rollback()

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit tx", Err: err}
	}
	return nil
}

const insertAsteroidQuery = `
	INSERT INTO asteroids (
		asteroid_id, neo_reference_id, name, nasa_jpl_url, absolute_magnitude_h,
		is_potentially_hazardous, is_sentry_object,
		est_diam_km_min, est_diam_km_max, est_diam_m_min, est_diam_m_max,
		est_diam_miles_min, est_diam_miles_max, est_diam_feet_min, est_diam_feet_max
	) VALUES (
		:asteroid_id, :neo_reference_id, :name, :nasa_jpl_url, :absolute_magnitude_h,
		:is_potentially_hazardous, :is_sentry_object,
		:est_diam_km_min, :est_diam_km_max, :est_diam_m_min, :est_diam_m_max,
		:est_diam_miles_min, :est_diam_miles_max, :est_diam_feet_min, :est_diam_feet_max
	) ON CONFLICT (asteroid_id) DO NOTHING`

func (t *storeTx) InsertAsteroidIfAbsent(ctx context.Context, a domain.Asteroid) (bool, error) {
	res, err := t.tx.NamedExecContext(ctx, insertAsteroidQuery, a)
	if err != nil {
		return false, &domain.StorageError{Op: "insert asteroid", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &domain.StorageError{Op: "insert asteroid", Err: err}
	}
	return n > 0, nil
}

const insertApproachQuery = `
	INSERT INTO asteroid_approach (
		asteroid_id, approach_date, approach_date_full, epoch_date_close_approach,
		velocity_kmps, velocity_kmph, velocity_mph,
		miss_distance_au, miss_distance_lunar, miss_distance_km, miss_distance_miles,
		orbiting_body, risk_score
	) VALUES (
		:asteroid_id, :approach_date, :approach_date_full, :epoch_date_close_approach,
		:velocity_kmps, :velocity_kmph, :velocity_mph,
		:miss_distance_au, :miss_distance_lunar, :miss_distance_km, :miss_distance_miles,
		:orbiting_body, :risk_score
	) ON CONFLICT (asteroid_id, approach_date, orbiting_body) DO NOTHING`

func (t *storeTx) InsertApproachIfAbsent(ctx context.Context, e domain.ApproachEvent) (bool, error) {
	res, err := t.tx.NamedExecContext(ctx, insertApproachQuery, e)
	if err != nil {
		return false, &domain.StorageError{Op: "insert approach", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &domain.StorageError{Op: "insert approach", Err: err}
	}
	return n > 0, nil
}

// RecentAsteroids returns the most recent approaches from the last seven days,
// newest first, capped at limit rows.
func (s *Store) RecentAsteroids(ctx context.Context, limit int) ([]domain.AsteroidSummary, error) {
	const query = `
		SELECT a.asteroid_id, a.neo_reference_id, a.name, a.est_diam_km_max,
		       p.velocity_kmph, p.miss_distance_km, p.risk_score
		FROM asteroid_approach p
		JOIN asteroids a ON a.asteroid_id = p.asteroid_id
		WHERE p.approach_date >= NOW() - INTERVAL '7 days'
		ORDER BY p.approach_date DESC, p.risk_score DESC
		LIMIT $1`

	rows := []domain.AsteroidSummary{}
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, &domain.StorageError{Op: "select recent asteroids", Err: err}
	}
	return rows, nil
}

// Stats returns the aggregate dashboard counters: catalogue totals, the
// closest upcoming approach, and the fastest approach seen in the last 30
// days.
func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	const query = `
		SELECT COUNT(DISTINCT a.asteroid_id)                          AS total_neos,
		       COUNT(DISTINCT a.asteroid_id)
		           FILTER (WHERE a.is_potentially_hazardous)          AS hazardous_count,
		       COALESCE(MIN(p.miss_distance_km)
		           FILTER (WHERE p.approach_date >= NOW()), 0)        AS closest_distance,
		       COALESCE(MAX(p.velocity_kmph)
		           FILTER (WHERE p.approach_date >= NOW() - INTERVAL '30 days'), 0)
		                                                              AS fastest_velocity
		FROM asteroids a
		LEFT JOIN asteroid_approach p ON p.asteroid_id = a.asteroid_id`

	var stats domain.Stats
	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return domain.Stats{}, &domain.StorageError{Op: "select stats", Err: err}
	}
	return stats, nil
}

// RiskAnalysis returns one asteroid with its full approach history, oldest
// first. Returns ErrNotFound for an unknown id.
func (s *Store) RiskAnalysis(ctx context.Context, asteroidID int64) (domain.RiskAnalysis, error) {
	const headerQuery = `
		SELECT name, est_diam_m_max, is_potentially_hazardous
		FROM asteroids WHERE asteroid_id = $1`

	var analysis domain.RiskAnalysis
	if err := s.db.GetContext(ctx, &analysis.Asteroid, headerQuery, asteroidID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RiskAnalysis{}, domain.ErrNotFound
		}
		return domain.RiskAnalysis{}, &domain.StorageError{Op: "select asteroid", Err: err}
	}

	const historyQuery = `
		SELECT approach_date, miss_distance_km, velocity_kmph, risk_score
		FROM asteroid_approach
		WHERE asteroid_id = $1
		ORDER BY approach_date ASC`

	analysis.Approaches = []domain.ApproachPoint{}
	if err := s.db.SelectContext(ctx, &analysis.Approaches, historyQuery, asteroidID); err != nil {
		return domain.RiskAnalysis{}, &domain.StorageError{Op: "select approach history", Err: err}
	}
	return analysis, nil
}

// UpcomingHighRisk returns approaches due within the window whose risk score
// exceeds minRisk, highest risk first.
func (s *Store) UpcomingHighRisk(ctx context.Context, within time.Duration, minRisk float64) ([]domain.UpcomingApproach, error) {
	const query = `
		SELECT a.name, p.miss_distance_km, p.velocity_kmph, p.risk_score
		FROM asteroid_approach p
		JOIN asteroids a ON a.asteroid_id = p.asteroid_id
		WHERE p.approach_date >= NOW()
		  AND p.approach_date < NOW() + $1 * INTERVAL '1 second'
		  AND p.risk_score > $2
		ORDER BY p.risk_score DESC`

	rows := []domain.UpcomingApproach{}
	if err := s.db.SelectContext(ctx, &rows, query, within.Seconds(), minRisk); err != nil {
		return nil, &domain.StorageError{Op: "select upcoming high risk", Err: err}
	}
	return rows, nil
}

// AddToWatchlist records that a user watches an asteroid and reports whether
// a new entry was created; false means the asteroid was already watched.
// Returns ErrNotFound when the asteroid does not exist.
func (s *Store) AddToWatchlist(ctx context.Context, userID, asteroidID int64) (bool, error) {
	const query = `
		INSERT INTO watchlist (user_id, asteroid_id) VALUES ($1, $2)
		ON CONFLICT (user_id, asteroid_id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query, userID, asteroidID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return false, domain.ErrNotFound
		}
		return false, &domain.StorageError{Op: "insert watchlist", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &domain.StorageError{Op: "insert watchlist", Err: err}
	}
	return n > 0, nil
}

// Watchlist returns the user's watched asteroids with each one's next
// upcoming approach, or null approach fields when none is scheduled.
func (s *Store) Watchlist(ctx context.Context, userID int64) ([]domain.WatchlistEntry, error) {
	const query = `
		SELECT a.asteroid_id, a.neo_reference_id, a.name,
		       n.miss_distance_km, n.velocity_kmph, n.risk_score
		FROM watchlist w
		JOIN asteroids a ON a.asteroid_id = w.asteroid_id
		LEFT JOIN LATERAL (
			SELECT miss_distance_km, velocity_kmph, risk_score
			FROM asteroid_approach
			WHERE asteroid_id = w.asteroid_id AND approach_date >= NOW()
			ORDER BY approach_date ASC
			LIMIT 1
		) n ON TRUE
		WHERE w.user_id = $1
		ORDER BY w.added_at DESC`

	rows := []domain.WatchlistEntry{}
	if err := s.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, &domain.StorageError{Op: "select watchlist", Err: err}
	}
	return rows, nil
}

// RemoveFromWatchlist deletes one watchlist entry. Returns ErrNotFound when
// the user was not watching the asteroid.
func (s *Store) RemoveFromWatchlist(ctx context.Context, userID, asteroidID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE user_id = $1 AND asteroid_id = $2`, userID, asteroidID)
	if err != nil {
		return &domain.StorageError{Op: "delete watchlist", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.StorageError{Op: "delete watchlist", Err: err}
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateUser inserts a new account and returns it with its generated id.
// Returns ErrEmailTaken when the email is already registered.
func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	const query = `
		INSERT INTO users (full_name, email, password_hash, role, is_verified)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING user_id`

	err := s.db.GetContext(ctx, &u.ID, query, u.FullName, u.Email, u.PasswordHash, u.Role, u.Verified)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, &domain.StorageError{Op: "insert user", Err: err}
	}
	return u, nil
}

// GetUserByEmail looks up an account for login. Returns ErrNotFound when no
// account exists for the email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `
		SELECT user_id, full_name, email, password_hash, role, is_verified
		FROM users WHERE email = $1`

	var u domain.User
	if err := s.db.GetContext(ctx, &u, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, &domain.StorageError{Op: "select user", Err: err}
	}
	return u, nil
}

// UserName returns a user's display name. Returns ErrNotFound for unknown ids.
func (s *Store) UserName(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name, `SELECT full_name FROM users WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", &domain.StorageError{Op: "select user name", Err: err}
	}
	return name, nil
}

// InsertMessage persists one chat message and returns it with its id and
// server-side timestamp filled in.
func (s *Store) InsertMessage(ctx context.Context, m domain.ChatMessage) (domain.ChatMessage, error) {
	const query = `
		INSERT INTO messages (user_id, sender_name, message_text)
		VALUES ($1, $2, $3)
		RETURNING message_id, created_at`

	row := s.db.QueryRowxContext(ctx, query, m.UserID, m.SenderName, m.Text)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return domain.ChatMessage{}, &domain.StorageError{Op: "insert message", Err: err}
	}
	return m, nil
}

// RecentMessages returns the last limit chat messages in chronological order.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	const query = `
		SELECT message_id, user_id, sender_name, message_text, created_at
		FROM (
			SELECT message_id, user_id, sender_name, message_text, created_at
			FROM messages
			ORDER BY created_at DESC, message_id DESC
			LIMIT $1
		) latest
		ORDER BY created_at ASC, message_id ASC`

	rows := []domain.ChatMessage{}
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, &domain.StorageError{Op: "select recent messages", Err: err}
	}
	return rows, nil
}

var _ pipeline.Store = (*Store)(nil)
