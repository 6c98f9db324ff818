// Package admin - repository.go работает с таблицами admin_sessions и admin_login_attempts
// и считает сводку по системе.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store - хранилище админ-панели.
type Store interface {
	CreateSession(ctx context.Context, session *AdminSession) error
	GetActiveSession(ctx context.Context, userID int64) (*AdminSession, error)
	UpdateActivity(ctx context.Context, userID int64) error
	LogAttempt(ctx context.Context, userID int64, success bool) error
	GetRecentAttempts(ctx context.Context, userID int64, period time.Duration) (int, error)
	DeleteExpiredSessions(ctx context.Context) (int64, error)
	SystemStats(ctx context.Context, since time.Time) (*SystemStats, error)
}

// Repository работает с админ-таблицами.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateSession создаёт новую сессию администратора.
func (r *Repository) CreateSession(ctx context.Context, session *AdminSession) error {
	query := `
		INSERT INTO admin_sessions (user_id, session_token, expires_at, is_active)
		VALUES ($1, $2, $3, TRUE)
	`
	_, err := r.db.Exec(ctx, query, session.UserID, session.SessionToken, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

// GetActiveSession возвращает активную сессию пользователя.
func (r *Repository) GetActiveSession(ctx context.Context, userID int64) (*AdminSession, error) {
	query := `
		SELECT id, user_id, session_token, authenticated_at, expires_at, last_activity, is_active
		FROM admin_sessions
		WHERE user_id = $1 AND is_active = TRUE AND expires_at > NOW()
		ORDER BY authenticated_at DESC
		LIMIT 1
	`
	var s AdminSession
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.SessionToken, &s.AuthenticatedAt,
		&s.ExpiresAt, &s.LastActivity, &s.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("активная сессия не найдена: %w", err)
	}
	return &s, nil
}

// UpdateActivity обновляет время последней активности.
func (r *Repository) UpdateActivity(ctx context.Context, userID int64) error {
	query := `UPDATE admin_sessions SET last_activity = NOW() WHERE user_id = $1 AND is_active = TRUE`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, userID int64, success bool) error {
	query := `INSERT INTO admin_login_attempts (user_id, success) VALUES ($1, $2)`
	_, err := r.db.Exec(ctx, query, userID, success)
	return err
}

// GetRecentAttempts возвращает количество неудачных попыток за указанный период.
func (r *Repository) GetRecentAttempts(ctx context.Context, userID int64, period time.Duration) (int, error) {
	since := time.Now().Add(-period)
	query := `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempt_time >= $2
	`
	var count int
	err := r.db.QueryRow(ctx, query, userID, since).Scan(&count)
	return count, err
}

// DeleteExpiredSessions удаляет истёкшие и выключенные сессии.
func (r *Repository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM admin_sessions WHERE expires_at < NOW() OR is_active = FALSE`)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления сессий: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SystemStats считает сводку. since - начало текущих суток.
// Выручка считается за вычетом возвратов.
func (r *Repository) SystemStats(ctx context.Context, since time.Time) (*SystemStats, error) {
	var s SystemStats
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM members),
			(SELECT COUNT(*) FROM members WHERE last_seen_at > NOW() - INTERVAL '24 hours'),
			(SELECT COUNT(*) FROM case_openings WHERE created_at >= $1),
			(SELECT COALESCE(SUM(CASE WHEN type = 'spend' THEN amount ELSE -amount END), 0)::BIGINT
			   FROM transactions WHERE type IN ('spend', 'refund') AND currency = 'STARS'),
			(SELECT COALESCE(SUM(CASE WHEN type = 'spend' THEN amount ELSE -amount END), 0)
			   FROM transactions WHERE type IN ('spend', 'refund') AND currency = 'TON'),
			(SELECT COALESCE(SUM(amount), 0)::BIGINT FROM transactions WHERE type = 'deposit' AND currency = 'STARS'),
			(SELECT COUNT(*) FROM cases WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM cases)
	`, since).Scan(
		&s.Users, &s.Active24h, &s.OpeningsToday,
		&s.RevenueStars, &s.RevenueTON, &s.DepositsStars,
		&s.ActiveCases, &s.TotalCases,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}
	return &s, nil
}
