// Package members - repository.go отвечает за все операции с таблицей members в БД.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package members

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/gifts-bot/internal/common"
)

// Store - хранилище участников.
type Store interface {
	Upsert(ctx context.Context, p Profile) (bool, error)
	GetByUserID(ctx context.Context, userID int64) (*Member, error)
	GetByUsername(ctx context.Context, username string) (*Member, error)
	SetBanned(ctx context.Context, userID int64, banned bool) error
	Count(ctx context.Context) (int64, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const memberColumns = `id, user_id, COALESCE(username, ''), first_name, COALESCE(last_name, ''),
	COALESCE(language_code, ''), is_premium, is_banned, cases_opened,
	joined_at, last_seen_at, created_at, updated_at`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(
		&m.ID, &m.UserID, &m.Username, &m.FirstName, &m.LastName,
		&m.LanguageCode, &m.IsPremium, &m.IsBanned, &m.CasesOpened,
		&m.JoinedAt, &m.LastSeenAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert добавляет участника или обновляет его профиль и last_seen_at.
// Флаг бана и счётчики на конфликте не трогаются.
// Возвращает true, если запись создана сейчас.
func (r *Repository) Upsert(ctx context.Context, p Profile) (bool, error) {
	query := `
		INSERT INTO members (user_id, username, first_name, last_name, language_code, is_premium, last_seen_at)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), $6, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET username = COALESCE(EXCLUDED.username, members.username),
		    first_name = CASE WHEN EXCLUDED.first_name = '' THEN members.first_name ELSE EXCLUDED.first_name END,
		    last_name = COALESCE(EXCLUDED.last_name, members.last_name),
		    language_code = COALESCE(EXCLUDED.language_code, members.language_code),
		    is_premium = EXCLUDED.is_premium,
		    last_seen_at = NOW(),
		    updated_at = NOW()
		RETURNING (xmax = 0)
	`
	var created bool
	err := r.db.QueryRow(ctx, query,
		p.UserID, strings.TrimPrefix(p.Username, "@"), p.FirstName, p.LastName, p.LanguageCode, p.IsPremium,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("ошибка создания/обновления участника: %w", err)
	}
	return created, nil
}

// GetByUserID: если не найден - common.ErrUserNotFound
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	m, err := scanMember(r.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("участник не найден (user_id=%d): %w", userID, common.ErrUserNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения участника (user_id=%d): %w", userID, err)
	}
	return m, nil
}

// GetByUsername ищет без учёта регистра; если не найден - common.ErrUserNotFound
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Member, error) {
	m, err := scanMember(r.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE LOWER(username) = LOWER($1)`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("участник не найден (username=%s): %w", username, common.ErrUserNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения участника (username=%s): %w", username, err)
	}
	return m, nil
}

func (r *Repository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE members SET is_banned = $2, updated_at = NOW() WHERE user_id = $1`, userID, banned)
	if err != nil {
		return fmt.Errorf("ошибка обновления бана: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM members`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта участников: %w", err)
	}
	return n, nil
}
