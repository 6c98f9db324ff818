// Package inventory - repository.go работает с таблицей user_inventory.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/db/postgres"
)

// Store - хранилище инвентаря.
type Store interface {
	Append(ctx context.Context, e Entry) error
	ListForUser(ctx context.Context, userID int64, limit int) ([]*Entry, error)
	Gift(ctx context.Context, entryID uuid.UUID, fromUserID, toUserID int64) (*Entry, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)
}

// Repository - Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий инвентаря.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const entryColumns = `id, user_id, item_id, case_id, opening_id, item_name, COALESCE(item_image, ''),
	item_rarity, item_value, is_gifted, gifted_to, gifted_at, obtained_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.UserID, &e.ItemID, &e.CaseID, &e.OpeningID, &e.ItemName, &e.ItemImage,
		&e.ItemRarity, &e.ItemValue, &e.IsGifted, &e.GiftedTo, &e.GiftedAt, &e.ObtainedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Append добавляет запись отдельным запросом.
func (r *Repository) Append(ctx context.Context, e Entry) error {
	return AppendTx(ctx, r.db, e)
}

// AppendTx добавляет запись через переданный исполнитель.
// Запись открытия кейса вызывает её внутри своей транзакции.
func AppendTx(ctx context.Context, db postgres.DBTX, e Entry) error {
	_, err := db.Exec(ctx, `
		INSERT INTO user_inventory
			(id, user_id, item_id, case_id, opening_id, item_name, item_image, item_rarity, item_value, obtained_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
	`, e.ID, e.UserID, e.ItemID, e.CaseID, e.OpeningID, e.ItemName, e.ItemImage,
		string(e.ItemRarity), e.ItemValue, e.ObtainedAt)
	if err != nil {
		return fmt.Errorf("ошибка добавления в инвентарь: %w", err)
	}
	return nil
}

// ListForUser возвращает предметы пользователя, новые первыми.
func (r *Repository) ListForUser(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM user_inventory
		WHERE user_id = $1
		ORDER BY obtained_at DESC, id
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения инвентаря: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования инвентаря: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Gift помечает запись подаренной и заводит копию у получателя.
// Условный UPDATE гарантирует, что запись дарится один раз и только владельцем.
func (r *Repository) Gift(ctx context.Context, entryID uuid.UUID, fromUserID, toUserID int64) (*Entry, error) {
	var gifted *Entry
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM members WHERE user_id = $1)`, toUserID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("ошибка проверки получателя: %w", err)
		}
		if !exists {
			return common.ErrUserNotFound
		}

		e, err := scanEntry(tx.QueryRow(ctx, `
			UPDATE user_inventory
			SET is_gifted = TRUE, gifted_to = $3, gifted_at = NOW()
			WHERE id = $1 AND user_id = $2 AND is_gifted = FALSE
			RETURNING `+entryColumns, entryID, fromUserID, toUserID))
		if errors.Is(err, pgx.ErrNoRows) {
			return explainGiftMiss(ctx, tx, entryID, fromUserID)
		}
		if err != nil {
			return fmt.Errorf("ошибка передачи предмета: %w", err)
		}

		copyEntry := *e
		copyEntry.ID = uuid.New()
		copyEntry.UserID = toUserID
		copyEntry.ObtainedAt = *e.GiftedAt
		copyEntry.IsGifted = false
		copyEntry.GiftedTo = nil
		copyEntry.GiftedAt = nil
		if err := AppendTx(ctx, tx, copyEntry); err != nil {
			return err
		}
		gifted = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return gifted, nil
}

// explainGiftMiss выясняет, почему условный UPDATE не нашёл строку.
func explainGiftMiss(ctx context.Context, db postgres.DBTX, entryID uuid.UUID, fromUserID int64) error {
	var owner int64
	var isGifted bool
	err := db.QueryRow(ctx,
		`SELECT user_id, is_gifted FROM user_inventory WHERE id = $1`, entryID,
	).Scan(&owner, &isGifted)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return common.ErrItemNotFound
	case err != nil:
		return fmt.Errorf("ошибка чтения предмета: %w", err)
	case owner != fromUserID:
		return common.ErrNotOwner
	case isGifted:
		return common.ErrAlreadyGifted
	default:
		return common.ErrItemNotFound
	}
}

// Leaderboard - пользователи по суммарной ценности неподаренных предметов.
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT i.user_id, COALESCE(m.username, ''), COALESCE(m.first_name, ''),
		       COUNT(*) AS items, COALESCE(SUM(i.item_value), 0) AS total_value
		FROM user_inventory i
		LEFT JOIN members m ON m.user_id = i.user_id
		WHERE i.is_gifted = FALSE
		GROUP BY i.user_id, m.username, m.first_name
		ORDER BY total_value DESC, items DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения таблицы лидеров: %w", err)
	}
	defer rows.Close()

	var out []LeaderboardRow
	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(&row.UserID, &row.Username, &row.FirstName, &row.Items, &row.TotalValue); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
