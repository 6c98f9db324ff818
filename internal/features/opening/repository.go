// Package opening - repository.go пишет результат открытия в case_openings,
// user_inventory и счётчики одной транзакцией.
package opening

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/db/postgres"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
	"serotonyl.ru/gifts-bot/internal/features/inventory"
)

// Repository - Recorder поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий открытий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Record записывает строки аудита, предметы инвентаря и счётчики.
// Если пачка уже записана прошлой попыткой (конфликт по id), это успех.
func (r *Repository) Record(ctx context.Context, b *Batch) error {
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, rec := range b.Records {
			if err := insertRecord(ctx, tx, rec); err != nil {
				return err
			}
		}
		for _, e := range b.Entries {
			if err := inventory.AppendTx(ctx, tx, e); err != nil {
				return err
			}
		}
		if err := catalog.IncrementOpenCount(ctx, tx, b.CaseID, len(b.Records)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE members SET cases_opened = cases_opened + $2, updated_at = NOW() WHERE user_id = $1
		`, b.UserID, len(b.Records)); err != nil {
			return fmt.Errorf("ошибка обновления счётчика пользователя: %w", err)
		}
		return nil
	})
	if postgres.IsUniqueViolation(err) {
		log.WithField("request_id", b.RequestID).Warn("Открытие уже записано предыдущей попыткой")
		return nil
	}
	return err
}

func insertRecord(ctx context.Context, db postgres.DBTX, rec Record) error {
	_, err := db.Exec(ctx, `
		INSERT INTO case_openings
			(id, request_id, user_id, case_id, item_id, item_name, item_rarity, item_value,
			 cost, currency, roll, total_weight, strategy, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rec.ID, rec.RequestID, rec.UserID, rec.CaseID, rec.ItemID, rec.ItemName,
		string(rec.ItemRarity), rec.ItemValue, rec.Cost, string(rec.Currency),
		rec.Roll, rec.TotalWeight, rec.Strategy, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи открытия: %w", err)
	}
	return nil
}

// Stats считает статистику открытий пользователя по case_openings.
func (r *Repository) Stats(ctx context.Context, userID int64) (*Stats, error) {
	s := Stats{UserID: userID}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(cost) FILTER (WHERE currency = 'STARS'), 0)::BIGINT,
		       COALESCE(SUM(cost) FILTER (WHERE currency = 'TON'), 0),
		       COALESCE(SUM(item_value), 0)
		FROM case_openings
		WHERE user_id = $1
	`, userID).Scan(&s.Openings, &s.SpentStars, &s.SpentTON, &s.ValueWon)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}
	if s.Openings == 0 {
		return &s, nil
	}

	var best Record
	err = r.db.QueryRow(ctx, `
		SELECT id, request_id, user_id, case_id, item_id, item_name, item_rarity, item_value,
		       cost, currency, roll, total_weight, strategy, created_at
		FROM case_openings
		WHERE user_id = $1
		ORDER BY item_value DESC, created_at
		LIMIT 1
	`, userID).Scan(
		&best.ID, &best.RequestID, &best.UserID, &best.CaseID, &best.ItemID, &best.ItemName,
		&best.ItemRarity, &best.ItemValue, &best.Cost, &best.Currency,
		&best.Roll, &best.TotalWeight, &best.Strategy, &best.CreatedAt,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка получения лучшего предмета: %w", err)
	}
	if err == nil {
		s.BestDrop = &best
	}
	return &s, nil
}
