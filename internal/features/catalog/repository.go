// Package catalog - repository.go работает с таблицами cases и items.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/db/postgres"
)

// Store - локальное хранилище каталога.
type Store interface {
	GetCase(ctx context.Context, id string) (*Case, error)
	ListCases(ctx context.Context, activeOnly bool) ([]*Case, error)
	GetItems(ctx context.Context, caseID string) ([]Item, error)
	UpsertCase(ctx context.Context, c Case) error
	SetActive(ctx context.Context, id string, active bool) error
	AddItem(ctx context.Context, it Item) error
}

// Repository - Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий каталога.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const caseColumns = `id, name, category, price, currency, COALESCE(image_url, ''),
	is_active, open_count, synced_at, created_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(
		&c.ID, &c.Name, &c.Category, &c.Price, &c.Currency, &c.ImageURL,
		&c.Active, &c.OpenCount, &c.SyncedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCase возвращает кейс по id.
func (r *Repository) GetCase(ctx context.Context, id string) (*Case, error) {
	c, err := scanCase(r.db.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения кейса: %w", err)
	}
	return c, nil
}

// ListCases возвращает кейсы, дешёвые первыми.
func (r *Repository) ListCases(ctx context.Context, activeOnly bool) ([]*Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY category, price, name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения кейсов: %w", err)
	}
	defer rows.Close()

	var cases []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования кейса: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// GetItems возвращает предметы кейса из локальной таблицы.
func (r *Repository) GetItems(ctx context.Context, caseID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, case_id, name, COALESCE(image_url, ''), rarity, value, probability
		FROM items
		WHERE case_id = $1
		ORDER BY created_at, id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения предметов: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CaseID, &it.Name, &it.ImageURL, &it.Rarity, &it.Value, &it.Probability); err != nil {
			return nil, fmt.Errorf("ошибка сканирования предмета: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpsertCase создаёт или обновляет кейс из синхронизации.
// Флаг is_active у существующего кейса не трогаем: им управляет админ.
func (r *Repository) UpsertCase(ctx context.Context, c Case) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO cases (id, name, category, price, currency, image_url, is_active, synced_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			image_url = COALESCE(EXCLUDED.image_url, cases.image_url),
			synced_at = NOW(),
			updated_at = NOW()
	`, c.ID, c.Name, c.Category, c.Price, string(c.Currency), c.ImageURL, c.Active)
	if err != nil {
		return fmt.Errorf("ошибка сохранения кейса %s: %w", c.ID, err)
	}
	return nil
}

// SetActive включает или выключает продажу кейса.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE cases SET is_active = $2, updated_at = NOW() WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("ошибка изменения кейса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrCaseNotFound
	}
	return nil
}

// AddItem добавляет предмет в локальный набор кейса.
func (r *Repository) AddItem(ctx context.Context, it Item) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO items (id, case_id, name, image_url, rarity, value, probability)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			image_url = EXCLUDED.image_url,
			rarity = EXCLUDED.rarity,
			value = EXCLUDED.value,
			probability = EXCLUDED.probability
	`, it.ID, it.CaseID, it.Name, it.ImageURL, string(it.Rarity), it.Value, it.Probability)
	if err != nil {
		return fmt.Errorf("ошибка добавления предмета: %w", err)
	}
	return nil
}

// IncrementOpenCount увеличивает счётчик открытий кейса.
// Принимает DBTX, чтобы вызываться внутри транзакции записи открытия.
func IncrementOpenCount(ctx context.Context, db postgres.DBTX, caseID string, n int) error {
	_, err := db.Exec(ctx, `
		UPDATE cases SET open_count = open_count + $2, updated_at = NOW() WHERE id = $1
	`, caseID, n)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчика открытий: %w", err)
	}
	return nil
}
