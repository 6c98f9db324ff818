// Package ledger - repository.go выполняет операции с таблицами balances и transactions.
// Изменение баланса и запись в журнал всегда делаются в одной транзакции БД.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/db/postgres"
)

// Store - хранилище балансов. Реализации обязаны выполнять списание
// атомарно: проверка остатка и уменьшение баланса - одна операция.
type Store interface {
	CreateAccount(ctx context.Context, userID int64, welcomeBonus int64) (bool, error)
	GetBalance(ctx context.Context, userID int64) (*Balance, error)
	Debit(ctx context.Context, m Mutation) (*Balance, error)
	Credit(ctx context.Context, m Mutation) (*Balance, error)
	History(ctx context.Context, userID int64, limit int) ([]*Entry, error)
}

// Repository - Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий леджера.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// balanceColumn возвращает колонку баланса для валюты.
// Имя колонки подставляется в SQL, поэтому только из этого списка.
func balanceColumn(c Currency) (string, error) {
	switch c {
	case CurrencyTON:
		return "ton_balance", nil
	case CurrencyStars:
		return "stars_balance", nil
	default:
		return "", common.ErrInvalidCurrency
	}
}

// amountArg приводит сумму к типу колонки: звёзды хранятся целыми.
func amountArg(c Currency, amount decimal.Decimal) any {
	if c == CurrencyStars {
		return amount.IntPart()
	}
	return amount
}

// CreateAccount создаёт заготовку участника и баланс с приветственным бонусом.
// Возвращает true, если счёт создан сейчас, и false, если он уже был.
func (r *Repository) CreateAccount(ctx context.Context, userID int64, welcomeBonus int64) (bool, error) {
	created := false
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		// Баланс ссылается на members, поэтому сначала гарантируем участника
		if _, err := tx.Exec(ctx, `
			INSERT INTO members (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
		`, userID); err != nil {
			return fmt.Errorf("ошибка создания участника: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO balances (user_id, ton_balance, stars_balance)
			VALUES ($1, 0, $2)
			ON CONFLICT (user_id) DO NOTHING
		`, userID, welcomeBonus)
		if err != nil {
			return fmt.Errorf("ошибка создания баланса: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		created = true

		if welcomeBonus > 0 {
			if err := insertEntry(ctx, tx, Mutation{
				UserID:      userID,
				Currency:    CurrencyStars,
				Amount:      decimal.NewFromInt(welcomeBonus),
				Type:        TxBonus,
				Description: "Приветственный бонус",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return created, err
}

// GetBalance возвращает текущие балансы пользователя.
func (r *Repository) GetBalance(ctx context.Context, userID int64) (*Balance, error) {
	b := Balance{UserID: userID}
	err := r.db.QueryRow(ctx, `
		SELECT ton_balance, stars_balance, updated_at FROM balances WHERE user_id = $1
	`, userID).Scan(&b.TON, &b.Stars, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return &b, nil
}

// Debit списывает сумму условным UPDATE: строка меняется, только если
// остатка хватает. Параллельные списания одного пользователя сериализует
// блокировка строки в PostgreSQL, поэтому баланс не уходит в минус.
func (r *Repository) Debit(ctx context.Context, m Mutation) (*Balance, error) {
	col, err := balanceColumn(m.Currency)
	if err != nil {
		return nil, err
	}

	var b *Balance
	err = postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			UPDATE balances
			SET %[1]s = %[1]s - $2, updated_at = NOW()
			WHERE user_id = $1 AND %[1]s >= $2
			RETURNING ton_balance, stars_balance, updated_at
		`, col)

		res := Balance{UserID: m.UserID}
		err := tx.QueryRow(ctx, query, m.UserID, amountArg(m.Currency, m.Amount)).
			Scan(&res.TON, &res.Stars, &res.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			// Ни одной строки: либо счёта нет, либо не хватает средств
			exists, err := accountExists(ctx, tx, m.UserID)
			if err != nil {
				return err
			}
			if !exists {
				return common.ErrUserNotFound
			}
			return common.ErrInsufficientBalance
		}
		if err != nil {
			return fmt.Errorf("ошибка списания: %w", err)
		}

		if err := insertEntry(ctx, tx, m); err != nil {
			return err
		}
		b = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Credit начисляет сумму и пишет запись в журнал.
// Повтор внешнего платежа (тот же external_id) отклоняется уникальным индексом.
func (r *Repository) Credit(ctx context.Context, m Mutation) (*Balance, error) {
	col, err := balanceColumn(m.Currency)
	if err != nil {
		return nil, err
	}

	var b *Balance
	err = postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			UPDATE balances
			SET %[1]s = %[1]s + $2, updated_at = NOW()
			WHERE user_id = $1
			RETURNING ton_balance, stars_balance, updated_at
		`, col)

		res := Balance{UserID: m.UserID}
		err := tx.QueryRow(ctx, query, m.UserID, amountArg(m.Currency, m.Amount)).
			Scan(&res.TON, &res.Stars, &res.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("ошибка начисления: %w", err)
		}

		// Дубликат платежа падает здесь и откатывает начисление вместе с транзакцией
		if err := insertEntry(ctx, tx, m); err != nil {
			return err
		}
		b = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// History возвращает последние записи журнала пользователя, новые первыми.
func (r *Repository) History(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, currency, amount, status,
		       COALESCE(external_id, ''), COALESCE(reference, ''), COALESCE(description, ''), created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Type, &e.Currency, &e.Amount, &e.Status,
			&e.ExternalID, &e.Reference, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func accountExists(ctx context.Context, db postgres.DBTX, userID int64) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM balances WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки счёта: %w", err)
	}
	return exists, nil
}

func insertEntry(ctx context.Context, db postgres.DBTX, m Mutation) error {
	_, err := db.Exec(ctx, `
		INSERT INTO transactions (user_id, type, currency, amount, status, external_id, reference, description)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
	`, m.UserID, string(m.Type), string(m.Currency), m.Amount, StatusCompleted,
		m.ExternalID, m.Reference, m.Description)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return common.ErrDuplicatePayment
		}
		return fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	return nil
}
