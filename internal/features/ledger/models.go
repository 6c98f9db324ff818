// Package ledger хранит балансы пользователей в двух валютах (TON и звёзды)
// и проводит атомарные списания и начисления.
// models.go описывает балансы, валюты и записи журнала операций.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/gifts-bot/internal/common"
)

// Currency - валюта счёта.
type Currency string

const (
	CurrencyTON   Currency = "TON"
	CurrencyStars Currency = "STARS"
)

// ParseCurrency разбирает название валюты без учёта регистра.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", common.ErrInvalidCurrency
	}
	return c, nil
}

// Valid сообщает, что валюта одна из двух поддерживаемых.
func (c Currency) Valid() bool {
	return c == CurrencyTON || c == CurrencyStars
}

// Balance - снимок балансов пользователя на момент чтения.
type Balance struct {
	UserID    int64           `db:"user_id"`
	TON       decimal.Decimal `db:"ton_balance"`
	Stars     int64           `db:"stars_balance"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Of возвращает баланс в указанной валюте.
func (b *Balance) Of(c Currency) decimal.Decimal {
	if c == CurrencyStars {
		return decimal.NewFromInt(b.Stars)
	}
	return b.TON
}

// TxType - причина движения средств.
type TxType string

const (
	TxDeposit   TxType = "deposit"    // пополнение (Stars, TON)
	TxSpend     TxType = "spend"      // оплата открытия кейса
	TxRefund    TxType = "refund"     // компенсация неудачного открытия
	TxBonus     TxType = "bonus"      // приветственный бонус
	TxAdminGive TxType = "admin_give" // выдача админом
)

// Статусы записей журнала
const (
	StatusCompleted = "completed"
)

// Entry - одна запись журнала операций (таблица transactions).
// Каждое изменение баланса сопровождается ровно одной записью.
type Entry struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	Type        TxType          `db:"type"`
	Currency    Currency        `db:"currency"`
	Amount      decimal.Decimal `db:"amount"`
	Status      string          `db:"status"`
	ExternalID  string          `db:"external_id"` // id платежа у провайдера, пустой для внутренних операций
	Reference   string          `db:"reference"`   // id запроса открытия, общий для списания и возврата
	Description string          `db:"description"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Mutation - параметры одного списания или начисления.
type Mutation struct {
	UserID      int64
	Currency    Currency
	Amount      decimal.Decimal
	Type        TxType
	Reference   string
	ExternalID  string
	Description string
}
