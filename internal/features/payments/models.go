// Package payments зачисляет оплаченные пополнения: звёзды через инвойсы
// Telegram и TON через вебхук платёжного шлюза.
// models.go описывает payload инвойса и депозит TON.
package payments

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/gifts-bot/internal/common"
)

// CurrencyXTR - код валюты Telegram Stars в инвойсах.
const CurrencyXTR = "XTR"

const payloadPrefix = "stars"

// Payload - данные, зашитые в инвойс: stars_<userId>_<amount>_<unixTs>.
type Payload struct {
	UserID    int64
	Amount    int64
	CreatedAt time.Time
}

// String собирает payload инвойса.
func (p Payload) String() string {
	return fmt.Sprintf("%s_%d_%d_%d", payloadPrefix, p.UserID, p.Amount, p.CreatedAt.Unix())
}

// ParsePayload разбирает payload инвойса.
func ParsePayload(s string) (Payload, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 4 || parts[0] != payloadPrefix {
		return Payload{}, common.ErrInvalidPayload
	}
	userID, err1 := strconv.ParseInt(parts[1], 10, 64)
	amount, err2 := strconv.ParseInt(parts[2], 10, 64)
	ts, err3 := strconv.ParseInt(parts[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || userID <= 0 || amount <= 0 {
		return Payload{}, common.ErrInvalidPayload
	}
	return Payload{UserID: userID, Amount: amount, CreatedAt: time.Unix(ts, 0)}, nil
}

// PreCheckout - запрос Telegram перед списанием звёзд у покупателя.
type PreCheckout struct {
	PayerID     int64
	Currency    string
	TotalAmount int64
	Payload     string
}

// StarsPayment - подтверждённая оплата инвойса.
type StarsPayment struct {
	PayerID     int64
	Currency    string
	TotalAmount int64
	Payload     string
	ChargeID    string // telegram_payment_charge_id
}

// TONDeposit - подтверждённый шлюзом перевод TON.
type TONDeposit struct {
	UserID int64           `json:"userId" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	TxHash string          `json:"txHash" binding:"required"`
	Sender string          `json:"sender"`
}
