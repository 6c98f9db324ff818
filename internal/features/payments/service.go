// Package payments - service.go проверяет платежи и зачисляет их через леджер.
// Каждый внешний платёж зачисляется один раз: id платежа уходит в external_id.
package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tonkeeper/tongo/ton"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/config"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

// Ledger - начисление средств. Реализуется ledger.Service.
type Ledger interface {
	Credit(ctx context.Context, m ledger.Mutation) (*ledger.Balance, error)
}

// Service - сервис пополнений.
type Service struct {
	ledger   Ledger
	enabled  bool
	minStars int64
	maxStars int64
	now      func() time.Time
}

// NewService создаёт сервис пополнений.
func NewService(l Ledger, cfg *config.Config) *Service {
	return &Service{
		ledger:   l,
		enabled:  cfg.FeaturePaymentsEnabled,
		minStars: cfg.PaymentsMinStars,
		maxStars: cfg.PaymentsMaxStars,
		now:      time.Now,
	}
}

// NewPayload готовит payload инвойса на покупку amount звёзд.
func (s *Service) NewPayload(userID, amount int64) (Payload, error) {
	if !s.enabled {
		return Payload{}, fmt.Errorf("%w: платежи отключены", common.ErrInvalidRequest)
	}
	if userID <= 0 {
		return Payload{}, common.ErrInvalidRequest
	}
	if amount < s.minStars || amount > s.maxStars {
		return Payload{}, fmt.Errorf("%w: от %d до %d звёзд", common.ErrInvalidAmount, s.minStars, s.maxStars)
	}
	return Payload{UserID: userID, Amount: amount, CreatedAt: s.now()}, nil
}

// CheckPreCheckout одобряет оплату, только если валюта XTR, сумма
// совпадает с payload и платит тот, для кого выставлен инвойс.
func (s *Service) CheckPreCheckout(q PreCheckout) error {
	if !s.enabled {
		return fmt.Errorf("%w: платежи отключены", common.ErrInvalidRequest)
	}
	p, err := ParsePayload(q.Payload)
	if err != nil {
		return err
	}
	if q.Currency != CurrencyXTR || q.TotalAmount != p.Amount || q.PayerID != p.UserID {
		return common.ErrInvalidPayload
	}
	return nil
}

// CompleteStarsPayment зачисляет оплаченные звёзды. Повтор с тем же
// charge id возвращает common.ErrDuplicatePayment и баланс не меняет.
func (s *Service) CompleteStarsPayment(ctx context.Context, pay StarsPayment) (*ledger.Balance, error) {
	if err := s.CheckPreCheckout(PreCheckout{
		PayerID:     pay.PayerID,
		Currency:    pay.Currency,
		TotalAmount: pay.TotalAmount,
		Payload:     pay.Payload,
	}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(pay.ChargeID) == "" {
		return nil, common.ErrInvalidPayload
	}

	b, err := s.ledger.Credit(ctx, ledger.Mutation{
		UserID:      pay.PayerID,
		Currency:    ledger.CurrencyStars,
		Amount:      decimal.NewFromInt(pay.TotalAmount),
		Type:        ledger.TxDeposit,
		ExternalID:  "tg:" + pay.ChargeID,
		Description: "Покупка звёзд",
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":   pay.PayerID,
		"amount":    pay.TotalAmount,
		"charge_id": pay.ChargeID,
	}).Info("Оплата звёздами зачислена")
	return b, nil
}

// DepositTON зачисляет перевод TON. Подлинность перевода проверяет
// вызывающий (вебхук с общим секретом), здесь только правила зачисления.
func (s *Service) DepositTON(ctx context.Context, d TONDeposit) (*ledger.Balance, error) {
	if !s.enabled {
		return nil, fmt.Errorf("%w: платежи отключены", common.ErrInvalidRequest)
	}
	d.TxHash = strings.TrimSpace(d.TxHash)
	if d.UserID <= 0 || d.TxHash == "" {
		return nil, common.ErrInvalidRequest
	}
	if !d.Amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}

	description := "Пополнение TON"
	if d.Sender != "" {
		sender, err := NormalizeAddress(d.Sender)
		if err != nil {
			return nil, err
		}
		description += " с " + sender
	}

	b, err := s.ledger.Credit(ctx, ledger.Mutation{
		UserID:      d.UserID,
		Currency:    ledger.CurrencyTON,
		Amount:      d.Amount,
		Type:        ledger.TxDeposit,
		ExternalID:  "ton:" + d.TxHash,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": d.UserID,
		"amount":  d.Amount.String(),
		"tx_hash": d.TxHash,
	}).Info("Депозит TON зачислен")
	return b, nil
}

// NormalizeAddress приводит адрес TON к user-friendly виду (bounceable, mainnet).
func NormalizeAddress(addr string) (string, error) {
	acc, err := ton.ParseAccountID(strings.TrimSpace(addr))
	if err != nil {
		return "", fmt.Errorf("%w: адрес %q", common.ErrInvalidRequest, addr)
	}
	return acc.ToHuman(true, false), nil
}
