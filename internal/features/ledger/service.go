// Package ledger - service.go содержит правила леджера: проверку сумм,
// ленивое создание счёта и логирование движений средств.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/config"
)

// Service - единственная точка изменения балансов.
// Сервис не решает, почему двигаются деньги: причину передаёт вызывающий в Mutation.
type Service struct {
	store        Store
	autoCreate   bool  // создавать счёт для неизвестного пользователя
	welcomeBonus int64 // звёзды на новый счёт
}

// NewService создаёт сервис леджера.
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{
		store:        store,
		autoCreate:   cfg.LedgerAutoCreateUsers,
		welcomeBonus: cfg.LedgerWelcomeBonus,
	}
}

// EnsureAccount гарантирует, что у пользователя есть счёт,
// и возвращает текущий баланс. Новый счёт получает приветственный бонус.
func (s *Service) EnsureAccount(ctx context.Context, userID int64) (*Balance, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidRequest
	}

	created, err := s.store.CreateAccount(ctx, userID, s.welcomeBonus)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания счёта: %w", err)
	}
	if created {
		log.WithFields(log.Fields{
			"user_id": userID,
			"bonus":   s.welcomeBonus,
		}).Info("Создан новый счёт")
	}
	return s.store.GetBalance(ctx, userID)
}

// GetBalance возвращает балансы пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*Balance, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidRequest
	}

	b, err := s.store.GetBalance(ctx, userID)
	if errors.Is(err, common.ErrUserNotFound) && s.autoCreate {
		return s.EnsureAccount(ctx, userID)
	}
	return b, err
}

// Debit атомарно списывает сумму. Если средств не хватает,
// возвращает common.ErrInsufficientBalance и ничего не меняет.
func (s *Service) Debit(ctx context.Context, m Mutation) (*Balance, error) {
	if m.Type == "" {
		m.Type = TxSpend
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	if !m.Amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}

	b, err := s.withAccount(ctx, m.UserID, func() (*Balance, error) {
		return s.store.Debit(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":   m.UserID,
		"currency":  m.Currency,
		"amount":    m.Amount.String(),
		"type":      m.Type,
		"reference": m.Reference,
	}).Debug("Списание проведено")
	return b, nil
}

// Credit атомарно начисляет сумму. Нулевая сумма допустима и ничего не меняет.
func (s *Service) Credit(ctx context.Context, m Mutation) (*Balance, error) {
	if m.Type == "" {
		m.Type = TxDeposit
	}
	if m.Type == TxSpend {
		return nil, fmt.Errorf("%w: начисление с типом %s", common.ErrInvalidRequest, m.Type)
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	if m.Amount.IsZero() {
		return s.GetBalance(ctx, m.UserID)
	}

	b, err := s.withAccount(ctx, m.UserID, func() (*Balance, error) {
		return s.store.Credit(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":     m.UserID,
		"currency":    m.Currency,
		"amount":      m.Amount.String(),
		"type":        m.Type,
		"reference":   m.Reference,
		"external_id": m.ExternalID,
	}).Info("Начисление проведено")
	return b, nil
}

// History возвращает последние операции пользователя.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.store.History(ctx, userID, limit)
}

// withAccount выполняет операцию и, если счёта нет, а ленивое создание
// включено, создаёт счёт и повторяет её один раз.
func (s *Service) withAccount(ctx context.Context, userID int64, op func() (*Balance, error)) (*Balance, error) {
	b, err := op()
	if !errors.Is(err, common.ErrUserNotFound) || !s.autoCreate {
		return b, err
	}
	if _, err := s.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}
	return op()
}

// validate проверяет общие для списания и начисления поля.
// Отрицательные суммы, дробные звёзды и TON точнее 8 знаков не округляем, а отклоняем.
func validate(m Mutation) error {
	if m.UserID <= 0 {
		return common.ErrInvalidRequest
	}
	if !m.Currency.Valid() {
		return common.ErrInvalidCurrency
	}
	if m.Amount.IsNegative() {
		return common.ErrInvalidAmount
	}
	if m.Currency == CurrencyStars && !m.Amount.Equal(m.Amount.Truncate(0)) {
		return common.ErrInvalidAmount
	}
	if m.Currency == CurrencyTON && !m.Amount.Equal(m.Amount.Truncate(8)) {
		return common.ErrInvalidAmount
	}
	return nil
}

// Stars - удобный конструктор суммы в звёздах.
func Stars(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
