// Package opening - service.go координирует открытие кейса от начала до конца.
package opening

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/config"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
	"serotonyl.ru/gifts-bot/internal/features/inventory"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
	"serotonyl.ru/gifts-bot/internal/features/reward"
)

// Ledger - операции со счётом. Реализуется ledger.Service.
type Ledger interface {
	GetBalance(ctx context.Context, userID int64) (*ledger.Balance, error)
	Debit(ctx context.Context, m ledger.Mutation) (*ledger.Balance, error)
	Credit(ctx context.Context, m ledger.Mutation) (*ledger.Balance, error)
}

// Catalog - кейсы и их предметы. Реализуется catalog.Service.
type Catalog interface {
	GetCase(ctx context.Context, id string) (*catalog.Case, error)
	GetCaseItems(ctx context.Context, caseID string) catalog.ItemSet
}

// Picker - розыгрыш предмета. Реализуется reward.Selector.
type Picker interface {
	Pick(items []catalog.Item) (reward.Pick, error)
	Strategy() reward.Strategy
}

// Recorder пишет результат открытия и читает статистику.
type Recorder interface {
	Record(ctx context.Context, b *Batch) error
	Stats(ctx context.Context, userID int64) (*Stats, error)
}

// Bans проверяет бан пользователя. Реализуется members.Service.
type Bans interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

// Service - координатор открытия кейсов.
type Service struct {
	ledger   Ledger
	catalog  Catalog
	picker   Picker
	recorder Recorder
	bans     Bans

	maxQuantity    int
	persistTimeout time.Duration
	persistRetries int
	refundRetries  int
	retryDelay     time.Duration
	now            func() time.Time
}

// NewService создаёт координатор. bans может быть nil.
func NewService(l Ledger, c Catalog, p Picker, r Recorder, bans Bans, cfg *config.Config) *Service {
	return &Service{
		ledger:         l,
		catalog:        c,
		picker:         p,
		recorder:       r,
		bans:           bans,
		maxQuantity:    cfg.OpeningMaxQuantity,
		persistTimeout: cfg.OpeningPersistTimeout,
		persistRetries: cfg.OpeningPersistRetries,
		refundRetries:  cfg.OpeningRefundRetries,
		retryDelay:     200 * time.Millisecond,
		now:            time.Now,
	}
}

// OpenCase открывает quantity кейсов caseID за счёт userID.
//
// Если списание не прошло, ничего не выдаётся. Если списание прошло,
// а запись результата не удалась, списанная сумма возвращается
// и вызывающий получает common.ErrOpeningFailed.
func (s *Service) OpenCase(ctx context.Context, userID int64, caseID string, quantity int) (*Result, error) {
	caseID = strings.TrimSpace(caseID)
	requestID := uuid.New()
	logger := log.WithFields(log.Fields{
		"request_id": requestID,
		"user_id":    userID,
		"case_id":    caseID,
		"quantity":   quantity,
	})

	// 1. Проверка запроса
	c, err := s.validate(ctx, userID, caseID, quantity)
	if err != nil {
		logger.WithError(err).Debug("Открытие отклонено")
		return nil, err
	}
	logger.WithField("state", StateValidated).Debug("Запрос проверен")

	// 2. Предварительная проверка баланса. Списание ниже проверяет остаток ещё раз атомарно
	totalCost := c.Price.Mul(decimal.NewFromInt(int64(quantity)))
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	if balance.Of(c.Currency).LessThan(totalCost) {
		logger.Debug("Недостаточно средств")
		return nil, common.ErrInsufficientBalance
	}

	// 3. Списание. Неудачное списание никогда не ведёт к выдаче
	balance, err = s.ledger.Debit(ctx, ledger.Mutation{
		UserID:      userID,
		Currency:    c.Currency,
		Amount:      totalCost,
		Type:        ledger.TxSpend,
		Reference:   requestID.String(),
		Description: describe(c, quantity),
	})
	if err != nil {
		logger.WithError(err).Debug("Списание не прошло")
		return nil, err
	}
	logger.WithField("state", StateDebited).Debug("Средства списаны")

	// С этого момента запрос обязан закончиться выдачей или возвратом,
	// даже если клиент отменил свой контекст
	result, err := s.award(ctx, requestID, userID, c, quantity)
	if err != nil {
		return nil, s.compensate(ctx, logger, requestID, userID, c.Currency, totalCost, err)
	}
	result.TotalCost = totalCost
	result.Balance = balance
	result.State = StateCompleted

	logger.WithFields(log.Fields{
		"state":  StateCompleted,
		"cost":   totalCost.String(),
		"source": result.Source,
	}).Info("Кейс открыт")
	return result, nil
}

func (s *Service) validate(ctx context.Context, userID int64, caseID string, quantity int) (*catalog.Case, error) {
	if userID <= 0 || caseID == "" {
		return nil, common.ErrInvalidRequest
	}
	if quantity < 1 || quantity > s.maxQuantity {
		return nil, fmt.Errorf("%w: количество должно быть от 1 до %d", common.ErrInvalidRequest, s.maxQuantity)
	}

	if s.bans != nil {
		banned, err := s.bans.IsBanned(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("ошибка проверки бана: %w", err)
		}
		if banned {
			return nil, common.ErrUserBanned
		}
	}

	c, err := s.catalog.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, common.ErrCaseInactive
	}
	if !c.Price.IsPositive() || !c.Currency.Valid() {
		return nil, fmt.Errorf("%w: у кейса %s некорректная цена", common.ErrInvalidRequest, c.ID)
	}
	return c, nil
}

// award разыгрывает предметы и записывает результат.
func (s *Service) award(ctx context.Context, requestID uuid.UUID, userID int64, c *catalog.Case, quantity int) (*Result, error) {
	// 4. Набор предметов. При недоступности каталога приходит запасной набор
	set := s.catalog.GetCaseItems(ctx, c.ID)

	// 5. Независимый розыгрыш на каждую единицу
	now := s.now().UTC()
	strategy := s.picker.Strategy().Name()
	batch := &Batch{RequestID: requestID, UserID: userID, CaseID: c.ID}
	result := &Result{RequestID: requestID, CaseID: c.ID, Currency: c.Currency, Source: set.Source}

	for i := 0; i < quantity; i++ {
		p, err := s.picker.Pick(set.Items)
		if err != nil {
			return nil, fmt.Errorf("ошибка розыгрыша: %w", err)
		}
		item := p.Item
		item.CaseID = c.ID

		rec := Record{
			ID:          uuid.New(),
			RequestID:   requestID,
			UserID:      userID,
			CaseID:      c.ID,
			ItemID:      item.ID,
			ItemName:    item.Name,
			ItemRarity:  item.Rarity,
			ItemValue:   item.Value,
			Cost:        c.Price,
			Currency:    c.Currency,
			Roll:        p.Roll,
			TotalWeight: p.Total,
			Strategy:    strategy,
			CreatedAt:   now,
		}
		openingID := rec.ID
		entry := inventory.NewEntry(userID, item, &openingID, now)

		batch.Records = append(batch.Records, rec)
		batch.Entries = append(batch.Entries, entry)
		result.Outcomes = append(result.Outcomes, Outcome{
			OpeningID: rec.ID,
			EntryID:   entry.ID,
			Item:      item,
			Cost:      c.Price,
		})
	}
	log.WithFields(log.Fields{
		"request_id": requestID,
		"state":      StateAwarded,
		"items":      len(batch.Records),
	}).Debug("Предметы разыграны")

	// 6. Запись результата с повторами
	if err := s.persist(ctx, batch); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"request_id": requestID, "state": StateRecorded}).Debug("Результат записан")
	return result, nil
}

// persist пишет пачку, повторяя попытки. Каждая попытка ограничена своим
// таймаутом и не зависит от отмены контекста запроса.
func (s *Service) persist(ctx context.Context, b *Batch) error {
	base := context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= s.persistRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(base, s.persistTimeout)
		err = s.recorder.Record(attemptCtx, b)
		cancel()
		if err == nil {
			return nil
		}
		log.WithError(err).WithFields(log.Fields{
			"request_id": b.RequestID,
			"attempt":    attempt,
		}).Warn("Не удалось записать открытие")
		if attempt < s.persistRetries {
			time.Sleep(s.retryDelay * time.Duration(attempt))
		}
	}
	return fmt.Errorf("запись открытия не удалась после %d попыток: %w", s.persistRetries, err)
}

// compensate возвращает списанную сумму после сбоя и всегда возвращает
// ошибку для вызывающего.
func (s *Service) compensate(
	ctx context.Context,
	logger *log.Entry,
	requestID uuid.UUID,
	userID int64,
	currency ledger.Currency,
	amount decimal.Decimal,
	cause error,
) error {
	logger = logger.WithField("state", StateFailed)
	logger.WithError(cause).Warn("Открытие не удалось, возвращаем средства")

	// ExternalID делает возврат идемпотентным: попытка могла пройти в БД,
	// но не дождаться ответа до таймаута
	refund := ledger.Mutation{
		UserID:      userID,
		Currency:    currency,
		Amount:      amount,
		Type:        ledger.TxRefund,
		Reference:   requestID.String(),
		ExternalID:  refundExternalID(requestID),
		Description: "Возврат за неудачное открытие",
	}

	base := context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= s.refundRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(base, s.persistTimeout)
		_, err = s.ledger.Credit(attemptCtx, refund)
		cancel()
		if errors.Is(err, common.ErrDuplicatePayment) {
			// Предыдущая попытка уже вернула средства
			logger.WithField("attempt", attempt).Warn("Возврат уже проведён")
			err = nil
		}
		if err == nil {
			logger.WithField("amount", amount.String()).Warn("Средства возвращены")
			return fmt.Errorf("%w: %v", common.ErrOpeningFailed, cause)
		}
		logger.WithError(err).WithField("attempt", attempt).Warn("Не удалось вернуть средства")
		if attempt < s.refundRetries {
			time.Sleep(s.retryDelay * time.Duration(attempt))
		}
	}

	// Списано, но не выдано и не возвращено: нужен ручной разбор
	logger.WithError(err).WithFields(log.Fields{
		"component": "opening",
		"severity":  "critical",
		"currency":  currency,
		"amount":    amount.String(),
		"cause":     cause.Error(),
	}).Error("Возврат не удался")
	return fmt.Errorf("%w: возврат не удался: %v", common.ErrOpeningFailed, errors.Join(cause, err))
}

// Stats возвращает статистику открытий пользователя.
func (s *Service) Stats(ctx context.Context, userID int64) (*Stats, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidRequest
	}
	return s.recorder.Stats(ctx, userID)
}

func refundExternalID(requestID uuid.UUID) string {
	return "refund:" + requestID.String()
}

func describe(c *catalog.Case, quantity int) string {
	if quantity == 1 {
		return "Открытие кейса " + c.Name
	}
	return fmt.Sprintf("Открытие кейса %s ×%d", c.Name, quantity)
}
