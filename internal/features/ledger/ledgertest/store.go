// Package ledgertest - хранилище леджера в памяти для тестов пакетов,
// которым нужен настоящий ledger.Service без PostgreSQL.
package ledgertest

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

// Store реализует ledger.Store. Все операции под одним мьютексом,
// поэтому проверка остатка и списание атомарны, как условный UPDATE в БД.
type Store struct {
	mu       sync.Mutex
	balances map[int64]*ledger.Balance
	entries  []*ledger.Entry
	external map[string]bool

	// FailCredits - сколько следующих начислений завершить ошибкой FailErr.
	FailCredits int
	FailErr     error
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		balances: make(map[int64]*ledger.Balance),
		external: make(map[string]bool),
	}
}

// Seed заводит счёт с заданными балансами без записи в журнал.
func (s *Store) Seed(userID int64, ton decimal.Decimal, stars int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = &ledger.Balance{UserID: userID, TON: ton, Stars: stars, UpdatedAt: time.Now()}
}

// Entries возвращает копию журнала в порядке записи.
func (s *Store) Entries() []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

func (s *Store) CreateAccount(_ context.Context, userID int64, welcomeBonus int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[userID]; ok {
		return false, nil
	}
	s.balances[userID] = &ledger.Balance{UserID: userID, Stars: welcomeBonus, UpdatedAt: time.Now()}
	if welcomeBonus > 0 {
		s.appendLocked(ledger.Mutation{
			UserID:   userID,
			Currency: ledger.CurrencyStars,
			Amount:   decimal.NewFromInt(welcomeBonus),
			Type:     ledger.TxBonus,
		})
	}
	return true, nil
}

func (s *Store) GetBalance(_ context.Context, userID int64) (*ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[userID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) Debit(_ context.Context, m ledger.Mutation) (*ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[m.UserID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	if b.Of(m.Currency).LessThan(m.Amount) {
		return nil, common.ErrInsufficientBalance
	}
	apply(b, m.Currency, m.Amount.Neg())
	s.appendLocked(m)
	cp := *b
	return &cp, nil
}

func (s *Store) Credit(_ context.Context, m ledger.Mutation) (*ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCredits > 0 {
		s.FailCredits--
		return nil, s.FailErr
	}
	b, ok := s.balances[m.UserID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	if m.ExternalID != "" {
		if s.external[m.ExternalID] {
			return nil, common.ErrDuplicatePayment
		}
		s.external[m.ExternalID] = true
	}
	apply(b, m.Currency, m.Amount)
	s.appendLocked(m)
	cp := *b
	return &cp, nil
}

func (s *Store) History(_ context.Context, userID int64, limit int) ([]*ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ledger.Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].UserID == userID {
			cp := *s.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) appendLocked(m ledger.Mutation) {
	s.entries = append(s.entries, &ledger.Entry{
		ID:          int64(len(s.entries) + 1),
		UserID:      m.UserID,
		Type:        m.Type,
		Currency:    m.Currency,
		Amount:      m.Amount,
		Status:      ledger.StatusCompleted,
		ExternalID:  m.ExternalID,
		Reference:   m.Reference,
		Description: m.Description,
		CreatedAt:   time.Now(),
	})
}

func apply(b *ledger.Balance, c ledger.Currency, delta decimal.Decimal) {
	if c == ledger.CurrencyStars {
		b.Stars += delta.IntPart()
	} else {
		b.TON = b.TON.Add(delta)
	}
	b.UpdatedAt = time.Now()
}
