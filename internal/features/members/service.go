// Package members - service.go содержит бизнес-логику участников:
// регистрацию при первом контакте, поиск по @username и бан.
package members

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

// Accounts заводит счёт новому участнику. Реализуется ledger.Service.
type Accounts interface {
	EnsureAccount(ctx context.Context, userID int64) (*ledger.Balance, error)
}

// Service управляет участниками.
type Service struct {
	store    Store
	accounts Accounts
}

// NewService создаёт сервис участников. accounts может быть nil.
func NewService(store Store, accounts Accounts) *Service {
	return &Service{store: store, accounts: accounts}
}

// Register регистрирует пользователя или обновляет его профиль.
// Новому участнику сразу заводится счёт с приветственным бонусом.
func (s *Service) Register(ctx context.Context, p Profile) (*Member, error) {
	if p.UserID <= 0 {
		return nil, common.ErrInvalidRequest
	}

	created, err := s.store.Upsert(ctx, p)
	if err != nil {
		return nil, err
	}
	if created {
		log.WithFields(log.Fields{
			"user_id":  p.UserID,
			"username": p.Username,
		}).Info("Новый участник зарегистрирован")
	}

	if s.accounts != nil {
		if _, err := s.accounts.EnsureAccount(ctx, p.UserID); err != nil {
			return nil, fmt.Errorf("ошибка создания счёта: %w", err)
		}
	}
	return s.store.GetByUserID(ctx, p.UserID)
}

// IsBanned проверяет бан. Неизвестный пользователь не забанен.
func (s *Service) IsBanned(ctx context.Context, userID int64) (bool, error) {
	m, err := s.store.GetByUserID(ctx, userID)
	if errors.Is(err, common.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.IsBanned, nil
}

// GetByUserID возвращает участника по его Telegram user ID.
func (s *Service) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	return s.store.GetByUserID(ctx, userID)
}

// GetByUsername возвращает участника по @username (с @ или без).
func (s *Service) GetByUsername(ctx context.Context, username string) (*Member, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, common.ErrInvalidRequest
	}
	return s.store.GetByUsername(ctx, username)
}

// SetBanned банит или разбанивает участника.
func (s *Service) SetBanned(ctx context.Context, userID int64, banned bool) error {
	if err := s.store.SetBanned(ctx, userID, banned); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": userID, "banned": banned}).Warn("Изменён статус бана")
	return nil
}

// Count возвращает число участников.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
