// Package inventory - service.go содержит правила работы с инвентарём.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	defaultTopLimit = 10
)

// Service - сервис инвентаря.
type Service struct {
	store        Store
	giftsEnabled bool
}

// NewService создаёт сервис инвентаря.
func NewService(store Store, giftsEnabled bool) *Service {
	return &Service{store: store, giftsEnabled: giftsEnabled}
}

// List возвращает предметы пользователя, новые первыми.
func (s *Service) List(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidRequest
	}
	return s.store.ListForUser(ctx, userID, clampLimit(limit, defaultListLimit, maxListLimit))
}

// Gift передаёт предмет другому пользователю.
func (s *Service) Gift(ctx context.Context, entryID uuid.UUID, fromUserID, toUserID int64) (*Entry, error) {
	if !s.giftsEnabled {
		return nil, fmt.Errorf("%w: подарки отключены", common.ErrInvalidRequest)
	}
	if fromUserID <= 0 || toUserID <= 0 || entryID == uuid.Nil {
		return nil, common.ErrInvalidRequest
	}
	if fromUserID == toUserID {
		return nil, common.ErrSelfGift
	}

	e, err := s.store.Gift(ctx, entryID, fromUserID, toUserID)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"entry_id": entryID,
		"from":     fromUserID,
		"to":       toUserID,
		"item":     e.ItemName,
	}).Info("Предмет подарен")
	return e, nil
}

// Leaderboard возвращает топ коллекционеров.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	return s.store.Leaderboard(ctx, clampLimit(limit, defaultTopLimit, maxListLimit))
}

// Summary - количество и ценность неподаренных предметов.
func Summary(entries []*Entry) (count, value int64) {
	for _, e := range entries {
		if e.IsGifted {
			continue
		}
		count++
		value += e.ItemValue
	}
	return count, value
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
