// Package catalog - service.go решает, откуда взять набор предметов кейса:
// кэш, локальная таблица, внешний сервис или запасной набор.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/config"
)

type cacheEntry struct {
	set     ItemSet
	expires time.Time
}

// Service - провайдер каталога.
// Наборы предметов только читаются, поэтому кэшируются в памяти процесса.
type Service struct {
	store       Store
	upstream    Upstream
	starsPerTON int64
	timeout     time.Duration
	cacheTTL    time.Duration
	syncLimit   int

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewService создаёт сервис каталога. upstream может быть nil:
// тогда используются только локальные предметы и запасной набор.
func NewService(store Store, upstream Upstream, cfg *config.Config) *Service {
	return &Service{
		store:       store,
		upstream:    upstream,
		starsPerTON: cfg.CatalogStarsPerTON,
		timeout:     cfg.CatalogTimeout,
		cacheTTL:    cfg.CatalogCacheTTL,
		syncLimit:   cfg.CatalogSyncLimit,
		cache:       make(map[string]cacheEntry),
		now:         time.Now,
	}
}

// GetCase возвращает кейс по id.
func (s *Service) GetCase(ctx context.Context, id string) (*Case, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, common.ErrInvalidRequest
	}
	return s.store.GetCase(ctx, id)
}

// ListCases возвращает кейсы. activeOnly скрывает выключенные.
func (s *Service) ListCases(ctx context.Context, activeOnly bool) ([]*Case, error) {
	return s.store.ListCases(ctx, activeOnly)
}

// GetCaseItems возвращает набор предметов кейса. Никогда не возвращает
// ошибку и пустой набор: при любых сбоях отдаётся запасной набор.
func (s *Service) GetCaseItems(ctx context.Context, caseID string) ItemSet {
	if set, ok := s.cached(caseID); ok {
		return set
	}

	// Параллельные запросы одного кейса делят одну загрузку
	v, _, _ := s.group.Do(caseID, func() (any, error) {
		return s.load(ctx, caseID), nil
	})
	return v.(ItemSet)
}

func (s *Service) load(ctx context.Context, caseID string) ItemSet {
	logger := log.WithField("case_id", caseID)

	// Загрузка общая для всех ожидающих, поэтому не зависит от отмены
	// контекста первого из них, только от своих таймаутов
	base := context.WithoutCancel(ctx)

	localCtx, cancelLocal := context.WithTimeout(base, s.timeout)
	items, localErr := s.store.GetItems(localCtx, caseID)
	cancelLocal()
	if localErr != nil {
		logger.WithError(localErr).Warn("Не удалось прочитать локальные предметы")
	}
	if len(items) > 0 {
		set := ItemSet{CaseID: caseID, Items: items, Source: SourceLocal}
		s.put(set)
		return set
	}

	if s.upstream != nil {
		fetchCtx, cancel := context.WithTimeout(base, s.timeout)
		defer cancel()

		data, err := s.upstream.CaseItems(fetchCtx, caseID)
		if err == nil {
			items, err = ParseCaseItems(caseID, data, s.starsPerTON)
		}
		if err == nil {
			set := ItemSet{CaseID: caseID, Items: items, Source: SourceUpstream}
			// Локальные предметы могли не прочитаться из-за сбоя БД:
			// такой результат не кэшируем, чтобы не закрепить чужой набор
			if localErr == nil {
				s.put(set)
			}
			return set
		}
		logger.WithError(err).Warn("Каталог недоступен, используем запасной набор")
	}

	return ItemSet{CaseID: caseID, Items: FallbackItems(caseID), Source: SourceFallback}
}

func (s *Service) cached(caseID string) (ItemSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cache[caseID]
	if !ok || s.now().After(e.expires) {
		return ItemSet{}, false
	}
	set := e.set
	set.Items = append([]Item(nil), e.set.Items...)
	set.Cached = true
	return set, true
}

func (s *Service) put(set ItemSet) {
	if s.cacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[set.CaseID] = cacheEntry{
		set:     ItemSet{CaseID: set.CaseID, Items: append([]Item(nil), set.Items...), Source: set.Source},
		expires: s.now().Add(s.cacheTTL),
	}
}

// Invalidate сбрасывает кэш кейса.
func (s *Service) Invalidate(caseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, caseID)
}

func (s *Service) invalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cacheEntry)
}

// SyncCases загружает список кейсов внешнего сервиса и сохраняет его локально.
func (s *Service) SyncCases(ctx context.Context) (*SyncReport, error) {
	if s.upstream == nil {
		return nil, fmt.Errorf("внешний сервис каталога не настроен")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.upstream.CaseListing(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки списка кейсов: %w", err)
	}
	cases, err := ParseCaseListing(data)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{Fetched: len(cases)}
	if s.syncLimit > 0 && len(cases) > s.syncLimit {
		report.Skipped = len(cases) - s.syncLimit
		cases = cases[:s.syncLimit]
	}

	for _, c := range cases {
		if err := s.store.UpsertCase(ctx, c); err != nil {
			log.WithError(err).WithField("case_id", c.ID).Warn("Кейс не сохранён")
			report.Skipped++
			continue
		}
		report.Upserted++
	}
	s.invalidateAll()

	log.WithFields(log.Fields{
		"fetched":  report.Fetched,
		"upserted": report.Upserted,
		"skipped":  report.Skipped,
	}).Info("Каталог синхронизирован")
	return report, nil
}

// SetActive включает или выключает продажу кейса.
func (s *Service) SetActive(ctx context.Context, caseID string, active bool) error {
	if err := s.store.SetActive(ctx, caseID, active); err != nil {
		return err
	}
	s.Invalidate(caseID)
	log.WithFields(log.Fields{"case_id": caseID, "active": active}).Info("Статус кейса изменён")
	return nil
}

// AddItem добавляет предмет в локальный набор кейса.
func (s *Service) AddItem(ctx context.Context, it Item) error {
	it.ID = strings.TrimSpace(it.ID)
	it.Name = strings.TrimSpace(it.Name)
	if it.ID == "" || it.Name == "" || it.Value < 0 || it.Probability < 0 {
		return common.ErrInvalidRequest
	}
	if _, ok := ParseRarity(string(it.Rarity)); !ok {
		return fmt.Errorf("%w: редкость %q", common.ErrInvalidRequest, it.Rarity)
	}
	if _, err := s.store.GetCase(ctx, it.CaseID); err != nil {
		return err
	}

	if err := s.store.AddItem(ctx, it); err != nil {
		return err
	}
	s.Invalidate(it.CaseID)
	return nil
}
