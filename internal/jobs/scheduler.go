// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: синхронизация каталога, очистка
// истёкших админ-сессий и ежедневная сводка в лог.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/config"
	"serotonyl.ru/gifts-bot/internal/features/admin"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
)

const jobTimeout = 2 * time.Minute

// CatalogSyncer - синхронизация каталога. Реализуется catalog.Service.
type CatalogSyncer interface {
	SyncCases(ctx context.Context) (*catalog.SyncReport, error)
}

// Admin - обслуживание админки. Реализуется admin.Service.
type Admin interface {
	CleanupSessions(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*admin.SystemStats, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	catalog CatalogSyncer
	admin   Admin
	cfg     *config.Config
}

// NewScheduler создаёт планировщик в часовом поясе APP_TIMEZONE.
func NewScheduler(c CatalogSyncer, a Admin, cfg *config.Config) *Scheduler {
	loc, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		log.WithError(err).Warnf("Не удалось загрузить %s, используем UTC+3", cfg.AppTimezone)
		loc = time.FixedZone("MSK", 3*60*60)
	}

	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		catalog: c,
		admin:   a,
		cfg:     cfg,
	}
}

// Start регистрирует и запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.FeatureCatalogSync {
		if _, err := s.cron.AddFunc(s.cfg.CatalogSyncSchedule, s.job(ctx, "catalog_sync", s.syncCatalog)); err != nil {
			return fmt.Errorf("CATALOG_SYNC_SCHEDULE: %w", err)
		}
	}

	// Каждый час чистим истёкшие сессии админов
	if _, err := s.cron.AddFunc("0 * * * *", s.job(ctx, "admin_sessions", s.cleanupSessions)); err != nil {
		return err
	}

	// Сводка за сутки в 23:55
	if _, err := s.cron.AddFunc("55 23 * * *", s.job(ctx, "daily_stats", s.dailyStats)); err != nil {
		return err
	}

	s.cron.Start()
	log.WithField("timezone", s.cron.Location().String()).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт запущенные задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// job оборачивает задачу: таймаут, лог длительности и ошибки.
func (s *Scheduler) job(ctx context.Context, name string, fn func(ctx context.Context) error) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		logger := log.WithField("job", name)
		logger.Debug("[CRON] Старт задачи")
		if err := fn(jobCtx); err != nil {
			logger.WithError(err).Error("[CRON] Ошибка задачи")
			return
		}
		logger.WithField("took", time.Since(start).String()).Debug("[CRON] Задача завершена")
	}
}

func (s *Scheduler) syncCatalog(ctx context.Context) error {
	report, err := s.catalog.SyncCases(ctx)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"fetched":  report.Fetched,
		"upserted": report.Upserted,
		"skipped":  report.Skipped,
	}).Info("[CRON] Каталог синхронизирован")
	return nil
}

func (s *Scheduler) cleanupSessions(ctx context.Context) error {
	n, err := s.admin.CleanupSessions(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.WithField("deleted", n).Info("[CRON] Удалены истёкшие админ-сессии")
	}
	return nil
}

func (s *Scheduler) dailyStats(ctx context.Context) error {
	st, err := s.admin.Stats(ctx)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"users":          st.Users,
		"active_24h":     st.Active24h,
		"openings_today": st.OpeningsToday,
		"revenue_stars":  st.RevenueStars,
		"revenue_ton":    st.RevenueTON.String(),
		"deposits_stars": st.DepositsStars,
		"active_cases":   st.ActiveCases,
	}).Info("[CRON] Сводка за день")
	return nil
}
