// Package app собирает все компоненты приложения.
// app.go - точка сборки: пул БД, миграции, репозитории, сервисы, обработчики,
// HTTP API и планировщик.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/api"
	"serotonyl.ru/gifts-bot/internal/bot"
	"serotonyl.ru/gifts-bot/internal/bot/filters"
	"serotonyl.ru/gifts-bot/internal/config"
	"serotonyl.ru/gifts-bot/internal/db/postgres"
	"serotonyl.ru/gifts-bot/internal/features/admin"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
	"serotonyl.ru/gifts-bot/internal/features/inventory"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
	"serotonyl.ru/gifts-bot/internal/features/members"
	"serotonyl.ru/gifts-bot/internal/features/opening"
	"serotonyl.ru/gifts-bot/internal/features/payments"
	"serotonyl.ru/gifts-bot/internal/features/reward"
	"serotonyl.ru/gifts-bot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	API       *api.Server
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Ошибка на любом шаге закрывает уже открытый пул.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool, migrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development" && cfg.AppLogLevel == "trace"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Стратегия розыгрыша ===
	strategy, err := reward.ParseStrategy(cfg.OpeningStrategy)
	if err != nil {
		pool.Close()
		return nil, err
	}

	// === 4. Репозитории ===
	ledgerRepo := ledger.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	memberRepo := members.NewRepository(pool)
	inventoryRepo := inventory.NewRepository(pool)
	openingRepo := opening.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 5. Сервисы ===
	ledgerService := ledger.NewService(ledgerRepo, cfg)
	catalogService := catalog.NewService(catalogRepo, catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogTimeout), cfg)
	memberService := members.NewService(memberRepo, ledgerService)
	inventoryService := inventory.NewService(inventoryRepo, cfg.FeatureGiftsEnabled)
	selector := reward.NewSelector(strategy, reward.CryptoSource{})
	openingService := opening.NewService(ledgerService, catalogService, selector, openingRepo, memberService, cfg)
	paymentService := payments.NewService(ledgerService, cfg)
	adminService := admin.NewService(adminRepo, catalogService, ledgerService, memberService, cfg)

	log.WithFields(log.Fields{
		"strategy":     strategy.Name(),
		"max_quantity": cfg.OpeningMaxQuantity,
	}).Info("Сервисы созданы")

	// === 6. Обработчики бота ===
	handlers := bot.Handlers{
		Members:   members.NewHandler(memberService, botAPI, cfg.WebAppURL),
		Ledger:    ledger.NewHandler(ledgerService, botAPI),
		Catalog:   catalog.NewHandler(catalogService, botAPI),
		Opening:   opening.NewHandler(openingService, botAPI),
		Inventory: inventory.NewHandler(inventoryService, memberService, botAPI),
		Payments:  payments.NewHandler(paymentService, botAPI),
		Admin:     admin.NewHandler(adminService, botAPI),
	}

	// === 7. Бот ===
	b := bot.New(botAPI, cfg, memberService, handlers, filters.NewAccessFilter(memberService, botAPI))

	// === 8. HTTP API ===
	server := api.NewServer(cfg, api.Deps{
		Catalog:   catalogService,
		Opening:   openingService,
		Ledger:    ledgerService,
		Inventory: inventoryService,
		Payments:  paymentService,
		Bans:      memberService,
		DB:        pool,
	})

	// === 9. Фоновые задачи ===
	scheduler := jobs.NewScheduler(catalogService, adminService, cfg)

	return &App{
		Bot:       b,
		API:       server,
		Scheduler: scheduler,
		DB:        pool,
		BotAPI:    botAPI,
	}, nil
}
