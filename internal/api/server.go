package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/config"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
	"serotonyl.ru/gifts-bot/internal/features/inventory"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
	"serotonyl.ru/gifts-bot/internal/features/opening"
	"serotonyl.ru/gifts-bot/internal/features/payments"
)

// Catalog - кейсы и предметы. Реализуется catalog.Service.
type Catalog interface {
	ListCases(ctx context.Context, activeOnly bool) ([]*catalog.Case, error)
	GetCase(ctx context.Context, id string) (*catalog.Case, error)
	GetCaseItems(ctx context.Context, caseID string) catalog.ItemSet
}

// Opener - открытие кейсов и статистика. Реализуется opening.Service.
type Opener interface {
	OpenCase(ctx context.Context, userID int64, caseID string, quantity int) (*opening.Result, error)
	Stats(ctx context.Context, userID int64) (*opening.Stats, error)
}

// Balances - чтение балансов. Реализуется ledger.Service.
type Balances interface {
	GetBalance(ctx context.Context, userID int64) (*ledger.Balance, error)
}

// Inventory - предметы пользователей. Реализуется inventory.Service.
type Inventory interface {
	List(ctx context.Context, userID int64, limit int) ([]*inventory.Entry, error)
	Gift(ctx context.Context, entryID uuid.UUID, fromUserID, toUserID int64) (*inventory.Entry, error)
	Leaderboard(ctx context.Context, limit int) ([]inventory.LeaderboardRow, error)
}

// Deposits - зачисление TON. Реализуется payments.Service.
type Deposits interface {
	DepositTON(ctx context.Context, d payments.TONDeposit) (*ledger.Balance, error)
}

// Bans - проверка бана. Реализуется members.Service.
type Bans interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

// Pinger - проверка доступности БД для /health. Реализуется pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps - сервисы, которые обслуживает API.
type Deps struct {
	Catalog   Catalog
	Opening   Opener
	Ledger    Balances
	Inventory Inventory
	Payments  Deposits
	Bans      Bans
	DB        Pinger // может быть nil
}

// Server - HTTP сервер Mini App.
type Server struct {
	deps   Deps
	engine *gin.Engine
	srv    *http.Server

	botToken       string
	verifyInitData bool
	initDataMaxAge time.Duration
	webhookSecret  string
	now            func() time.Time
}

// NewServer собирает gin engine со всеми маршрутами.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		deps:           deps,
		botToken:       cfg.TelegramBotToken,
		verifyInitData: cfg.APIVerifyInitData,
		initDataMaxAge: cfg.APIInitDataMaxAge,
		webhookSecret:  cfg.TonWebhookSecret,
		now:            time.Now,
	}

	r := gin.New()
	r.Use(recovery(), requestLogger())
	s.registerRoutes(r)
	s.engine = r

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	api := r.Group("/api")
	api.GET("/cases", s.listCases)
	api.GET("/cases/:id/items", s.caseItems)
	api.GET("/leaderboard", s.leaderboard)
	api.POST("/webhook/ton", s.webhookAuth(), s.tonDeposit)

	user := api.Group("", s.initDataAuth())
	user.POST("/open-case", s.openCase)
	user.GET("/users/:id/balance", s.balance)
	user.GET("/users/:id/inventory", s.inventory)
	user.GET("/users/:id/stats", s.stats)
	user.POST("/inventory/:entryId/gift", s.gift)
}

// Handler возвращает http.Handler (для тестов).
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start слушает порт до вызова Shutdown.
func (s *Server) Start() error {
	log.WithField("addr", s.srv.Addr).Info("HTTP API запущен")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP сервер: %w", err)
	}
	return nil
}

// Shutdown дожидается завершения активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
