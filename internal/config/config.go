// Package config загружает конфигурацию бота и API из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// перед этим подхватывается необязательный .env (godotenv).
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS" default:""`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// Ссылка на Mini App, которую бот отдаёт кнопкой в /start
	WebAppURL string `envconfig:"WEBAPP_URL" default:"https://giftboss.vercel.app"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"gifts_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно.
	BotMaxInflight          int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- HTTP API (Mini App) ---
	HTTPPort          int           `envconfig:"HTTP_PORT" default:"8080"`
	APIVerifyInitData bool          `envconfig:"API_VERIFY_INIT_DATA" default:"true"`
	APIInitDataMaxAge time.Duration `envconfig:"API_INIT_DATA_MAX_AGE" default:"24h"`
	TonWebhookSecret  string        `envconfig:"TON_WEBHOOK_SECRET" default:""`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" default:""`

	// --- Ledger ---
	// Приветственный бонус в звёздах при создании аккаунта
	LedgerWelcomeBonus int64 `envconfig:"LEDGER_WELCOME_BONUS" default:"100"`
	// Создавать ли аккаунт на лету для неизвестного user_id
	LedgerAutoCreateUsers bool `envconfig:"LEDGER_AUTO_CREATE_USERS" default:"true"`

	// --- Catalog ---
	CatalogBaseURL      string        `envconfig:"CATALOG_BASE_URL" default:"https://server.giftsbattle.com"`
	CatalogTimeout      time.Duration `envconfig:"CATALOG_TIMEOUT" default:"8s"`
	CatalogCacheTTL     time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"5m"`
	CatalogStarsPerTON  int64         `envconfig:"CATALOG_STARS_PER_TON" default:"50"`
	CatalogSyncSchedule string        `envconfig:"CATALOG_SYNC_SCHEDULE" default:"*/30 * * * *"`
	CatalogSyncLimit    int           `envconfig:"CATALOG_SYNC_LIMIT" default:"20"`

	// --- Opening ---
	// rarity - фиксированная таблица весов по редкости, probability - вес из поля предмета
	OpeningStrategy       string        `envconfig:"OPENING_STRATEGY" default:"rarity"`
	OpeningMaxQuantity    int           `envconfig:"OPENING_MAX_QUANTITY" default:"10"`
	OpeningPersistTimeout time.Duration `envconfig:"OPENING_PERSIST_TIMEOUT" default:"10s"`
	OpeningPersistRetries int           `envconfig:"OPENING_PERSIST_RETRIES" default:"3"`
	OpeningRefundRetries  int           `envconfig:"OPENING_REFUND_RETRIES" default:"5"`

	// --- Payments ---
	// Пределы одной покупки звёзд через инвойс
	PaymentsMinStars int64 `envconfig:"PAYMENTS_MIN_STARS" default:"1"`
	PaymentsMaxStars int64 `envconfig:"PAYMENTS_MAX_STARS" default:"100000"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeaturePaymentsEnabled bool `envconfig:"FEATURE_PAYMENTS_ENABLED" default:"true"`
	FeatureGiftsEnabled    bool `envconfig:"FEATURE_GIFTS_ENABLED" default:"true"`
	FeatureCatalogSync     bool `envconfig:"FEATURE_CATALOG_SYNC" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsAdmin проверяет, входит ли userID в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Validate проверяет значения, которые envconfig проверить не может.
func (c *Config) Validate() error {
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT вне диапазона: %d", c.HTTPPort)
	}
	if c.LedgerWelcomeBonus < 0 {
		return fmt.Errorf("LEDGER_WELCOME_BONUS не может быть отрицательным")
	}
	if c.CatalogStarsPerTON <= 0 {
		return fmt.Errorf("CATALOG_STARS_PER_TON должен быть > 0")
	}
	// Таймаут апстрима ограничен сверху: открытие кейса не должно висеть дольше 10 секунд
	if c.CatalogTimeout <= 0 || c.CatalogTimeout > 10*time.Second {
		return fmt.Errorf("CATALOG_TIMEOUT должен быть в диапазоне (0, 10s]")
	}
	switch c.OpeningStrategy {
	case "rarity", "probability":
	default:
		return fmt.Errorf("OPENING_STRATEGY: неизвестная стратегия %q", c.OpeningStrategy)
	}
	if c.OpeningMaxQuantity < 1 {
		return fmt.Errorf("OPENING_MAX_QUANTITY должен быть >= 1")
	}
	if c.OpeningPersistRetries < 1 || c.OpeningRefundRetries < 1 {
		return fmt.Errorf("OPENING_PERSIST_RETRIES и OPENING_REFUND_RETRIES должны быть >= 1")
	}
	if c.PaymentsMinStars < 1 || c.PaymentsMaxStars < c.PaymentsMinStars {
		return fmt.Errorf("некорректные PAYMENTS_MIN_STARS/PAYMENTS_MAX_STARS")
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	// .env не обязателен - в Docker всё приходит через окружение
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
