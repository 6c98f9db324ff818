// Package admin реализует админ-панель в личных сообщениях с парольной аутентификацией.
// models.go описывает сессии, попытки входа, состояния диалога и сводку по системе.
package admin

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdminSession - активная сессия администратора.
type AdminSession struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
	LastActivity    time.Time `db:"last_activity"`
	IsActive        bool      `db:"is_active"`
}

// LoginAttempt - попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// AdminState - состояние диалога с админом (конечный автомат).
// Действия идут по шагам: кнопка → выбор кейса или пользователя → ввод значения.
type AdminState struct {
	State     string // Текущее состояние ("", "awaiting_password", "toggle_case_select", ...)
	Data      any    // Данные контекста (список кейсов, выбранный пользователь)
	ExpiresAt time.Time
}

// Возможные состояния админ-диалога
const (
	StateNone             = ""
	StateAwaitingPassword = "awaiting_password"
	StateToggleCaseSelect = "toggle_case_select" // Ждём номер кейса
	StateGiveStarsUser    = "give_stars_user"    // Ждём @username получателя
	StateGiveStarsAmount  = "give_stars_amount"  // Ждём количество звёзд
	StateBanUser          = "ban_user"           // Ждём @username для бана/разбана
)

// Кнопки клавиатуры
const (
	ButtonStats      = "Статистика"
	ButtonCases      = "Кейсы"
	ButtonToggleCase = "Вкл/выкл кейс"
	ButtonGiveStars  = "Выдать звёзды"
	ButtonBan        = "Бан/разбан"
	ButtonSync       = "Синхронизировать каталог"
)

// SystemStats - сводка для админа.
type SystemStats struct {
	Users         int64
	Active24h     int64
	OpeningsToday int64
	RevenueStars  int64
	RevenueTON    decimal.Decimal
	DepositsStars int64
	ActiveCases   int64
	TotalCases    int64
}
