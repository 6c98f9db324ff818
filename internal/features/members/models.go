// Package members - участники: пользователи Telegram, открывшие бота или Mini App.
// models.go описывает структуры для работы с таблицей members.
package members

import "time"

// Member - пользователь в базе.
// Запись появляется при первом /start, первом запросе из Mini App
// или лениво, когда леджер заводит счёт.
type Member struct {
	ID           int64      `db:"id"`
	UserID       int64      `db:"user_id"`  // Telegram user ID (уникальный)
	Username     string     `db:"username"` // @username (может быть пустым)
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	LanguageCode string     `db:"language_code"`
	IsPremium    bool       `db:"is_premium"`
	IsBanned     bool       `db:"is_banned"`
	CasesOpened  int64      `db:"cases_opened"`
	JoinedAt     time.Time  `db:"joined_at"`
	LastSeenAt   *time.Time `db:"last_seen_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// Profile - данные пользователя из Telegram (апдейт бота или initData).
type Profile struct {
	UserID       int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
	IsPremium    bool   `json:"is_premium"`
}

// DisplayName возвращает отображаемое имя пользователя.
// Если есть @username - возвращает его, иначе - имя + фамилия.
func (m *Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := m.FirstName
	if m.LastName != "" {
		name += " " + m.LastName
	}
	if name == "" {
		return "Игрок"
	}
	return name
}
