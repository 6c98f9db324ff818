// Package members - handlers.go обрабатывает /start.
package members

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Handler обрабатывает команды участников.
type Handler struct {
	service   *Service
	bot       *tgbotapi.BotAPI
	webAppURL string
}

// NewHandler создаёт новый обработчик команд участников.
func NewHandler(service *Service, bot *tgbotapi.BotAPI, webAppURL string) *Handler {
	return &Handler{service: service, bot: bot, webAppURL: webAppURL}
}

// HandleStart регистрирует пользователя и отдаёт кнопку Mini App.
func (h *Handler) HandleStart(ctx context.Context, chatID int64, user *tgbotapi.User) {
	m, err := h.service.Register(ctx, ProfileFromUser(user))
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("Ошибка регистрации участника")
		h.sendMessage(chatID, "❌ Не удалось зарегистрироваться, попробуйте позже", nil)
		return
	}

	text := fmt.Sprintf("🎁 Привет, %s!\n\n"+
		"Открывай кейсы и собирай подарки.\n"+
		"!кейсы — список кейсов\n"+
		"!баланс — твой баланс\n"+
		"!инвентарь — выигранные предметы", m.DisplayName())

	var markup any
	if h.webAppURL != "" {
		markup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("🎰 Открыть кейсы", h.webAppURL),
			),
		)
	}
	h.sendMessage(chatID, text, markup)
}

// ProfileFromUser переводит пользователя Telegram в профиль участника.
func ProfileFromUser(u *tgbotapi.User) Profile {
	return Profile{
		UserID:       u.ID,
		Username:     u.UserName,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
	}
}

func (h *Handler) sendMessage(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
