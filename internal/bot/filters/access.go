// Package filters решает, какие сообщения бот вообще обрабатывает.
package filters

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Bans проверяет бан пользователя. Реализуется members.Service.
type Bans interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

// Sender отправляет сообщения. Реализуется *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// AccessFilter пропускает личные сообщения от людей, которые не забанены.
type AccessFilter struct {
	bans Bans
	bot  Sender
}

// NewAccessFilter создаёт фильтр доступа.
func NewAccessFilter(bans Bans, bot Sender) *AccessFilter {
	return &AccessFilter{bans: bans, bot: bot}
}

// CheckAccess возвращает true, если сообщение нужно обработать.
func (f *AccessFilter) CheckAccess(ctx context.Context, message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "AccessFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil || message.From.IsBot {
		log.WithFields(log.Fields{
			"component": "AccessFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("deny: service/channel message or bot")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "AccessFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	// Бот работает только в личке: там же открывается Mini App и приходят платежи
	if !message.Chat.IsPrivate() {
		logger.Debug("deny: not private")
		return false
	}

	banned, err := f.bans.IsBanned(ctx, message.From.ID)
	if err != nil {
		logger.WithError(err).Error("ban check failed (db)")
		return false
	}
	if banned {
		logger.Info("deny: banned")
		msg := tgbotapi.NewMessage(message.Chat.ID, "🚫 Вы заблокированы")
		if _, sendErr := f.bot.Send(msg); sendErr != nil {
			logger.WithError(sendErr).Warn("failed to send deny message")
		}
		return false
	}
	return true
}
