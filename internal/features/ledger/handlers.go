// Package ledger - handlers.go обрабатывает команды бота:
// !баланс и !история.
package ledger

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
)

// Handler обрабатывает команды баланса.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд леджера.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleBalance отвечает на !баланс.
//
// Пример ответа:
//
//	💰 Баланс
//	150 ⭐
//	💎 1.25 TON
func (h *Handler) HandleBalance(ctx context.Context, chatID int64, userID int64) {
	b, err := h.service.GetBalance(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения баланса")
		h.sendMessage(chatID, "❌ "+common.PublicMessage(err))
		return
	}
	h.sendMessage(chatID, FormatBalance(b))
}

// HandleHistory отвечает на !история последними десятью операциями.
func (h *Handler) HandleHistory(ctx context.Context, chatID int64, userID int64) {
	entries, err := h.service.History(ctx, userID, 10)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения истории")
		h.sendMessage(chatID, "❌ Ошибка получения истории операций")
		return
	}
	h.sendMessage(chatID, FormatHistory(entries))
}

// FormatBalance - текст баланса для бота.
func FormatBalance(b *Balance) string {
	return fmt.Sprintf("💰 Баланс\n%s\n💎 %s",
		common.FormatStars(b.Stars), common.FormatTON(b.TON))
}

// FormatHistory - список операций, новые сверху.
func FormatHistory(entries []*Entry) string {
	if len(entries) == 0 {
		return "📋 У вас пока нет операций"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Последние %d операций:\n\n", len(entries)))
	for i, e := range entries {
		sign := "+"
		if e.Type == TxSpend {
			sign = "-"
		}
		sb.WriteString(fmt.Sprintf("%d. %s | %s%s %s | %s\n",
			i+1,
			common.FormatDateTime(e.CreatedAt),
			sign, e.Amount.String(), e.Currency,
			txTitle(e),
		))
	}
	return sb.String()
}

func txTitle(e *Entry) string {
	if e.Description != "" {
		return e.Description
	}
	switch e.Type {
	case TxDeposit:
		return "Пополнение"
	case TxSpend:
		return "Открытие кейса"
	case TxRefund:
		return "Возврат"
	case TxBonus:
		return "Бонус"
	case TxAdminGive:
		return "Выдача администратором"
	default:
		return string(e.Type)
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
