// Package catalog - handlers.go обрабатывает команду !кейсы.
package catalog

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

// Handler отвечает на команды каталога.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик каталога.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleCases показывает активные кейсы с ценами.
func (h *Handler) HandleCases(ctx context.Context, chatID int64) {
	cases, err := h.service.ListCases(ctx, true)
	if err != nil {
		log.WithError(err).Error("Ошибка получения кейсов")
		h.sendMessage(chatID, "❌ Не удалось загрузить кейсы")
		return
	}
	h.sendMessage(chatID, FormatCaseList(cases))
}

// FormatCaseList - список кейсов для бота.
func FormatCaseList(cases []*Case) string {
	if len(cases) == 0 {
		return "📦 Сейчас нет доступных кейсов"
	}

	var sb strings.Builder
	sb.WriteString("📦 Доступные кейсы:\n\n")
	for _, c := range cases {
		sb.WriteString(fmt.Sprintf("• %s (%s) — %s\n", c.Name, c.ID, FormatPrice(c)))
	}
	sb.WriteString("\nОткрыть: !открыть <id> [кол-во]")
	return sb.String()
}

// FormatPrice - цена кейса в его валюте.
func FormatPrice(c *Case) string {
	if c.Currency == ledger.CurrencyTON {
		return common.FormatTON(c.Price)
	}
	return common.FormatStars(c.Price.IntPart())
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
