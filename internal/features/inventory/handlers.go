// Package inventory - handlers.go обрабатывает команды бота:
// !инвентарь, !топ и !подарить.
package inventory

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/features/members"
)

// Recipients ищет получателя подарка по @username.
type Recipients interface {
	GetByUsername(ctx context.Context, username string) (*members.Member, error)
}

// Handler обрабатывает команды инвентаря.
type Handler struct {
	service    *Service
	recipients Recipients
	bot        *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд инвентаря.
func NewHandler(service *Service, recipients Recipients, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, recipients: recipients, bot: bot}
}

// HandleInventory отвечает на !инвентарь.
func (h *Handler) HandleInventory(ctx context.Context, chatID, userID int64) {
	entries, err := h.service.List(ctx, userID, 20)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения инвентаря")
		h.sendMessage(chatID, "❌ Ошибка получения инвентаря")
		return
	}
	h.sendMessage(chatID, FormatInventory(entries))
}

// HandleTop отвечает на !топ.
func (h *Handler) HandleTop(ctx context.Context, chatID int64) {
	rows, err := h.service.Leaderboard(ctx, 10)
	if err != nil {
		log.WithError(err).Error("Ошибка получения таблицы лидеров")
		h.sendMessage(chatID, "❌ Ошибка получения топа")
		return
	}
	h.sendMessage(chatID, FormatLeaderboard(rows))
}

// HandleGift отвечает на !подарить <id> @username.
func (h *Handler) HandleGift(ctx context.Context, chatID, userID int64, args string) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		h.sendMessage(chatID, "ℹ️ Использование: !подарить <id предмета> @username")
		return
	}
	entryID, err := uuid.Parse(parts[0])
	if err != nil {
		h.sendMessage(chatID, "❌ Некорректный id предмета")
		return
	}

	to, err := h.recipients.GetByUsername(ctx, parts[1])
	if err != nil {
		h.sendMessage(chatID, "❌ "+common.PublicMessage(err))
		return
	}

	e, err := h.service.Gift(ctx, entryID, userID, to.UserID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Подарок не выполнен")
		h.sendMessage(chatID, "❌ "+common.PublicMessage(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🎁 %s отправлен пользователю %s", e.ItemName, to.DisplayName()))
}

// FormatInventory - список предметов для бота.
func FormatInventory(entries []*Entry) string {
	if len(entries) == 0 {
		return "🎒 Инвентарь пуст. Открой кейс: !кейсы"
	}

	count, value := Summary(entries)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎒 Инвентарь: %d %s на %s\n\n",
		count, common.PluralizeItems(count), common.FormatStars(value)))
	for _, e := range entries {
		mark := ""
		if e.IsGifted {
			mark = " (подарен)"
		}
		sb.WriteString(fmt.Sprintf("%s %s · %s%s\n   id: %s\n",
			e.ItemRarity.Emoji(), e.ItemName, common.FormatStars(e.ItemValue), mark, e.ID))
	}
	return sb.String()
}

// FormatLeaderboard - таблица лидеров для бота.
func FormatLeaderboard(rows []LeaderboardRow) string {
	if len(rows) == 0 {
		return "🏆 Топ пока пуст"
	}

	var sb strings.Builder
	sb.WriteString("🏆 Топ коллекционеров:\n\n")
	for i, r := range rows {
		sb.WriteString(fmt.Sprintf("%d. %s: %s (%d шт.)\n",
			i+1, r.DisplayName(), common.FormatStars(r.TotalValue), r.Items))
	}
	return sb.String()
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
