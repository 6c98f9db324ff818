// Package opening - handlers.go обрабатывает команды бота:
// !открыть и !статистика.
package opening

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

// Handler обрабатывает команды открытия кейсов.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleOpen отвечает на !открыть <кейс> [кол-во].
func (h *Handler) HandleOpen(ctx context.Context, chatID, userID int64, args string) {
	caseID, quantity, err := ParseOpenArgs(args)
	if err != nil {
		h.sendMessage(chatID, "ℹ️ Использование: !открыть <id кейса> [кол-во]")
		return
	}

	res, err := h.service.OpenCase(ctx, userID, caseID, quantity)
	if err != nil {
		if errors.Is(err, common.ErrOpeningFailed) {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка открытия кейса")
		}
		h.sendMessage(chatID, "❌ "+common.PublicMessage(err))
		return
	}
	h.sendMessage(chatID, FormatResult(res))
}

// HandleStats отвечает на !статистика.
func (h *Handler) HandleStats(ctx context.Context, chatID, userID int64) {
	st, err := h.service.Stats(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения статистики")
		h.sendMessage(chatID, "❌ Ошибка получения статистики")
		return
	}
	h.sendMessage(chatID, FormatStats(st))
}

// ParseOpenArgs разбирает "<кейс> [кол-во]". Количество по умолчанию 1.
func ParseOpenArgs(args string) (string, int, error) {
	parts := strings.Fields(args)
	switch len(parts) {
	case 1:
		return parts[0], 1, nil
	case 2:
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return "", 0, common.ErrInvalidRequest
		}
		return parts[0], n, nil
	default:
		return "", 0, common.ErrInvalidRequest
	}
}

// FormatResult - текст результата открытия.
//
// Пример:
//
//	🎉 Открыто: 2
//	🔷 Cake · 100 ⭐
//	🌟 Plush Pepe · 1 200 ⭐
//
//	Списано: 100 ⭐
//	Баланс: 50 ⭐
func FormatResult(r *Result) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎉 Открыто: %d\n", len(r.Outcomes)))
	for _, o := range r.Outcomes {
		sb.WriteString(fmt.Sprintf("%s %s · %s\n",
			o.Item.Rarity.Emoji(), o.Item.Name, common.FormatStars(o.Item.Value)))
	}
	sb.WriteString("\nСписано: " + formatAmount(r.Currency, r.TotalCost))
	if r.Balance != nil {
		sb.WriteString("\nБаланс: " + formatAmount(r.Currency, r.Balance.Of(r.Currency)))
	}
	return sb.String()
}

func formatAmount(c ledger.Currency, amount decimal.Decimal) string {
	if c == ledger.CurrencyTON {
		return common.FormatTON(amount)
	}
	return common.FormatStars(amount.IntPart())
}

// FormatStats - текст статистики открытий.
func FormatStats(s *Stats) string {
	if s.Openings == 0 {
		return "📊 Вы ещё не открыли ни одного кейса"
	}

	var sb strings.Builder
	sb.WriteString("📊 Статистика открытий\n\n")
	sb.WriteString(fmt.Sprintf("Открыто: %d %s\n", s.Openings, common.PluralizeCases(s.Openings)))
	if s.SpentStars > 0 {
		sb.WriteString("Потрачено: " + common.FormatStars(s.SpentStars) + "\n")
	}
	if s.SpentTON.IsPositive() {
		sb.WriteString("Потрачено: " + common.FormatTON(s.SpentTON) + "\n")
	}
	sb.WriteString("Ценность выигрышей: " + common.FormatStars(s.ValueWon) + "\n")
	if s.SpentStars > 0 {
		sb.WriteString(fmt.Sprintf("Возврат: %.0f%%\n", s.ReturnRatio()*100))
	}
	if s.BestDrop != nil {
		sb.WriteString(fmt.Sprintf("Лучший предмет: %s %s (%s)",
			s.BestDrop.ItemRarity.Emoji(), s.BestDrop.ItemName, common.FormatStars(s.BestDrop.ItemValue)))
	}
	return sb.String()
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
