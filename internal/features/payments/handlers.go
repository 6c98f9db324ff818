// Package payments - handlers.go обрабатывает !купить, pre_checkout_query
// и successful_payment.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
)

// Handler обрабатывает платёжные апдейты.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик платежей.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleBuy отвечает на !купить <кол-во> инвойсом в звёздах.
func (h *Handler) HandleBuy(ctx context.Context, chatID, userID int64, args string) {
	amount, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		h.sendMessage(chatID, "ℹ️ Использование: !купить <кол-во звёзд>")
		return
	}

	p, err := h.service.NewPayload(userID, amount)
	if err != nil {
		h.sendMessage(chatID, "❌ "+common.PublicMessage(err))
		return
	}

	// Для Telegram Stars provider_token пустой
	invoice := tgbotapi.NewInvoice(chatID,
		common.FormatStars(amount),
		fmt.Sprintf("Пополнение баланса на %d %s", amount, common.PluralizeStars(amount)),
		p.String(), "", "", CurrencyXTR,
		[]tgbotapi.LabeledPrice{{Label: "Telegram Stars", Amount: int(amount)}},
	)
	if _, err := h.bot.Send(invoice); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка отправки инвойса")
		h.sendMessage(chatID, "❌ Не удалось выставить счёт")
	}
}

// HandlePreCheckout подтверждает или отклоняет оплату.
func (h *Handler) HandlePreCheckout(_ context.Context, q *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}

	var payerID int64
	if q.From != nil {
		payerID = q.From.ID
	}
	err := h.service.CheckPreCheckout(PreCheckout{
		PayerID:     payerID,
		Currency:    q.Currency,
		TotalAmount: int64(q.TotalAmount),
		Payload:     q.InvoicePayload,
	})
	if err != nil {
		log.WithError(err).WithField("payload", q.InvoicePayload).Warn("Оплата отклонена")
		answer.OK = false
		answer.ErrorMessage = "Некорректные данные платежа"
	}

	if _, err := h.bot.Request(answer); err != nil {
		log.WithError(err).Error("Ошибка ответа на pre_checkout_query")
	}
}

// HandleSuccessfulPayment зачисляет оплаченные звёзды.
func (h *Handler) HandleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	sp := msg.SuccessfulPayment
	b, err := h.service.CompleteStarsPayment(ctx, StarsPayment{
		PayerID:     msg.From.ID,
		Currency:    sp.Currency,
		TotalAmount: int64(sp.TotalAmount),
		Payload:     sp.InvoicePayload,
		ChargeID:    sp.TelegramPaymentChargeID,
	})
	switch {
	case errors.Is(err, common.ErrDuplicatePayment):
		log.WithField("charge_id", sp.TelegramPaymentChargeID).Warn("Повторное уведомление об оплате")
		return
	case err != nil:
		// Деньги у пользователя уже списаны Telegram: это повод для ручного разбора
		log.WithError(err).WithFields(log.Fields{
			"user_id":   msg.From.ID,
			"charge_id": sp.TelegramPaymentChargeID,
			"severity":  "critical",
		}).Error("Оплата не зачислена")
		h.sendMessage(msg.Chat.ID, "❌ Оплата получена, но не зачислена. Мы уже разбираемся")
		return
	}

	h.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ Зачислено %s\nБаланс: %s",
		common.FormatStars(int64(sp.TotalAmount)), common.FormatStars(b.Stars)))
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
