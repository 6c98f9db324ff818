// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const maxLoggedText = 50

// LogMessage логирует входящее сообщение: user_id, chat_id, username,
// начало текста или данные оплаты.
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}

	fields := log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.UserName,
	}
	if sp := message.SuccessfulPayment; sp != nil {
		fields["currency"] = sp.Currency
		fields["amount"] = sp.TotalAmount
		fields["charge_id"] = sp.TelegramPaymentChargeID
		log.WithFields(fields).Info("Входящая оплата")
		return
	}

	fields["text"] = truncate(message.Text, maxLoggedText)
	log.WithFields(fields).Debug("Входящее сообщение")
}

// LogPreCheckout логирует запрос подтверждения оплаты.
func LogPreCheckout(q *tgbotapi.PreCheckoutQuery) {
	if q == nil {
		return
	}
	fields := log.Fields{
		"query_id": q.ID,
		"currency": q.Currency,
		"amount":   q.TotalAmount,
		"payload":  q.InvoicePayload,
	}
	if q.From != nil {
		fields["user_id"] = q.From.ID
	}
	log.WithFields(fields).Debug("pre_checkout_query")
}

// truncate обрезает строку по рунам, чтобы не резать кириллицу посередине.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
