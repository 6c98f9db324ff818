// Package admin - handlers.go обрабатывает взаимодействие с админ-панелью.
// Панель работает через Reply Keyboard в личных сообщениях.
// Поток: аутентификация → клавиатура → выбор действия → пошаговый диалог.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
	"serotonyl.ru/gifts-bot/internal/features/members"
)

// Handler обрабатывает админ-команды.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleAdminMessage обрабатывает любое сообщение от администратора в DM.
// Возвращает false, если сообщение не относится к админке.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID int64, userID int64, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}
	text = strings.TrimSpace(text)

	state := h.service.GetState(userID)
	if state != nil && state.State == StateAwaitingPassword {
		h.handlePasswordInput(ctx, chatID, userID, text)
		return true
	}

	if !h.service.HasActiveSession(ctx, userID) {
		if !isPanelCommand(text) {
			return false
		}
		h.sendMessage(chatID, "🔐 Введите пароль для доступа к админ-панели:")
		h.service.SetState(userID, StateAwaitingPassword, nil)
		return true
	}

	h.service.Touch(ctx, userID)

	if state != nil {
		switch state.State {
		case StateToggleCaseSelect:
			h.handleToggleCaseSelect(ctx, chatID, userID, state, text)
			return true
		case StateGiveStarsUser:
			h.handleGiveStarsUser(ctx, chatID, userID, text)
			return true
		case StateGiveStarsAmount:
			h.handleGiveStarsAmount(ctx, chatID, userID, state, text)
			return true
		case StateBanUser:
			h.handleBanUser(ctx, chatID, userID, text)
			return true
		}
	}

	switch text {
	case ButtonStats:
		h.showStats(ctx, chatID)
	case ButtonCases:
		h.showCases(ctx, chatID)
	case ButtonToggleCase:
		h.startToggleCase(ctx, chatID, userID)
	case ButtonGiveStars:
		h.sendMessage(chatID, "Кому выдать звёзды? Отправьте @username")
		h.service.SetState(userID, StateGiveStarsUser, nil)
	case ButtonBan:
		h.sendMessage(chatID, "Кого забанить или разбанить? Отправьте @username")
		h.service.SetState(userID, StateBanUser, nil)
	case ButtonSync:
		h.syncCatalog(ctx, chatID)
	default:
		if !isPanelCommand(text) {
			return false
		}
		h.showKeyboard(chatID)
	}
	return true
}

func isPanelCommand(text string) bool {
	switch strings.ToLower(text) {
	case "админ", "панель", "/admin":
		return true
	}
	return false
}

// handlePasswordInput обрабатывает ввод пароля.
func (h *Handler) handlePasswordInput(ctx context.Context, chatID int64, userID int64, password string) {
	h.service.ClearState(userID)
	if err := h.service.VerifyPassword(ctx, userID, password); err != nil {
		if !errors.Is(err, common.ErrWrongPassword) && !errors.Is(err, common.ErrTooManyAttempts) {
			log.WithError(err).Error("Ошибка входа в админку")
			h.sendMessage(chatID, "❌ Ошибка входа")
			return
		}
		h.sendMessage(chatID, "❌ "+err.Error())
		return
	}

	h.sendMessage(chatID, "✅ Аутентификация успешна!")
	h.showKeyboard(chatID)
}

// showKeyboard отображает клавиатуру админ-панели.
func (h *Handler) showKeyboard(chatID int64) {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonStats),
			tgbotapi.NewKeyboardButton(ButtonCases),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonToggleCase),
			tgbotapi.NewKeyboardButton(ButtonSync),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonGiveStars),
			tgbotapi.NewKeyboardButton(ButtonBan),
		),
	)

	msg := tgbotapi.NewMessage(chatID, "✅ Админ-панель открыта")
	msg.ReplyMarkup = keyboard
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки клавиатуры")
	}
}

func (h *Handler) showStats(ctx context.Context, chatID int64) {
	st, err := h.service.Stats(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения сводки")
		h.sendMessage(chatID, "❌ Ошибка получения статистики")
		return
	}
	h.sendMessage(chatID, FormatStats(st))
}

func (h *Handler) showCases(ctx context.Context, chatID int64) {
	cases, err := h.service.ListCases(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения кейсов")
		h.sendMessage(chatID, "❌ Ошибка получения кейсов")
		return
	}
	h.sendMessage(chatID, formatNumberedCases(cases))
}

// --- Вкл/выкл кейс (2 шага) ---

func (h *Handler) startToggleCase(ctx context.Context, chatID int64, userID int64) {
	cases, err := h.service.ListCases(ctx)
	if err != nil || len(cases) == 0 {
		h.sendMessage(chatID, "Кейсов нет")
		return
	}
	h.sendMessage(chatID, "Выберите кейс (отправьте номер):\n\n"+formatNumberedCases(cases))
	h.service.SetState(userID, StateToggleCaseSelect, cases)
}

func (h *Handler) handleToggleCaseSelect(ctx context.Context, chatID int64, userID int64, state *AdminState, text string) {
	cases := state.Data.([]*catalog.Case)

	num, err := strconv.Atoi(text)
	if err != nil || num < 1 || num > len(cases) {
		h.sendMessage(chatID, "❌ Неверный номер. Попробуйте ещё раз.")
		return
	}
	h.service.ClearState(userID)

	selected := cases[num-1]
	active, err := h.service.ToggleCase(ctx, selected)
	if err != nil {
		h.sendMessage(chatID, "❌ "+common.PublicMessage(err))
		return
	}
	status := "выключен"
	if active {
		status = "включён"
	}
	log.WithFields(log.Fields{"admin_id": userID, "case_id": selected.ID, "active": active}).Warn("Админ переключил кейс")
	h.sendMessage(chatID, fmt.Sprintf("✅ Кейс %s %s", selected.Name, status))
}

// --- Выдать звёзды (2 шага) ---

func (h *Handler) handleGiveStarsUser(ctx context.Context, chatID int64, userID int64, text string) {
	m, err := h.service.FindMember(ctx, text)
	if err != nil {
		h.sendMessage(chatID, "❌ "+common.PublicMessage(err))
		h.service.ClearState(userID)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("Сколько звёзд выдать %s?", m.DisplayName()))
	h.service.SetState(userID, StateGiveStarsAmount, m)
}

func (h *Handler) handleGiveStarsAmount(ctx context.Context, chatID int64, userID int64, state *AdminState, text string) {
	m := state.Data.(*members.Member)

	amount, err := strconv.ParseInt(text, 10, 64)
	if err != nil || amount <= 0 {
		h.sendMessage(chatID, "❌ Введите положительное целое число")
		return
	}
	h.service.ClearState(userID)

	b, err := h.service.GiveStars(ctx, userID, m.UserID, amount)
	if err != nil {
		log.WithError(err).Error("Ошибка выдачи звёзд")
		h.sendMessage(chatID, "❌ "+common.PublicMessage(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ %s получил %s\nБаланс: %s",
		m.DisplayName(), common.FormatStars(amount), common.FormatStars(b.Stars)))
}

// --- Бан/разбан ---

func (h *Handler) handleBanUser(ctx context.Context, chatID int64, userID int64, text string) {
	h.service.ClearState(userID)

	m, err := h.service.FindMember(ctx, text)
	if err != nil {
		h.sendMessage(chatID, "❌ "+common.PublicMessage(err))
		return
	}
	banned, err := h.service.ToggleBan(ctx, m)
	if err != nil {
		log.WithError(err).Error("Ошибка бана")
		h.sendMessage(chatID, "❌ "+common.PublicMessage(err))
		return
	}
	log.WithFields(log.Fields{"admin_id": userID, "user_id": m.UserID, "banned": banned}).Warn("Админ изменил бан")
	if banned {
		h.sendMessage(chatID, fmt.Sprintf("🚫 %s забанен", m.DisplayName()))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ %s разбанен", m.DisplayName()))
}

func (h *Handler) syncCatalog(ctx context.Context, chatID int64) {
	report, err := h.service.SyncCatalog(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка синхронизации каталога")
		h.sendMessage(chatID, "❌ Ошибка синхронизации: "+common.PublicMessage(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🔄 Получено: %d, обновлено: %d, пропущено: %d",
		report.Fetched, report.Upserted, report.Skipped))
}

// FormatStats - текст сводки для админа.
func FormatStats(s *SystemStats) string {
	var sb strings.Builder
	sb.WriteString("📊 Сводка\n\n")
	sb.WriteString(fmt.Sprintf("Пользователей: %s (активны за сутки: %s)\n",
		common.FormatNumber(s.Users), common.FormatNumber(s.Active24h)))
	sb.WriteString(fmt.Sprintf("Открытий сегодня: %s\n", common.FormatNumber(s.OpeningsToday)))
	sb.WriteString("Выручка: " + common.FormatStars(s.RevenueStars))
	if s.RevenueTON.IsPositive() {
		sb.WriteString(" + " + common.FormatTON(s.RevenueTON))
	}
	sb.WriteString("\nПокупки звёзд: " + common.FormatStars(s.DepositsStars) + "\n")
	sb.WriteString(fmt.Sprintf("Кейсов в продаже: %d из %d", s.ActiveCases, s.TotalCases))
	return sb.String()
}

func formatNumberedCases(cases []*catalog.Case) string {
	var sb strings.Builder
	for i, c := range cases {
		mark := "🟢"
		if !c.Active {
			mark = "⚪"
		}
		sb.WriteString(fmt.Sprintf("%d. %s %s · %s\n", i+1, mark, c.Name, catalog.FormatPrice(c)))
	}
	return sb.String()
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
