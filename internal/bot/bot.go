// Package bot содержит главный модуль бота - запуск polling и маршрутизацию апдейтов.
// bot.go принимает апдейты, фильтрует доступ и передаёт команды обработчикам фич.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/bot/filters"
	"serotonyl.ru/gifts-bot/internal/bot/middleware"
	"serotonyl.ru/gifts-bot/internal/config"
	"serotonyl.ru/gifts-bot/internal/features/admin"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
	"serotonyl.ru/gifts-bot/internal/features/inventory"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
	"serotonyl.ru/gifts-bot/internal/features/members"
	"serotonyl.ru/gifts-bot/internal/features/opening"
	"serotonyl.ru/gifts-bot/internal/features/payments"
)

const helpText = `🎁 Кейсы с подарками Telegram

/start — открыть Mini App
!баланс — ваш баланс
!история — последние операции
!кейсы — список кейсов
!открыть <кейс> [кол-во] — открыть кейс
!инвентарь — ваши предметы
!подарить <id> @username — подарить предмет
!топ — таблица лидеров
!статистика — статистика открытий
!купить <кол-во> — купить звёзды`

// Handlers - обработчики фич, между которыми бот распределяет команды.
type Handlers struct {
	Members   *members.Handler
	Ledger    *ledger.Handler
	Catalog   *catalog.Handler
	Opening   *opening.Handler
	Inventory *inventory.Handler
	Payments  *payments.Handler
	Admin     *admin.Handler
}

// Bot - главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	access      *filters.AccessFilter
	rateLimiter *middleware.RateLimiter

	handlers      Handlers
	memberService *members.Service

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	memberService *members.Service,
	handlers Handlers,
	access *filters.AccessFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:           api,
		cfg:           cfg,
		access:        access,
		rateLimiter:   middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		handlers:      handlers,
		memberService: memberService,
		parser:        NewCommandParser(),
		inflight:      make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram. Возвращается после отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	defer b.rateLimiter.Close()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds
	u.AllowedUpdates = []string{"message", "pre_checkout_query"}

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			b.wait()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// wait дожидается обработчиков, которые ещё работают.
func (b *Bot) wait() {
	for i := 0; i < cap(b.inflight); i++ {
		b.inflight <- struct{}{}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	// Оплата звёздами: сначала pre_checkout_query, затем сообщение successful_payment.
	// Эти апдейты не фильтруются лимитом: Telegram ждёт ответа 10 секунд
	if update.PreCheckoutQuery != nil {
		middleware.LogPreCheckout(update.PreCheckoutQuery)
		b.handlers.Payments.HandlePreCheckout(ctx, update.PreCheckoutQuery)
		return
	}
	if update.Message != nil && update.Message.SuccessfulPayment != nil && update.Message.From != nil {
		middleware.LogMessage(update.Message)
		b.handlers.Payments.HandleSuccessfulPayment(ctx, update.Message)
		return
	}

	if update.Message == nil || update.Message.Text == "" {
		return
	}
	message := update.Message

	middleware.LogMessage(message)

	if !b.access.CheckAccess(ctx, message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	// Профиль обновляем на каждом сообщении: имя и username могли измениться
	if _, err := b.memberService.Register(ctx, members.ProfileFromUser(message.From)); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось обновить профиль")
	}

	// Админ-панель живёт в том же личном чате
	if b.handlers.Admin.HandleAdminMessage(ctx, chatID, userID, message.Text) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	b.routeCommand(ctx, message, cmd, strings.Join(args, " "))
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *tgbotapi.Message, cmd, args string) {
	chatID := message.Chat.ID
	userID := message.From.ID

	switch cmd {
	case "start":
		b.handlers.Members.HandleStart(ctx, chatID, message.From)

	case "help", "помощь":
		b.sendMessage(chatID, helpText)

	case "баланс", "balance":
		b.handlers.Ledger.HandleBalance(ctx, chatID, userID)

	case "история", "history":
		b.handlers.Ledger.HandleHistory(ctx, chatID, userID)

	case "кейсы", "cases":
		b.handlers.Catalog.HandleCases(ctx, chatID)

	case "открыть", "open":
		b.handlers.Opening.HandleOpen(ctx, chatID, userID, args)

	case "статистика", "stats":
		b.handlers.Opening.HandleStats(ctx, chatID, userID)

	case "инвентарь", "inventory":
		b.handlers.Inventory.HandleInventory(ctx, chatID, userID)

	case "подарить", "gift":
		b.handlers.Inventory.HandleGift(ctx, chatID, userID, args)

	case "топ", "top":
		b.handlers.Inventory.HandleTop(ctx, chatID)

	case "купить", "buy":
		b.handlers.Payments.HandleBuy(ctx, chatID, userID, args)
	}
}

// sendMessage - утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser парсит русские команды с префиксами !, . и /.
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// "/open@gifts_bot basic 2" → ("open", ["basic", "2"], true).
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	// В группах Telegram дописывает к команде @имя_бота
	if i := strings.IndexByte(command, '@'); i > 0 {
		command = command[:i]
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}
