package telegram

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ObiAU/otprelay/internal/models"
)

// client is the part of tgbotapi.BotAPI the bot uses.
type client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

type PanelStore interface {
	Create(ctx context.Context, in models.PanelInput) (models.Panel, error)
	Get(ctx context.Context, id string) (models.Panel, error)
	List(ctx context.Context) ([]models.Panel, error)
	Remove(ctx context.Context, id string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

type ChatStore interface {
	List(ctx context.Context) ([]int64, error)
	Add(ctx context.Context, chatID int64) error
	Remove(ctx context.Context, chatID int64) error
}

type SessionInvalidator interface {
	Invalidate(panelID string) bool
	InvalidateAll() int
}

type StatusProvider interface {
	Status() models.RelayStatus
}

type Options struct {
	AdminID       int64
	WebhookURL    string
	NotifyTimeout time.Duration
	Panels        PanelStore
	Chats         ChatStore
	Sessions      SessionInvalidator
}

type Bot struct {
	api         client
	adminID     int64
	webhookURL  string
	pollTimeout int
	panels      PanelStore
	chats       ChatStore
	sessions    SessionInvalidator
	limiter     *rate.Limiter

	mu      sync.Mutex
	status  StatusProvider
	wizards map[int64]*wizard
}

func NewBot(token string, opts Options) (*Bot, error) {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 20 * time.Second
	}
	httpClient := &http.Client{Timeout: opts.NotifyTimeout}

	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	zap.L().Info("telegram bot authorized", zap.String("username", api.Self.UserName))

	return newBot(api, opts), nil
}

func newBot(api client, opts Options) *Bot {
	// Long polling must return before the HTTP client gives up.
	pollTimeout := int(opts.NotifyTimeout.Seconds() / 2)
	if pollTimeout < 1 {
		pollTimeout = 1
	}

	return &Bot{
		api:         api,
		adminID:     opts.AdminID,
		webhookURL:  opts.WebhookURL,
		pollTimeout: pollTimeout,
		panels:      opts.Panels,
		chats:       opts.Chats,
		sessions:    opts.Sessions,
		limiter:     rate.NewLimiter(rate.Limit(20), 1),
		wizards:     make(map[int64]*wizard),
	}
}

func (b *Bot) SetStatusProvider(p StatusProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = p
}

// Start receives admin commands until ctx is done. With a webhook URL the
// updates arrive through WebhookHandler; otherwise the bot long-polls.
func (b *Bot) Start(ctx context.Context) error {
	if b.webhookURL != "" {
		webhook, err := tgbotapi.NewWebhook(b.webhookURL)
		if err != nil {
			return err
		}
		if _, err := b.api.Request(webhook); err != nil {
			return fmt.Errorf("failed to register webhook: %w", err)
		}
		zap.L().Info("telegram webhook registered", zap.String("url", b.webhookURL))
		<-ctx.Done()
		return nil
	}

	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		zap.L().Warn("failed to clear telegram webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.handleUpdate(r.Context(), *update)
	w.WriteHeader(http.StatusOK)
}

// Destinations lists the chats OTP events are relayed to.
func (b *Bot) Destinations(ctx context.Context) ([]int64, error) {
	chatIDs, err := b.chats.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load destination chats: %w", err)
	}
	return chatIDs, nil
}

// Notify sends the event to a single chat with a copy button under the code.
func (b *Bot) Notify(ctx context.Context, chatID int64, ev models.OTPEvent) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, FormatOTPMessage(ev))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Copy OTP", "copy:"+ev.OTP),
		),
	)

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("chat %d: %w", chatID, err)
	}
	return nil
}

// NotifyAdmin is best effort; a failure is logged and dropped.
func (b *Bot) NotifyAdmin(ctx context.Context, text string) {
	if b.adminID == 0 {
		return
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return
	}
	msg := tgbotapi.NewMessage(b.adminID, text)
	if _, err := b.api.Send(msg); err != nil {
		zap.L().Debug("failed to notify admin", zap.Error(err))
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	if update.Message.IsCommand() && update.Message.Command() == "start" {
		b.sendMessage(chatID, "🤖 Bot is alive!\n/help – admin commands")
		return
	}

	if update.Message.From.ID != b.adminID {
		return
	}

	if !update.Message.IsCommand() {
		if b.hasWizard(chatID) {
			b.continueWizard(ctx, chatID, update.Message.Text)
		}
		return
	}

	b.handleCommand(ctx, chatID, update.Message.Command(), update.Message.CommandArguments())
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	kind, value, _ := cutCallback(q.Data)

	switch kind {
	case "copy":
		b.answerCallback(q.ID, "OTP copied ✔️")
		if q.Message != nil {
			b.sendMessage(q.Message.Chat.ID, fmt.Sprintf("🔑 OTP: <code>%s</code>", escape(value)))
		}
	case "wiz":
		if q.From == nil || q.From.ID != b.adminID || q.Message == nil {
			b.answerCallback(q.ID, "")
			return
		}
		b.answerCallback(q.ID, "")
		b.continueWizard(ctx, q.Message.Chat.ID, value)
	default:
		b.answerCallback(q.ID, "")
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		zap.L().Debug("failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(chatID, text, nil)
}

func (b *Bot) send(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}

	_, err := b.api.Send(msg)
	if err != nil {
		zap.L().Warn("failed to send telegram message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func cutCallback(data string) (string, string, bool) {
	for i := 0; i < len(data); i++ {
		if data[i] == ':' {
			return data[:i], data[i+1:], true
		}
	}
	return data, "", false
}
