// internal/handlers/webhook/webhook_handler.go
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	intentdomain "subwatch-service/internal/domain/intent"
	domain "subwatch-service/internal/domain/subscription"
	"subwatch-service/internal/domain/user"
	xerrors "subwatch-service/internal/pkg/errors"
	"subwatch-service/internal/pkg/pending"
	"subwatch-service/internal/recurrence"
	"subwatch-service/internal/repository/postgres"
	intentsvc "subwatch-service/internal/service/intent"
	subsvc "subwatch-service/internal/service/subscription"
	"subwatch-service/internal/telegram"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler receives Bot API updates and drives the chat flow:
// commands and free text go through the normalizer, mutations are held
// in the pending store until the inline keyboard confirms them.
type WebhookHandler struct {
	bot        *telegram.Client
	users      *postgres.UserRepository
	subs       *subsvc.SubscriptionService
	normalizer *intentsvc.Normalizer
	pending    *pending.Store
	secret     string
	defaultTZ  string
	logger     *zap.Logger
}

func NewWebhookHandler(
	bot *telegram.Client,
	users *postgres.UserRepository,
	subs *subsvc.SubscriptionService,
	normalizer *intentsvc.Normalizer,
	pendingStore *pending.Store,
	secret, defaultTZ string,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		bot:        bot,
		users:      users,
		subs:       subs,
		normalizer: normalizer,
		pending:    pendingStore,
		secret:     secret,
		defaultTZ:  defaultTZ,
		logger:     logger,
	}
}

// HandleUpdate is the webhook endpoint. Telegram retries any non-200,
// so processing errors are logged and acknowledged rather than surfaced.
func (h *WebhookHandler) HandleUpdate(c *gin.Context) {
	if h.secret != "" && c.GetHeader(secretHeader) != h.secret {
		c.Status(http.StatusForbidden)
		return
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warn("malformed update", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	ctx := c.Request.Context()
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}
	c.Status(http.StatusOK)
}

func (h *WebhookHandler) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot || strings.TrimSpace(msg.Text) == "" {
		return
	}

	usr, err := h.users.GetOrCreate(ctx, msg.From.ID, msg.From.Username, h.defaultTZ)
	if err != nil {
		h.logger.Error("failed to resolve user", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, "Something went wrong on our side. Please try again.")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") {
		h.handleCommand(ctx, usr, msg.Chat.ID, text)
		return
	}

	si, err := h.normalizer.Normalize(ctx, usr.TelegramID, text)
	if err != nil {
		h.reply(ctx, msg.Chat.ID, rejectionHint(err))
		return
	}
	h.executeIntent(ctx, usr, msg.Chat.ID, si)
}

func (h *WebhookHandler) handleCommand(ctx context.Context, usr *user.User, chatID int64, text string) {
	cmd, args, _ := strings.Cut(text, " ")
	// Group chats address commands as /add@BotName.
	cmd, _, _ = strings.Cut(cmd, "@")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/start":
		h.reply(ctx, chatID, startMessage)
	case "/help":
		h.reply(ctx, chatID, helpMessage)
	case "/list":
		h.sendList(ctx, usr, chatID)
	case "/stats":
		h.sendStats(ctx, usr, chatID)
	case "/add":
		h.commandIntent(ctx, usr, chatID, intentdomain.KindAdd, args,
			"Tell me what to add, e.g. <code>/add Netflix 9.99 USD monthly</code>")
	case "/delete":
		h.commandIntent(ctx, usr, chatID, intentdomain.KindDelete, args,
			"Tell me what to delete, e.g. <code>/delete Netflix</code>")
	default:
		h.reply(ctx, chatID, "Unknown command. Send /help to see what I can do.")
	}
}

func (h *WebhookHandler) commandIntent(ctx context.Context, usr *user.User, chatID int64, kind intentdomain.Kind, args, usage string) {
	if args == "" {
		h.reply(ctx, chatID, usage)
		return
	}
	si, err := h.normalizer.NormalizeCommand(ctx, usr.TelegramID, kind, args)
	if err != nil {
		h.reply(ctx, chatID, rejectionHint(err))
		return
	}
	h.executeIntent(ctx, usr, chatID, si)
}

func (h *WebhookHandler) executeIntent(ctx context.Context, usr *user.User, chatID int64, si *intentdomain.SubscriptionIntent) {
	switch si.Kind {
	case intentdomain.KindList:
		h.sendList(ctx, usr, chatID)
	case intentdomain.KindStats:
		h.sendStats(ctx, usr, chatID)
	case intentdomain.KindAdd:
		h.promptAdd(ctx, usr, chatID, si)
	case intentdomain.KindDelete:
		h.promptDelete(ctx, usr, chatID, si)
	default:
		h.reply(ctx, chatID, "I didn't understand that. Send /help for examples.")
	}
}

func (h *WebhookHandler) promptAdd(ctx context.Context, usr *user.User, chatID int64, si *intentdomain.SubscriptionIntent) {
	action := &pending.Action{
		Kind: "add",
		Create: &domain.CreateInput{
			OwnerID:     usr.TelegramID,
			Name:        si.Name,
			Amount:      si.Amount,
			Currency:    si.Currency,
			PeriodUnit:  si.PeriodUnit,
			PeriodCount: si.PeriodCount,
			Timezone:    usr.Timezone,
		},
	}
	token, err := h.pending.Save(ctx, usr.TelegramID, action)
	if err != nil {
		h.logger.Error("failed to store pending add", zap.Error(err))
		h.reply(ctx, chatID, "Something went wrong on our side. Please try again.")
		return
	}

	text := fmt.Sprintf(
		"Add <b>%s</b> at <b>%.2f %s</b> %s?",
		telegram.EscapeHTML(si.Name), si.Amount, si.Currency,
		periodPhrase(si.PeriodUnit, si.PeriodCount),
	)
	h.sendConfirm(ctx, chatID, text, token)
}

func (h *WebhookHandler) promptDelete(ctx context.Context, usr *user.User, chatID int64, si *intentdomain.SubscriptionIntent) {
	action := &pending.Action{Kind: "delete", DeleteName: si.Name}
	token, err := h.pending.Save(ctx, usr.TelegramID, action)
	if err != nil {
		h.logger.Error("failed to store pending delete", zap.Error(err))
		h.reply(ctx, chatID, "Something went wrong on our side. Please try again.")
		return
	}

	text := fmt.Sprintf("Delete <b>%s</b> and stop its reminders?", telegram.EscapeHTML(si.Name))
	h.sendConfirm(ctx, chatID, text, token)
}

func (h *WebhookHandler) sendConfirm(ctx context.Context, chatID int64, text, token string) {
	keyboard := telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "✅ Confirm", CallbackData: "confirm:" + token},
			{Text: "❌ Cancel", CallbackData: "cancel:" + token},
		}},
	}
	if err := h.bot.SendMessageWithInlineKeyboard(ctx, chatID, text, keyboard); err != nil {
		h.logger.Error("failed to send confirmation prompt", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *WebhookHandler) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	// Always answer so the client stops its loading spinner.
	if err := h.bot.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		h.logger.Warn("failed to answer callback", zap.Error(err))
	}

	verb, token, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}
	chatID := cb.Message.Chat.ID
	ownerID := cb.From.ID

	if verb == "cancel" {
		h.pending.Drop(ctx, ownerID, token)
		h.edit(ctx, chatID, cb.Message.MessageID, "❌ Cancelled.")
		return
	}
	if verb != "confirm" {
		return
	}

	action, err := h.pending.Take(ctx, ownerID, token)
	if err != nil {
		h.edit(ctx, chatID, cb.Message.MessageID, "This confirmation has expired. Please send the request again.")
		return
	}

	switch action.Kind {
	case "add":
		h.commitAdd(ctx, chatID, cb.Message.MessageID, action)
	case "delete":
		h.commitDelete(ctx, ownerID, chatID, cb.Message.MessageID, action)
	}
}

func (h *WebhookHandler) commitAdd(ctx context.Context, chatID, messageID int64, action *pending.Action) {
	if action.Create == nil {
		return
	}
	sub, err := h.subs.Add(ctx, *action.Create)
	if err != nil {
		h.logger.Error("failed to add subscription", zap.Error(err))
		h.edit(ctx, chatID, messageID, rejectionHint(err))
		return
	}
	h.edit(ctx, chatID, messageID, fmt.Sprintf(
		"✅ Tracking <b>%s</b>: %.2f %s %s.\nNext renewal: <b>%s</b>",
		telegram.EscapeHTML(sub.Name), sub.Amount, sub.Currency,
		periodPhrase(sub.PeriodUnit, sub.PeriodCount),
		sub.NextDueDate.Format("Mon, 02 Jan 2006"),
	))
}

func (h *WebhookHandler) commitDelete(ctx context.Context, ownerID, chatID, messageID int64, action *pending.Action) {
	sub, err := h.subs.DeleteByName(ctx, ownerID, action.DeleteName)
	if err != nil {
		h.edit(ctx, chatID, messageID, rejectionHint(err))
		return
	}
	h.edit(ctx, chatID, messageID, fmt.Sprintf(
		"🗑 Deleted <b>%s</b>. You won't get reminders for it anymore.",
		telegram.EscapeHTML(sub.Name),
	))
}

func (h *WebhookHandler) sendList(ctx context.Context, usr *user.User, chatID int64) {
	subs, err := h.subs.List(ctx, usr.TelegramID)
	if err != nil {
		h.logger.Error("failed to list subscriptions", zap.Error(err))
		h.reply(ctx, chatID, "Something went wrong on our side. Please try again.")
		return
	}
	if len(subs) == 0 {
		h.reply(ctx, chatID, "You have no tracked subscriptions yet. Try <code>/add Netflix 9.99 USD monthly</code>")
		return
	}

	var b strings.Builder
	b.WriteString("<b>Your subscriptions</b>\n\n")
	for _, sub := range subs {
		fmt.Fprintf(&b, "• <b>%s</b>: %.2f %s %s, next due %s\n",
			telegram.EscapeHTML(sub.Name), sub.Amount, sub.Currency,
			periodPhrase(sub.PeriodUnit, sub.PeriodCount),
			sub.NextDueDate.Format("02 Jan 2006"),
		)
	}
	h.reply(ctx, chatID, b.String())
}

func (h *WebhookHandler) sendStats(ctx context.Context, usr *user.User, chatID int64) {
	stats, err := h.subs.Stats(ctx, usr.TelegramID)
	if err != nil {
		h.logger.Error("failed to compute stats", zap.Error(err))
		h.reply(ctx, chatID, "Something went wrong on our side. Please try again.")
		return
	}
	if stats.ActiveCount == 0 {
		h.reply(ctx, chatID, "Nothing to report yet. Add a subscription first.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Spending summary</b>\n\nActive subscriptions: <b>%d</b>\n", stats.ActiveCount)
	b.WriteString("Monthly spend:\n")
	for currency, total := range stats.MonthlyTotals {
		fmt.Fprintf(&b, "  • %.2f %s\n", total, currency)
	}
	if stats.NextDue != nil {
		fmt.Fprintf(&b, "\nNext renewal: <b>%s</b> on %s",
			telegram.EscapeHTML(stats.NextDue.Name),
			stats.NextDue.NextDueDate.Format("02 Jan 2006"),
		)
		if dates, err := h.subs.Upcoming(stats.NextDue, 3); err == nil && len(dates) > 1 {
			b.WriteString("\nThen: ")
			for i, d := range dates[1:] {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(d.Format("02 Jan 2006"))
			}
		}
	}
	h.reply(ctx, chatID, b.String())
}

func (h *WebhookHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.bot.SendMessage(ctx, chatID, text); err != nil {
		h.logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *WebhookHandler) edit(ctx context.Context, chatID, messageID int64, text string) {
	if err := h.bot.EditMessageText(ctx, chatID, messageID, text); err != nil {
		h.logger.Error("failed to edit message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// rejectionHint turns a normalization or service error into a corrective
// reply instead of a generic failure.
func rejectionHint(err error) string {
	switch {
	case errors.Is(err, xerrors.ErrMissingAmount):
		return "I couldn't find the price. Include an amount, e.g. <code>add Netflix 9.99 USD monthly</code>"
	case errors.Is(err, xerrors.ErrUnknownPeriod):
		return "I couldn't work out how often it renews. Say <i>monthly</i>, <i>yearly</i>, <i>weekly</i> or <i>every 2 months</i>."
	case errors.Is(err, xerrors.ErrAmbiguousInput):
		return "I'm not sure what you meant. Try <code>add Netflix 9.99 USD monthly</code>, or /help for more examples."
	case errors.Is(err, xerrors.ErrNLPUnavailable):
		return "I couldn't parse that right now. Please phrase it like <code>add Netflix 9.99 USD monthly</code>."
	case errors.Is(err, xerrors.ErrNotFound):
		return "I don't have a subscription by that name. Send /list to see what's tracked."
	case errors.Is(err, xerrors.ErrValidation):
		return fmt.Sprintf("That didn't look right: %s", telegram.EscapeHTML(xerrors.MessageOrDefault(err, "invalid input")))
	default:
		return "Something went wrong on our side. Please try again."
	}
}

func periodPhrase(unit recurrence.Unit, count int) string {
	noun := map[recurrence.Unit]string{
		recurrence.UnitDaily:   "day",
		recurrence.UnitWeekly:  "week",
		recurrence.UnitMonthly: "month",
		recurrence.UnitYearly:  "year",
	}[unit]
	if noun == "" {
		noun = "period"
	}
	if count == 1 {
		return "every " + noun
	}
	return fmt.Sprintf("every %d %ss", count, noun)
}

const startMessage = `👋 <b>Welcome to SubWatch!</b>

I keep track of your recurring subscriptions and remind you before they renew.

Try:
• <code>/add Netflix 9.99 USD monthly</code>
• <code>/list</code>
• <code>/stats</code>

Or just tell me in plain words, like <i>"I pay 15 dollars for Spotify every month"</i>.`

const helpMessage = `<b>What I can do</b>

• <code>/add &lt;name&gt; &lt;amount&gt; [currency] &lt;period&gt;</code> - track a subscription
• <code>/delete &lt;name&gt;</code> - stop tracking one
• <code>/list</code> - show everything you track
• <code>/stats</code> - monthly spend summary

Periods: <i>daily, weekly, monthly, yearly, every 2 months</i> and so on.
You can also write free text; I'll figure out what you meant and ask you to confirm.`
