package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/infrastructure/telegram"
	"NewsDesk/internal/logging"
	"NewsDesk/internal/usecase"
)

const (
	defaultPollTimeout = 30 * time.Second
	defaultRetryDelay  = 5 * time.Second
	maxOriginalRunes   = 3500
)

// API is the subset of the Bot API the router needs.
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID, text, parseMode string, keyboard *telegram.InlineKeyboardMarkup) (telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, queryID, text string, alert bool) error
	SetMyCommands(ctx context.Context, commands []telegram.BotCommand) error
}

// ParseTrigger starts a manual parsing run.
type ParseTrigger interface {
	RunOnce(ctx context.Context) (usecase.ParseReport, error)
}

// Deps wires the router.
type Deps struct {
	API         API
	Approval    *usecase.Approval
	Parser      ParseTrigger
	Logger      *slog.Logger
	PollTimeout time.Duration
	RetryDelay  time.Duration
}

// Bot long-polls updates and routes operator commands and button presses.
type Bot struct {
	api         API
	approval    *usecase.Approval
	parser      ParseTrigger
	log         *slog.Logger
	policy      *bluemonday.Policy
	pollTimeout time.Duration
	retryDelay  time.Duration
	background  sync.WaitGroup
}

// New constructs the router.
func New(deps Deps) *Bot {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.PollTimeout <= 0 {
		deps.PollTimeout = defaultPollTimeout
	}
	if deps.RetryDelay <= 0 {
		deps.RetryDelay = defaultRetryDelay
	}
	return &Bot{
		api:         deps.API,
		approval:    deps.Approval,
		parser:      deps.Parser,
		log:         deps.Logger.With("component", "bot"),
		policy:      telegram.HTMLPolicy(),
		pollTimeout: deps.PollTimeout,
		retryDelay:  deps.RetryDelay,
	}
}

// Commands is the menu registered with setMyCommands.
var Commands = []telegram.BotCommand{
	{Command: "start", Description: "Start the bot"},
	{Command: "help", Description: "Help"},
	{Command: "pending", Description: "Articles awaiting approval"},
	{Command: "approved", Description: "Approved articles awaiting publication"},
	{Command: "run_parser", Description: "Run the parser now"},
	{Command: "status", Description: "Bot status"},
}

// Run registers the command menu and polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	defer b.background.Wait()

	if err := b.api.SetMyCommands(ctx, Commands); err != nil {
		b.log.Warn("set bot commands", "error", err)
	} else {
		b.log.Info("bot commands registered")
	}

	b.log.Info("bot polling started")
	var offset int64
	for {
		updates, err := b.api.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				b.log.Info("bot polling stopped")
				return nil
			}
			b.log.Error("get updates", "error", err, "retry_in", b.retryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.retryDelay):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.Handle(ctx, update)
		}
	}
}

// Handle routes one update. Failures are logged, never returned.
func (b *Bot) Handle(ctx context.Context, update telegram.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	user := msg.From
	command := parseCommand(msg.Text)

	switch command {
	case "start":
		b.reply(ctx, msg, startText(user.FirstName, b.approval.IsAdmin(user.ID)), nil)
	case "help":
		b.reply(ctx, msg, helpText(b.approval.IsAdmin(user.ID)), nil)
	case "pending":
		b.listPending(ctx, msg)
	case "approved":
		b.listApproved(ctx, msg)
	case "status":
		b.status(ctx, msg)
	case "run_parser":
		b.runParser(ctx, msg)
	default:
		if b.approval.IsAdmin(user.ID) && strings.TrimSpace(msg.Text) != "" {
			b.reply(ctx, msg, "I did not recognise that command. Available commands:\n"+commandList, nil)
			return
		}
		b.reply(ctx, msg, "Use /help to learn about this bot.", nil)
	}
}

func (b *Bot) listPending(ctx context.Context, msg *telegram.Message) {
	articles, err := b.approval.ListPending(ctx, msg.From.ID)
	if b.refused(ctx, msg, err) {
		return
	}
	if len(articles) == 0 {
		b.reply(ctx, msg, "🔍 No articles awaiting approval.", nil)
		return
	}

	b.reply(ctx, msg, fmt.Sprintf("📋 Found %d articles awaiting approval:", len(articles)), nil)
	for _, article := range articles {
		text := fmt.Sprintf("<b>Article ID:</b> %d\n<b>Source:</b> %s\n\n%s\n\n<i>Decide on this article</i>",
			article.ID, html.EscapeString(article.Source), b.policy.Sanitize(article.Text()))
		b.reply(ctx, msg, text, pendingKeyboard(article.ID))
	}
}

func (b *Bot) listApproved(ctx context.Context, msg *telegram.Message) {
	articles, err := b.approval.ListApproved(ctx, msg.From.ID)
	if b.refused(ctx, msg, err) {
		return
	}
	if len(articles) == 0 {
		b.reply(ctx, msg, "🔍 No approved articles awaiting publication.", nil)
		return
	}

	b.reply(ctx, msg, fmt.Sprintf("📋 Found %d approved articles awaiting publication:", len(articles)), nil)
	for _, article := range articles {
		text := fmt.Sprintf("<b>Article ID:</b> %d\n\n%s\n\n<i>Approved and waiting for publication</i>",
			article.ID, b.policy.Sanitize(article.Text()))
		b.reply(ctx, msg, text, approvedKeyboard(article.ID))
	}
}

func (b *Bot) status(ctx context.Context, msg *telegram.Message) {
	stats, err := b.approval.Status(ctx, msg.From.ID)
	if b.refused(ctx, msg, err) {
		return
	}

	text := fmt.Sprintf("📊 <b>Bot status</b>\n\n"+
		"• Awaiting approval: %d\n"+
		"• Approved, not yet published: %d\n"+
		"• Published: %d\n"+
		"• Total articles: %d",
		stats.Pending, stats.ApprovedUnposted, stats.Posted, stats.Total)
	b.reply(ctx, msg, text, nil)
}

func (b *Bot) runParser(ctx context.Context, msg *telegram.Message) {
	if !b.approval.IsAdmin(msg.From.ID) {
		b.log.Info("run_parser refused for non-admin", "user_id", msg.From.ID)
		b.reply(ctx, msg, forbiddenText, nil)
		return
	}
	if b.parser == nil {
		b.reply(ctx, msg, "Parser is not configured.", nil)
		return
	}

	b.reply(ctx, msg, "🔄 Parsing started. This can take a while...", nil)

	b.background.Add(1)
	go func() {
		defer b.background.Done()

		report, err := b.parser.RunOnce(ctx)
		switch {
		case errors.Is(err, usecase.ErrParseRunning):
			b.reply(ctx, msg, "⏳ Parsing is already running.", nil)
		case err != nil:
			b.log.Error("manual parse failed", "error", err)
			b.reply(ctx, msg, "❌ Parsing failed, see logs.", nil)
		default:
			b.reply(ctx, msg, fmt.Sprintf("✅ Parsing finished: %d new, %d rewritten. Use /pending to review them.",
				report.Created, report.Rewritten), nil)
		}
	}()
}

func (b *Bot) handleCallback(ctx context.Context, query *telegram.CallbackQuery) {
	action, err := domain.ParseAction(query.Data)
	if err != nil {
		b.log.Warn("bad callback data", "data", query.Data, "error", err)
		b.answer(ctx, query, "Unknown action.", true)
		return
	}

	res, err := b.approval.Execute(ctx, query.From.ID, action)
	if err != nil {
		b.log.Error("callback action failed", "action", action.String(), "error", err)
		b.answer(ctx, query, "❌ Something went wrong, try again later.", true)
		return
	}

	switch res.Outcome {
	case usecase.OutcomeForbidden:
		b.answer(ctx, query, "⛔️ You are not allowed to do this.", true)
	case usecase.OutcomeNotFound:
		b.answer(ctx, query, "❌ Article not found.", true)
	case usecase.OutcomeApproved:
		b.markCard(ctx, query, "✅ <b>Approved</b>")
		b.answer(ctx, query, "✅ Approved, it will be published on schedule.", false)
	case usecase.OutcomeAlreadyApproved:
		b.answer(ctx, query, "Already approved.", false)
	case usecase.OutcomeNotRewritten:
		b.answer(ctx, query, "This article has no rewritten text yet.", true)
	case usecase.OutcomeRejected:
		b.markCard(ctx, query, "❌ <b>Rejected</b>")
		b.answer(ctx, query, "❌ Rejected.", false)
	case usecase.OutcomePublished:
		b.markCard(ctx, query, "📢 <b>Published</b>")
		b.answer(ctx, query, "📢 Published.", false)
	case usecase.OutcomeAlreadyPosted:
		b.answer(ctx, query, "Already published.", false)
	case usecase.OutcomeNotApproved:
		b.answer(ctx, query, "Approve the article before publishing it.", true)
	case usecase.OutcomeCancelled:
		b.markCard(ctx, query, "🛑 <b>Publication cancelled</b>")
		b.answer(ctx, query, "🛑 Publication cancelled.", false)
	case usecase.OutcomeOriginal:
		if query.Message != nil {
			text := fmt.Sprintf("<b>Original text of article %d:</b>\n\n%s",
				res.Article.ID, html.EscapeString(clip(res.Article.OriginalContent, maxOriginalRunes)))
			if _, err := b.api.SendMessage(ctx, chatID(query.Message.Chat.ID), text, telegram.ParseModeHTML, nil); err != nil {
				b.log.Error("send original text", "article_id", res.Article.ID, "error", err)
			}
		}
		b.answer(ctx, query, "", false)
	}
}

// markCard appends a verdict line to the message that carried the buttons and drops the keyboard.
func (b *Bot) markCard(ctx context.Context, query *telegram.CallbackQuery, verdict string) {
	if query.Message == nil {
		return
	}
	text := html.EscapeString(query.Message.Text) + "\n\n" + verdict
	if err := b.api.EditMessageText(ctx, query.Message.Chat.ID, query.Message.MessageID, text, telegram.ParseModeHTML, nil); err != nil {
		b.log.Warn("edit card", "message_id", query.Message.MessageID, "error", err)
	}
}

func (b *Bot) refused(ctx context.Context, msg *telegram.Message, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, usecase.ErrForbidden):
		b.log.Info("command refused for non-admin", "user_id", msg.From.ID, "text", msg.Text)
		b.reply(ctx, msg, forbiddenText, nil)
	default:
		b.log.Error("command failed", "text", msg.Text, "error", err)
		b.reply(ctx, msg, "❌ Something went wrong, try again later.", nil)
	}
	return true
}

func (b *Bot) reply(ctx context.Context, msg *telegram.Message, text string, keyboard *telegram.InlineKeyboardMarkup) {
	if _, err := b.api.SendMessage(ctx, chatID(msg.Chat.ID), text, telegram.ParseModeHTML, keyboard); err != nil {
		b.log.Error("send reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (b *Bot) answer(ctx context.Context, query *telegram.CallbackQuery, text string, alert bool) {
	if err := b.api.AnswerCallbackQuery(ctx, query.ID, text, alert); err != nil {
		b.log.Warn("answer callback", "error", err)
	}
}

// parseCommand returns the command name of "/cmd@bot args", or "" for plain text.
func parseCommand(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(name[0], "@")
	return strings.ToLower(cmd)
}

func chatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func clip(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
