package bot

import (
	"html"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/infrastructure/telegram"
)

const forbiddenText = "⛔️ You do not have permission to run this command."

const commandList = "/pending - articles awaiting approval\n" +
	"/approved - approved articles awaiting publication\n" +
	"/run_parser - run the parser now\n" +
	"/status - bot status\n" +
	"/help - help"

func startText(firstName string, admin bool) string {
	text := "👋 Hi, " + html.EscapeString(firstName) + "!\n\n" +
		"I collect local news, rewrite it and publish it after an editor approves it."
	if admin {
		return text + "\n\n🔑 You are an administrator. Commands:\n" + commandList
	}
	return text + "\n\nUse /help for more information."
}

func helpText(admin bool) string {
	text := "📚 <b>Help</b>\n\nThis bot collects news from source channels.\n"
	if admin {
		text += "\n<b>Administrator commands:</b>\n" + commandList + "\n"
	}
	return text + "\nNews is rewritten by an AI model and posted to the group after an administrator approves it."
}

func button(text string, kind domain.ActionKind, id int64) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{
		Text:         text,
		CallbackData: domain.Action{Kind: kind, ArticleID: id}.String(),
	}
}

func pendingKeyboard(id int64) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{button("✅ Approve", domain.ActionApprove, id), button("❌ Reject", domain.ActionReject, id)},
		{button("🔍 Original", domain.ActionOriginal, id)},
	}}
}

func approvedKeyboard(id int64) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{button("📢 Publish now", domain.ActionPublish, id), button("❌ Cancel", domain.ActionCancel, id)},
	}}
}
