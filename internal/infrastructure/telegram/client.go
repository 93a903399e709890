package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIEndpoint = "https://api.telegram.org"
	ParseModeHTML      = "HTML"
)

// Client is a thin Bot API client using form-encoded POSTs.
type Client struct {
	token    string
	endpoint string
	client   *http.Client
}

// NewClient registers the bot token; endpoint defaults to https://api.telegram.org.
func NewClient(token, endpoint string, client *http.Client) *Client {
	if endpoint == "" {
		endpoint = defaultAPIEndpoint
	}
	if client == nil {
		// Long polls hold the connection; per-call deadlines come from the context.
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{
		token:    token,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) call(ctx context.Context, method string, form url.Values, result any) error {
	if c.token == "" {
		return fmt.Errorf("telegram client misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.endpoint, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		// Drop the URL from the error, it carries the token.
		if uerr, ok := err.(*url.Error); ok {
			err = uerr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("telegram %s: status %s: decode: %w", method, resp.Status, err)
	}
	if !body.OK {
		return &APIError{
			Method:      method,
			Code:        body.ErrorCode,
			Description: body.Description,
			RetryAfter:  body.Parameters.RetryAfter,
		}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body.Result, result); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

// SendMessage posts text to chatID; keyboard may be nil.
func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string, keyboard *InlineKeyboardMarkup) (Message, error) {
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)
	if parseMode != "" {
		form.Set("parse_mode", parseMode)
	}
	if err := setKeyboard(form, keyboard); err != nil {
		return Message{}, err
	}

	var msg Message
	if err := c.call(ctx, "sendMessage", form, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// EditMessageText replaces the text of a message the bot sent earlier.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string, keyboard *InlineKeyboardMarkup) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("message_id", strconv.FormatInt(messageID, 10))
	form.Set("text", text)
	if parseMode != "" {
		form.Set("parse_mode", parseMode)
	}
	if err := setKeyboard(form, keyboard); err != nil {
		return err
	}
	return c.call(ctx, "editMessageText", form, nil)
}

// AnswerCallbackQuery stops the button spinner, optionally showing text.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string, alert bool) error {
	form := url.Values{}
	form.Set("callback_query_id", queryID)
	if text != "" {
		form.Set("text", text)
	}
	if alert {
		form.Set("show_alert", "true")
	}
	return c.call(ctx, "answerCallbackQuery", form, nil)
}

// GetUpdates long-polls for updates with id >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	form := url.Values{}
	if offset > 0 {
		form.Set("offset", strconv.FormatInt(offset, 10))
	}
	form.Set("timeout", strconv.Itoa(int(timeout/time.Second)))
	form.Set("allowed_updates", `["message","callback_query"]`)

	var updates []Update
	if err := c.call(ctx, "getUpdates", form, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SetMyCommands replaces the command menu shown by clients.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	raw, err := json.Marshal(commands)
	if err != nil {
		return fmt.Errorf("marshal commands: %w", err)
	}
	form := url.Values{}
	form.Set("commands", string(raw))
	return c.call(ctx, "setMyCommands", form, nil)
}

func setKeyboard(form url.Values, keyboard *InlineKeyboardMarkup) error {
	if keyboard == nil {
		return nil
	}
	raw, err := json.Marshal(keyboard)
	if err != nil {
		return fmt.Errorf("marshal keyboard: %w", err)
	}
	form.Set("reply_markup", string(raw))
	return nil
}
