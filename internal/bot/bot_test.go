package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDesk/internal/infrastructure/storage"
	"NewsDesk/internal/infrastructure/telegram"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/usecase"
)

const (
	admin    int64 = 1
	stranger int64 = 2
)

type sent struct {
	chatID   string
	text     string
	keyboard *telegram.InlineKeyboardMarkup
}

type fakeAPI struct {
	mu       sync.Mutex
	sent     []sent
	edits    []string
	answers  []string
	alerts   []bool
	commands []telegram.BotCommand
	updates  chan []telegram.Update
	failOnce bool
}

func (f *fakeAPI) GetUpdates(ctx context.Context, _ int64, _ time.Duration) ([]telegram.Update, error) {
	f.mu.Lock()
	fail := f.failOnce
	f.failOnce = false
	f.mu.Unlock()
	if fail {
		return nil, errors.New("network down")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case batch := <-f.updates:
		return batch, nil
	}
}

func (f *fakeAPI) SendMessage(_ context.Context, chatID, text, _ string, keyboard *telegram.InlineKeyboardMarkup) (telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chatID: chatID, text: text, keyboard: keyboard})
	return telegram.Message{MessageID: int64(len(f.sent))}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, _, _ int64, text, _ string, _ *telegram.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, _ string, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeAPI) SetMyCommands(_ context.Context, commands []telegram.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = commands
	return nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.text)
	}
	return out
}

type nopDeliverer struct{ sent []string }

func (d *nopDeliverer) Deliver(_ context.Context, text string) error {
	d.sent = append(d.sent, text)
	return nil
}

type stubParser struct {
	report usecase.ParseReport
	err    error
}

func (s stubParser) RunOnce(context.Context) (usecase.ParseReport, error) {
	return s.report, s.err
}

func newStore(t *testing.T) ports.ArticleStore {
	t.Helper()

	db, err := storage.OpenSQL(context.Background(), storage.DialectSQLite, ":memory:")
	require.NoError(t, err)
	_, err = storage.RunMigrations(db, storage.DialectSQLite)
	require.NoError(t, err)

	store := storage.NewSQLStore(db, storage.DialectSQLite)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestBot(t *testing.T, parser ParseTrigger) (*Bot, *fakeAPI, ports.ArticleStore, *nopDeliverer) {
	t.Helper()

	store := newStore(t)
	deliverer := &nopDeliverer{}
	approval := usecase.NewApproval(usecase.ApprovalDeps{
		Store:     store,
		Publisher: usecase.NewPublisher(usecase.PublisherDeps{Store: store, Deliverer: deliverer}),
		IsAdmin:   func(id int64) bool { return id == admin },
	})

	api := &fakeAPI{updates: make(chan []telegram.Update, 4)}
	b := New(Deps{API: api, Approval: approval, Parser: parser, RetryDelay: time.Millisecond})
	return b, api, store, deliverer
}

func seedPending(t *testing.T, store ports.ArticleStore, text string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := store.Create(ctx, "@news", "original <"+text+">", "1")
	require.NoError(t, err)
	_, err = store.SetProcessedContent(ctx, id, text)
	require.NoError(t, err)
	return id
}

func command(userID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: userID, FirstName: "Ann"},
		Chat:      telegram.Chat{ID: userID, Type: "private"},
		Text:      text,
	}}
}

func press(userID int64, data string) telegram.Update {
	return telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "cb",
		From:    telegram.User{ID: userID},
		Data:    data,
		Message: &telegram.Message{MessageID: 9, Chat: telegram.Chat{ID: userID}, Text: "Article ID: 1 <card>"},
	}}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pending", parseCommand("/pending"))
	assert.Equal(t, "run_parser", parseCommand(" /run_parser@NewsDeskBot now"))
	assert.Equal(t, "", parseCommand("hello"))
	assert.Equal(t, "", parseCommand("/"))
}

func TestPendingListsCardsWithButtons(t *testing.T) {
	t.Parallel()

	b, api, store, _ := newTestBot(t, nil)
	id := seedPending(t, store, "<b>Beach</b> news")

	b.Handle(context.Background(), command(admin, "/pending"))

	require.Len(t, api.sent, 2)
	assert.Contains(t, api.sent[0].text, "Found 1")
	card := api.sent[1]
	assert.Contains(t, card.text, "<b>Beach</b> news")
	assert.Contains(t, card.text, "@news")
	require.NotNil(t, card.keyboard)
	assert.Equal(t, "approve_1", card.keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "reject_1", card.keyboard.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "original_1", card.keyboard.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, int64(1), id)
}

func TestNonAdminCommandsAreRefused(t *testing.T) {
	t.Parallel()

	b, api, store, _ := newTestBot(t, stubParser{})
	seedPending(t, store, "text")

	for _, cmd := range []string{"/pending", "/approved", "/status", "/run_parser"} {
		b.Handle(context.Background(), command(stranger, cmd))
	}
	for _, text := range api.texts() {
		assert.Equal(t, forbiddenText, text)
	}
	assert.Len(t, api.sent, 4)
}

func TestApproveButton(t *testing.T) {
	t.Parallel()

	b, api, store, _ := newTestBot(t, nil)
	id := seedPending(t, store, "text")
	ctx := context.Background()

	b.Handle(ctx, press(stranger, "approve_1"))
	article, _, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, article.IsApproved, "non-admin press leaves the article unchanged")
	assert.Equal(t, []bool{true}, api.alerts)

	b.Handle(ctx, press(admin, "approve_1"))
	b.Handle(ctx, press(admin, "approve_1"))

	article, _, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, article.IsApproved)

	require.Len(t, api.edits, 1)
	assert.Equal(t, "Article ID: 1 &lt;card&gt;\n\n✅ <b>Approved</b>", api.edits[0])
	assert.Equal(t, "Already approved.", api.answers[2])
}

func TestPublishButtonDeliversOnce(t *testing.T) {
	t.Parallel()

	b, api, store, deliverer := newTestBot(t, nil)
	id := seedPending(t, store, "ready")
	ctx := context.Background()
	_, err := store.Approve(ctx, id)
	require.NoError(t, err)

	b.Handle(ctx, press(admin, "publish_1"))
	b.Handle(ctx, press(admin, "publish_1"))

	assert.Equal(t, []string{"ready"}, deliverer.sent)
	assert.Equal(t, "Already published.", api.answers[1])

	article, _, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, article.IsPosted)
}

func TestOriginalButtonEscapesSource(t *testing.T) {
	t.Parallel()

	b, api, store, _ := newTestBot(t, nil)
	seedPending(t, store, "x")

	b.Handle(context.Background(), press(admin, "original_1"))

	require.Len(t, api.sent, 1)
	assert.True(t, strings.HasSuffix(api.sent[0].text, "original &lt;x&gt;"), api.sent[0].text)
}

func TestBadCallbackData(t *testing.T) {
	t.Parallel()

	b, api, _, _ := newTestBot(t, nil)
	b.Handle(context.Background(), press(admin, "delete_1"))
	assert.Equal(t, []string{"Unknown action."}, api.answers)
}

func TestStatusAndUnknownText(t *testing.T) {
	t.Parallel()

	b, api, store, _ := newTestBot(t, nil)
	seedPending(t, store, "x")
	ctx := context.Background()

	b.Handle(ctx, command(admin, "/status"))
	b.Handle(ctx, command(admin, "what?"))
	b.Handle(ctx, command(stranger, "what?"))

	texts := api.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "Awaiting approval: 1")
	assert.Contains(t, texts[0], "Total articles: 1")
	assert.Contains(t, texts[1], "/run_parser")
	assert.Equal(t, "Use /help to learn about this bot.", texts[2])
}

func TestRunParserReportsAlreadyRunning(t *testing.T) {
	t.Parallel()

	b, api, _, _ := newTestBot(t, stubParser{err: usecase.ErrParseRunning})
	b.Handle(context.Background(), command(admin, "/run_parser"))
	b.background.Wait()

	texts := api.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "already running")
}

func TestRunPollsAndRetries(t *testing.T) {
	t.Parallel()

	b, api, _, _ := newTestBot(t, stubParser{report: usecase.ParseReport{Created: 2, Rewritten: 2}})
	api.failOnce = true
	api.updates <- []telegram.Update{{UpdateID: 5, Message: command(admin, "/run_parser").Message}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return len(api.texts()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, Commands, api.commands)
	assert.Contains(t, api.texts()[1], "2 new, 2 rewritten")
}
