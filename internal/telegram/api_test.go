package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type fakeBotClient struct {
	me       *models.User
	err      error
	messages []*bot.SendMessageParams
	photos   []*bot.SendPhotoParams
	answers  []*bot.AnswerCallbackQueryParams
}

func (f *fakeBotClient) GetMe(context.Context) (*models.User, error) {
	return f.me, f.err
}

func (f *fakeBotClient) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.messages = append(f.messages, params)
	return &models.Message{}, f.err
}

func (f *fakeBotClient) SendPhoto(_ context.Context, params *bot.SendPhotoParams) (*models.Message, error) {
	f.photos = append(f.photos, params)
	return &models.Message{}, f.err
}

func (f *fakeBotClient) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.answers = append(f.answers, params)
	return f.err == nil, f.err
}

func newTestBotAPI(t *testing.T, client *fakeBotClient) ChatAPI {
	t.Helper()

	orig := newBotClient
	t.Cleanup(func() { newBotClient = orig })

	var gotToken string
	newBotClient = func(token string) (botClient, error) {
		gotToken = token
		return client, nil
	}

	api, err := NewBotAPI("token-123")
	if err != nil {
		t.Fatalf("NewBotAPI returned error: %v", err)
	}
	if gotToken != "token-123" {
		t.Fatalf("expected token to be passed through, got %q", gotToken)
	}
	return api
}

func TestNewBotAPIRequiresToken(t *testing.T) {
	if _, err := NewBotAPI("  "); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestNewBotAPIPropagatesClientError(t *testing.T) {
	orig := newBotClient
	defer func() { newBotClient = orig }()

	expected := errors.New("boom")
	newBotClient = func(string) (botClient, error) {
		return nil, expected
	}

	if _, err := NewBotAPI("token"); !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestBotAPIGetMe(t *testing.T) {
	api := newTestBotAPI(t, &fakeBotClient{me: &models.User{ID: 5, Username: "shopbot", FirstName: "Shop"}})

	me, err := api.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe returned error: %v", err)
	}
	if me.ID != 5 || me.Username != "shopbot" || me.FirstName != "Shop" {
		t.Fatalf("unexpected identity %+v", me)
	}
}

func TestBotAPISendMessageBuildsParams(t *testing.T) {
	client := &fakeBotClient{}
	api := newTestBotAPI(t, client)

	err := api.SendMessage(context.Background(), OutgoingMessage{
		ChatID:   "42",
		Text:     "*hi*",
		Markdown: true,
		Keyboard: [][]Button{
			{{Text: "Beli", Data: "buy_product:p1"}},
			{{Text: "Admin", URL: "https://t.me/wanzo"}},
		},
	})
	if err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}

	if len(client.messages) != 1 {
		t.Fatalf("expected one request, got %d", len(client.messages))
	}
	params := client.messages[0]
	if params.ChatID != "42" || params.Text != "*hi*" {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.ParseMode != models.ParseModeMarkdownV1 {
		t.Fatalf("expected Markdown parse mode, got %q", params.ParseMode)
	}
	markup, ok := params.ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", params.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 keyboard rows, got %d", len(markup.InlineKeyboard))
	}
	if got := markup.InlineKeyboard[0][0].CallbackData; got != "buy_product:p1" {
		t.Fatalf("unexpected callback data %q", got)
	}
	if got := markup.InlineKeyboard[1][0].URL; got != "https://t.me/wanzo" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestBotAPISendPlainMessageHasNoMarkup(t *testing.T) {
	client := &fakeBotClient{}
	api := newTestBotAPI(t, client)

	if err := api.SendMessage(context.Background(), OutgoingMessage{ChatID: "1", Text: "plain"}); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}

	params := client.messages[0]
	if params.ParseMode != "" {
		t.Fatalf("expected no parse mode, got %q", params.ParseMode)
	}
	if params.ReplyMarkup != nil {
		t.Fatalf("expected no reply markup, got %T", params.ReplyMarkup)
	}
}

func TestBotAPISendPhotoUsesFileID(t *testing.T) {
	client := &fakeBotClient{}
	api := newTestBotAPI(t, client)

	err := api.SendPhoto(context.Background(), OutgoingPhoto{
		ChatID:   "999",
		FileID:   "file-abc",
		Caption:  "bukti",
		Markdown: true,
		Keyboard: proofKeyboard("purchase-1"),
	})
	if err != nil {
		t.Fatalf("SendPhoto returned error: %v", err)
	}

	params := client.photos[0]
	photo, ok := params.Photo.(*models.InputFileString)
	if !ok || photo.Data != "file-abc" {
		t.Fatalf("expected photo by file id, got %#v", params.Photo)
	}
	if params.Caption != "bukti" || params.ChatID != "999" {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestBotAPIAnswerCallback(t *testing.T) {
	client := &fakeBotClient{}
	api := newTestBotAPI(t, client)

	if err := api.AnswerCallback(context.Background(), "cb-1", "ok", true); err != nil {
		t.Fatalf("AnswerCallback returned error: %v", err)
	}

	params := client.answers[0]
	if params.CallbackQueryID != "cb-1" || params.Text != "ok" || !params.ShowAlert {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestBotAPIWrapsErrors(t *testing.T) {
	cause := errors.New("Forbidden: bot was blocked by the user")
	api := newTestBotAPI(t, &fakeBotClient{err: cause})

	err := api.SendMessage(context.Background(), OutgoingMessage{ChatID: "1", Text: "x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Method != "sendMessage" {
		t.Fatalf("expected method sendMessage, got %q", apiErr.Method)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected APIError to unwrap to the cause")
	}
	if apiErr.Error() != "telegram sendMessage: Forbidden: bot was blocked by the user" {
		t.Fatalf("unexpected message %q", apiErr.Error())
	}

	if _, err := api.GetMe(context.Background()); !errors.As(err, &apiErr) || apiErr.Method != "getMe" {
		t.Fatalf("expected getMe APIError, got %v", err)
	}
}
