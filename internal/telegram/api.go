package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// BotIdentity is the bot's own account as reported by getMe.
type BotIdentity struct {
	ID        int64
	Username  string
	FirstName string
}

// Button is one inline keyboard button. Exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// OutgoingMessage is a sendMessage request. ChatID is the platform chat id in
// text form so the stored admin chat id can be used as-is.
type OutgoingMessage struct {
	ChatID   string
	Text     string
	Markdown bool
	Keyboard [][]Button
}

// OutgoingPhoto re-sends an already uploaded photo by file id.
type OutgoingPhoto struct {
	ChatID   string
	FileID   string
	Caption  string
	Markdown bool
	Keyboard [][]Button
}

// ChatAPI is the subset of the chat platform the dispatcher calls.
type ChatAPI interface {
	GetMe(ctx context.Context) (BotIdentity, error)
	SendMessage(ctx context.Context, msg OutgoingMessage) error
	SendPhoto(ctx context.Context, photo OutgoingPhoto) error
	AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error
}

// APIFactory builds a ChatAPI bound to a bot token.
type APIFactory func(token string) (ChatAPI, error)

// APIError is returned when the platform rejects a request.
type APIError struct {
	Method      string
	Description string
	Err         error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %s", e.Method, e.Description)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

type botClient interface {
	GetMe(ctx context.Context) (*models.User, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

var newBotClient = func(token string) (botClient, error) {
	return bot.New(token, bot.WithSkipGetMe())
}

// NewBotAPI is the default APIFactory backed by go-telegram/bot.
func NewBotAPI(token string) (ChatAPI, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is required")
	}

	client, err := newBotClient(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram api client: %w", err)
	}
	return &botAPI{client: client}, nil
}

type botAPI struct {
	client botClient
}

func (a *botAPI) GetMe(ctx context.Context) (BotIdentity, error) {
	me, err := a.client.GetMe(ctx)
	if err != nil {
		return BotIdentity{}, apiError("getMe", err)
	}
	if me == nil {
		return BotIdentity{}, &APIError{Method: "getMe", Description: "empty result"}
	}
	return BotIdentity{ID: me.ID, Username: me.Username, FirstName: me.FirstName}, nil
}

func (a *botAPI) SendMessage(ctx context.Context, msg OutgoingMessage) error {
	params := &bot.SendMessageParams{
		ChatID: msg.ChatID,
		Text:   msg.Text,
	}
	if msg.Markdown {
		params.ParseMode = models.ParseModeMarkdownV1
	}
	if len(msg.Keyboard) > 0 {
		params.ReplyMarkup = inlineKeyboard(msg.Keyboard)
	}

	if _, err := a.client.SendMessage(ctx, params); err != nil {
		return apiError("sendMessage", err)
	}
	return nil
}

func (a *botAPI) SendPhoto(ctx context.Context, photo OutgoingPhoto) error {
	params := &bot.SendPhotoParams{
		ChatID:  photo.ChatID,
		Photo:   &models.InputFileString{Data: photo.FileID},
		Caption: photo.Caption,
	}
	if photo.Markdown {
		params.ParseMode = models.ParseModeMarkdownV1
	}
	if len(photo.Keyboard) > 0 {
		params.ReplyMarkup = inlineKeyboard(photo.Keyboard)
	}

	if _, err := a.client.SendPhoto(ctx, params); err != nil {
		return apiError("sendPhoto", err)
	}
	return nil
}

func (a *botAPI) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	_, err := a.client.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       showAlert,
	})
	if err != nil {
		return apiError("answerCallbackQuery", err)
	}
	return nil
}

func inlineKeyboard(rows [][]Button) *models.InlineKeyboardMarkup {
	markup := &models.InlineKeyboardMarkup{
		InlineKeyboard: make([][]models.InlineKeyboardButton, 0, len(rows)),
	}
	for _, row := range rows {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         b.Text,
				CallbackData: b.Data,
				URL:          b.URL,
			})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}

func apiError(method string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return &APIError{Method: method, Description: err.Error(), Err: err}
}

func chatRef(id int64) string {
	return strconv.FormatInt(id, 10)
}
