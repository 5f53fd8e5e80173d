// Package telegram hosts the Telegram client, routing, and handlers.
package telegram

import (
	"context"
	"errors"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_shop_bot/internal/logging"
)

type botRunner interface {
	Start(ctx context.Context)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botRunner, error) {
		return bot.New(token, options...)
	}
)

type tokenSource interface {
	ActiveToken() (string, <-chan struct{})
}

type updateSink interface {
	Enqueue(ctx context.Context, u Update) error
}

// Poller receives updates by long polling with the active token and hands
// them to the dispatcher. It restarts whenever the token changes.
type Poller struct {
	source tokenSource
	sink   updateSink
	logger *logrus.Entry
}

// NewPoller constructs a Poller.
func NewPoller(source tokenSource, sink updateSink, logger *logrus.Entry) (*Poller, error) {
	if source == nil || sink == nil {
		return nil, errors.New("token source and update sink are required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &Poller{
		source: source,
		sink:   sink,
		logger: logger,
	}, nil
}

// Run polls until ctx is canceled. While no usable token is configured it
// waits for the next session change.
func (p *Poller) Run(ctx context.Context) error {
	for {
		token, changed := p.source.ActiveToken()
		if token == "" {
			p.logger.WithField("event", "telegram_idle").Info("no active bot session, waiting for configuration")
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
				continue
			}
		}

		if !p.poll(ctx, token, changed) {
			return nil
		}
	}
}

// poll runs one polling session and reports whether Run should continue.
func (p *Poller) poll(ctx context.Context, token string, changed <-chan struct{}) bool {
	tgBot, err := createBot(token,
		bot.WithSkipGetMe(),
		bot.WithNotAsyncHandlers(),
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(p.defaultHandler()),
		bot.WithErrorsHandler(errorHandler(p.logger)),
	)
	if err != nil {
		p.logger.WithField("event", "telegram_init_failed").WithError(err).Error("init telegram bot client")
		select {
		case <-ctx.Done():
			return false
		case <-changed:
			return true
		}
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.logger.WithFields(logging.Fields{
			"event":           "telegram_listen",
			"allowed_updates": defaultAllowedUpdates,
		}).Info("starting telegram long polling")

		tgBot.Start(sessionCtx)

		p.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
	}()
	defer func() {
		cancel()
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-done:
			return ctx.Err() == nil
		case <-changed:
			next, nextChanged := p.source.ActiveToken()
			if next == token {
				changed = nextChanged
				continue
			}
			p.logger.WithField("event", "telegram_restart").Info("bot session changed, restarting polling")
			return true
		}
	}
}

func (p *Poller) defaultHandler() bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil {
			return
		}

		meta := extractUpdateMeta(update)
		fields := logging.Fields{
			"event":       "telegram_update",
			"update_type": meta.updateType,
		}
		if meta.userID != 0 {
			fields["user_id"] = meta.userID
		}
		if meta.chatID != 0 {
			fields["chat_id"] = meta.chatID
		}

		u, ok := Classify(update)
		if !ok {
			p.logger.WithFields(fields).Debug("ignoring unsupported telegram update")
			return
		}

		p.logger.WithFields(fields).Debug("telegram update received")
		if err := p.sink.Enqueue(ctx, u); err != nil {
			p.logger.WithFields(fields).WithError(err).Warn("failed to enqueue telegram update")
		}
	}
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			updateType: "callback_query",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}
