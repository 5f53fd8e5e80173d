package telegram

import (
	"strings"

	"golang.org/x/time/rate"

	"tg_shop_bot/internal/domain"
	"tg_shop_bot/internal/logging"
)

func handleBoard(d *Dispatcher, req *request, args string) {
	body := strings.TrimSpace(args)
	if body == "" {
		d.replyMarkdown(req, msgBroadcastEmpty, nil)
		return
	}

	users, err := d.store.ListActiveUsers(req.ctx)
	if err != nil {
		req.logger.WithField("event", "broadcast_users_failed").WithError(err).Error("failed to list broadcast recipients")
		d.reply(req, msgTemporaryFailure)
		return
	}

	d.reply(req, broadcastStartText(len(users)))
	sent := d.broadcast(req, users, broadcastBody(req.session.cfg, body))
	d.reply(req, broadcastDoneText(sent, len(users)))
}

// broadcast sends text to every user in order, pacing sends by the configured
// interval. Failed recipients are logged and skipped.
func (d *Dispatcher) broadcast(req *request, users []domain.User, text string) int {
	limiter := rate.NewLimiter(rate.Every(d.broadcastInterval), 1)

	sent, failed := 0, 0
	for _, u := range users {
		if err := limiter.Wait(req.ctx); err != nil {
			req.logger.WithField("event", "broadcast_interrupted").WithError(err).Warn("broadcast pacing interrupted")
			break
		}

		chatID := u.ChatID
		if chatID == 0 {
			chatID = u.UserID
		}

		err := req.session.api.SendMessage(req.ctx, OutgoingMessage{
			ChatID:   chatRef(chatID),
			Text:     text,
			Markdown: true,
		})
		if err != nil {
			failed++
			req.logger.WithFields(logging.Fields{
				"event":     "broadcast_failed",
				"recipient": chatID,
			}).WithError(err).Warn("broadcast delivery failed")
			continue
		}
		sent++
	}

	req.logger.WithFields(logging.Fields{
		"event":  "broadcast_complete",
		"sent":   sent,
		"failed": failed,
		"total":  len(users),
	}).Info("broadcast finished")

	return sent
}
