package telegram

import (
	"strings"

	"tg_shop_bot/internal/logging"
)

// authorized reports whether the caller may run privileged commands and
// actions: an admin role on the stored user, or a chat (or user) id equal to
// the configured admin chat id.
func (d *Dispatcher) authorized(req *request) bool {
	if req.user.IsAdmin() {
		return true
	}

	adminChat := strings.TrimSpace(req.session.cfg.AdminChatID)
	if adminChat == "" {
		return false
	}
	return adminChat == chatRef(req.update.Chat()) || adminChat == chatRef(req.update.From().UserID)
}

func (d *Dispatcher) deny(req *request, name string) {
	req.logger.WithFields(logging.Fields{
		"event":   "command_denied",
		"command": name,
	}).Warn("privileged request denied")
	d.reply(req, msgPermissionDenied)
}

func (d *Dispatcher) send(req *request, msg OutgoingMessage) error {
	if err := req.session.api.SendMessage(req.ctx, msg); err != nil {
		req.logger.WithFields(logging.Fields{
			"event":  "send_failed",
			"target": msg.ChatID,
		}).WithError(err).Warn("failed to send message")
		return err
	}
	return nil
}

func (d *Dispatcher) reply(req *request, text string) {
	_ = d.send(req, OutgoingMessage{ChatID: chatRef(req.update.Chat()), Text: text})
}

func (d *Dispatcher) replyMarkdown(req *request, text string, keyboard [][]Button) {
	_ = d.send(req, OutgoingMessage{
		ChatID:   chatRef(req.update.Chat()),
		Text:     text,
		Markdown: true,
		Keyboard: keyboard,
	})
}

func (d *Dispatcher) sendTo(req *request, chatID int64, text string, markdown bool) error {
	return d.send(req, OutgoingMessage{ChatID: chatRef(chatID), Text: text, Markdown: markdown})
}

// notifyAdmin sends to the configured admin chat.
func (d *Dispatcher) notifyAdmin(req *request, text string, keyboard [][]Button) error {
	return d.send(req, OutgoingMessage{
		ChatID:   req.session.cfg.AdminChatID,
		Text:     text,
		Markdown: true,
		Keyboard: keyboard,
	})
}
