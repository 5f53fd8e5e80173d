package telegram

import (
	"errors"
	"strings"
	"unicode"

	"tg_shop_bot/internal/domain"
	"tg_shop_bot/internal/logging"
)

const msgConfessNotFound = "Confess tidak ditemukan."

func handleConfess(d *Dispatcher, req *request, args string) {
	message := strings.TrimSpace(args)
	if message == "" {
		d.replyMarkdown(req, msgConfessEmpty, nil)
		return
	}

	d.submitConfess(req, domain.Confess{
		Message:     message,
		IsAnonymous: true,
	}, msgConfessSent)
}

func handleMenfess(d *Dispatcher, req *request, args string) {
	target, message, ok := splitMenfess(args)
	if !ok {
		d.replyMarkdown(req, msgMenfessUsage, nil)
		return
	}

	// The sender is kept so the outcome can be reported back; it is never
	// shown to the admin or the recipient.
	d.submitConfess(req, domain.Confess{
		Message:        message,
		IsAnonymous:    true,
		SenderChatID:   req.update.Chat(),
		SenderUsername: req.update.From().Username,
		TargetUsername: target,
	}, msgMenfessSent)
}

// splitMenfess parses "@username message".
func splitMenfess(args string) (string, string, bool) {
	args = strings.TrimSpace(args)
	i := strings.IndexFunc(args, unicode.IsSpace)
	if i < 0 {
		return "", "", false
	}

	target := strings.TrimPrefix(args[:i], "@")
	message := strings.TrimSpace(args[i:])
	if target == "" || message == "" {
		return "", "", false
	}
	return target, message, true
}

func (d *Dispatcher) submitConfess(req *request, c domain.Confess, ack string) {
	saved, err := d.store.CreateConfess(req.ctx, c)
	if err != nil {
		req.logger.WithField("event", "confess_create_failed").WithError(err).Error("failed to save confess")
		d.reply(req, msgTemporaryFailure)
		return
	}

	if err := d.notifyAdmin(req, confessNotice(saved), confessKeyboard(saved.ID)); err != nil {
		d.reply(req, msgTemporaryFailure)
		return
	}

	req.logger.WithFields(logging.Fields{
		"event":      "confess_submitted",
		"confess_id": saved.ID,
		"menfess":    saved.IsMenfess(),
	}).Info("confess sent for review")

	d.reply(req, ack)
}

// resolveConfess records the admin decision once and relays an approved
// menfess to its recipient when the recipient has used the bot before.
func (d *Dispatcher) resolveConfess(req *request, id, status string) {
	responder := req.update.From().Username
	if responder == "" {
		responder = chatRef(req.update.From().UserID)
	}

	c, changed, err := d.store.ResolveConfess(req.ctx, id, status, responder)
	if errors.Is(err, domain.ErrNotFound) {
		d.reply(req, msgConfessNotFound)
		return
	}
	if err != nil {
		req.logger.WithField("event", "confess_resolve_failed").WithError(err).Error("failed to resolve confess")
		d.reply(req, msgTemporaryFailure)
		return
	}
	if !changed {
		d.reply(req, msgConfessProcessed)
		return
	}

	d.replyMarkdown(req, confessResolvedText(c.ID, c.Status), nil)

	if !c.IsMenfess() {
		return
	}

	delivered := false
	if c.Status == domain.StatusApproved {
		delivered = d.relayMenfess(req, c)
	}
	if c.SenderChatID != 0 {
		_ = d.sendTo(req, c.SenderChatID, menfessOutcomeText(c, delivered), false)
	}
}

func (d *Dispatcher) relayMenfess(req *request, c domain.Confess) bool {
	recipient, err := d.store.FindUserByUsername(req.ctx, c.TargetUsername)
	if err != nil {
		req.logger.WithFields(logging.Fields{
			"event":      "menfess_recipient_unknown",
			"confess_id": c.ID,
		}).WithError(err).Info("menfess recipient has not started the bot")
		return false
	}

	chatID := recipient.ChatID
	if chatID == 0 {
		chatID = recipient.UserID
	}
	if err := d.sendTo(req, chatID, menfessRelayText(c), true); err != nil {
		return false
	}
	return true
}
