package telegram

import (
	"strings"

	"tg_shop_bot/internal/domain"
	"tg_shop_bot/internal/logging"
)

type action string

const (
	actionShowMenu     action = "show_menu"
	actionConfessInfo  action = "confess_info"
	actionMenfessInfo  action = "menfess_info"
	actionProductsList action = "products_list"
	actionAccConfess   action = "acc_confess"
	actionRejConfess   action = "rej_confess"
	actionBuyProduct   action = "buy_product"
	actionAccPurchase  action = "acc_purchase"
	actionRejPurchase  action = "rej_purchase"
)

type actionHandler func(d *Dispatcher, req *request, q CallbackQuery, payload string)

type actionSpec struct {
	handler    actionHandler
	privileged bool
}

func actionTable() map[action]actionSpec {
	return map[action]actionSpec{
		actionShowMenu: {handler: func(d *Dispatcher, req *request, _ CallbackQuery, _ string) {
			handleMenu(d, req, "")
		}},
		actionConfessInfo: {handler: func(d *Dispatcher, req *request, _ CallbackQuery, _ string) {
			d.replyMarkdown(req, msgConfessInfo, nil)
		}},
		actionMenfessInfo: {handler: func(d *Dispatcher, req *request, _ CallbackQuery, _ string) {
			d.replyMarkdown(req, msgMenfessInfo, nil)
		}},
		actionProductsList: {handler: handleProductsList},
		actionAccConfess: {handler: func(d *Dispatcher, req *request, _ CallbackQuery, id string) {
			d.resolveConfess(req, id, domain.StatusApproved)
		}, privileged: true},
		actionRejConfess: {handler: func(d *Dispatcher, req *request, _ CallbackQuery, id string) {
			d.resolveConfess(req, id, domain.StatusRejected)
		}, privileged: true},
		actionBuyProduct: {handler: func(d *Dispatcher, req *request, q CallbackQuery, id string) {
			// The offer goes to the buyer's private chat even when the button
			// was tapped elsewhere.
			d.startPurchase(req, q.Sender.UserID, id)
		}},
		actionAccPurchase: {handler: func(d *Dispatcher, req *request, _ CallbackQuery, id string) {
			d.resolvePurchase(req, id, domain.StatusApproved)
		}, privileged: true},
		actionRejPurchase: {handler: func(d *Dispatcher, req *request, _ CallbackQuery, id string) {
			d.resolvePurchase(req, id, domain.StatusRejected)
		}, privileged: true},
	}
}

// parseCallback splits "action:payload". The payload ends at the next colon.
func parseCallback(data string) (action, string) {
	name, payload, _ := strings.Cut(strings.TrimSpace(data), ":")
	if i := strings.IndexByte(payload, ':'); i >= 0 {
		payload = payload[:i]
	}
	return action(name), strings.TrimSpace(payload)
}

func callbackData(a action, payload string) string {
	return string(a) + ":" + payload
}

func (d *Dispatcher) routeCallback(req *request, q CallbackQuery) {
	if err := req.session.api.AnswerCallback(req.ctx, q.ID, "", false); err != nil {
		req.logger.WithField("event", "callback_answer_failed").WithError(err).Warn("failed to answer callback query")
	}

	name, payload := parseCallback(q.Data)
	entry, ok := d.actions[name]
	if !ok {
		req.logger.WithFields(logging.Fields{
			"event":  "callback_ignored",
			"action": string(name),
		}).Debug("ignoring unrecognized callback action")
		return
	}

	if entry.privileged && !d.authorized(req) {
		d.deny(req, string(name))
		return
	}

	req.logger.WithFields(logging.Fields{
		"event":  "callback_received",
		"action": string(name),
	}).Info("handling callback")

	entry.handler(d, req, q, payload)
}

func handleProductsList(d *Dispatcher, req *request, _ CallbackQuery, _ string) {
	products, err := d.store.ListProducts(req.ctx, productPage)
	if err != nil {
		req.logger.WithField("event", "products_list_failed").WithError(err).Error("failed to list products")
		d.reply(req, msgTemporaryFailure)
		return
	}
	if len(products) == 0 {
		d.reply(req, msgNoProducts)
		return
	}
	d.replyMarkdown(req, productsText(products), productsKeyboard(products))
}
