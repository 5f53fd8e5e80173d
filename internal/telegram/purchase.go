package telegram

import (
	"errors"
	"regexp"
	"strings"

	"tg_shop_bot/internal/domain"
	"tg_shop_bot/internal/logging"
)

// The platform strips Markdown markers from replied-to text, so both the raw
// and the rendered offer must match.
var (
	offerTitlePattern = regexp.MustCompile(`^Anda akan membeli \*?(.+?)\*? seharga`)
	offerIDPattern    = regexp.MustCompile("ID Pesanan: `?([A-Za-z0-9_-]+)`?")
	markdownUnescaper = strings.NewReplacer("\\_", "_", "\\*", "*", "\\`", "`", "\\[", "[")
)

// startPurchase records a pending purchase and sends the offer the buyer must
// reply to with a payment screenshot.
func (d *Dispatcher) startPurchase(req *request, buyerChatID int64, productID string) {
	productID = strings.TrimSpace(productID)

	product, err := d.store.FindProductByID(req.ctx, productID)
	if err == nil && product.Status != "" && product.Status != domain.ProductStatusAvailable {
		err = domain.ErrNotFound
	}
	if errors.Is(err, domain.ErrNotFound) {
		_ = d.sendTo(req, buyerChatID, msgProductNotFound, false)
		return
	}
	if err != nil {
		req.logger.WithFields(logging.Fields{
			"event":      "product_lookup_failed",
			"product_id": productID,
		}).WithError(err).Error("failed to load product")
		_ = d.sendTo(req, buyerChatID, msgTemporaryFailure, false)
		return
	}

	purchase, err := d.store.CreatePurchase(req.ctx, domain.Purchase{
		BuyerChatID:   buyerChatID,
		BuyerUsername: req.update.From().Username,
		ProductID:     product.ID,
		ProductTitle:  product.Title,
		Amount:        product.Price,
	})
	if err != nil {
		req.logger.WithFields(logging.Fields{
			"event":      "purchase_create_failed",
			"product_id": product.ID,
		}).WithError(err).Error("failed to record purchase")
		_ = d.sendTo(req, buyerChatID, msgTemporaryFailure, false)
		return
	}

	req.logger.WithFields(logging.Fields{
		"event":       "purchase_initiated",
		"purchase_id": purchase.ID,
		"product_id":  product.ID,
	}).Info("purchase offer sent")

	_ = d.sendTo(req, buyerChatID, offerText(product, purchase.ID), true)
}

// submitProof handles a photo replying to an offer. Replies to anything else
// are ignored.
func (d *Dispatcher) submitProof(req *request, p PhotoReply) {
	title, ok := offerTitle(p.RepliedToText)
	if !ok {
		req.logger.WithField("event", "proof_ignored").Debug("photo reply does not quote a purchase offer")
		return
	}

	purchase, err := d.offerPurchase(req, p, title)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			req.logger.WithFields(logging.Fields{
				"event":         "proof_unmatched",
				"product_title": title,
			}).Info("no pending purchase for quoted offer")
			return
		}
		req.logger.WithField("event", "proof_lookup_failed").WithError(err).Error("failed to resolve purchase for proof")
		d.reply(req, msgTemporaryFailure)
		return
	}

	purchase, err = d.store.MarkProofSubmitted(req.ctx, purchase.ID, p.FileID)
	if errors.Is(err, domain.ErrNotFound) {
		d.reply(req, msgAlreadyProcessed)
		return
	}
	if err != nil {
		req.logger.WithField("event", "proof_save_failed").WithError(err).Error("failed to record payment proof")
		d.reply(req, msgTemporaryFailure)
		return
	}

	err = req.session.api.SendPhoto(req.ctx, OutgoingPhoto{
		ChatID:   req.session.cfg.AdminChatID,
		FileID:   p.FileID,
		Caption:  proofNotice(p.Sender, p.ChatID, purchase.ProductTitle),
		Markdown: true,
		Keyboard: proofKeyboard(purchase.ID),
	})
	if err != nil {
		req.logger.WithFields(logging.Fields{
			"event":       "proof_notify_failed",
			"purchase_id": purchase.ID,
		}).WithError(err).Error("failed to notify admin about payment proof")
		d.reply(req, msgTemporaryFailure)
		return
	}

	req.logger.WithFields(logging.Fields{
		"event":       "proof_submitted",
		"purchase_id": purchase.ID,
	}).Info("payment proof forwarded to admin")

	d.reply(req, msgProofReceived)
}

func offerTitle(text string) (string, bool) {
	if !strings.HasPrefix(text, offerPrefix) {
		return "", false
	}
	m := offerTitlePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return markdownUnescaper.Replace(m[1]), true
}

// offerPurchase finds the purchase an offer belongs to: by the id it carries,
// else the newest pending purchase of this buyer for the quoted title.
func (d *Dispatcher) offerPurchase(req *request, p PhotoReply, title string) (domain.Purchase, error) {
	if m := offerIDPattern.FindStringSubmatch(p.RepliedToText); m != nil {
		purchase, err := d.store.FindPurchaseByID(req.ctx, m[1])
		if err != nil {
			return domain.Purchase{}, err
		}
		if purchase.BuyerChatID != p.ChatID {
			return domain.Purchase{}, domain.ErrNotFound
		}
		return purchase, nil
	}
	return d.store.LatestPendingPurchase(req.ctx, p.ChatID, title)
}

// resolvePurchase applies the admin decision once. Repeated decisions only
// report that the purchase was already processed.
func (d *Dispatcher) resolvePurchase(req *request, purchaseID, status string) {
	fields := logging.Fields{"purchase_id": purchaseID, "status": status}

	purchase, changed, err := d.store.ResolvePurchase(req.ctx, purchaseID, status)
	if errors.Is(err, domain.ErrNotFound) {
		d.reply(req, msgPurchaseNotFound)
		return
	}
	if err != nil {
		req.logger.WithFields(fields).WithField("event", "purchase_resolve_failed").WithError(err).Error("failed to resolve purchase")
		d.reply(req, msgTemporaryFailure)
		return
	}
	if !changed {
		req.logger.WithFields(fields).WithField("event", "purchase_already_resolved").Info("ignoring repeated purchase decision")
		d.reply(req, msgAlreadyProcessed)
		return
	}

	req.logger.WithFields(fields).WithField("event", "purchase_resolved").Info("purchase resolved")

	if status == domain.StatusRejected {
		d.reply(req, msgPurchaseRejected)
		_ = d.sendTo(req, purchase.BuyerChatID, msgPurchaseDeclined, false)
		return
	}

	d.reply(req, msgPurchaseApproved)

	product, err := d.store.FindProductByID(req.ctx, purchase.ProductID)
	if err != nil {
		req.logger.WithFields(fields).WithField("event", "delivery_product_missing").WithError(err).Warn("approved purchase has no product record")
		product = domain.Product{ID: purchase.ProductID, Title: purchase.ProductTitle}
	}
	_ = d.sendTo(req, purchase.BuyerChatID, deliveryText(product), false)

	if err := d.store.RecordUserPurchase(req.ctx, purchase.BuyerChatID, purchase.Amount); err != nil {
		req.logger.WithFields(fields).WithField("event", "user_totals_failed").WithError(err).Warn("failed to update buyer totals")
	}
}
