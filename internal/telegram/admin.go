package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"tg_shop_bot/internal/domain"
	"tg_shop_bot/internal/logging"
)

const addProductFields = 5

func handleAddProduct(d *Dispatcher, req *request, args string) {
	parts := strings.Split(args, ";")
	if len(parts) < addProductFields {
		d.replyMarkdown(req, msgAddProductUsage, nil)
		return
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	price, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		d.replyMarkdown(req, "Harga harus berupa angka.\n\n"+msgAddProductUsage, nil)
		return
	}

	product := domain.Product{
		Title:       parts[0],
		Description: parts[1],
		Price:       price,
		ImageURL:    parts[3],
		FileURL:     parts[4],
	}
	if err := d.validate.Struct(product); err != nil {
		d.reply(req, invalidProductText(err))
		return
	}

	created, err := d.store.CreateProduct(req.ctx, product)
	if err != nil {
		req.logger.WithField("event", "product_create_failed").WithError(err).Error("failed to create product")
		d.reply(req, msgTemporaryFailure)
		return
	}

	req.logger.WithFields(logging.Fields{
		"event":      "product_created",
		"product_id": created.ID,
	}).Info("product added from chat")

	d.replyMarkdown(req, productAddedText(created), nil)
}

func invalidProductText(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "Data produk tidak valid."
	}

	lines := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		lines = append(lines, fmt.Sprintf("- %s (%s)", fe.Field(), fe.Tag()))
	}
	return "Data produk tidak valid:\n" + strings.Join(lines, "\n")
}

func handleUsers(d *Dispatcher, req *request, _ string) {
	users, err := d.store.RecentUsers(req.ctx, recentUserSize)
	if err != nil {
		req.logger.WithField("event", "users_list_failed").WithError(err).Error("failed to list recent users")
		d.reply(req, msgTemporaryFailure)
		return
	}

	total, err := d.store.CountUsers(req.ctx)
	if err != nil {
		req.logger.WithField("event", "users_count_failed").WithError(err).Warn("failed to count users")
		total = int64(len(users))
	}

	d.replyMarkdown(req, usersText(users, total), nil)
}

func handleSetToken(d *Dispatcher, req *request, args string) {
	d.updateConfig(req, cmdSetToken, args, func(cfg *domain.AdminConfig, value string) error {
		cfg.BotToken = value
		return nil
	})
}

func handleSetID(d *Dispatcher, req *request, args string) {
	d.updateConfig(req, cmdSetID, args, func(cfg *domain.AdminConfig, value string) error {
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("admin chat id must be numeric: %w", err)
		}
		cfg.AdminChatID = value
		return nil
	})
}

// updateConfig saves one admin config field and schedules a re-initialization
// that runs once the current update releases the session.
func (d *Dispatcher) updateConfig(req *request, name command, args string, apply func(*domain.AdminConfig, string) error) {
	value := strings.TrimSpace(args)
	if value == "" {
		d.replyMarkdown(req, setConfigUsage(string(name)), nil)
		return
	}

	cfg := req.session.cfg
	if err := apply(&cfg, value); err != nil {
		d.replyMarkdown(req, setConfigUsage(string(name)), nil)
		return
	}

	if _, err := d.store.SaveAdminConfig(req.ctx, cfg); err != nil {
		req.logger.WithFields(logging.Fields{
			"event":   "config_save_failed",
			"command": string(name),
		}).WithError(err).Error("failed to save admin config")
		d.reply(req, msgTemporaryFailure)
		return
	}

	req.logger.WithFields(logging.Fields{
		"event":   "config_updated",
		"command": string(name),
	}).Info("admin config updated from chat")

	req.reinitRequested = true
	req.reinitNotice = msgConfigSaved
}
