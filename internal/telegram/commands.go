package telegram

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"

	"tg_shop_bot/internal/logging"
)

type command string

const (
	cmdStart      command = "start"
	cmdMenu       command = "menu"
	cmdConfess    command = "confess"
	cmdMenfess    command = "menfess"
	cmdBeli       command = "beli"
	cmdAddProduct command = "addproduct"
	cmdBoard      command = "board"
	cmdUsers      command = "users"
	cmdSetToken   command = "settoken"
	cmdSetID      command = "setid"
)

type commandHandler func(d *Dispatcher, req *request, args string)

type commandSpec struct {
	handler    commandHandler
	privileged bool
}

func commandTable() map[command]commandSpec {
	return map[command]commandSpec{
		cmdStart:      {handler: handleStart},
		cmdMenu:       {handler: handleMenu},
		cmdConfess:    {handler: handleConfess},
		cmdMenfess:    {handler: handleMenfess},
		cmdBeli:       {handler: handleBeli},
		cmdAddProduct: {handler: handleAddProduct, privileged: true},
		cmdBoard:      {handler: handleBoard, privileged: true},
		cmdUsers:      {handler: handleUsers, privileged: true},
		cmdSetToken:   {handler: handleSetToken, privileged: true},
		cmdSetID:      {handler: handleSetID, privileged: true},
	}
}

// commandPattern matches "/name", "/name@bot" and "/name args", where args
// may span several lines.
var commandPattern = regexp.MustCompile(`(?s)^/(\w+)(?:@\w+)?(?:\s+(.*))?$`)

func parseCommand(text string) (command, string, bool) {
	m := commandPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", false
	}
	return command(m[1]), m[2], true
}

var errDeepLinkEncoding = errors.New("deep link payload is not base64")

// decodeDeepLink decodes a /start payload. Links built by browsers may use
// either the standard or the URL-safe alphabet, padded or not.
func decodeDeepLink(payload string) (string, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if raw, err := enc.DecodeString(payload); err == nil {
			return string(raw), nil
		}
	}
	return "", errDeepLinkEncoding
}

func (d *Dispatcher) routeText(req *request, msg TextMessage) {
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		d.reply(req, msgFallback)
		return
	}
	d.runCommand(req, name, args)
}

func (d *Dispatcher) runCommand(req *request, name command, args string) {
	entry, ok := d.commands[name]
	if !ok {
		req.logger.WithFields(logging.Fields{
			"event":   "command_unknown",
			"command": string(name),
		}).Debug("unknown command")
		d.reply(req, msgUnknownCommand)
		return
	}

	if entry.privileged && !d.authorized(req) {
		d.deny(req, string(name))
		return
	}

	req.logger.WithFields(logging.Fields{
		"event":   "command_received",
		"command": string(name),
	}).Info("handling command")

	entry.handler(d, req, args)
}

func handleStart(d *Dispatcher, req *request, args string) {
	if fields := strings.Fields(args); len(fields) > 0 {
		if target, targetArgs, ok := d.deepLinkTarget(req, fields[0]); ok {
			d.commands[target].handler(d, req, targetArgs)
			return
		}
	}

	cfg := req.session.cfg
	d.replyMarkdown(req, startText(cfg), nil)
	handleMenu(d, req, "")
}

// deepLinkTarget resolves a /start payload to the embedded command it carries.
// Only public commands other than start are reachable this way.
func (d *Dispatcher) deepLinkTarget(req *request, payload string) (command, string, bool) {
	decoded, err := decodeDeepLink(payload)
	if err != nil {
		req.logger.WithField("event", "deep_link_invalid").WithError(err).Warn("failed to decode start payload")
		return "", "", false
	}

	name, args, ok := parseCommand(decoded)
	if !ok || name == cmdStart {
		req.logger.WithField("event", "deep_link_unrecognized").Debug("start payload carries no command")
		return "", "", false
	}
	entry, known := d.commands[name]
	if !known || entry.privileged {
		req.logger.WithFields(logging.Fields{
			"event":   "deep_link_rejected",
			"command": string(name),
		}).Warn("start payload names an unavailable command")
		return "", "", false
	}

	return name, args, true
}

func handleMenu(d *Dispatcher, req *request, _ string) {
	cfg := req.session.cfg
	d.replyMarkdown(req, menuText(cfg), menuKeyboard(cfg))
}

func handleBeli(d *Dispatcher, req *request, args string) {
	productID := ""
	if fields := strings.Fields(args); len(fields) > 0 {
		productID = fields[0]
	}
	d.startPurchase(req, req.update.Chat(), productID)
}
