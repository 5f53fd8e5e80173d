package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tg_shop_bot/internal/domain"
	"tg_shop_bot/internal/logging"
)

const (
	defaultWorkers           = 4
	defaultQueueSize         = 64
	defaultBroadcastInterval = 100 * time.Millisecond
)

// ErrNotConfigured is returned by Initialize while the active admin config has
// no usable bot token.
var ErrNotConfigured = errors.New("bot token is not configured")

// Store is the persistence port used by the handlers.
type Store interface {
	FindOrCreateUser(ctx context.Context, profile domain.UserProfile) (domain.User, error)
	ActiveAdminConfig(ctx context.Context) (domain.AdminConfig, error)
	SaveAdminConfig(ctx context.Context, cfg domain.AdminConfig) (domain.AdminConfig, error)
	ListActiveUsers(ctx context.Context) ([]domain.User, error)
	RecentUsers(ctx context.Context, limit int64) ([]domain.User, error)
	CountUsers(ctx context.Context) (int64, error)
	FindUserByUsername(ctx context.Context, username string) (domain.User, error)
	RecordUserPurchase(ctx context.Context, userID int64, amount int64) error
	CreateConfess(ctx context.Context, c domain.Confess) (domain.Confess, error)
	ResolveConfess(ctx context.Context, id, status, respondedBy string) (domain.Confess, bool, error)
	FindProductByID(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context, limit int64) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (domain.Purchase, error)
	FindPurchaseByID(ctx context.Context, id string) (domain.Purchase, error)
	LatestPendingPurchase(ctx context.Context, buyerChatID int64, productTitle string) (domain.Purchase, error)
	MarkProofSubmitted(ctx context.Context, id, fileID string) (domain.Purchase, error)
	ResolvePurchase(ctx context.Context, id, status string) (domain.Purchase, bool, error)
}

// session is an immutable snapshot of the active configuration and the API
// client bound to its token.
type session struct {
	cfg   domain.AdminConfig
	api   ChatAPI
	ready bool
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the number of per-chat ordered workers.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the buffer of each worker queue.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithBroadcastInterval sets the minimum delay between broadcast sends.
func WithBroadcastInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.broadcastInterval = interval
		}
	}
}

// WithAPIFactory replaces the go-telegram/bot backed client factory.
func WithAPIFactory(factory APIFactory) Option {
	return func(d *Dispatcher) {
		if factory != nil {
			d.newAPI = factory
		}
	}
}

// Dispatcher routes updates to handlers against the active admin config.
// Updates from one chat are handled in arrival order by the same worker.
type Dispatcher struct {
	store             Store
	newAPI            APIFactory
	logger            *logrus.Entry
	validate          *validator.Validate
	commands          map[command]commandSpec
	actions           map[action]actionSpec
	workers           int
	queueSize         int
	broadcastInterval time.Duration

	queues  []chan Update
	current atomic.Pointer[session]

	// reinit is held shared while an update is handled and exclusively while
	// the session is rebuilt, so no handler observes a half-updated session.
	reinit sync.RWMutex

	notifyMu sync.Mutex
	changed  chan struct{}
}

// NewDispatcher constructs a Dispatcher. It starts uninitialized; call
// Initialize before Run.
func NewDispatcher(store Store, logger *logrus.Entry, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	d := &Dispatcher{
		store:             store,
		newAPI:            NewBotAPI,
		logger:            logger,
		validate:          validator.New(),
		workers:           defaultWorkers,
		queueSize:         defaultQueueSize,
		broadcastInterval: defaultBroadcastInterval,
		changed:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.commands = commandTable()
	d.actions = actionTable()
	d.queues = make([]chan Update, d.workers)
	for i := range d.queues {
		d.queues[i] = make(chan Update, d.queueSize)
	}
	d.current.Store(&session{})

	return d, nil
}

// Initialize loads the active admin config and binds the chat client. On
// failure the dispatcher stays disabled and drops updates.
func (d *Dispatcher) Initialize(ctx context.Context) error {
	d.reinit.Lock()
	defer d.reinit.Unlock()

	return d.initializeLocked(ctx)
}

func (d *Dispatcher) initializeLocked(ctx context.Context) error {
	cfg, err := d.store.ActiveAdminConfig(ctx)
	if err != nil {
		d.disable(domain.AdminConfig{}, "admin config unavailable", err)
		return fmt.Errorf("load admin config: %w", err)
	}
	if !cfg.HasUsableToken() {
		d.disable(cfg, "bot token missing or placeholder", ErrNotConfigured)
		return ErrNotConfigured
	}

	api, err := d.newAPI(cfg.BotToken)
	if err != nil {
		d.disable(cfg, "chat client setup failed", err)
		return fmt.Errorf("create chat client: %w", err)
	}

	me, err := api.GetMe(ctx)
	if err != nil {
		d.disable(cfg, "bot identity fetch failed", err)
		return fmt.Errorf("fetch bot identity: %w", err)
	}

	if me.Username != "" && me.Username != cfg.BotUsername {
		cfg.BotUsername = me.Username
		saved, err := d.store.SaveAdminConfig(ctx, cfg)
		if err != nil {
			d.logger.WithFields(logging.Fields{
				"event":        "bot_username_save_failed",
				"bot_username": me.Username,
			}).WithError(err).Warn("failed to persist bot username")
		} else {
			cfg = saved
		}
	}

	d.current.Store(&session{cfg: cfg, api: api, ready: true})
	d.notifyChanged()

	d.logger.WithFields(logging.Fields{
		"event":        "bot_initialized",
		"bot_username": cfg.BotUsername,
		"config_id":    cfg.ID,
	}).Info("dispatcher initialized")

	return nil
}

func (d *Dispatcher) disable(cfg domain.AdminConfig, reason string, err error) {
	d.current.Store(&session{cfg: cfg})
	d.notifyChanged()

	d.logger.WithFields(logging.Fields{
		"event":  "bot_uninitialized",
		"reason": reason,
	}).WithError(err).Warn("dispatcher disabled, updates will be dropped")
}

// RefreshConfig re-initializes when the stored active config no longer matches
// the running session, or when the dispatcher is still disabled.
func (d *Dispatcher) RefreshConfig(ctx context.Context) error {
	cfg, err := d.store.ActiveAdminConfig(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load admin config: %w", err)
	}

	current := d.current.Load()
	if current.ready && err == nil && current.cfg.SameIdentity(cfg) {
		return nil
	}
	if !current.ready && (err != nil || !cfg.HasUsableToken()) {
		return nil
	}

	d.logger.WithField("event", "config_refresh").Info("admin config changed, re-initializing")
	if err := d.Initialize(ctx); err != nil && !errors.Is(err, ErrNotConfigured) {
		return err
	}
	return nil
}

// Ready reports whether updates are currently being handled.
func (d *Dispatcher) Ready() bool {
	return d.current.Load().ready
}

// ActiveToken returns the token of the ready session, empty when disabled, and
// a channel closed on the next session change.
func (d *Dispatcher) ActiveToken() (string, <-chan struct{}) {
	d.notifyMu.Lock()
	changed := d.changed
	d.notifyMu.Unlock()

	s := d.current.Load()
	if !s.ready {
		return "", changed
	}
	return s.cfg.BotToken, changed
}

func (d *Dispatcher) notifyChanged() {
	d.notifyMu.Lock()
	close(d.changed)
	d.changed = make(chan struct{})
	d.notifyMu.Unlock()
}

// Enqueue hands an update to the worker owning its chat.
func (d *Dispatcher) Enqueue(ctx context.Context, u Update) error {
	if u == nil {
		return nil
	}

	chat := u.Chat()
	if chat < 0 {
		chat = -chat
	}
	queue := d.queues[chat%int64(len(d.queues))]

	select {
	case queue <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the workers and blocks until ctx is canceled and every worker has
// finished its in-flight update.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i, queue := range d.queues {
		wg.Add(1)
		go func(worker int, queue <-chan Update) {
			defer wg.Done()
			d.work(ctx, worker, queue)
		}(i, queue)
	}

	d.logger.WithFields(logging.Fields{
		"event":   "dispatcher_start",
		"workers": len(d.queues),
	}).Info("dispatcher workers started")

	wg.Wait()

	d.logger.WithField("event", "dispatcher_stopped").Info("dispatcher workers stopped")
	return nil
}

func (d *Dispatcher) work(ctx context.Context, worker int, queue <-chan Update) {
	// Handlers run detached from ctx so shutdown never interrupts a started
	// update, broadcasts included.
	handleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-queue:
			if ctx.Err() != nil {
				return
			}
			d.Handle(handleCtx, u)
		}
	}
}

// Handle processes one update synchronously.
func (d *Dispatcher) Handle(ctx context.Context, u Update) {
	if u == nil {
		return
	}

	logger := logging.WithContext(d.logger, logging.Context{
		UserID:     u.From().UserID,
		ChatID:     u.Chat(),
		TraceID:    uuid.NewString(),
		UpdateKind: string(u.Kind()),
	})

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logging.Fields{
				"event": "update_panic",
				"panic": fmt.Sprint(r),
			}).Error("recovered from handler panic")
		}
	}()

	req := d.dispatch(ctx, u, logger)
	if req != nil && req.reinitRequested {
		d.finishReinit(req)
	}
}

// request carries the state one handler invocation works against.
type request struct {
	ctx     context.Context
	update  Update
	session *session
	user    domain.User
	logger  *logrus.Entry

	reinitRequested bool
	reinitNotice    string
}

func (d *Dispatcher) dispatch(ctx context.Context, u Update, logger *logrus.Entry) *request {
	d.reinit.RLock()
	defer d.reinit.RUnlock()

	s := d.current.Load()
	if !s.ready {
		logger.WithField("event", "update_dropped").Debug("dispatcher not initialized, dropping update")
		return nil
	}

	req := &request{ctx: ctx, update: u, session: s, logger: logger}

	// Proof replies are matched before the user record is touched.
	if u.Kind() != KindPhotoReply {
		user, err := d.store.FindOrCreateUser(ctx, profileOf(u))
		if err != nil {
			logger.WithField("event", "user_upsert_failed").WithError(err).Warn("failed to load user, continuing with defaults")
			user = domain.User{UserID: u.From().UserID, ChatID: u.From().UserID, Role: domain.RoleUser}
		}
		req.user = user
	}

	d.route(req)
	return req
}

func (d *Dispatcher) route(req *request) {
	switch u := req.update.(type) {
	case TextMessage:
		d.routeText(req, u)
	case PhotoReply:
		d.submitProof(req, u)
	case CallbackQuery:
		d.routeCallback(req, u)
	}
}

func (d *Dispatcher) finishReinit(req *request) {
	err := d.Initialize(req.ctx)
	if err != nil {
		req.logger.WithField("event", "reinit_failed").WithError(err).Warn("re-initialization after config change failed")
	}

	// Confirm on the new session when it came up, otherwise on the one the
	// command arrived on.
	s := d.current.Load()
	if !s.ready {
		s = req.session
	}
	notice := req.reinitNotice
	if err != nil {
		notice = msgReinitFailed
	}
	if sendErr := s.api.SendMessage(req.ctx, OutgoingMessage{ChatID: chatRef(req.update.Chat()), Text: notice}); sendErr != nil {
		req.logger.WithField("event", "send_failed").WithError(sendErr).Warn("failed to confirm re-initialization")
	}
}
