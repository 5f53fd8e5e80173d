package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_shop_bot/internal/domain"
)

const (
	testToken     = "123:abc"
	testAdminChat = int64(999)
	testBuyer     = int64(42)
)

type fakeAPI struct {
	mu        sync.Mutex
	me        BotIdentity
	meErr     error
	messages  []OutgoingMessage
	photos    []OutgoingPhoto
	answered  []string
	failChats map[string]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		me:        BotIdentity{ID: 1, Username: "shopbot"},
		failChats: map[string]error{},
	}
}

func (f *fakeAPI) GetMe(context.Context) (BotIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.me, f.meErr
}

func (f *fakeAPI) SendMessage(_ context.Context, msg OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failChats[msg.ChatID]; ok {
		return err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeAPI) SendPhoto(_ context.Context, photo OutgoingPhoto) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failChats[photo.ChatID]; ok {
		return err
	}
	f.photos = append(f.photos, photo)
	return nil
}

func (f *fakeAPI) AnswerCallback(_ context.Context, id, _ string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeAPI) sentTo(chatID int64) []OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []OutgoingMessage
	for _, m := range f.messages {
		if m.ChatID == chatRef(chatID) {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeAPI) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeAPI) photoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.photos)
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = nil
	f.photos = nil
	f.answered = nil
}

func lastText(t *testing.T, msgs []OutgoingMessage) string {
	t.Helper()
	if len(msgs) == 0 {
		t.Fatalf("expected at least one message")
	}
	return msgs[len(msgs)-1].Text
}

// fakeStore is an in-memory Store. User upserts are tracked apart from the
// writes that change products, purchases, confesses or config.
type fakeStore struct {
	mu sync.Mutex

	cfg    domain.AdminConfig
	cfgErr error

	users        map[int64]domain.User
	products     map[string]domain.Product
	purchases    map[string]domain.Purchase
	confesses    map[string]domain.Confess
	confessOrder []string

	writes      map[string]int
	userUpserts int
	seq         int
	panicOnUser bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cfg: domain.AdminConfig{
			ID:             "cfg-1",
			BotToken:       testToken,
			AdminChatID:    chatRef(testAdminChat),
			AdminUsername:  "wanzo",
			BotUsername:    "shopbot",
			BotName:        domain.DefaultBotName,
			BotDescription: "Toko digital",
			IsActive:       true,
		},
		users: map[int64]domain.User{},
		products: map[string]domain.Product{
			"p1": {
				ID:          "p1",
				Title:       "Widget",
				Description: "A widget",
				Price:       150000,
				FileURL:     "https://files.example/widget.zip",
				Status:      domain.ProductStatusAvailable,
			},
		},
		purchases: map[string]domain.Purchase{},
		confesses: map[string]domain.Confess{},
		writes:    map[string]int{},
	}
}

func (s *fakeStore) write(op string) {
	s.writes[op]++
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.writes {
		total += n
	}
	return total
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeStore) addUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ChatID == 0 {
		u.ChatID = u.UserID
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	u.IsActive = true
	s.users[u.UserID] = u
}

func (s *fakeStore) FindOrCreateUser(_ context.Context, profile domain.UserProfile) (domain.User, error) {
	if s.panicOnUser {
		panic("user store exploded")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.userUpserts++

	u, ok := s.users[profile.UserID]
	if !ok {
		u = domain.User{UserID: profile.UserID, Role: domain.RoleUser, CreatedAt: time.Now()}
	}
	u.ChatID = profile.ChatID
	u.Username = strings.TrimPrefix(profile.Username, "@")
	u.FirstName = profile.FirstName
	u.LastName = profile.LastName
	u.IsActive = true
	s.users[profile.UserID] = u
	return u, nil
}

func (s *fakeStore) ActiveAdminConfig(context.Context) (domain.AdminConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfgErr != nil {
		return domain.AdminConfig{}, s.cfgErr
	}
	return s.cfg, nil
}

func (s *fakeStore) SaveAdminConfig(_ context.Context, cfg domain.AdminConfig) (domain.AdminConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write("SaveAdminConfig")
	s.cfg = cfg
	return cfg, nil
}

func (s *fakeStore) ListActiveUsers(context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if u.IsActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *fakeStore) RecentUsers(ctx context.Context, limit int64) ([]domain.User, error) {
	users, _ := s.ListActiveUsers(ctx)
	if int64(len(users)) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *fakeStore) CountUsers(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *fakeStore) FindUserByUsername(_ context.Context, username string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.UsernameKey(username)
	for _, u := range s.users {
		if domain.UsernameKey(u.Username) == key {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (s *fakeStore) RecordUserPurchase(_ context.Context, userID int64, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write("RecordUserPurchase")
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Stats.TotalPurchases++
	u.Stats.TotalSpent += amount
	s.users[userID] = u
	return nil
}

func (s *fakeStore) CreateConfess(_ context.Context, c domain.Confess) (domain.Confess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write("CreateConfess")
	c.ID = s.nextID("confess")
	c.Status = domain.StatusPending
	s.confesses[c.ID] = c
	s.confessOrder = append(s.confessOrder, c.Message)
	return c, nil
}

func (s *fakeStore) ResolveConfess(_ context.Context, id, status, respondedBy string) (domain.Confess, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write("ResolveConfess")
	c, ok := s.confesses[id]
	if !ok {
		return domain.Confess{}, false, domain.ErrNotFound
	}
	if c.Status != domain.StatusPending {
		return c, false, nil
	}
	c.Status = status
	c.RespondedBy = respondedBy
	s.confesses[id] = c
	return c, true, nil
}

func (s *fakeStore) FindProductByID(_ context.Context, id string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) ListProducts(_ context.Context, limit int64) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write("CreateProduct")
	p.ID = s.nextID("product")
	p.Status = domain.ProductStatusAvailable
	s.products[p.ID] = p
	return p, nil
}

func (s *fakeStore) CreatePurchase(_ context.Context, p domain.Purchase) (domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write("CreatePurchase")
	p.ID = s.nextID("purchase")
	p.Status = domain.StatusPending
	p.CreatedAt = time.Unix(int64(s.seq), 0)
	s.purchases[p.ID] = p
	return p, nil
}

func (s *fakeStore) FindPurchaseByID(_ context.Context, id string) (domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[id]
	if !ok {
		return domain.Purchase{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) LatestPendingPurchase(_ context.Context, buyerChatID int64, title string) (domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  domain.Purchase
		found bool
	)
	for _, p := range s.purchases {
		if p.BuyerChatID != buyerChatID || p.ProductTitle != title || p.Status != domain.StatusPending {
			continue
		}
		if !found || p.CreatedAt.After(best.CreatedAt) {
			best, found = p, true
		}
	}
	if !found {
		return domain.Purchase{}, domain.ErrNotFound
	}
	return best, nil
}

func (s *fakeStore) MarkProofSubmitted(_ context.Context, id, fileID string) (domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write("MarkProofSubmitted")
	p, ok := s.purchases[id]
	if !ok || p.Status != domain.StatusPending {
		return domain.Purchase{}, domain.ErrNotFound
	}
	now := time.Now()
	p.ProofFileID = fileID
	p.ProofSubmittedAt = &now
	s.purchases[id] = p
	return p, nil
}

func (s *fakeStore) ResolvePurchase(_ context.Context, id, status string) (domain.Purchase, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write("ResolvePurchase")
	p, ok := s.purchases[id]
	if !ok {
		return domain.Purchase{}, false, domain.ErrNotFound
	}
	if p.Status != domain.StatusPending {
		return p, false, nil
	}
	now := time.Now()
	p.Status = status
	p.ResolvedAt = &now
	s.purchases[id] = p
	return p, true, nil
}

func (s *fakeStore) purchase(t *testing.T, id string) domain.Purchase {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[id]
	if !ok {
		t.Fatalf("purchase %q not stored", id)
	}
	return p
}

func (s *fakeStore) onlyPurchase(t *testing.T) domain.Purchase {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.purchases) != 1 {
		t.Fatalf("expected exactly one purchase, got %d", len(s.purchases))
	}
	for _, p := range s.purchases {
		return p
	}
	return domain.Purchase{}
}

type fixture struct {
	d     *Dispatcher
	store *fakeStore
	api   *fakeAPI
	hook  *logtest.Hook

	mu         sync.Mutex
	tokens     []string
	failTokens map[string]bool
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		store:      newFakeStore(),
		api:        newFakeAPI(),
		hook:       hook,
		failTokens: map[string]bool{},
	}

	factory := func(token string) (ChatAPI, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.tokens = append(f.tokens, token)
		if f.failTokens[token] {
			return nil, errors.New("unauthorized")
		}
		return f.api, nil
	}

	options := append([]Option{
		WithAPIFactory(factory),
		WithBroadcastInterval(time.Millisecond),
	}, opts...)

	d, err := NewDispatcher(f.store, logrus.NewEntry(logger), options...)
	if err != nil {
		t.Fatalf("NewDispatcher returned error: %v", err)
	}
	f.d = d
	return f
}

func newReadyFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := newFixture(t, opts...)
	if err := f.d.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	return f
}

func (f *fixture) handle(u Update) {
	f.d.Handle(context.Background(), u)
}

func (f *fixture) tokenCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func (f *fixture) hasEvent(event string) bool {
	for _, entry := range f.hook.AllEntries() {
		if entry.Data["event"] == event {
			return true
		}
	}
	return false
}

func userText(chat int64, text string) TextMessage {
	return TextMessage{
		ChatID: chat,
		Sender: Sender{UserID: chat, Username: fmt.Sprintf("user%d", chat), FirstName: "User"},
		Text:   text,
	}
}

func adminText(text string) TextMessage {
	return TextMessage{
		ChatID: testAdminChat,
		Sender: Sender{UserID: testAdminChat, Username: "wanzo"},
		Text:   text,
	}
}

func tap(chat int64, id, data string) CallbackQuery {
	return CallbackQuery{
		ID:     id,
		ChatID: chat,
		Sender: Sender{UserID: chat, Username: fmt.Sprintf("user%d", chat)},
		Data:   data,
	}
}
