package store

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"tg_shop_bot/internal/domain"
	"tg_shop_bot/internal/feature/user"
)

// Port is the persistence boundary used by the dispatcher. It composes the
// per-collection repositories behind one value so handlers depend on a single
// interface.
type Port struct {
	registrar *user.Registrar
	users     *domain.UserRepository
	configs   *domain.AdminConfigRepository
	products  *domain.ProductRepository
	purchases *domain.PurchaseRepository
	confesses *domain.ConfessRepository
	stats     *StatsProvider
}

// NewPort builds a Port over the manager's collections.
func NewPort(m *Manager, logger *logrus.Entry) (*Port, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("store manager is not initialized")
	}

	return &Port{
		registrar: user.NewRegistrar(m.Users(), logger),
		users:     domain.NewUserRepository(m.Users()),
		configs:   domain.NewAdminConfigRepository(m.AdminConfigs()),
		products:  domain.NewProductRepository(m.Products()),
		purchases: domain.NewPurchaseRepository(m.Purchases()),
		confesses: domain.NewConfessRepository(m.Confesses()),
		stats:     NewStatsProvider(m.Users(), m.Purchases()),
	}, nil
}

// AdminConfigs exposes the config repository for startup bootstrap.
func (p *Port) AdminConfigs() *domain.AdminConfigRepository {
	return p.configs
}

func (p *Port) FindOrCreateUser(ctx context.Context, profile domain.UserProfile) (domain.User, error) {
	u, _, err := p.registrar.EnsureUser(ctx, profile)
	return u, err
}

func (p *Port) ActiveAdminConfig(ctx context.Context) (domain.AdminConfig, error) {
	return p.configs.GetActive(ctx)
}

func (p *Port) SaveAdminConfig(ctx context.Context, cfg domain.AdminConfig) (domain.AdminConfig, error) {
	return p.configs.Save(ctx, cfg)
}

func (p *Port) ListActiveUsers(ctx context.Context) ([]domain.User, error) {
	return p.users.ListActive(ctx)
}

func (p *Port) RecentUsers(ctx context.Context, limit int64) ([]domain.User, error) {
	return p.users.Recent(ctx, limit)
}

func (p *Port) CountUsers(ctx context.Context) (int64, error) {
	return p.stats.CountUsers(ctx)
}

func (p *Port) CountPendingPurchases(ctx context.Context) (int64, error) {
	return p.stats.CountPendingPurchases(ctx)
}

func (p *Port) FindUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return p.users.GetByUsername(ctx, username)
}

func (p *Port) RecordUserPurchase(ctx context.Context, userID int64, amount int64) error {
	return p.users.AddPurchase(ctx, userID, amount)
}

func (p *Port) CreateConfess(ctx context.Context, c domain.Confess) (domain.Confess, error) {
	return p.confesses.Create(ctx, c)
}

func (p *Port) ResolveConfess(ctx context.Context, id, status, respondedBy string) (domain.Confess, bool, error) {
	return p.confesses.Resolve(ctx, id, status, respondedBy)
}

func (p *Port) FindProductByID(ctx context.Context, id string) (domain.Product, error) {
	return p.products.GetByID(ctx, id)
}

func (p *Port) ListProducts(ctx context.Context, limit int64) ([]domain.Product, error) {
	return p.products.ListAvailable(ctx, limit)
}

func (p *Port) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	return p.products.Create(ctx, product)
}

func (p *Port) CreatePurchase(ctx context.Context, purchase domain.Purchase) (domain.Purchase, error) {
	return p.purchases.Create(ctx, purchase)
}

func (p *Port) FindPurchaseByID(ctx context.Context, id string) (domain.Purchase, error) {
	return p.purchases.GetByID(ctx, id)
}

func (p *Port) LatestPendingPurchase(ctx context.Context, buyerChatID int64, productTitle string) (domain.Purchase, error) {
	return p.purchases.LatestPending(ctx, buyerChatID, productTitle)
}

func (p *Port) MarkProofSubmitted(ctx context.Context, id, fileID string) (domain.Purchase, error) {
	return p.purchases.MarkProofSubmitted(ctx, id, fileID)
}

func (p *Port) ResolvePurchase(ctx context.Context, id, status string) (domain.Purchase, bool, error) {
	return p.purchases.Resolve(ctx, id, status)
}
