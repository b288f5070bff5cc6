package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"

	"storefront/internal/clients"
	"storefront/internal/domain"
	"storefront/internal/repository/memory"
)

const (
	productA int64 = 100
	productB int64 = 200
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store  *memory.Store
	orders domain.OrderUseCase
	carts  domain.CartUseCase
	events *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets wrap decorate the store the use cases see; the fixture keeps the
// undecorated store for assertions.
func newFixtureWith(t *testing.T, wrap func(domain.UnitOfWork) domain.UnitOfWork) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := memory.NewStore(logger)
	store.SeedUser(domain.User{ID: 1, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"})
	store.SeedUser(domain.User{ID: 2, FirstName: "Bob", Email: "bob@example.com"})
	store.SeedProduct(domain.Product{ID: productA, Name: "A", Price: decimal.RequireFromString("10.00"), Stock: 5})
	store.SeedProduct(domain.Product{ID: productB, Name: "B", Price: decimal.RequireFromString("5.00"), Stock: 1})

	var uow domain.UnitOfWork = store
	if wrap != nil {
		uow = wrap(store)
	}
	events := &recordingPublisher{}
	ledger := NewInventoryLedger(5, time.Millisecond, logger)
	return &fixture{
		store:  store,
		orders: NewOrderUseCase(uow, ledger, events, clients.NewMemoryIdempotencyStore(time.Hour, time.Minute), 5*time.Second, logger),
		carts:  NewCartUseCase(store, logger),
		events: events,
	}
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	s, ok := f.store.Stock(productID)
	if !ok {
		t.Fatalf("product %d not seeded", productID)
	}
	return s
}

func (f *fixture) addToCart(t *testing.T, userID, productID int64, qty int) {
	t.Helper()
	if _, err := f.carts.AddItem(context.Background(), userID, productID, qty); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
}

// faultyStore injects failures into repositories handed out inside transactions.
type faultyStore struct {
	domain.UnitOfWork
	createOrderErr error
	clearCartErr   error
	// contended products never win a conditional decrement.
	contended map[int64]bool
}

func (s *faultyStore) WithinTx(ctx context.Context, fn func(domain.Repositories) error) error {
	return s.UnitOfWork.WithinTx(ctx, func(repos domain.Repositories) error {
		return fn(faultyRepos{Repositories: repos, store: s})
	})
}

type faultyRepos struct {
	domain.Repositories
	store *faultyStore
}

func (r faultyRepos) Products() domain.ProductRepository {
	return faultyProducts{ProductRepository: r.Repositories.Products(), contended: r.store.contended}
}

func (r faultyRepos) Carts() domain.CartRepository {
	return faultyCarts{CartRepository: r.Repositories.Carts(), err: r.store.clearCartErr}
}

func (r faultyRepos) Orders() domain.OrderRepository {
	return faultyOrders{OrderRepository: r.Repositories.Orders(), err: r.store.createOrderErr}
}

type faultyProducts struct {
	domain.ProductRepository
	contended map[int64]bool
}

func (p faultyProducts) DecrementStock(ctx context.Context, id int64, qty int, version int64) (*domain.StockRecord, error) {
	if p.contended[id] {
		return nil, nil
	}
	return p.ProductRepository.DecrementStock(ctx, id, qty, version)
}

type faultyCarts struct {
	domain.CartRepository
	err error
}

func (c faultyCarts) ClearCart(ctx context.Context, cartID int64) error {
	if c.err != nil {
		return c.err
	}
	return c.CartRepository.ClearCart(ctx, cartID)
}

type faultyOrders struct {
	domain.OrderRepository
	err error
}

func (o faultyOrders) CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.OrderRepository.CreateOrder(ctx, order)
}
