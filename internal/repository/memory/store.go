// Package memory is an in-process unit of work for development and tests.
// Transactions are serialized and run against a copy of the data that replaces
// the committed data only when the transaction function succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

type cartRow struct {
	ID        int64
	UserID    int64
	CreatedAt time.Time
}

type state struct {
	users      map[int64]domain.User
	products   map[int64]domain.Product
	carts      map[int64]cartRow
	cartByUser map[int64]int64
	cartLines  map[int64]domain.CartLine
	orders     map[int64]domain.Order
	seq        int64
}

func newState() *state {
	return &state{
		users:      map[int64]domain.User{},
		products:   map[int64]domain.Product{},
		carts:      map[int64]cartRow{},
		cartByUser: map[int64]int64{},
		cartLines:  map[int64]domain.CartLine{},
		orders:     map[int64]domain.Order{},
	}
}

// clone copies every map. Order lines are never mutated after creation, so their slices are shared.
func (s *state) clone() *state {
	c := &state{
		users:      make(map[int64]domain.User, len(s.users)),
		products:   make(map[int64]domain.Product, len(s.products)),
		carts:      make(map[int64]cartRow, len(s.carts)),
		cartByUser: make(map[int64]int64, len(s.cartByUser)),
		cartLines:  make(map[int64]domain.CartLine, len(s.cartLines)),
		orders:     make(map[int64]domain.Order, len(s.orders)),
		seq:        s.seq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartByUser {
		c.cartByUser[k] = v
	}
	for k, v := range s.cartLines {
		c.cartLines[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	mu    sync.Mutex
	data  *state
	log   *logrus.Logger
	now   func() time.Time
	repos *view
}

func NewStore(logger *logrus.Logger) *Store {
	s := &Store{
		data: newState(),
		log:  logger,
		now:  time.Now,
	}
	s.repos = &view{store: s}
	return s
}

var _ domain.UnitOfWork = (*Store)(nil)

func (s *Store) Users() domain.UserRepository       { return userRepo{s.repos} }
func (s *Store) Products() domain.ProductRepository { return productRepo{s.repos} }
func (s *Store) Carts() domain.CartRepository       { return cartRepo{s.repos} }
func (s *Store) Orders() domain.OrderRepository     { return orderRepo{s.repos} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithinTx(ctx context.Context, fn func(repos domain.Repositories) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Conflict(err, "transaction not started")
	}

	tx := &view{store: s, tx: s.data.clone()}
	if err := fn(tx); err != nil {
		s.log.Debugf("Repository: Discarding in-memory transaction: %v", err)
		return err
	}
	s.data = tx.tx
	return nil
}

// SeedUser and SeedProduct load catalog and identity rows, which this service never writes.
func (s *Store) SeedUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	s.data.users[u.ID] = u
}

func (s *Store) SeedProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[p.ID] = p
}

// Stock reports the committed stock of a product.
func (s *Store) Stock(productID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.products[productID]
	return p.Stock, ok
}

// view is either the autocommit view over committed data or one transaction's working copy.
type view struct {
	store *Store
	tx    *state
}

func (v *view) Users() domain.UserRepository       { return userRepo{v} }
func (v *view) Products() domain.ProductRepository { return productRepo{v} }
func (v *view) Carts() domain.CartRepository       { return cartRepo{v} }
func (v *view) Orders() domain.OrderRepository     { return orderRepo{v} }

// enter returns the data the call works on and the func that ends the call.
// Outside a transaction every call holds the store lock for its duration.
func (v *view) enter() (*state, func()) {
	if v.tx != nil {
		return v.tx, func() {}
	}
	v.store.mu.Lock()
	return v.store.data, v.store.mu.Unlock
}

type userRepo struct{ v *view }

func (r userRepo) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	st, done := r.v.enter()
	defer done()
	u, ok := st.users[id]
	if !ok {
		return nil, domain.NotFound("user with id %d not found", id)
	}
	return &u, nil
}

type productRepo struct{ v *view }

func (r productRepo) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	st, done := r.v.enter()
	defer done()
	p, ok := st.products[id]
	if !ok {
		return nil, domain.NotFound("product with id %d not found", id)
	}
	return &p, nil
}

func (r productRepo) GetStock(_ context.Context, ids []int64) ([]domain.StockRecord, error) {
	st, done := r.v.enter()
	defer done()
	records := make([]domain.StockRecord, 0, len(ids))
	for _, id := range ids {
		p, ok := st.products[id]
		if !ok {
			continue
		}
		records = append(records, domain.StockRecord{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
			Version:   p.Version,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ProductID < records[j].ProductID })
	return records, nil
}

func (r productRepo) DecrementStock(_ context.Context, id int64, quantity int, expectedVersion int64) (*domain.StockRecord, error) {
	st, done := r.v.enter()
	defer done()
	p, ok := st.products[id]
	if !ok || p.Version != expectedVersion || p.Stock < quantity {
		return nil, nil
	}
	p.Stock -= quantity
	p.Version++
	st.products[id] = p
	return &domain.StockRecord{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		Version:   p.Version,
	}, nil
}

type cartRepo struct{ v *view }

func (r cartRepo) GetOrCreateCart(_ context.Context, userID int64) (*domain.Cart, error) {
	st, done := r.v.enter()
	defer done()
	if _, ok := st.users[userID]; !ok {
		return nil, domain.NotFound("user with id %d not found", userID)
	}
	id, ok := st.cartByUser[userID]
	if !ok {
		id = st.nextID()
		st.carts[id] = cartRow{ID: id, UserID: userID, CreatedAt: r.v.store.now().UTC()}
		st.cartByUser[userID] = id
	}
	row := st.carts[id]
	cart := &domain.Cart{ID: row.ID, UserID: row.UserID, CreatedAt: row.CreatedAt, Lines: []domain.CartLine{}}
	for _, l := range st.cartLines {
		if l.CartID != id {
			continue
		}
		p := st.products[l.ProductID]
		l.ProductName = p.Name
		l.UnitPrice = p.Price
		cart.Lines = append(cart.Lines, l)
	}
	sort.Slice(cart.Lines, func(i, j int) bool { return cart.Lines[i].ID < cart.Lines[j].ID })
	return cart, nil
}

// LockCart only checks existence; transactions are already serialized.
func (r cartRepo) LockCart(_ context.Context, cartID int64) error {
	st, done := r.v.enter()
	defer done()
	if _, ok := st.carts[cartID]; !ok {
		return domain.NotFound("cart with id %d not found", cartID)
	}
	return nil
}

func (r cartRepo) AddLine(_ context.Context, cartID, productID int64, quantity int) error {
	st, done := r.v.enter()
	defer done()
	if _, ok := st.products[productID]; !ok {
		return domain.NotFound("product with id %d not found", productID)
	}
	if quantity < 1 {
		return domain.InvalidState("quantity must be at least 1")
	}
	for id, l := range st.cartLines {
		if l.CartID == cartID && l.ProductID == productID {
			if l.Quantity > domain.MaxLineQuantity-quantity {
				return domain.InvalidState("quantity for product %d must be at most %d", productID, domain.MaxLineQuantity)
			}
			l.Quantity += quantity
			st.cartLines[id] = l
			return nil
		}
	}
	id := st.nextID()
	st.cartLines[id] = domain.CartLine{ID: id, CartID: cartID, ProductID: productID, Quantity: quantity}
	return nil
}

func (r cartRepo) UpdateLineQuantity(_ context.Context, cartID, lineID int64, quantity int) error {
	st, done := r.v.enter()
	defer done()
	l, ok := st.cartLines[lineID]
	if !ok || l.CartID != cartID {
		return domain.NotFound("cart item with id %d not found", lineID)
	}
	if quantity < 1 {
		return domain.InvalidState("quantity must be at least 1")
	}
	l.Quantity = quantity
	st.cartLines[lineID] = l
	return nil
}

func (r cartRepo) RemoveLine(_ context.Context, cartID, lineID int64) error {
	st, done := r.v.enter()
	defer done()
	l, ok := st.cartLines[lineID]
	if !ok || l.CartID != cartID {
		return domain.NotFound("cart item with id %d not found", lineID)
	}
	delete(st.cartLines, lineID)
	return nil
}

func (r cartRepo) ClearCart(_ context.Context, cartID int64) error {
	st, done := r.v.enter()
	defer done()
	for id, l := range st.cartLines {
		if l.CartID == cartID {
			delete(st.cartLines, id)
		}
	}
	return nil
}

type orderRepo struct{ v *view }

func (r orderRepo) CreateOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	st, done := r.v.enter()
	defer done()
	if len(order.Lines) == 0 {
		return nil, domain.InvalidState("order must contain at least one item")
	}
	if !order.TotalAmount.Equal(domain.SumLines(order.Lines)) {
		return nil, domain.InvalidState("order total %s does not match the sum of its items", order.TotalAmount.StringFixed(2))
	}
	user, ok := st.users[order.UserID]
	if !ok {
		return nil, domain.NotFound("user with id %d not found", order.UserID)
	}
	order.ID = st.nextID()
	order.User = user
	lines := make([]domain.OrderLine, len(order.Lines))
	for i, l := range order.Lines {
		p, ok := st.products[l.ProductID]
		if !ok {
			return nil, domain.NotFound("product with id %d not found", l.ProductID)
		}
		l.ID = st.nextID()
		l.OrderID = order.ID
		l.ProductName = p.Name
		lines[i] = l
	}
	order.Lines = lines
	st.orders[order.ID] = *order
	return order, nil
}

func (r orderRepo) GetOrderByID(_ context.Context, id int64) (*domain.Order, error) {
	st, done := r.v.enter()
	defer done()
	o, ok := st.orders[id]
	if !ok {
		return nil, domain.NotFound("order with id %d not found", id)
	}
	return &o, nil
}

func (r orderRepo) UpdateOrderStatus(_ context.Context, id int64, status domain.OrderStatus) (*domain.Order, error) {
	st, done := r.v.enter()
	defer done()
	o, ok := st.orders[id]
	if !ok {
		return nil, domain.NotFound("order with id %d not found", id)
	}
	o.Status = status
	st.orders[id] = o
	return &o, nil
}

func (r orderRepo) ListOrdersByUserID(_ context.Context, userID int64) ([]domain.Order, error) {
	st, done := r.v.enter()
	defer done()
	return newestFirst(st, func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (r orderRepo) ListAllOrders(_ context.Context) ([]domain.Order, error) {
	st, done := r.v.enter()
	defer done()
	return newestFirst(st, func(domain.Order) bool { return true }), nil
}

func (r orderRepo) ListShippingAddresses(_ context.Context, userID int64) ([]string, error) {
	st, done := r.v.enter()
	defer done()
	seen := map[string]bool{}
	addresses := []string{}
	for _, o := range newestFirst(st, func(o domain.Order) bool { return o.UserID == userID }) {
		if !seen[o.ShippingAddress] {
			seen[o.ShippingAddress] = true
			addresses = append(addresses, o.ShippingAddress)
		}
	}
	return addresses, nil
}

func newestFirst(st *state, keep func(domain.Order) bool) []domain.Order {
	orders := []domain.Order{}
	for _, o := range st.orders {
		if keep(o) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].OrderDate.Equal(orders[j].OrderDate) {
			return orders[i].OrderDate.After(orders[j].OrderDate)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders
}
