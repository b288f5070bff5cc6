package domain

import "context"

// Repositories is the set of repositories bound to one connection or transaction.
type Repositories interface {
	Users() UserRepository
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
}

// UnitOfWork runs fn against repositories sharing one transaction. The transaction commits
// when fn returns nil and rolls back otherwise, including when fn panics.
type UnitOfWork interface {
	Repositories
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
	Ping(ctx context.Context) error
}
