package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type postgresRepositories struct {
	users    domain.UserRepository
	products domain.ProductRepository
	carts    domain.CartRepository
	orders   domain.OrderRepository
}

func newPostgresRepositories(q querier, logger *logrus.Logger) *postgresRepositories {
	return &postgresRepositories{
		users:    NewPostgresUserRepository(q, logger),
		products: NewPostgresProductRepository(q, logger),
		carts:    NewPostgresCartRepository(q, logger),
		orders:   NewPostgresOrderRepository(q, logger),
	}
}

func (r *postgresRepositories) Users() domain.UserRepository       { return r.users }
func (r *postgresRepositories) Products() domain.ProductRepository { return r.products }
func (r *postgresRepositories) Carts() domain.CartRepository       { return r.carts }
func (r *postgresRepositories) Orders() domain.OrderRepository     { return r.orders }

type postgresStore struct {
	*postgresRepositories
	db          *sql.DB
	lockTimeout time.Duration
	log         *logrus.Logger
}

// NewPostgresStore returns a unit of work over db. lockTimeout bounds every row-lock wait
// inside WithinTx; zero leaves the server default.
func NewPostgresStore(db *sql.DB, lockTimeout time.Duration, logger *logrus.Logger) domain.UnitOfWork {
	return &postgresStore{
		postgresRepositories: newPostgresRepositories(db, logger),
		db:                   db,
		lockTimeout:          lockTimeout,
		log:                  logger,
	}
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(repos domain.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.log.Errorf("Repository: Failed to begin transaction: %v", err)
		return translate(err, "could not start transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("Repository: Recovered from panic, rolling back transaction")
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.log.Errorf("Repository: Failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	if s.lockTimeout > 0 {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			s.log.Errorf("Repository: Failed to set lock timeout: %v", err)
			return translate(err, "could not configure transaction")
		}
	}

	if err = fn(newPostgresRepositories(tx, s.log)); err != nil {
		s.log.Debugf("Repository: Rolling back transaction: %v", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		s.log.Errorf("Repository: Failed to commit transaction: %v", err)
		return translate(err, "could not commit transaction")
	}
	return nil
}
