package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

type postgresProductRepository struct {
	db  querier
	log *logrus.Logger
}

func NewPostgresProductRepository(db querier, logger *logrus.Logger) domain.ProductRepository {
	return &postgresProductRepository{
		db:  db,
		log: logger,
	}
}

func (r *postgresProductRepository) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
        SELECT id, name, price, stock, version
        FROM products
        WHERE id = $1`
	product := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.Stock,
		&product.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Warnf("Repository: Product with ID %d not found", id)
			return nil, domain.NotFound("product with id %d not found", id)
		}
		r.log.Errorf("Repository: Failed to get product by ID %d: %v", id, err)
		return nil, translate(err, "could not get product by id")
	}
	return product, nil
}

func (r *postgresProductRepository) GetStock(ctx context.Context, ids []int64) ([]domain.StockRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
        SELECT id, name, price, stock, version
        FROM products
        WHERE id = ANY($1)
        ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		r.log.Errorf("Repository: Failed to read stock for products %v: %v", ids, err)
		return nil, translate(err, "could not read stock")
	}
	defer rows.Close()

	records := make([]domain.StockRecord, 0, len(ids))
	for rows.Next() {
		var rec domain.StockRecord
		if err := rows.Scan(&rec.ProductID, &rec.Name, &rec.Price, &rec.Stock, &rec.Version); err != nil {
			r.log.Errorf("Repository: Failed to scan stock row: %v", err)
			return nil, translate(err, "could not scan stock")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		r.log.Errorf("Repository: Error iterating stock rows: %v", err)
		return nil, translate(err, "error iterating stock")
	}
	return records, nil
}

func (r *postgresProductRepository) DecrementStock(ctx context.Context, id int64, quantity int, expectedVersion int64) (*domain.StockRecord, error) {
	query := `
        UPDATE products
        SET stock = stock - $1, version = version + 1
        WHERE id = $2 AND version = $3 AND stock >= $1
        RETURNING id, name, price, stock, version`
	rec := &domain.StockRecord{}
	err := r.db.QueryRowContext(ctx, query, quantity, id, expectedVersion).Scan(
		&rec.ProductID,
		&rec.Name,
		&rec.Price,
		&rec.Stock,
		&rec.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Debugf("Repository: Conditional decrement missed for product %d at version %d", id, expectedVersion)
			return nil, nil
		}
		r.log.Errorf("Repository: Failed to decrement stock of product %d by %d: %v", id, quantity, err)
		return nil, translate(err, "could not decrement stock of product %d", id)
	}
	return rec, nil
}
