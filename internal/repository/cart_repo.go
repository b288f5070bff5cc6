package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

type postgresCartRepository struct {
	db  querier
	log *logrus.Logger
}

func NewPostgresCartRepository(db querier, logger *logrus.Logger) domain.CartRepository {
	return &postgresCartRepository{
		db:  db,
		log: logger,
	}
}

func (r *postgresCartRepository) GetOrCreateCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := r.findCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		// A concurrent first access may win the insert; DO NOTHING keeps the
		// transaction usable and the re-read below returns the winner's cart.
		insert := `
            INSERT INTO carts (user_id)
            VALUES ($1)
            ON CONFLICT (user_id) DO NOTHING`
		if _, err := r.db.ExecContext(ctx, insert, userID); err != nil {
			if code, ok := pqCode(err); ok && code == pqForeignKeyViolation {
				r.log.Warnf("Repository: Cannot create cart for non-existent user %d", userID)
				return nil, domain.NotFound("user with id %d not found", userID)
			}
			r.log.Errorf("Repository: Failed to create cart for user %d: %v", userID, err)
			return nil, translate(err, "could not create cart")
		}
		if cart, err = r.findCart(ctx, userID); err != nil {
			return nil, err
		}
		if cart == nil {
			return nil, domain.Unexpected(nil, "cart for user %d vanished after creation", userID)
		}
		r.log.Infof("Repository: Cart %d created for user %d", cart.ID, userID)
	}

	lines, err := r.listLines(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Lines = lines
	return cart, nil
}

func (r *postgresCartRepository) findCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	query := `
        SELECT id, user_id, created_at
        FROM carts
        WHERE user_id = $1`
	cart := &domain.Cart{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Errorf("Repository: Failed to get cart for user %d: %v", userID, err)
		return nil, translate(err, "could not get cart")
	}
	return cart, nil
}

func (r *postgresCartRepository) listLines(ctx context.Context, cartID int64) ([]domain.CartLine, error) {
	query := `
        SELECT ci.id, ci.cart_id, ci.product_id, p.name, p.price, ci.quantity
        FROM cart_items ci
        JOIN products p ON p.id = ci.product_id
        WHERE ci.cart_id = $1
        ORDER BY ci.id`
	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		r.log.Errorf("Repository: Failed to query lines of cart %d: %v", cartID, err)
		return nil, translate(err, "could not retrieve cart items")
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.ProductName, &l.UnitPrice, &l.Quantity); err != nil {
			r.log.Errorf("Repository: Failed to scan cart line of cart %d: %v", cartID, err)
			return nil, translate(err, "could not scan cart item")
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "error iterating cart items")
	}
	return lines, nil
}

func (r *postgresCartRepository) LockCart(ctx context.Context, cartID int64) error {
	query := `SELECT id FROM carts WHERE id = $1 FOR UPDATE`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, cartID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("cart with id %d not found", cartID)
		}
		r.log.Errorf("Repository: Failed to lock cart %d: %v", cartID, err)
		return translate(err, "could not lock cart %d", cartID)
	}
	return nil
}

func (r *postgresCartRepository) AddLine(ctx context.Context, cartID, productID int64, quantity int) error {
	query := `
        INSERT INTO cart_items (cart_id, product_id, quantity)
        VALUES ($1, $2, $3)
        ON CONFLICT (cart_id, product_id)
        DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`
	if _, err := r.db.ExecContext(ctx, query, cartID, productID, quantity); err != nil {
		if code, ok := pqCode(err); ok && code == pqForeignKeyViolation {
			r.log.Warnf("Repository: Attempted to add non-existent product %d to cart %d", productID, cartID)
			return domain.NotFound("product with id %d not found", productID)
		}
		r.log.Errorf("Repository: Failed to add product %d to cart %d: %v", productID, cartID, err)
		return translate(err, "could not add item to cart")
	}
	return nil
}

func (r *postgresCartRepository) UpdateLineQuantity(ctx context.Context, cartID, lineID int64, quantity int) error {
	query := `UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3`
	result, err := r.db.ExecContext(ctx, query, quantity, lineID, cartID)
	if err != nil {
		r.log.Errorf("Repository: Failed to update cart line %d: %v", lineID, err)
		return translate(err, "could not update cart item")
	}
	return r.expectOneRow(result, lineID)
}

func (r *postgresCartRepository) RemoveLine(ctx context.Context, cartID, lineID int64) error {
	query := `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`
	result, err := r.db.ExecContext(ctx, query, lineID, cartID)
	if err != nil {
		r.log.Errorf("Repository: Failed to remove cart line %d: %v", lineID, err)
		return translate(err, "could not remove cart item")
	}
	return r.expectOneRow(result, lineID)
}

func (r *postgresCartRepository) expectOneRow(result sql.Result, lineID int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return translate(err, "could not confirm cart item change")
	}
	if affected == 0 {
		r.log.Warnf("Repository: Cart item %d not found in cart", lineID)
		return domain.NotFound("cart item with id %d not found", lineID)
	}
	return nil
}

func (r *postgresCartRepository) ClearCart(ctx context.Context, cartID int64) error {
	query := `DELETE FROM cart_items WHERE cart_id = $1`
	if _, err := r.db.ExecContext(ctx, query, cartID); err != nil {
		r.log.Errorf("Repository: Failed to clear cart %d: %v", cartID, err)
		return translate(err, "could not clear cart")
	}
	r.log.Infof("Repository: Cart %d cleared", cartID)
	return nil
}
