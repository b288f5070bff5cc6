package repository

import (
	"context"
	"errors"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

const orderSelect = `
        SELECT o.id, o.user_id, o.order_date, o.total_amount, o.status, o.shipping_address, o.payment_ref,
               u.id, u.first_name, u.last_name, u.email, u.role
        FROM orders o
        JOIN users u ON u.id = o.user_id`

const orderNewestFirst = ` ORDER BY o.order_date DESC, o.id DESC`

type postgresOrderRepository struct {
	db  querier
	log *logrus.Logger
}

func NewPostgresOrderRepository(db querier, logger *logrus.Logger) domain.OrderRepository {
	return &postgresOrderRepository{
		db:  db,
		log: logger,
	}
}

func (r *postgresOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if len(order.Lines) == 0 {
		return nil, domain.InvalidState("order must contain at least one item")
	}
	if !order.TotalAmount.Equal(domain.SumLines(order.Lines)) {
		r.log.Errorf("Repository: Order total %s does not match its lines for user %d", order.TotalAmount, order.UserID)
		return nil, domain.InvalidState("order total %s does not match the sum of its items", order.TotalAmount.StringFixed(2))
	}

	orderQuery := `
        INSERT INTO orders (user_id, order_date, total_amount, status, shipping_address, payment_ref)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id`
	err := r.db.QueryRowContext(ctx, orderQuery,
		order.UserID,
		order.OrderDate,
		order.TotalAmount,
		order.Status,
		order.ShippingAddress,
		order.PaymentRef,
	).Scan(&order.ID)
	if err != nil {
		r.log.Errorf("Repository: Failed to insert order for user %d: %v", order.UserID, err)
		return nil, translate(err, "could not create order entry")
	}

	itemQuery := `
        INSERT INTO order_items (order_id, product_id, quantity, price)
        VALUES ($1, $2, $3, $4)
        RETURNING id`
	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		err := r.db.QueryRowContext(ctx, itemQuery, order.ID, line.ProductID, line.Quantity, line.Price).Scan(&line.ID)
		if err != nil {
			r.log.Errorf("Repository: Failed to insert order item (product_id: %d, quantity: %d) for order %d: %v",
				line.ProductID, line.Quantity, order.ID, err)
			return nil, translate(err, "could not create order item (product_id: %d)", line.ProductID)
		}
	}

	r.log.Infof("Repository: Order %d created with %d items", order.ID, len(order.Lines))
	return order, nil
}

func (r *postgresOrderRepository) GetOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	orders, err := r.queryOrders(ctx, orderSelect+` WHERE o.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		r.log.Warnf("Repository: Order with ID %d not found", id)
		return nil, domain.NotFound("order with id %d not found", id)
	}
	return &orders[0], nil
}

func (r *postgresOrderRepository) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) (*domain.Order, error) {
	query := `UPDATE orders SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		r.log.Errorf("Repository: Failed to update status for order %d: %v", id, err)
		return nil, translate(err, "could not update order status")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, translate(err, "could not confirm order status update")
	}
	if affected == 0 {
		r.log.Warnf("Repository: Order with ID %d not found for status update", id)
		return nil, domain.NotFound("order with id %d not found", id)
	}
	r.log.Infof("Repository: Order %d status updated to %s", id, status)
	return r.GetOrderByID(ctx, id)
}

func (r *postgresOrderRepository) ListOrdersByUserID(ctx context.Context, userID int64) ([]domain.Order, error) {
	return r.queryOrders(ctx, orderSelect+` WHERE o.user_id = $1`+orderNewestFirst, userID)
}

func (r *postgresOrderRepository) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	return r.queryOrders(ctx, orderSelect+orderNewestFirst)
}

func (r *postgresOrderRepository) ListShippingAddresses(ctx context.Context, userID int64) ([]string, error) {
	query := `
        SELECT shipping_address
        FROM orders
        WHERE user_id = $1
        GROUP BY shipping_address
        ORDER BY MAX(order_date) DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.log.Errorf("Repository: Failed to list shipping addresses for user %d: %v", userID, err)
		return nil, translate(err, "could not list shipping addresses")
	}
	defer rows.Close()

	addresses := []string{}
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, translate(err, "could not scan shipping address")
		}
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "error iterating shipping addresses")
	}
	return addresses, nil
}

// queryOrders runs an orderSelect query and attaches every order's lines with one extra query.
func (r *postgresOrderRepository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Errorf("Repository: Failed to query orders: %v", err)
		return nil, translate(err, "could not retrieve orders")
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.OrderDate, &o.TotalAmount, &o.Status, &o.ShippingAddress, &o.PaymentRef,
			&o.User.ID, &o.User.FirstName, &o.User.LastName, &o.User.Email, &o.User.Role,
		); err != nil {
			r.log.Errorf("Repository: Failed to scan order row: %v", err)
			return nil, translate(err, "could not scan order")
		}
		o.Lines = []domain.OrderLine{}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "error iterating orders")
	}
	// Release the connection before the second query; inside a transaction both share one.
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *postgresOrderRepository) attachLines(ctx context.Context, orders []domain.Order) error {
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	query := `
        SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.price
        FROM order_items oi
        JOIN products p ON p.id = oi.product_id
        WHERE oi.order_id = ANY($1)
        ORDER BY oi.order_id, oi.id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		r.log.Errorf("Repository: Failed to query order items for orders %v: %v", ids, err)
		return translate(err, "could not retrieve order items")
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.Price); err != nil {
			r.log.Errorf("Repository: Failed to scan order item: %v", err)
			return translate(err, "could not scan order item")
		}
		i, ok := index[l.OrderID]
		if !ok {
			return domain.Unexpected(errors.New("order item without order"), "order item %d references unknown order %d", l.ID, l.OrderID)
		}
		orders[i].Lines = append(orders[i].Lines, l)
	}
	if err := rows.Err(); err != nil {
		return translate(err, "error iterating order items")
	}
	return nil
}
