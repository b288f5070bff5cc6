package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

var _ domain.OrderUseCase = (*orderUseCase)(nil)

type orderUseCase struct {
	store       domain.UnitOfWork
	ledger      *InventoryLedger
	events      domain.OrderEventPublisher
	idempotency domain.IdempotencyStore
	timeout     time.Duration
	now         func() time.Time
	log         *logrus.Logger
}

// NewOrderUseCase wires the cart-to-order coordinator. placeTimeout bounds one placement
// transaction independently of the caller's context.
func NewOrderUseCase(
	store domain.UnitOfWork,
	ledger *InventoryLedger,
	events domain.OrderEventPublisher,
	idempotency domain.IdempotencyStore,
	placeTimeout time.Duration,
	logger *logrus.Logger,
) domain.OrderUseCase {
	return &orderUseCase{
		store:       store,
		ledger:      ledger,
		events:      events,
		idempotency: idempotency,
		timeout:     placeTimeout,
		now:         time.Now,
		log:         logger,
	}
}

func (uc *orderUseCase) PlaceOrder(ctx context.Context, userID int64, input domain.PlaceOrderInput) (*domain.Order, bool, error) {
	address := strings.TrimSpace(input.ShippingAddress)
	if address == "" {
		return nil, false, domain.InvalidState("shipping address is required")
	}
	if utf8.RuneCountInString(address) > domain.MaxShippingAddressLen {
		return nil, false, domain.InvalidState("shipping address must be at most %d characters", domain.MaxShippingAddressLen)
	}

	idemKey := ""
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
		idemKey = fmt.Sprintf("%d:%s", userID, key)
		existingID, claimed, err := uc.idempotency.Reserve(ctx, idemKey)
		if err != nil {
			return nil, false, err
		}
		if !claimed {
			uc.log.Infof("Use Case: Replaying order %d for idempotency key of user %d", existingID, userID)
			order, err := uc.store.Orders().GetOrderByID(ctx, existingID)
			if err != nil {
				return nil, false, err
			}
			if order.UserID != userID {
				return nil, false, domain.Conflict(nil, "idempotency key already used")
			}
			return order, true, nil
		}
	}

	// The transaction outlives a disconnecting caller so it always ends in commit or rollback.
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.timeout)
	defer cancel()

	order, err := uc.placeOrder(txCtx, userID, address, input)
	if err != nil {
		uc.log.Warnf("Use Case: Order placement for user %d failed: %v", userID, err)
		if idemKey != "" {
			if relErr := uc.idempotency.Release(txCtx, idemKey); relErr != nil {
				uc.log.Errorf("Use Case: Failed to release idempotency key for user %d: %v", userID, relErr)
			}
		}
		return nil, false, err
	}
	uc.log.Infof("Use Case: Order %d placed for user %d, total %s", order.ID, userID, order.TotalAmount.StringFixed(2))

	uc.publish(txCtx, domain.EventOrderPlaced, order)
	if idemKey != "" {
		uc.completeKey(txCtx, idemKey, order.ID)
	}
	return order, false, nil
}

const completeAttempts = 3

// completeKey records orderID under key. If every attempt fails the pending marker stays
// until its own expiry, and retries with the key are refused until then.
func (uc *orderUseCase) completeKey(ctx context.Context, key string, orderID int64) {
	for attempt := 1; ; attempt++ {
		err := uc.idempotency.Complete(ctx, key, orderID)
		if err == nil {
			return
		}
		if attempt >= completeAttempts {
			uc.log.Errorf("Use Case: Failed to record idempotency key for order %d after %d attempts: %v", orderID, attempt, err)
			return
		}
		uc.log.Warnf("Use Case: Recording idempotency key for order %d failed (attempt %d): %v", orderID, attempt, err)
		if sleepCtx(ctx, 20*time.Millisecond*time.Duration(attempt)) != nil {
			uc.log.Errorf("Use Case: Gave up recording idempotency key for order %d: %v", orderID, ctx.Err())
			return
		}
	}
}

func (uc *orderUseCase) placeOrder(ctx context.Context, userID int64, address string, input domain.PlaceOrderInput) (*domain.Order, error) {
	var placed *domain.Order
	err := uc.store.WithinTx(ctx, func(repos domain.Repositories) error {
		user, err := repos.Users().GetUserByID(ctx, userID)
		if err != nil {
			return err
		}

		cart, err := repos.Carts().GetOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		if err := repos.Carts().LockCart(ctx, cart.ID); err != nil {
			return err
		}
		// Re-read under the lock so concurrent cart edits are either fully seen or wait.
		if cart, err = repos.Carts().GetOrCreateCart(ctx, userID); err != nil {
			return err
		}

		requested := input.Items
		if len(requested) == 0 {
			requested = cart.RequestedLines()
		}
		if len(requested) == 0 {
			return domain.ErrEmptyCart
		}

		reserved, err := uc.ledger.CheckAndReserve(ctx, repos.Products(), requested)
		if err != nil {
			return err
		}

		order := domain.NewPendingOrder(userID, address, strings.TrimSpace(input.PaymentRef), reserved, uc.now())
		created, err := repos.Orders().CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		created.User = *user

		if err := repos.Carts().ClearCart(ctx, cart.ID); err != nil {
			return err
		}
		placed = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	return placed, nil
}

func (uc *orderUseCase) GetOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	order, err := uc.store.Orders().GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		uc.log.Warnf("Use Case: User %d requested order %d owned by another user", userID, orderID)
		return nil, domain.NotFound("order with id %d not found", orderID)
	}
	return order, nil
}

func (uc *orderUseCase) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	return uc.store.Orders().ListOrdersByUserID(ctx, userID)
}

func (uc *orderUseCase) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	return uc.store.Orders().ListAllOrders(ctx)
}

func (uc *orderUseCase) ListShippingAddresses(ctx context.Context, userID int64) ([]string, error) {
	return uc.store.Orders().ListShippingAddresses(ctx, userID)
}

func (uc *orderUseCase) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error) {
	parsed, ok := domain.ParseOrderStatus(status)
	if !ok {
		return nil, domain.InvalidState("invalid order status %q", status)
	}
	order, err := uc.store.Orders().UpdateOrderStatus(ctx, orderID, parsed)
	if err != nil {
		return nil, err
	}
	uc.log.Infof("Use Case: Order %d status set to %s", orderID, parsed)
	uc.publish(ctx, domain.EventOrderStatusChanged, order)
	return order, nil
}

// publish never fails the operation; the state change it reports is already committed.
func (uc *orderUseCase) publish(ctx context.Context, eventType string, order *domain.Order) {
	event := domain.OrderEvent{
		Type:    eventType,
		OrderID: order.ID,
		UserID:  order.UserID,
		Status:  string(order.Status),
		Total:   order.TotalAmount.StringFixed(2),
	}
	if err := uc.events.Publish(ctx, event); err != nil {
		uc.log.Errorf("Use Case: Failed to publish %s for order %d: %v", eventType, order.ID, err)
	}
}
