package usecase

import (
	"context"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

var _ domain.CartUseCase = (*cartUseCase)(nil)

type cartUseCase struct {
	store domain.UnitOfWork
	log   *logrus.Logger
}

func NewCartUseCase(store domain.UnitOfWork, logger *logrus.Logger) domain.CartUseCase {
	return &cartUseCase{
		store: store,
		log:   logger,
	}
}

func (uc *cartUseCase) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	var cart *domain.Cart
	err := uc.store.WithinTx(ctx, func(repos domain.Repositories) error {
		var err error
		cart, err = repos.Carts().GetOrCreateCart(ctx, userID)
		return err
	})
	if err != nil {
		uc.log.Warnf("Use Case: Failed to load cart for user %d: %v", userID, err)
		return nil, err
	}
	return cart, nil
}

func (uc *cartUseCase) AddItem(ctx context.Context, userID, productID int64, quantity int) (*domain.Cart, error) {
	if err := checkCartQuantity(quantity); err != nil {
		return nil, err
	}
	uc.log.Infof("Use Case: Adding product %d (quantity %d) to cart of user %d", productID, quantity, userID)
	return uc.mutate(ctx, userID, func(repos domain.Repositories, cart *domain.Cart) error {
		if _, err := repos.Products().GetProductByID(ctx, productID); err != nil {
			return err
		}
		return repos.Carts().AddLine(ctx, cart.ID, productID, quantity)
	})
}

func (uc *cartUseCase) UpdateItemQuantity(ctx context.Context, userID, lineID int64, quantity int) (*domain.Cart, error) {
	if err := checkCartQuantity(quantity); err != nil {
		return nil, err
	}
	uc.log.Infof("Use Case: Setting cart item %d of user %d to quantity %d", lineID, userID, quantity)
	return uc.mutate(ctx, userID, func(repos domain.Repositories, cart *domain.Cart) error {
		return repos.Carts().UpdateLineQuantity(ctx, cart.ID, lineID, quantity)
	})
}

func (uc *cartUseCase) RemoveItem(ctx context.Context, userID, lineID int64) (*domain.Cart, error) {
	uc.log.Infof("Use Case: Removing cart item %d of user %d", lineID, userID)
	return uc.mutate(ctx, userID, func(repos domain.Repositories, cart *domain.Cart) error {
		return repos.Carts().RemoveLine(ctx, cart.ID, lineID)
	})
}

// mutate applies change to the caller's own locked cart and returns the cart as committed.
// Line ids are always scoped by the caller's cart id, so another user's line reads as not found.
func (uc *cartUseCase) mutate(ctx context.Context, userID int64, change func(domain.Repositories, *domain.Cart) error) (*domain.Cart, error) {
	var cart *domain.Cart
	err := uc.store.WithinTx(ctx, func(repos domain.Repositories) error {
		current, err := repos.Carts().GetOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		if err := repos.Carts().LockCart(ctx, current.ID); err != nil {
			return err
		}
		if err := change(repos, current); err != nil {
			return err
		}
		cart, err = repos.Carts().GetOrCreateCart(ctx, userID)
		return err
	})
	if err != nil {
		uc.log.Warnf("Use Case: Cart change for user %d failed: %v", userID, err)
		return nil, err
	}
	return cart, nil
}

func checkCartQuantity(quantity int) error {
	if quantity < 1 {
		return domain.InvalidState("quantity must be at least 1")
	}
	if quantity > domain.MaxLineQuantity {
		return domain.InvalidState("quantity must be at most %d", domain.MaxLineQuantity)
	}
	return nil
}
