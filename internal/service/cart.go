package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/commerce-system/internal/model"
)

// ErrInvalidQuantity возвращается при неположительном количестве товара.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// CartStore описывает контракт доступа к данным корзины.
type CartStore interface {
	GetOrCreateCart(ctx context.Context, userID string) (*model.Cart, error)
	UpsertCartItem(ctx context.Context, item *model.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error
	DeleteCartItem(ctx context.Context, cartID, itemID string) error
}

// CartService управляет корзиной пользователя.
type CartService struct {
	store  CartStore
	logger *zap.Logger
}

// NewCartService создаёт сервис корзины.
func NewCartService(store CartStore, logger *zap.Logger) *CartService {
	return &CartService{store: store, logger: logger}
}

// GetCart возвращает корзину пользователя, создавая её при первом обращении.
func (s *CartService) GetCart(ctx context.Context, userID string) (*model.Cart, error) {
	return s.store.GetOrCreateCart(ctx, userID)
}

// AddItem добавляет позицию в корзину. Совпадающая позиция (тот же товар,
// вариант, цвет и размер) сливается: количества складываются.
func (s *CartService) AddItem(ctx context.Context, userID string, item model.CartItem) (*model.Cart, error) {
	if item.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	cart, err := s.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	item.CartID = cart.ID
	if err := s.store.UpsertCartItem(ctx, &item); err != nil {
		return nil, err
	}

	return s.store.GetOrCreateCart(ctx, userID)
}

// UpdateItemQuantity выставляет количество позиции. Нулевое количество
// удаляет позицию.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, itemID string, quantity int) (*model.Cart, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	cart, err := s.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	if quantity == 0 {
		err = s.store.DeleteCartItem(ctx, cart.ID, itemID)
	} else {
		err = s.store.UpdateCartItemQuantity(ctx, cart.ID, itemID, quantity)
	}
	if err != nil {
		return nil, err
	}

	return s.store.GetOrCreateCart(ctx, userID)
}

// RemoveItem убирает позицию из корзины.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (*model.Cart, error) {
	cart, err := s.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteCartItem(ctx, cart.ID, itemID); err != nil {
		return nil, err
	}

	return s.store.GetOrCreateCart(ctx, userID)
}
