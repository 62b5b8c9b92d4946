package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/commerce-system/internal/model"
)

// GetOrCreateCart возвращает корзину пользователя с позициями, создавая пустую
// при первом обращении. Subtotal пересчитывается из позиций.
func (r *Repository) GetOrCreateCart(ctx context.Context, userID string) (*model.Cart, error) {
	var cart model.Cart

	err := r.pool.QueryRow(ctx,
		`INSERT INTO carts (id, user_id) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id, user_id`,
		uuid.NewString(), userID,
	).Scan(&cart.ID, &cart.UserID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, cart_id, product_id, product_name, price, quantity,
		        selected_color, selected_size, variant_id, variant_label, image_url
		 FROM cart_items
		 WHERE cart_id = $1
		 ORDER BY product_id`,
		cart.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.ProductName,
			&item.Price, &item.Quantity, &item.SelectedColor, &item.SelectedSize,
			&item.VariantID, &item.VariantLabel, &item.ImageURL); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
		cart.Subtotal += item.Total()
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &cart, nil
}

// UpsertCartItem добавляет позицию в корзину. При совпадении товара, варианта,
// цвета и размера количество складывается с существующей позицией.
func (r *Repository) UpsertCartItem(ctx context.Context, item *model.CartItem) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cart_items
		     (id, cart_id, product_id, product_name, price, quantity,
		      selected_color, selected_size, variant_id, variant_label, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (cart_id, product_id, variant_id, selected_color, selected_size)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		uuid.NewString(), item.CartID, item.ProductID, item.ProductName, item.Price,
		item.Quantity, item.SelectedColor, item.SelectedSize, item.VariantID,
		item.VariantLabel, item.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

// UpdateCartItemQuantity меняет количество позиции, принадлежащей корзине cartID.
func (r *Repository) UpdateCartItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE cart_items SET quantity = $3 WHERE id = $2 AND cart_id = $1`,
		cartID, itemID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

// DeleteCartItem удаляет позицию, принадлежащую корзине cartID.
func (r *Repository) DeleteCartItem(ctx context.Context, cartID, itemID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE id = $2 AND cart_id = $1`,
		cartID, itemID,
	)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

// DeleteCartItems очищает корзину внутри транзакции оформления заказа.
func (r *Repository) DeleteCartItems(ctx context.Context, tx pgx.Tx, cartID string) error {
	_, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}
