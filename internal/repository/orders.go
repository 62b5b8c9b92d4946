package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/commerce-system/internal/model"
)

// OrderFilter описывает фильтры и пагинацию админского списка заказов.
type OrderFilter struct {
	Page          int
	Limit         int
	OrderID       *int64
	Status        *model.OrderStatus
	PaymentMethod *model.PaymentMethod
	UserID        *string
	StartDate     *time.Time
	EndDate       *time.Time
	SortAsc       bool
}

const orderColumns = `id, user_id, subtotal, discount, shipping_cost, total, status,
	payment_method, payment_reference, shipping_address, coupon_code,
	approved_by_user_id, approved_at, created_at, updated_at`

// InsertOrder сохраняет заказ внутри транзакции tx и возвращает его номер.
func (r *Repository) InsertOrder(ctx context.Context, tx pgx.Tx, o *model.Order) (int64, error) {
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return 0, fmt.Errorf("marshal shipping address: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders
		     (user_id, subtotal, discount, shipping_cost, total, status,
		      payment_method, payment_reference, shipping_address, coupon_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		o.UserID, o.Subtotal, o.Discount, o.ShippingCost, o.Total, string(o.Status),
		string(o.PaymentMethod), o.PaymentReference, address, o.CouponCode,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	return id, nil
}

// InsertOrderItems сохраняет снимки позиций заказа внутри транзакции tx.
func (r *Repository) InsertOrderItems(ctx context.Context, tx pgx.Tx, orderID int64, items []model.OrderItem) error {
	for _, item := range items {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_items
			     (id, order_id, product_id, product_name, price_at_purchase, quantity,
			      selected_color, selected_size, variant_id, variant_label, image_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			uuid.NewString(), orderID, item.ProductID, item.ProductName, item.PriceAtPurchase,
			item.Quantity, item.SelectedColor, item.SelectedSize, item.VariantID,
			item.VariantLabel, item.ImageURL,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// InsertStatusHistory добавляет запись аудита о переходе статуса внутри транзакции tx.
func (r *Repository) InsertStatusHistory(ctx context.Context, tx pgx.Tx, h *model.OrderStatusHistory) error {
	var prev *string
	if h.PreviousStatus != nil {
		s := string(*h.PreviousStatus)
		prev = &s
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO order_status_history
		     (id, order_id, previous_status, new_status, changed_by_user_id, reason)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), h.OrderID, prev, string(h.NewStatus), h.ChangedByUserID, h.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// GetOrderByID возвращает заказ без позиций.
func (r *Repository) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		orderID,
	)
	return scanOrder(row)
}

// GetOrderForUpdate читает заказ под эксклюзивной блокировкой строки внутри tx.
// Используется переходами статусов, чтобы два параллельных перехода не прочитали
// один и тот же исходный статус.
func (r *Repository) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*model.Order, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	)
	return scanOrder(row)
}

// GetOrderByPaymentReference возвращает заказ по платёжному reference.
func (r *Repository) GetOrderByPaymentReference(ctx context.Context, reference string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`,
		reference,
	)
	return scanOrder(row)
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status, method string
	var address []byte

	err := row.Scan(&o.ID, &o.UserID, &o.Subtotal, &o.Discount, &o.ShippingCost, &o.Total,
		&status, &method, &o.PaymentReference, &address, &o.CouponCode,
		&o.ApprovedByUserID, &o.ApprovedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Status = model.OrderStatus(status)
	o.PaymentMethod = model.PaymentMethod(method)

	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}

	return &o, nil
}

// GetOrderItems возвращает позиции заказа.
func (r *Repository) GetOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, product_name, price_at_purchase, quantity,
		        selected_color, selected_size, variant_id, variant_label, image_url
		 FROM order_items
		 WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.PriceAtPurchase, &item.Quantity, &item.SelectedColor, &item.SelectedSize,
			&item.VariantID, &item.VariantLabel, &item.ImageURL); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// UpdateOrderStatus записывает новый статус заказа внутри транзакции tx.
func (r *Repository) UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID int64, status model.OrderStatus) error {
	cmdTag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		orderID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetOrderApproval фиксирует администратора и время ручного подтверждения оплаты.
func (r *Repository) SetOrderApproval(ctx context.Context, tx pgx.Tx, orderID int64, adminID string, at time.Time) error {
	cmdTag, err := tx.Exec(ctx,
		`UPDATE orders SET approved_by_user_id = $2, approved_at = $3, updated_at = now() WHERE id = $1`,
		orderID, adminID, at,
	)
	if err != nil {
		return fmt.Errorf("set order approval: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListOrdersByUser возвращает заказы пользователя с позициями, новые первыми.
func (r *Repository) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := r.GetOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// ListOrders возвращает страницу заказов по фильтру и общее число совпадений.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, int, error) {
	var where []string
	var args []any

	addCond := func(cond string, value any) {
		args = append(args, value)
		where = append(where, cond+"$"+strconv.Itoa(len(args)))
	}

	if filter.OrderID != nil {
		addCond("id = ", *filter.OrderID)
	}
	if filter.Status != nil {
		addCond("status = ", string(*filter.Status))
	}
	if filter.PaymentMethod != nil {
		addCond("payment_method = ", string(*filter.PaymentMethod))
	}
	if filter.UserID != nil {
		addCond("user_id = ", *filter.UserID)
	}
	if filter.StartDate != nil {
		addCond("created_at >= ", *filter.StartDate)
	}
	if filter.EndDate != nil {
		// Конец дня включительно
		end := filter.EndDate.Truncate(24 * time.Hour).Add(24*time.Hour - time.Microsecond)
		addCond("created_at <= ", end)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	direction := "DESC"
	if filter.SortAsc {
		direction = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 10
	}

	args = append(args, limit, (page-1)*limit)
	query := `SELECT ` + orderColumns + ` FROM orders` + whereClause +
		` ORDER BY created_at ` + direction +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// GetStatusHistory возвращает журнал переходов статуса заказа, новые записи первыми.
func (r *Repository) GetStatusHistory(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, previous_status, new_status, changed_by_user_id, reason, created_at
		 FROM order_status_history
		 WHERE order_id = $1
		 ORDER BY created_at DESC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select status history: %w", err)
	}
	defer rows.Close()

	var res []model.OrderStatusHistory
	for rows.Next() {
		var h model.OrderStatusHistory
		var prev *string
		var newStatus string

		if err := rows.Scan(&h.ID, &h.OrderID, &prev, &newStatus, &h.ChangedByUserID, &h.Reason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}

		if prev != nil {
			s := model.OrderStatus(*prev)
			h.PreviousStatus = &s
		}
		h.NewStatus = model.OrderStatus(newStatus)
		res = append(res, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
