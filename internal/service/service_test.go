package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/commerce-system/internal/model"
	"github.com/mmeshcher/commerce-system/internal/repository"
)

// memStore — общее для тестов in-memory хранилище, реализующее контракты
// всех сервисов. Транзакции выполняются как прямые вызовы.
type memStore struct {
	users        map[string]*model.User
	transactions []model.CreditTransaction
	intents      map[string]*model.PaymentIntent
	coupons      map[string]*model.Coupon
	couponUsages []model.CouponUsage
	carts        map[string]*model.Cart
	orders       map[int64]*model.Order
	orderItems   map[int64][]model.OrderItem
	history      map[int64][]model.OrderStatusHistory
	nextOrderID  int64
	nextID       int
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*model.User),
		intents: make(map[string]*model.PaymentIntent),
		coupons: make(map[string]*model.Coupon),
		carts:   make(map[string]*model.Cart),
		orders:  make(map[int64]*model.Order),
		orderItems: make(map[int64][]model.OrderItem),
		history: make(map[int64][]model.OrderStatusHistory),
	}
}

func (m *memStore) newID() string {
	m.nextID++
	return "id-" + strconv.Itoa(m.nextID)
}

func (m *memStore) addUser(id string, purchase, design int64) *model.User {
	u := &model.User{ID: id, Login: id + "@test", Role: model.RoleClient,
		PurchaseCredits: purchase, DesignCredits: design}
	m.users[id] = u
	return u
}

func (m *memStore) addCart(userID string, items ...model.CartItem) *model.Cart {
	cart := &model.Cart{ID: "cart-" + userID, UserID: userID, Items: items}
	for _, it := range items {
		cart.Subtotal += it.Total()
	}
	m.carts[userID] = cart
	return cart
}

func (m *memStore) WithinTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (m *memStore) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (string, error) {
	for _, u := range m.users {
		if u.Login == login {
			return "", repository.ErrUserExists
		}
	}
	id := m.newID()
	m.users[id] = &model.User{ID: id, Login: login, PasswordHash: passwordHash, Role: role}
	return id, nil
}

func (m *memStore) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	for _, u := range m.users {
		if u.Login == login {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *memStore) GetBalances(ctx context.Context, userID string) (*model.Balances, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &model.Balances{DesignCredits: u.DesignCredits, PurchaseCredits: u.PurchaseCredits}, nil
}

func (m *memStore) LockBalances(ctx context.Context, tx pgx.Tx, userID string) (*model.Balances, error) {
	return m.GetBalances(ctx, userID)
}

func (m *memStore) UpdateBalance(ctx context.Context, tx pgx.Tx, userID string, creditType model.CreditType, newBalance int64) error {
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if creditType == model.CreditTypeDesign {
		u.DesignCredits = newBalance
	} else {
		u.PurchaseCredits = newBalance
	}
	return nil
}

func (m *memStore) InsertCreditTransaction(ctx context.Context, tx pgx.Tx, t *model.CreditTransaction) (string, error) {
	if t.ReferenceID != nil {
		for _, existing := range m.transactions {
			if existing.ReferenceID != nil && *existing.ReferenceID == *t.ReferenceID {
				return "", repository.ErrDuplicateReference
			}
		}
	}
	t.ID = m.newID()
	t.CreatedAt = time.Now()
	m.transactions = append(m.transactions, *t)
	return t.ID, nil
}

func (m *memStore) GetCreditTransactionByReference(ctx context.Context, reference string) (*model.CreditTransaction, error) {
	for i := range m.transactions {
		if m.transactions[i].ReferenceID != nil && *m.transactions[i].ReferenceID == reference {
			return &m.transactions[i], nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (m *memStore) GetCreditHistory(ctx context.Context, userID string, creditType *model.CreditType) ([]model.CreditTransaction, error) {
	var res []model.CreditTransaction
	for _, t := range m.transactions {
		if t.UserID != userID {
			continue
		}
		if creditType != nil && t.CreditType != *creditType {
			continue
		}
		res = append(res, t)
	}
	return res, nil
}

func (m *memStore) CreatePaymentIntent(ctx context.Context, intent *model.PaymentIntent) error {
	m.intents[intent.Reference] = intent
	return nil
}

func (m *memStore) GetPaymentIntent(ctx context.Context, reference string) (*model.PaymentIntent, error) {
	intent, ok := m.intents[reference]
	if !ok {
		return nil, repository.ErrIntentNotFound
	}
	return intent, nil
}

func (m *memStore) CreateCoupon(ctx context.Context, c *model.Coupon) (string, error) {
	if _, ok := m.coupons[c.Code]; ok {
		return "", repository.ErrCouponCodeTaken
	}
	c.ID = m.newID()
	m.coupons[c.Code] = c
	return c.ID, nil
}

func (m *memStore) GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return nil, repository.ErrCouponNotFound
	}
	return c, nil
}

func (m *memStore) SetCouponActive(ctx context.Context, couponID string, active bool) error {
	for _, c := range m.coupons {
		if c.ID == couponID {
			c.IsActive = active
			return nil
		}
	}
	return repository.ErrCouponNotFound
}

func (m *memStore) CountCouponUsages(ctx context.Context, couponID, userID string) (int, error) {
	count := 0
	for _, u := range m.couponUsages {
		if u.CouponID == couponID && u.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) InsertCouponUsage(ctx context.Context, tx pgx.Tx, usage *model.CouponUsage) error {
	usage.ID = m.newID()
	m.couponUsages = append(m.couponUsages, *usage)
	return nil
}

func (m *memStore) IncrementCouponUsed(ctx context.Context, tx pgx.Tx, couponID string) error {
	for _, c := range m.coupons {
		if c.ID == couponID {
			c.UsedCount++
			return nil
		}
	}
	return repository.ErrCouponNotFound
}

func (m *memStore) GetOrCreateCart(ctx context.Context, userID string) (*model.Cart, error) {
	cart, ok := m.carts[userID]
	if !ok {
		cart = &model.Cart{ID: "cart-" + userID, UserID: userID}
		m.carts[userID] = cart
	}
	cart.Subtotal = 0
	for _, it := range cart.Items {
		cart.Subtotal += it.Total()
	}
	return cart, nil
}

func (m *memStore) UpsertCartItem(ctx context.Context, item *model.CartItem) error {
	for userID, cart := range m.carts {
		if cart.ID != item.CartID {
			continue
		}
		for i := range cart.Items {
			it := &cart.Items[i]
			if it.ProductID == item.ProductID && it.VariantID == item.VariantID &&
				it.SelectedColor == item.SelectedColor && it.SelectedSize == item.SelectedSize {
				it.Quantity += item.Quantity
				return nil
			}
		}
		item.ID = m.newID()
		cart.Items = append(cart.Items, *item)
		m.carts[userID] = cart
		return nil
	}
	return fmt.Errorf("cart %s not found", item.CartID)
}

func (m *memStore) UpdateCartItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error {
	for _, cart := range m.carts {
		if cart.ID != cartID {
			continue
		}
		for i := range cart.Items {
			if cart.Items[i].ID == itemID {
				cart.Items[i].Quantity = quantity
				return nil
			}
		}
	}
	return repository.ErrCartItemNotFound
}

func (m *memStore) DeleteCartItem(ctx context.Context, cartID, itemID string) error {
	for _, cart := range m.carts {
		if cart.ID != cartID {
			continue
		}
		for i := range cart.Items {
			if cart.Items[i].ID == itemID {
				cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
				return nil
			}
		}
	}
	return repository.ErrCartItemNotFound
}

func (m *memStore) DeleteCartItems(ctx context.Context, tx pgx.Tx, cartID string) error {
	for _, cart := range m.carts {
		if cart.ID == cartID {
			cart.Items = nil
		}
	}
	return nil
}

func (m *memStore) InsertOrder(ctx context.Context, tx pgx.Tx, o *model.Order) (int64, error) {
	m.nextOrderID++
	o.ID = m.nextOrderID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	clone := *o
	m.orders[o.ID] = &clone
	return o.ID, nil
}

func (m *memStore) InsertOrderItems(ctx context.Context, tx pgx.Tx, orderID int64, items []model.OrderItem) error {
	m.orderItems[orderID] = items
	return nil
}

func (m *memStore) InsertStatusHistory(ctx context.Context, tx pgx.Tx, h *model.OrderStatusHistory) error {
	h.ID = m.newID()
	h.CreatedAt = time.Now()
	m.history[h.OrderID] = append(m.history[h.OrderID], *h)
	return nil
}

func (m *memStore) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	clone := *o
	return &clone, nil
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*model.Order, error) {
	return m.GetOrderByID(ctx, orderID)
}

func (m *memStore) GetOrderByPaymentReference(ctx context.Context, reference string) (*model.Order, error) {
	for _, o := range m.orders {
		if o.PaymentReference == reference {
			clone := *o
			return &clone, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *memStore) GetOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return m.orderItems[orderID], nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID int64, status model.OrderStatus) error {
	o, ok := m.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) SetOrderApproval(ctx context.Context, tx pgx.Tx, orderID int64, adminID string, at time.Time) error {
	o, ok := m.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.ApprovedByUserID = &adminID
	o.ApprovedAt = &at
	return nil
}

func (m *memStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	var res []model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (m *memStore) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, int, error) {
	var res []model.Order
	for _, o := range m.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		res = append(res, *o)
	}
	return res, len(res), nil
}

func (m *memStore) GetStatusHistory(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error) {
	return m.history[orderID], nil
}

// stubGateway — заглушка платёжного шлюза для тестов.
type stubGateway struct{}

func (stubGateway) GenerateSignature(reference string, amountInCents int64, currency string) string {
	return "test-signature"
}

func (stubGateway) PublicKey() string { return "pub_test_key" }

func testLogger() *zap.Logger { return zap.NewNop() }

func newTestCredits(store *memStore) *CreditsService {
	return NewCreditsService(store, stubGateway{}, zap.NewNop())
}

func newTestUsers(store *memStore) *UsersService {
	return NewUsersService(store, zap.NewNop())
}

func newTestCoupons(store *memStore) *CouponsService {
	return NewCouponsService(store, newTestCredits(store), zap.NewNop())
}

func newTestOrders(store *memStore) *OrdersService {
	credits := newTestCredits(store)
	coupons := NewCouponsService(store, credits, zap.NewNop())
	return NewOrdersService(store, credits, coupons, stubGateway{}, nil, "medellin", zap.NewNop())
}
