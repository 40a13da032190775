package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

type memTxKey struct{}

type memState struct {
	users      map[int64]model.User
	logins     map[string]int64
	nextUserID int64
	stock      map[string]model.StockItem
	codes      map[string]model.MenuCode
	orders     map[string]model.Order
	tracking   map[string]string
	reviews    map[string]model.Review
}

func newMemState() memState {
	return memState{
		users:    make(map[int64]model.User),
		logins:   make(map[string]int64),
		stock:    make(map[string]model.StockItem),
		codes:    make(map[string]model.MenuCode),
		orders:   make(map[string]model.Order),
		tracking: make(map[string]string),
		reviews:  make(map[string]model.Review),
	}
}

func (s memState) clone() memState {
	c := memState{
		users:      make(map[int64]model.User, len(s.users)),
		logins:     make(map[string]int64, len(s.logins)),
		nextUserID: s.nextUserID,
		stock:      make(map[string]model.StockItem, len(s.stock)),
		codes:      make(map[string]model.MenuCode, len(s.codes)),
		orders:     make(map[string]model.Order, len(s.orders)),
		tracking:   make(map[string]string, len(s.tracking)),
		reviews:    make(map[string]model.Review, len(s.reviews)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.logins {
		c.logins[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.codes {
		v.UsedBy = slices.Clone(v.UsedBy)
		c.codes[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.tracking {
		c.tracking[k] = v
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	return c
}

// MemoryRepository хранит данные в памяти процесса. Используется, когда DATABASE_URI не задан,
// и в тестах. Все операции сериализуются одним мьютексом, поэтому проверка и изменение
// остатка или счётчика кода выполняются атомарно.
type MemoryRepository struct {
	mu    sync.Mutex
	state memState
}

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState()}
}

func (r *MemoryRepository) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(memTxKey{}).(*MemoryRepository)
	return ok && owner == r
}

// lock захватывает мьютекс, если вызов не выполняется внутри InTx.
func (r *MemoryRepository) lock(ctx context.Context) func() {
	if r.inTx(ctx) {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

// InTx выполняет fn под эксклюзивной блокировкой. При ошибке все изменения,
// сделанные внутри fn, откатываются.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.state.clone()
	if err := fn(context.WithValue(ctx, memTxKey{}, r)); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

// Ping всегда успешен.
func (r *MemoryRepository) Ping(context.Context) error {
	return nil
}

// Close ничего не освобождает.
func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	defer r.lock(ctx)()

	if _, ok := r.state.logins[login]; ok {
		return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
	}
	r.state.nextUserID++
	id := r.state.nextUserID
	r.state.users[id] = model.User{
		ID:           id,
		Login:        login,
		PasswordHash: slices.Clone(passwordHash),
		Role:         role,
		CreatedAt:    time.Now(),
	}
	r.state.logins[login] = id
	return id, nil
}

func (r *MemoryRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	defer r.lock(ctx)()

	id, ok := r.state.logins[login]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := r.state.users[id]
	return &u, nil
}

func (r *MemoryRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	defer r.lock(ctx)()

	u, ok := r.state.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	defer r.lock(ctx)()

	res := make([]model.User, 0, len(r.state.users))
	for _, u := range r.state.users {
		res = append(res, u)
	}
	slices.SortFunc(res, func(a, b model.User) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

func (r *MemoryRepository) AddLoyaltyStamp(ctx context.Context, userID int64, threshold int) (model.LoyaltyAccount, bool, error) {
	defer r.lock(ctx)()

	u, ok := r.state.users[userID]
	if !ok {
		return model.LoyaltyAccount{}, false, ErrUserNotFound
	}
	acct, earned := u.Loyalty.Stamp(threshold)
	u.Loyalty = acct
	r.state.users[userID] = u
	return acct, earned, nil
}

func (r *MemoryRepository) AddRewardPoints(ctx context.Context, userID int64, points int) (model.LoyaltyAccount, error) {
	defer r.lock(ctx)()

	u, ok := r.state.users[userID]
	if !ok {
		return model.LoyaltyAccount{}, ErrUserNotFound
	}
	u.Loyalty.RewardPoints += points
	r.state.users[userID] = u
	return u.Loyalty, nil
}

func (r *MemoryRepository) GetStockItem(ctx context.Context, category model.Category, name string) (*model.StockItem, error) {
	defer r.lock(ctx)()

	item, ok := r.state.stock[model.StockKey(category, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrStockItemNotFound, model.StockKey(category, name))
	}
	return &item, nil
}

func sortStock(items []model.StockItem) {
	slices.SortFunc(items, func(a, b model.StockItem) int {
		if c := cmp.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
}

func (r *MemoryRepository) ListStock(ctx context.Context) ([]model.StockItem, error) {
	defer r.lock(ctx)()

	res := make([]model.StockItem, 0, len(r.state.stock))
	for _, item := range r.state.stock {
		res = append(res, item)
	}
	sortStock(res)
	return res, nil
}

func (r *MemoryRepository) ListLowStock(ctx context.Context) ([]model.StockItem, error) {
	defer r.lock(ctx)()

	var res []model.StockItem
	for _, item := range r.state.stock {
		if item.IsLow() {
			res = append(res, item)
		}
	}
	sortStock(res)
	return res, nil
}

func (r *MemoryRepository) IncrementStock(ctx context.Context, category model.Category, name string, amount int, at time.Time) (*model.StockItem, error) {
	defer r.lock(ctx)()

	key := model.StockKey(category, name)
	item, ok := r.state.stock[key]
	if !ok {
		item = model.StockItem{Category: category, Name: name, Active: true}
	}
	next, err := item.Increment(amount, at)
	if err != nil {
		return nil, fmt.Errorf("increment stock: %w", err)
	}
	r.state.stock[key] = next
	return &next, nil
}

func (r *MemoryRepository) DecrementStock(ctx context.Context, category model.Category, name string, amount int) (*model.StockItem, error) {
	defer r.lock(ctx)()

	key := model.StockKey(category, name)
	item, ok := r.state.stock[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrStockItemNotFound, key)
	}
	next, err := item.Decrement(amount)
	if err != nil {
		return nil, err
	}
	r.state.stock[key] = next
	return &next, nil
}

func (r *MemoryRepository) SetStock(ctx context.Context, u model.StockUpdate) (*model.StockItem, error) {
	defer r.lock(ctx)()

	key := model.StockKey(u.Category, u.Name)
	var existing *model.StockItem
	if item, ok := r.state.stock[key]; ok {
		existing = &item
	}
	next := u.Apply(existing)
	r.state.stock[key] = next
	return &next, nil
}

func (r *MemoryRepository) DeleteStock(ctx context.Context, category model.Category, name string) error {
	defer r.lock(ctx)()

	key := model.StockKey(category, name)
	if _, ok := r.state.stock[key]; !ok {
		return fmt.Errorf("%w: %s", model.ErrStockItemNotFound, key)
	}
	delete(r.state.stock, key)
	return nil
}

func (r *MemoryRepository) CreateMenuCode(ctx context.Context, m *model.MenuCode) error {
	defer r.lock(ctx)()

	if _, ok := r.state.codes[m.Code]; ok {
		return fmt.Errorf("%w: menu code %s", ErrDuplicate, m.Code)
	}
	stored := *m
	stored.UsedBy = slices.Clone(m.UsedBy)
	if stored.UsedBy == nil {
		stored.UsedBy = []model.CodeUsage{}
	}
	r.state.codes[m.Code] = stored
	return nil
}

func (r *MemoryRepository) GetMenuCode(ctx context.Context, code string) (*model.MenuCode, error) {
	defer r.lock(ctx)()

	m, ok := r.state.codes[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidCode, code)
	}
	m.UsedBy = slices.Clone(m.UsedBy)
	return &m, nil
}

func (r *MemoryRepository) ListMenuCodes(ctx context.Context) ([]model.MenuCode, error) {
	defer r.lock(ctx)()

	res := make([]model.MenuCode, 0, len(r.state.codes))
	for _, m := range r.state.codes {
		m.UsedBy = slices.Clone(m.UsedBy)
		res = append(res, m)
	}
	slices.SortFunc(res, func(a, b model.MenuCode) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return res, nil
}

func (r *MemoryRepository) RedeemMenuCode(ctx context.Context, code, orderID string, at time.Time) (*model.MenuCode, error) {
	defer r.lock(ctx)()

	m, ok := r.state.codes[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidCode, code)
	}
	next, err := m.Redeem(orderID, at)
	if err != nil {
		return nil, err
	}
	r.state.codes[code] = next
	next.UsedBy = slices.Clone(next.UsedBy)
	return &next, nil
}

func (r *MemoryRepository) DeleteMenuCode(ctx context.Context, code string) error {
	defer r.lock(ctx)()

	if _, ok := r.state.codes[code]; !ok {
		return fmt.Errorf("%w: %s", model.ErrInvalidCode, code)
	}
	delete(r.state.codes, code)
	return nil
}

func (r *MemoryRepository) DeleteExpiredUnusedMenuCodes(ctx context.Context, now time.Time) (int64, error) {
	defer r.lock(ctx)()

	var n int64
	for code, m := range r.state.codes {
		if m.IsCleanupCandidate(now) {
			delete(r.state.codes, code)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	defer r.lock(ctx)()

	if _, ok := r.state.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s", ErrDuplicate, o.ID)
	}
	if _, ok := r.state.tracking[o.TrackingCode]; ok {
		return fmt.Errorf("%w: order %s", ErrDuplicate, o.TrackingCode)
	}
	stored := *o
	stored.Toppings = slices.Clone(o.Toppings)
	if stored.Toppings == nil {
		stored.Toppings = []model.Selection{}
	}
	r.state.orders[o.ID] = stored
	r.state.tracking[o.TrackingCode] = o.ID
	return nil
}

func (r *MemoryRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	defer r.lock(ctx)()

	o, ok := r.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrOrderNotFound, id)
	}
	return &o, nil
}

func (r *MemoryRepository) GetOrderByTrackingCode(ctx context.Context, code string) (*model.Order, error) {
	defer r.lock(ctx)()

	id, ok := r.state.tracking[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrOrderNotFound, code)
	}
	o := r.state.orders[id]
	return &o, nil
}

func (r *MemoryRepository) sortedOrders(keep func(model.Order) bool) []model.Order {
	var res []model.Order
	for _, o := range r.state.orders {
		if keep(o) {
			res = append(res, o)
		}
	}
	slices.SortFunc(res, func(a, b model.Order) int { return b.Timestamps.Ordered.Compare(a.Timestamps.Ordered) })
	return res
}

func (r *MemoryRepository) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	defer r.lock(ctx)()

	res := r.sortedOrders(func(o model.Order) bool {
		return f.Status == nil || o.Status == *f.Status
	})

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if f.Offset >= len(res) {
		return nil, nil
	}
	res = res[max(f.Offset, 0):]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *MemoryRepository) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	defer r.lock(ctx)()

	return r.sortedOrders(func(o model.Order) bool {
		id, ok := o.Owner.CustomerID()
		return ok && id == customerID
	}), nil
}

func (r *MemoryRepository) UpdateOrderStatus(ctx context.Context, from model.OrderStatus, o *model.Order) error {
	defer r.lock(ctx)()

	current, ok := r.state.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrOrderNotFound, o.ID)
	}
	if current.Status != from {
		return fmt.Errorf("%w: order %s is no longer %s", ErrConflict, o.ID, from)
	}
	current.Status = o.Status
	current.Timestamps = o.Timestamps
	r.state.orders[o.ID] = current
	return nil
}

func (r *MemoryRepository) UpdatePaymentStatus(ctx context.Context, id string, from, to model.PaymentStatus) error {
	defer r.lock(ctx)()

	current, ok := r.state.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrOrderNotFound, id)
	}
	if current.PaymentStatus != from {
		return fmt.Errorf("%w: order %s payment is no longer %s", ErrConflict, id, from)
	}
	current.PaymentStatus = to
	r.state.orders[id] = current
	return nil
}

func (r *MemoryRepository) OrderStats(ctx context.Context) (model.OrderStats, error) {
	defer r.lock(ctx)()

	stats := model.OrderStats{ByStatus: make(map[model.OrderStatus]int)}
	for _, o := range r.state.orders {
		stats.ByStatus[o.Status]++
		stats.TotalOrders++
		if o.PaymentStatus == model.PaymentPaid {
			stats.PaidRevenue += o.Pricing.Total
		}
		if o.IsFreeRedemption {
			stats.FreeRedemptions++
		}
	}
	return stats, nil
}

func (r *MemoryRepository) CreateReview(ctx context.Context, rv *model.Review) error {
	defer r.lock(ctx)()

	if _, ok := r.state.reviews[rv.ID]; ok {
		return fmt.Errorf("%w: review %s", ErrDuplicate, rv.ID)
	}
	r.state.reviews[rv.ID] = *rv
	return nil
}

func (r *MemoryRepository) ListReviews(ctx context.Context, visibleOnly bool) ([]model.Review, error) {
	defer r.lock(ctx)()

	var res []model.Review
	for _, rv := range r.state.reviews {
		if rv.Visible || !visibleOnly {
			res = append(res, rv)
		}
	}
	slices.SortFunc(res, func(a, b model.Review) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return res, nil
}

func (r *MemoryRepository) AverageRating(ctx context.Context) (float64, int, error) {
	defer r.lock(ctx)()

	var sum, count int
	for _, rv := range r.state.reviews {
		if rv.Visible {
			sum += rv.Rating
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), count, nil
}

func (r *MemoryRepository) SetReviewVisibility(ctx context.Context, id string, visible bool) (*model.Review, error) {
	defer r.lock(ctx)()

	rv, ok := r.state.reviews[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrReviewNotFound, id)
	}
	rv.Visible = visible
	r.state.reviews[id] = rv
	return &rv, nil
}
