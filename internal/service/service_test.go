package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bingsu-order-system/internal/events"
	"github.com/mmeshcher/bingsu-order-system/internal/model"
	"github.com/mmeshcher/bingsu-order-system/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]string, 0, len(p.events))
	for _, e := range p.events {
		res = append(res, e.Type)
	}
	return res
}

// sequence возвращает генератор, выдающий codes по порядку, а затем последний код.
func sequence(codes ...string) func() string {
	var (
		mu sync.Mutex
		i  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		c := codes[min(i, len(codes)-1)]
		i++
		return c
	}
}

type testEnv struct {
	repo *repository.MemoryRepository
	svc  *Service
	pub  *recordingPublisher
}

func newTestEnv(t *testing.T, maxUsage int) *testEnv {
	t.Helper()

	repo := repository.NewMemoryRepository()
	pub := &recordingPublisher{}
	svc := NewService(repo, pub, Options{MenuCodeTTL: 24 * time.Hour, MenuCodeMaxUsage: maxUsage}, zap.NewNop())
	svc.Accounts.cost = bcrypt.MinCost

	return &testEnv{repo: repo, svc: svc, pub: pub}
}

func (e *testEnv) stock(t *testing.T, category model.Category, name string, qty int) {
	t.Helper()
	_, err := e.svc.Stock.SetAbsolute(context.Background(), model.StockUpdate{Category: category, Name: name, Quantity: qty})
	require.NoError(t, err)
}

func (e *testEnv) issue(t *testing.T, code string, size model.CupSize) {
	t.Helper()
	e.svc.MenuCodes.generate = sequence(code)
	m, err := e.svc.MenuCodes.Generate(context.Background(), size, 1)
	require.NoError(t, err)
	require.Equal(t, code, m.Code)
}

func orderReq(code, flavor string, toppings ...string) model.OrderRequest {
	req := model.OrderRequest{
		MenuCode: code,
		Flavor:   model.Selection{Name: flavor},
		Owner:    model.Guest(),
	}
	for _, name := range toppings {
		req.Toppings = append(req.Toppings, model.Selection{Name: name})
	}
	return req
}

func TestMenuCodeRedeemedUpToLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.issue(t, "ABCDE", model.CupSizeM)

	m, err := env.svc.MenuCodes.Redeem(ctx, "abcde", "order-1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.UsageCount)

	check, err := env.svc.MenuCodes.Validate(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, 4, check.RemainingUses)
	assert.Equal(t, model.CupSizeM, check.CupSize)

	for i := range 4 {
		_, err := env.svc.MenuCodes.Redeem(ctx, "ABCDE", "order-"+string(rune('2'+i)))
		require.NoError(t, err)
	}

	m, err = env.repo.GetMenuCode(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, 5, m.UsageCount)
	assert.Len(t, m.UsedBy, 5)

	_, err = env.svc.MenuCodes.Redeem(ctx, "ABCDE", "order-6")
	assert.ErrorIs(t, err, model.ErrUsageLimitReached)
	_, err = env.svc.MenuCodes.Validate(ctx, "ABCDE")
	assert.ErrorIs(t, err, model.ErrUsageLimitReached)
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.issue(t, "AAAAA", model.CupSizeS)

	env.svc.MenuCodes.generate = sequence("AAAAA", "AAAAA", "BBBBB")
	m, err := env.svc.MenuCodes.Generate(ctx, model.CupSizeL, 1)
	require.NoError(t, err)
	assert.Equal(t, "BBBBB", m.Code)
	assert.Equal(t, 5, m.MaxUsage)
	assert.Equal(t, m.CreatedAt.Add(24*time.Hour), m.ExpiresAt)
}

type stubCodeRepo struct {
	MenuCodeRepository
	createCalls int
}

func (s *stubCodeRepo) CreateMenuCode(ctx context.Context, m *model.MenuCode) error {
	s.createCalls++
	return repository.ErrDuplicate
}

func TestGenerateCodeSpaceExhausted(t *testing.T) {
	repo := &stubCodeRepo{}
	issuer := NewMenuCodeIssuer(repo, time.Hour, 5, zap.NewNop())

	_, err := issuer.Generate(context.Background(), model.CupSizeS, 1)
	assert.ErrorIs(t, err, model.ErrCodeSpaceExhausted)
	assert.Equal(t, maxGenerateAttempts, repo.createCalls)
}

func TestGenerateRejectsUnknownSize(t *testing.T) {
	env := newTestEnv(t, 5)

	_, err := env.svc.MenuCodes.Generate(context.Background(), model.CupSize("XL"), 1)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestValidateCodeFailures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.issue(t, "EXP01", model.CupSizeS)

	_, err := env.svc.MenuCodes.Validate(ctx, "AB")
	assert.ErrorIs(t, err, model.ErrInvalidCode)

	_, err = env.svc.MenuCodes.Validate(ctx, "ZZZZZ")
	assert.ErrorIs(t, err, model.ErrInvalidCode)

	env.svc.MenuCodes.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	_, err = env.svc.MenuCodes.Validate(ctx, "EXP01")
	assert.ErrorIs(t, err, model.ErrCodeExpired)

	n, err := env.svc.MenuCodes.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCreateOrderPricesAndConsumes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Strawberry", 10)
	env.stock(t, model.CategoryTopping, "Mango", 5)
	env.stock(t, model.CategoryTopping, "Oreo", 5)
	env.stock(t, model.CategoryTopping, "Mochi", 5)
	env.issue(t, "LARGE", model.CupSizeL)

	o, err := env.svc.Orders.Create(ctx, orderReq("large", "Strawberry", "Mango", "Oreo", "Mochi"))
	require.NoError(t, err)

	assert.Equal(t, 110, o.Pricing.Total)
	assert.Equal(t, 20, o.Pricing.SizeSurcharge)
	assert.Equal(t, 30, o.Pricing.ToppingsSurcharge)
	assert.Equal(t, model.CupSizeL, o.CupSize)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, model.PaymentUnpaid, o.PaymentStatus)
	assert.True(t, strings.HasPrefix(o.TrackingCode, "#"))
	assert.Len(t, o.TrackingCode, 6)

	flavor, err := env.repo.GetStockItem(ctx, model.CategoryFlavor, "Strawberry")
	require.NoError(t, err)
	assert.Equal(t, 9, flavor.Quantity)

	code, err := env.repo.GetMenuCode(ctx, "LARGE")
	require.NoError(t, err)
	assert.Equal(t, 1, code.UsageCount)
	assert.Equal(t, o.ID, code.UsedBy[0].OrderID)

	assert.Equal(t, []string{events.OrderCreated}, env.pub.types())
}

func TestCreateOrderCountsRepeatedToppings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.stock(t, model.CategoryTopping, "Mango", 1)
	env.issue(t, "TWICE", model.CupSizeS)

	_, err := env.svc.Orders.Create(ctx, orderReq("TWICE", "Milk", "Mango", "Mango"))
	var unavailable *model.ItemUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []string{"Mango"}, unavailable.Names)
}

func TestCreateOrderListsEveryUnavailableItem(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.stock(t, model.CategoryTopping, "Mango", 0)
	env.stock(t, model.CategoryTopping, "Oreo", 3)
	env.issue(t, "CODE1", model.CupSizeS)

	_, err := env.svc.Orders.Create(ctx, orderReq("CODE1", "Milk", "Mango", "Kiwi", "Oreo"))
	require.ErrorIs(t, err, model.ErrItemUnavailable)

	var unavailable *model.ItemUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []string{"Mango", "Kiwi"}, unavailable.Names)

	oreo, err := env.repo.GetStockItem(ctx, model.CategoryTopping, "Oreo")
	require.NoError(t, err)
	assert.Equal(t, 3, oreo.Quantity)

	code, err := env.repo.GetMenuCode(ctx, "CODE1")
	require.NoError(t, err)
	assert.Zero(t, code.UsageCount)
}

func TestCreateOrderRejectsInvalidRequest(t *testing.T) {
	env := newTestEnv(t, 5)

	_, err := env.svc.Orders.Create(context.Background(), orderReq("bad", "", "A", "B", "C", "D"))
	require.ErrorIs(t, err, model.ErrValidation)

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.Contains(t, fields, "menuCode")
	assert.Contains(t, fields, "flavor")
	assert.Contains(t, fields, "toppings")
}

func TestCreateOrderRollsBackOnLateFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.stock(t, model.CategoryTopping, "Mango", 2)
	env.issue(t, "ROLLB", model.CupSizeM)

	require.NoError(t, env.repo.CreateOrder(ctx, &model.Order{ID: "existing", TrackingCode: "#TAKEN"}))
	env.svc.Orders.trackingCode = func() string { return "#TAKEN" }

	_, err := env.svc.Orders.Create(ctx, orderReq("ROLLB", "Milk", "Mango"))
	require.ErrorIs(t, err, model.ErrCodeSpaceExhausted)

	milk, err := env.repo.GetStockItem(ctx, model.CategoryFlavor, "Milk")
	require.NoError(t, err)
	assert.Equal(t, 5, milk.Quantity)

	mango, err := env.repo.GetStockItem(ctx, model.CategoryTopping, "Mango")
	require.NoError(t, err)
	assert.Equal(t, 2, mango.Quantity)

	code, err := env.repo.GetMenuCode(ctx, "ROLLB")
	require.NoError(t, err)
	assert.Zero(t, code.UsageCount)
	assert.Empty(t, code.UsedBy)
	assert.Empty(t, env.pub.types())
}

func TestConcurrentOrdersForLastMango(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.stock(t, model.CategoryTopping, "Mango", 1)
	env.issue(t, "MANGO", model.CupSizeS)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.svc.Orders.Create(ctx, orderReq("MANGO", "Milk", "Mango"))
		}()
	}
	wg.Wait()

	var ok, unavailable int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrItemUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, unavailable)

	mango, err := env.repo.GetStockItem(ctx, model.CategoryTopping, "Mango")
	require.NoError(t, err)
	assert.Zero(t, mango.Quantity)

	code, err := env.repo.GetMenuCode(ctx, "MANGO")
	require.NoError(t, err)
	assert.Equal(t, 1, code.UsageCount)
}

func TestConcurrentRedeemNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 50)
	env.issue(t, "RACE1", model.CupSizeS)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Orders.Create(ctx, orderReq("RACE1", "Milk"))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, model.ErrUsageLimitReached)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, success)
	milk, err := env.repo.GetStockItem(ctx, model.CategoryFlavor, "Milk")
	require.NoError(t, err)
	assert.Equal(t, 45, milk.Quantity)
}

func TestLoyaltyTenthOrderIsFree(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 20)
	env.stock(t, model.CategoryFlavor, "Milk", 20)
	env.issue(t, "LOYAL", model.CupSizeS)

	customerID, err := env.svc.Accounts.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	var orders []*model.Order
	for range model.LoyaltyThreshold {
		req := orderReq("LOYAL", "Milk")
		req.Owner = model.Customer(customerID)
		o, err := env.svc.Orders.Create(ctx, req)
		require.NoError(t, err)
		orders = append(orders, o)
	}

	for _, o := range orders[:9] {
		assert.False(t, o.IsFreeRedemption)
		assert.Equal(t, 60, o.Pricing.Total)
	}
	last := orders[9]
	assert.True(t, last.IsFreeRedemption)
	assert.Zero(t, last.Pricing.Total)
	assert.Equal(t, 60, last.Pricing.Subtotal())
	assert.Equal(t, model.PaymentPaid, last.PaymentStatus)

	acct, err := env.svc.Loyalty.Account(ctx, customerID)
	require.NoError(t, err)
	assert.Zero(t, acct.StampCount)
	assert.Equal(t, 1, acct.TotalFreeRedemptions)
	assert.Equal(t, 9*6, acct.RewardPoints)

	mine, err := env.svc.Orders.ListForCustomer(ctx, customerID)
	require.NoError(t, err)
	assert.Len(t, mine, 10)
}

func TestGuestOrderDoesNotStamp(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.issue(t, "GUEST", model.CupSizeM)

	o, err := env.svc.Orders.Create(ctx, orderReq("GUEST", "Milk"))
	require.NoError(t, err)
	assert.True(t, o.Owner.IsGuest())
	assert.Equal(t, 70, o.Pricing.Total)
}

func TestOrderStatusTransitions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.issue(t, "STATE", model.CupSizeS)

	first, err := env.svc.Orders.Create(ctx, orderReq("STATE", "Milk"))
	require.NoError(t, err)
	cancelled, err := env.svc.Orders.UpdateStatus(ctx, first.ID, model.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.Timestamps.Cancelled)

	second, err := env.svc.Orders.Create(ctx, orderReq("STATE", "Milk"))
	require.NoError(t, err)
	for _, to := range []model.OrderStatus{model.OrderStatusPreparing, model.OrderStatusReady, model.OrderStatusCompleted} {
		_, err := env.svc.Orders.UpdateStatus(ctx, second.ID, to)
		require.NoError(t, err)
	}

	_, err = env.svc.Orders.UpdateStatus(ctx, second.ID, model.OrderStatusPreparing)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	stored, err := env.svc.Orders.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, stored.Status)
	assert.NotNil(t, stored.Timestamps.Prepared)
	assert.NotNil(t, stored.Timestamps.Ready)
	assert.NotNil(t, stored.Timestamps.Completed)

	overridden, err := env.svc.Orders.OverrideStatus(ctx, second.ID, model.OrderStatusPreparing)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPreparing, overridden.Status)

	_, err = env.svc.Orders.UpdateStatus(ctx, "missing", model.OrderStatusReady)
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}

func TestOrderPaymentTransitions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.issue(t, "PAYME", model.CupSizeS)

	o, err := env.svc.Orders.Create(ctx, orderReq("PAYME", "Milk"))
	require.NoError(t, err)

	_, err = env.svc.Orders.UpdatePayment(ctx, o.ID, model.PaymentRefunded)
	assert.ErrorIs(t, err, model.ErrInvalidPaymentTransition)

	paid, err := env.svc.Orders.UpdatePayment(ctx, o.ID, model.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, paid.PaymentStatus)

	stats, err := env.svc.Dashboard.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Orders.TotalOrders)
	assert.Equal(t, 60, stats.Orders.PaidRevenue)
}

func TestTrackByCodeIgnoresCaseAndPrefix(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.issue(t, "TRACK", model.CupSizeS)
	env.svc.Orders.trackingCode = func() string { return "#K7Q2M" }

	o, err := env.svc.Orders.Create(ctx, orderReq("TRACK", "Milk"))
	require.NoError(t, err)

	for _, code := range []string{"#K7Q2M", "k7q2m", " #k7q2m "} {
		found, err := env.svc.Orders.TrackByCode(ctx, code)
		require.NoError(t, err, code)
		assert.Equal(t, o.ID, found.ID)
	}

	_, err = env.svc.Orders.TrackByCode(ctx, "#NOPE1")
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
	_, err = env.svc.Orders.TrackByCode(ctx, "??")
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}

func TestPublishFailureDoesNotFailOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.pub.err = errors.New("kafka unavailable")
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.issue(t, "NOKFK", model.CupSizeS)

	_, err := env.svc.Orders.Create(ctx, orderReq("NOKFK", "Milk"))
	require.NoError(t, err)
}

func TestStockLedger(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	threshold := 5
	_, err := env.svc.Stock.SetAbsolute(ctx, model.StockUpdate{
		Category: model.CategoryTopping, Name: "Mango", Quantity: 2, ReorderThreshold: &threshold,
	})
	require.NoError(t, err)
	_, err = env.svc.Stock.SetAbsolute(ctx, model.StockUpdate{
		Category: model.CategoryTopping, Name: "Oreo", Quantity: 5, ReorderThreshold: &threshold,
	})
	require.NoError(t, err)

	low, err := env.svc.Stock.ListLow(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "Mango", low[0].Name)

	item, err := env.svc.Stock.RestockToThreshold(ctx, model.CategoryTopping, "Mango")
	require.NoError(t, err)
	assert.Equal(t, 7, item.Quantity)
	assert.NotNil(t, item.LastRestockedAt)

	_, err = env.svc.Stock.Decrement(ctx, model.CategoryTopping, "Mango", 8)
	assert.ErrorIs(t, err, model.ErrInsufficientStock)
	_, err = env.svc.Stock.Decrement(ctx, model.CategoryTopping, "Kiwi", 1)
	assert.ErrorIs(t, err, model.ErrStockItemNotFound)
	_, err = env.svc.Stock.Increment(ctx, model.CategoryTopping, "Mango", 0)
	assert.ErrorIs(t, err, model.ErrValidation)

	created, err := env.svc.Stock.Increment(ctx, model.CategoryFlavor, "Matcha", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, created.Quantity)
	assert.True(t, created.Active)

	ok, err := env.svc.Stock.IsAvailable(ctx, model.CategoryTopping, "Kiwi")
	require.NoError(t, err)
	assert.False(t, ok)

	inactive := false
	_, err = env.svc.Stock.SetAbsolute(ctx, model.StockUpdate{
		Category: model.CategoryFlavor, Name: "Matcha", Quantity: 4, Active: &inactive,
	})
	require.NoError(t, err)

	avail, err := env.svc.Stock.Availability(ctx)
	require.NoError(t, err)
	assert.Empty(t, avail.Flavors)
	assert.Len(t, avail.Toppings, 2)

	require.NoError(t, env.svc.Stock.Delete(ctx, model.CategoryTopping, "Oreo"))
	assert.ErrorIs(t, env.svc.Stock.Delete(ctx, model.CategoryTopping, "Oreo"), model.ErrStockItemNotFound)
}

func TestReviews(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)

	summary, err := env.svc.Reviews.AverageRating(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Average)
	assert.Zero(t, summary.Count)

	_, err = env.svc.Reviews.Submit(ctx, ReviewInput{Rating: 6, Comment: strings.Repeat("x", 501), CustomerName: "Kim"})
	assert.ErrorIs(t, err, model.ErrInvalidRating)
	assert.ErrorIs(t, err, model.ErrCommentTooLong)

	missing := "no-such-order"
	_, err = env.svc.Reviews.Submit(ctx, ReviewInput{Rating: 5, CustomerName: "Kim", OrderID: &missing})
	assert.ErrorIs(t, err, model.ErrOrderNotFound)

	five, err := env.svc.Reviews.Submit(ctx, ReviewInput{Rating: 5, Comment: "great", CustomerName: "Kim"})
	require.NoError(t, err)
	_, err = env.svc.Reviews.Submit(ctx, ReviewInput{Rating: 2, CustomerName: "Lee"})
	require.NoError(t, err)

	summary, err = env.svc.Reviews.AverageRating(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, summary.Average, 1e-9)
	assert.Equal(t, 2, summary.Count)

	_, err = env.svc.Reviews.SetVisibility(ctx, five.ID, false)
	require.NoError(t, err)

	summary, err = env.svc.Reviews.AverageRating(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, summary.Average, 1e-9)

	visible, err := env.svc.Reviews.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
	all, err := env.svc.Reviews.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)

	id, err := env.svc.Accounts.Register(ctx, "bob", "pass")
	require.NoError(t, err)

	_, err = env.svc.Accounts.Register(ctx, "bob", "other")
	assert.ErrorIs(t, err, repository.ErrUserExists)

	_, err = env.svc.Accounts.Register(ctx, "", "")
	assert.ErrorIs(t, err, model.ErrValidation)

	u, err := env.svc.Accounts.Authenticate(ctx, "bob", "pass")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, model.RoleCustomer, u.Role)

	_, err = env.svc.Accounts.Authenticate(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
	_, err = env.svc.Accounts.Authenticate(ctx, "nobody", "pass")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)

	created, err := env.svc.Accounts.EnsureAdmin(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = env.svc.Accounts.EnsureAdmin(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = env.svc.Accounts.EnsureAdmin(ctx, "bob", "pass")
	assert.Error(t, err)

	users, err := env.svc.Accounts.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestDashboardStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)

	threshold := 10
	_, err := env.svc.Stock.SetAbsolute(ctx, model.StockUpdate{
		Category: model.CategoryFlavor, Name: "Mango", Quantity: 11, ReorderThreshold: &threshold,
	})
	require.NoError(t, err)
	env.stock(t, model.CategoryTopping, "Mochi", 50)
	env.issue(t, "DASHB", model.CupSizeL)

	first, err := env.svc.Orders.Create(ctx, orderReq("DASHB", "Mango", "Mochi"))
	require.NoError(t, err)
	_, err = env.svc.Orders.Create(ctx, orderReq("DASHB", "Mango"))
	require.NoError(t, err)
	_, err = env.svc.Orders.UpdateStatus(ctx, first.ID, model.OrderStatusCancelled)
	require.NoError(t, err)

	_, err = env.svc.Reviews.Submit(ctx, ReviewInput{Rating: 4, CustomerName: "Kim"})
	require.NoError(t, err)

	stats, err := env.svc.Dashboard.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Orders.TotalOrders)
	assert.Equal(t, 1, stats.Orders.ByStatus[model.OrderStatusPending])
	assert.Equal(t, 1, stats.Orders.ByStatus[model.OrderStatusCancelled])
	assert.Zero(t, stats.Orders.PaidRevenue)
	assert.Equal(t, 1, stats.LowStockItems, "Mango dropped to 9, below its threshold of 10")
	assert.InDelta(t, 4.0, stats.AverageRating, 1e-9)
	assert.Equal(t, 1, stats.ReviewCount)
}

// decrementRecorder запоминает порядок списаний и может отказать в списании выбранных позиций.
type decrementRecorder struct {
	*repository.MemoryRepository

	mu    sync.Mutex
	keys  []string
	short map[string]bool
}

func (r *decrementRecorder) DecrementStock(ctx context.Context, category model.Category, name string, amount int) (*model.StockItem, error) {
	key := model.StockKey(category, name)
	r.mu.Lock()
	r.keys = append(r.keys, key)
	short := r.short[key]
	r.mu.Unlock()

	if short {
		return nil, model.ErrInsufficientStock
	}
	return r.MemoryRepository.DecrementStock(ctx, category, name, amount)
}

func (r *decrementRecorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.keys
	r.keys = nil
	return keys
}

func newRecordingBuilder(env *testEnv, short ...string) (*OrderBuilder, *decrementRecorder) {
	rec := &decrementRecorder{MemoryRepository: env.repo, short: make(map[string]bool)}
	for _, key := range short {
		rec.short[key] = true
	}
	return NewOrderBuilder(rec, env.svc.MenuCodes, env.svc.Loyalty, env.pub, zap.NewNop()), rec
}

func TestLockOrderIgnoresRequestOrder(t *testing.T) {
	milk := model.Selection{Name: "Milk"}
	a := lockOrder(demands(milk, []model.Selection{{Name: "Mango"}, {Name: "Oreo"}}))
	b := lockOrder(demands(milk, []model.Selection{{Name: "Oreo"}, {Name: "Mango"}}))

	assert.Equal(t, a, b)
}

func TestCreateOrderDecrementsInKeyOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.stock(t, model.CategoryFlavor, "Matcha", 5)
	env.stock(t, model.CategoryTopping, "Mango", 5)
	env.stock(t, model.CategoryTopping, "Oreo", 5)
	env.issue(t, "ORDER", model.CupSizeM)

	builder, rec := newRecordingBuilder(env)

	_, err := builder.Create(ctx, orderReq("ORDER", "Milk", "Mango", "Oreo"))
	require.NoError(t, err)
	first := rec.take()

	_, err = builder.Create(ctx, orderReq("ORDER", "Matcha", "Oreo", "Mango"))
	require.NoError(t, err)
	second := rec.take()

	assert.True(t, slices.IsSorted(first), "decrements %v", first)
	assert.True(t, slices.IsSorted(second), "decrements %v", second)
	assert.Equal(t, first[1:], second[1:], "toppings must be locked in the same order")
}

func TestCreateOrderReportsLateShortagesInRequestOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.stock(t, model.CategoryTopping, "Mango", 5)
	env.stock(t, model.CategoryTopping, "Oreo", 5)
	env.issue(t, "LATE1", model.CupSizeS)

	builder, _ := newRecordingBuilder(env,
		model.StockKey(model.CategoryTopping, "Oreo"),
		model.StockKey(model.CategoryTopping, "Mango"),
	)

	_, err := builder.Create(ctx, orderReq("LATE1", "Milk", "Oreo", "Mango"))

	var unavailable *model.ItemUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []string{"Oreo", "Mango"}, unavailable.Names)

	milk, err := env.repo.GetStockItem(ctx, model.CategoryFlavor, "Milk")
	require.NoError(t, err)
	assert.Equal(t, 5, milk.Quantity)
}

func TestCreateOrderForMissingCustomerFallsBackToGuest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 5)
	env.stock(t, model.CategoryFlavor, "Milk", 5)
	env.issue(t, "GHOST", model.CupSizeS)

	req := orderReq("GHOST", "Milk")
	req.Owner = model.Customer(404)

	o, err := env.svc.Orders.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, o.Owner.IsGuest())
	assert.False(t, o.IsFreeRedemption)
	assert.Equal(t, model.PaymentUnpaid, o.PaymentStatus)

	stored, err := env.repo.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, stored.Owner.IsGuest())
}

func TestStartCleanupRemovesExpiredCodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnv(t, 5)
	env.issue(t, "STALE", model.CupSizeS)
	env.issue(t, "USED1", model.CupSizeS)
	_, err := env.svc.MenuCodes.Redeem(ctx, "USED1", "order-1")
	require.NoError(t, err)

	issuer := env.svc.MenuCodes
	issuer.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	issuer.StartCleanup(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := env.repo.GetMenuCode(context.Background(), "STALE")
		return errors.Is(err, model.ErrInvalidCode)
	}, time.Second, 5*time.Millisecond)

	_, err = env.repo.GetMenuCode(context.Background(), "USED1")
	assert.NoError(t, err, "used codes are kept after expiry")
}
