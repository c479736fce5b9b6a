package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	models "github.com/castaway-live/castaway/internal/models"
	"github.com/castaway-live/castaway/pkg/config"
	types "github.com/castaway-live/castaway/pkg/types"
)

// fakeStore keeps the ledger in memory and mimics the conditional-update
// semantics of the postgres store, including the unique constraints.
type fakeStore struct {
	mu     sync.Mutex
	orders map[string]*models.PaymentOrder // keyed by gateway order id
	grants map[string]*models.Entitlement  // keyed by user id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders: map[string]*models.PaymentOrder{},
		grants: map[string]*models.Entitlement{},
	}
}

func (f *fakeStore) GetByIdempotencyKey(_ context.Context, userID, key string) (*models.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetByGatewayOrderID(_ context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[gatewayOrderID]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) CreatePending(_ context.Context, o *models.PaymentOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.orders {
		if existing.UserID == o.UserID && existing.IdempotencyKey == o.IdempotencyKey {
			return gorm.ErrDuplicatedKey
		}
	}
	if _, ok := f.orders[o.GatewayOrderID]; ok {
		return gorm.ErrDuplicatedKey
	}
	cp := *o
	f.orders[o.GatewayOrderID] = &cp
	return nil
}

func (f *fakeStore) CompletePending(_ context.Context, gatewayOrderID, captureID string, completedAt, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[gatewayOrderID]
	if !ok || o.Status != types.OrderStatusPending {
		return false, nil
	}
	o.Status = types.OrderStatusCompleted
	o.GatewayCaptureID = lo.ToPtr(captureID)
	o.CompletedAt = lo.ToPtr(completedAt)
	o.EntitlementExpiresAt = lo.ToPtr(expiresAt)
	f.grants[o.UserID] = &models.Entitlement{
		UserID:        o.UserID,
		IsActive:      true,
		Tier:          o.Tier,
		SourceOrderID: o.ID,
		StartedAt:     lo.ToPtr(completedAt),
		ExpiresAt:     lo.ToPtr(expiresAt),
	}
	return true, nil
}

func (f *fakeStore) FailPending(_ context.Context, gatewayOrderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[gatewayOrderID]
	if !ok || o.Status != types.OrderStatusPending {
		return false, nil
	}
	o.Status = types.OrderStatusFailed
	return true, nil
}

func (f *fakeStore) RefundCompleted(_ context.Context, gatewayOrderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[gatewayOrderID]
	if !ok || o.Status != types.OrderStatusCompleted {
		return false, nil
	}
	o.Status = types.OrderStatusRefunded
	if e, ok := f.grants[o.UserID]; ok && e.SourceOrderID == o.ID {
		e.IsActive = false
		e.ExpiresAt = nil
	}
	return true, nil
}

func (f *fakeStore) grantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.grants {
		if e.IsActive {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	mu            sync.Mutex
	createCalls   int
	captureCalls  int
	chargeValue   string
	chargeCcy     string
	failCreate    bool
	captureErr    error
	beforeCapture func()
}

func (f *fakeGateway) CreateOrder(_ context.Context, _, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.failCreate {
		return "", fmt.Errorf("gateway unreachable")
	}
	return fmt.Sprintf("GW-%d", f.createCalls), nil
}

func (f *fakeGateway) CaptureOrder(_ context.Context, gatewayOrderID string) (*GatewayCapture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captureCalls++
	if f.beforeCapture != nil {
		f.beforeCapture()
	}
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	value := f.chargeValue
	if value == "" {
		value = "4.99"
	}
	ccy := f.chargeCcy
	if ccy == "" {
		ccy = "USD"
	}
	return &GatewayCapture{
		CaptureID: "CAP-" + gatewayOrderID,
		Amount:    decimal.RequireFromString(value),
		Currency:  ccy,
	}, nil
}

type fakeLimiter struct {
	mu      sync.Mutex
	allowed bool
	calls   int
}

func (f *fakeLimiter) Allow(_ context.Context, _, _ string, _ int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.allowed, nil
}

type fakeEntitlements struct{ store *fakeStore }

func (f *fakeEntitlements) GetActive(_ context.Context, userID string) (*models.Entitlement, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if e, ok := f.store.grants[userID]; ok && e.Valid() {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeGateway, *fakeLimiter) {
	t.Helper()
	cfg := &config.Config{
		PremiumPlans: []*types.PremiumPlan{
			{Tier: types.PremiumTierMonthly, AmountCents: 499, Currency: "USD", DurationDays: 30},
			{Tier: types.PremiumTierYearly, AmountCents: 3999, Currency: "USD", DurationDays: 365},
		},
		RateLimit: config.RateLimitConfig{CreateOrderMax: 5, CreateOrderWindowSeconds: 3600},
	}
	store := newFakeStore()
	gw := &fakeGateway{}
	limiter := &fakeLimiter{allowed: true}
	mgr := NewService(cfg, zap.NewNop().Sugar(), gw, store, limiter, &fakeEntitlements{store: store}, nil)
	return mgr.(*Service), store, gw, limiter
}

func createReq(key string) *CreateOrderRequest {
	return &CreateOrderRequest{UserID: "u1", EmailVerified: true, Tier: types.PremiumTierMonthly, IdempotencyKey: key}
}

func TestCreate_Validation(t *testing.T) {
	svc, _, gw, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreateOrderRequest{UserID: "u1", EmailVerified: false, Tier: types.PremiumTierMonthly, IdempotencyKey: "k1"})
	require.ErrorIs(t, err, ErrEmailNotVerified)

	_, err = svc.Create(ctx, &CreateOrderRequest{UserID: "u1", EmailVerified: true, Tier: "weekly", IdempotencyKey: "k1"})
	require.ErrorIs(t, err, ErrInvalidTier)

	_, err = svc.Create(ctx, &CreateOrderRequest{UserID: "u1", EmailVerified: true, Tier: types.PremiumTierMonthly})
	require.ErrorIs(t, err, ErrMissingIdempotencyKey)

	require.Equal(t, 0, gw.createCalls)
}

func TestCreate_IdempotentReplayReturnsSameOrder(t *testing.T) {
	svc, store, gw, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)
	second, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)

	require.Equal(t, first.GatewayOrderID, second.GatewayOrderID)
	require.Equal(t, int64(499), second.AmountCents)
	require.Equal(t, 1, gw.createCalls)
	require.Len(t, store.orders, 1)
}

func TestCreate_RateLimitedBeforeGatewayCall(t *testing.T) {
	svc, store, gw, limiter := newTestService(t)
	limiter.allowed = false

	_, err := svc.Create(context.Background(), createReq("k1"))
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, 0, gw.createCalls)
	require.Empty(t, store.orders)
}

func TestCreate_AlreadyEntitled(t *testing.T) {
	svc, store, gw, _ := newTestService(t)
	store.grants["u1"] = &models.Entitlement{
		UserID: "u1", IsActive: true, Tier: types.PremiumTierMonthly,
		ExpiresAt: lo.ToPtr(time.Now().Add(10 * 24 * time.Hour)),
	}

	_, err := svc.Create(context.Background(), createReq("k1"))
	require.ErrorIs(t, err, ErrAlreadyEntitled)
	require.Equal(t, 0, gw.createCalls)
}

func TestCreate_ExpiredEntitlementDoesNotBlock(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	store.grants["u1"] = &models.Entitlement{
		UserID: "u1", IsActive: true, Tier: types.PremiumTierMonthly,
		ExpiresAt: lo.ToPtr(time.Now().Add(-time.Hour)),
	}

	_, err := svc.Create(context.Background(), createReq("k1"))
	require.NoError(t, err)
}

func TestCreate_GatewayFailureLeavesNoLedgerRow(t *testing.T) {
	svc, store, gw, _ := newTestService(t)
	gw.failCreate = true

	_, err := svc.Create(context.Background(), createReq("k1"))
	require.ErrorIs(t, err, ErrGateway)
	require.Empty(t, store.orders)
}

func TestCapture_GrantsEntitlementOnMatchingAmount(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)

	res, err := svc.Capture(ctx, &CaptureOrderRequest{UserID: "u1", GatewayOrderID: created.GatewayOrderID})
	require.NoError(t, err)
	require.Equal(t, types.PremiumTierMonthly, res.Tier)
	require.WithinDuration(t, time.Now().Add(30*24*time.Hour), res.EntitlementExpiresAt, time.Minute)

	o := store.orders[created.GatewayOrderID]
	require.Equal(t, types.OrderStatusCompleted, o.Status)
	require.NotNil(t, o.GatewayCaptureID)
	require.True(t, store.grants["u1"].Valid())
}

func TestCapture_AmountMismatchFailsOrderWithoutGrant(t *testing.T) {
	svc, store, gw, _ := newTestService(t)
	ctx := context.Background()
	gw.chargeValue = "0.99"

	created, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)

	_, err = svc.Capture(ctx, &CaptureOrderRequest{UserID: "u1", GatewayOrderID: created.GatewayOrderID})
	require.ErrorIs(t, err, ErrAmountMismatch)
	require.Equal(t, types.OrderStatusFailed, store.orders[created.GatewayOrderID].Status)
	require.Equal(t, 0, store.grantCount())
}

func TestCapture_ReplayReturnsAlreadyProcessed(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)
	first, err := svc.Capture(ctx, &CaptureOrderRequest{UserID: "u1", GatewayOrderID: created.GatewayOrderID})
	require.NoError(t, err)

	_, err = svc.Capture(ctx, &CaptureOrderRequest{UserID: "u1", GatewayOrderID: created.GatewayOrderID})
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	// Expiry untouched by the replay.
	require.Equal(t, first.EntitlementExpiresAt.Unix(), store.orders[created.GatewayOrderID].EntitlementExpiresAt.Unix())
}

func TestCapture_GatewayAlreadyCapturedResolvesFromLedger(t *testing.T) {
	svc, store, gw, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)

	// The webhook settles the order between our pending read and the capture
	// call; the gateway then rejects the capture as already settled.
	gw.captureErr = fmt.Errorf("%w: ORDER_ALREADY_CAPTURED", ErrAlreadyCaptured)
	gw.beforeCapture = func() {
		require.NoError(t, svc.CompleteFromWebhook(ctx,
			created.GatewayOrderID, "CAP-WH", decimal.RequireFromString("4.99"), "USD"))
	}

	res, err := svc.Capture(ctx, &CaptureOrderRequest{UserID: "u1", GatewayOrderID: created.GatewayOrderID})
	require.NoError(t, err)
	require.Equal(t, types.PremiumTierMonthly, res.Tier)
	require.Equal(t, store.orders[created.GatewayOrderID].EntitlementExpiresAt.Unix(), res.EntitlementExpiresAt.Unix())
	require.Equal(t, 1, store.grantCount())
}

func TestCapture_GatewayAlreadyCapturedWithoutSettledRow(t *testing.T) {
	svc, _, gw, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)

	// Gateway claims the capture already happened but the ledger never settled
	// the order; there is no result to hand back.
	gw.captureErr = fmt.Errorf("%w: ORDER_ALREADY_CAPTURED", ErrAlreadyCaptured)
	_, err = svc.Capture(ctx, &CaptureOrderRequest{UserID: "u1", GatewayOrderID: created.GatewayOrderID})
	require.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestCapture_UnknownOrForeignOrder(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Capture(ctx, &CaptureOrderRequest{UserID: "u1", GatewayOrderID: "GW-404"})
	require.ErrorIs(t, err, ErrNotFound)

	created, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)
	_, err = svc.Capture(ctx, &CaptureOrderRequest{UserID: "u2", GatewayOrderID: created.GatewayOrderID})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCaptureAndWebhookRace_ExactlyOneGrant(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)

	amount := decimal.RequireFromString("4.99")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Capture(ctx, &CaptureOrderRequest{UserID: "u1", GatewayOrderID: created.GatewayOrderID})
		// The loser of the race still observes success derived from the
		// completed row.
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		require.NoError(t, svc.CompleteFromWebhook(ctx, created.GatewayOrderID, "CAP-WH", amount, "USD"))
	}()
	wg.Wait()

	require.Equal(t, types.OrderStatusCompleted, store.orders[created.GatewayOrderID].Status)
	require.Equal(t, 1, store.grantCount())
}

func TestCompleteFromWebhook_UnknownAndSettledOrdersNoOp(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	amount := decimal.RequireFromString("4.99")

	require.NoError(t, svc.CompleteFromWebhook(ctx, "GW-404", "CAP-1", amount, "USD"))

	created, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)
	_, err = svc.Capture(ctx, &CaptureOrderRequest{UserID: "u1", GatewayOrderID: created.GatewayOrderID})
	require.NoError(t, err)

	require.NoError(t, svc.CompleteFromWebhook(ctx, created.GatewayOrderID, "CAP-2", amount, "USD"))
	require.Equal(t, "CAP-"+created.GatewayOrderID, *store.orders[created.GatewayOrderID].GatewayCaptureID)
}

func TestCompleteFromWebhook_AmountMismatchLeavesPending(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)

	err = svc.CompleteFromWebhook(ctx, created.GatewayOrderID, "CAP-1", decimal.RequireFromString("0.99"), "USD")
	require.ErrorIs(t, err, ErrAmountMismatch)
	require.Equal(t, types.OrderStatusPending, store.orders[created.GatewayOrderID].Status)
	require.Equal(t, 0, store.grantCount())
}

func TestRefundFromWebhook_ClearsProvenanceMatchedEntitlement(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, createReq("k1"))
	require.NoError(t, err)
	_, err = svc.Capture(ctx, &CaptureOrderRequest{UserID: "u1", GatewayOrderID: created.GatewayOrderID})
	require.NoError(t, err)

	require.NoError(t, svc.RefundFromWebhook(ctx, created.GatewayOrderID))
	require.Equal(t, types.OrderStatusRefunded, store.orders[created.GatewayOrderID].Status)
	e := store.grants["u1"]
	require.False(t, e.IsActive)
	require.Nil(t, e.ExpiresAt)

	// Refund of a pending order is a no-op.
	require.NoError(t, svc.RefundFromWebhook(ctx, "GW-404"))
}
