package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/castaway-live/castaway/internal/app/service/order"
	"github.com/castaway-live/castaway/pkg/types"
)

type stubOrderMgr struct {
	createErr  error
	captureErr error
}

func (s *stubOrderMgr) Create(_ context.Context, req *order.CreateOrderRequest) (*order.CreateOrderResult, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &order.CreateOrderResult{
		GatewayOrderID: "GW-1",
		Tier:           req.Tier,
		AmountCents:    499,
		Currency:       "USD",
	}, nil
}

func (s *stubOrderMgr) Capture(_ context.Context, _ *order.CaptureOrderRequest) (*order.CaptureOrderResult, error) {
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	return &order.CaptureOrderResult{
		Tier:                 types.PremiumTierMonthly,
		EntitlementExpiresAt: time.Unix(1772366400, 0),
	}, nil
}

func (s *stubOrderMgr) CompleteFromWebhook(_ context.Context, _, _ string, _ decimal.Decimal, _ string) error {
	panic("not used")
}

func (s *stubOrderMgr) RefundFromWebhook(_ context.Context, _ string) error {
	panic("not used")
}

func (s *stubOrderMgr) ScanOrders(_ context.Context, _ *order.ScanOrdersRequest) (*order.ScanOrdersResponse, error) {
	panic("not used")
}

func newPaymentRouter(mgr order.Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "u1")
		c.Set("email_verified", true)
	})
	r.POST("/api/v1/payments/create_order", ApiCreateOrder(mgr))
	r.POST("/api/v1/payments/capture_order", ApiCaptureOrder(mgr))
	return r
}

func postJSON(r *gin.Engine, path string, payload map[string]any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApiCreateOrder_ReturnsServerDerivedAmount(t *testing.T) {
	r := newPaymentRouter(&stubOrderMgr{})

	w := postJSON(r, "/api/v1/payments/create_order", map[string]any{"tier": "monthly", "idempotency_key": "k1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"order_id":"GW-1"`)
	require.Contains(t, w.Body.String(), `"amount_cents":499`)
}

func TestApiCreateOrder_ErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid tier", order.ErrInvalidTier, http.StatusBadRequest},
		{"missing key", order.ErrMissingIdempotencyKey, http.StatusBadRequest},
		{"email not verified", order.ErrEmailNotVerified, http.StatusForbidden},
		{"rate limited", order.ErrRateLimited, http.StatusTooManyRequests},
		{"already entitled", order.ErrAlreadyEntitled, http.StatusConflict},
		{"gateway down", order.ErrGateway, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newPaymentRouter(&stubOrderMgr{createErr: tc.err})
			w := postJSON(r, "/api/v1/payments/create_order", map[string]any{"tier": "monthly", "idempotency_key": "k1"})
			require.Equal(t, tc.code, w.Code)
		})
	}
}

func TestApiCaptureOrder_Success(t *testing.T) {
	r := newPaymentRouter(&stubOrderMgr{})

	w := postJSON(r, "/api/v1/payments/capture_order", map[string]any{"order_id": "GW-1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
	require.Contains(t, w.Body.String(), "premium_expires_at")
}

func TestApiCaptureOrder_ErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", order.ErrNotFound, http.StatusNotFound},
		{"already processed", order.ErrAlreadyProcessed, http.StatusConflict},
		{"amount mismatch", order.ErrAmountMismatch, http.StatusBadRequest},
		{"gateway down", order.ErrGateway, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newPaymentRouter(&stubOrderMgr{captureErr: tc.err})
			w := postJSON(r, "/api/v1/payments/capture_order", map[string]any{"order_id": "GW-1"})
			require.Equal(t, tc.code, w.Code)
		})
	}
}

func TestApiCaptureOrder_MissingOrderID(t *testing.T) {
	r := newPaymentRouter(&stubOrderMgr{})

	w := postJSON(r, "/api/v1/payments/capture_order", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterPaymentRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api/v1/payments")
	RegisterPaymentRoutes(g, nil, nil)

	routes := r.Routes()
	contains := func(target string) bool {
		for _, rt := range routes {
			if rt.Method+" "+rt.Path == target {
				return true
			}
		}
		return false
	}

	require.True(t, contains("POST /api/v1/payments/create_order"))
	require.True(t, contains("POST /api/v1/payments/capture_order"))
	require.True(t, contains("GET /api/v1/payments/premium_status"))
}
