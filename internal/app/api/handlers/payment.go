package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/castaway-live/castaway/internal/app/service/entitlement"
	"github.com/castaway-live/castaway/internal/app/service/order"
	"github.com/castaway-live/castaway/pkg/response"
	"github.com/castaway-live/castaway/pkg/types"
)

type CreateOrderRequest struct {
	Tier           types.PremiumTier `json:"tier"`
	IdempotencyKey string            `json:"idempotency_key"`
}

type CreateOrderResponse struct {
	OrderID     string            `json:"order_id"`
	Tier        types.PremiumTier `json:"tier"`
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
}

type CaptureOrderRequest struct {
	OrderID string `json:"order_id"`
}

type CaptureOrderResponse struct {
	Success          bool              `json:"success"`
	Tier             types.PremiumTier `json:"tier"`
	PremiumExpiresAt time.Time         `json:"premium_expires_at"`
}

type PremiumStatusResponse struct {
	IsPremium bool              `json:"is_premium"`
	Tier      types.PremiumTier `json:"tier,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

// identity reads the claims the identity middleware stored on the context.
func identity(c *gin.Context) (userID string, emailVerified bool) {
	userID = c.GetString("user_id")
	emailVerified = c.GetBool("email_verified")
	return
}

// writeOrderError maps the order service's sentinel errors to HTTP statuses.
func writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidTier), errors.Is(err, order.ErrMissingIdempotencyKey):
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, order.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeUnauthorized, err.Error()))
	case errors.Is(err, order.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, response.ErrorT[any](response.APIResponseCodeRateLimited, err.Error()))
	case errors.Is(err, order.ErrAlreadyEntitled), errors.Is(err, order.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, response.ErrorT[any](response.APIResponseCodeConflict, err.Error()))
	case errors.Is(err, order.ErrNotFound):
		c.JSON(http.StatusNotFound, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
	case errors.Is(err, order.ErrAmountMismatch):
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, order.ErrGateway):
		c.JSON(http.StatusBadGateway, response.ErrorT[any](response.APIResponseCodeGatewayError, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
	}
}

// @Summary      Create Premium Order
// @Description  Opens a payment-gateway order for the requested premium tier. Amounts are derived server-side from the plan catalog.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body handlers.CreateOrderRequest true "Create order request"
// @Success      200  {object}  handlers.RespCreateOrder
// @Router       /api/v1/payments/create_order [post]
func ApiCreateOrder(mgr order.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		userID, emailVerified := identity(c)
		res, err := mgr.Create(c.Request.Context(), &order.CreateOrderRequest{
			UserID:         userID,
			EmailVerified:  emailVerified,
			Tier:           req.Tier,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			writeOrderError(c, err)
			return
		}

		c.JSON(http.StatusOK, response.OKT(&CreateOrderResponse{
			OrderID:     res.GatewayOrderID,
			Tier:        res.Tier,
			AmountCents: res.AmountCents,
			Currency:    res.Currency,
		}))
	}
}

// @Summary      Capture Premium Order
// @Description  Captures an approved gateway order, verifies the charged amount, and activates the premium entitlement.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body handlers.CaptureOrderRequest true "Capture order request"
// @Success      200  {object}  handlers.RespCaptureOrder
// @Router       /api/v1/payments/capture_order [post]
func ApiCaptureOrder(mgr order.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CaptureOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.OrderID == "" {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing order_id"))
			return
		}

		userID, _ := identity(c)
		res, err := mgr.Capture(c.Request.Context(), &order.CaptureOrderRequest{
			UserID:         userID,
			GatewayOrderID: req.OrderID,
		})
		if err != nil {
			writeOrderError(c, err)
			return
		}

		c.JSON(http.StatusOK, response.OKT(&CaptureOrderResponse{
			Success:          true,
			Tier:             res.Tier,
			PremiumExpiresAt: res.EntitlementExpiresAt,
		}))
	}
}

// @Summary      Premium Status
// @Description  Returns the caller's current premium entitlement.
// @Tags         Payment
// @Produce      json
// @Success      200  {object}  handlers.RespPremiumStatus
// @Router       /api/v1/payments/premium_status [get]
func ApiPremiumStatus(ents *entitlement.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := identity(c)

		e, err := ents.GetActive(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}

		out := &PremiumStatusResponse{}
		if e != nil {
			out.IsPremium = true
			out.Tier = e.Tier
			out.ExpiresAt = e.ExpiresAt
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, mgr order.Manager, ents *entitlement.Service) {
	r.POST("/create_order", ApiCreateOrder(mgr))
	r.POST("/capture_order", ApiCaptureOrder(mgr))
	r.GET("/premium_status", ApiPremiumStatus(ents))
}
