package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/castaway-live/castaway/internal/app/service/order"
	"github.com/castaway-live/castaway/internal/app/service/statistics"
	models "github.com/castaway-live/castaway/internal/models"
	"github.com/castaway-live/castaway/pkg/response"
	"github.com/castaway-live/castaway/pkg/types"
)

type ListOrdersRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type OrderItem struct {
	ID                   string            `json:"id"`
	UserID               string            `json:"user_id"`
	GatewayOrderID       string            `json:"gateway_order_id"`
	GatewayCaptureID     *string           `json:"gateway_capture_id"`
	Tier                 types.PremiumTier `json:"tier"`
	AmountCents          int64             `json:"amount_cents"`
	Currency             string            `json:"currency"`
	Status               types.OrderStatus `json:"status"`
	CompletedAt          *time.Time        `json:"completed_at"`
	EntitlementExpiresAt *time.Time        `json:"entitlement_expires_at"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func toOrderItem(m *models.PaymentOrder) *OrderItem {
	return &OrderItem{
		ID:                   m.ID,
		UserID:               m.UserID,
		GatewayOrderID:       m.GatewayOrderID,
		GatewayCaptureID:     m.GatewayCaptureID,
		Tier:                 m.Tier,
		AmountCents:          m.AmountCents,
		Currency:             m.Currency,
		Status:               m.Status,
		CompletedAt:          m.CompletedAt,
		EntitlementExpiresAt: m.EntitlementExpiresAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

type ListOrdersResponse struct {
	Items []*OrderItem `json:"items"`
	Total int64        `json:"total"`
}

// @Summary      List Payment Orders (Admin)
// @Description  Retrieves a paginated and filterable list of payment orders.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ListOrdersRequest true "List orders request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListOrders
// @Router       /api/v1/admin/list_orders [post]
func ApiListOrders(mgr order.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListOrdersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		scanReq := &order.ScanOrdersRequest{Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder}
		res, err := mgr.ScanOrders(c.Request.Context(), scanReq)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(res.Items, func(it *models.PaymentOrder, _ int) *OrderItem { return toOrderItem(it) })
		c.JSON(http.StatusOK, response.OKT(&ListOrdersResponse{Items: items, Total: res.Total}))
	}
}

// @Summary      Get Revenue Statistics (Admin)
// @Description  Retrieves daily revenue and premium entitlement statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.RevenueStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespRevenueStatistic
// @Router       /api/v1/admin/get_revenue_statistic [post]
func ApiGetRevenueStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.RevenueStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetRevenueStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, mgr order.Manager, stats *statistics.Service) {
	r.POST("/list_orders", ApiListOrders(mgr))
	r.POST("/get_revenue_statistic", ApiGetRevenueStatistic(stats))
}
