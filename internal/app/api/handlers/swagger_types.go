package handlers

import (
	"github.com/castaway-live/castaway/internal/app/service/statistics"
	"github.com/castaway-live/castaway/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespCreateOrder wraps CreateOrderResponse in the standard envelope.
type RespCreateOrder struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    CreateOrderResponse      `json:"data"`
}

// RespCaptureOrder wraps CaptureOrderResponse in the standard envelope.
type RespCaptureOrder struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    CaptureOrderResponse     `json:"data"`
}

// RespPremiumStatus wraps PremiumStatusResponse in the standard envelope.
type RespPremiumStatus struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PremiumStatusResponse    `json:"data"`
}

// RespListOrders wraps ListOrdersResponse in the standard envelope.
type RespListOrders struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListOrdersResponse       `json:"data"`
}

// RespRevenueStatistic wraps RevenueStatisticResponse in the standard envelope.
type RespRevenueStatistic struct {
	Code    response.APIResponseCode            `json:"code"`
	Message string                              `json:"message"`
	Data    statistics.RevenueStatisticResponse `json:"data"`
}
