package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/castaway-live/castaway/internal/app/service/webhook"
	"github.com/castaway-live/castaway/pkg/logctx"
	"github.com/castaway-live/castaway/pkg/response"
)

// @Summary      PayPal Webhook
// @Description  Handles PayPal webhook notifications. Signature-verified; duplicate deliveries are acknowledged without reprocessing.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /webhooks/paypal [post]
func ApiPayPalWebhook(svc *webhook.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		logctx.FromGin(c, log).Infow("webhook_paypal_received")

		if err := svc.Handle(c.Request.Context(), c.Request.Header, body); err != nil {
			logctx.FromGin(c, log).Errorw("webhook_paypal_handle_error", "error", err.Error())
			switch {
			case errors.Is(err, webhook.ErrBadPayload):
				c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			case errors.Is(err, webhook.ErrUnauthorized):
				c.JSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, err.Error()))
			default:
				// 5xx so the gateway redelivers.
				c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}

		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, svc *webhook.Service, log *zap.SugaredLogger) {
	r.POST("/paypal", ApiPayPalWebhook(svc, log))
}
