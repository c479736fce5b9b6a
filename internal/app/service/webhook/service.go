package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/castaway-live/castaway/internal/app/service/order"
	"github.com/castaway-live/castaway/internal/models"
	"github.com/castaway-live/castaway/internal/platform/paypal"
	"github.com/castaway-live/castaway/pkg/logctx"
)

// Verifier checks a notification's transmission signature with the gateway.
type Verifier interface {
	VerifyWebhookSignature(ctx context.Context, header http.Header, body []byte) (bool, error)
}

// Reconciler applies verified notifications to the payment ledger.
type Reconciler interface {
	CompleteFromWebhook(ctx context.Context, gatewayOrderID, captureID string, amount decimal.Decimal, currency string) error
	RefundFromWebhook(ctx context.Context, gatewayOrderID string) error
}

// Auditor records process-log rows for handled notifications.
type Auditor interface {
	Save(ctx context.Context, row *models.WebhookProcessLog)
}

type Service struct {
	log        *zap.SugaredLogger
	verifier   Verifier
	reconciler Reconciler
	store      Store
	plog       Auditor
}

func NewService(log *zap.SugaredLogger, v Verifier, r Reconciler, store Store, plog Auditor) *Service {
	return &Service{log: log, verifier: v, reconciler: r, store: store, plog: plog}
}

// Handle processes one inbound gateway notification. The returned error maps
// to the HTTP status the gateway sees: ErrBadPayload -> 400,
// ErrUnauthorized -> 401, anything else -> 500 so the gateway retries.
// Once the delivery row is persisted the outcome is always success: a
// redelivery would be swallowed by the replay guard anyway, so handling
// failures are recorded in the process log instead of surfacing. Business
// no-ops (unknown order, already settled, duplicate delivery) also ack.
func (s *Service) Handle(ctx context.Context, header http.Header, body []byte) error {
	log := logctx.FromCtx(ctx, s.log)

	deliveryID := header.Get(paypal.HeaderTransmissionID)
	if deliveryID == "" {
		return fmt.Errorf("%w: missing transmission id", ErrBadPayload)
	}

	// Replay guard comes first: a known delivery is acked without spending a
	// verification round trip, and stays acked even if the webhook credentials
	// rotated since the original delivery.
	seen, err := s.store.Exists(ctx, deliveryID)
	if err != nil {
		return err
	}
	if seen {
		log.Infow("skipped replayed webhook delivery", "delivery_id", deliveryID)
		return nil
	}

	ev, err := parseEvent(body)
	if err != nil {
		return err
	}

	// Nothing is persisted before the signature checks out.
	ok, err := s.verifier.VerifyWebhookSignature(ctx, header, body)
	if err != nil {
		return fmt.Errorf("failed to verify webhook signature: %w", err)
	}
	if !ok {
		log.Warnw("rejected webhook with bad signature", "delivery_id", deliveryID, "event_type", ev.EventType)
		return ErrUnauthorized
	}

	transmissionAt, terr := time.Parse(time.RFC3339, header.Get(paypal.HeaderTransmissionTime))
	if terr != nil {
		log.Warnw("unparseable webhook transmission time",
			"delivery_id", deliveryID, "value", header.Get(paypal.HeaderTransmissionTime))
	}
	inserted, err := s.store.InsertDelivery(ctx, &models.WebhookDelivery{
		DeliveryID:     deliveryID,
		TransmissionAt: transmissionAt,
		EventType:      ev.EventType,
		GatewayOrderID: ev.gatewayOrderID(),
		Payload:        datatypes.JSON(ev.sanitizedPayload()),
	})
	if err != nil {
		return err
	}
	if !inserted {
		// Lost a concurrent-delivery race; the winner handles the event.
		log.Infow("skipped replayed webhook delivery", "delivery_id", deliveryID)
		return nil
	}

	s.saveLog(ctx, deliveryID, ev, models.WebhookProcessLogStatusReceived, nil)

	if err := s.dispatch(ctx, ev); err != nil {
		log.Errorw("webhook handling failed",
			"delivery_id", deliveryID, "event_type", ev.EventType, "error", err.Error())
		s.saveLog(ctx, deliveryID, ev, models.WebhookProcessLogStatusHandleFailed, err)
		return nil
	}

	s.saveLog(ctx, deliveryID, ev, models.WebhookProcessLogStatusHandled, nil)
	return nil
}

func (s *Service) dispatch(ctx context.Context, ev *Event) error {
	log := logctx.FromCtx(ctx, s.log)

	switch ev.EventType {
	case EventCaptureCompleted:
		gatewayOrderID := ev.gatewayOrderID()
		if gatewayOrderID == "" {
			return fmt.Errorf("%w: capture event without related order id", ErrBadPayload)
		}
		amount, currency, err := ev.amount()
		if err != nil {
			return err
		}
		err = s.reconciler.CompleteFromWebhook(ctx, gatewayOrderID, ev.Resource.ID, amount, currency)
		if errors.Is(err, order.ErrAmountMismatch) {
			// Acknowledged so the gateway stops retrying; the order stays
			// unsettled for manual review.
			log.Errorw("webhook capture amount mismatch",
				"gateway_order_id", gatewayOrderID,
				"amount", amount.String(),
				"currency", currency,
			)
			return nil
		}
		return err
	case EventCaptureRefunded:
		gatewayOrderID := ev.gatewayOrderID()
		if gatewayOrderID == "" {
			return fmt.Errorf("%w: refund event without related order id", ErrBadPayload)
		}
		return s.reconciler.RefundFromWebhook(ctx, gatewayOrderID)
	default:
		log.Infow("ignored webhook event type", "event_type", ev.EventType)
		return nil
	}
}

func (s *Service) saveLog(ctx context.Context, deliveryID string, ev *Event, status models.WebhookProcessLogStatus, handleErr error) {
	var traceID string
	if tid, ok := ctx.Value("traceID").(string); ok {
		traceID = tid
	}

	row := &models.WebhookProcessLog{
		DeliveryID:     deliveryID,
		TraceID:        traceID,
		EventType:      ev.EventType,
		GatewayOrderID: ev.gatewayOrderID(),
		Data:           datatypes.JSON(ev.sanitizedPayload()),
		Status:         status,
	}
	if handleErr != nil {
		resBytes, _ := json.Marshal(map[string]any{"error": handleErr.Error()})
		j := datatypes.JSON(resBytes)
		row.Result = &j
	}
	s.plog.Save(ctx, row)
}
