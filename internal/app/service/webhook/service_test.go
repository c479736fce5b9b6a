package webhook

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/castaway-live/castaway/internal/app/service/order"
	"github.com/castaway-live/castaway/internal/models"
	"github.com/castaway-live/castaway/internal/platform/paypal"
)

type fakeVerifier struct {
	valid bool
	err   error
	calls int
}

func (f *fakeVerifier) VerifyWebhookSignature(_ context.Context, _ http.Header, _ []byte) (bool, error) {
	f.calls++
	return f.valid, f.err
}

type reconcileCall struct {
	gatewayOrderID string
	captureID      string
	amount         decimal.Decimal
	currency       string
}

type fakeReconciler struct {
	completeErr error
	completes   []reconcileCall
	refunds     []string
}

func (f *fakeReconciler) CompleteFromWebhook(_ context.Context, gatewayOrderID, captureID string, amount decimal.Decimal, currency string) error {
	f.completes = append(f.completes, reconcileCall{gatewayOrderID, captureID, amount, currency})
	return f.completeErr
}

func (f *fakeReconciler) RefundFromWebhook(_ context.Context, gatewayOrderID string) error {
	f.refunds = append(f.refunds, gatewayOrderID)
	return nil
}

type memStore struct {
	mu sync.Mutex
	// missExists makes Exists report false even for known rows, modelling the
	// window where a concurrent delivery inserts between the check and our
	// insert.
	missExists bool
	rows       map[string]*models.WebhookDelivery
}

func newMemStore() *memStore { return &memStore{rows: map[string]*models.WebhookDelivery{}} }

func (m *memStore) Exists(_ context.Context, deliveryID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missExists {
		return false, nil
	}
	_, ok := m.rows[deliveryID]
	return ok, nil
}

func (m *memStore) InsertDelivery(_ context.Context, d *models.WebhookDelivery) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[d.DeliveryID]; ok {
		return false, nil
	}
	m.rows[d.DeliveryID] = d
	return true, nil
}

type memAuditor struct {
	mu   sync.Mutex
	rows []*models.WebhookProcessLog
}

func (m *memAuditor) Save(_ context.Context, row *models.WebhookProcessLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
}

func (m *memAuditor) statuses() []models.WebhookProcessLogStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.WebhookProcessLogStatus, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Status)
	}
	return out
}

func newTestService() (*Service, *fakeVerifier, *fakeReconciler, *memStore, *memAuditor) {
	v := &fakeVerifier{valid: true}
	r := &fakeReconciler{}
	st := newMemStore()
	a := &memAuditor{}
	return NewService(zap.NewNop().Sugar(), v, r, st, a), v, r, st, a
}

func eventHeader(deliveryID string) http.Header {
	h := http.Header{}
	h.Set(paypal.HeaderTransmissionID, deliveryID)
	h.Set(paypal.HeaderTransmissionTime, "2026-03-01T10:00:00Z")
	h.Set(paypal.HeaderTransmissionSig, "sig")
	h.Set(paypal.HeaderCertURL, "https://api.paypal.com/cert")
	h.Set(paypal.HeaderAuthAlgo, "SHA256withRSA")
	return h
}

const captureCompletedBody = `{
	"id": "WH-1",
	"event_type": "PAYMENT.CAPTURE.COMPLETED",
	"create_time": "2026-03-01T10:00:00Z",
	"resource": {
		"id": "CAP-1",
		"status": "COMPLETED",
		"custom_id": "order-uuid-1",
		"amount": {"currency_code": "USD", "value": "4.99"},
		"supplementary_data": {"related_ids": {"order_id": "GW-1"}},
		"payer": {"email_address": "buyer@example.com", "name": {"given_name": "Pat"}}
	}
}`

func TestHandle_CaptureCompletedReconciles(t *testing.T) {
	svc, _, rec, st, aud := newTestService()

	err := svc.Handle(context.Background(), eventHeader("T-1"), []byte(captureCompletedBody))
	require.NoError(t, err)

	require.Len(t, rec.completes, 1)
	call := rec.completes[0]
	require.Equal(t, "GW-1", call.gatewayOrderID)
	require.Equal(t, "CAP-1", call.captureID)
	require.True(t, call.amount.Equal(decimal.RequireFromString("4.99")))
	require.Equal(t, "USD", call.currency)

	require.Contains(t, st.rows, "T-1")
	require.Equal(t, []models.WebhookProcessLogStatus{
		models.WebhookProcessLogStatusReceived,
		models.WebhookProcessLogStatusHandled,
	}, aud.statuses())
}

func TestHandle_PersistedPayloadDropsPayerFields(t *testing.T) {
	svc, _, _, st, _ := newTestService()

	require.NoError(t, svc.Handle(context.Background(), eventHeader("T-1"), []byte(captureCompletedBody)))

	stored := string(st.rows["T-1"].Payload)
	require.NotContains(t, stored, "buyer@example.com")
	require.NotContains(t, stored, "payer")
	require.Contains(t, stored, "GW-1")
}

func TestHandle_DuplicateDeliveryAcknowledgedOnce(t *testing.T) {
	svc, v, rec, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Handle(ctx, eventHeader("T-1"), []byte(captureCompletedBody)))
	require.NoError(t, svc.Handle(ctx, eventHeader("T-1"), []byte(captureCompletedBody)))

	require.Len(t, rec.completes, 1)
	// The replay is answered from the delivery table without another verify
	// round trip.
	require.Equal(t, 1, v.calls)
}

func TestHandle_ReplayAckedAfterCredentialRotation(t *testing.T) {
	svc, v, rec, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Handle(ctx, eventHeader("T-1"), []byte(captureCompletedBody)))

	// A rotated webhook secret invalidates the stored signature; the redelivery
	// must still be acknowledged.
	v.valid = false
	require.NoError(t, svc.Handle(ctx, eventHeader("T-1"), []byte(captureCompletedBody)))
	require.Len(t, rec.completes, 1)
}

func TestHandle_ConcurrentInsertLostRaceAcked(t *testing.T) {
	svc, _, rec, st, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Handle(ctx, eventHeader("T-1"), []byte(captureCompletedBody)))

	// Existence check misses but the insert conflicts, as when two deliveries
	// of the same event race.
	st.missExists = true
	require.NoError(t, svc.Handle(ctx, eventHeader("T-1"), []byte(captureCompletedBody)))
	require.Len(t, rec.completes, 1)
}

func TestHandle_BadSignaturePersistsNothing(t *testing.T) {
	svc, v, rec, st, aud := newTestService()
	v.valid = false

	err := svc.Handle(context.Background(), eventHeader("T-1"), []byte(captureCompletedBody))
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Empty(t, st.rows)
	require.Empty(t, rec.completes)
	require.Empty(t, aud.rows)
}

func TestHandle_VerifierOutageIsRetryable(t *testing.T) {
	svc, v, _, st, _ := newTestService()
	v.err = fmt.Errorf("gateway timeout")

	err := svc.Handle(context.Background(), eventHeader("T-1"), []byte(captureCompletedBody))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnauthorized)
	require.NotErrorIs(t, err, ErrBadPayload)
	require.Empty(t, st.rows)
}

func TestHandle_MalformedInput(t *testing.T) {
	svc, v, _, _, _ := newTestService()
	ctx := context.Background()

	// Missing transmission id header.
	err := svc.Handle(ctx, http.Header{}, []byte(captureCompletedBody))
	require.ErrorIs(t, err, ErrBadPayload)

	// Body that is not JSON.
	err = svc.Handle(ctx, eventHeader("T-1"), []byte("not json"))
	require.ErrorIs(t, err, ErrBadPayload)

	// Event without a type.
	err = svc.Handle(ctx, eventHeader("T-1"), []byte(`{"id":"WH-1"}`))
	require.ErrorIs(t, err, ErrBadPayload)

	// Malformed bodies are rejected before the verify round trip.
	require.Zero(t, v.calls)
}

func TestHandle_UnparseableTransmissionTimeStillHandled(t *testing.T) {
	svc, _, rec, st, _ := newTestService()

	h := eventHeader("T-1")
	h.Set(paypal.HeaderTransmissionTime, "yesterday-ish")

	require.NoError(t, svc.Handle(context.Background(), h, []byte(captureCompletedBody)))
	require.Len(t, rec.completes, 1)
	require.True(t, st.rows["T-1"].TransmissionAt.IsZero())
}

func TestHandle_AmountMismatchAcknowledged(t *testing.T) {
	svc, _, rec, _, aud := newTestService()
	rec.completeErr = order.ErrAmountMismatch

	err := svc.Handle(context.Background(), eventHeader("T-1"), []byte(captureCompletedBody))
	require.NoError(t, err)
	require.Equal(t, []models.WebhookProcessLogStatus{
		models.WebhookProcessLogStatusReceived,
		models.WebhookProcessLogStatusHandled,
	}, aud.statuses())
}

func TestHandle_ReconcilerFailureAckedWithFailureLog(t *testing.T) {
	svc, _, rec, st, aud := newTestService()
	rec.completeErr = fmt.Errorf("db down")

	// A redelivery would be swallowed by the replay guard, so the failure is
	// acknowledged and kept in the process log instead of bounced.
	err := svc.Handle(context.Background(), eventHeader("T-1"), []byte(captureCompletedBody))
	require.NoError(t, err)
	require.Contains(t, st.rows, "T-1")
	require.Equal(t, []models.WebhookProcessLogStatus{
		models.WebhookProcessLogStatusReceived,
		models.WebhookProcessLogStatusHandleFailed,
	}, aud.statuses())
}

func TestHandle_CaptureRefunded(t *testing.T) {
	svc, _, rec, _, _ := newTestService()

	body := `{
		"id": "WH-2",
		"event_type": "PAYMENT.CAPTURE.REFUNDED",
		"resource": {
			"id": "REF-1",
			"supplementary_data": {"related_ids": {"order_id": "GW-1"}}
		}
	}`
	require.NoError(t, svc.Handle(context.Background(), eventHeader("T-2"), []byte(body)))
	require.Equal(t, []string{"GW-1"}, rec.refunds)
}

func TestHandle_UnrelatedEventTypeIgnored(t *testing.T) {
	svc, _, rec, st, _ := newTestService()

	body := `{"id":"WH-3","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"GW-9"}}`
	require.NoError(t, svc.Handle(context.Background(), eventHeader("T-3"), []byte(body)))

	// Still recorded for replay protection, but nothing to reconcile.
	require.Contains(t, st.rows, "T-3")
	require.Empty(t, rec.completes)
	require.Empty(t, rec.refunds)
}

func TestHandle_CaptureEventMissingOrderID(t *testing.T) {
	svc, _, rec, st, aud := newTestService()

	body := `{"id":"WH-4","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-4","amount":{"currency_code":"USD","value":"4.99"}}}`
	err := svc.Handle(context.Background(), eventHeader("T-4"), []byte(body))
	require.NoError(t, err)
	require.Empty(t, rec.completes)
	require.Contains(t, st.rows, "T-4")
	require.Contains(t, aud.statuses(), models.WebhookProcessLogStatusHandleFailed)
}
