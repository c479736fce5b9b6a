package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/castaway-live/castaway/pkg/config"
)

// ErrOrderAlreadyCaptured reports PayPal's ORDER_ALREADY_CAPTURED fault: the
// order was finalized by an earlier capture call or by the gateway itself.
var ErrOrderAlreadyCaptured = errors.New("order already captured")

const (
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
	liveBaseURL    = "https://api-m.paypal.com"

	// tokenExpirySlack refreshes the cached token slightly before PayPal's
	// reported expiry to avoid racing the boundary.
	tokenExpirySlack = 60 * time.Second
)

// Webhook transmission headers sent by PayPal with every notification.
const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
	HeaderCertURL          = "Paypal-Cert-Url"
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
)

// Client talks to the PayPal REST API. All calls carry the request context and
// the configured bounded timeout; callers treat any failure as a generic
// gateway error.
type Client struct {
	baseURL    string
	clientID   string
	secret     string
	webhookID  string
	httpClient *http.Client
	log        *zap.SugaredLogger

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) *Client {
	base := cfg.PayPal.BaseURL
	if base == "" {
		base = sandboxBaseURL
		if cfg.PayPal.IsLive {
			base = liveBaseURL
		}
	}
	timeout := time.Duration(cfg.PayPal.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		clientID:   cfg.PayPal.ClientID,
		secret:     cfg.PayPal.Secret,
		webhookID:  cfg.PayPal.WebhookID,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiresAt) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token request returned %d: %s", resp.StatusCode, string(body))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}
	c.token = tr.AccessToken
	c.tokenExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpirySlack)
	return c.token, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if strings.Contains(string(detail), "ORDER_ALREADY_CAPTURED") {
			return fmt.Errorf("%w: %s", ErrOrderAlreadyCaptured, string(detail))
		}
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(detail))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type createOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type purchaseUnit struct {
	ReferenceID string  `json:"reference_id,omitempty"`
	CustomID    string  `json:"custom_id,omitempty"`
	Description string  `json:"description,omitempty"`
	Amount      *amount `json:"amount,omitempty"`

	Payments *purchaseUnitPayments `json:"payments,omitempty"`
}

type purchaseUnitPayments struct {
	Captures []captureResource `json:"captures"`
}

type captureResource struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Amount *amount `json:"amount"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

// CreateOrder opens a gateway order for the given amount and returns PayPal's
// order id. referenceID is our internal order id, echoed back in webhooks as
// custom_id.
func (c *Client) CreateOrder(ctx context.Context, referenceID, amountValue, currency, description string) (string, error) {
	req := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: referenceID,
			CustomID:    referenceID,
			Description: description,
			Amount:      &amount{CurrencyCode: currency, Value: amountValue},
		}},
	}
	var res orderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", req, &res); err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", fmt.Errorf("create order response contained no id")
	}
	return res.ID, nil
}

// Capture is the gateway-confirmed result of finalizing an order. Amount is
// what PayPal actually charged, which is the only amount the caller may trust.
type Capture struct {
	CaptureID string
	Amount    decimal.Decimal
	Currency  string
}

func (c *Client) CaptureOrder(ctx context.Context, gatewayOrderID string) (*Capture, error) {
	var res orderResponse
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", gatewayOrderID)
	if err := c.doJSON(ctx, http.MethodPost, path, struct{}{}, &res); err != nil {
		return nil, err
	}
	if len(res.PurchaseUnits) == 0 || res.PurchaseUnits[0].Payments == nil || len(res.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, fmt.Errorf("capture response for %s contained no capture", gatewayOrderID)
	}
	captured := res.PurchaseUnits[0].Payments.Captures[0]
	if captured.Amount == nil {
		return nil, fmt.Errorf("capture %s contained no amount", captured.ID)
	}
	value, err := decimal.NewFromString(captured.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("capture %s has malformed amount %q: %w", captured.ID, captured.Amount.Value, err)
	}
	return &Capture{CaptureID: captured.ID, Amount: value, Currency: captured.Amount.CurrencyCode}, nil
}

type verifySignatureRequest struct {
	TransmissionID   string          `json:"transmission_id"`
	TransmissionTime string          `json:"transmission_time"`
	TransmissionSig  string          `json:"transmission_sig"`
	CertURL          string          `json:"cert_url"`
	AuthAlgo         string          `json:"auth_algo"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifySignatureResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature asks PayPal whether a notification genuinely
// originates from the configured webhook. The signature covers the raw body
// plus the transmission headers, so a replayed body under a new transmission
// id fails verification.
func (c *Client) VerifyWebhookSignature(ctx context.Context, header http.Header, body []byte) (bool, error) {
	req := verifySignatureRequest{
		TransmissionID:   header.Get(HeaderTransmissionID),
		TransmissionTime: header.Get(HeaderTransmissionTime),
		TransmissionSig:  header.Get(HeaderTransmissionSig),
		CertURL:          header.Get(HeaderCertURL),
		AuthAlgo:         header.Get(HeaderAuthAlgo),
		WebhookID:        c.webhookID,
		WebhookEvent:     json.RawMessage(body),
	}
	var res verifySignatureResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/notification/verify-webhook-signature", req, &res); err != nil {
		return false, err
	}
	return res.VerificationStatus == "SUCCESS", nil
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
