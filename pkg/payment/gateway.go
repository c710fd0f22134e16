package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/config"
	"github.com/telecare-health/platform/pkg/common/httpclient"
)

// GatewayOrder is the provider-side order a client app pays against.
type GatewayOrder struct {
	OrderID  string
	Amount   int64 // paise
	Currency string
}

type Gateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, receipt string) (GatewayOrder, error)
	VerifySignature(orderID, gatewayPaymentID, signature string) error
}

// RazorpayGateway talks to a razorpay-compatible order API over basic auth.
type RazorpayGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

func NewRazorpayGateway(cfg *config.Config) *RazorpayGateway {
	return &RazorpayGateway{
		baseURL:   cfg.GatewayBaseURL,
		keyID:     cfg.GatewayKeyID,
		keySecret: cfg.GatewayKeySecret,
		client:    httpclient.New(cfg.GatewayTimeout),
	}
}

type gatewayOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type gatewayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountPaise int64, receipt string) (GatewayOrder, error) {
	payload, err := json.Marshal(gatewayOrderRequest{
		Amount:   amountPaise,
		Currency: "INR",
		Receipt:  receipt,
	})
	if err != nil {
		return GatewayOrder{}, err
	}

	var order gatewayOrderResponse
	err = httpclient.Retry(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(g.keyID, g.keySecret)

		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("gateway order create failed: status %d: %s", resp.StatusCode, body)
		}
		return json.NewDecoder(resp.Body).Decode(&order)
	})
	if err != nil {
		return GatewayOrder{}, err
	}
	return GatewayOrder{OrderID: order.ID, Amount: order.Amount, Currency: order.Currency}, nil
}

// VerifySignature checks the HMAC-SHA256 the gateway computes over
// "<orderID>|<gatewayPaymentID>" with the shared key secret.
func (g *RazorpayGateway) VerifySignature(orderID, gatewayPaymentID, signature string) error {
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	fmt.Fprintf(mac, "%s|%s", orderID, gatewayPaymentID)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return apperrors.SignatureMismatch("gateway signature mismatch")
	}
	return nil
}
