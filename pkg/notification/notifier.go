package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telecare-health/platform/pkg/common/httpclient"
	"github.com/telecare-health/platform/pkg/common/logger"
)

// Notifier delivers a rendered message to a phone number in E.164 form.
type Notifier interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogNotifier is the default when no provider is configured.
type LogNotifier struct{}

func (LogNotifier) SendSMS(ctx context.Context, to, body string) error {
	logger.Log.WithFields(map[string]interface{}{
		"to":   to,
		"body": body,
	}).Info("sms (log only)")
	return nil
}

// HTTPNotifier posts the message to an SMS provider endpoint.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

func NewHTTPNotifier(url string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{url: url, client: httpclient.New(timeout)}
}

func (n *HTTPNotifier) SendSMS(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(map[string]string{"to": to, "body": body})
	if err != nil {
		return err
	}
	return httpclient.Retry(ctx, 3, time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, detail)
		}
		return nil
	})
}
