package notification

import (
	"context"
	"fmt"

	"github.com/telecare-health/platform/pkg/common/logger"
	"github.com/telecare-health/platform/pkg/common/models"
)

// Worker renders workflow events into SMS and dispatches them. Events
// without a usable phone number are logged and committed; delivery errors
// stay uncommitted so the consumer retries them.
type Worker struct {
	templates Templates
	notifier  Notifier
}

func NewWorker(templates Templates, notifier Notifier) *Worker {
	return &Worker{templates: templates, notifier: notifier}
}

func (w *Worker) HandleEvent(ctx context.Context, event models.Event) error {
	body, ok := w.templateFor(event.Type)
	if !ok {
		logger.Log.WithField("event_type", event.Type).Debug("no template for event, skipping")
		return nil
	}

	raw, _ := event.Data["phone"].(string)
	to := NormalizeE164Indian(raw)
	if to == "" {
		logger.Log.WithFields(map[string]interface{}{
			"event_id": event.ID,
			"raw":      raw,
		}).Warn("no valid phone on event, skipping sms")
		return nil
	}

	message, err := Render(body, event.Data)
	if err != nil {
		logger.Log.WithError(err).WithField("event_type", event.Type).Error("template render failed")
		return nil
	}

	if err := w.notifier.SendSMS(ctx, to, message); err != nil {
		return fmt.Errorf("send sms for event %s: %w", event.ID, err)
	}
	return nil
}

func (w *Worker) templateFor(eventType string) (string, bool) {
	switch eventType {
	case EventPaymentSettled:
		return w.templates.PaymentSettled, w.templates.PaymentSettled != ""
	case EventConsultationCompleted:
		return w.templates.ConsultationCompleted, w.templates.ConsultationCompleted != ""
	default:
		return "", false
	}
}
