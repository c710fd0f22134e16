package notification

import (
	"context"

	"github.com/telecare-health/platform/pkg/common/logger"
	"github.com/telecare-health/platform/pkg/common/models"
)

const (
	EventPaymentSettled        = "payment.settled"
	EventConsultationCompleted = "consultation.completed"
	EventChargeRebuildFailed   = "charge.rebuild_failed"

	eventSource = "consult-service"
)

// Publisher is the broker side of the outbox; satisfied by kafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Outbox publishes workflow events after the owning transaction commits.
// Publishing is best effort: a broker outage must never fail a settlement
// that is already durable.
type Outbox struct {
	publisher Publisher
}

func NewOutbox(publisher Publisher) *Outbox {
	return &Outbox{publisher: publisher}
}

func (o *Outbox) PaymentSettled(ctx context.Context, p models.Payment, cons models.Consultation) {
	o.publish(ctx, EventPaymentSettled, map[string]interface{}{
		"payment_id":      p.ID.String(),
		"consultation_id": p.ConsultationID.String(),
		"code":            cons.Code,
		"patient_id":      p.PatientID.String(),
		"hospital_id":     p.HospitalID.String(),
		"amount":          p.Amount,
		"kind":            p.Kind,
		"method":          p.Method,
	})
}

func (o *Outbox) ConsultationCompleted(ctx context.Context, cons models.Consultation) {
	o.publish(ctx, EventConsultationCompleted, map[string]interface{}{
		"consultation_id": cons.ID.String(),
		"code":            cons.Code,
		"patient_id":      cons.PatientID.String(),
		"hospital_id":     cons.HospitalID.String(),
	})
}

func (o *Outbox) ChargeRebuildFailed(ctx context.Context, cons models.Consultation, cause error) {
	o.publish(ctx, EventChargeRebuildFailed, map[string]interface{}{
		"consultation_id": cons.ID.String(),
		"code":            cons.Code,
		"hospital_id":     cons.HospitalID.String(),
		"error":           cause.Error(),
	})
}

func (o *Outbox) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if err := o.publisher.PublishEvent(ctx, eventType, eventSource, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("failed to publish event")
	}
}
