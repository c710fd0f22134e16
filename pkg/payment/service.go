package payment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/auth"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/logger"
	"github.com/telecare-health/platform/pkg/common/models"
	"github.com/telecare-health/platform/pkg/observability/metrics"
)

type Store interface {
	Create(ctx context.Context, p models.Payment) (models.Payment, error)
	ByID(ctx context.Context, hospitalID, id uuid.UUID) (models.Payment, error)
	ByOrderID(ctx context.Context, hospitalID uuid.UUID, orderID string) (models.Payment, error)
	MarkCompleted(ctx context.Context, p models.Payment, verifiedBy uuid.UUID, at time.Time) error
	CompleteRxSettlement(ctx context.Context, p models.Payment, charge models.RxCharge, verifiedBy uuid.UUID, at time.Time) error
}

type ConsultationSource interface {
	Get(ctx context.Context, hospitalID, id uuid.UUID) (models.Consultation, error)
	MarkPaymentReady(ctx context.Context, hospitalID, id uuid.UUID) error
}

type ChargeSource interface {
	PendingByConsultation(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.RxCharge, error)
}

// StockReconciler adjusts inventory around a medicine settlement. Decrement
// runs before the financial records flip, Restock compensates when the flip
// fails afterwards.
type StockReconciler interface {
	Decrement(ctx context.Context, charge models.RxCharge) error
	Restock(ctx context.Context, charge models.RxCharge) error
}

// Events is the best-effort notification sink.
type Events interface {
	PaymentSettled(ctx context.Context, p models.Payment, cons models.Consultation)
}

type Service struct {
	store         Store
	consultations ConsultationSource
	charges       ChargeSource
	stock         StockReconciler
	gateway       Gateway
	events        Events
	nowFunc       func() time.Time
}

func NewService(store Store, consultations ConsultationSource, charges ChargeSource, stock StockReconciler, gateway Gateway, events Events) *Service {
	return &Service{
		store:         store,
		consultations: consultations,
		charges:       charges,
		stock:         stock,
		gateway:       gateway,
		events:        events,
		nowFunc:       time.Now,
	}
}

// CreateOrder opens a gateway order and records the pending payment.
func (s *Service) CreateOrder(ctx context.Context, actor models.Actor, req models.CreateOrderRequest) (models.CreateOrderResponse, error) {
	if err := auth.RequireRole(actor, models.RoleNurse, models.RoleAdmin); err != nil {
		return models.CreateOrderResponse{}, err
	}
	cons, amount, err := s.resolveAmount(ctx, actor, req.Kind, req.ConsultationID, req.Amount)
	if err != nil {
		return models.CreateOrderResponse{}, err
	}

	receipt := receiptFor(req.Kind, cons.Code)
	order, err := s.gateway.CreateOrder(ctx, toPaise(amount), receipt)
	if err != nil {
		return models.CreateOrderResponse{}, err
	}

	p, err := s.store.Create(ctx, models.Payment{
		ConsultationID: cons.ID,
		PatientID:      cons.PatientID,
		HospitalID:     cons.HospitalID,
		Amount:         amount,
		Kind:           req.Kind,
		Method:         models.PaymentMethodGateway,
		GatewayOrderID: order.OrderID,
		CreatedBy:      actor.ID,
	})
	if err != nil {
		return models.CreateOrderResponse{}, err
	}

	return models.CreateOrderResponse{
		OrderID:   order.OrderID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		PaymentID: p.ID,
	}, nil
}

// VerifyGateway settles the payment named by the gateway order once the
// signature checks out. Replays of an already settled order succeed without
// touching anything.
func (s *Service) VerifyGateway(ctx context.Context, actor models.Actor, req models.VerifyGatewayRequest) (models.Payment, error) {
	if err := auth.RequireRole(actor, models.RoleNurse, models.RoleAdmin); err != nil {
		return models.Payment{}, err
	}
	p, err := s.store.ByOrderID(ctx, actor.HospitalID, req.OrderID)
	if err != nil {
		return models.Payment{}, err
	}
	if p.Status == models.PaymentCompleted {
		metrics.ObserveSettlementReplay()
		logger.Log.WithField("order_id", req.OrderID).Info("settlement replay, already completed")
		return p, nil
	}
	if err := s.gateway.VerifySignature(req.OrderID, req.GatewayPaymentID, req.Signature); err != nil {
		metrics.ObserveSignatureFailure()
		return models.Payment{}, err
	}
	p.GatewayPaymentID = req.GatewayPaymentID
	p.GatewaySignature = req.Signature
	return s.settle(ctx, actor, p)
}

// InitiateCash records a pending cash payment for later confirmation at the
// counter.
func (s *Service) InitiateCash(ctx context.Context, actor models.Actor, req models.InitiateCashRequest) (models.Payment, error) {
	if err := auth.RequireRole(actor, models.RoleNurse, models.RoleAdmin); err != nil {
		return models.Payment{}, err
	}
	cons, amount, err := s.resolveAmount(ctx, actor, req.Kind, req.ConsultationID, req.Amount)
	if err != nil {
		return models.Payment{}, err
	}
	return s.store.Create(ctx, models.Payment{
		ConsultationID: cons.ID,
		PatientID:      cons.PatientID,
		HospitalID:     cons.HospitalID,
		Amount:         amount,
		Kind:           req.Kind,
		Method:         models.PaymentMethodCash,
		CreatedBy:      actor.ID,
	})
}

// VerifyCash confirms a cash payment was collected. Idempotent like the
// gateway path.
func (s *Service) VerifyCash(ctx context.Context, actor models.Actor, req models.VerifyCashRequest) (models.Payment, error) {
	if err := auth.RequireRole(actor, models.RoleNurse, models.RoleAdmin); err != nil {
		return models.Payment{}, err
	}
	p, err := s.store.ByID(ctx, actor.HospitalID, req.PaymentID)
	if err != nil {
		return models.Payment{}, err
	}
	if p.Status == models.PaymentCompleted {
		metrics.ObserveSettlementReplay()
		logger.Log.WithField("payment_id", p.ID).Info("settlement replay, already completed")
		return p, nil
	}
	if p.Method != models.PaymentMethodCash {
		return models.Payment{}, apperrors.Conflict("payment is not a cash payment")
	}
	return s.settle(ctx, actor, p)
}

func (s *Service) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (models.Payment, error) {
	if err := auth.RequireRole(actor, models.RoleNurse, models.RoleDoctor, models.RoleAdmin); err != nil {
		return models.Payment{}, err
	}
	return s.store.ByID(ctx, actor.HospitalID, id)
}

// settle finalizes a pending payment on either track. The consult track
// flips the consultation's readiness flag; the rx track reserves stock
// first and compensates with a restock if the financial flip fails.
func (s *Service) settle(ctx context.Context, actor models.Actor, p models.Payment) (models.Payment, error) {
	now := s.nowFunc().UTC()

	switch p.Kind {
	case models.PaymentKindConsult:
		if err := s.store.MarkCompleted(ctx, p, actor.ID, now); err != nil {
			return models.Payment{}, err
		}
		if err := s.consultations.MarkPaymentReady(ctx, p.HospitalID, p.ConsultationID); err != nil {
			logger.Log.WithError(err).WithField("consultation_id", p.ConsultationID).Error("failed to flag consultation payment readiness")
			return models.Payment{}, err
		}

	case models.PaymentKindRx:
		charge, err := s.charges.PendingByConsultation(ctx, p.HospitalID, p.ConsultationID)
		if err != nil {
			return models.Payment{}, err
		}
		if err := s.stock.Decrement(ctx, charge); err != nil {
			if apperrors.KindOf(err) == apperrors.KindInsufficientStock {
				metrics.ObserveStockFailure()
			}
			return models.Payment{}, err
		}
		if err := s.store.CompleteRxSettlement(ctx, p, charge, actor.ID, now); err != nil {
			if restockErr := s.stock.Restock(ctx, charge); restockErr != nil {
				logger.Log.WithError(restockErr).WithField("charge_id", charge.ID).Error("restock compensation failed")
			}
			return models.Payment{}, err
		}

	default:
		return models.Payment{}, apperrors.Validationf("unknown payment kind: %s", p.Kind)
	}

	settled, err := s.store.ByID(ctx, p.HospitalID, p.ID)
	if err != nil {
		return models.Payment{}, err
	}
	metrics.ObserveSettlement()

	cons, err := s.consultations.Get(ctx, p.HospitalID, p.ConsultationID)
	if err != nil {
		logger.Log.WithError(err).WithField("consultation_id", p.ConsultationID).Warn("failed to load consultation for settlement event")
	}
	s.events.PaymentSettled(ctx, settled, cons)
	return settled, nil
}

func (s *Service) resolveAmount(ctx context.Context, actor models.Actor, kind string, consultationID uuid.UUID, requested float64) (models.Consultation, float64, error) {
	cons, err := s.consultations.Get(ctx, actor.HospitalID, consultationID)
	if err != nil {
		return models.Consultation{}, 0, err
	}

	switch kind {
	case models.PaymentKindConsult:
		if requested <= 0 || math.IsInf(requested, 0) || math.IsNaN(requested) {
			return models.Consultation{}, 0, apperrors.Validation("a positive amount is required for consult payments")
		}
		return cons, requested, nil
	case models.PaymentKindRx:
		// the bill drives the amount; client-supplied figures are ignored
		charge, err := s.charges.PendingByConsultation(ctx, actor.HospitalID, consultationID)
		if err != nil {
			return models.Consultation{}, 0, err
		}
		return cons, charge.GrandTotal, nil
	default:
		return models.Consultation{}, 0, apperrors.Validationf("unknown payment kind: %s", kind)
	}
}

func toPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

func receiptFor(kind, code string) string {
	if kind == models.PaymentKindRx {
		return fmt.Sprintf("RX-%s", code)
	}
	return fmt.Sprintf("CONS-%s", code)
}
