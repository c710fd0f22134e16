package consultation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/auth"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/logger"
	"github.com/telecare-health/platform/pkg/common/models"
	"github.com/telecare-health/platform/pkg/observability/metrics"
)

type Store interface {
	Create(ctx context.Context, cons models.Consultation) (models.Consultation, error)
	Get(ctx context.Context, hospitalID, id uuid.UUID) (models.Consultation, error)
	ListQueue(ctx context.Context, hospitalID uuid.UUID) ([]models.Consultation, error)
	ListClaimedBy(ctx context.Context, hospitalID, doctorID uuid.UUID) ([]models.Consultation, error)
	ClaimQueued(ctx context.Context, hospitalID, id, doctorID uuid.UUID, at time.Time) error
	Decline(ctx context.Context, hospitalID, id uuid.UUID, reason string) error
	CompleteClaimed(ctx context.Context, hospitalID, id, doctorID uuid.UUID, at time.Time) error
	MarkPaymentReady(ctx context.Context, hospitalID, id uuid.UUID) error
}

type PrescriptionChecker interface {
	Exists(ctx context.Context, hospitalID, consultationID uuid.UUID) (bool, error)
}

type ChargeRebuilder interface {
	Rebuild(ctx context.Context, actor models.Actor, consultationID uuid.UUID) (models.RxCharge, error)
}

// Events is the best-effort notification sink; implementations must never
// return control-flow errors into the state machine.
type Events interface {
	ConsultationCompleted(ctx context.Context, cons models.Consultation)
	ChargeRebuildFailed(ctx context.Context, cons models.Consultation, cause error)
}

type Service struct {
	store         Store
	prescriptions PrescriptionChecker
	rebuilder     ChargeRebuilder
	events        Events
	nowFunc       func() time.Time
}

func NewService(store Store, prescriptions PrescriptionChecker, rebuilder ChargeRebuilder, events Events) *Service {
	return &Service{
		store:         store,
		prescriptions: prescriptions,
		rebuilder:     rebuilder,
		events:        events,
		nowFunc:       time.Now,
	}
}

// Create registers a new encounter in the queue. The consultation stays
// unclaimable until the consult fee settles and flips the readiness flag.
func (s *Service) Create(ctx context.Context, actor models.Actor, req models.CreateConsultationRequest) (models.Consultation, error) {
	if err := auth.RequireRole(actor, models.RoleNurse); err != nil {
		return models.Consultation{}, err
	}
	if req.PatientID == uuid.Nil {
		return models.Consultation{}, apperrors.Validation("patient_id is required")
	}
	if req.ChiefComplaint == "" {
		return models.Consultation{}, apperrors.Validation("chief_complaint is required")
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if priority != models.PriorityNormal && priority != models.PriorityUrgent {
		return models.Consultation{}, apperrors.Validation("priority must be normal or urgent")
	}

	return s.store.Create(ctx, models.Consultation{
		PatientID:      req.PatientID,
		HospitalID:     actor.HospitalID,
		NurseID:        actor.ID,
		ChiefComplaint: req.ChiefComplaint,
		ConditionType:  req.ConditionType,
		Priority:       priority,
	})
}

func (s *Service) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (models.Consultation, error) {
	if err := auth.RequireRole(actor, models.RoleDoctor, models.RoleNurse, models.RoleAdmin); err != nil {
		return models.Consultation{}, err
	}
	return s.store.Get(ctx, actor.HospitalID, id)
}

func (s *Service) Queue(ctx context.Context, actor models.Actor) ([]models.Consultation, error) {
	if err := auth.RequireRole(actor, models.RoleDoctor); err != nil {
		return nil, err
	}
	return s.store.ListQueue(ctx, actor.HospitalID)
}

func (s *Service) InProgress(ctx context.Context, actor models.Actor) ([]models.Consultation, error) {
	if err := auth.RequireRole(actor, models.RoleDoctor); err != nil {
		return nil, err
	}
	return s.store.ListClaimedBy(ctx, actor.HospitalID, actor.ID)
}

// Claim takes exclusive ownership of a queued, payment-ready consultation.
// Losing a concurrent race yields Conflict; callers re-poll the queue.
func (s *Service) Claim(ctx context.Context, actor models.Actor, id uuid.UUID) (models.Consultation, error) {
	if err := auth.RequireRole(actor, models.RoleDoctor); err != nil {
		return models.Consultation{}, err
	}
	if err := s.store.ClaimQueued(ctx, actor.HospitalID, id, actor.ID, s.nowFunc().UTC()); err != nil {
		metrics.ObserveClaim(false)
		return models.Consultation{}, err
	}
	metrics.ObserveClaim(true)
	return s.store.Get(ctx, actor.HospitalID, id)
}

func (s *Service) Decline(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (models.Consultation, error) {
	if err := auth.RequireRole(actor, models.RoleDoctor); err != nil {
		return models.Consultation{}, err
	}
	if reason == "" {
		reason = "no reason"
	}
	if err := s.store.Decline(ctx, actor.HospitalID, id, reason); err != nil {
		return models.Consultation{}, err
	}
	return s.store.Get(ctx, actor.HospitalID, id)
}

// Complete closes a consultation claimed by the caller. A prescription must
// exist first. The charge rebuild that follows is best-effort: completion's
// contract is the status transition, not billing freshness.
func (s *Service) Complete(ctx context.Context, actor models.Actor, id uuid.UUID) (models.Consultation, error) {
	if err := auth.RequireRole(actor, models.RoleDoctor); err != nil {
		return models.Consultation{}, err
	}

	cons, err := s.store.Get(ctx, actor.HospitalID, id)
	if err != nil {
		return models.Consultation{}, err
	}
	if cons.Status != models.ConsultationClaimed {
		return models.Consultation{}, apperrors.Conflict("consultation is not claimed")
	}
	if cons.DoctorID == nil || *cons.DoctorID != actor.ID {
		return models.Consultation{}, apperrors.Forbidden("consultation claimed by another doctor")
	}
	hasRx, err := s.prescriptions.Exists(ctx, actor.HospitalID, id)
	if err != nil {
		return models.Consultation{}, err
	}
	if !hasRx {
		return models.Consultation{}, apperrors.Validation("prescription required")
	}

	if err := s.store.CompleteClaimed(ctx, actor.HospitalID, id, actor.ID, s.nowFunc().UTC()); err != nil {
		return models.Consultation{}, err
	}
	metrics.ObserveCompletion()

	completed, err := s.store.Get(ctx, actor.HospitalID, id)
	if err != nil {
		return models.Consultation{}, err
	}

	if _, rebuildErr := s.rebuilder.Rebuild(ctx, actor, id); rebuildErr != nil {
		logger.Log.WithError(rebuildErr).WithField("consultation_id", id).Warn("charge rebuild on completion failed")
		s.events.ChargeRebuildFailed(ctx, completed, rebuildErr)
	}
	s.events.ConsultationCompleted(ctx, completed)
	return completed, nil
}

// MarkPaymentReady is fired by the payment ledger when the consult fee
// settles. Idempotent.
func (s *Service) MarkPaymentReady(ctx context.Context, hospitalID, id uuid.UUID) error {
	return s.store.MarkPaymentReady(ctx, hospitalID, id)
}
