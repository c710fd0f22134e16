package prescription

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/auth"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/logger"
	"github.com/telecare-health/platform/pkg/common/models"
)

type Store interface {
	Upsert(ctx context.Context, p models.Prescription) (models.Prescription, error)
	ByConsultation(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.Prescription, error)
	Exists(ctx context.Context, hospitalID, consultationID uuid.UUID) (bool, error)
	SetLock(ctx context.Context, prescriptionID uuid.UUID, locked bool) error
}

type ConsultationSource interface {
	Get(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.Consultation, error)
}

// ChargeRebuilder reprices the prescription after authoring. Failures are
// logged, never surfaced: the prescription save is the primary contract.
type ChargeRebuilder interface {
	Rebuild(ctx context.Context, actor models.Actor, consultationID uuid.UUID) (models.RxCharge, error)
}

type Service struct {
	store         Store
	consultations ConsultationSource
	rebuilder     ChargeRebuilder
	nowFunc       func() time.Time
}

func NewService(store Store, consultations ConsultationSource, rebuilder ChargeRebuilder) *Service {
	return &Service{
		store:         store,
		consultations: consultations,
		rebuilder:     rebuilder,
		nowFunc:       time.Now,
	}
}

// Upsert creates or replaces the consultation's prescription while the
// consultation is claimed by the authoring doctor.
func (s *Service) Upsert(ctx context.Context, actor models.Actor, req models.UpsertPrescriptionRequest) (models.Prescription, error) {
	if err := auth.RequireRole(actor, models.RoleDoctor); err != nil {
		return models.Prescription{}, err
	}
	if err := validateLines(req.Medications); err != nil {
		return models.Prescription{}, err
	}

	cons, err := s.consultations.Get(ctx, actor.HospitalID, req.ConsultationID)
	if err != nil {
		return models.Prescription{}, err
	}
	if cons.Status != models.ConsultationClaimed {
		return models.Prescription{}, apperrors.Conflict("consultation is not claimed")
	}
	if cons.DoctorID == nil || *cons.DoctorID != actor.ID {
		return models.Prescription{}, apperrors.Forbidden("consultation claimed by another doctor")
	}

	saved, err := s.store.Upsert(ctx, models.Prescription{
		ConsultationID: cons.ID,
		PatientID:      cons.PatientID,
		HospitalID:     cons.HospitalID,
		DoctorID:       actor.ID,
		Medications:    req.Medications,
		Notes:          req.Notes,
		Signature: models.DigitalSignature{
			DoctorName:    actor.Name,
			Qualification: req.Qualification,
			SignedAt:      s.nowFunc().UTC(),
		},
		// locked for the nurse role until the rx charge is settled
		LockedForNurse: true,
	})
	if err != nil {
		return models.Prescription{}, err
	}

	if _, err := s.rebuilder.Rebuild(ctx, actor, cons.ID); err != nil {
		logger.Log.WithError(err).WithField("consultation_id", cons.ID).Warn("charge rebuild after prescription save failed")
	}
	return saved, nil
}

// ByConsultation returns the prescription, refusing the nurse role while the
// lock flag is set.
func (s *Service) ByConsultation(ctx context.Context, actor models.Actor, consultationID uuid.UUID) (models.Prescription, error) {
	if err := auth.RequireRole(actor, models.RoleDoctor, models.RoleNurse, models.RoleAdmin); err != nil {
		return models.Prescription{}, err
	}

	rx, err := s.store.ByConsultation(ctx, actor.HospitalID, consultationID)
	if err != nil {
		return models.Prescription{}, err
	}
	if actor.Role == models.RoleNurse && rx.LockedForNurse {
		return models.Prescription{}, apperrors.Forbidden("prescription locked until the bill is settled")
	}
	return rx, nil
}

func validateLines(lines []models.MedicationLine) error {
	if len(lines) == 0 {
		return apperrors.Validation("at least one medication is required")
	}
	for _, line := range lines {
		if line.Name == "" || line.Dosage == "" || line.Frequency == "" || line.Duration == "" {
			return apperrors.Validation("each medication must include name, dosage, frequency and duration")
		}
		if line.Quantity <= 0 || math.IsInf(line.Quantity, 0) || math.IsNaN(line.Quantity) {
			return apperrors.Validationf("invalid quantity for medicine: %s", line.Name)
		}
	}
	return nil
}
