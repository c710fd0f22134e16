package billing

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/auth"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/models"
	"github.com/telecare-health/platform/pkg/observability/metrics"
)

type Store interface {
	Upsert(ctx context.Context, charge models.RxCharge) (models.RxCharge, error)
	ByConsultation(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.RxCharge, error)
}

type PrescriptionSource interface {
	ByConsultation(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.Prescription, error)
	SetLock(ctx context.Context, prescriptionID uuid.UUID, locked bool) error
}

type CatalogIndex interface {
	Resolve(ctx context.Context, hospitalID uuid.UUID, code, name string) (models.CatalogEntry, error)
}

// Service prices a prescription against the hospital catalog and maintains
// the single charge per consultation.
type Service struct {
	store         Store
	prescriptions PrescriptionSource
	catalog       CatalogIndex
}

func NewService(store Store, prescriptions PrescriptionSource, catalog CatalogIndex) *Service {
	return &Service{store: store, prescriptions: prescriptions, catalog: catalog}
}

// Rebuild prices the current prescription and overwrites the charge. No
// partial charge is ever written: any bad line rejects the whole rebuild.
// The prescription is locked from nurse viewing until the charge settles.
func (s *Service) Rebuild(ctx context.Context, actor models.Actor, consultationID uuid.UUID) (models.RxCharge, error) {
	if err := auth.RequireRole(actor, models.RoleDoctor, models.RoleNurse, models.RoleAdmin); err != nil {
		return models.RxCharge{}, err
	}

	existing, err := s.store.ByConsultation(ctx, actor.HospitalID, consultationID)
	switch {
	case err == nil:
		if existing.Status != models.ChargePending {
			return models.RxCharge{}, apperrors.Conflict("charge already settled")
		}
	case apperrors.KindOf(err) == apperrors.KindNotFound:
		// first build
	default:
		return models.RxCharge{}, err
	}

	rx, err := s.prescriptions.ByConsultation(ctx, actor.HospitalID, consultationID)
	if err != nil {
		return models.RxCharge{}, err
	}

	items, subtotal, err := s.priceLines(ctx, actor.HospitalID, rx.Medications)
	if err != nil {
		return models.RxCharge{}, err
	}

	taxTotal := 0.0 // tax handling is an extension point
	charge, err := s.store.Upsert(ctx, models.RxCharge{
		ConsultationID: consultationID,
		PrescriptionID: rx.ID,
		PatientID:      rx.PatientID,
		HospitalID:     actor.HospitalID,
		Items:          items,
		Subtotal:       subtotal,
		TaxTotal:       taxTotal,
		GrandTotal:     subtotal + taxTotal,
		Status:         models.ChargePending,
	})
	if err != nil {
		return models.RxCharge{}, err
	}

	if err := s.prescriptions.SetLock(ctx, rx.ID, true); err != nil {
		return models.RxCharge{}, err
	}
	metrics.ObserveChargeRebuild()
	return charge, nil
}

// Charge returns the consultation's bill.
func (s *Service) Charge(ctx context.Context, actor models.Actor, consultationID uuid.UUID) (models.RxCharge, error) {
	if err := auth.RequireRole(actor, models.RoleDoctor, models.RoleNurse, models.RoleAdmin); err != nil {
		return models.RxCharge{}, err
	}
	return s.store.ByConsultation(ctx, actor.HospitalID, consultationID)
}

func (s *Service) priceLines(ctx context.Context, hospitalID uuid.UUID, lines []models.MedicationLine) ([]models.ChargeItem, float64, error) {
	if len(lines) == 0 {
		return nil, 0, apperrors.Validation("prescription has no medication lines")
	}

	items := make([]models.ChargeItem, 0, len(lines))
	subtotal := 0.0
	for _, line := range lines {
		if line.Quantity <= 0 || math.IsInf(line.Quantity, 0) || math.IsNaN(line.Quantity) {
			return nil, 0, apperrors.Validationf("invalid quantity for medicine: %s", line.Name)
		}
		entry, err := s.catalog.Resolve(ctx, hospitalID, line.Code, line.Name)
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindNotFound {
				return nil, 0, apperrors.Validationf("medicine not in catalog: %s", missingName(line))
			}
			return nil, 0, err
		}

		lineTotal := entry.UnitPrice * line.Quantity
		items = append(items, models.ChargeItem{
			MedicineID: entry.ID,
			Name:       entry.Name,
			Quantity:   line.Quantity,
			UnitPrice:  entry.UnitPrice,
			LineTotal:  lineTotal,
		})
		subtotal += lineTotal
	}
	return items, subtotal, nil
}

func missingName(line models.MedicationLine) string {
	if line.Name != "" {
		return line.Name
	}
	return line.Code
}
