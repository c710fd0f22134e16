package billing

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/models"
)

type memoryChargeStore struct {
	charges map[uuid.UUID]models.RxCharge // keyed by consultation id

	// settles the stored charge at the top of Upsert, emulating a
	// settlement committing between the caller's read and its write
	settleBeforeUpsert bool
}

func newMemoryChargeStore() *memoryChargeStore {
	return &memoryChargeStore{charges: make(map[uuid.UUID]models.RxCharge)}
}

// Upsert mirrors the guarded conflict update: an existing charge is only
// overwritten while it is still pending.
func (m *memoryChargeStore) Upsert(ctx context.Context, charge models.RxCharge) (models.RxCharge, error) {
	if existing, ok := m.charges[charge.ConsultationID]; ok {
		if m.settleBeforeUpsert {
			existing.Status = models.ChargePaid
			m.charges[charge.ConsultationID] = existing
		}
		if existing.Status != models.ChargePending {
			return models.RxCharge{}, apperrors.Conflict("charge already settled")
		}
		charge.ID = existing.ID
	} else {
		charge.ID = uuid.New()
	}
	charge.Status = models.ChargePending
	m.charges[charge.ConsultationID] = charge
	return charge, nil
}

func (m *memoryChargeStore) ByConsultation(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.RxCharge, error) {
	charge, ok := m.charges[consultationID]
	if !ok || charge.HospitalID != hospitalID {
		return models.RxCharge{}, apperrors.NotFound("charge not found")
	}
	return charge, nil
}

type memoryPrescriptions struct {
	rx     models.Prescription
	locked bool
}

func (m *memoryPrescriptions) ByConsultation(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.Prescription, error) {
	if m.rx.ConsultationID != consultationID || m.rx.HospitalID != hospitalID {
		return models.Prescription{}, apperrors.NotFound("prescription not found")
	}
	return m.rx, nil
}

func (m *memoryPrescriptions) SetLock(ctx context.Context, prescriptionID uuid.UUID, locked bool) error {
	m.locked = locked
	return nil
}

type mapCatalog struct {
	byName map[string]models.CatalogEntry
	byCode map[string]models.CatalogEntry
}

func (c *mapCatalog) Resolve(ctx context.Context, hospitalID uuid.UUID, code, name string) (models.CatalogEntry, error) {
	if code != "" {
		if entry, ok := c.byCode[strings.ToLower(code)]; ok {
			return entry, nil
		}
	}
	if entry, ok := c.byName[strings.ToLower(name)]; ok {
		return entry, nil
	}
	return models.CatalogEntry{}, apperrors.NotFound("medicine not in catalog: " + name)
}

func fixtures() (*Service, *memoryChargeStore, *memoryPrescriptions, models.Actor, uuid.UUID) {
	hospitalID := uuid.New()
	consultationID := uuid.New()
	doctor := models.Actor{ID: uuid.New(), HospitalID: hospitalID, Role: models.RoleDoctor, Name: "Dr. Rao"}

	catalog := &mapCatalog{
		byName: map[string]models.CatalogEntry{
			"paracetamol": {ID: uuid.New(), HospitalID: hospitalID, Name: "Paracetamol", UnitPrice: 10},
			"cetirizine":  {ID: uuid.New(), HospitalID: hospitalID, Name: "Cetirizine", UnitPrice: 15},
		},
		byCode: map[string]models.CatalogEntry{},
	}

	prescriptions := &memoryPrescriptions{rx: models.Prescription{
		ID:             uuid.New(),
		ConsultationID: consultationID,
		PatientID:      uuid.New(),
		HospitalID:     hospitalID,
		DoctorID:       doctor.ID,
		Medications: []models.MedicationLine{
			{Name: "Paracetamol", Quantity: 2, Dosage: "500mg", Frequency: "bd", Duration: "3d"},
			{Name: "Cetirizine", Quantity: 1, Dosage: "10mg", Frequency: "od", Duration: "5d"},
		},
	}}

	store := newMemoryChargeStore()
	return NewService(store, prescriptions, catalog), store, prescriptions, doctor, consultationID
}

func TestRebuildComputesTotals(t *testing.T) {
	service, _, prescriptions, doctor, consultationID := fixtures()

	charge, err := service.Rebuild(context.Background(), doctor, consultationID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if charge.Subtotal != 35 || charge.TaxTotal != 0 || charge.GrandTotal != 35 {
		t.Fatalf("unexpected totals: subtotal=%v tax=%v grand=%v", charge.Subtotal, charge.TaxTotal, charge.GrandTotal)
	}
	if len(charge.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(charge.Items))
	}
	if charge.Items[0].LineTotal != 20 || charge.Items[1].LineTotal != 15 {
		t.Fatalf("unexpected line totals: %+v", charge.Items)
	}
	if !prescriptions.locked {
		t.Fatal("prescription should be locked after rebuild")
	}
}

func TestRebuildTwiceKeepsOneCharge(t *testing.T) {
	service, store, prescriptions, doctor, consultationID := fixtures()

	first, err := service.Rebuild(context.Background(), doctor, consultationID)
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}

	prescriptions.rx.Medications = []models.MedicationLine{
		{Name: "Paracetamol", Quantity: 3, Dosage: "500mg", Frequency: "bd", Duration: "3d"},
	}
	second, err := service.Rebuild(context.Background(), doctor, consultationID)
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}

	if first.ID != second.ID {
		t.Fatal("charge identity must be stable across rebuilds")
	}
	if len(store.charges) != 1 {
		t.Fatalf("expected one charge record, got %d", len(store.charges))
	}
	if second.GrandTotal != 30 || len(second.Items) != 1 {
		t.Fatalf("rebuild should reflect latest prescription: %+v", second)
	}
}

func TestRebuildRejectsUnknownMedicine(t *testing.T) {
	service, store, _, doctor, consultationID := fixtures()

	svc := service
	svc.prescriptions.(*memoryPrescriptions).rx.Medications = append(
		svc.prescriptions.(*memoryPrescriptions).rx.Medications,
		models.MedicationLine{Name: "Amoxicillin", Quantity: 1, Dosage: "250mg", Frequency: "tds", Duration: "5d"},
	)

	_, err := svc.Rebuild(context.Background(), doctor, consultationID)
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Amoxicillin") {
		t.Fatalf("error should name the offending medicine: %v", err)
	}
	if len(store.charges) != 0 {
		t.Fatal("no partial charge may be written on failure")
	}
}

func TestRebuildRejectsNonPositiveQuantity(t *testing.T) {
	service, store, prescriptions, doctor, consultationID := fixtures()
	prescriptions.rx.Medications[0].Quantity = 0

	_, err := service.Rebuild(context.Background(), doctor, consultationID)
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(store.charges) != 0 {
		t.Fatal("no charge may be written for invalid quantities")
	}
}

func TestRebuildRejectsSettledCharge(t *testing.T) {
	service, store, _, doctor, consultationID := fixtures()

	charge, err := service.Rebuild(context.Background(), doctor, consultationID)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	charge.Status = models.ChargePaid
	store.charges[consultationID] = charge

	_, err = service.Rebuild(context.Background(), doctor, consultationID)
	if apperrors.KindOf(err) != apperrors.KindConflict {
		t.Fatalf("expected conflict for paid charge, got %v", err)
	}
}

func TestRebuildRacingSettlementConflicts(t *testing.T) {
	service, store, prescriptions, doctor, consultationID := fixtures()

	first, err := service.Rebuild(context.Background(), doctor, consultationID)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	prescriptions.locked = false // settlement unlocked it

	// settlement lands between the pending check and the write
	store.settleBeforeUpsert = true
	_, err = service.Rebuild(context.Background(), doctor, consultationID)
	if apperrors.KindOf(err) != apperrors.KindConflict {
		t.Fatalf("expected conflict when settlement wins the race, got %v", err)
	}
	if got := store.charges[consultationID]; got.Status != models.ChargePaid || got.ID != first.ID {
		t.Fatalf("paid charge must survive the racing rebuild: %+v", got)
	}
	if prescriptions.locked {
		t.Fatalf("losing rebuild must not re-lock the prescription")
	}
}

func TestRebuildWithoutPrescription(t *testing.T) {
	service, _, prescriptions, doctor, _ := fixtures()
	prescriptions.rx.ConsultationID = uuid.New() // detach from the consultation under test

	_, err := service.Rebuild(context.Background(), doctor, uuid.New())
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
