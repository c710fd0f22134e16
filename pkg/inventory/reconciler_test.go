package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/models"
)

// memoryStore mimics the transactional contract: mutations apply to a scratch
// copy and only commit when fn returns nil.
type memoryStore struct {
	mu     sync.Mutex
	levels map[uuid.UUID]float64
}

type memoryTx struct {
	scratch map[uuid.UUID]float64
}

func (m *memoryStore) WithLock(ctx context.Context, hospitalID uuid.UUID, ids []uuid.UUID, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scratch := make(map[uuid.UUID]float64, len(m.levels))
	for id, qty := range m.levels {
		scratch[id] = qty
	}
	tx := &memoryTx{scratch: scratch}
	if err := fn(tx); err != nil {
		return err
	}
	m.levels = scratch
	return nil
}

func (t *memoryTx) Quantity(id uuid.UUID) (float64, bool) {
	qty, ok := t.scratch[id]
	return qty, ok
}

func (t *memoryTx) Adjust(id uuid.UUID, delta float64) error {
	t.scratch[id] += delta
	return nil
}

func chargeWith(items ...models.ChargeItem) models.RxCharge {
	return models.RxCharge{
		ID:         uuid.New(),
		HospitalID: uuid.New(),
		Items:      items,
		Status:     models.ChargePending,
	}
}

func TestDecrementAppliesEveryLine(t *testing.T) {
	paracetamol, cetirizine := uuid.New(), uuid.New()
	store := &memoryStore{levels: map[uuid.UUID]float64{paracetamol: 10, cetirizine: 4}}
	rec := NewReconciler(store)

	charge := chargeWith(
		models.ChargeItem{MedicineID: paracetamol, Name: "Paracetamol", Quantity: 2},
		models.ChargeItem{MedicineID: cetirizine, Name: "Cetirizine", Quantity: 1},
	)
	if err := rec.Decrement(context.Background(), charge); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.levels[paracetamol] != 8 || store.levels[cetirizine] != 3 {
		t.Fatalf("unexpected stock after decrement: %v", store.levels)
	}
}

func TestDecrementIsAllOrNothing(t *testing.T) {
	paracetamol, cetirizine := uuid.New(), uuid.New()
	store := &memoryStore{levels: map[uuid.UUID]float64{paracetamol: 10, cetirizine: 3}}
	rec := NewReconciler(store)

	// second line exceeds stock; first line must not be decremented either
	charge := chargeWith(
		models.ChargeItem{MedicineID: paracetamol, Name: "Paracetamol", Quantity: 2},
		models.ChargeItem{MedicineID: cetirizine, Name: "Cetirizine", Quantity: 5},
	)
	err := rec.Decrement(context.Background(), charge)
	if apperrors.KindOf(err) != apperrors.KindInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if store.levels[paracetamol] != 10 || store.levels[cetirizine] != 3 {
		t.Fatalf("stock mutated despite failure: %v", store.levels)
	}
}

func TestDecrementSumsRepeatedMedicine(t *testing.T) {
	paracetamol := uuid.New()
	store := &memoryStore{levels: map[uuid.UUID]float64{paracetamol: 3}}
	rec := NewReconciler(store)

	// same medicine on two lines; lines fit individually but not combined
	charge := chargeWith(
		models.ChargeItem{MedicineID: paracetamol, Name: "Paracetamol", Quantity: 2},
		models.ChargeItem{MedicineID: paracetamol, Name: "Paracetamol", Quantity: 2},
	)
	err := rec.Decrement(context.Background(), charge)
	if apperrors.KindOf(err) != apperrors.KindInsufficientStock {
		t.Fatalf("expected insufficient stock for the summed quantity, got %v", err)
	}
	if store.levels[paracetamol] != 3 {
		t.Fatalf("stock must never go negative: %v", store.levels[paracetamol])
	}

	// two lines that fit combined decrement once with the sum
	charge = chargeWith(
		models.ChargeItem{MedicineID: paracetamol, Name: "Paracetamol", Quantity: 1},
		models.ChargeItem{MedicineID: paracetamol, Name: "Paracetamol", Quantity: 2},
	)
	if err := rec.Decrement(context.Background(), charge); err != nil {
		t.Fatalf("combined quantity fits, got %v", err)
	}
	if store.levels[paracetamol] != 0 {
		t.Fatalf("expected stock 0 after summed decrement, got %v", store.levels[paracetamol])
	}
}

func TestDecrementUnknownMedicine(t *testing.T) {
	store := &memoryStore{levels: map[uuid.UUID]float64{}}
	rec := NewReconciler(store)

	charge := chargeWith(models.ChargeItem{MedicineID: uuid.New(), Name: "Amoxicillin", Quantity: 1})
	if err := rec.Decrement(context.Background(), charge); apperrors.KindOf(err) != apperrors.KindInsufficientStock {
		t.Fatalf("expected insufficient stock for untracked medicine, got %v", err)
	}
}

func TestRestockReversesDecrement(t *testing.T) {
	paracetamol := uuid.New()
	store := &memoryStore{levels: map[uuid.UUID]float64{paracetamol: 3}}
	rec := NewReconciler(store)

	charge := chargeWith(models.ChargeItem{MedicineID: paracetamol, Name: "Paracetamol", Quantity: 3})
	if err := rec.Decrement(context.Background(), charge); err != nil {
		t.Fatalf("decrement failed: %v", err)
	}
	if err := rec.Restock(context.Background(), charge); err != nil {
		t.Fatalf("restock failed: %v", err)
	}
	if store.levels[paracetamol] != 3 {
		t.Fatalf("expected stock restored to 3, got %v", store.levels[paracetamol])
	}
}
