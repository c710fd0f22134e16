package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/logger"
	"github.com/telecare-health/platform/pkg/common/models"
)

// Tx is the mutation surface exposed while stock rows are locked.
type Tx interface {
	Quantity(medicineID uuid.UUID) (float64, bool)
	Adjust(medicineID uuid.UUID, delta float64) error
}

// Store owns the atomic commit of a stock mutation set.
type Store interface {
	WithLock(ctx context.Context, hospitalID uuid.UUID, medicineIDs []uuid.UUID, fn func(tx Tx) error) error
}

// Reconciler applies a paid charge to stock on hand. A decrement covers every
// line of the charge or none of them.
type Reconciler struct {
	store Store
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Decrement validates every medicine against locked stock rows before
// mutating any, so an insufficient line leaves all quantities untouched.
// Lines are summed per medicine first: a charge may carry the same medicine
// on several lines, and the aggregate must fit the stock on hand.
func (r *Reconciler) Decrement(ctx context.Context, charge models.RxCharge) error {
	requested, names := requestedByMedicine(charge)
	return r.store.WithLock(ctx, charge.HospitalID, medicineIDs(charge), func(tx Tx) error {
		for medicineID, qty := range requested {
			onHand, ok := tx.Quantity(medicineID)
			if !ok || onHand < qty {
				return apperrors.InsufficientStockf("insufficient stock for %s", names[medicineID])
			}
		}
		for medicineID, qty := range requested {
			if err := tx.Adjust(medicineID, -qty); err != nil {
				return err
			}
		}
		return nil
	})
}

// Restock reverses a prior decrement. Used as the compensating action when
// settlement cannot be finalized after stock was reserved.
func (r *Reconciler) Restock(ctx context.Context, charge models.RxCharge) error {
	requested, _ := requestedByMedicine(charge)
	err := r.store.WithLock(ctx, charge.HospitalID, medicineIDs(charge), func(tx Tx) error {
		for medicineID, qty := range requested {
			if err := tx.Adjust(medicineID, qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Log.WithError(err).WithField("charge_id", charge.ID).Error("stock restock failed")
	}
	return err
}

func requestedByMedicine(charge models.RxCharge) (map[uuid.UUID]float64, map[uuid.UUID]string) {
	requested := make(map[uuid.UUID]float64, len(charge.Items))
	names := make(map[uuid.UUID]string, len(charge.Items))
	for _, item := range charge.Items {
		requested[item.MedicineID] += item.Quantity
		names[item.MedicineID] = item.Name
	}
	return requested, names
}

func medicineIDs(charge models.RxCharge) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(charge.Items))
	ids := make([]uuid.UUID, 0, len(charge.Items))
	for _, item := range charge.Items {
		if seen[item.MedicineID] {
			continue
		}
		seen[item.MedicineID] = true
		ids = append(ids, item.MedicineID)
	}
	return ids
}
