package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type stockLevelModel struct {
	HospitalID uuid.UUID `gorm:"primaryKey;column:hospital_id"`
	MedicineID uuid.UUID `gorm:"primaryKey;column:medicine_id"`
	Quantity   float64   `gorm:"column:quantity"`
}

func (stockLevelModel) TableName() string { return "stock_levels" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&stockLevelModel{})
}

// WithLock runs fn inside a transaction holding row locks on every named
// stock level, so the whole mutation set commits or rolls back as one unit.
func (r *Repository) WithLock(ctx context.Context, hospitalID uuid.UUID, medicineIDs []uuid.UUID, fn func(tx Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []stockLevelModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("hospital_id = ? AND medicine_id IN ?", hospitalID, medicineIDs).
			Find(&rows).Error
		if err != nil {
			return err
		}

		levels := make(map[uuid.UUID]float64, len(rows))
		for _, row := range rows {
			levels[row.MedicineID] = row.Quantity
		}
		return fn(&gormTx{tx: tx, hospitalID: hospitalID, levels: levels})
	})
}

type gormTx struct {
	tx         *gorm.DB
	hospitalID uuid.UUID
	levels     map[uuid.UUID]float64
}

func (t *gormTx) Quantity(medicineID uuid.UUID) (float64, bool) {
	qty, ok := t.levels[medicineID]
	return qty, ok
}

func (t *gormTx) Adjust(medicineID uuid.UUID, delta float64) error {
	res := t.tx.Model(&stockLevelModel{}).
		Where("hospital_id = ? AND medicine_id = ?", t.hospitalID, medicineID).
		Update("quantity", gorm.Expr("quantity + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	t.levels[medicineID] += delta
	return nil
}
