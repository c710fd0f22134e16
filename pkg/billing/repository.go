package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type rxChargeModel struct {
	ID             uuid.UUID      `gorm:"primaryKey;column:id"`
	ConsultationID uuid.UUID      `gorm:"column:consultation_id;uniqueIndex"`
	PrescriptionID uuid.UUID      `gorm:"column:prescription_id"`
	PatientID      uuid.UUID      `gorm:"column:patient_id"`
	HospitalID     uuid.UUID      `gorm:"column:hospital_id;index"`
	Items          datatypes.JSON `gorm:"column:items"`
	Subtotal       float64        `gorm:"column:subtotal"`
	TaxTotal       float64        `gorm:"column:tax_total"`
	GrandTotal     float64        `gorm:"column:grand_total"`
	Status         string         `gorm:"column:status"`
	PaymentID      *uuid.UUID     `gorm:"column:payment_id"`
	PaidAt         *time.Time     `gorm:"column:paid_at"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (rxChargeModel) TableName() string { return "rx_charges" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&rxChargeModel{})
}

// Upsert writes the charge keyed by consultation, keeping the row identity
// stable across rebuilds. The conflict update only applies while the stored
// charge is still pending, so a rebuild racing a settlement cannot flip a
// paid charge back to pending; zero applied rows is a Conflict.
func (r *Repository) Upsert(ctx context.Context, charge models.RxCharge) (models.RxCharge, error) {
	items, err := json.Marshal(charge.Items)
	if err != nil {
		return models.RxCharge{}, err
	}

	row := rxChargeModel{
		ID:             uuid.New(),
		ConsultationID: charge.ConsultationID,
		PrescriptionID: charge.PrescriptionID,
		PatientID:      charge.PatientID,
		HospitalID:     charge.HospitalID,
		Items:          datatypes.JSON(items),
		Subtotal:       charge.Subtotal,
		TaxTotal:       charge.TaxTotal,
		GrandTotal:     charge.GrandTotal,
		Status:         models.ChargePending,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "consultation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"prescription_id", "items", "subtotal", "tax_total", "grand_total", "status", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "rx_charges", Name: "status"}, Value: models.ChargePending},
		}},
	}).Create(&row)
	if res.Error != nil {
		return models.RxCharge{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.RxCharge{}, apperrors.Conflict("charge already settled")
	}
	return r.ByConsultation(ctx, charge.HospitalID, charge.ConsultationID)
}

func (r *Repository) ByConsultation(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.RxCharge, error) {
	var row rxChargeModel
	err := r.db.WithContext(ctx).
		Where("hospital_id = ? AND consultation_id = ?", hospitalID, consultationID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RxCharge{}, apperrors.NotFound("charge not found")
	}
	if err != nil {
		return models.RxCharge{}, err
	}
	return toCharge(row)
}

// PendingByConsultation is the settlement-side read: the charge must exist
// and still be pending.
func (r *Repository) PendingByConsultation(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.RxCharge, error) {
	charge, err := r.ByConsultation(ctx, hospitalID, consultationID)
	if err != nil {
		return models.RxCharge{}, err
	}
	if charge.Status != models.ChargePending {
		return models.RxCharge{}, apperrors.Conflict("charge not pending")
	}
	return charge, nil
}

func toCharge(row rxChargeModel) (models.RxCharge, error) {
	charge := models.RxCharge{
		ID:             row.ID,
		ConsultationID: row.ConsultationID,
		PrescriptionID: row.PrescriptionID,
		PatientID:      row.PatientID,
		HospitalID:     row.HospitalID,
		Subtotal:       row.Subtotal,
		TaxTotal:       row.TaxTotal,
		GrandTotal:     row.GrandTotal,
		Status:         row.Status,
		PaymentID:      row.PaymentID,
		PaidAt:         row.PaidAt,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if len(row.Items) > 0 {
		if err := json.Unmarshal(row.Items, &charge.Items); err != nil {
			return models.RxCharge{}, err
		}
	}
	return charge, nil
}
