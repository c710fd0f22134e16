package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/models"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type paymentModel struct {
	ID               uuid.UUID  `gorm:"primaryKey;column:id"`
	ConsultationID   uuid.UUID  `gorm:"column:consultation_id;index"`
	PatientID        uuid.UUID  `gorm:"column:patient_id"`
	HospitalID       uuid.UUID  `gorm:"column:hospital_id;index"`
	Amount           float64    `gorm:"column:amount"`
	Kind             string     `gorm:"column:kind"`
	Method           string     `gorm:"column:method"`
	Status           string     `gorm:"column:status;index"`
	GatewayOrderID   string     `gorm:"column:gateway_order_id;index"`
	GatewayPaymentID string     `gorm:"column:gateway_payment_id"`
	GatewaySignature string     `gorm:"column:gateway_signature"`
	CreatedBy        uuid.UUID  `gorm:"column:created_by"`
	VerifiedBy       *uuid.UUID `gorm:"column:verified_by"`
	PaidAt           *time.Time `gorm:"column:paid_at"`
	VerifiedAt       *time.Time `gorm:"column:verified_at"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

func (paymentModel) TableName() string { return "payments" }

// settlement touches the charge and prescription tables owned by other
// packages; local models keep the write-set of the transaction explicit.
type chargeSettlementModel struct {
	ID uuid.UUID `gorm:"primaryKey;column:id"`
}

func (chargeSettlementModel) TableName() string { return "rx_charges" }

type prescriptionSettlementModel struct {
	ID uuid.UUID `gorm:"primaryKey;column:id"`
}

func (prescriptionSettlementModel) TableName() string { return "prescriptions" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&paymentModel{})
}

func (r *Repository) Create(ctx context.Context, p models.Payment) (models.Payment, error) {
	row := paymentModel{
		ID:             uuid.New(),
		ConsultationID: p.ConsultationID,
		PatientID:      p.PatientID,
		HospitalID:     p.HospitalID,
		Amount:         p.Amount,
		Kind:           p.Kind,
		Method:         p.Method,
		Status:         models.PaymentPending,
		GatewayOrderID: p.GatewayOrderID,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Payment{}, err
	}
	return toPayment(row), nil
}

func (r *Repository) ByID(ctx context.Context, hospitalID, id uuid.UUID) (models.Payment, error) {
	var row paymentModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND hospital_id = ?", id, hospitalID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Payment{}, apperrors.NotFound("payment not found")
	}
	if err != nil {
		return models.Payment{}, err
	}
	return toPayment(row), nil
}

func (r *Repository) ByOrderID(ctx context.Context, hospitalID uuid.UUID, orderID string) (models.Payment, error) {
	var row paymentModel
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ? AND hospital_id = ?", orderID, hospitalID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Payment{}, apperrors.NotFound("payment not found for order")
	}
	if err != nil {
		return models.Payment{}, err
	}
	return toPayment(row), nil
}

// MarkCompleted settles a pending payment. A zero row count means another
// request already settled it, which the caller treats as a replay.
func (r *Repository) MarkCompleted(ctx context.Context, p models.Payment, verifiedBy uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&paymentModel{}).
		Where("id = ? AND status = ?", p.ID, models.PaymentPending).
		Updates(map[string]interface{}{
			"status":             models.PaymentCompleted,
			"gateway_payment_id": p.GatewayPaymentID,
			"gateway_signature":  p.GatewaySignature,
			"verified_by":        verifiedBy,
			"paid_at":            at,
			"verified_at":        at,
			"updated_at":         at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict("payment is not pending")
	}
	return nil
}

// CompleteRxSettlement finalizes a medicine bill in one transaction: the
// payment flips to completed, the charge to paid, and the prescription
// unlocks for the nurse role. Every update is guarded so a replay that got
// this far still cannot double-settle.
func (r *Repository) CompleteRxSettlement(ctx context.Context, p models.Payment, charge models.RxCharge, verifiedBy uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&paymentModel{}).
			Where("id = ? AND status = ?", p.ID, models.PaymentPending).
			Updates(map[string]interface{}{
				"status":             models.PaymentCompleted,
				"gateway_payment_id": p.GatewayPaymentID,
				"gateway_signature":  p.GatewaySignature,
				"verified_by":        verifiedBy,
				"paid_at":            at,
				"verified_at":        at,
				"updated_at":         at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("payment is not pending")
		}

		res = tx.Model(&chargeSettlementModel{}).
			Where("id = ? AND status = ?", charge.ID, models.ChargePending).
			Updates(map[string]interface{}{
				"status":     models.ChargePaid,
				"payment_id": p.ID,
				"paid_at":    at,
				"updated_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("charge is not pending")
		}

		return tx.Model(&prescriptionSettlementModel{}).
			Where("id = ?", charge.PrescriptionID).
			Updates(map[string]interface{}{
				"locked_for_nurse": false,
				"updated_at":       at,
			}).Error
	})
}

func toPayment(row paymentModel) models.Payment {
	return models.Payment{
		ID:               row.ID,
		ConsultationID:   row.ConsultationID,
		PatientID:        row.PatientID,
		HospitalID:       row.HospitalID,
		Amount:           row.Amount,
		Kind:             row.Kind,
		Method:           row.Method,
		Status:           row.Status,
		GatewayOrderID:   row.GatewayOrderID,
		GatewayPaymentID: row.GatewayPaymentID,
		GatewaySignature: row.GatewaySignature,
		CreatedBy:        row.CreatedBy,
		VerifiedBy:       row.VerifiedBy,
		PaidAt:           row.PaidAt,
		VerifiedAt:       row.VerifiedAt,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}
