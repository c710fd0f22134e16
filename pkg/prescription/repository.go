package prescription

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

type prescriptionModel struct {
	ID             uuid.UUID      `gorm:"primaryKey;column:id"`
	ConsultationID uuid.UUID      `gorm:"column:consultation_id;uniqueIndex"`
	PatientID      uuid.UUID      `gorm:"column:patient_id"`
	HospitalID     uuid.UUID      `gorm:"column:hospital_id;index"`
	DoctorID       uuid.UUID      `gorm:"column:doctor_id"`
	Medications    datatypes.JSON `gorm:"column:medications"`
	Notes          string         `gorm:"column:notes"`
	Signature      datatypes.JSON `gorm:"column:digital_signature"`
	LockedForNurse bool           `gorm:"column:locked_for_nurse"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (prescriptionModel) TableName() string { return "prescriptions" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&prescriptionModel{})
}

// Upsert replaces the single prescription of a consultation, keeping the
// row identity stable when one already exists.
func (r *Repository) Upsert(ctx context.Context, p models.Prescription) (models.Prescription, error) {
	medications, err := json.Marshal(p.Medications)
	if err != nil {
		return models.Prescription{}, err
	}
	signature, err := json.Marshal(p.Signature)
	if err != nil {
		return models.Prescription{}, err
	}

	row := prescriptionModel{
		ID:             uuid.New(),
		ConsultationID: p.ConsultationID,
		PatientID:      p.PatientID,
		HospitalID:     p.HospitalID,
		DoctorID:       p.DoctorID,
		Medications:    datatypes.JSON(medications),
		Notes:          p.Notes,
		Signature:      datatypes.JSON(signature),
		LockedForNurse: p.LockedForNurse,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "consultation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"doctor_id", "medications", "notes", "digital_signature", "locked_for_nurse", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return models.Prescription{}, err
	}
	return r.byConsultation(ctx, p.HospitalID, p.ConsultationID)
}

func (r *Repository) ByConsultation(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.Prescription, error) {
	return r.byConsultation(ctx, hospitalID, consultationID)
}

func (r *Repository) byConsultation(ctx context.Context, hospitalID, consultationID uuid.UUID) (models.Prescription, error) {
	var row prescriptionModel
	err := r.db.WithContext(ctx).
		Where("hospital_id = ? AND consultation_id = ?", hospitalID, consultationID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Prescription{}, apperrors.NotFound("prescription not found")
	}
	if err != nil {
		return models.Prescription{}, err
	}
	return toPrescription(row)
}

func (r *Repository) Exists(ctx context.Context, hospitalID, consultationID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&prescriptionModel{}).
		Where("hospital_id = ? AND consultation_id = ?", hospitalID, consultationID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) SetLock(ctx context.Context, prescriptionID uuid.UUID, locked bool) error {
	res := r.db.WithContext(ctx).Model(&prescriptionModel{}).
		Where("id = ?", prescriptionID).
		Updates(map[string]interface{}{"locked_for_nurse": locked, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("prescription not found")
	}
	return nil
}

func toPrescription(row prescriptionModel) (models.Prescription, error) {
	p := models.Prescription{
		ID:             row.ID,
		ConsultationID: row.ConsultationID,
		PatientID:      row.PatientID,
		HospitalID:     row.HospitalID,
		DoctorID:       row.DoctorID,
		Notes:          row.Notes,
		LockedForNurse: row.LockedForNurse,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if len(row.Medications) > 0 {
		if err := json.Unmarshal(row.Medications, &p.Medications); err != nil {
			return models.Prescription{}, err
		}
	}
	if len(row.Signature) > 0 {
		if err := json.Unmarshal(row.Signature, &p.Signature); err != nil {
			return models.Prescription{}, err
		}
	}
	return p, nil
}
