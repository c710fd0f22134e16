package consultation

import (
	"context"
	"errors"
	"fmt"
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

type consultationModel struct {
	ID             uuid.UUID  `gorm:"primaryKey;column:id"`
	Code           string     `gorm:"column:code;uniqueIndex"`
	PatientID      uuid.UUID  `gorm:"column:patient_id"`
	HospitalID     uuid.UUID  `gorm:"column:hospital_id;index"`
	NurseID        uuid.UUID  `gorm:"column:nurse_id"`
	DoctorID       *uuid.UUID `gorm:"column:doctor_id"`
	ChiefComplaint string     `gorm:"column:chief_complaint"`
	ConditionType  string     `gorm:"column:condition_type"`
	Status         string     `gorm:"column:status;index"`
	Priority       string     `gorm:"column:priority"`
	PayReady       bool       `gorm:"column:pay_ready"`
	DeclineReason  string     `gorm:"column:decline_reason"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	CompletedAt    *time.Time `gorm:"column:completed_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (consultationModel) TableName() string { return "consultations" }

type counterModel struct {
	Key string `gorm:"primaryKey;column:key"`
	Seq int64  `gorm:"column:seq"`
}

func (counterModel) TableName() string { return "counters" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&consultationModel{}, &counterModel{})
}

func (r *Repository) Create(ctx context.Context, cons models.Consultation) (models.Consultation, error) {
	row := consultationModel{
		ID:             uuid.New(),
		PatientID:      cons.PatientID,
		HospitalID:     cons.HospitalID,
		NurseID:        cons.NurseID,
		ChiefComplaint: cons.ChiefComplaint,
		ConditionType:  cons.ConditionType,
		Status:         models.ConsultationQueued,
		Priority:       cons.Priority,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq int64
		err := tx.Raw(
			`INSERT INTO counters (key, seq) VALUES (?, 1)
			 ON CONFLICT (key) DO UPDATE SET seq = counters.seq + 1
			 RETURNING seq`, "consultation",
		).Scan(&seq).Error
		if err != nil {
			return err
		}
		row.Code = fmt.Sprintf("CON%06d", seq)
		return tx.Create(&row).Error
	})
	if err != nil {
		return models.Consultation{}, err
	}
	return toConsultation(row), nil
}

func (r *Repository) Get(ctx context.Context, hospitalID, id uuid.UUID) (models.Consultation, error) {
	var row consultationModel
	err := r.db.WithContext(ctx).
		Where("hospital_id = ? AND id = ?", hospitalID, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Consultation{}, apperrors.NotFound("consultation not found")
	}
	if err != nil {
		return models.Consultation{}, err
	}
	return toConsultation(row), nil
}

// ListQueue returns claimable consultations, urgent first then FIFO.
func (r *Repository) ListQueue(ctx context.Context, hospitalID uuid.UUID) ([]models.Consultation, error) {
	var rows []consultationModel
	err := r.db.WithContext(ctx).
		Where("hospital_id = ? AND status = ? AND pay_ready = ?", hospitalID, models.ConsultationQueued, true).
		Order("priority desc, created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toConsultations(rows), nil
}

func (r *Repository) ListClaimedBy(ctx context.Context, hospitalID, doctorID uuid.UUID) ([]models.Consultation, error) {
	var rows []consultationModel
	err := r.db.WithContext(ctx).
		Where("hospital_id = ? AND status = ? AND doctor_id = ?", hospitalID, models.ConsultationClaimed, doctorID).
		Order("started_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toConsultations(rows), nil
}

// ClaimQueued is the exclusivity guarantee: a single conditional update on
// (status=queued, pay_ready=true), so exactly one concurrent caller wins.
func (r *Repository) ClaimQueued(ctx context.Context, hospitalID, id, doctorID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&consultationModel{}).
		Where("id = ? AND hospital_id = ? AND status = ? AND pay_ready = ?",
			id, hospitalID, models.ConsultationQueued, true).
		Updates(map[string]interface{}{
			"status":     models.ConsultationClaimed,
			"doctor_id":  doctorID,
			"started_at": at,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict("already taken or not in queue")
	}
	return nil
}

func (r *Repository) Decline(ctx context.Context, hospitalID, id uuid.UUID, reason string) error {
	res := r.db.WithContext(ctx).Model(&consultationModel{}).
		Where("id = ? AND hospital_id = ? AND status IN ?",
			id, hospitalID, []string{models.ConsultationQueued, models.ConsultationClaimed}).
		Updates(map[string]interface{}{
			"status":         models.ConsultationDeclined,
			"decline_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("consultation not found")
	}
	return nil
}

func (r *Repository) CompleteClaimed(ctx context.Context, hospitalID, id, doctorID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&consultationModel{}).
		Where("id = ? AND hospital_id = ? AND status = ? AND doctor_id = ?",
			id, hospitalID, models.ConsultationClaimed, doctorID).
		Updates(map[string]interface{}{
			"status":       models.ConsultationCompleted,
			"completed_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict("consultation is not claimed by this doctor")
	}
	return nil
}

// MarkPaymentReady flips the readiness flag without touching status.
func (r *Repository) MarkPaymentReady(ctx context.Context, hospitalID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&consultationModel{}).
		Where("id = ? AND hospital_id = ?", id, hospitalID).
		Updates(map[string]interface{}{"pay_ready": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("consultation not found")
	}
	return nil
}

func toConsultation(row consultationModel) models.Consultation {
	return models.Consultation{
		ID:             row.ID,
		Code:           row.Code,
		PatientID:      row.PatientID,
		HospitalID:     row.HospitalID,
		NurseID:        row.NurseID,
		DoctorID:       row.DoctorID,
		ChiefComplaint: row.ChiefComplaint,
		ConditionType:  row.ConditionType,
		Status:         row.Status,
		Priority:       row.Priority,
		PayReady:       row.PayReady,
		DeclineReason:  row.DeclineReason,
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func toConsultations(rows []consultationModel) []models.Consultation {
	out := make([]models.Consultation, 0, len(rows))
	for _, row := range rows {
		out = append(out, toConsultation(row))
	}
	return out
}
