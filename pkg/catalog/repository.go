package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/common/models"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type catalogEntryModel struct {
	ID         uuid.UUID `gorm:"primaryKey;column:id"`
	HospitalID uuid.UUID `gorm:"column:hospital_id;index"`
	Code       string    `gorm:"column:code"`
	Name       string    `gorm:"column:name"`
	Form       string    `gorm:"column:form"`
	Strength   string    `gorm:"column:strength"`
	UnitPrice  float64   `gorm:"column:unit_price"`
	IsActive   bool      `gorm:"column:is_active"`
}

func (catalogEntryModel) TableName() string { return "catalog_entries" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&catalogEntryModel{})
}

// ActiveEntries returns the priced catalog visible to one hospital.
func (r *Repository) ActiveEntries(ctx context.Context, hospitalID uuid.UUID) ([]models.CatalogEntry, error) {
	var rows []catalogEntryModel
	err := r.db.WithContext(ctx).
		Where("hospital_id = ? AND is_active = ?", hospitalID, true).
		Order("name asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]models.CatalogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.CatalogEntry{
			ID:         row.ID,
			HospitalID: row.HospitalID,
			Code:       row.Code,
			Name:       row.Name,
			Form:       row.Form,
			Strength:   row.Strength,
			UnitPrice:  row.UnitPrice,
			IsActive:   row.IsActive,
		})
	}
	return entries, nil
}
