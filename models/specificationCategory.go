package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SpecificationCategory groups products and optionally carries a default
// pricing coefficient applied to members.
type SpecificationCategory struct {
	ID          int              `gorm:"primary_key" json:"id"`
	Name        string           `gorm:"size:150;uniqueIndex;not null" json:"name"`
	Coefficient *decimal.Decimal `gorm:"type:decimal(12,2)" json:"coefficient"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// GetOrCreateCategory resolves a category by name inside the caller's
// transaction, creating it when missing.
func GetOrCreateCategory(tx *gorm.DB, name string) (*SpecificationCategory, error) {
	var category SpecificationCategory
	err := tx.Where("name = ?", name).First(&category).Error
	if err == nil {
		return &category, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	category = SpecificationCategory{Name: name}
	if err := tx.Create(&category).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			if err := tx.Where("name = ?", name).First(&category).Error; err != nil {
				return nil, err
			}
			return &category, nil
		}
		return nil, err
	}
	_ = utils.RemoveRedisList[SpecificationCategory]()
	return &category, nil
}

// ListCategories returns all categories, redis-cached.
func ListCategories(ctx context.Context) ([]*SpecificationCategory, error) {
	results, err := utils.RetrieveRedisList[SpecificationCategory]()
	if err != nil {
		return nil, err
	}
	if results == nil {
		db := config.GetDB()
		if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[SpecificationCategory](results); err != nil {
			return nil, err
		}
	}
	return results, nil
}
