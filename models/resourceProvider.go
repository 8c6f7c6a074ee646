package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/utils"
	"gorm.io/gorm"
)

// ResourceProvider is an external supplier, created on demand by name.
type ResourceProvider struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GetOrCreateProvider resolves a provider by name inside the caller's
// transaction, creating it when missing. Duplicate-key races fall back to a
// refetch.
func GetOrCreateProvider(tx *gorm.DB, name string) (*ResourceProvider, error) {
	var provider ResourceProvider
	err := tx.Where("name = ?", name).First(&provider).Error
	if err == nil {
		return &provider, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	provider = ResourceProvider{Name: name}
	if err := tx.Create(&provider).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			if err := tx.Where("name = ?", name).First(&provider).Error; err != nil {
				return nil, err
			}
			return &provider, nil
		}
		return nil, err
	}
	_ = utils.RemoveRedisList[ResourceProvider]()
	return &provider, nil
}

// ListProviders returns all providers, redis-cached.
func ListProviders(ctx context.Context) ([]*ResourceProvider, error) {
	results, err := utils.RetrieveRedisList[ResourceProvider]()
	if err != nil {
		return nil, err
	}
	if results == nil {
		db := config.GetDB()
		if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[ResourceProvider](results); err != nil {
			return nil, err
		}
	}
	return results, nil
}
