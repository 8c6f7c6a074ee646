package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResourceDelivery records an inbound shipment from a provider. Applying a
// delivery bumps the stock and, when a unit cost is given, also appends a
// verified cost row.
type ResourceDelivery struct {
	ID         int               `gorm:"primary_key" json:"id"`
	ResourceId int               `gorm:"index;not null" json:"resource_id"`
	Resource   *Resource         `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ProviderId *int              `json:"provider_id"`
	Provider   *ResourceProvider `gorm:"constraint:OnDelete:SET NULL" json:"provider,omitempty"`
	Amount     decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"amount"`
	UnitCost   *decimal.Decimal  `gorm:"type:decimal(20,4)" json:"unit_cost"`
	Comment    *string           `gorm:"size:400" json:"comment"`
	OperatorId *int              `json:"operator_id"`
	CreatedAt  time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}

type NewDelivery struct {
	ResourceId   int              `json:"resource_id" validate:"required"`
	Amount       decimal.Decimal  `json:"amount" validate:"required"`
	UnitCost     *decimal.Decimal `json:"unit_cost"`
	ProviderName string           `json:"provider_name"`
	Comment      *string          `json:"comment"`
}

// MakeDelivery books a shipment: stock goes up by Amount, an optional unit
// cost becomes the new verified cost, and the delivery row keeps the paper
// trail.
func MakeDelivery(ctx context.Context, input *NewDelivery, principal Principal) (*ResourceDelivery, error) {
	logger := config.GetLogger()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, utils.OperationFailed("make delivery", utils.ErrorNegativeStock)
	}

	db := config.GetDB()
	var delivery ResourceDelivery
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}

		var resource Resource
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&resource, input.ResourceId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		delivery = ResourceDelivery{
			ResourceId: resource.ID,
			Amount:     input.Amount,
			UnitCost:   input.UnitCost,
			Comment:    input.Comment,
			OperatorId: &operator.ID,
		}
		if input.ProviderName != "" {
			provider, err := GetOrCreateProvider(tx, input.ProviderName)
			if err != nil {
				return err
			}
			delivery.ProviderId = &provider.ID
		}
		if err := tx.Create(&delivery).Error; err != nil {
			return err
		}

		if err := changeResourceAmountTx(tx, &resource, input.Amount, operator.ID); err != nil {
			return err
		}

		if input.UnitCost != nil {
			if err := tx.Model(&resource).UpdateColumn("cost", *input.UnitCost).Error; err != nil {
				return err
			}
			cost := ResourceCost{ResourceId: resource.ID, Value: *input.UnitCost, Verified: true, OperatorId: &operator.ID}
			if err := tx.Create(&cost).Error; err != nil {
				return err
			}
			if err := appendResourceAction(tx, resource.ID, ResourceActionSetCost, input.UnitCost.String(), operator.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, err
		}
		config.LogError(logger, "resourceDelivery.go", "MakeDelivery", "transaction", input.ResourceId, err)
		return nil, utils.OperationFailed("make delivery", err)
	}
	return &delivery, nil
}

// ListDeliveries returns deliveries of a resource, newest first.
func ListDeliveries(ctx context.Context, resourceId int) ([]*ResourceDelivery, error) {
	db := config.GetDB()
	var deliveries []*ResourceDelivery
	err := db.WithContext(ctx).
		Where("resource_id = ?", resourceId).
		Preload("Provider").
		Order("created_at DESC, id DESC").
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}
