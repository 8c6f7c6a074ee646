package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Resource is a stockable raw material. Amount and Cost are denormalized
// current values; every change also appends a history row (ResourceCost /
// ResourceAction) in the same transaction.
type Resource struct {
	ID           int               `gorm:"primary_key" json:"id"`
	ProviderId   *int              `gorm:"index" json:"provider_id"`
	Provider     *ResourceProvider `gorm:"constraint:OnDelete:SET NULL" json:"provider"`
	Name         string            `gorm:"size:400;not null" json:"name"`
	ExternalId   string            `gorm:"size:100;uniqueIndex;not null" json:"external_id"`
	Amount       decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"amount"`
	AmountLimit  decimal.Decimal   `gorm:"type:decimal(20,4);default:10" json:"amount_limit"`
	Cost         decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"cost"`
	StoragePlace *string           `gorm:"size:100" json:"storage_place"`
	Comment      *string           `gorm:"size:400" json:"comment"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	ResSpecs []*SpecificationResource `gorm:"foreignKey:ResourceId" json:"res_specs,omitempty"`
}

type NewResource struct {
	Name         string           `json:"name" validate:"required"`
	ExternalId   string           `json:"external_id" validate:"required"`
	Cost         decimal.Decimal  `json:"cost"`
	Amount       decimal.Decimal  `json:"amount"`
	AmountLimit  *decimal.Decimal `json:"amount_limit"`
	ProviderName string           `json:"provider_name"`
	StoragePlace *string          `json:"storage_place"`
	Comment      *string          `json:"comment"`
}

// ResourceShort is the projection used by pickers and bulk views.
type ResourceShort struct {
	ID         int             `json:"id"`
	Name       string          `json:"name"`
	ExternalId string          `json:"external_id"`
	Amount     decimal.Decimal `json:"amount"`
	Cost       decimal.Decimal `json:"cost"`
}

func GetResource(ctx context.Context, id int, associations ...string) (*Resource, error) {
	return utils.FetchModel[Resource](ctx, id, associations...)
}

// checkStockValue applies the configured negative-stock policy: strict mode
// rejects, lenient mode logs a warning and proceeds.
func checkStockValue(logger *logrus.Logger, entity string, id int, field string, value decimal.Decimal) error {
	if !value.IsNegative() {
		return nil
	}
	if config.StrictStockPolicy() {
		return utils.ErrorNegativeStock
	}
	logger.WithFields(logrus.Fields{
		"module": "models",
		"entity": entity,
		"id":     id,
		"field":  field,
		"value":  value.String(),
	}).Warn(entity + " " + field + " < 0")
	return nil
}

// CreateResource creates a resource with its initial cost and amount,
// appending CREATE, SET_COST and SET_AMOUNT audit rows. The initial cost is
// considered verified and does not invalidate anything.
func CreateResource(ctx context.Context, input *NewResource, principal Principal) (*Resource, error) {
	logger := config.GetLogger()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	amountLimit := decimal.NewFromInt(10)
	if input.AmountLimit != nil {
		amountLimit = *input.AmountLimit
	}

	resource := Resource{
		Name:         input.Name,
		ExternalId:   input.ExternalId,
		Amount:       input.Amount,
		AmountLimit:  amountLimit,
		Cost:         input.Cost,
		StoragePlace: input.StoragePlace,
		Comment:      input.Comment,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}

		if input.ProviderName != "" {
			provider, err := GetOrCreateProvider(tx, input.ProviderName)
			if err != nil {
				return err
			}
			resource.ProviderId = &provider.ID
			resource.Provider = provider
		}

		if err := checkStockValue(logger, "resource", 0, "cost", input.Cost); err != nil {
			return err
		}
		if err := checkStockValue(logger, "resource", 0, "amount", input.Amount); err != nil {
			return err
		}

		if err := tx.Omit("Provider").Create(&resource).Error; err != nil {
			if utils.IsDuplicateKeyError(err) {
				return utils.ErrorDuplicateExternalId
			}
			return err
		}

		cost := ResourceCost{ResourceId: resource.ID, Value: input.Cost, Verified: true, OperatorId: &operator.ID}
		if err := tx.Create(&cost).Error; err != nil {
			return err
		}

		if err := appendResourceAction(tx, resource.ID, ResourceActionCreate, "", operator.ID); err != nil {
			return err
		}
		if err := appendResourceAction(tx, resource.ID, ResourceActionSetCost, input.Cost.String(), operator.ID); err != nil {
			return err
		}
		return appendResourceAction(tx, resource.ID, ResourceActionSetAmount, input.Amount.String(), operator.ID)
	})
	if err != nil {
		switch err {
		case utils.ErrorDuplicateExternalId, utils.ErrorNegativeStock:
			return nil, err
		default:
			config.LogError(logger, "resource.go", "CreateResource", "transaction", input.ExternalId, err)
			return nil, utils.OperationFailed("create resource", err)
		}
	}
	return &resource, nil
}

// SetResourceCost appends a cost row and updates the denormalized cost.
// An unverified cost marks every specification containing this resource as
// unverified and queues prime-cost notifications for them.
func SetResourceCost(ctx context.Context, resourceId int, value decimal.Decimal, verified bool, principal Principal) error {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}

		var resource Resource
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&resource, resourceId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		if err := checkStockValue(logger, "resource", resource.ID, "cost", value); err != nil {
			return err
		}

		if err := tx.Model(&resource).UpdateColumn("cost", value).Error; err != nil {
			return err
		}
		cost := ResourceCost{ResourceId: resource.ID, Value: value, Verified: verified, OperatorId: &operator.ID}
		if err := tx.Create(&cost).Error; err != nil {
			return err
		}
		if err := appendResourceAction(tx, resource.ID, ResourceActionSetCost, value.String(), operator.ID); err != nil {
			return err
		}

		if !verified {
			if err := invalidateSpecificationsForResource(tx, resource.ID); err != nil {
				return err
			}
			return queuePrimeCostNotifications(tx, resource.ID)
		}
		return nil
	})
	if err != nil {
		switch err {
		case utils.ErrorRecordNotFound, utils.ErrorNegativeStock:
			return err
		default:
			config.LogError(logger, "resource.go", "SetResourceCost", "transaction", resourceId, err)
			return utils.OperationFailed("set resource cost", err)
		}
	}
	return nil
}

// setResourceAmountTx sets the absolute stock of an already-locked resource
// row inside the caller's transaction.
func setResourceAmountTx(tx *gorm.DB, resource *Resource, value decimal.Decimal, operatorId int) error {
	logger := config.GetLogger()
	if err := checkStockValue(logger, "resource", resource.ID, "amount", value); err != nil {
		return err
	}
	if err := tx.Model(resource).UpdateColumn("amount", value).Error; err != nil {
		return err
	}
	resource.Amount = value
	return appendResourceAction(tx, resource.ID, ResourceActionSetAmount, value.String(), operatorId)
}

// changeResourceAmountTx adds delta to an already-locked resource row.
// Callers needing hard stock guarantees (order activation, build set) must
// check availability before calling; this only applies the policy check.
func changeResourceAmountTx(tx *gorm.DB, resource *Resource, delta decimal.Decimal, operatorId int) error {
	logger := config.GetLogger()
	next := resource.Amount.Add(delta)
	if err := checkStockValue(logger, "resource", resource.ID, "amount", next); err != nil {
		return err
	}
	if err := tx.Model(resource).UpdateColumn("amount", next).Error; err != nil {
		return err
	}
	resource.Amount = next
	return appendResourceAction(tx, resource.ID, ResourceActionChangeAmount, delta.String(), operatorId)
}

// ChangeLockedResourceAmount adds delta to a resource row the caller has
// already locked, appending the audit row. For use inside workflow
// transactions.
func ChangeLockedResourceAmount(tx *gorm.DB, resource *Resource, delta decimal.Decimal, operatorId int) error {
	return changeResourceAmountTx(tx, resource, delta, operatorId)
}

// SetResourceAmount sets absolute stock.
func SetResourceAmount(ctx context.Context, resourceId int, value decimal.Decimal, principal Principal) error {
	return resourceAmountOp(ctx, resourceId, principal, "set resource amount", func(tx *gorm.DB, resource *Resource, operatorId int) error {
		return setResourceAmountTx(tx, resource, value, operatorId)
	})
}

// ChangeResourceAmount adds delta (positive or negative) to current stock.
func ChangeResourceAmount(ctx context.Context, resourceId int, delta decimal.Decimal, principal Principal) error {
	return resourceAmountOp(ctx, resourceId, principal, "change resource amount", func(tx *gorm.DB, resource *Resource, operatorId int) error {
		return changeResourceAmountTx(tx, resource, delta, operatorId)
	})
}

func resourceAmountOp(ctx context.Context, resourceId int, principal Principal, op string, mutate func(*gorm.DB, *Resource, int) error) error {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}
		var resource Resource
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&resource, resourceId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		return mutate(tx, &resource, operator.ID)
	})
	if err != nil {
		switch err {
		case utils.ErrorRecordNotFound, utils.ErrorNegativeStock:
			return err
		default:
			config.LogError(logger, "resource.go", op, "transaction", resourceId, err)
			return utils.OperationFailed(op, err)
		}
	}
	return nil
}

// VerifyResourceCosts marks every unverified cost row of the given resources
// as verified and returns how many rows were updated. The whole backlog
// clears at once so an older unverified row cannot strand a resource in the
// review queue.
func VerifyResourceCosts(ctx context.Context, resourceIds []int, principal Principal) (int, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var updated int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}
		res := tx.Model(&ResourceCost{}).
			Where("resource_id IN ? AND verified = ?", resourceIds, false).
			Update("verified", true)
		if res.Error != nil {
			return res.Error
		}
		updated = res.RowsAffected

		for _, id := range resourceIds {
			if err := appendResourceAction(tx, id, ResourceActionVerifyCost, "", operator.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "resource.go", "VerifyResourceCosts", "transaction", resourceIds, err)
		return 0, utils.OperationFailed("verify resource costs", err)
	}
	return int(updated), nil
}

type UpdateResourceFields struct {
	Name         *string `json:"name"`
	ExternalId   *string `json:"external_id"`
	ProviderName *string `json:"provider_name"`
}

// UpdateResource updates plain fields and appends an UPDATE_FIELDS audit row
// describing the delta. A no-op update is logged and returns the unchanged
// resource.
func UpdateResource(ctx context.Context, resourceId int, input *UpdateResourceFields, principal Principal) (*Resource, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var resource *Resource
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}
		var r Resource
		if err := tx.First(&r, resourceId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		updates := map[string]interface{}{}
		var valueData string
		if input.Name != nil {
			updates["name"] = *input.Name
			valueData += fmt.Sprintf("name=%s;", *input.Name)
		}
		if input.ExternalId != nil {
			updates["external_id"] = *input.ExternalId
			valueData += fmt.Sprintf("external_id=%s;", *input.ExternalId)
		}
		if input.ProviderName != nil {
			provider, err := GetOrCreateProvider(tx, *input.ProviderName)
			if err != nil {
				return err
			}
			updates["provider_id"] = provider.ID
			valueData += fmt.Sprintf("provider_name=%s;", *input.ProviderName)
		}

		if len(updates) == 0 {
			logger.WithFields(logrus.Fields{"module": "models", "id": resourceId}).Warn("no fields updated for resource")
			resource = &r
			return nil
		}

		if err := tx.Model(&r).Updates(updates).Error; err != nil {
			if utils.IsDuplicateKeyError(err) {
				return utils.ErrorDuplicateExternalId
			}
			return err
		}
		if err := appendResourceAction(tx, r.ID, ResourceActionUpdateFields, valueData, operator.ID); err != nil {
			return err
		}
		resource = &r
		return nil
	})
	if err != nil {
		switch err {
		case utils.ErrorRecordNotFound, utils.ErrorDuplicateExternalId:
			return nil, err
		default:
			config.LogError(logger, "resource.go", "UpdateResource", "transaction", resourceId, err)
			return nil, utils.OperationFailed("update resource", err)
		}
	}
	return resource, nil
}

// ListResources returns all resources with their provider and the date of
// their most recent delivery.
func ListResources(ctx context.Context) ([]*Resource, error) {
	db := config.GetDB()
	var resources []*Resource
	if err := db.WithContext(ctx).Preload("Provider").Order("name").Find(&resources).Error; err != nil {
		return nil, err
	}
	return resources, nil
}

// ShortlistResources is the lightweight picker projection, redis-cached.
func ShortlistResources(ctx context.Context) ([]*ResourceShort, error) {
	results, err := utils.RetrieveRedisList[ResourceShort]()
	if err != nil {
		return nil, err
	}
	if results == nil {
		db := config.GetDB()
		if err := db.WithContext(ctx).Model(&Resource{}).Order("name").Scan(&results).Error; err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[ResourceShort](results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// ResourcesWithUnverifiedCost lists resources whose latest costs still await
// human verification.
func ResourcesWithUnverifiedCost(ctx context.Context) ([]*Resource, error) {
	db := config.GetDB()
	var resources []*Resource
	err := db.WithContext(ctx).
		Where("id IN (?)", db.Model(&ResourceCost{}).Select("resource_id").Where("verified = ?", false)).
		Preload("Provider").
		Find(&resources).Error
	if err != nil {
		return nil, err
	}
	return resources, nil
}

// ExpiredResourceCount counts resources at or below their reorder threshold.
func ExpiredResourceCount(ctx context.Context) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Resource{}).
		Where("amount_limit >= amount").
		Count(&count).Error
	return count, err
}

// DeleteResource hard-deletes a resource; cost and action history cascade,
// bill-of-materials lines keep a NULL resource reference.
func DeleteResource(ctx context.Context, resourceId int) error {
	db := config.GetDB()
	res := db.WithContext(ctx).Delete(&Resource{}, resourceId)
	if res.Error != nil {
		return utils.OperationFailed("delete resource", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	_ = utils.RemoveRedisList[ResourceShort]()
	return nil
}

func BulkDeleteResources(ctx context.Context, ids []int) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&Resource{}, ids).Error; err != nil {
		return utils.OperationFailed("bulk delete resources", err)
	}
	_ = utils.RemoveRedisList[ResourceShort]()
	return nil
}
