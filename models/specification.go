package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Specification is a sellable product defined by a bill of materials. Only
// one specification per product id may be active; creating a new revision
// deactivates the previous one in the same transaction. Amount counts
// pre-built sets sitting on the shelf.
type Specification struct {
	ID           int                    `gorm:"primary_key" json:"id"`
	Name         string                 `gorm:"size:400" json:"name"`
	ProductId    string                 `gorm:"size:50;index;not null" json:"product_id"`
	CategoryId   *int                   `json:"category_id"`
	Category     *SpecificationCategory `gorm:"constraint:OnDelete:SET NULL" json:"category,omitempty"`
	IsActive     bool                   `gorm:"not null;default:true;index" json:"is_active"`
	Price        decimal.Decimal        `gorm:"type:decimal(12,2);default:0" json:"price"`
	Amount       int                    `gorm:"not null;default:0" json:"amount"`
	Coefficient  *decimal.Decimal       `gorm:"type:decimal(12,2)" json:"coefficient"`
	Verified     bool                   `gorm:"not null;default:true" json:"verified"`
	StoragePlace *string                `gorm:"size:100" json:"storage_place"`
	CreatedAt    time.Time              `gorm:"autoCreateTime" json:"created_at"`

	ResSpecs []*SpecificationResource `gorm:"foreignKey:SpecificationId" json:"res_specs,omitempty"`
}

// SpecificationAction is the audit trail of product mutations.
type SpecificationAction struct {
	ID              int                     `gorm:"primary_key" json:"id"`
	SpecificationId *int                    `gorm:"index" json:"specification_id"`
	Specification   *Specification          `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	ActionType      SpecificationActionType `gorm:"size:3;not null" json:"action_type"`
	ValueData       string                  `gorm:"size:300" json:"value_data"`
	OperatorId      *int                    `json:"operator_id"`
	Operator        *Operator               `gorm:"constraint:OnDelete:SET NULL" json:"operator,omitempty"`
	CreatedAt       time.Time               `gorm:"autoCreateTime;index" json:"created_at"`
}

func appendSpecificationAction(tx *gorm.DB, specificationId int, actionType SpecificationActionType, valueData string, operatorId int) error {
	action := SpecificationAction{
		SpecificationId: &specificationId,
		ActionType:      actionType,
		ValueData:       valueData,
		OperatorId:      &operatorId,
	}
	return tx.Create(&action).Error
}

// AppendSpecificationAmountAction records a shelf-count change made by a
// workflow transaction.
func AppendSpecificationAmountAction(tx *gorm.DB, specificationId int, value string, operatorId int) error {
	return appendSpecificationAction(tx, specificationId, SpecificationActionSetAmount, value, operatorId)
}

// PrimeCost sums cost*quantity over the preloaded bill of materials.
func (s *Specification) PrimeCost() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.ResSpecs {
		total = total.Add(line.LineCost())
	}
	return total
}

// AssembleInfo returns how many sets can be assembled from raw stock: the
// minimum over lines of floor(resource.amount / line.amount). A product with
// no usable lines assembles zero sets; zero-quantity lines are logged and
// skipped instead of dividing by zero.
func (s *Specification) AssembleInfo() int {
	minSets := -1
	for _, line := range s.ResSpecs {
		if line.Resource == nil {
			return 0
		}
		if line.Amount.IsZero() {
			config.LogWarn(config.GetLogger(), "specification.go", "AssembleInfo",
				"zero-quantity line skipped", line.ResourceId)
			continue
		}
		sets := int(line.Resource.Amount.Div(line.Amount).IntPart())
		if minSets < 0 || sets < minSets {
			minSets = sets
		}
	}
	if minSets < 0 {
		return 0
	}
	return minSets
}

// BuildPreview projects the residual stock of each line's resource after
// building the given number of sets from raw materials. Read-only.
func (s *Specification) BuildPreview(sets int) []ResourceShort {
	out := make([]ResourceShort, 0, len(s.ResSpecs))
	n := decimal.NewFromInt(int64(sets))
	for _, line := range s.ResSpecs {
		if line.Resource == nil {
			continue
		}
		out = append(out, ResourceShort{
			ID:         line.Resource.ID,
			Name:       line.Resource.Name,
			ExternalId: line.Resource.ExternalId,
			Amount:     line.Resource.Amount.Sub(line.Amount.Mul(n)),
			Cost:       line.Resource.Cost,
		})
	}
	return out
}

type SpecificationResourceInput struct {
	ResourceId int             `json:"resource_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
}

type NewSpecification struct {
	Name         string                       `json:"name" validate:"required"`
	ProductId    string                       `json:"product_id" validate:"required"`
	Price        *decimal.Decimal             `json:"price"`
	Coefficient  *decimal.Decimal             `json:"coefficient"`
	Amount       *int                         `json:"amount"`
	CategoryName string                       `json:"category_name"`
	StoragePlace *string                      `json:"storage_place"`
	Resources    []SpecificationResourceInput `json:"resources"`
}

func GetSpecification(ctx context.Context, id int, associations ...string) (*Specification, error) {
	return utils.FetchModel[Specification](ctx, id, associations...)
}

// SpecificationDetail loads a product with category and bill of materials,
// ready for PrimeCost and AssembleInfo.
func SpecificationDetail(ctx context.Context, id int) (*Specification, error) {
	return utils.FetchModel[Specification](ctx, id, "Category", "ResSpecs", "ResSpecs.Resource")
}

// CreateSpecification creates a new active revision of a product. Any prior
// active revision of the same product id is deactivated in the same
// transaction, so the single-active invariant holds even under concurrent
// creates.
func CreateSpecification(ctx context.Context, input *NewSpecification, principal Principal) (*Specification, error) {
	logger := config.GetLogger()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	var specification Specification
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}

		// lock prior active revisions so concurrent creates serialize
		var priors []Specification
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ? AND is_active = ?", input.ProductId, true).
			Find(&priors).Error; err != nil {
			return err
		}
		for i := range priors {
			if err := tx.Model(&priors[i]).UpdateColumn("is_active", false).Error; err != nil {
				return err
			}
			if err := appendSpecificationAction(tx, priors[i].ID, SpecificationActionDeactivate, "", operator.ID); err != nil {
				return err
			}
		}

		specification = Specification{
			Name:         input.Name,
			ProductId:    input.ProductId,
			IsActive:     true,
			StoragePlace: input.StoragePlace,
			Verified:     true,
		}
		if input.Price != nil {
			specification.Price = *input.Price
		}
		if input.Amount != nil {
			specification.Amount = *input.Amount
		}

		if input.CategoryName != "" {
			category, err := GetOrCreateCategory(tx, input.CategoryName)
			if err != nil {
				return err
			}
			specification.CategoryId = &category.ID
			if input.Coefficient == nil && category.Coefficient != nil {
				specification.Coefficient = category.Coefficient
			}
		}
		if input.Coefficient != nil {
			specification.Coefficient = input.Coefficient
		}

		if err := tx.Create(&specification).Error; err != nil {
			return err
		}

		for _, line := range input.Resources {
			sr := SpecificationResource{
				ResourceId:      line.ResourceId,
				SpecificationId: specification.ID,
				Amount:          line.Amount,
			}
			if err := tx.Create(&sr).Error; err != nil {
				return err
			}
		}

		if err := appendSpecificationAction(tx, specification.ID, SpecificationActionCreate, "", operator.ID); err != nil {
			return err
		}
		if specification.Coefficient != nil {
			if err := appendSpecificationAction(tx, specification.ID, SpecificationActionSetCoefficient, specification.Coefficient.String(), operator.ID); err != nil {
				return err
			}
		}
		if err := appendSpecificationAction(tx, specification.ID, SpecificationActionSetAmount, fmt.Sprint(specification.Amount), operator.ID); err != nil {
			return err
		}
		return appendSpecificationAction(tx, specification.ID, SpecificationActionSetPrice, specification.Price.String(), operator.ID)
	})
	if err != nil {
		config.LogError(logger, "specification.go", "CreateSpecification", "transaction", input.ProductId, err)
		return nil, utils.OperationFailed("create specification", err)
	}
	_ = utils.RemoveRedisList[Specification]()
	return &specification, nil
}

// ListSpecifications returns all products with category and bill of
// materials preloaded; prime cost is computed from the lines.
func ListSpecifications(ctx context.Context) ([]*Specification, error) {
	db := config.GetDB()
	var specifications []*Specification
	err := db.WithContext(ctx).
		Preload("Category").
		Preload("ResSpecs").
		Preload("ResSpecs.Resource").
		Order("name").
		Find(&specifications).Error
	if err != nil {
		return nil, err
	}
	return specifications, nil
}

// ShortlistSpecifications is the picker projection, redis-cached.
func ShortlistSpecifications(ctx context.Context) ([]*Specification, error) {
	results, err := utils.RetrieveRedisList[Specification]()
	if err != nil {
		return nil, err
	}
	if results == nil {
		db := config.GetDB()
		if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[Specification](results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// UnverifiedSpecificationCount counts products whose price no longer covers a
// confirmed prime cost.
func UnverifiedSpecificationCount(ctx context.Context) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Specification{}).
		Where("verified = ?", false).
		Count(&count).Error
	return count, err
}

// SetSpecificationPrice sets the selling price, restores the verified flag
// and, when notify is set, queues a storefront price notification.
func SetSpecificationPrice(ctx context.Context, specificationId int, price decimal.Decimal, notify bool, principal Principal) error {
	return specificationOp(ctx, specificationId, principal, "set specification price", func(tx *gorm.DB, specification *Specification, operatorId int) error {
		logger := config.GetLogger()
		if err := checkStockValue(logger, "specification", specification.ID, "price", price); err != nil {
			return err
		}
		updates := map[string]interface{}{"price": price, "verified": true}
		if err := tx.Model(specification).Updates(updates).Error; err != nil {
			return err
		}
		if err := appendSpecificationAction(tx, specification.ID, SpecificationActionSetPrice, price.String(), operatorId); err != nil {
			return err
		}
		if notify {
			return queueNotification(tx, NotificationPrice, specification.ProductId, utils.DecimalPtr(price))
		}
		return nil
	})
}

// SetSpecificationCoefficient sets the pricing coefficient.
func SetSpecificationCoefficient(ctx context.Context, specificationId int, coefficient decimal.Decimal, principal Principal) error {
	return specificationOp(ctx, specificationId, principal, "set specification coefficient", func(tx *gorm.DB, specification *Specification, operatorId int) error {
		logger := config.GetLogger()
		if err := checkStockValue(logger, "specification", specification.ID, "coefficient", coefficient); err != nil {
			return err
		}
		if err := tx.Model(specification).UpdateColumn("coefficient", coefficient).Error; err != nil {
			return err
		}
		return appendSpecificationAction(tx, specification.ID, SpecificationActionSetCoefficient, coefficient.String(), operatorId)
	})
}

// SetSpecificationAmount sets the count of pre-built sets.
func SetSpecificationAmount(ctx context.Context, specificationId int, amount int, principal Principal) error {
	return specificationOp(ctx, specificationId, principal, "set specification amount", func(tx *gorm.DB, specification *Specification, operatorId int) error {
		logger := config.GetLogger()
		if err := checkStockValue(logger, "specification", specification.ID, "amount", decimal.NewFromInt(int64(amount))); err != nil {
			return err
		}
		if err := tx.Model(specification).UpdateColumn("amount", amount).Error; err != nil {
			return err
		}
		return appendSpecificationAction(tx, specification.ID, SpecificationActionSetAmount, fmt.Sprint(amount), operatorId)
	})
}

// SetSpecificationCategory assigns a category by name; an empty name clears
// the category. The category's coefficient, when present, overwrites the
// product's.
func SetSpecificationCategory(ctx context.Context, specificationId int, categoryName string, principal Principal) error {
	return specificationOp(ctx, specificationId, principal, "set specification category", func(tx *gorm.DB, specification *Specification, operatorId int) error {
		if categoryName == "" {
			if err := tx.Model(specification).UpdateColumn("category_id", nil).Error; err != nil {
				return err
			}
			return appendSpecificationAction(tx, specification.ID, SpecificationActionSetCategory, "", operatorId)
		}
		category, err := GetOrCreateCategory(tx, categoryName)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{"category_id": category.ID}
		if category.Coefficient != nil {
			updates["coefficient"] = *category.Coefficient
		}
		if err := tx.Model(specification).Updates(updates).Error; err != nil {
			return err
		}
		return appendSpecificationAction(tx, specification.ID, SpecificationActionSetCategory, categoryName, operatorId)
	})
}

// SetCategoryMany assigns a category to many products at once. The
// category's coefficient overwrites each member's coefficient, even when the
// category has none (members are reset to NULL).
func SetCategoryMany(ctx context.Context, specificationIds []int, categoryName string, principal Principal) error {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}
		category, err := GetOrCreateCategory(tx, categoryName)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{"category_id": category.ID, "coefficient": category.Coefficient}
		if err := tx.Model(&Specification{}).Where("id IN ?", specificationIds).Updates(updates).Error; err != nil {
			return err
		}
		for _, id := range specificationIds {
			if err := appendSpecificationAction(tx, id, SpecificationActionSetCategory, categoryName, operator.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "specification.go", "SetCategoryMany", "transaction", specificationIds, err)
		return utils.OperationFailed("set category many", err)
	}
	_ = utils.RemoveRedisList[Specification]()
	return nil
}

type EditSpecification struct {
	Name              *string                      `json:"name"`
	ProductId         *string                      `json:"product_id"`
	Price             *decimal.Decimal             `json:"price"`
	Coefficient       *decimal.Decimal             `json:"coefficient"`
	Amount            *int                         `json:"amount"`
	CategoryName      *string                      `json:"category_name"`
	ResourcesToAdd    []SpecificationResourceInput `json:"resources_to_add"`
	ResourcesToDelete []int                        `json:"resources_to_delete"`
}

// UpdateSpecification edits plain fields and the bill of materials, with an
// UPDATE_FIELDS audit row describing the delta.
func UpdateSpecification(ctx context.Context, specificationId int, input *EditSpecification, principal Principal) (*Specification, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var result *Specification
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}
		var specification Specification
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&specification, specificationId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		var valueData string
		updates := map[string]interface{}{}
		if input.Name != nil {
			updates["name"] = *input.Name
			valueData += fmt.Sprintf("name=%s;", *input.Name)
		}
		if input.ProductId != nil {
			updates["product_id"] = *input.ProductId
			valueData += fmt.Sprintf("product_id=%s;", *input.ProductId)
		}
		if len(updates) > 0 {
			if err := tx.Model(&specification).Updates(updates).Error; err != nil {
				return err
			}
			if err := appendSpecificationAction(tx, specification.ID, SpecificationActionUpdateFields, valueData, operator.ID); err != nil {
				return err
			}
		}

		if input.CategoryName != nil {
			if *input.CategoryName == "" {
				if err := tx.Model(&specification).UpdateColumn("category_id", nil).Error; err != nil {
					return err
				}
			} else {
				category, err := GetOrCreateCategory(tx, *input.CategoryName)
				if err != nil {
					return err
				}
				catUpdates := map[string]interface{}{"category_id": category.ID}
				if category.Coefficient != nil && input.Coefficient == nil {
					catUpdates["coefficient"] = *category.Coefficient
				}
				if err := tx.Model(&specification).Updates(catUpdates).Error; err != nil {
					return err
				}
				if err := appendSpecificationAction(tx, specification.ID, SpecificationActionSetCategory, *input.CategoryName, operator.ID); err != nil {
					return err
				}
			}
		}
		if input.Price != nil {
			if err := tx.Model(&specification).Updates(map[string]interface{}{"price": *input.Price, "verified": true}).Error; err != nil {
				return err
			}
			if err := appendSpecificationAction(tx, specification.ID, SpecificationActionSetPrice, input.Price.String(), operator.ID); err != nil {
				return err
			}
		}
		if input.Coefficient != nil {
			if err := tx.Model(&specification).UpdateColumn("coefficient", *input.Coefficient).Error; err != nil {
				return err
			}
			if err := appendSpecificationAction(tx, specification.ID, SpecificationActionSetCoefficient, input.Coefficient.String(), operator.ID); err != nil {
				return err
			}
		}
		if input.Amount != nil {
			if err := tx.Model(&specification).UpdateColumn("amount", *input.Amount).Error; err != nil {
				return err
			}
			if err := appendSpecificationAction(tx, specification.ID, SpecificationActionSetAmount, fmt.Sprint(*input.Amount), operator.ID); err != nil {
				return err
			}
		}

		if len(input.ResourcesToDelete) > 0 {
			if err := tx.Where("specification_id = ? AND resource_id IN ?", specification.ID, input.ResourcesToDelete).
				Delete(&SpecificationResource{}).Error; err != nil {
				return err
			}
		}
		for _, line := range input.ResourcesToAdd {
			sr := SpecificationResource{
				ResourceId:      line.ResourceId,
				SpecificationId: specification.ID,
				Amount:          line.Amount,
			}
			if err := tx.Create(&sr).Error; err != nil {
				return err
			}
		}

		if err := tx.Preload("Category").Preload("ResSpecs").Preload("ResSpecs.Resource").
			First(&specification, specification.ID).Error; err != nil {
			return err
		}
		result = &specification
		return nil
	})
	if err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, err
		}
		config.LogError(logger, "specification.go", "UpdateSpecification", "transaction", specificationId, err)
		return nil, utils.OperationFailed("update specification", err)
	}
	_ = utils.RemoveRedisList[Specification]()
	return result, err
}

// BuildSet converts raw resources into pre-built sets. With fromResources
// the bill of materials is drawn down atomically; any shortage aborts the
// whole build with ErrorCantBuildSet. Without it only the shelf count grows.
func BuildSet(ctx context.Context, specificationId int, sets int, fromResources bool, principal Principal) error {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}
		var specification Specification
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&specification, specificationId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		valueData := "from_resources=false"
		if fromResources {
			valueData = "from_resources=true"
			var lines []SpecificationResource
			if err := tx.Where("specification_id = ?", specification.ID).Find(&lines).Error; err != nil {
				return err
			}
			n := decimal.NewFromInt(int64(sets))
			for _, line := range lines {
				var resource Resource
				if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&resource, line.ResourceId).Error; err != nil {
					return err
				}
				needed := line.Amount.Mul(n)
				if resource.Amount.LessThan(needed) {
					return utils.ErrorCantBuildSet
				}
				if err := changeResourceAmountTx(tx, &resource, needed.Neg(), operator.ID); err != nil {
					return err
				}
			}
		}

		if err := tx.Model(&specification).UpdateColumn("amount", specification.Amount+sets).Error; err != nil {
			return err
		}
		return appendSpecificationAction(tx, specification.ID, SpecificationActionBuildSet, valueData, operator.ID)
	})
	if err != nil {
		switch err {
		case utils.ErrorRecordNotFound, utils.ErrorCantBuildSet, utils.ErrorNegativeStock:
			return err
		default:
			config.LogError(logger, "specification.go", "BuildSet", "transaction", specificationId, err)
			return utils.OperationFailed("build set", err)
		}
	}
	return nil
}

func DeleteSpecification(ctx context.Context, specificationId int) error {
	db := config.GetDB()
	res := db.WithContext(ctx).Delete(&Specification{}, specificationId)
	if res.Error != nil {
		return utils.OperationFailed("delete specification", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	_ = utils.RemoveRedisList[Specification]()
	return nil
}

func BulkDeleteSpecifications(ctx context.Context, ids []int) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&Specification{}, ids).Error; err != nil {
		return utils.OperationFailed("bulk delete specifications", err)
	}
	_ = utils.RemoveRedisList[Specification]()
	return nil
}

// specificationOp runs a single-product mutation in a transaction with the
// row locked and the operator resolved.
func specificationOp(ctx context.Context, specificationId int, principal Principal, op string, mutate func(*gorm.DB, *Specification, int) error) error {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}
		var specification Specification
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&specification, specificationId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		return mutate(tx, &specification, operator.ID)
	})
	if err != nil {
		switch err {
		case utils.ErrorRecordNotFound, utils.ErrorNegativeStock:
			return err
		default:
			config.LogError(logger, "specification.go", op, "transaction", specificationId, err)
			return utils.OperationFailed(op, err)
		}
	}
	_ = utils.RemoveRedisList[Specification]()
	return nil
}

// invalidateSpecificationsForResource drops the verified flag of every
// product whose bill of materials contains the resource. Runs inside the
// caller's transaction so the flag flips together with the cost change.
func invalidateSpecificationsForResource(tx *gorm.DB, resourceId int) error {
	sub := tx.Session(&gorm.Session{NewDB: true}).
		Model(&SpecificationResource{}).
		Select("specification_id").
		Where("resource_id = ?", resourceId)
	return tx.Model(&Specification{}).
		Where("id IN (?)", sub).
		Update("verified", false).Error
}

// queuePrimeCostNotifications recomputes the prime cost of every active
// product containing the resource and queues a storefront notification per
// product, inside the caller's transaction.
func queuePrimeCostNotifications(tx *gorm.DB, resourceId int) error {
	var specifications []*Specification
	sub := tx.Session(&gorm.Session{NewDB: true}).
		Model(&SpecificationResource{}).
		Select("specification_id").
		Where("resource_id = ?", resourceId)
	err := tx.Where("id IN (?) AND is_active = ?", sub, true).
		Preload("ResSpecs").
		Preload("ResSpecs.Resource").
		Find(&specifications).Error
	if err != nil {
		return err
	}
	for _, specification := range specifications {
		primeCost := specification.PrimeCost()
		if err := queueNotification(tx, NotificationPrimeCost, specification.ProductId, &primeCost); err != nil {
			return err
		}
	}
	return nil
}
