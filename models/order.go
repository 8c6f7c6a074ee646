package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/utils"
	"gorm.io/gorm"
)

// OrderSource is the sales channel an order came from, created on demand.
type OrderSource struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Order is a customer order over products. Status moves through the
// fulfillment state machine in workflow/orderWorkflow.go.
type Order struct {
	ID         int          `gorm:"primary_key" json:"id"`
	ExternalId string       `gorm:"size:100;uniqueIndex;not null" json:"external_id"`
	Status     OrderStatus  `gorm:"size:3;not null;index" json:"status"`
	SourceId   *int         `json:"source_id"`
	Source     *OrderSource `gorm:"constraint:OnDelete:SET NULL" json:"source,omitempty"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"autoUpdateTime" json:"updated_at"`

	OrderSpecifications []*OrderSpecification `gorm:"foreignKey:OrderId" json:"order_specifications,omitempty"`
	UnresolvedProducts  []*UnresolvedProduct  `gorm:"foreignKey:OrderId" json:"unresolved_products,omitempty"`
}

// OrderSpecification is one order line: a quantity of an active product
// revision. Assembled flips per line as the warehouse packs the order.
type OrderSpecification struct {
	ID              int            `gorm:"primary_key" json:"id"`
	OrderId         int            `gorm:"index;not null;uniqueIndex:idx_order_spec" json:"order_id"`
	Order           *Order         `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	SpecificationId int            `gorm:"index;not null;uniqueIndex:idx_order_spec" json:"specification_id"`
	Specification   *Specification `gorm:"constraint:OnDelete:CASCADE" json:"specification,omitempty"`
	Amount          int            `gorm:"not null" json:"amount"`
	Assembled       bool           `gorm:"not null;default:false" json:"assembled"`
}

// OrderAction is the audit trail of the order lifecycle.
type OrderAction struct {
	ID         int             `gorm:"primary_key" json:"id"`
	OrderId    *int            `gorm:"index" json:"order_id"`
	Order      *Order          `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	ActionType OrderActionType `gorm:"size:3;not null" json:"action_type"`
	OperatorId *int            `json:"operator_id"`
	Operator   *Operator       `gorm:"constraint:OnDelete:SET NULL" json:"operator,omitempty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

// UnresolvedProduct records an ordered product id that had no active
// specification at order-creation time, so the gap is visible instead of
// silently dropped.
type UnresolvedProduct struct {
	ID        int       `gorm:"primary_key" json:"id"`
	OrderId   int       `gorm:"index;not null" json:"order_id"`
	Order     *Order    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ProductId string    `gorm:"size:50;not null" json:"product_id"`
	Amount    int       `gorm:"not null" json:"amount"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func AppendOrderAction(tx *gorm.DB, orderId int, actionType OrderActionType, operatorId int) error {
	action := OrderAction{
		OrderId:    &orderId,
		ActionType: actionType,
		OperatorId: &operatorId,
	}
	return tx.Create(&action).Error
}

type OrderProductInput struct {
	ProductId string `json:"product_id" validate:"required"`
	Amount    int    `json:"amount" validate:"required,gt=0"`
}

type NewOrder struct {
	ExternalId string              `json:"external_id" validate:"required"`
	Source     string              `json:"source"`
	Products   []OrderProductInput `json:"products"`
}

func GetOrder(ctx context.Context, id int, associations ...string) (*Order, error) {
	return utils.FetchModel[Order](ctx, id, associations...)
}

// OrderDetail loads an order with lines, products and bills of materials,
// ready for the workflow projections.
func OrderDetail(ctx context.Context, id int) (*Order, error) {
	return utils.FetchModel[Order](ctx, id,
		"Source",
		"OrderSpecifications",
		"OrderSpecifications.Specification",
		"OrderSpecifications.Specification.ResSpecs",
		"OrderSpecifications.Specification.ResSpecs.Resource",
		"UnresolvedProducts",
	)
}

// CreateOrder creates an INACTIVE order. Each ordered product resolves to its
// active specification revision; products without one are kept as
// UnresolvedProduct rows.
func CreateOrder(ctx context.Context, input *NewOrder, principal Principal) (*Order, error) {
	logger := config.GetLogger()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	var order Order
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := ResolveOperator(tx, principal)
		if err != nil {
			return err
		}

		order = Order{
			ExternalId: input.ExternalId,
			Status:     OrderStatusInactive,
		}
		if input.Source != "" {
			source, err := getOrCreateOrderSource(tx, input.Source)
			if err != nil {
				return err
			}
			order.SourceId = &source.ID
			order.Source = source
		}
		if err := tx.Omit("Source").Create(&order).Error; err != nil {
			if utils.IsDuplicateKeyError(err) {
				return utils.ErrorDuplicateExternalId
			}
			return err
		}
		if err := AppendOrderAction(tx, order.ID, OrderActionCreate, operator.ID); err != nil {
			return err
		}

		if len(input.Products) == 0 {
			return nil
		}

		productIds := make([]string, 0, len(input.Products))
		for _, p := range input.Products {
			productIds = append(productIds, p.ProductId)
		}
		var specifications []Specification
		if err := tx.Where("product_id IN ? AND is_active = ?", utils.UniqueSlice(productIds), true).
			Find(&specifications).Error; err != nil {
			return err
		}
		byProductId := make(map[string]*Specification, len(specifications))
		for i := range specifications {
			byProductId[specifications[i].ProductId] = &specifications[i]
		}

		for _, p := range input.Products {
			specification, ok := byProductId[p.ProductId]
			if !ok {
				unresolved := UnresolvedProduct{OrderId: order.ID, ProductId: p.ProductId, Amount: p.Amount}
				if err := tx.Create(&unresolved).Error; err != nil {
					return err
				}
				continue
			}
			line := OrderSpecification{
				OrderId:         order.ID,
				SpecificationId: specification.ID,
				Amount:          p.Amount,
			}
			if err := tx.Create(&line).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if err == utils.ErrorDuplicateExternalId {
			return nil, err
		}
		config.LogError(logger, "order.go", "CreateOrder", "transaction", input.ExternalId, err)
		return nil, utils.OperationFailed("create order", err)
	}
	return &order, nil
}

func getOrCreateOrderSource(tx *gorm.DB, name string) (*OrderSource, error) {
	var source OrderSource
	err := tx.Where("name = ?", name).First(&source).Error
	if err == nil {
		return &source, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	source = OrderSource{Name: name}
	if err := tx.Create(&source).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			if err := tx.Where("name = ?", name).First(&source).Error; err != nil {
				return nil, err
			}
			return &source, nil
		}
		return nil, err
	}
	return &source, nil
}

// ListOrders returns non-archived orders, workflow-first, with lines and
// bills of materials preloaded.
func ListOrders(ctx context.Context) ([]*Order, error) {
	db := config.GetDB()
	var orders []*Order
	err := db.WithContext(ctx).
		Where("status <> ?", OrderStatusArchived).
		Preload("Source").
		Preload("OrderSpecifications").
		Preload("OrderSpecifications.Specification").
		Preload("OrderSpecifications.Specification.ResSpecs").
		Preload("OrderSpecifications.Specification.ResSpecs.Resource").
		Order("status").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrderSources returns all known sales channels.
func ListOrderSources(ctx context.Context) ([]*OrderSource, error) {
	db := config.GetDB()
	var sources []*OrderSource
	if err := db.WithContext(ctx).Order("name").Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// OrderStatusCount is the dashboard projection of in-flight orders.
type OrderStatusCount struct {
	Inactive   int64 `json:"inactive"`
	Active     int64 `json:"active"`
	Assembling int64 `json:"assembling"`
	Ready      int64 `json:"ready"`
}

func CountOrdersByStatus(ctx context.Context) (*OrderStatusCount, error) {
	db := config.GetDB()
	var rows []struct {
		Status OrderStatus
		N      int64
	}
	err := db.WithContext(ctx).Model(&Order{}).
		Select("status, COUNT(id) AS n").
		Where("status IN ?", []OrderStatus{OrderStatusInactive, OrderStatusActive, OrderStatusAssembling, OrderStatusReady}).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := OrderStatusCount{}
	for _, row := range rows {
		switch row.Status {
		case OrderStatusInactive:
			counts.Inactive = row.N
		case OrderStatusActive:
			counts.Active = row.N
		case OrderStatusAssembling:
			counts.Assembling = row.N
		case OrderStatusReady:
			counts.Ready = row.N
		}
	}
	return &counts, nil
}

func DeleteOrder(ctx context.Context, orderId int) error {
	db := config.GetDB()
	res := db.WithContext(ctx).Delete(&Order{}, orderId)
	if res.Error != nil {
		return utils.OperationFailed("delete order", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func BulkDeleteOrders(ctx context.Context, ids []int) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&Order{}, ids).Error; err != nil {
		return utils.OperationFailed("bulk delete orders", err)
	}
	return nil
}
