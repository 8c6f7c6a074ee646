package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/models"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Order fulfillment state machine.
//
//	INACTIVE -> ACTIVE            reserve stock (activate)
//	ACTIVE   <-> ASSEMBLING <-> READY   per-line assemble / disassemble
//	ACTIVE | ASSEMBLING | READY -> INACTIVE   release stock (deactivate)
//	READY -> CONFIRMED            hand over to shipping
//	any non-terminal -> CANCELED  releases stock first if reserved
//	CONFIRMED | CANCELED -> ARCHIVED
//
// Every transition runs in one transaction with the order row locked, so a
// concurrent transition on the same order either serializes or fails the
// legality check.

// ActivateOrder reserves stock for every line. Pre-built sets are consumed
// first; the remainder is drawn from raw resources per the bill of
// materials. Any shortage aborts the whole activation.
func ActivateOrder(ctx context.Context, orderId int, principal models.Principal) error {
	return transition(ctx, orderId, principal, "activate order", func(tx *gorm.DB, order *models.Order, operatorId int) error {
		if !order.Status.CanActivate() {
			return utils.ErrorInvalidTransition
		}

		var lines []models.OrderSpecification
		if err := tx.Where("order_id = ?", order.ID).Find(&lines).Error; err != nil {
			return err
		}
		for _, line := range lines {
			if err := drawDownLine(tx, &line, operatorId); err != nil {
				return err
			}
		}

		if err := tx.Model(order).UpdateColumn("status", models.OrderStatusActive).Error; err != nil {
			return err
		}
		return models.AppendOrderAction(tx, order.ID, models.OrderActionActivate, operatorId)
	})
}

// drawDownLine reserves the stock for one order line: shelf sets first, the
// rest from raw resources with their rows locked.
func drawDownLine(tx *gorm.DB, line *models.OrderSpecification, operatorId int) error {
	var specification models.Specification
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&specification, line.SpecificationId).Error; err != nil {
		return err
	}

	if specification.Amount >= line.Amount {
		return setSpecificationShelf(tx, &specification, specification.Amount-line.Amount, operatorId)
	}

	fromShelf := specification.Amount
	if fromShelf > 0 {
		if err := setSpecificationShelf(tx, &specification, 0, operatorId); err != nil {
			return err
		}
	}

	sets := decimal.NewFromInt(int64(line.Amount - fromShelf))
	var bom []models.SpecificationResource
	if err := tx.Where("specification_id = ?", specification.ID).Find(&bom).Error; err != nil {
		return err
	}
	for _, bomLine := range bom {
		var resource models.Resource
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&resource, bomLine.ResourceId).Error; err != nil {
			return err
		}
		needed := bomLine.Amount.Mul(sets)
		if resource.Amount.LessThan(needed) {
			return &utils.InsufficientStockError{
				ResourceId:   resource.ID,
				ResourceName: resource.Name,
				Available:    resource.Amount.String(),
				Needed:       needed.String(),
			}
		}
		if err := models.ChangeLockedResourceAmount(tx, &resource, needed.Neg(), operatorId); err != nil {
			return err
		}
	}
	return nil
}

func setSpecificationShelf(tx *gorm.DB, specification *models.Specification, amount int, operatorId int) error {
	if err := tx.Model(specification).UpdateColumn("amount", amount).Error; err != nil {
		return err
	}
	return models.AppendSpecificationAmountAction(tx, specification.ID, fmt.Sprint(amount), operatorId)
}

// DeactivateOrder releases everything a line reserved back to raw resources
// and resets all assembly marks. Pre-built sets consumed during activation
// come back as raw materials, not as shelf sets.
func DeactivateOrder(ctx context.Context, orderId int, principal models.Principal) error {
	return transition(ctx, orderId, principal, "deactivate order", func(tx *gorm.DB, order *models.Order, operatorId int) error {
		if !order.Status.CanDeactivate() {
			return utils.ErrorInvalidTransition
		}
		if err := releaseOrderStock(tx, order, operatorId); err != nil {
			return err
		}
		if err := tx.Model(order).UpdateColumn("status", models.OrderStatusInactive).Error; err != nil {
			return err
		}
		return models.AppendOrderAction(tx, order.ID, models.OrderActionDeactivate, operatorId)
	})
}

func releaseOrderStock(tx *gorm.DB, order *models.Order, operatorId int) error {
	var lines []models.OrderSpecification
	if err := tx.Where("order_id = ?", order.ID).Find(&lines).Error; err != nil {
		return err
	}
	for _, line := range lines {
		if line.Assembled {
			if err := tx.Model(&models.OrderSpecification{}).Where("id = ?", line.ID).
				UpdateColumn("assembled", false).Error; err != nil {
				return err
			}
		}
		var bom []models.SpecificationResource
		if err := tx.Where("specification_id = ?", line.SpecificationId).Find(&bom).Error; err != nil {
			return err
		}
		sets := decimal.NewFromInt(int64(line.Amount))
		for _, bomLine := range bom {
			var resource models.Resource
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&resource, bomLine.ResourceId).Error; err != nil {
				return err
			}
			if err := models.ChangeLockedResourceAmount(tx, &resource, bomLine.Amount.Mul(sets), operatorId); err != nil {
				return err
			}
		}
	}
	return nil
}

// AssembleSpecification marks one line as packed. The first assembled line
// moves the order to ASSEMBLING; when every line is packed the order
// auto-advances to READY.
func AssembleSpecification(ctx context.Context, orderId, specificationId int, principal models.Principal) error {
	return transition(ctx, orderId, principal, "assemble specification", func(tx *gorm.DB, order *models.Order, operatorId int) error {
		if !order.Status.CanAssemble() {
			return utils.ErrorInvalidTransition
		}
		res := tx.Model(&models.OrderSpecification{}).
			Where("order_id = ? AND specification_id = ?", order.ID, specificationId).
			UpdateColumn("assembled", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrorRecordNotFound
		}
		if err := models.AppendOrderAction(tx, order.ID, models.OrderActionAssembleSpecification, operatorId); err != nil {
			return err
		}

		if order.Status == models.OrderStatusActive {
			if err := tx.Model(order).UpdateColumn("status", models.OrderStatusAssembling).Error; err != nil {
				return err
			}
			if err := models.AppendOrderAction(tx, order.ID, models.OrderActionAssembling, operatorId); err != nil {
				return err
			}
		}

		var remaining int64
		if err := tx.Model(&models.OrderSpecification{}).
			Where("order_id = ? AND assembled = ?", order.ID, false).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			if err := tx.Model(order).UpdateColumn("status", models.OrderStatusReady).Error; err != nil {
				return err
			}
			return models.AppendOrderAction(tx, order.ID, models.OrderActionPreparing, operatorId)
		}
		return nil
	})
}

// DisassembleSpecification unmarks a packed line. A READY order falls back
// to ASSEMBLING; when no line remains packed the order returns to ACTIVE.
func DisassembleSpecification(ctx context.Context, orderId, specificationId int, principal models.Principal) error {
	return transition(ctx, orderId, principal, "disassemble specification", func(tx *gorm.DB, order *models.Order, operatorId int) error {
		if !order.Status.CanDisassemble() {
			return utils.ErrorInvalidTransition
		}
		res := tx.Model(&models.OrderSpecification{}).
			Where("order_id = ? AND specification_id = ?", order.ID, specificationId).
			UpdateColumn("assembled", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrorRecordNotFound
		}
		if err := models.AppendOrderAction(tx, order.ID, models.OrderActionDisassembleSpecification, operatorId); err != nil {
			return err
		}

		if order.Status == models.OrderStatusReady {
			if err := tx.Model(order).UpdateColumn("status", models.OrderStatusAssembling).Error; err != nil {
				return err
			}
			if err := models.AppendOrderAction(tx, order.ID, models.OrderActionAssembling, operatorId); err != nil {
				return err
			}
		}

		var assembled int64
		if err := tx.Model(&models.OrderSpecification{}).
			Where("order_id = ? AND assembled = ?", order.ID, true).
			Count(&assembled).Error; err != nil {
			return err
		}
		if assembled == 0 {
			if err := tx.Model(order).UpdateColumn("status", models.OrderStatusActive).Error; err != nil {
				return err
			}
			return models.AppendOrderAction(tx, order.ID, models.OrderActionActivate, operatorId)
		}
		return nil
	})
}

// ConfirmOrder hands a READY order over to shipping and queues the
// storefront ship notification in the same transaction.
func ConfirmOrder(ctx context.Context, orderId int, principal models.Principal) error {
	return transition(ctx, orderId, principal, "confirm order", func(tx *gorm.DB, order *models.Order, operatorId int) error {
		if !order.Status.CanConfirm() {
			return utils.ErrorInvalidTransition
		}
		if err := tx.Model(order).UpdateColumn("status", models.OrderStatusConfirmed).Error; err != nil {
			return err
		}
		if err := models.AppendOrderAction(tx, order.ID, models.OrderActionConfirm, operatorId); err != nil {
			return err
		}
		return models.QueueOrderNotification(tx, models.NotificationShip, order.ExternalId)
	})
}

// CancelOrder cancels any non-terminal order. Orders holding reservations
// are deactivated first so the stock flows back, then the storefront cancel
// notification is queued.
func CancelOrder(ctx context.Context, orderId int, principal models.Principal) error {
	return transition(ctx, orderId, principal, "cancel order", func(tx *gorm.DB, order *models.Order, operatorId int) error {
		if !order.Status.CanCancel() {
			return utils.ErrorCannotCancel
		}
		if order.Status.CanDeactivate() {
			if err := releaseOrderStock(tx, order, operatorId); err != nil {
				return err
			}
			if err := models.AppendOrderAction(tx, order.ID, models.OrderActionDeactivate, operatorId); err != nil {
				return err
			}
		}
		if err := tx.Model(order).UpdateColumn("status", models.OrderStatusCanceled).Error; err != nil {
			return err
		}
		if err := models.AppendOrderAction(tx, order.ID, models.OrderActionCancel, operatorId); err != nil {
			return err
		}
		return models.QueueOrderNotification(tx, models.NotificationCancel, order.ExternalId)
	})
}

// ArchiveOrder moves a settled order out of the working set.
func ArchiveOrder(ctx context.Context, orderId int, principal models.Principal) error {
	return transition(ctx, orderId, principal, "archive order", func(tx *gorm.DB, order *models.Order, operatorId int) error {
		if !order.Status.CanArchive() {
			return utils.ErrorInvalidTransition
		}
		if err := tx.Model(order).UpdateColumn("status", models.OrderStatusArchived).Error; err != nil {
			return err
		}
		return models.AppendOrderAction(tx, order.ID, models.OrderActionArchivation, operatorId)
	})
}

func transition(ctx context.Context, orderId int, principal models.Principal, op string, apply func(*gorm.DB, *models.Order, int) error) error {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		operator, err := models.ResolveOperator(tx, principal)
		if err != nil {
			return err
		}
		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		return apply(tx, &order, operator.ID)
	})
	if err != nil {
		switch err {
		case utils.ErrorRecordNotFound, utils.ErrorInvalidTransition, utils.ErrorCannotCancel, utils.ErrorNegativeStock:
			return err
		}
		if _, ok := err.(*utils.InsufficientStockError); ok {
			return err
		}
		config.LogError(logger, "orderWorkflow.go", op, "transaction", orderId, err)
		return utils.OperationFailed(op, err)
	}
	return nil
}

// AssemblingShortages projects which unassembled lines cannot be fully
// assembled from current stock. Pure over a preloaded order: the shelf count
// of each product offsets its own demand (never another product's), the
// remainder is checked against raw stock shared across lines.
func AssemblingShortages(order *models.Order) (missingSpecifications, missingResources []int) {
	type tally struct {
		available decimal.Decimal
		needed    decimal.Decimal
	}
	resources := map[int]*tally{}
	missSpecs := map[int]struct{}{}
	missRes := map[int]struct{}{}

	for _, line := range order.OrderSpecifications {
		specification := line.Specification
		if specification == nil || line.Assembled {
			continue
		}
		if specification.Amount >= line.Amount {
			continue
		}
		sets := decimal.NewFromInt(int64(line.Amount - specification.Amount))
		for _, bomLine := range specification.ResSpecs {
			if bomLine.Resource == nil {
				continue
			}
			t, ok := resources[bomLine.ResourceId]
			if !ok {
				t = &tally{available: bomLine.Resource.Amount, needed: decimal.Zero}
				resources[bomLine.ResourceId] = t
			}
			t.needed = t.needed.Add(bomLine.Amount.Mul(sets))
			if t.available.LessThan(t.needed) {
				missRes[bomLine.ResourceId] = struct{}{}
				missSpecs[specification.ID] = struct{}{}
			}
		}
	}

	for id := range missSpecs {
		missingSpecifications = append(missingSpecifications, id)
	}
	for id := range missRes {
		missingResources = append(missingResources, id)
	}
	return missingSpecifications, missingResources
}
