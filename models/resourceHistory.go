package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ResourceCost is an append-only cost history row. Verified=false means the
// value came from an automated feed and awaits human confirmation.
type ResourceCost struct {
	ID         int             `gorm:"primary_key" json:"id"`
	ResourceId int             `gorm:"index;not null" json:"resource_id"`
	Resource   *Resource       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Value      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value"`
	Verified   bool            `gorm:"not null;default:false" json:"verified"`
	OperatorId *int            `json:"operator_id"`
	Operator   *Operator       `gorm:"constraint:OnDelete:SET NULL" json:"operator,omitempty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

// ResourceAction is the audit trail of every mutation applied to a resource.
type ResourceAction struct {
	ID         int                `gorm:"primary_key" json:"id"`
	ResourceId int                `gorm:"index;not null" json:"resource_id"`
	Resource   *Resource          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ActionType ResourceActionType `gorm:"size:3;not null" json:"action_type"`
	ValueData  string             `gorm:"size:400" json:"value_data"`
	OperatorId *int               `json:"operator_id"`
	Operator   *Operator          `gorm:"constraint:OnDelete:SET NULL" json:"operator,omitempty"`
	CreatedAt  time.Time          `gorm:"autoCreateTime;index" json:"created_at"`
}

func appendResourceAction(tx *gorm.DB, resourceId int, actionType ResourceActionType, valueData string, operatorId int) error {
	action := ResourceAction{
		ResourceId: resourceId,
		ActionType: actionType,
		ValueData:  valueData,
		OperatorId: &operatorId,
	}
	return tx.Create(&action).Error
}

// ResourceCostHistory returns the cost rows of a resource, newest first.
func ResourceCostHistory(ctx context.Context, resourceId int) ([]*ResourceCost, error) {
	db := config.GetDB()
	var costs []*ResourceCost
	err := db.WithContext(ctx).
		Where("resource_id = ?", resourceId).
		Preload("Operator").
		Order("created_at DESC, id DESC").
		Find(&costs).Error
	if err != nil {
		return nil, err
	}
	return costs, nil
}

// ResourceActionHistory returns the audit rows of a resource, newest first.
func ResourceActionHistory(ctx context.Context, resourceId int) ([]*ResourceAction, error) {
	db := config.GetDB()
	var actions []*ResourceAction
	err := db.WithContext(ctx).
		Where("resource_id = ?", resourceId).
		Preload("Operator").
		Order("created_at DESC, id DESC").
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}
