package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NotificationRecord is a transactional-outbox row for a storefront push.
// It is written in the same transaction as the state change it announces and
// delivered later by workflow.NotificationDispatcher.
type NotificationRecord struct {
	ID         int                `gorm:"primary_key" json:"id"`
	Kind       NotificationKind   `gorm:"size:20;not null" json:"kind"`
	ExternalId string             `gorm:"size:100;not null;index" json:"external_id"`
	Value      *decimal.Decimal   `gorm:"type:decimal(20,4)" json:"value"`
	Status     NotificationStatus `gorm:"size:10;not null;default:PENDING;index:idx_notifications_claim" json:"status"`
	Attempts   int                `gorm:"not null;default:0" json:"attempts"`
	LastError  *string            `gorm:"size:400" json:"last_error"`
	NextRunAt  time.Time          `gorm:"not null;index:idx_notifications_claim" json:"next_run_at"`
	CreatedAt  time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// queueNotification enqueues a storefront push inside the caller's
// transaction. When notifications are disabled the row is still written so
// nothing is lost; the dispatcher just never runs.
func queueNotification(tx *gorm.DB, kind NotificationKind, externalId string, value *decimal.Decimal) error {
	record := NotificationRecord{
		Kind:       kind,
		ExternalId: externalId,
		Value:      value,
		Status:     NotificationStatusPending,
		NextRunAt:  time.Now(),
	}
	return tx.Create(&record).Error
}

// QueueOrderNotification enqueues a ship/cancel push for an order, inside
// the caller's transaction.
func QueueOrderNotification(tx *gorm.DB, kind NotificationKind, externalId string) error {
	return queueNotification(tx, kind, externalId, nil)
}

// QueueNotificationValue enqueues a value-carrying push (price, prime cost)
// inside the caller's transaction.
func QueueNotificationValue(tx *gorm.DB, kind NotificationKind, externalId string, value *decimal.Decimal) error {
	return queueNotification(tx, kind, externalId, value)
}

// ListNotifications returns outbox rows filtered by status, newest first.
func ListNotifications(ctx context.Context, status NotificationStatus, limit int) ([]*NotificationRecord, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = config.SearchLimit
	}
	var records []*NotificationRecord
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReplayDeadNotifications requeues DEAD rows so the dispatcher retries them,
// returning how many were revived.
func ReplayDeadNotifications(ctx context.Context) (int, error) {
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&NotificationRecord{}).
		Where("status = ?", NotificationStatusDead).
		Updates(map[string]interface{}{
			"status":      NotificationStatusPending,
			"attempts":    0,
			"next_run_at": time.Now(),
		})
	if res.Error != nil {
		return 0, utils.OperationFailed("replay dead notifications", res.Error)
	}
	return int(res.RowsAffected), nil
}
