package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationDispatcher delivers queued storefront notifications. Rows are
// claimed with SKIP LOCKED so several instances can run; a best-effort redis
// lock keeps it to one runner when redis is available.
type NotificationDispatcher struct {
	DB          *gorm.DB
	Logger      *logrus.Logger
	Client      *http.Client
	Storefront  config.StorefrontConfig
	WorkerID    string
	BatchSize   int
	Interval    time.Duration
	MaxAttempts int
}

func NewNotificationDispatcher(db *gorm.DB, logger *logrus.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		DB:          db,
		Logger:      logger,
		Client:      config.GetStorefrontHTTPClient(),
		Storefront:  config.GetStorefrontConfig(),
		WorkerID:    "dispatcher-" + time.Now().Format("20060102-150405.000"),
		BatchSize:   50,
		Interval:    2 * time.Second,
		MaxAttempts: 8,
	}
}

func (d *NotificationDispatcher) Run(ctx context.Context) {
	if d == nil || d.DB == nil {
		return
	}
	if !config.NotificationsEnabled() {
		d.Logger.Info("storefront notifications disabled, dispatcher not running")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.Interval):
		}
	}
}

func (d *NotificationDispatcher) dispatchOnce(ctx context.Context) {
	lock := d.tryRedisLock(ctx)
	if lock != nil {
		defer func() { _ = lock.Release(ctx) }()
	}

	var claimed []models.NotificationRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("status IN ?", []models.NotificationStatus{models.NotificationStatusPending, models.NotificationStatusFailed}).
			Where("next_run_at <= ?", time.Now()).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]int, 0, len(claimed))
		for _, rec := range claimed {
			ids = append(ids, rec.ID)
		}
		return tx.Model(&models.NotificationRecord{}).
			Where("id IN ?", ids).
			Update("status", models.NotificationStatusProcessing).Error
	})
	if err != nil {
		d.Logger.WithFields(logrus.Fields{"worker": d.WorkerID}).Error("notification claim failed: " + err.Error())
		return
	}

	for _, rec := range claimed {
		if err := d.send(ctx, &rec); err != nil {
			d.markFailed(ctx, &rec, err)
			continue
		}
		_ = d.DB.WithContext(ctx).Model(&models.NotificationRecord{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"status":     models.NotificationStatusSent,
				"last_error": nil,
			}).Error
		d.Logger.WithFields(logrus.Fields{
			"worker":      d.WorkerID,
			"kind":        rec.Kind,
			"external_id": rec.ExternalId,
		}).Info("storefront notification sent")
	}
}

// send posts {"ID": <external id>, "<kind>": <value>} with basic auth. Ship
// and cancel notifications carry no value and send the flag instead.
func (d *NotificationDispatcher) send(ctx context.Context, rec *models.NotificationRecord) error {
	payload := map[string]interface{}{"ID": rec.ExternalId}
	if rec.Value != nil {
		payload[string(rec.Kind)] = *rec.Value
	} else {
		payload[string(rec.Kind)] = true
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Storefront.UpdateURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(d.Storefront.Username, d.Storefront.Password)

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("storefront returned %d", resp.StatusCode)
	}
	return nil
}

// markFailed bumps the attempt counter with exponential backoff, moving the
// row to DEAD once attempts are exhausted.
func (d *NotificationDispatcher) markFailed(ctx context.Context, rec *models.NotificationRecord, cause error) {
	attempts := rec.Attempts + 1
	status := models.NotificationStatusFailed
	if attempts >= d.MaxAttempts {
		status = models.NotificationStatusDead
	}
	backoff := time.Duration(1<<uint(min(attempts, 10))) * time.Second
	errMsg := cause.Error()
	if len(errMsg) > 400 {
		errMsg = errMsg[:400]
	}
	_ = d.DB.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"status":      status,
			"attempts":    attempts,
			"last_error":  errMsg,
			"next_run_at": time.Now().Add(backoff),
		}).Error
	d.Logger.WithFields(logrus.Fields{
		"worker":      d.WorkerID,
		"kind":        rec.Kind,
		"external_id": rec.ExternalId,
		"attempts":    attempts,
		"status":      status,
	}).Error("storefront notification failed: " + cause.Error())
}

func (d *NotificationDispatcher) tryRedisLock(ctx context.Context) *redislock.Lock {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil
	}
	lock, err := locker.Obtain(ctx, "notification-dispatcher", d.Interval+30*time.Second, nil)
	if err != nil {
		// another runner holds it, or redis is down; SKIP LOCKED still
		// keeps the claim safe
		return nil
	}
	return lock
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
