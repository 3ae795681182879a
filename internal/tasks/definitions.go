package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/services"
)

// Task names known to the worker
const (
	TaskOrderExpirySweep = "order_expiry_sweep"
	TaskVideoTranscode   = "video_transcode"
)

// sweepRule runs the expiry sweep every 10 minutes
const sweepRule = "FREQ=MINUTELY;INTERVAL=10"

// DefineTasks registers all task handlers with the global registry
func DefineTasks() {
	RegisterHandler(TaskOrderExpirySweep, runOrderExpirySweep)
	RegisterHandler(TaskVideoTranscode, runVideoTranscode)
}

// EnsureSweepTask makes sure the recurring order expiry sweep exists.
// Called once at worker startup; FirstOrCreate keeps it singleton.
func EnsureSweepTask(db *gorm.DB) error {
	rule := sweepRule
	task := models.ScheduledTask{
		TaskName:          TaskOrderExpirySweep,
		Due:               time.Now(),
		RecurringInterval: &rule,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          models.ScheduledTaskTypeRecurring,
		MaxAttempt:        1,
	}
	return db.Where("task_name = ? AND deleted_at IS NULL", TaskOrderExpirySweep).
		FirstOrCreate(&task).Error
}

// runOrderExpirySweep cancels pending orders whose expiry has passed. A
// payment callback that arrives after cancellation is recorded but no longer
// transitions the order.
func runOrderExpirySweep(ctx context.Context, db *gorm.DB, args map[string]interface{}) (map[string]interface{}, error) {
	ledger := services.NewPaymentService(db, nil, decimal.Zero)
	cancelled, err := ledger.CancelExpiredOrders(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	if cancelled > 0 {
		log.Printf("Expiry sweep cancelled %d pending orders", cancelled)
	}
	return map[string]interface{}{"cancelled": cancelled}, nil
}

// runVideoTranscode drives one video through the opaque transcoding job and
// records the ready/failed outcome.
func runVideoTranscode(ctx context.Context, db *gorm.DB, args map[string]interface{}) (map[string]interface{}, error) {
	videoID, ok := argUint(args, "video_id")
	if !ok {
		return nil, fmt.Errorf("video_id argument missing or invalid")
	}

	var video models.Video
	if err := db.First(&video, videoID).Error; err != nil {
		return nil, fmt.Errorf("video %d not found: %w", videoID, err)
	}

	if err := db.Model(&video).Update("status", models.VideoStatusProcessing).Error; err != nil {
		return nil, err
	}

	result, err := DefaultTranscoder.Transcode(ctx, &video)
	if err != nil {
		updateErr := db.Model(&video).Updates(map[string]interface{}{
			"status":      models.VideoStatusFailed,
			"fail_reason": err.Error(),
		}).Error
		if updateErr != nil {
			return nil, updateErr
		}
		return map[string]interface{}{"video_id": videoID, "status": "failed"}, nil
	}

	err = db.Model(&video).Updates(map[string]interface{}{
		"status":        models.VideoStatusReady,
		"duration_sec":  result.DurationSec,
		"playlist_path": result.PlaylistPath,
		"thumbnail_url": result.ThumbnailURL,
	}).Error
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"video_id": videoID, "status": "ready"}, nil
}
