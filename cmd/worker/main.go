package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/services"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/tasks"
)

const pollInterval = time.Minute

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	tasks.DefineTasks()
	if err := tasks.EnsureSweepTask(db); err != nil {
		log.Fatalf("Failed to ensure expiry sweep task: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	log.Println("Worker started")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// one run at startup so a restart doesn't wait a full tick
	processScheduledTasks(ctx, db)

	for {
		select {
		case <-ticker.C:
			processScheduledTasks(ctx, db)
		case <-ctx.Done():
			return
		}
	}
}

func processScheduledTasks(ctx context.Context, db *gorm.DB) {
	var pendingTasks []models.ScheduledTask
	now := time.Now()
	if err := db.Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).Find(&pendingTasks).Error; err != nil {
		log.Printf("Error fetching pending tasks: %v", err)
		return
	}

	if len(pendingTasks) == 0 {
		return
	}
	log.Printf("Found %d pending tasks", len(pendingTasks))

	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			return
		}
		executeTask(ctx, db, task)
	}
}

func executeTask(ctx context.Context, db *gorm.DB, task models.ScheduledTask) {
	log.Printf("Processing task: %s (ID: %d)", task.TaskName, task.ID)

	handler, found := tasks.GetHandler(task.TaskName)
	if !found {
		log.Printf("No handler registered for task %s, marking as failure", task.TaskName)
		now := time.Now()
		db.Model(&task).Updates(map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
		recordHistory(db, task, now, 0, 1, "handler_not_found",
			map[string]interface{}{"error": "handler not found"})
		return
	}

	maxAttempts := task.MaxAttempt
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		result  map[string]interface{}
		err     error
		startAt time.Time
		runtime time.Duration
		attempt int
	)
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		startAt = time.Now()
		result, err = handler(ctx, db, task.Arguments)
		runtime = time.Since(startAt)

		status := "success"
		resultData := result
		if err != nil {
			status = "failure"
			resultData = map[string]interface{}{"error": err.Error()}
			log.Printf("Task %s attempt %d failed: %v", task.TaskName, attempt, err)
		}
		recordHistory(db, task, startAt, runtime, attempt, status, resultData)

		if err == nil || ctx.Err() != nil {
			break
		}
	}

	updates := map[string]interface{}{"last_run": &startAt}
	switch {
	case err != nil:
		updates["status"] = models.ScheduledTaskStatusFailure
	case task.TaskType == models.ScheduledTaskTypeRecurring:
		nextDue := task.NextDue()
		if nextDue.After(task.Due) {
			updates["status"] = models.ScheduledTaskStatusActive
			updates["due"] = nextDue
		} else {
			// no future occurrence, stop instead of re-running immediately
			updates["status"] = models.ScheduledTaskStatusDone
		}
	default:
		updates["status"] = models.ScheduledTaskStatusDone
	}

	if updateErr := db.Model(&task).Updates(updates).Error; updateErr != nil {
		log.Printf("Failed to update task %d: %v", task.ID, updateErr)
	}
}

func recordHistory(db *gorm.DB, task models.ScheduledTask, runAt time.Time, runtime time.Duration, attempt int, status string, result map[string]interface{}) {
	history := models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           runAt,
		RuntimeMs:       int(runtime.Milliseconds()),
		Status:          status,
		AttemptNumber:   attempt,
		Arguments:       task.Arguments,
		Result:          result,
	}
	if err := db.Create(&history).Error; err != nil {
		log.Printf("Failed to record task history for %s: %v", task.TaskName, err)
	}
}
