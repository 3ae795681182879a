// Command schedule_task enqueues a scheduled task from the command line,
// e.g. a one-off video transcode or a recurring sweep with a custom RRULE.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/services"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/tasks"
)

func main() {
	taskName := flag.String("task_name", "", "Name of the task (mandatory)")
	argsStr := flag.String("arguments", "{}", "JSON arguments for the task")
	dueStr := flag.String("due", "", "Due date (mandatory, format: 2006-01-02 15:04)")
	taskType := flag.String("task_type", "onetime", "Task type: onetime or recurring")
	recurring := flag.String("recurring", "", "RRULE recurrence for recurring tasks")
	maxAttempt := flag.Int("max_attempt", 3, "Max attempts")

	flag.Parse()

	if *taskName == "" || *dueStr == "" {
		fmt.Println("Usage: schedule_task -task_name <name> -due <YYYY-MM-DD HH:MM> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := services.InitDB(dsn)
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
		log.Fatalf("Invalid JSON arguments: %v", err)
	}

	due, err := time.ParseInLocation("2006-01-02 15:04", *dueStr, time.Local)
	if err != nil {
		log.Fatalf("Invalid due date %q: %v", *dueStr, err)
	}

	var rule *string
	if *recurring != "" {
		rule = recurring
	}

	task, err := tasks.BuildScheduledTask(*taskName, args, due, rule, models.ScheduledTaskType(*taskType), *maxAttempt)
	if err != nil {
		log.Fatalf("Failed to build task: %v", err)
	}

	if err := db.Create(task).Error; err != nil {
		log.Fatalf("Failed to create task: %v", err)
	}

	log.Printf("Scheduled task %q (ID: %d) due at %s", task.TaskName, task.ID, task.Due.Format(time.RFC3339))
}
