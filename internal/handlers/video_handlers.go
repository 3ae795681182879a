package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/tasks"
)

// VideoHandler manages lecture videos. Transcoding itself is an opaque
// background job; this handler only enqueues it and reports status.
type VideoHandler struct {
	db *gorm.DB
}

func NewVideoHandler(db *gorm.DB) *VideoHandler {
	return &VideoHandler{db: db}
}

type createVideoRequest struct {
	CourseID uint   `json:"course_id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// CreateVideo registers an uploaded video and enqueues its transcoding task
func (h *VideoHandler) CreateVideo(c echo.Context) error {
	var req createVideoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CourseID == 0 || req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "course_id and title are required")
	}

	video := models.Video{
		CourseID:   req.CourseID,
		Title:      req.Title,
		Position:   req.Position,
		StorageKey: uuid.NewString(),
		Status:     models.VideoStatusUploaded,
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&video).Error; err != nil {
			return err
		}
		task, err := tasks.BuildScheduledTask(
			tasks.TaskVideoTranscode,
			map[string]interface{}{"video_id": video.ID},
			time.Now(),
			nil,
			models.ScheduledTaskTypeOneTime,
			3,
		)
		if err != nil {
			return err
		}
		return tx.Create(task).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, video)
}

// GetVideo reports a video's transcoding status and playback info
func (h *VideoHandler) GetVideo(c echo.Context) error {
	videoID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var video models.Video
	if err := h.db.First(&video, videoID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "video not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, video)
}
