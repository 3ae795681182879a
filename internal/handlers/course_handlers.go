package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
)

// CourseHandler serves the course catalog. Listing/search beyond a plain
// page is out of scope here.
type CourseHandler struct {
	db *gorm.DB
}

func NewCourseHandler(db *gorm.DB) *CourseHandler {
	return &CourseHandler{db: db}
}

// ListCourses returns published courses, newest first
func (h *CourseHandler) ListCourses(c echo.Context) error {
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	var courses []models.Course
	err := h.db.Where("status = ?", models.CourseStatusPublished).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&courses).Error
	if err != nil {
		return err
	}

	resp := make([]CourseResponse, 0, len(courses))
	for _, course := range courses {
		resp = append(resp, CourseResponse{
			ID:          course.ID,
			Title:       course.Title,
			Description: course.Description,
			Price:       course.Price,
			Status:      string(course.Status),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// GetCourse returns one published course
func (h *CourseHandler) GetCourse(c echo.Context) error {
	courseID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var course models.Course
	err = h.db.Where("id = ? AND status = ?", courseID, models.CourseStatusPublished).First(&course).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "course not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, CourseResponse{
		ID:          course.ID,
		Title:       course.Title,
		Description: course.Description,
		Price:       course.Price,
		Status:      string(course.Status),
	})
}
