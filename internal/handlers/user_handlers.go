package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/middleware"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
)

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// Me returns the authenticated user's profile
func (h *UserHandler) Me(c echo.Context) error {
	var user models.User
	if err := h.db.First(&user, middleware.UserID(c)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// ListEnrollments returns the authenticated user's course enrollments
func (h *UserHandler) ListEnrollments(c echo.Context) error {
	var enrollments []models.Enrollment
	err := h.db.Where("user_id = ?", middleware.UserID(c)).
		Order("created_at DESC").
		Find(&enrollments).Error
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, enrollments)
}
