package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
)

const courseInfoCacheTTL = 5 * time.Minute

// CourseInfo is the narrow contract the payment subsystem has with the
// course catalog: a name and a price for a course id.
type CourseInfo struct {
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
}

// CourseService resolves course info, with a short redis cache in front of
// the courses table.
type CourseService struct {
	db    *gorm.DB
	cache *RedisCache
}

// NewCourseService creates a course info resolver. cache may be nil.
func NewCourseService(db *gorm.DB, cache *RedisCache) *CourseService {
	return &CourseService{db: db, cache: cache}
}

// GetCourseInfo returns the name and price of a published course
func (s *CourseService) GetCourseInfo(ctx context.Context, courseID uint) (*CourseInfo, error) {
	fetch := func() (CourseInfo, error) {
		var course models.Course
		err := s.db.WithContext(ctx).
			Where("id = ? AND status = ?", courseID, models.CourseStatusPublished).
			First(&course).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return CourseInfo{}, fmt.Errorf("%w: course %d", ErrNotFound, courseID)
			}
			return CourseInfo{}, err
		}
		return CourseInfo{Title: course.Title, Price: course.Price}, nil
	}

	if s.cache == nil {
		info, err := fetch()
		if err != nil {
			return nil, err
		}
		return &info, nil
	}

	info, err := GetOrSet(s.cache, ctx, fmt.Sprintf("course:info:%d", courseID), courseInfoCacheTTL, fetch)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
