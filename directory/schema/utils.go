package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrMealNotFound       = errors.New("meal not found")
	ErrDbAccessFailed     = errors.New("db access failed")
)

func GetUser(userId int64, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetRestaurant(restaurantId uuid.UUID, db *gorm.DB, loadManagers bool) (Restaurant, error) {
	var restaurant Restaurant

	var result *gorm.DB = db
	if loadManagers {
		result = result.Preload("Managers")
	}
	result = result.First(&restaurant, "id = ?", restaurantId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return restaurant, ErrRestaurantNotFound
		}
		slog.Error("sql error in get restaurant", "restaurant_id", restaurantId, "error", result.Error)
		return restaurant, ErrDbAccessFailed
	}

	return restaurant, nil
}

func GetSubmission(submissionId uuid.UUID, db *gorm.DB) (RestaurantSubmission, error) {
	var submission RestaurantSubmission

	result := db.First(&submission, "id = ?", submissionId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return submission, ErrSubmissionNotFound
		}
		slog.Error("sql error in get submission", "submission_id", submissionId, "error", result.Error)
		return submission, ErrDbAccessFailed
	}

	return submission, nil
}

func GetMeal(mealId uuid.UUID, db *gorm.DB, loadRestaurant bool) (Meal, error) {
	var meal Meal

	var result *gorm.DB = db
	if loadRestaurant {
		result = result.Preload("Restaurant")
	}
	result = result.First(&meal, "id = ?", mealId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return meal, ErrMealNotFound
		}
		slog.Error("sql error in get meal", "meal_id", mealId, "error", result.Error)
		return meal, ErrDbAccessFailed
	}

	return meal, nil
}

// GetOperatingHours returns the hours rows owned by either a restaurant or a
// submission; the column queried is explicit at the call site.
func GetOperatingHoursForRestaurant(restaurantId uuid.UUID, db *gorm.DB) ([]OperatingHours, error) {
	var hours []OperatingHours
	result := db.Find(&hours, "restaurant_id = ?", restaurantId)
	if result.Error != nil {
		slog.Error("sql error listing restaurant operating hours", "restaurant_id", restaurantId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	return hours, nil
}

func GetOperatingHoursForSubmission(submissionId uuid.UUID, db *gorm.DB) ([]OperatingHours, error) {
	var hours []OperatingHours
	result := db.Find(&hours, "submission_id = ?", submissionId)
	if result.Error != nil {
		slog.Error("sql error listing submission operating hours", "submission_id", submissionId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	return hours, nil
}

func IsRestaurantManager(restaurantId uuid.UUID, userId int64, db *gorm.DB) (bool, error) {
	var count int64
	result := db.Table("restaurant_managers").
		Where("restaurant_id = ? AND user_id = ?", restaurantId, userId).
		Count(&count)
	if result.Error != nil {
		slog.Error("sql error checking restaurant manager", "restaurant_id", restaurantId, "user_id", userId, "error", result.Error)
		return false, ErrDbAccessFailed
	}
	return count > 0, nil
}
