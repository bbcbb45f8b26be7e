package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"meal_directory/directory/schema"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MealSyncJob periodically pulls the cafeteria meal sheet and registers the
// day's meals for the campus cafeterias listed in restaurantNames. Rows whose
// restaurant is missing from the directory are skipped, not treated as
// errors.
type MealSyncJob struct {
	db              *gorm.DB
	client          *resty.Client
	restaurantNames []string
	stop            chan bool
}

func NewMealSyncJob(db *gorm.DB, sheetUrl string, restaurantNames []string) *MealSyncJob {
	client := resty.New().
		SetBaseURL(sheetUrl).
		SetTimeout(30 * time.Second).
		SetRetryCount(2)

	return &MealSyncJob{
		db:              db,
		client:          client,
		restaurantNames: restaurantNames,
		stop:            make(chan bool, 1),
	}
}

func (j *MealSyncJob) Run(interval time.Duration) {
	slog.Info("meal sync: starting", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.syncOnce(); err != nil {
				slog.Error("meal sync: sync failed", "error", err)
			}
		case <-j.stop:
			slog.Info("meal sync: process stopped")
			return
		}
	}
}

func (j *MealSyncJob) Stop() {
	close(j.stop)
}

// sheetRow is one cell of the published sheet: a restaurant name, the meal
// slot, and a newline separated menu.
type sheetRow struct {
	Restaurant string `json:"restaurant"`
	MealType   string `json:"meal_type"`
	Menu       string `json:"menu"`
}

func (j *MealSyncJob) syncOnce() error {
	var rows []sheetRow
	res, err := j.client.R().SetResult(&rows).Get("")
	if err != nil {
		return fmt.Errorf("error fetching meal sheet: %w", err)
	}
	if res.StatusCode() != 200 {
		return fmt.Errorf("meal sheet returned status %d", res.StatusCode())
	}

	tracked := make(map[string]bool, len(j.restaurantNames))
	for _, name := range j.restaurantNames {
		tracked[name] = true
	}

	synced := 0
	for _, row := range rows {
		if !tracked[row.Restaurant] {
			continue
		}
		if err := schema.CheckValidMealType(row.MealType); err != nil {
			slog.Error("meal sync: skipping row with bad meal type", "restaurant", row.Restaurant, "meal_type", row.MealType)
			continue
		}

		menu := parseMenu(row.Menu)
		if len(menu) == 0 {
			continue
		}

		if err := j.registerMeal(row.Restaurant, row.MealType, menu); err != nil {
			slog.Error("meal sync: error registering meal", "restaurant", row.Restaurant, "meal_type", row.MealType, "error", err)
			continue
		}
		synced++
	}

	slog.Info("meal sync: sync complete", "rows", len(rows), "synced", synced)
	return nil
}

func parseMenu(menu string) []string {
	items := make([]string, 0)
	for _, line := range strings.Split(menu, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

// registerMeal updates today's meal for the slot if one exists, otherwise it
// creates a new row. The sheet republishes the full day so reruns must not
// duplicate.
func (j *MealSyncJob) registerMeal(restaurantName, mealType string, menu []string) error {
	return j.db.Transaction(func(txn *gorm.DB) error {
		var restaurant schema.Restaurant
		result := txn.Where("name = ?", restaurantName).First(&restaurant)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return result.Error
		}

		now := time.Now().UTC()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

		var existing schema.Meal
		result = txn.Where(
			"restaurant_id = ? AND meal_type = ? AND registered_at >= ?",
			restaurant.Id, mealType, dayStart,
		).First(&existing)

		if result.Error == nil {
			return txn.Model(&schema.Meal{}).Where("id = ?", existing.Id).Updates(map[string]interface{}{
				"menu":       schema.MenuItems(menu),
				"updated_at": now,
			}).Error
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}

		meal := schema.Meal{
			Id:           uuid.New(),
			RestaurantId: restaurant.Id,
			MealType:     mealType,
			Menu:         menu,
			RegisteredAt: now,
			UpdatedAt:    now,
		}
		return txn.Create(&meal).Error
	})
}
