package jobs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"meal_directory/directory/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func syncTestDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&schema.User{}, &schema.Restaurant{}, &schema.RestaurantSubmission{},
		&schema.OperatingHours{}, &schema.Meal{},
	)
	require.NoError(t, err)

	return db
}

func sheetServer(t *testing.T, rows []sheetRow) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestMealSync(t *testing.T) {
	db := syncTestDb(t)

	owner := schema.User{Id: 1}
	require.NoError(t, db.Create(&owner).Error)

	cafeteria := schema.Restaurant{
		Id: uuid.New(), Name: "Student Cafeteria", Owner: owner.Id,
		EstablishmentType: schema.StudentEatery, IsCampus: true,
	}
	require.NoError(t, db.Create(&cafeteria).Error)

	server := sheetServer(t, []sheetRow{
		{Restaurant: "Student Cafeteria", MealType: schema.Lunch, Menu: "rice\nsoup\n\nkimchi\n"},
		{Restaurant: "Student Cafeteria", MealType: "midnight snack", Menu: "ramen"},
		{Restaurant: "Faculty Club", MealType: schema.Lunch, Menu: "steak"},
		{Restaurant: "Student Cafeteria", MealType: schema.Dinner, Menu: ""},
	})

	job := NewMealSyncJob(db, server.URL, []string{"Student Cafeteria"})
	require.NoError(t, job.syncOnce())

	var meals []schema.Meal
	require.NoError(t, db.Find(&meals).Error)

	// Only the valid row for a tracked restaurant lands; the untracked
	// restaurant, the bad meal type, and the empty menu are all skipped.
	require.Len(t, meals, 1)
	assert.Equal(t, cafeteria.Id, meals[0].RestaurantId)
	assert.Equal(t, schema.Lunch, meals[0].MealType)
	assert.Equal(t, schema.MenuItems{"rice", "soup", "kimchi"}, meals[0].Menu)

	// A rerun the same day updates in place rather than duplicating.
	server2 := sheetServer(t, []sheetRow{
		{Restaurant: "Student Cafeteria", MealType: schema.Lunch, Menu: "bibimbap"},
	})
	job2 := NewMealSyncJob(db, server2.URL, []string{"Student Cafeteria"})
	require.NoError(t, job2.syncOnce())

	require.NoError(t, db.Find(&meals).Error)
	require.Len(t, meals, 1)
	assert.Equal(t, schema.MenuItems{"bibimbap"}, meals[0].Menu)
}

func TestParseMenu(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseMenu("a\nb"))
	assert.Equal(t, []string{"a"}, parseMenu("  a  \n\n"))
	assert.Empty(t, parseMenu("\n \n"))
}
