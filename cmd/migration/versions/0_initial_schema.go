package versions

import (
	"log"

	"meal_directory/directory/schema"

	"gorm.io/gorm"
)

// Migration_0_initial_schema creates the directory tables from scratch. Later
// migrations mutate rather than recreate, so this one must stay frozen to the
// shape the service first shipped with.
func Migration_0_initial_schema(txn *gorm.DB) error {
	log.Println("creating initial directory schema")

	err := txn.Migrator().AutoMigrate(
		&schema.User{}, &schema.Restaurant{}, &schema.RestaurantSubmission{},
		&schema.OperatingHours{}, &schema.Meal{},
	)
	if err != nil {
		return err
	}

	log.Println("initial directory schema complete")

	return nil
}

func Rollback_0_initial_schema(txn *gorm.DB) error {
	return txn.Migrator().DropTable(
		"restaurant_managers", "operating_hours", "meals",
		"restaurant_submissions", "restaurants", "users",
	)
}
