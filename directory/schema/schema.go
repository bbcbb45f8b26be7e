package schema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User ids are issued by the campus user service, never generated locally.
type User struct {
	Id int64 `gorm:"primaryKey;autoIncrement:false"`

	MealAdmin bool `gorm:"not null;default:false"`

	// Deleting a user hard deletes the remnants of their soft deleted
	// restaurants along with them.
	OwnedRestaurants   []Restaurant           `gorm:"foreignKey:Owner;constraint:OnDelete:CASCADE"`
	ManagedRestaurants []Restaurant           `gorm:"many2many:restaurant_managers;constraint:OnDelete:CASCADE"`
	Submissions        []RestaurantSubmission `gorm:"foreignKey:Submitter;constraint:OnDelete:CASCADE"`
}

const (
	StudentEatery  = "student"
	VendorEatery   = "vendor"
	ExternalEatery = "external"
)

func CheckValidEstablishmentType(t string) error {
	switch t {
	case StudentEatery, VendorEatery, ExternalEatery:
		return nil
	default:
		return fmt.Errorf("invalid establishment type '%v', must be one of 'student', 'vendor', 'external'", t)
	}
}

type Restaurant struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"size:200;not null;index"`

	Owner     int64 `gorm:"not null;index"`
	OwnerUser *User `gorm:"foreignKey:Owner"`

	EstablishmentType string `gorm:"size:50;not null"`
	IsCampus          bool   `gorm:"not null"`

	BuildingName *string
	NaverMapLink *string
	KakaoMapLink *string
	Latitude     *float64
	Longitude    *float64

	Managers       []User           `gorm:"many2many:restaurant_managers;constraint:OnDelete:CASCADE"`
	OperatingHours []OperatingHours `gorm:"foreignKey:RestaurantId;constraint:OnDelete:CASCADE"`
	Meals          []Meal           `gorm:"foreignKey:RestaurantId;constraint:OnDelete:CASCADE"`

	// Restaurants are only ever soft deleted; list/get queries skip deleted rows.
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type RestaurantSubmission struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"size:200;not null;index"`

	Status string `gorm:"size:50;not null;index"`

	Submitter     int64 `gorm:"not null;index"`
	SubmitterUser *User `gorm:"foreignKey:Submitter"`

	SubmittedTime    time.Time
	Reviewer         *int64
	ReviewedTime     *time.Time
	RejectionMessage *string

	EstablishmentType string `gorm:"size:50;not null"`
	IsCampus          bool   `gorm:"not null"`

	BuildingName *string
	NaverMapLink *string
	KakaoMapLink *string
	Latitude     *float64
	Longitude    *float64

	OperatingHours []OperatingHours `gorm:"foreignKey:SubmissionId;constraint:OnDelete:CASCADE"`
}

const (
	OpeningTime   = "opening_time"
	BreakTime     = "break_time"
	BreakfastTime = "breakfast_time"
	BrunchTime    = "brunch_time"
	LunchTime     = "lunch_time"
	DinnerTime    = "dinner_time"
)

// HourSlots lists the six fixed operating-hours slots in presentation order.
var HourSlots = []string{OpeningTime, BreakTime, BreakfastTime, BrunchTime, LunchTime, DinnerTime}

// OperatingHours belongs to exactly one of a restaurant or a submission. The
// check constraint backs up the validation done before rows are created.
type OperatingHours struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Type      string `gorm:"size:50;not null"`
	StartTime string `gorm:"size:5;not null"`
	EndTime   string `gorm:"size:5;not null"`

	RestaurantId *uuid.UUID `gorm:"type:uuid;index;check:chk_one_parent,(restaurant_id IS NOT NULL AND submission_id IS NULL) OR (restaurant_id IS NULL AND submission_id IS NOT NULL)"`
	SubmissionId *uuid.UUID `gorm:"type:uuid;index"`
}

const (
	Breakfast = "breakfast"
	Brunch    = "brunch"
	Lunch     = "lunch"
	Dinner    = "dinner"
)

func CheckValidMealType(t string) error {
	switch t {
	case Breakfast, Brunch, Lunch, Dinner:
		return nil
	default:
		return fmt.Errorf("invalid meal type '%v', must be one of 'breakfast', 'brunch', 'lunch', 'dinner'", t)
	}
}

// MenuItems stores an ordered menu as a json array column.
type MenuItems []string

func (m MenuItems) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *MenuItems) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = nil
		return nil
	default:
		return fmt.Errorf("cannot scan menu items from %T", value)
	}
}

type Meal struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	RestaurantId uuid.UUID   `gorm:"type:uuid;not null;index"`
	Restaurant   *Restaurant `gorm:"foreignKey:RestaurantId"`

	Menu     MenuItems `gorm:"not null"`
	MealType string    `gorm:"size:50;not null;index"`

	RegisteredAt time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null;index"`
}
