package hours

import (
	"errors"
	"fmt"
	"time"

	"meal_directory/directory/schema"

	"github.com/google/uuid"
)

// TimeRange is a pair of "HH:MM" time-of-day strings for one slot.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type ValidationError struct {
	Slot   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %v: %v", e.Slot, e.Reason)
}

const timeLayout = "15:04"

var (
	dayStart, _ = time.Parse(timeLayout, "00:00")
	dayEnd, _   = time.Parse(timeLayout, "23:59")
)

func parseTimeOfDay(slot, value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, &ValidationError{Slot: slot, Reason: fmt.Sprintf("'%v' is not a valid HH:MM time", value)}
	}
	return t, nil
}

// Validate checks a single slot's range. The bound checks are always satisfied
// by a successful parse, but are kept as a guard against changes upstream.
func Validate(slot string, r TimeRange) error {
	start, err := parseTimeOfDay(slot, r.Start)
	if err != nil {
		return err
	}
	end, err := parseTimeOfDay(slot, r.End)
	if err != nil {
		return err
	}

	if !start.Before(end) {
		return &ValidationError{Slot: slot, Reason: "start time must be before end time"}
	}
	if start.Before(dayStart) || end.After(dayEnd) {
		return &ValidationError{Slot: slot, Reason: "times must fall within a single day"}
	}

	return nil
}

// Build validates every present slot and produces the operating-hours rows for
// one parent. Validation is fail-fast, in slot order, and has no storage side
// effects; the caller persists the returned rows in its own transaction.
// Exactly one of restaurantId/submissionId must be given.
func Build(slots map[string]*TimeRange, restaurantId, submissionId *uuid.UUID) ([]schema.OperatingHours, error) {
	if (restaurantId == nil) == (submissionId == nil) {
		return nil, errors.New("operating hours must be bound to exactly one of a restaurant or a submission")
	}

	for slot := range slots {
		if !validSlot(slot) {
			return nil, &ValidationError{Slot: slot, Reason: "unknown slot"}
		}
	}

	rows := make([]schema.OperatingHours, 0, len(slots))
	for _, slot := range schema.HourSlots {
		r, ok := slots[slot]
		if !ok || r == nil {
			continue
		}

		if err := Validate(slot, *r); err != nil {
			return nil, err
		}

		rows = append(rows, schema.OperatingHours{
			Id:           uuid.New(),
			Type:         slot,
			StartTime:    r.Start,
			EndTime:      r.End,
			RestaurantId: restaurantId,
			SubmissionId: submissionId,
		})
	}

	return rows, nil
}

func validSlot(slot string) bool {
	for _, s := range schema.HourSlots {
		if s == slot {
			return true
		}
	}
	return false
}
