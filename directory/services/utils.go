package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"meal_directory/directory/auth"
	"meal_directory/directory/hours"
	"meal_directory/directory/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrSubmissionProcessed is the invalid-state-transition signal: the
// submission exists but is no longer pending.
var ErrSubmissionProcessed = errors.New("submission has already been processed")

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func checkUserExists(txn *gorm.DB, userId int64) error {
	if _, err := schema.GetUser(userId, txn); err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func getRestaurantCoded(txn *gorm.DB, restaurantId uuid.UUID, loadManagers bool) (schema.Restaurant, error) {
	restaurant, err := schema.GetRestaurant(restaurantId, txn, loadManagers)
	if err != nil {
		if errors.Is(err, schema.ErrRestaurantNotFound) {
			return restaurant, CodedError(err, http.StatusNotFound)
		}
		return restaurant, CodedError(err, http.StatusInternalServerError)
	}
	return restaurant, nil
}

func getSubmissionCoded(txn *gorm.DB, submissionId uuid.UUID) (schema.RestaurantSubmission, error) {
	submission, err := schema.GetSubmission(submissionId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrSubmissionNotFound) {
			return submission, CodedError(err, http.StatusNotFound)
		}
		return submission, CodedError(err, http.StatusInternalServerError)
	}
	return submission, nil
}

// checkRestaurantPermission resolves canActOnRestaurant and converts the
// outcome into the coded 403/500 the handlers report. Not-found is checked by
// the caller first so existence is never hidden behind a denial.
func checkRestaurantPermission(ctx context.Context, user schema.User, restaurant schema.Restaurant, db *gorm.DB, oracle auth.IdentityOracle) error {
	allowed, err := auth.CanActOnRestaurant(ctx, user, restaurant, db, oracle)
	if err != nil {
		slog.Error("restaurant permission check failed", "user_id", user.Id, "restaurant_id", restaurant.Id, "error", err)
		return CodedError(err, http.StatusInternalServerError)
	}
	if !allowed {
		return CodedError(auth.ErrPermissionDenied, http.StatusForbidden)
	}
	return nil
}

// Location is the wire form of the optional restaurant location fields.
type Location struct {
	IsCampus  bool              `json:"is_campus"`
	Building  *string           `json:"building,omitempty"`
	MapLinks  map[string]string `json:"map_links,omitempty"`
	Latitude  *float64          `json:"latitude,omitempty"`
	Longitude *float64          `json:"longitude,omitempty"`
}

func buildMapLinks(naverLink, kakaoLink *string) map[string]string {
	links := map[string]string{}
	if naverLink != nil {
		links["naver"] = *naverLink
	}
	if kakaoLink != nil {
		links["kakao"] = *kakaoLink
	}
	if len(links) == 0 {
		return nil
	}
	return links
}

func (l *Location) naverLink() *string {
	if l.MapLinks == nil {
		return nil
	}
	if link, ok := l.MapLinks["naver"]; ok {
		return &link
	}
	return nil
}

func (l *Location) kakaoLink() *string {
	if l.MapLinks == nil {
		return nil
	}
	if link, ok := l.MapLinks["kakao"]; ok {
		return &link
	}
	return nil
}

func hoursByType(rows []schema.OperatingHours) map[string]*hours.TimeRange {
	byType := make(map[string]*hours.TimeRange, len(rows))
	for _, row := range rows {
		byType[row.Type] = &hours.TimeRange{Start: row.StartTime, End: row.EndTime}
	}
	return byType
}
