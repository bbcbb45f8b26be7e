package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"meal_directory/directory/auth"
	"meal_directory/directory/hours"
	"meal_directory/directory/schema"
	"meal_directory/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RestaurantService struct {
	db     *gorm.DB
	oracle auth.IdentityOracle
}

func (s *RestaurantService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.List)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(s.db, s.oracle))

		r.Post("/requests", s.Submit)
		r.Get("/requests", s.ListSubmissions)
		r.Get("/requests/{request_id}", s.GetSubmission)
		r.Delete("/requests/{request_id}", s.DeleteSubmission)

		r.Group(func(r chi.Router) {
			r.Use(auth.AdminOnly(s.oracle))

			r.Post("/requests/{request_id}/approval", s.Approve)
			r.Post("/requests/{request_id}/rejection", s.Reject)
		})

		r.Delete("/{restaurant_id}", s.DeleteRestaurant)

		r.Post("/{restaurant_id}/managers/{user_id}", s.AddManager)
		r.Delete("/{restaurant_id}/managers/{user_id}", s.RemoveManager)
	})

	r.Get("/{restaurant_id}", s.GetRestaurant)

	return r
}

type submitRequest struct {
	Name              string    `json:"name"`
	EstablishmentType string    `json:"establishment_type"`
	Location          *Location `json:"location"`

	OpeningTime   *hours.TimeRange `json:"opening_time"`
	BreakTime     *hours.TimeRange `json:"break_time"`
	BreakfastTime *hours.TimeRange `json:"breakfast_time"`
	BrunchTime    *hours.TimeRange `json:"brunch_time"`
	LunchTime     *hours.TimeRange `json:"lunch_time"`
	DinnerTime    *hours.TimeRange `json:"dinner_time"`
}

func (r *submitRequest) slots() map[string]*hours.TimeRange {
	return map[string]*hours.TimeRange{
		schema.OpeningTime:   r.OpeningTime,
		schema.BreakTime:     r.BreakTime,
		schema.BreakfastTime: r.BreakfastTime,
		schema.BrunchTime:    r.BrunchTime,
		schema.LunchTime:     r.LunchTime,
		schema.DinnerTime:    r.DinnerTime,
	}
}

type submitResponse struct {
	RequestId uuid.UUID `json:"request_id"`
}

func (s *RestaurantService) Submit(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params submitRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "restaurant name must be specified", http.StatusBadRequest)
		return
	}
	if params.Location == nil || params.OpeningTime == nil {
		http.Error(w, "location and opening_time fields are required", http.StatusBadRequest)
		return
	}
	if err := schema.CheckValidEstablishmentType(params.EstablishmentType); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	submission := schema.RestaurantSubmission{
		Id:                uuid.New(),
		Name:              params.Name,
		Status:            schema.StatusPending,
		Submitter:         user.Id,
		SubmittedTime:     time.Now().UTC(),
		EstablishmentType: params.EstablishmentType,
		IsCampus:          params.Location.IsCampus,
		BuildingName:      params.Location.Building,
		NaverMapLink:      params.Location.naverLink(),
		KakaoMapLink:      params.Location.kakaoLink(),
		Latitude:          params.Location.Latitude,
		Longitude:         params.Location.Longitude,
	}

	hourRows, err := hours.Build(params.slots(), nil, &submission.Id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&submission); result.Error != nil {
			slog.Error("sql error creating submission", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Create(&hourRows); result.Error != nil {
			slog.Error("sql error creating submission operating hours", "submission_id", submission.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating submission: %v", err), GetResponseCode(err))
		return
	}

	submissionsMetric.Inc()
	slog.Info("submission created", "submission_id", submission.Id, "submitter", user.Id)

	utils.WriteJsonResponse(w, submitResponse{RequestId: submission.Id})
}

type SubmissionInfo struct {
	Id     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Status string    `json:"status"`

	Submitter        int64      `json:"submitter"`
	SubmittedTime    time.Time  `json:"submitted_time"`
	Reviewer         *int64     `json:"reviewer,omitempty"`
	ReviewedTime     *time.Time `json:"reviewed_time,omitempty"`
	RejectionMessage *string    `json:"rejection_message,omitempty"`

	EstablishmentType string   `json:"establishment_type"`
	Location          Location `json:"location"`

	OpeningTime   *hours.TimeRange `json:"opening_time,omitempty"`
	BreakTime     *hours.TimeRange `json:"break_time,omitempty"`
	BreakfastTime *hours.TimeRange `json:"breakfast_time,omitempty"`
	BrunchTime    *hours.TimeRange `json:"brunch_time,omitempty"`
	LunchTime     *hours.TimeRange `json:"lunch_time,omitempty"`
	DinnerTime    *hours.TimeRange `json:"dinner_time,omitempty"`
}

func convertToSubmissionInfo(submission schema.RestaurantSubmission, hourRows []schema.OperatingHours) SubmissionInfo {
	byType := hoursByType(hourRows)
	return SubmissionInfo{
		Id:               submission.Id,
		Name:             submission.Name,
		Status:           submission.Status,
		Submitter:        submission.Submitter,
		SubmittedTime:    submission.SubmittedTime,
		Reviewer:         submission.Reviewer,
		ReviewedTime:     submission.ReviewedTime,
		RejectionMessage: submission.RejectionMessage,

		EstablishmentType: submission.EstablishmentType,
		Location: Location{
			IsCampus:  submission.IsCampus,
			Building:  submission.BuildingName,
			MapLinks:  buildMapLinks(submission.NaverMapLink, submission.KakaoMapLink),
			Latitude:  submission.Latitude,
			Longitude: submission.Longitude,
		},

		OpeningTime:   byType[schema.OpeningTime],
		BreakTime:     byType[schema.BreakTime],
		BreakfastTime: byType[schema.BreakfastTime],
		BrunchTime:    byType[schema.BrunchTime],
		LunchTime:     byType[schema.LunchTime],
		DinnerTime:    byType[schema.DinnerTime],
	}
}

func (s *RestaurantService) GetSubmission(w http.ResponseWriter, r *http.Request) {
	requestId, err := utils.URLParamUUID(r, "request_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	submission, err := getSubmissionCoded(s.db, requestId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	allowed, err := auth.CanActOnSubmission(r.Context(), user, submission, auth.ViewSubmission, s.oracle)
	if err != nil {
		slog.Error("submission view permission check failed", "user_id", user.Id, "submission_id", requestId, "error", err)
		http.Error(w, auth.ErrIdentityFailure.Error(), http.StatusInternalServerError)
		return
	}
	if !allowed {
		http.Error(w, auth.ErrPermissionDenied.Error(), http.StatusForbidden)
		return
	}

	hourRows, err := schema.GetOperatingHoursForSubmission(requestId, s.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToSubmissionInfo(submission, hourRows))
}

func (s *RestaurantService) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	admin, err := auth.IsAdmin(r.Context(), user, s.oracle)
	if err != nil {
		slog.Error("admin check failed listing submissions", "user_id", user.Id, "error", err)
		http.Error(w, auth.ErrIdentityFailure.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Model(&schema.RestaurantSubmission{})
	if !admin {
		query = query.Where("submitter = ?", user.Id)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var submissions []schema.RestaurantSubmission
	if result := query.Order("submitted_time desc").Find(&submissions); result.Error != nil {
		slog.Error("sql error listing submissions", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing submissions: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]SubmissionInfo, 0, len(submissions))
	for _, submission := range submissions {
		hourRows, err := schema.GetOperatingHoursForSubmission(submission.Id, s.db)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		infos = append(infos, convertToSubmissionInfo(submission, hourRows))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *RestaurantService) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	requestId, err := utils.URLParamUUID(r, "request_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		submission, err := getSubmissionCoded(txn, requestId)
		if err != nil {
			return err
		}

		allowed, err := auth.CanActOnSubmission(r.Context(), user, submission, auth.DeleteSubmission, s.oracle)
		if err != nil {
			slog.Error("submission delete permission check failed", "user_id", user.Id, "submission_id", requestId, "error", err)
			return CodedError(auth.ErrIdentityFailure, http.StatusInternalServerError)
		}
		if !allowed {
			// The permission denial wins over the processed-status conflict:
			// only the submitter or an admin learns that the submission has
			// already been reviewed.
			party, err := auth.CanActOnSubmission(r.Context(), user, submission, auth.ViewSubmission, s.oracle)
			if err != nil {
				slog.Error("submission delete permission check failed", "user_id", user.Id, "submission_id", requestId, "error", err)
				return CodedError(auth.ErrIdentityFailure, http.StatusInternalServerError)
			}
			if !party {
				return CodedError(auth.ErrPermissionDenied, http.StatusForbidden)
			}
			return CodedError(ErrSubmissionProcessed, http.StatusConflict)
		}

		if result := txn.Where("submission_id = ?", requestId).Delete(&schema.OperatingHours{}); result.Error != nil {
			slog.Error("sql error deleting submission operating hours", "submission_id", requestId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.RestaurantSubmission{Id: requestId}); result.Error != nil {
			slog.Error("sql error deleting submission", "submission_id", requestId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting submission: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("submission deleted", "submission_id", requestId, "user_id", user.Id)
	utils.WriteSuccess(w)
}

type approveResponse struct {
	RestaurantId uuid.UUID `json:"restaurant_id"`
}

// Approve transitions a pending submission to approved and copies it out into
// a live restaurant. The status flip is a conditional update evaluated inside
// the same transaction as the copy-out: of two concurrent reviews exactly one
// observes an affected row, the other reports a conflict and creates nothing.
func (s *RestaurantService) Approve(w http.ResponseWriter, r *http.Request) {
	requestId, err := utils.URLParamUUID(r, "request_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var restaurant schema.Restaurant

	err = s.db.Transaction(func(txn *gorm.DB) error {
		submission, err := getSubmissionCoded(txn, requestId)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		result := txn.Model(&schema.RestaurantSubmission{}).
			Where("id = ? AND status = ?", requestId, schema.StatusPending).
			Updates(map[string]interface{}{
				"status":        schema.StatusApproved,
				"reviewer":      user.Id,
				"reviewed_time": now,
			})
		if result.Error != nil {
			slog.Error("sql error approving submission", "submission_id", requestId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(ErrSubmissionProcessed, http.StatusConflict)
		}

		restaurant = schema.Restaurant{
			Id:                uuid.New(),
			Name:              submission.Name,
			Owner:             submission.Submitter,
			EstablishmentType: submission.EstablishmentType,
			IsCampus:          submission.IsCampus,
			BuildingName:      submission.BuildingName,
			NaverMapLink:      submission.NaverMapLink,
			KakaoMapLink:      submission.KakaoMapLink,
			Latitude:          submission.Latitude,
			Longitude:         submission.Longitude,
		}
		if result := txn.Create(&restaurant); result.Error != nil {
			slog.Error("sql error creating restaurant from submission", "submission_id", requestId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// The submission keeps its own hours rows as the audit trail; the new
		// restaurant gets copies.
		subHours, err := schema.GetOperatingHoursForSubmission(requestId, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}

		copies := make([]schema.OperatingHours, 0, len(subHours))
		for _, h := range subHours {
			copies = append(copies, schema.OperatingHours{
				Id:           uuid.New(),
				Type:         h.Type,
				StartTime:    h.StartTime,
				EndTime:      h.EndTime,
				RestaurantId: &restaurant.Id,
			})
		}
		if len(copies) > 0 {
			if result := txn.Create(&copies); result.Error != nil {
				slog.Error("sql error copying operating hours to restaurant", "submission_id", requestId, "restaurant_id", restaurant.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error approving submission: %v", err), GetResponseCode(err))
		return
	}

	approvalsMetric.Inc()
	slog.Info("submission approved", "submission_id", requestId, "restaurant_id", restaurant.Id, "reviewer", user.Id)

	utils.WriteJsonResponse(w, approveResponse{RestaurantId: restaurant.Id})
}

type rejectRequest struct {
	Message string `json:"message"`
}

func (s *RestaurantService) Reject(w http.ResponseWriter, r *http.Request) {
	requestId, err := utils.URLParamUUID(r, "request_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params rejectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Message == "" {
		http.Error(w, "a rejection message is required", http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if _, err := getSubmissionCoded(txn, requestId); err != nil {
			return err
		}

		now := time.Now().UTC()
		result := txn.Model(&schema.RestaurantSubmission{}).
			Where("id = ? AND status = ?", requestId, schema.StatusPending).
			Updates(map[string]interface{}{
				"status":            schema.StatusRejected,
				"reviewer":          user.Id,
				"reviewed_time":     now,
				"rejection_message": params.Message,
			})
		if result.Error != nil {
			slog.Error("sql error rejecting submission", "submission_id", requestId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(ErrSubmissionProcessed, http.StatusConflict)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error rejecting submission: %v", err), GetResponseCode(err))
		return
	}

	rejectionsMetric.Inc()
	slog.Info("submission rejected", "submission_id", requestId, "reviewer", user.Id)

	utils.WriteSuccess(w)
}

type RestaurantInfo struct {
	Id    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Owner int64     `json:"owner"`

	EstablishmentType string   `json:"establishment_type"`
	Location          Location `json:"location"`

	OpeningTime   *hours.TimeRange `json:"opening_time,omitempty"`
	BreakTime     *hours.TimeRange `json:"break_time,omitempty"`
	BreakfastTime *hours.TimeRange `json:"breakfast_time,omitempty"`
	BrunchTime    *hours.TimeRange `json:"brunch_time,omitempty"`
	LunchTime     *hours.TimeRange `json:"lunch_time,omitempty"`
	DinnerTime    *hours.TimeRange `json:"dinner_time,omitempty"`
}

func convertToRestaurantInfo(restaurant schema.Restaurant, hourRows []schema.OperatingHours) RestaurantInfo {
	byType := hoursByType(hourRows)
	return RestaurantInfo{
		Id:                restaurant.Id,
		Name:              restaurant.Name,
		Owner:             restaurant.Owner,
		EstablishmentType: restaurant.EstablishmentType,
		Location: Location{
			IsCampus:  restaurant.IsCampus,
			Building:  restaurant.BuildingName,
			MapLinks:  buildMapLinks(restaurant.NaverMapLink, restaurant.KakaoMapLink),
			Latitude:  restaurant.Latitude,
			Longitude: restaurant.Longitude,
		},

		OpeningTime:   byType[schema.OpeningTime],
		BreakTime:     byType[schema.BreakTime],
		BreakfastTime: byType[schema.BreakfastTime],
		BrunchTime:    byType[schema.BrunchTime],
		LunchTime:     byType[schema.LunchTime],
		DinnerTime:    byType[schema.DinnerTime],
	}
}

func (s *RestaurantService) GetRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurantId, err := utils.URLParamUUID(r, "restaurant_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	restaurant, err := getRestaurantCoded(s.db, restaurantId, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	hourRows, err := schema.GetOperatingHoursForRestaurant(restaurantId, s.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToRestaurantInfo(restaurant, hourRows))
}

func (s *RestaurantService) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := s.db.Model(&schema.Restaurant{})

	if owner := q.Get("owner"); owner != "" {
		ownerId, err := strconv.ParseInt(owner, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid owner filter '%v'", owner), http.StatusBadRequest)
			return
		}
		query = query.Where("owner = ?", ownerId)
	}

	if manager := q.Get("manager"); manager != "" {
		managerId, err := strconv.ParseInt(manager, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid manager filter '%v'", manager), http.StatusBadRequest)
			return
		}
		query = query.
			Joins("JOIN restaurant_managers ON restaurant_managers.restaurant_id = restaurants.id").
			Where("restaurant_managers.user_id = ?", managerId)
	}

	if name := q.Get("name"); name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}

	if establishmentType := q.Get("establishment_type"); establishmentType != "" {
		if err := schema.CheckValidEstablishmentType(establishmentType); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		query = query.Where("establishment_type = ?", establishmentType)
	}

	if campus := q.Get("is_campus"); campus != "" {
		query = query.Where("is_campus = ?", campus == "true")
	}

	var restaurants []schema.Restaurant
	if result := query.Find(&restaurants); result.Error != nil {
		slog.Error("sql error listing restaurants", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing restaurants: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	ids := make([]uuid.UUID, 0, len(restaurants))
	for _, restaurant := range restaurants {
		ids = append(ids, restaurant.Id)
	}

	var hourRows []schema.OperatingHours
	if len(ids) > 0 {
		if result := s.db.Where("restaurant_id IN ?", ids).Find(&hourRows); result.Error != nil {
			slog.Error("sql error listing restaurant operating hours", "error", result.Error)
			http.Error(w, fmt.Sprintf("error listing restaurants: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
			return
		}
	}

	hoursByRestaurant := make(map[uuid.UUID][]schema.OperatingHours, len(ids))
	for _, row := range hourRows {
		hoursByRestaurant[*row.RestaurantId] = append(hoursByRestaurant[*row.RestaurantId], row)
	}

	infos := make([]RestaurantInfo, 0, len(restaurants))
	for _, restaurant := range restaurants {
		infos = append(infos, convertToRestaurantInfo(restaurant, hoursByRestaurant[restaurant.Id]))
	}

	utils.WriteJsonResponse(w, infos)
}

// DeleteRestaurant soft deletes; the row and its hours stay in place but all
// list/get queries skip them from here on.
func (s *RestaurantService) DeleteRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurantId, err := utils.URLParamUUID(r, "restaurant_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		restaurant, err := getRestaurantCoded(txn, restaurantId, false)
		if err != nil {
			return err
		}

		if err := checkRestaurantPermission(r.Context(), user, restaurant, txn, s.oracle); err != nil {
			return err
		}

		if result := txn.Delete(&schema.Restaurant{Id: restaurantId}); result.Error != nil {
			slog.Error("sql error deleting restaurant", "restaurant_id", restaurantId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting restaurant: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("restaurant deleted", "restaurant_id", restaurantId, "user_id", user.Id)
	utils.WriteSuccess(w)
}

// Manager changes are restricted to the owner and admins; managers cannot
// grant or revoke management.
func (s *RestaurantService) checkManagerChangeAllowed(r *http.Request, user schema.User, restaurant schema.Restaurant) error {
	if restaurant.Owner == user.Id {
		return nil
	}

	admin, err := auth.IsAdmin(r.Context(), user, s.oracle)
	if err != nil {
		slog.Error("admin check failed for manager change", "user_id", user.Id, "restaurant_id", restaurant.Id, "error", err)
		return CodedError(auth.ErrIdentityFailure, http.StatusInternalServerError)
	}
	if !admin {
		return CodedError(auth.ErrPermissionDenied, http.StatusForbidden)
	}
	return nil
}

func (s *RestaurantService) AddManager(w http.ResponseWriter, r *http.Request) {
	restaurantId, err := utils.URLParamUUID(r, "restaurant_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	userId, err := utils.URLParamInt64(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		restaurant, err := getRestaurantCoded(txn, restaurantId, false)
		if err != nil {
			return err
		}

		if err := s.checkManagerChangeAllowed(r, actor, restaurant); err != nil {
			return err
		}

		// The target may be a valid account that has never touched this
		// service; materialize it on first reference just like the request
		// middleware does.
		if _, err := auth.GetOrCreateUser(r.Context(), userId, txn, s.oracle); err != nil {
			if errors.Is(err, auth.ErrUnknownUser) {
				return CodedError(err, http.StatusNotFound)
			}
			slog.Error("error resolving manager target user", "user_id", userId, "error", err)
			return CodedError(auth.ErrIdentityFailure, http.StatusInternalServerError)
		}

		manager, err := schema.IsRestaurantManager(restaurantId, userId, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if manager {
			return CodedError(fmt.Errorf("user %v already manages restaurant %v", userId, restaurantId), http.StatusConflict)
		}

		result := txn.Exec("INSERT INTO restaurant_managers (restaurant_id, user_id) VALUES (?, ?)", restaurantId, userId)
		if result.Error != nil {
			slog.Error("sql error adding restaurant manager", "restaurant_id", restaurantId, "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error adding manager: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *RestaurantService) RemoveManager(w http.ResponseWriter, r *http.Request) {
	restaurantId, err := utils.URLParamUUID(r, "restaurant_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	userId, err := utils.URLParamInt64(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		restaurant, err := getRestaurantCoded(txn, restaurantId, false)
		if err != nil {
			return err
		}

		if err := s.checkManagerChangeAllowed(r, actor, restaurant); err != nil {
			return err
		}

		result := txn.Exec("DELETE FROM restaurant_managers WHERE restaurant_id = ? AND user_id = ?", restaurantId, userId)
		if result.Error != nil {
			slog.Error("sql error removing restaurant manager", "restaurant_id", restaurantId, "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error removing manager: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
