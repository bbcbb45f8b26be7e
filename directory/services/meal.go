package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"meal_directory/directory/auth"
	"meal_directory/directory/schema"
	"meal_directory/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MealService struct {
	db     *gorm.DB
	oracle auth.IdentityOracle
}

func (s *MealService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.List)
	r.Get("/latest", s.Latest)
	r.Get("/{meal_id}", s.GetMeal)
	r.Get("/restaurants/{restaurant_id}", s.ListForRestaurant)
	r.Get("/restaurants/{restaurant_id}/latest", s.LatestForRestaurant)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(s.db, s.oracle))

		r.Post("/restaurants/{restaurant_id}", s.Register)
		r.Delete("/{meal_id}", s.DeleteMeal)
		r.Patch("/{meal_id}/menus", s.UpdateMenu)
		r.Delete("/{meal_id}/menus", s.ClearMenu)
	})

	return r
}

type MealInfo struct {
	Id             uuid.UUID `json:"id"`
	RestaurantId   uuid.UUID `json:"restaurant_id"`
	RestaurantName string    `json:"restaurant_name,omitempty"`
	MealType       string    `json:"meal_type"`
	Menu           []string  `json:"menu"`
	RegisteredAt   time.Time `json:"registered_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func convertToMealInfo(meal schema.Meal) MealInfo {
	info := MealInfo{
		Id:           meal.Id,
		RestaurantId: meal.RestaurantId,
		MealType:     meal.MealType,
		Menu:         meal.Menu,
		RegisteredAt: meal.RegisteredAt,
		UpdatedAt:    meal.UpdatedAt,
	}
	if meal.Restaurant != nil {
		info.RestaurantName = meal.Restaurant.Name
	}
	return info
}

// checkMealPermission loads the meal's restaurant and checks that the user is
// its owner, a manager, or an admin.
func (s *MealService) checkMealPermission(r *http.Request, txn *gorm.DB, user schema.User, meal schema.Meal) error {
	restaurant, err := getRestaurantCoded(txn, meal.RestaurantId, false)
	if err != nil {
		return err
	}
	return checkRestaurantPermission(r.Context(), user, restaurant, txn, s.oracle)
}

func (s *MealService) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Meals follow their restaurant's visibility: a soft deleted restaurant
	// takes its meals out of every listing.
	query := s.db.Model(&schema.Meal{}).
		Preload("Restaurant").
		Joins("JOIN restaurants ON restaurants.id = meals.restaurant_id").
		Where("restaurants.deleted_at IS NULL")

	if name := q.Get("restaurant_name"); name != "" {
		query = query.Where("restaurants.name LIKE ?", "%"+name+"%")
	}

	if mealType := q.Get("meal_type"); mealType != "" {
		if err := schema.CheckValidMealType(mealType); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		query = query.Where("meal_type = ?", mealType)
	}

	if after := q.Get("updated_after"); after != "" {
		day, err := time.Parse("2006-01-02", after)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid updated_after date '%v', expected YYYY-MM-DD", after), http.StatusBadRequest)
			return
		}
		query = query.Where("updated_at >= ?", day)
	}

	if before := q.Get("updated_before"); before != "" {
		day, err := time.Parse("2006-01-02", before)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid updated_before date '%v', expected YYYY-MM-DD", before), http.StatusBadRequest)
			return
		}
		query = query.Where("updated_at < ?", day.AddDate(0, 0, 1))
	}

	var meals []schema.Meal
	if result := query.Order("updated_at desc").Find(&meals); result.Error != nil {
		slog.Error("sql error listing meals", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing meals: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]MealInfo, 0, len(meals))
	for _, meal := range meals {
		infos = append(infos, convertToMealInfo(meal))
	}

	utils.WriteJsonResponse(w, infos)
}

// latestPerType keeps the newest meal per (restaurant, meal type). Meals must
// already be ordered newest first.
func latestPerType(meals []schema.Meal) []MealInfo {
	type key struct {
		restaurant uuid.UUID
		mealType   string
	}

	seen := make(map[key]bool)
	infos := make([]MealInfo, 0)
	for _, meal := range meals {
		k := key{restaurant: meal.RestaurantId, mealType: meal.MealType}
		if seen[k] {
			continue
		}
		seen[k] = true
		infos = append(infos, convertToMealInfo(meal))
	}
	return infos
}

func (s *MealService) Latest(w http.ResponseWriter, r *http.Request) {
	var meals []schema.Meal
	result := s.db.Model(&schema.Meal{}).
		Preload("Restaurant").
		Joins("JOIN restaurants ON restaurants.id = meals.restaurant_id").
		Where("restaurants.deleted_at IS NULL").
		Order("updated_at desc").
		Find(&meals)
	if result.Error != nil {
		slog.Error("sql error listing latest meals", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing meals: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, latestPerType(meals))
}

func (s *MealService) GetMeal(w http.ResponseWriter, r *http.Request) {
	mealId, err := utils.URLParamUUID(r, "meal_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	meal, err := schema.GetMeal(mealId, s.db, true)
	if err != nil {
		code := http.StatusInternalServerError
		if err == schema.ErrMealNotFound {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}

	// The preload skips soft deleted restaurants, so a nil restaurant means
	// the meal's parent is gone and the meal goes with it.
	if meal.Restaurant == nil {
		http.Error(w, schema.ErrMealNotFound.Error(), http.StatusNotFound)
		return
	}

	utils.WriteJsonResponse(w, convertToMealInfo(meal))
}

func (s *MealService) ListForRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurantId, err := utils.URLParamUUID(r, "restaurant_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := getRestaurantCoded(s.db, restaurantId, false); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var meals []schema.Meal
	result := s.db.Where("restaurant_id = ?", restaurantId).Order("updated_at desc").Find(&meals)
	if result.Error != nil {
		slog.Error("sql error listing restaurant meals", "restaurant_id", restaurantId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing meals: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]MealInfo, 0, len(meals))
	for _, meal := range meals {
		infos = append(infos, convertToMealInfo(meal))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *MealService) LatestForRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurantId, err := utils.URLParamUUID(r, "restaurant_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := getRestaurantCoded(s.db, restaurantId, false); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var meals []schema.Meal
	result := s.db.Where("restaurant_id = ?", restaurantId).Order("updated_at desc").Find(&meals)
	if result.Error != nil {
		slog.Error("sql error listing restaurant meals", "restaurant_id", restaurantId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing meals: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, latestPerType(meals))
}

type registerMealRequest struct {
	MealType string   `json:"meal_type"`
	Menu     []string `json:"menu"`
}

type registerMealResponse struct {
	MealId uuid.UUID `json:"meal_id"`
}

func (s *MealService) Register(w http.ResponseWriter, r *http.Request) {
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

	var params registerMealRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := schema.CheckValidMealType(params.MealType); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if len(params.Menu) == 0 {
		http.Error(w, "menu must contain at least one item", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	meal := schema.Meal{
		Id:           uuid.New(),
		RestaurantId: restaurantId,
		MealType:     params.MealType,
		Menu:         params.Menu,
		RegisteredAt: now,
		UpdatedAt:    now,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		restaurant, err := getRestaurantCoded(txn, restaurantId, false)
		if err != nil {
			return err
		}

		if err := checkRestaurantPermission(r.Context(), user, restaurant, txn, s.oracle); err != nil {
			return err
		}

		if result := txn.Create(&meal); result.Error != nil {
			slog.Error("sql error creating meal", "restaurant_id", restaurantId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error registering meal: %v", err), GetResponseCode(err))
		return
	}

	mealRegistrationsMetric.Inc()
	slog.Info("meal registered", "meal_id", meal.Id, "restaurant_id", restaurantId, "user_id", user.Id)

	utils.WriteJsonResponse(w, registerMealResponse{MealId: meal.Id})
}

func (s *MealService) DeleteMeal(w http.ResponseWriter, r *http.Request) {
	mealId, err := utils.URLParamUUID(r, "meal_id")
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
		meal, err := schema.GetMeal(mealId, txn, false)
		if err != nil {
			if err == schema.ErrMealNotFound {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := s.checkMealPermission(r, txn, user, meal); err != nil {
			return err
		}

		if result := txn.Delete(&schema.Meal{Id: mealId}); result.Error != nil {
			slog.Error("sql error deleting meal", "meal_id", mealId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting meal: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("meal deleted", "meal_id", mealId, "user_id", user.Id)
	utils.WriteSuccess(w)
}

type updateMenuRequest struct {
	Menu []string `json:"menu"`
}

func (s *MealService) UpdateMenu(w http.ResponseWriter, r *http.Request) {
	mealId, err := utils.URLParamUUID(r, "meal_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params updateMenuRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if len(params.Menu) == 0 {
		http.Error(w, "menu must contain at least one item", http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		meal, err := schema.GetMeal(mealId, txn, false)
		if err != nil {
			if err == schema.ErrMealNotFound {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := s.checkMealPermission(r, txn, user, meal); err != nil {
			return err
		}

		result := txn.Model(&schema.Meal{}).Where("id = ?", mealId).Updates(map[string]interface{}{
			"menu":       schema.MenuItems(params.Menu),
			"updated_at": time.Now().UTC(),
		})
		if result.Error != nil {
			slog.Error("sql error updating meal menu", "meal_id", mealId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating menu: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *MealService) ClearMenu(w http.ResponseWriter, r *http.Request) {
	mealId, err := utils.URLParamUUID(r, "meal_id")
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
		meal, err := schema.GetMeal(mealId, txn, false)
		if err != nil {
			if err == schema.ErrMealNotFound {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := s.checkMealPermission(r, txn, user, meal); err != nil {
			return err
		}

		result := txn.Model(&schema.Meal{}).Where("id = ?", mealId).Updates(map[string]interface{}{
			"menu":       schema.MenuItems{},
			"updated_at": time.Now().UTC(),
		})
		if result.Error != nil {
			slog.Error("sql error clearing meal menu", "meal_id", mealId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error clearing menu: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
