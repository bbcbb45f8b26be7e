package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"meal_directory/directory/auth"
	"meal_directory/directory/schema"
	"meal_directory/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type UserService struct {
	db     *gorm.DB
	oracle auth.IdentityOracle
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(auth.RequireUser(s.db, s.oracle))

	r.Get("/", s.List)
	r.Post("/{user_id}", s.Create)
	r.Get("/{user_id}", s.GetUser)

	r.Group(func(r chi.Router) {
		r.Use(auth.AdminOnly(s.oracle))

		r.Delete("/{user_id}", s.DeleteUser)
		r.Post("/{user_id}/admin", s.Promote)
		r.Delete("/{user_id}/admin", s.Demote)
	})

	return r
}

type UserInfo struct {
	Id        int64 `json:"id"`
	MealAdmin bool  `json:"meal_admin"`
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	if result := s.db.Find(&users); result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, UserInfo{Id: user.Id, MealAdmin: user.MealAdmin})
	}

	utils.WriteJsonResponse(w, infos)
}

// Create registers a user row ahead of their first request. The id must be
// known to the identity authority.
func (s *UserService) Create(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamInt64(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := s.oracle.LookupUser(r.Context(), userId); err != nil {
		if errors.Is(err, auth.ErrUnknownUser) {
			http.Error(w, fmt.Sprintf("user %d is not known to the identity authority", userId), http.StatusNotFound)
			return
		}
		slog.Error("identity lookup failed creating user", "user_id", userId, "error", err)
		http.Error(w, auth.ErrIdentityFailure.Error(), http.StatusInternalServerError)
		return
	}

	if _, err := schema.GetUser(userId, s.db); err == nil {
		http.Error(w, fmt.Sprintf("user %d already exists", userId), http.StatusConflict)
		return
	} else if err != schema.ErrUserNotFound {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	user := schema.User{Id: userId}
	if result := s.db.Create(&user); result.Error != nil {
		slog.Error("sql error creating user", "user_id", userId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating user: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	slog.Info("user created", "user_id", userId)
	utils.WriteJsonResponse(w, UserInfo{Id: user.Id, MealAdmin: user.MealAdmin})
}

func (s *UserService) GetUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamInt64(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := schema.GetUser(userId, s.db)
	if err != nil {
		code := http.StatusInternalServerError
		if err == schema.ErrUserNotFound {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}

	utils.WriteJsonResponse(w, UserInfo{Id: user.Id, MealAdmin: user.MealAdmin})
}

// DeleteUser removes a user and untangles everything hanging off them in one
// transaction: restaurants they own are soft deleted, management rows they
// hold on other restaurants are pruned, and their submissions go with them.
// Restaurants they merely managed survive.
func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamInt64(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, userId); err != nil {
			return err
		}

		var owned []schema.Restaurant
		if result := txn.Where("owner = ?", userId).Find(&owned); result.Error != nil {
			slog.Error("sql error finding owned restaurants", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		for _, restaurant := range owned {
			if result := txn.Delete(&schema.Restaurant{Id: restaurant.Id}); result.Error != nil {
				slog.Error("sql error deleting owned restaurant", "user_id", userId, "restaurant_id", restaurant.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		if result := txn.Exec("DELETE FROM restaurant_managers WHERE user_id = ?", userId); result.Error != nil {
			slog.Error("sql error pruning manager rows", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		var submissionIds []string
		result := txn.Model(&schema.RestaurantSubmission{}).Where("submitter = ?", userId).Pluck("id", &submissionIds)
		if result.Error != nil {
			slog.Error("sql error finding user submissions", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if len(submissionIds) > 0 {
			if result := txn.Where("submission_id IN ?", submissionIds).Delete(&schema.OperatingHours{}); result.Error != nil {
				slog.Error("sql error deleting submission hours", "user_id", userId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if result := txn.Where("submitter = ?", userId).Delete(&schema.RestaurantSubmission{}); result.Error != nil {
				slog.Error("sql error deleting user submissions", "user_id", userId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		if result := txn.Delete(&schema.User{Id: userId}); result.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting user: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("user deleted", "user_id", userId)
	utils.WriteSuccess(w)
}

func (s *UserService) setMealAdmin(w http.ResponseWriter, r *http.Request, mealAdmin bool) {
	userId, err := utils.URLParamInt64(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, userId); err != nil {
			return err
		}

		result := txn.Model(&schema.User{}).Where("id = ?", userId).Update("meal_admin", mealAdmin)
		if result.Error != nil {
			slog.Error("sql error updating meal admin flag", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating user: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("meal admin flag updated", "user_id", userId, "meal_admin", mealAdmin)
	utils.WriteSuccess(w)
}

func (s *UserService) Promote(w http.ResponseWriter, r *http.Request) {
	s.setMealAdmin(w, r, true)
}

func (s *UserService) Demote(w http.ResponseWriter, r *http.Request) {
	s.setMealAdmin(w, r, false)
}
