package services

import (
	"log"
	"net/http"
	"os"

	"meal_directory/directory/auth"
	"meal_directory/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Directory struct {
	user       UserService
	restaurant RestaurantService
	meal       MealService

	db *gorm.DB
}

func NewDirectory(db *gorm.DB, oracle auth.IdentityOracle) Directory {
	return Directory{
		user:       UserService{db: db, oracle: oracle},
		restaurant: RestaurantService{db: db, oracle: oracle},
		meal:       MealService{db: db, oracle: oracle},
		db:         db,
	}
}

func (d *Directory) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/users", d.user.Routes())
	r.Mount("/restaurants", d.restaurant.Routes())
	r.Mount("/meals", d.meal.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
