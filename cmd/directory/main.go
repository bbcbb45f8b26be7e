package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meal_directory/directory/auth"
	"meal_directory/directory/jobs"
	"meal_directory/directory/schema"
	"meal_directory/directory/services"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type directoryEnv struct {
	DatabaseUri string `env:"DATABASE_URI,required"`
	UserApiUrl  string `env:"USER_API_URL,required"`
	LogDir      string `env:"LOG_DIR" envDefault:"./logs"`

	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"*"`

	MealSheetUrl         string        `env:"MEAL_SHEET_URL"`
	MealSyncInterval     time.Duration `env:"MEAL_SYNC_INTERVAL" envDefault:"1h"`
	CafeteriaRestaurants []string      `env:"CAFETERIA_RESTAURANTS" envSeparator:","`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func (e *directoryEnv) postgresDsn() string {
	parts, err := url.Parse(e.DatabaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Restaurant{}, &schema.RestaurantSubmission{},
		&schema.OperatingHours{}, &schema.Meal{},
	)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")
	skipMealSync := flag.Bool("skip_meal_sync", false, "If specified will not start the cafeteria meal sync job.")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}

	var cfg directoryEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing env variables: %v", err)
	}

	err := os.MkdirAll(cfg.LogDir, 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.LogDir, "directory.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	initLogging(logFile)

	db := initDb(cfg.postgresDsn())

	oracle := auth.NewUserApiOracle(cfg.UserApiUrl)

	directory := services.NewDirectory(db, oracle)

	var mealSync *jobs.MealSyncJob
	if !*skipMealSync && cfg.MealSheetUrl != "" {
		mealSync = jobs.NewMealSyncJob(db, cfg.MealSheetUrl, cfg.CafeteriaRestaurants)
		go mealSync.Run(cfg.MealSyncInterval)
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", directory.Routes())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
	if mealSync != nil {
		mealSync.Stop()
	}
}
