package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"meal_directory/cmd/migration/versions"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func postgresDsn(databaseUri string) string {
	parts, err := url.Parse(databaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from.")
	databaseUri := flag.String("db", "", "Database uri to migrate. Overrides DATABASE_URI.")
	rollbackTo := flag.String("rollback_to", "", "If specified, rolls the schema back to the given migration id instead of migrating forward.")

	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("error loading .env file '%v': %v", *envFile, err)
		}
	}

	uri := *databaseUri
	if uri == "" {
		uri = os.Getenv("DATABASE_URI")
	}
	if uri == "" {
		log.Fatal("no database uri specified, use -db or set DATABASE_URI")
	}

	db, err := gorm.Open(postgres.Open(postgresDsn(uri)), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:       "0_initial_schema",
			Migrate:  versions.Migration_0_initial_schema,
			Rollback: versions.Rollback_0_initial_schema,
		},
	})

	if *rollbackTo != "" {
		if err := m.RollbackTo(*rollbackTo); err != nil {
			log.Fatalf("rollback failed: %v", err)
		}
		log.Printf("rollback to %v complete", *rollbackTo)
		return
	}

	if err := m.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Println("migration complete")
}
