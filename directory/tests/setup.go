package tests

import (
	"context"
	"fmt"
	"testing"

	"meal_directory/directory/auth"
	"meal_directory/directory/schema"
	"meal_directory/directory/services"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// oracleStub stands in for the campus user api. Setting fail simulates the
// identity authority being unreachable.
type oracleStub struct {
	users  map[int64]auth.UserInfo
	admins map[int64]bool
	fail   bool
}

func (o *oracleStub) LookupUser(ctx context.Context, userId int64) (auth.UserInfo, error) {
	if o.fail {
		return auth.UserInfo{}, auth.ErrIdentityFailure
	}
	if user, ok := o.users[userId]; ok {
		return user, nil
	}
	return auth.UserInfo{}, auth.ErrUnknownUser
}

func (o *oracleStub) IsGlobalAdmin(ctx context.Context, userId int64) (bool, error) {
	if o.fail {
		return false, auth.ErrIdentityFailure
	}
	return o.admins[userId], nil
}

type testEnv struct {
	db        *gorm.DB
	oracle    *oracleStub
	directory services.Directory
	api       chi.Router
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	// Each connection to file::memory: gets its own database, so concurrent
	// requests must share the single connection.
	sqlDb, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDb.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&schema.User{}, &schema.Restaurant{}, &schema.RestaurantSubmission{},
		&schema.OperatingHours{}, &schema.Meal{},
	)
	if err != nil {
		t.Fatal(err)
	}

	oracle := &oracleStub{
		users:  make(map[int64]auth.UserInfo),
		admins: make(map[int64]bool),
	}

	directory := services.NewDirectory(db, oracle)

	return &testEnv{
		db:        db,
		oracle:    oracle,
		directory: directory,
		api:       directory.Routes(),
	}
}

func userInfo(userId int64) auth.UserInfo {
	return auth.UserInfo{
		Id:    userId,
		Name:  fmt.Sprintf("user%d", userId),
		Email: fmt.Sprintf("user%d@campus.edu", userId),
	}
}

// newUser registers the id with the stub oracle and returns a client sending
// that id. The directory row itself is created lazily on first request.
func (t *testEnv) newUser(userId int64) client {
	t.oracle.users[userId] = userInfo(userId)
	return client{api: t.api, userId: userId}
}

// newAdmin returns a client whose id the oracle reports as a global admin.
func (t *testEnv) newAdmin(userId int64) client {
	c := t.newUser(userId)
	t.oracle.admins[userId] = true
	return c
}

func (t *testEnv) anonClient() client {
	return client{api: t.api}
}
