package auth

import (
	"context"
	"testing"

	"meal_directory/directory/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeOracle struct {
	admins map[int64]bool
	fail   bool
}

func (o *fakeOracle) LookupUser(ctx context.Context, userId int64) (UserInfo, error) {
	if o.fail {
		return UserInfo{}, ErrIdentityFailure
	}
	return UserInfo{Id: userId}, nil
}

func (o *fakeOracle) IsGlobalAdmin(ctx context.Context, userId int64) (bool, error) {
	if o.fail {
		return false, ErrIdentityFailure
	}
	return o.admins[userId], nil
}

func permissionTestDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&schema.User{}, &schema.Restaurant{}, &schema.RestaurantSubmission{},
		&schema.OperatingHours{}, &schema.Meal{},
	)
	require.NoError(t, err)

	return db
}

func TestIsAdmin(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{admins: map[int64]bool{2: true}}

	admin, err := IsAdmin(ctx, schema.User{Id: 1, MealAdmin: true}, oracle)
	require.NoError(t, err)
	assert.True(t, admin, "meal admin flag grants admin")

	admin, err = IsAdmin(ctx, schema.User{Id: 2}, oracle)
	require.NoError(t, err)
	assert.True(t, admin, "global admin per the oracle grants admin")

	admin, err = IsAdmin(ctx, schema.User{Id: 3}, oracle)
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestIsAdminFailsClosed(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{fail: true}

	admin, err := IsAdmin(ctx, schema.User{Id: 1}, oracle)
	assert.Error(t, err)
	assert.False(t, admin)

	// The local flag answers without consulting the oracle.
	admin, err = IsAdmin(ctx, schema.User{Id: 1, MealAdmin: true}, oracle)
	require.NoError(t, err)
	assert.True(t, admin)
}

func TestCanActOnRestaurant(t *testing.T) {
	ctx := context.Background()
	db := permissionTestDb(t)
	oracle := &fakeOracle{admins: map[int64]bool{4: true}}

	owner := schema.User{Id: 1}
	manager := schema.User{Id: 2}
	other := schema.User{Id: 3}
	globalAdmin := schema.User{Id: 4}
	require.NoError(t, db.Create(&owner).Error)
	require.NoError(t, db.Create(&manager).Error)
	require.NoError(t, db.Create(&other).Error)
	require.NoError(t, db.Create(&globalAdmin).Error)

	restaurant := schema.Restaurant{
		Id: uuid.New(), Name: "test", Owner: owner.Id,
		EstablishmentType: schema.StudentEatery, IsCampus: true,
	}
	require.NoError(t, db.Create(&restaurant).Error)
	require.NoError(t, db.Exec(
		"INSERT INTO restaurant_managers (restaurant_id, user_id) VALUES (?, ?)", restaurant.Id, manager.Id,
	).Error)

	for _, user := range []schema.User{owner, manager, globalAdmin} {
		ok, err := CanActOnRestaurant(ctx, user, restaurant, db, oracle)
		require.NoError(t, err)
		assert.True(t, ok, "user %d should be able to act", user.Id)
	}

	ok, err := CanActOnRestaurant(ctx, other, restaurant, db, oracle)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanActOnSubmission(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{admins: map[int64]bool{4: true}}

	submitter := schema.User{Id: 1}
	other := schema.User{Id: 3}
	admin := schema.User{Id: 4}

	pending := schema.RestaurantSubmission{Id: uuid.New(), Submitter: submitter.Id, Status: schema.StatusPending}
	approved := schema.RestaurantSubmission{Id: uuid.New(), Submitter: submitter.Id, Status: schema.StatusApproved}

	check := func(user schema.User, submission schema.RestaurantSubmission, action submissionAction) bool {
		ok, err := CanActOnSubmission(ctx, user, submission, action, oracle)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, check(submitter, pending, ViewSubmission))
	assert.True(t, check(admin, pending, ViewSubmission))
	assert.False(t, check(other, pending, ViewSubmission))

	assert.True(t, check(submitter, pending, DeleteSubmission))
	assert.True(t, check(admin, pending, DeleteSubmission))
	assert.False(t, check(other, pending, DeleteSubmission))
	assert.False(t, check(submitter, approved, DeleteSubmission), "only pending submissions can be deleted")

	assert.True(t, check(admin, pending, ApproveSubmission))
	assert.True(t, check(admin, pending, RejectSubmission))
	assert.False(t, check(submitter, pending, ApproveSubmission), "non admins cannot review requests")
	assert.False(t, check(other, pending, RejectSubmission))
}
