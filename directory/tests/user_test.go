package tests

import (
	"fmt"
	"net/http"
	"testing"
)

func TestCreateAndListUsers(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.newAdmin(999)
	env.oracle.users[101] = userInfo(101)

	if err := admin.Post("/users/101").Do(nil); err != nil {
		t.Fatal(err)
	}

	if err := admin.Post("/users/101").Do(nil); statusOf(err) != http.StatusConflict {
		t.Fatalf("duplicate user creation should conflict, got %v", err)
	}

	if err := admin.Post("/users/404").Do(nil); statusOf(err) != http.StatusNotFound {
		t.Fatalf("ids unknown to the identity authority should be rejected, got %v", err)
	}

	var users []map[string]interface{}
	if err := admin.Get("/users/").Do(&users); err != nil {
		t.Fatal(err)
	}
	// The admin row is materialized by their own requests.
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestPromoteDemoteMealAdmin(t *testing.T) {
	env := setupTestEnv(t)

	user := env.newUser(101)
	trusted := env.newUser(102)
	admin := env.newAdmin(999)

	requestId, err := user.submitRestaurant(basicSubmission("Cafe P"))
	if err != nil {
		t.Fatal(err)
	}

	// Approval requires admin rights which 102 does not have yet.
	if _, err := trusted.approve(requestId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	if err := trusted.Post("/users/102/admin").Do(nil); statusOf(err) != http.StatusForbidden {
		t.Fatalf("users cannot promote themselves, got %v", err)
	}

	if err := admin.Post("/users/102/admin").Do(nil); err != nil {
		t.Fatal(err)
	}

	if _, err := trusted.approve(requestId); err != nil {
		t.Fatal(err)
	}

	if err := admin.Delete("/users/102/admin").Do(nil); err != nil {
		t.Fatal(err)
	}

	requestId2, err := user.submitRestaurant(basicSubmission("Cafe Q"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := trusted.approve(requestId2); statusOf(err) != http.StatusForbidden {
		t.Fatalf("demoted admins lose approval rights, got %v", err)
	}
}

func TestDeleteUserCascade(t *testing.T) {
	env := setupTestEnv(t)

	owner := env.newUser(101)
	colleague := env.newUser(102)
	admin := env.newAdmin(999)

	ownedId := createRestaurant(t, env, owner, admin, "Owned Cafe", nil)
	managedId := createRestaurant(t, env, colleague, admin, "Managed Cafe", nil)

	// 101 manages 102's restaurant; that restaurant must survive 101's removal.
	if err := colleague.Post(fmt.Sprintf("/restaurants/%v/managers/%d", managedId, 101)).Do(nil); err != nil {
		t.Fatal(err)
	}

	if _, err := owner.submitRestaurant(basicSubmission("Pending Cafe")); err != nil {
		t.Fatal(err)
	}

	if err := owner.Delete("/users/999").Do(nil); statusOf(err) != http.StatusForbidden {
		t.Fatalf("non admins cannot delete users, got %v", err)
	}

	if err := admin.Delete("/users/101").Do(nil); err != nil {
		t.Fatal(err)
	}

	if _, err := env.anonClient().getRestaurant(ownedId); statusOf(err) != http.StatusNotFound {
		t.Fatalf("owned restaurants should be removed with their owner, got %v", err)
	}

	if _, err := env.anonClient().getRestaurant(managedId); err != nil {
		t.Fatal("managed restaurants should survive their manager's removal")
	}

	managed, err := env.anonClient().listRestaurants("?manager=101")
	if err != nil {
		t.Fatal(err)
	}
	if len(managed) != 0 {
		t.Fatal("manager assignments should be pruned with the user")
	}

	var submissions []map[string]interface{}
	if err := admin.Get("/restaurants/requests").Do(&submissions); err != nil {
		t.Fatal(err)
	}
	for _, submission := range submissions {
		if submission["submitter"].(float64) == 101 {
			t.Fatal("submissions should be removed with their submitter")
		}
	}

	if err := admin.Get("/users/101").Do(nil); statusOf(err) != http.StatusNotFound {
		t.Fatalf("deleted user should be gone, got %v", err)
	}
}
