package tests

import (
	"fmt"
	"net/http"
	"testing"

	"meal_directory/directory/schema"
)

func basicSubmission(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":               name,
		"establishment_type": schema.StudentEatery,
		"location": map[string]interface{}{
			"is_campus": true,
			"building":  "Student Union",
		},
		"opening_time": map[string]string{"start": "09:00", "end": "21:00"},
	}
}

func TestSubmitAndApprove(t *testing.T) {
	env := setupTestEnv(t)

	user := env.newUser(101)
	admin := env.newAdmin(999)

	requestId, err := user.submitRestaurant(basicSubmission("Cafe A"))
	if err != nil {
		t.Fatal(err)
	}

	submission, err := user.getSubmission(requestId)
	if err != nil {
		t.Fatal(err)
	}
	if submission.Status != schema.StatusPending || submission.Submitter != 101 {
		t.Fatal("submission info wrong")
	}
	if submission.OpeningTime == nil || submission.OpeningTime.Start != "09:00" || submission.OpeningTime.End != "21:00" {
		t.Fatal("submission hours wrong")
	}

	restaurantId, err := admin.approve(requestId)
	if err != nil {
		t.Fatal(err)
	}

	restaurant, err := env.anonClient().getRestaurant(restaurantId)
	if err != nil {
		t.Fatal(err)
	}
	if restaurant.Name != "Cafe A" || restaurant.Owner != 101 {
		t.Fatal("submitter should own the approved restaurant")
	}
	if restaurant.OpeningTime == nil || restaurant.OpeningTime.Start != "09:00" || restaurant.OpeningTime.End != "21:00" {
		t.Fatal("operating hours should be copied to the restaurant")
	}

	submission, err = admin.getSubmission(requestId)
	if err != nil {
		t.Fatal(err)
	}
	if submission.Status != schema.StatusApproved {
		t.Fatal("submission should be approved")
	}
	if submission.Reviewer == nil || *submission.Reviewer != 999 || submission.ReviewedTime == nil {
		t.Fatal("reviewer should be recorded")
	}
	if submission.OpeningTime == nil {
		t.Fatal("submission should retain its hours after approval")
	}
}

func TestApproveIsExactlyOnce(t *testing.T) {
	env := setupTestEnv(t)

	user := env.newUser(101)
	admin := env.newAdmin(999)

	requestId, err := user.submitRestaurant(basicSubmission("Cafe B"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.approve(requestId); err != nil {
		t.Fatal(err)
	}

	if _, err := admin.approve(requestId); statusOf(err) != http.StatusConflict {
		t.Fatalf("second approval should conflict, got %v", err)
	}

	if err := admin.reject(requestId, "changed my mind"); statusOf(err) != http.StatusConflict {
		t.Fatalf("rejecting an approved submission should conflict, got %v", err)
	}

	restaurants, err := env.anonClient().listRestaurants("?name=Cafe+B")
	if err != nil {
		t.Fatal(err)
	}
	if len(restaurants) != 1 {
		t.Fatalf("expected exactly 1 restaurant, got %d", len(restaurants))
	}
}

func TestConcurrentReviewHasOneWinner(t *testing.T) {
	env := setupTestEnv(t)

	user := env.newUser(101)
	approver := env.newAdmin(998)
	rejecter := env.newAdmin(999)

	requestId, err := user.submitRestaurant(basicSubmission("Raced Cafe"))
	if err != nil {
		t.Fatal(err)
	}

	results := make(chan error, 2)
	go func() {
		_, err := approver.approve(requestId)
		results <- err
	}()
	go func() {
		results <- rejecter.reject(requestId, "duplicate entry")
	}()

	var wins, conflicts int
	for i := 0; i < 2; i++ {
		switch err := <-results; statusOf(err) {
		case 0:
			wins++
		case http.StatusConflict:
			conflicts++
		default:
			t.Fatalf("unexpected review outcome: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winning review, got %d wins and %d conflicts", wins, conflicts)
	}

	submission, err := approver.getSubmission(requestId)
	if err != nil {
		t.Fatal(err)
	}
	if submission.Status == schema.StatusPending {
		t.Fatal("submission should have been reviewed")
	}

	restaurants, err := env.anonClient().listRestaurants("?name=Raced+Cafe")
	if err != nil {
		t.Fatal(err)
	}
	if submission.Status == schema.StatusApproved && len(restaurants) != 1 {
		t.Fatalf("approval won, expected 1 restaurant, got %d", len(restaurants))
	}
	if submission.Status == schema.StatusRejected && len(restaurants) != 0 {
		t.Fatalf("rejection won, expected no restaurant, got %d", len(restaurants))
	}
}

func TestReject(t *testing.T) {
	env := setupTestEnv(t)

	user := env.newUser(101)
	admin := env.newAdmin(999)

	requestId, err := user.submitRestaurant(basicSubmission("Cafe C"))
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.reject(requestId, ""); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("empty rejection message should be rejected, got %v", err)
	}

	if err := admin.reject(requestId, "duplicate of an existing entry"); err != nil {
		t.Fatal(err)
	}

	submission, err := user.getSubmission(requestId)
	if err != nil {
		t.Fatal(err)
	}
	if submission.Status != schema.StatusRejected {
		t.Fatal("submission should be rejected")
	}
	if submission.RejectionMessage == nil || *submission.RejectionMessage != "duplicate of an existing entry" {
		t.Fatal("rejection message should be recorded")
	}

	restaurants, err := env.anonClient().listRestaurants("?name=Cafe+C")
	if err != nil {
		t.Fatal(err)
	}
	if len(restaurants) != 0 {
		t.Fatal("rejected submission should not create a restaurant")
	}

	if _, err := admin.approve(requestId); statusOf(err) != http.StatusConflict {
		t.Fatalf("approving a rejected submission should conflict, got %v", err)
	}
}

func TestSubmissionPermissions(t *testing.T) {
	env := setupTestEnv(t)

	submitter := env.newUser(101)
	other := env.newUser(102)
	admin := env.newAdmin(999)

	requestId, err := submitter.submitRestaurant(basicSubmission("Cafe D"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := other.getSubmission(requestId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("other users cannot view submissions, got %v", err)
	}

	if _, err := other.approve(requestId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("non admins cannot approve, got %v", err)
	}

	if err := other.reject(requestId, "nope"); statusOf(err) != http.StatusForbidden {
		t.Fatalf("non admins cannot reject, got %v", err)
	}

	if err := other.Delete(fmt.Sprintf("/restaurants/requests/%v", requestId)).Do(nil); statusOf(err) != http.StatusForbidden {
		t.Fatalf("other users cannot delete submissions, got %v", err)
	}

	if _, err := admin.getSubmission(requestId); err != nil {
		t.Fatal(err)
	}
}

func TestDeletePendingSubmission(t *testing.T) {
	env := setupTestEnv(t)

	user := env.newUser(101)
	admin := env.newAdmin(999)

	requestId, err := user.submitRestaurant(basicSubmission("Cafe E"))
	if err != nil {
		t.Fatal(err)
	}

	if err := user.Delete(fmt.Sprintf("/restaurants/requests/%v", requestId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	if _, err := user.getSubmission(requestId); statusOf(err) != http.StatusNotFound {
		t.Fatalf("deleted submission should be gone, got %v", err)
	}

	// Processed submissions are kept as the review record and cannot be removed.
	requestId, err = user.submitRestaurant(basicSubmission("Cafe F"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := admin.approve(requestId); err != nil {
		t.Fatal(err)
	}
	if err := user.Delete(fmt.Sprintf("/restaurants/requests/%v", requestId)).Do(nil); statusOf(err) != http.StatusConflict {
		t.Fatalf("approved submissions cannot be deleted, got %v", err)
	}

	// A stranger gets the denial, not the review-state conflict.
	other := env.newUser(102)
	if err := other.Delete(fmt.Sprintf("/restaurants/requests/%v", requestId)).Do(nil); statusOf(err) != http.StatusForbidden {
		t.Fatalf("unrelated users get a permission denial for processed submissions, got %v", err)
	}
}

func TestSubmissionValidation(t *testing.T) {
	env := setupTestEnv(t)

	user := env.newUser(101)

	noLocation := basicSubmission("Cafe G")
	delete(noLocation, "location")
	if _, err := user.submitRestaurant(noLocation); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("missing location should be rejected, got %v", err)
	}

	noHours := basicSubmission("Cafe G")
	delete(noHours, "opening_time")
	if _, err := user.submitRestaurant(noHours); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("missing opening_time should be rejected, got %v", err)
	}

	badType := basicSubmission("Cafe G")
	badType["establishment_type"] = "food_truck"
	if _, err := user.submitRestaurant(badType); statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("unknown establishment type should be rejected, got %v", err)
	}

	badRange := basicSubmission("Cafe G")
	badRange["opening_time"] = map[string]string{"start": "22:00", "end": "06:00"}
	if _, err := user.submitRestaurant(badRange); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("inverted time range should be rejected, got %v", err)
	}

	badFormat := basicSubmission("Cafe G")
	badFormat["lunch_time"] = map[string]string{"start": "11am", "end": "14:00"}
	if _, err := user.submitRestaurant(badFormat); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("malformed time should be rejected, got %v", err)
	}
}

func TestListSubmissions(t *testing.T) {
	env := setupTestEnv(t)

	user1 := env.newUser(101)
	user2 := env.newUser(102)
	admin := env.newAdmin(999)

	if _, err := user1.submitRestaurant(basicSubmission("Cafe H")); err != nil {
		t.Fatal(err)
	}
	if _, err := user2.submitRestaurant(basicSubmission("Cafe I")); err != nil {
		t.Fatal(err)
	}

	var ownSubmissions []map[string]interface{}
	if err := user1.Get("/restaurants/requests").Do(&ownSubmissions); err != nil {
		t.Fatal(err)
	}
	if len(ownSubmissions) != 1 {
		t.Fatalf("users should only see their own submissions, got %d", len(ownSubmissions))
	}

	var allSubmissions []map[string]interface{}
	if err := admin.Get("/restaurants/requests").Do(&allSubmissions); err != nil {
		t.Fatal(err)
	}
	if len(allSubmissions) != 2 {
		t.Fatalf("admins should see all submissions, got %d", len(allSubmissions))
	}
}

func TestUnknownUserRejected(t *testing.T) {
	env := setupTestEnv(t)

	stranger := client{api: env.api, userId: 555}
	if _, err := stranger.submitRestaurant(basicSubmission("Cafe J")); statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("unknown users should be rejected, got %v", err)
	}

	anon := env.anonClient()
	if _, err := anon.submitRestaurant(basicSubmission("Cafe J")); statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("missing user id should be rejected, got %v", err)
	}
}

func TestIdentityFailureClosesAdminActions(t *testing.T) {
	env := setupTestEnv(t)

	user := env.newUser(101)
	admin := env.newAdmin(999)

	requestId, err := user.submitRestaurant(basicSubmission("Cafe K"))
	if err != nil {
		t.Fatal(err)
	}

	env.oracle.fail = true

	if _, err := admin.approve(requestId); statusOf(err) != http.StatusInternalServerError {
		t.Fatalf("identity failure should surface as an error, not grant access, got %v", err)
	}

	env.oracle.fail = false

	if _, err := admin.approve(requestId); err != nil {
		t.Fatal(err)
	}
}
