package auth

import (
	"context"
	"errors"
	"fmt"

	"meal_directory/directory/schema"

	"gorm.io/gorm"
)

// ErrPermissionDenied means the target exists but the actor may not touch it.
// Callers map it to 403, never 404.
var ErrPermissionDenied = errors.New("permission denied")

type submissionAction string // Private so that no other actions can be defined

const (
	ViewSubmission    submissionAction = "view"
	DeleteSubmission  submissionAction = "delete"
	ApproveSubmission submissionAction = "approve"
	RejectSubmission  submissionAction = "reject"
)

// IsAdmin is true for the service-local meal admin flag or for a global admin
// per the identity oracle. An oracle failure is returned to the caller; it is
// never treated as admin.
func IsAdmin(ctx context.Context, user schema.User, oracle IdentityOracle) (bool, error) {
	if user.MealAdmin {
		return true, nil
	}

	admin, err := oracle.IsGlobalAdmin(ctx, user.Id)
	if err != nil {
		return false, fmt.Errorf("global admin lookup for user %v: %w", user.Id, err)
	}
	return admin, nil
}

// CanActOnRestaurant allows the owner, any manager, and admins. It gates
// restaurant deletion and all meal mutation.
func CanActOnRestaurant(ctx context.Context, user schema.User, restaurant schema.Restaurant, db *gorm.DB, oracle IdentityOracle) (bool, error) {
	if restaurant.Owner == user.Id {
		return true, nil
	}

	manager, err := schema.IsRestaurantManager(restaurant.Id, user.Id, db)
	if err != nil {
		return false, err
	}
	if manager {
		return true, nil
	}

	return IsAdmin(ctx, user, oracle)
}

// CanActOnSubmission resolves view/delete/approve/reject for one actor.
// Delete is submitter-or-admin and additionally requires pending status;
// approve and reject are admin only.
func CanActOnSubmission(ctx context.Context, user schema.User, submission schema.RestaurantSubmission, action submissionAction, oracle IdentityOracle) (bool, error) {
	switch action {
	case ViewSubmission:
		if submission.Submitter == user.Id {
			return true, nil
		}
		return IsAdmin(ctx, user, oracle)

	case DeleteSubmission:
		if submission.Status != schema.StatusPending {
			return false, nil
		}
		if submission.Submitter == user.Id {
			return true, nil
		}
		return IsAdmin(ctx, user, oracle)

	case ApproveSubmission, RejectSubmission:
		return IsAdmin(ctx, user, oracle)

	default:
		return false, fmt.Errorf("unknown submission action '%v'", action)
	}
}
