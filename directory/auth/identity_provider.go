package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"meal_directory/directory/schema"

	"gorm.io/gorm"
)

var (
	ErrUnknownUser     = errors.New("user is not a recognized account")
	ErrMissingUserId   = errors.New("missing X-User-ID header")
	ErrIdentityFailure = errors.New("identity service lookup failed")
)

type UserInfo struct {
	Id    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// IdentityOracle is the campus user service. Lookup failures must surface as
// errors, never as a default answer; admin checks fail closed on error.
type IdentityOracle interface {
	LookupUser(ctx context.Context, userId int64) (UserInfo, error)

	IsGlobalAdmin(ctx context.Context, userId int64) (bool, error)
}

type requestContextKey string

const UserRequestContextKey requestContextKey = "user"

func UserFromContext(r *http.Request) (schema.User, error) {
	user, ok := r.Context().Value(UserRequestContextKey).(schema.User)
	if !ok {
		return schema.User{}, errors.New("unable to retrieve user from request context")
	}
	return user, nil
}

// GetOrCreateUser materializes a local row for an externally issued id the
// first time it is referenced, either by the id's own request or by another
// user naming it. A concurrent insert of the same id is resolved by
// re-reading.
func GetOrCreateUser(ctx context.Context, userId int64, db *gorm.DB, oracle IdentityOracle) (schema.User, error) {
	user, err := schema.GetUser(userId, db)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, schema.ErrUserNotFound) {
		return schema.User{}, err
	}

	info, err := oracle.LookupUser(ctx, userId)
	if err != nil {
		return schema.User{}, err
	}

	user = schema.User{Id: info.Id}
	result := db.Create(&user)
	if result.Error != nil {
		existing, readErr := schema.GetUser(userId, db)
		if readErr == nil {
			return existing, nil
		}
		slog.Error("sql error creating user on first reference", "user_id", userId, "error", result.Error)
		return schema.User{}, schema.ErrDbAccessFailed
	}

	slog.Info("materialized user from identity service", "user_id", userId)
	return user, nil
}

// RequireUser authenticates the X-User-ID header set by the campus gateway and
// stores the local user row in the request context.
func RequireUser(db *gorm.DB, oracle IdentityOracle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("X-User-ID")
			if header == "" {
				http.Error(w, ErrMissingUserId.Error(), http.StatusUnauthorized)
				return
			}

			userId, err := strconv.ParseInt(header, 10, 64)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid X-User-ID header '%v'", header), http.StatusBadRequest)
				return
			}

			user, err := GetOrCreateUser(r.Context(), userId, db, oracle)
			if err != nil {
				if errors.Is(err, ErrUnknownUser) {
					http.Error(w, err.Error(), http.StatusUnauthorized)
					return
				}
				slog.Error("error resolving request user", "user_id", userId, "error", err)
				http.Error(w, ErrIdentityFailure.Error(), http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(hfn)
	}
}

// AdminOnly gates a route on IsAdmin. Oracle errors surface as 500s rather
// than granting or denying silently.
func AdminOnly(oracle IdentityOracle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			admin, err := IsAdmin(r.Context(), user, oracle)
			if err != nil {
				slog.Error("admin check failed", "user_id", user.Id, "error", err)
				http.Error(w, ErrIdentityFailure.Error(), http.StatusInternalServerError)
				return
			}

			if !admin {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
