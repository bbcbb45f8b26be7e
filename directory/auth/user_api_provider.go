package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// UserApiOracle resolves user identities against the campus user service over
// HTTP.
type UserApiOracle struct {
	client *resty.Client
}

func NewUserApiOracle(baseUrl string) *UserApiOracle {
	client := resty.New().
		SetBaseURL(baseUrl).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)

	return &UserApiOracle{client: client}
}

func (o *UserApiOracle) LookupUser(ctx context.Context, userId int64) (UserInfo, error) {
	var info UserInfo

	res, err := o.client.R().
		SetContext(ctx).
		SetResult(&info).
		Get(fmt.Sprintf("/users/%d", userId))
	if err != nil {
		return UserInfo{}, fmt.Errorf("user service request failed: %w", err)
	}

	if res.StatusCode() == http.StatusNotFound {
		return UserInfo{}, ErrUnknownUser
	}
	if res.IsError() {
		return UserInfo{}, fmt.Errorf("user service returned status %d for user %d", res.StatusCode(), userId)
	}

	return info, nil
}

type globalAdminResponse struct {
	IsGlobalAdmin bool `json:"is_global_admin"`
}

func (o *UserApiOracle) IsGlobalAdmin(ctx context.Context, userId int64) (bool, error) {
	var body globalAdminResponse

	res, err := o.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("/users/%d/is_global_admin", userId))
	if err != nil {
		return false, fmt.Errorf("user service request failed: %w", err)
	}

	if res.IsError() {
		return false, fmt.Errorf("user service returned status %d for admin check on user %d", res.StatusCode(), userId)
	}

	return body.IsGlobalAdmin, nil
}
