package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"

	"meal_directory/directory/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type httpError struct {
	code    int
	message string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("status %d: %v", e.code, e.message)
}

// statusOf extracts the http status from an error returned by Do, or 0 if the
// error is not an http error.
func statusOf(err error) int {
	var he *httpError
	if errors.As(err, &he) {
		return he.code
	}
	return 0
}

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return &httpError{code: res.StatusCode, message: w.Body.String()}
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api    chi.Router
	userId int64
}

func (c client) request(method, endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, method, endpoint)
	if c.userId != 0 {
		r.Header("X-User-ID", strconv.FormatInt(c.userId, 10))
	}
	return r
}

func (c client) Get(endpoint string) *httpTestRequest {
	return c.request("GET", endpoint)
}

func (c client) Post(endpoint string) *httpTestRequest {
	return c.request("POST", endpoint)
}

func (c client) Patch(endpoint string) *httpTestRequest {
	return c.request("PATCH", endpoint)
}

func (c client) Delete(endpoint string) *httpTestRequest {
	return c.request("DELETE", endpoint)
}

func (c client) submitRestaurant(body map[string]interface{}) (uuid.UUID, error) {
	var res struct {
		RequestId uuid.UUID `json:"request_id"`
	}
	err := c.Post("/restaurants/requests").Json(body).Do(&res)
	return res.RequestId, err
}

func (c client) approve(requestId uuid.UUID) (uuid.UUID, error) {
	var res struct {
		RestaurantId uuid.UUID `json:"restaurant_id"`
	}
	err := c.Post(fmt.Sprintf("/restaurants/requests/%v/approval", requestId)).Do(&res)
	return res.RestaurantId, err
}

func (c client) reject(requestId uuid.UUID, message string) error {
	return c.Post(fmt.Sprintf("/restaurants/requests/%v/rejection", requestId)).
		Json(map[string]string{"message": message}).
		Do(nil)
}

func (c client) getSubmission(requestId uuid.UUID) (services.SubmissionInfo, error) {
	var info services.SubmissionInfo
	err := c.Get(fmt.Sprintf("/restaurants/requests/%v", requestId)).Do(&info)
	return info, err
}

func (c client) getRestaurant(restaurantId uuid.UUID) (services.RestaurantInfo, error) {
	var info services.RestaurantInfo
	err := c.Get(fmt.Sprintf("/restaurants/%v", restaurantId)).Do(&info)
	return info, err
}

func (c client) listRestaurants(queryString string) ([]services.RestaurantInfo, error) {
	var infos []services.RestaurantInfo
	err := c.Get("/restaurants/" + queryString).Do(&infos)
	return infos, err
}

func (c client) registerMeal(restaurantId uuid.UUID, mealType string, menu []string) (uuid.UUID, error) {
	var res struct {
		MealId uuid.UUID `json:"meal_id"`
	}
	err := c.Post(fmt.Sprintf("/meals/restaurants/%v", restaurantId)).
		Json(map[string]interface{}{"meal_type": mealType, "menu": menu}).
		Do(&res)
	return res.MealId, err
}
