// Package financesvc reads the monthly payment status of students from the finance service.
package financesvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/chuo/core/student"
)

const defaultTimeout = 10 * time.Second

// ErrUnavailable is returned when the finance service cannot be reached or fails.
var ErrUnavailable = errors.New("finance service unavailable")

// envelope is the response body of the finance service.
type envelope struct {
	StatusCode int                   `json:"statusCode"`
	Data       student.PaymentStatus `json:"data"`
	Message    string                `json:"message"`
	Success    bool                  `json:"success"`
}

type Client struct {
	baseURL string
	apiKey  string
	rest    *rest.Client
}

var _ student.PaymentStatusSource = (*Client)(nil) // interface compliance check

// NewClient returns a client of the finance service at baseURL. A nil httpClient uses a 10s timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	vala.BeginValidation().Validate(
		vala.StringNotEmpty(baseURL, "baseURL"),
	).CheckAndPanic()

	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		rest:    &rest.Client{HTTPClient: httpClient},
	}
}

// PaymentStatus fetches GET /students/:id/payments?month=2006-01.
func (c *Client) PaymentStatus(ctx context.Context, studentID, month string) (student.PaymentStatus, error) {
	if err := ctx.Err(); err != nil {
		return student.PaymentStatus{}, err
	}

	req := rest.Request{
		Method:      rest.Get,
		BaseURL:     c.baseURL + "/students/" + url.PathEscape(studentID) + "/payments",
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: map[string]string{"month": month},
	}
	if c.apiKey != "" {
		req.Headers["Authorization"] = "Bearer " + c.apiKey
	}

	res, err := c.rest.Send(req)
	if err != nil {
		return student.PaymentStatus{}, errors.Wrap(ErrUnavailable, err.Error())
	}

	var env envelope
	if err = json.Unmarshal([]byte(res.Body), &env); err != nil && res.StatusCode < http.StatusBadRequest {
		return student.PaymentStatus{}, errors.Wrap(err, "decoding payment status")
	}
	if res.StatusCode >= http.StatusBadRequest || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		if res.StatusCode >= http.StatusInternalServerError {
			return student.PaymentStatus{}, errors.Wrap(ErrUnavailable, msg)
		}
		return student.PaymentStatus{}, errors.Errorf("fetching payment status: %s", msg)
	}

	status := env.Data
	if status.Month == "" {
		status.Month = month
	}
	return status, nil
}
