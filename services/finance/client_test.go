package financesvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PaymentStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  string
		wantErr     bool
		unavailable bool
	}{
		{
			name:       "paid",
			status:     http.StatusOK,
			body:       `{"statusCode":200,"success":true,"message":"ok","data":{"month":"2024-03","status":"paid","amount":500,"paid":500,"currency":"EGP"}}`,
			wantStatus: "paid",
		},
		{
			name:       "month defaults to the requested one",
			status:     http.StatusOK,
			body:       `{"statusCode":200,"success":true,"data":{"status":"unpaid","amount":500}}`,
			wantStatus: "unpaid",
		},
		{
			name:    "not found",
			status:  http.StatusNotFound,
			body:    `{"statusCode":404,"success":false,"message":"student not found","data":null}`,
			wantErr: true,
		},
		{
			name:    "unsuccessful envelope",
			status:  http.StatusOK,
			body:    `{"statusCode":200,"success":false,"message":"nope"}`,
			wantErr: true,
		},
		{
			name:    "invalid body",
			status:  http.StatusOK,
			body:    `<html>`,
			wantErr: true,
		},
		{
			name:        "server error",
			status:      http.StatusBadGateway,
			body:        `bad gateway`,
			wantErr:     true,
			unavailable: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/students/s-1/payments", r.URL.Path)
				assert.Equal(t, "2024-03", r.URL.Query().Get("month"))
				assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL+"/", "key", srv.Client())
			got, err := client.PaymentStatus(context.Background(), "s-1", "2024-03")
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, tc.unavailable, errors.Is(err, ErrUnavailable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, got.Status)
			assert.Equal(t, "2024-03", got.Month)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewClient(url, "", nil).PaymentStatus(context.Background(), "s-1", "2024-03")
		assert.True(t, errors.Is(err, ErrUnavailable))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewClient("http://finance.test", "", nil).PaymentStatus(ctx, "s-1", "2024-03")
		assert.Equal(t, context.Canceled, err)
	})
}
