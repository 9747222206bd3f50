package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stationJSON = `{
  "id": 1001,
  "name": "ENI ROMA",
  "fuels": [
    {"id": 1, "name": "Benzina", "price": 1.859, "isSelf": true, "fuelId": 1, "insertDate": "2025-09-23T06:30:00Z", "validityDate": "2025-09-23T06:30:00Z"},
    {"id": 2, "name": "Gasolio", "price": 1.699, "isSelf": false, "fuelId": 2, "insertDate": "2025-09-23T06:30:00", "validityDate": ""}
  ]
}`

func fastClient(url string, opts ...ClientOption) *Client {
	base := []ClientOption{
		WithRetryDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
	}
	return NewClient(url, append(base, opts...)...)
}

func TestClient_GetStation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/registry/station/1001", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(stationJSON))
	}))
	defer server.Close()

	rec, err := fastClient(server.URL+"/").GetStation(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), rec.ID)
	require.Len(t, rec.Fuels, 2)
	assert.Equal(t, 1.859, rec.Fuels[0].Price)
	assert.True(t, rec.Fuels[0].IsSelf)
	assert.Equal(t, int64(2), rec.Fuels[1].FuelID)
}

func TestClient_GetStation_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := fastClient(server.URL).GetStation(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestClient_GetStation_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Write([]byte(stationJSON))
		}
	}))
	defer server.Close()

	rec, err := fastClient(server.URL, WithMaxRetries(3)).GetStation(context.Background(), 1001)
	require.NoError(t, err)
	assert.NotNil(t, rec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GetStation_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := fastClient(server.URL, WithMaxRetries(2)).GetStation(context.Background(), 1001)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GetStation_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := fastClient(server.URL).GetStation(context.Background(), 1001)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GetStation_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "oops"`))
	}))
	defer server.Close()

	_, err := fastClient(server.URL).GetStation(context.Background(), 1001)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoData))
}

func TestClient_GetStation_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := fastClient(server.URL, WithTimeout(30*time.Millisecond), WithMaxRetries(0))
	start := time.Now()
	_, err := c.GetStation(context.Background(), 1001)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_TimeoutWithHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	tests := []struct {
		name string
		opts func(hc *http.Client) []ClientOption
	}{
		{
			name: "timeout after client",
			opts: func(hc *http.Client) []ClientOption {
				return []ClientOption{WithHTTPClient(hc), WithTimeout(30 * time.Millisecond)}
			},
		},
		{
			name: "timeout before client",
			opts: func(hc *http.Client) []ClientOption {
				return []ClientOption{WithTimeout(30 * time.Millisecond), WithHTTPClient(hc)}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shared := &http.Client{}
			c := fastClient(server.URL, append(tt.opts(shared), WithMaxRetries(0))...)

			start := time.Now()
			_, err := c.GetStation(context.Background(), 1001)
			require.Error(t, err)
			assert.Less(t, time.Since(start), time.Second)
			assert.Zero(t, shared.Timeout)
		})
	}
}

func TestClient_HTTPClientKeepsOwnTimeout(t *testing.T) {
	shared := &http.Client{Timeout: 3 * time.Second}
	c := NewClient("http://localhost", WithHTTPClient(shared))

	assert.Same(t, shared, c.client)
	assert.Equal(t, DefaultTimeout, NewClient("http://localhost").client.Timeout)
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := fastClient(server.URL, WithBreaker(2, time.Minute))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.GetStation(ctx, 1001)
		require.ErrorIs(t, err, ErrUnexpectedStatus)
	}
	assert.Equal(t, "open", c.BreakerState())

	_, err := c.GetStation(ctx, 1001)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := fastClient(server.URL, WithBreaker(1, time.Minute))
	for i := 0; i < 3; i++ {
		_, err := c.GetStation(context.Background(), int64(i+1))
		assert.ErrorIs(t, err, ErrNoData)
	}
	assert.Equal(t, "closed", c.BreakerState())
}
