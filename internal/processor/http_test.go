package processor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/ratelimit"
)

func TestHTTP_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(&Simulator{Logger: zerolog.Nop()}, zerolog.Nop()))
	defer srv.Close()

	dialer := NewHTTPDialer(srv.URL+"/", 5*time.Second, ratelimit.New(100, 1))
	assert.Equal(t, TransportHTTP, dialer.Transport())

	conn, err := dialer.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	raw, err := conn.ProcessVideo(context.Background(), demoJob(t))
	require.NoError(t, err)

	result, err := DecodeResult(raw)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "demo_tracked_demo.mov", result.OutputFile)
	assert.Equal(t,
		[]string{"input_video", "output_video", "model", "thresholds", "frames_processed", "total_collision_events", "collision_events"},
		result.ProcessingSummary.Keys())
}

func TestHTTP_StatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		job     domain.JobDescriptor
		code    int
	}{
		{
			name:    "invalid job",
			handler: &Simulator{Logger: zerolog.Nop()},
			job:     domain.JobDescriptor{InputPath: "a.mp4"},
			code:    http.StatusBadRequest,
		},
		{
			name: "handler error",
			handler: HandlerFunc(func(context.Context, domain.JobDescriptor) (*domain.JobResult, error) {
				return nil, errors.New("decoder crashed")
			}),
			code: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(NewHTTPHandler(tt.handler, zerolog.Nop()))
			defer srv.Close()

			job := tt.job
			if job.InputPath == "" {
				job = demoJob(t)
			}

			conn, err := NewHTTPDialer(srv.URL, 0, nil).Dial(context.Background())
			require.NoError(t, err)
			defer conn.Close()

			_, err = conn.ProcessVideo(context.Background(), job)
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.code, statusErr.HTTPStatusCode())
		})
	}
}

func TestHTTP_MalformedBodyIsReturnedRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	conn, err := NewHTTPDialer(srv.URL, time.Second, nil).Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	raw, err := conn.ProcessVideo(context.Background(), demoJob(t))
	require.NoError(t, err)

	_, err = DecodeResult(raw)
	assert.True(t, errors.Is(err, domain.ErrInvocation))
}

func TestHTTP_UnreachableIsConnectionError(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	conn, err := NewHTTPDialer("http://"+addr, time.Second, nil).Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ProcessVideo(context.Background(), demoJob(t))
	assert.True(t, errors.Is(err, domain.ErrConnection))
}

func TestHTTP_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHTTPHandler(&Simulator{}, zerolog.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
