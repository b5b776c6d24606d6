package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/ratelimit"
)

// ProcessVideoPath is the HTTP route of the processing entry point.
const ProcessVideoPath = "/v1/process-video"

// maxResponseBytes bounds the response document read from the processor.
const maxResponseBytes = 8 << 20

// StatusError is returned when the processor answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("processor returned HTTP %d: %s", e.Code, e.Body)
}

// HTTPStatusCode exposes the status for error classification.
func (e *StatusError) HTTPStatusCode() int { return e.Code }

// HTTPDialer talks to the processor over HTTP/JSON.
type HTTPDialer struct {
	baseURL string
	timeout time.Duration
	limiter *ratelimit.Limiter
}

// NewHTTPDialer creates a dialer for baseURL. A zero timeout leaves the
// deadline to the caller's context.
func NewHTTPDialer(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter) *HTTPDialer {
	return &HTTPDialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		limiter: limiter,
	}
}

// Transport implements Dialer.
func (d *HTTPDialer) Transport() string { return TransportHTTP }

// Dial returns a session backed by its own transport, so closing it drops
// every connection the attempt opened.
func (d *HTTPDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
	}
	return &httpConn{
		client:  &http.Client{Transport: transport, Timeout: d.timeout},
		url:     d.baseURL + ProcessVideoPath,
		baseURL: d.baseURL,
		limiter: d.limiter,
	}, nil
}

type httpConn struct {
	client  *http.Client
	url     string
	baseURL string
	limiter *ratelimit.Limiter
}

func (c *httpConn) ProcessVideo(ctx context.Context, job domain.JobDescriptor) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return nil, domain.NewInvocationError("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewInvocationError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.NewConnectionError(c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewConnectionError(c.baseURL, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(bytes.TrimSpace(raw), 256)}
	}
	return raw, nil
}

func (c *httpConn) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// NewHTTPHandler exposes h over HTTP/JSON.
func NewHTTPHandler(h Handler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post(ProcessVideoPath, func(w http.ResponseWriter, req *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(req.Body, maxResponseBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read request body"})
			return
		}
		job, err := decodeJob(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		result, err := h.ProcessVideo(req.Context(), job)
		if err != nil {
			logger.Error().Err(err).
				Str("request_id", middleware.GetReqID(req.Context())).
				Str("input_path", job.InputPath).
				Msg("processing failed")
			code := http.StatusInternalServerError
			if errors.Is(err, domain.ErrInvalidInput) {
				code = http.StatusBadRequest
			}
			writeJSON(w, code, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	return r
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
