package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/five82/reel/internal/logging"
)

// JobAPI is the subset of the backend used to follow jobs. It is implemented
// by *Client and can be faked in tests.
type JobAPI interface {
	FetchJobStatus(ctx context.Context, jobID string) (JobStatus, error)
	FetchQueueStats(ctx context.Context) (QueueStats, error)
}

// UploadAPI is the chunked upload contract.
type UploadAPI interface {
	InitUpload(ctx context.Context, req InitUploadRequest) (UploadSession, error)
	UploadChunk(ctx context.Context, uploadID string, index int, data []byte) (ChunkReceipt, error)
	FinalizeUpload(ctx context.Context, uploadID string) (UploadResult, error)
}

// Ensure Client implements both contracts at compile time.
var (
	_ JobAPI    = (*Client)(nil)
	_ UploadAPI = (*Client)(nil)
)

// ErrCircuitOpen is returned while the backend is considered unavailable.
var ErrCircuitOpen = errors.New("backend unavailable: circuit open")

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.Code)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Options tune the client. Zero values use defaults.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
	HTTPClient        *http.Client
	Logger            *log.Logger
}

// Client talks to the clip service HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]byte]
	logger    *log.Logger
}

const (
	defaultBaseURL         = "http://127.0.0.1:8000"
	defaultUserAgent       = "reel/0.1"
	requestTimeout         = 10 * time.Second
	defaultRequestsPerSec  = 20
	defaultBurst           = 10
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 15 * time.Second
	maxErrorBody           = 4 << 10
)

// NewClient builds a Client for the given base URL.
func NewClient(baseURL string, opts Options) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = requestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSec
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}

	c := &Client{
		baseURL:   base,
		http:      httpClient,
		userAgent: defaultUserAgent,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		logger:    logging.Component(opts.Logger, "api"),
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "clip-service",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Client errors mean the backend is up and answering.
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// CreateJob submits a new processing job.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (JobStatus, error) {
	if strings.TrimSpace(req.Intent) == "" {
		return JobStatus{}, fmt.Errorf("intent required")
	}
	if req.UploadID == "" && req.VideoURL == "" {
		return JobStatus{}, fmt.Errorf("upload id or video url required")
	}
	raw, err := c.do(ctx, http.MethodPost, &url.URL{Path: "/api/jobs"}, req)
	if err != nil {
		return JobStatus{}, err
	}
	return normalizeJob(raw)
}

// FetchJobStatus retrieves the current status of a job.
func (c *Client) FetchJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return JobStatus{}, fmt.Errorf("job id required")
	}
	raw, err := c.do(ctx, http.MethodGet, &url.URL{Path: "/api/jobs/" + url.PathEscape(jobID)}, nil)
	if err != nil {
		return JobStatus{}, err
	}
	return normalizeJob(raw)
}

// FetchJobClips lists the clips produced by a job.
func (c *Client) FetchJobClips(ctx context.Context, jobID string) ([]Clip, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("job id required")
	}
	raw, err := c.do(ctx, http.MethodGet, &url.URL{Path: "/api/jobs/" + url.PathEscape(jobID) + "/clips"}, nil)
	if err != nil {
		return nil, err
	}
	return normalizeClips(raw)
}

// FetchQueueStats retrieves aggregate queue statistics.
func (c *Client) FetchQueueStats(ctx context.Context) (QueueStats, error) {
	raw, err := c.do(ctx, http.MethodGet, &url.URL{Path: "/api/queue/stats"}, nil)
	if err != nil {
		return QueueStats{}, err
	}
	return normalizeQueueStats(raw)
}

// FetchAgents lists backend agents and their status.
func (c *Client) FetchAgents(ctx context.Context) ([]Agent, error) {
	raw, err := c.do(ctx, http.MethodGet, &url.URL{Path: "/api/agents"}, nil)
	if err != nil {
		return nil, err
	}
	return normalizeAgents(raw)
}

// InitUpload opens a chunked upload session.
func (c *Client) InitUpload(ctx context.Context, req InitUploadRequest) (UploadSession, error) {
	raw, err := c.do(ctx, http.MethodPost, &url.URL{Path: "/api/upload/init"}, req)
	if err != nil {
		return UploadSession{}, err
	}
	var session UploadSession
	if err := json.Unmarshal(unwrap(raw, "data"), &session); err != nil {
		return UploadSession{}, fmt.Errorf("decode response: %w", err)
	}
	if session.UploadID == "" {
		return UploadSession{}, fmt.Errorf("decode response: missing upload_id")
	}
	return session, nil
}

// UploadChunk sends one chunk of an upload session.
func (c *Client) UploadChunk(ctx context.Context, uploadID string, index int, data []byte) (ChunkReceipt, error) {
	values := url.Values{}
	values.Set("upload_id", uploadID)
	values.Set("index", strconv.Itoa(index))
	rel := &url.URL{Path: "/api/upload/chunk", RawQuery: values.Encode()}
	raw, err := c.doRaw(ctx, http.MethodPost, rel, "application/octet-stream", data)
	if err != nil {
		return ChunkReceipt{}, err
	}
	var receipt ChunkReceipt
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &receipt); err != nil {
			return ChunkReceipt{}, fmt.Errorf("decode response: %w", err)
		}
	}
	return receipt, nil
}

// FinalizeUpload closes an upload session.
func (c *Client) FinalizeUpload(ctx context.Context, uploadID string) (UploadResult, error) {
	body := map[string]string{"upload_id": uploadID}
	raw, err := c.do(ctx, http.MethodPost, &url.URL{Path: "/api/upload/finalize"}, body)
	if err != nil {
		return UploadResult{}, err
	}
	var result UploadResult
	if err := json.Unmarshal(unwrap(raw, "data"), &result); err != nil {
		return UploadResult{}, fmt.Errorf("decode response: %w", err)
	}
	if result.UploadID == "" {
		result.UploadID = uploadID
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method string, rel *url.URL, body any) ([]byte, error) {
	var payload []byte
	contentType := ""
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = encoded
		contentType = "application/json"
	}
	return c.doRaw(ctx, method, rel, contentType, payload)
}

func (c *Client) doRaw(ctx context.Context, method string, rel *url.URL, contentType string, payload []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, rel, contentType, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s %s: %w", method, rel.Path, ErrCircuitOpen)
	}
	return raw, err
}

func (c *Client) roundTrip(ctx context.Context, method string, rel *url.URL, contentType string, payload []byte) ([]byte, error) {
	// Endpoint paths are appended to any path prefix on the base URL.
	reqURL := *c.baseURL
	reqURL.Path = c.baseURL.Path + rel.Path
	reqURL.RawQuery = rel.RawQuery
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method: method,
			Path:   rel.Path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) > 0 && !json.Valid(raw) {
		return nil, fmt.Errorf("decode response: invalid json from %s", rel.Path)
	}
	return raw, nil
}

func parseBaseURL(baseURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
