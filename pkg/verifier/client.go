// Package verifier is the client for the email verification backend's REST API.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/verify-cli/internal/extract"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/resilience"
)

// Default base URL for a locally running backend.
const defaultBaseURL = "http://localhost:8080"

// DefaultFetchLimit is the page size used when fetching a finished job's results.
const DefaultFetchLimit = 100000

// Client defines the verification backend operations.
type Client interface {
	SubmitBulk(ctx context.Context, emails []string, level model.Level) (string, error)
	GetJobStatus(ctx context.Context, id string) (*model.Job, error)
	FetchResults(ctx context.Context, id string, limit int) ([]model.EmailResult, error)
	VerifySingle(ctx context.Context, email string, level model.Level) (*model.VerificationResult, error)
	NetworkPreflight(ctx context.Context) (*model.Preflight, error)
}

// Downloader streams a finished job's CSV export.
type Downloader interface {
	Download(ctx context.Context, id string, w io.Writer) (int64, error)
}

// BulkRequest is the body for POST /v1/bulk.
type BulkRequest struct {
	Emails []string    `json:"emails"`
	Level  model.Level `json:"level"`
}

// BulkResponse is the response from POST /v1/bulk.
type BulkResponse struct {
	ID    string `json:"id"`
	Total int    `json:"total"`
}

// BulkStatusResponse is the response from GET /v1/bulk/{id}.
type BulkStatusResponse struct {
	Job *model.Job `json:"job"`
}

// ResultsResponse is the response from GET /v1/bulk/{id}/results.
type ResultsResponse struct {
	JobID   string              `json:"job_id"`
	Offset  int                 `json:"offset"`
	Limit   int                 `json:"limit"`
	Total   int                 `json:"total"`
	Results []model.EmailResult `json:"results"`
}

// VerifyRequest is the body for POST /v1/verify.
type VerifyRequest struct {
	Email string      `json:"email"`
	Level model.Level `json:"level"`
}

// APIError is returned when the backend responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("verifier: HTTP %d: %s", e.StatusCode, e.Message)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second. Zero or negative disables it.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new verification backend client. apiKey may be empty
// for backends that do not require one.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SubmitBulk(ctx context.Context, emails []string, level model.Level) (string, error) {
	if len(emails) == 0 {
		return "", extract.ErrNoEmails
	}
	if !level.Valid() {
		return "", eris.Errorf("verifier: invalid level %d", level)
	}

	var resp BulkResponse
	if err := c.post(ctx, "/v1/bulk", BulkRequest{Emails: emails, Level: level}, &resp); err != nil {
		return "", eris.Wrap(err, "verifier: submit bulk")
	}
	if resp.ID == "" {
		return "", eris.New("verifier: submit bulk: empty job id")
	}
	return resp.ID, nil
}

func (c *httpClient) GetJobStatus(ctx context.Context, id string) (*model.Job, error) {
	var resp BulkStatusResponse
	if err := c.get(ctx, "/v1/bulk/"+url.PathEscape(id), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("verifier: get job status %s", id))
	}
	if resp.Job == nil {
		return nil, eris.Errorf("verifier: get job status %s: missing job", id)
	}
	if resp.Job.ID == "" {
		resp.Job.ID = id
	}
	return resp.Job, nil
}

func (c *httpClient) FetchResults(ctx context.Context, id string, limit int) ([]model.EmailResult, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	path := fmt.Sprintf("/v1/bulk/%s/results?limit=%s", url.PathEscape(id), strconv.Itoa(limit))

	var resp ResultsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("verifier: fetch results %s", id))
	}
	if resp.Total > len(resp.Results) {
		zap.L().Warn("fetched results truncated",
			zap.String("job_id", id),
			zap.Int("total", resp.Total),
			zap.Int("returned", len(resp.Results)),
			zap.Int("limit", limit),
		)
	}
	return resp.Results, nil
}

func (c *httpClient) VerifySingle(ctx context.Context, email string, level model.Level) (*model.VerificationResult, error) {
	if email == "" {
		return nil, eris.New("verifier: email is required")
	}
	if !level.Valid() {
		return nil, eris.Errorf("verifier: invalid level %d", level)
	}

	var resp model.VerificationResult
	if err := c.post(ctx, "/v1/verify", VerifyRequest{Email: email, Level: level}, &resp); err != nil {
		return nil, eris.Wrap(err, "verifier: verify")
	}
	return &resp, nil
}

func (c *httpClient) NetworkPreflight(ctx context.Context) (*model.Preflight, error) {
	var resp model.Preflight
	if err := c.get(ctx, "/v1/network-check", &resp); err != nil {
		return nil, eris.Wrap(err, "verifier: network check")
	}
	return &resp, nil
}

// Download copies GET /v1/bulk/{id}/download into w and returns the byte count.
func (c *httpClient) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/bulk/"+url.PathEscape(id)+"/download", nil)
	if err != nil {
		return 0, eris.Wrap(err, "create request")
	}
	c.authorize(req)

	resp, err := c.send(req)
	if err != nil {
		return 0, eris.Wrap(err, fmt.Sprintf("verifier: download %s", id))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return 0, eris.Wrap(statusError(resp.StatusCode, data), fmt.Sprintf("verifier: download %s", id))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, eris.Wrap(err, fmt.Sprintf("verifier: download %s", id))
	}
	return n, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	c.authorize(req)

	return c.do(req, out)
}

func (c *httpClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *httpClient) send(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, eris.Wrap(err, "rate limit wait")
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	return resp, nil
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}

func statusError(status int, body []byte) error {
	apiErr := &APIError{
		StatusCode: status,
		Message:    errorMessage(body),
	}
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(apiErr, status)
	}
	return apiErr
}

// errorMessage extracts the backend's {"error": "..."} code, falling back to
// the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return string(bytes.TrimSpace(body))
}
