// Package genapi talks to the remote map generation service.
package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mapgen/internal/model"
)

// ErrMissingServer indicates that the client was configured without a base URL.
var ErrMissingServer = errors.New("genapi: server url is required")

// ErrUnreachable wraps transport failures where no HTTP response arrived.
var ErrUnreachable = errors.New("genapi: service unreachable")

// Status values reported by the service for a task.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Options configures the client.
type Options struct {
	BaseURL        string
	BackendVersion string
	HTTPClient     *http.Client
	Logger         *zerolog.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the generation service contract.
type Client struct {
	baseURL        string
	backendVersion string
	httpClient     *http.Client
	logger         zerolog.Logger
}

// SubmitResult is the outcome of a submission. Silent is set when the service
// accepted the request without issuing a task id.
type SubmitResult struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId,omitempty"`
	Silent  bool   `json:"silent,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResult is one status observation.
type StatusResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PreviewsResult lists preview artifacts of a finished task.
type PreviewsResult struct {
	Success  bool                    `json:"success"`
	Previews []model.PreviewArtifact `json:"previews"`
	Error    string                  `json:"error,omitempty"`
}

// Archive is an open download stream. Callers must close Body.
type Archive struct {
	Filename string
	Size     int64 // -1 when unknown
	Body     io.ReadCloser
}

type submitPayload struct {
	Settings      model.Document `json:"settings"`
	AuxiliaryData model.Document `json:"auxiliaryData,omitempty"`
	Template      model.Document `json:"template,omitempty"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingServer
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("genapi: invalid server url %q: %w", baseURL, err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		baseURL:        baseURL,
		backendVersion: strings.TrimSpace(opts.BackendVersion),
		httpClient:     httpClient,
		logger:         logger.With().Str("component", "genapi").Logger(),
	}, nil
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// EncodeSubmit renders the JSON body of a submission. Absent optional
// documents are omitted.
func EncodeSubmit(req model.GenerateRequest) ([]byte, error) {
	if req.Settings == nil {
		req.Settings = model.Document{}
	}
	body, err := json.Marshal(submitPayload{
		Settings:      req.Settings,
		AuxiliaryData: req.AuxiliaryData,
		Template:      req.Template,
	})
	if err != nil {
		return nil, fmt.Errorf("genapi: encode request: %w", err)
	}
	return body, nil
}

// Ping checks that the service answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	raw, status, err := c.doJSON(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return statusError(status, raw)
	}
	return nil
}

// Submit starts a generation job. A 2xx reply with an empty body, or with
// success but no task id, is reported as a silent success.
func (c *Client) Submit(ctx context.Context, req model.GenerateRequest) (SubmitResult, error) {
	body, err := EncodeSubmit(req)
	if err != nil {
		return SubmitResult{}, err
	}
	raw, status, err := c.doJSON(ctx, http.MethodPost, "/api/generate", body)
	if err != nil {
		return SubmitResult{}, err
	}
	if status >= 300 {
		return SubmitResult{}, statusError(status, raw)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return SubmitResult{Success: true, Silent: true}, nil
	}
	var res SubmitResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return SubmitResult{}, fmt.Errorf("genapi: decode submit response: %w", err)
	}
	if !res.Success {
		msg := strings.TrimSpace(res.Error)
		if msg == "" {
			msg = "submission rejected"
		}
		return res, errors.New(msg)
	}
	if strings.TrimSpace(res.TaskID) == "" {
		res.Silent = true
	}
	return res, nil
}

// Status queries the task's lifecycle status.
func (c *Client) Status(ctx context.Context, taskID string) (StatusResult, error) {
	raw, status, err := c.doJSON(ctx, http.MethodGet, "/api/status/"+url.PathEscape(taskID), nil)
	if err != nil {
		return StatusResult{}, err
	}
	if status >= 300 {
		return StatusResult{}, statusError(status, raw)
	}
	var res StatusResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return StatusResult{}, fmt.Errorf("genapi: decode status response: %w", err)
	}
	res.Status = strings.ToLower(strings.TrimSpace(res.Status))
	return res, nil
}

// Previews lists the preview artifacts of a completed task. Relative artifact
// URLs are resolved against the service root.
func (c *Client) Previews(ctx context.Context, taskID string) (PreviewsResult, error) {
	raw, status, err := c.doJSON(ctx, http.MethodGet, "/api/previews/"+url.PathEscape(taskID), nil)
	if err != nil {
		return PreviewsResult{}, err
	}
	if status >= 300 {
		return PreviewsResult{}, statusError(status, raw)
	}
	var res PreviewsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return PreviewsResult{}, fmt.Errorf("genapi: decode previews response: %w", err)
	}
	if !res.Success {
		msg := strings.TrimSpace(res.Error)
		if msg == "" {
			msg = "previews unavailable"
		}
		return res, errors.New(msg)
	}
	for i := range res.Previews {
		res.Previews[i].URL = c.resolve(res.Previews[i].URL)
	}
	return res, nil
}

// Download opens the task's output archive as a stream.
func (c *Client) Download(ctx context.Context, taskID string) (*Archive, error) {
	req, requestID, err := c.newRequest(ctx, http.MethodGet, "/api/download/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, statusError(resp.StatusCode, raw)
	}
	name := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = taskID + ".zip"
	}
	c.logger.Debug().
		Str("request_id", requestID).
		Str("task_id", taskID).
		Str("filename", name).
		Int64("size", resp.ContentLength).
		Msg("download stream opened")
	return &Archive{Filename: name, Size: resp.ContentLength, Body: resp.Body}, nil
}

func (c *Client) doJSON(ctx context.Context, method, p string, body []byte) ([]byte, int, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, requestID, err := c.newRequest(ctx, method, p, rdr)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("genapi: read response: %w", err)
	}
	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", p).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("service call")
	return raw, resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method, p string, body io.Reader) (*http.Request, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, body)
	if err != nil {
		return nil, "", fmt.Errorf("genapi: build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if c.backendVersion != "" {
		req.Header.Set("X-Backend-Version", c.backendVersion)
	}
	return req, requestID, nil
}

func (c *Client) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusError(status int, raw []byte) error {
	var detail errorBody
	if err := json.Unmarshal(raw, &detail); err == nil {
		if msg := strings.TrimSpace(detail.Error); msg != "" {
			return fmt.Errorf("genapi: %s (status %d)", msg, status)
		}
		if msg := strings.TrimSpace(detail.Message); msg != "" {
			return fmt.Errorf("genapi: %s (status %d)", msg, status)
		}
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		text = http.StatusText(status)
	}
	return fmt.Errorf("genapi: status %d: %s", status, text)
}

func filenameFromDisposition(v string) string {
	if v == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	name := path.Base(strings.ReplaceAll(params["filename"], "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
