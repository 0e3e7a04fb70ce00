package runpod

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

	"skinstudio/internal/domain"
	"skinstudio/internal/infra"
)

// ErrMissingCredentials indicates that the client was configured without an
// endpoint id or api key.
var ErrMissingCredentials = errors.New("runpod: endpoint id and api key are required")

// ErrAmbiguousResult is returned by FetchResult when a completed job carries no
// recognizable image locator.
var ErrAmbiguousResult = errors.New("runpod: enhanced image url not found in output")

const maxErrorBody = 2048

// Options configures the RunPod serverless client.
type Options struct {
	BaseURL       string
	EndpointID    string
	APIKey        string
	SubmitTimeout time.Duration
	StatusTimeout time.Duration
	HTTPClient    *http.Client
	Logger        *infra.Logger
}

// Client submits enhancement jobs to a RunPod serverless endpoint and polls
// their status.
type Client struct {
	baseURL       string
	endpointID    string
	apiKey        string
	submitTimeout time.Duration
	statusTimeout time.Duration
	httpClient    *http.Client
	logger        *infra.Logger
}

// Error describes a failed call to the provider. It matches
// domain.ErrUpstreamUnavailable with errors.Is.
type Error struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("runpod %s: http %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("runpod %s: http %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("runpod %s: %v", e.Op, e.Err)
	default:
		return "runpod " + e.Op + ": failed"
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrUpstreamUnavailable}
	}
	return []error{domain.ErrUpstreamUnavailable, e.Err}
}

// SubmitResult is the provider's acknowledgement of a new job.
type SubmitResult struct {
	JobID  string
	Status string
}

type runRequest struct {
	Input runInput `json:"input"`
}

type runInput struct {
	ImageID     string               `json:"image_id"`
	FaceParsing domain.FeatureConfig `json:"face_parsing"`
}

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type statusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.runpod.ai/v2"
	}
	submitTimeout := opts.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 30 * time.Second
	}
	statusTimeout := opts.StatusTimeout
	if statusTimeout <= 0 {
		statusTimeout = 15 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:       baseURL,
		endpointID:    strings.TrimSpace(opts.EndpointID),
		apiKey:        strings.TrimSpace(opts.APIKey),
		submitTimeout: submitTimeout,
		statusTimeout: statusTimeout,
		httpClient:    httpClient,
		logger:        infra.LoggerOrDiscard(opts.Logger),
	}
}

// Configured reports whether the client can perform remote calls.
func (c *Client) Configured() bool {
	return c != nil && c.endpointID != "" && c.apiKey != ""
}

// Submit starts an enhancement job for imageID. The call is not retried.
func (c *Client) Submit(ctx context.Context, imageID string, config domain.FeatureConfig) (*SubmitResult, error) {
	if !c.Configured() {
		return nil, &Error{Op: "submit", Err: ErrMissingCredentials}
	}
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return nil, fmt.Errorf("%w: image id is required", domain.ErrValidation)
	}
	if config == nil {
		config = DefaultFeatureConfig()
	}
	body, err := json.Marshal(runRequest{Input: runInput{ImageID: imageID, FaceParsing: config}})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL("run"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out runResponse
	if err := c.do(req, "submit", &out); err != nil {
		c.logger.Warn().Err(err).Str("image_id", imageID).Msg("runpod submit failed")
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, &Error{Op: "submit", Err: errors.New("response missing job id")}
	}
	status := out.Status
	if status == "" {
		status = "IN_QUEUE"
	}
	c.logger.Info().Str("image_id", imageID).Str("job_id", out.ID).Str("status", status).Msg("runpod job submitted")
	return &SubmitResult{JobID: out.ID, Status: status}, nil
}

// Poll queries the provider for jobID. When the poll itself fails the returned
// result is a transient processing state alongside the error.
func (c *Client) Poll(ctx context.Context, jobID string) (PollResult, error) {
	if !c.Configured() {
		err := &Error{Op: "status", Err: ErrMissingCredentials}
		return transientResult(err), err
	}

	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL("status/"+jobID), nil)
	if err != nil {
		return transientResult(err), err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out statusResponse
	if err := c.do(req, "status", &out); err != nil {
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("runpod status check failed")
		return transientResult(err), err
	}

	res := interpret(out)
	c.logger.Debug().
		Str("job_id", jobID).
		Str("provider_status", out.Status).
		Str("state", string(res.State)).
		Msg("runpod status mapped")
	return res, nil
}

// FetchResult polls jobID and returns the enhanced image locator once the job
// has completed.
func (c *Client) FetchResult(ctx context.Context, jobID string) (string, error) {
	res, err := c.Poll(ctx, jobID)
	if err != nil {
		return "", err
	}
	if res.State != domain.JobStateCompleted {
		return "", fmt.Errorf("%w: current status %s", domain.ErrNotCompleted, res.State)
	}
	if res.Result.Ambiguous || res.Result.URL == "" {
		return "", ErrAmbiguousResult
	}
	return res.Result.URL, nil
}

func (c *Client) endpointURL(path string) string {
	return c.baseURL + "/" + c.endpointID + "/" + path
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// DefaultFeatureConfig returns the face regions enhanced when the caller does
// not choose.
func DefaultFeatureConfig() domain.FeatureConfig {
	return domain.FeatureConfig{
		"background": false,
		"skin":       true,
		"nose":       true,
		"eye_g":      true,
		"r_eye":      true,
		"l_eye":      true,
		"r_brow":     true,
		"l_brow":     true,
		"r_ear":      false,
		"l_ear":      false,
		"mouth":      true,
		"u_lip":      true,
		"l_lip":      true,
		"hair":       true,
		"hat":        false,
		"ear_r":      false,
		"neck_l":     false,
		"neck":       false,
		"cloth":      false,
	}
}
