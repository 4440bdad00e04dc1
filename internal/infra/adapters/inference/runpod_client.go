package inference

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

	"uvian-worker/internal/config"
	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/ports/adapter"
)

// Compile-time assurance this client satisfies the port
var _ adapter.InferenceBackend = (*RunPodClient)(nil)

// RunPodClient talks to a RunPod serverless endpoint: POST /run, then
// GET /stream/{id} until the job is done.
type RunPodClient struct {
	apiKey        string
	base          string // e.g., https://api.runpod.ai/v2/{endpoint_id}
	maxTokens     int
	submitTimeout time.Duration
	pollTimeout   time.Duration
	client        *http.Client
}

func NewRunPodClient(cfg config.RunPodConfig, maxTokens int) (*RunPodClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("runpod api key empty")
	}
	if cfg.EndpointID == "" {
		return nil, errors.New("runpod endpoint id empty")
	}
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &RunPodClient{
		apiKey:        cfg.APIKey,
		base:          strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.EndpointID,
		maxTokens:     maxTokens,
		submitTimeout: cfg.SubmitTimeout,
		pollTimeout:   cfg.PollTimeout,
		client:        &http.Client{},
	}, nil
}

type runPodInput struct {
	Messages       []adapter.Message `json:"messages"`
	SamplingParams struct {
		MaxTokens int `json:"max_tokens"`
	} `json:"sampling_params"`
	Stream bool `json:"stream"`
}

// Submit posts the job. The long timeout absorbs worker cold starts.
func (c *RunPodClient) Submit(ctx context.Context, req adapter.ChatRequest) (string, error) {
	in := runPodInput{Messages: req.Messages, Stream: true}
	in.SamplingParams.MaxTokens = c.maxTokens
	if req.MaxTokens > 0 {
		in.SamplingParams.MaxTokens = req.MaxTokens
	}
	body, err := json.Marshal(struct {
		Input runPodInput `json:"input"`
	}{Input: in})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	ctx, cancel := withTimeout(ctx, c.submitTimeout)
	defer cancel()

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.base+"/run", body, "submit", &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("submit: response carried no job id")
	}
	return out.ID, nil
}

func (c *RunPodClient) Poll(ctx context.Context, upstreamID string) (*adapter.PollResult, error) {
	ctx, cancel := withTimeout(ctx, c.pollTimeout)
	defer cancel()

	var out adapter.PollResult
	if err := c.do(ctx, http.MethodGet, c.base+"/stream/"+upstreamID, nil, "poll", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RunPodClient) do(ctx context.Context, method, url string, body []byte, op string, dst any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.UpstreamStatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
