package dial

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultAPIVersion is the Azure-style api-version appended to every call.
	DefaultAPIVersion = "2025-01-01-preview"

	apiKeyHeader = "Api-Key"

	sseDataPrefix = "data:"
	sseDoneMarker = "[DONE]"
)

// Client talks to a DIAL core: chat completions (streaming and plain),
// embeddings and the per-bucket file storage. Credentials are per call,
// not per client, so one Client serves every end user of the process.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIVersion overrides the api-version query parameter. An empty
// version disables the parameter entirely.
func WithAPIVersion(version string) Option {
	return func(c *Client) { c.apiVersion = version }
}

// WithLogger attaches a logger used for wire-level diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a Client for the DIAL core at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: DefaultAPIVersion,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// endpoint joins path segments under the base URL. Segments are escaped
// individually so a deployment name from the request cannot reshape the
// upstream path.
func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, part := range parts {
		escaped[i] = url.PathEscape(part)
	}
	u := c.baseURL + "/" + strings.Join(escaped, "/")
	if c.apiVersion != "" {
		u += "?api-version=" + url.QueryEscape(c.apiVersion)
	}
	return u
}

func (c *Client) postJSON(ctx context.Context, apiKey, endpoint string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dial request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("dial: upstream status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("dial: upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// ChatStream runs a streaming chat completion against the deployment and
// invokes fn for every received chunk in arrival order. A non-nil error
// from fn aborts the stream and is returned as is.
func (c *Client) ChatStream(ctx context.Context, deployment, apiKey string, req ChatRequest, fn func(Chunk) error) error {
	req.Stream = true
	resp, err := c.postJSON(ctx, apiKey, c.endpoint("openai", "deployments", deployment, "chat", "completions"), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
		if payload == sseDoneMarker {
			return nil
		}
		var chunk Chunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Dropping an event would silently lose content or tool-call
			// fragments; a stream the client cannot parse is unusable.
			c.logger.Error().Err(err).Str("deployment", deployment).Msg("malformed stream event")
			return fmt.Errorf("malformed stream event: %w", err)
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// Chat runs a non-streaming chat completion against the deployment.
func (c *Client) Chat(ctx context.Context, deployment, apiKey string, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	resp, err := c.postJSON(ctx, apiKey, c.endpoint("openai", "deployments", deployment, "chat", "completions"), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

type embeddingsRequest struct {
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embeddings embeds the inputs with the given deployment and returns one
// vector per input, in input order.
func (c *Client) Embeddings(ctx context.Context, deployment, apiKey string, input []string) ([][]float64, error) {
	if len(input) == 0 {
		return nil, nil
	}
	resp, err := c.postJSON(ctx, apiKey, c.endpoint("openai", "deployments", deployment, "embeddings"), embeddingsRequest{Input: input})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	vectors := make([][]float64, len(input))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embeddings: index %d out of range for %d inputs", item.Index, len(input))
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embeddings: missing vector for input %d", i)
		}
	}
	return vectors, nil
}
