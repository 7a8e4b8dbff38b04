// Package client talks to the source management API over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"sourcectl/internal/domain"
	"sourcectl/internal/observability"
)

// ErrNotFound matches any *APIError with status 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Detail != "" {
		return fmt.Sprintf("api error (status %d): %s - %s", e.Status, msg, e.Detail)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, msg)
}

// Is reports whether target is ErrNotFound and the status is 404.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	ServerURL string
	Token     string
	Timeout   time.Duration
	// RateLimit is the maximum number of requests per second; 0 disables
	// client-side throttling.
	RateLimit float64
	// HTTPClient is the base client; the bearer token is added on top.
	HTTPClient *http.Client
	Logger     observability.Logger
}

// Client implements the collaborator contracts of the source editor. It
// does not retry; failed calls are returned to the caller.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  observability.Logger
}

// New creates a client for the server at opts.ServerURL.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(opts.ServerURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", opts.ServerURL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}

	base := &http.Client{}
	if opts.HTTPClient != nil {
		cpy := *opts.HTTPClient
		base = &cpy
	}
	hc := base
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &Client{
		baseURL: u.String(),
		http:    hc,
		limiter: limiter,
		logger:  logger.WithComponent("client"),
	}, nil
}

// LoadSource fetches the OAuth source with the given slug.
func (c *Client) LoadSource(ctx context.Context, slug string) (*domain.Source, error) {
	var src domain.Source
	if err := c.doJSON(ctx, http.MethodGet, sourcePath(slug), nil, nil, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// ListProviderTypes returns the provider types whose name starts with name.
func (c *Client) ListProviderTypes(ctx context.Context, name string) ([]domain.ProviderType, error) {
	q := url.Values{}
	q.Set("name", name)
	var types []domain.ProviderType
	if err := c.doJSON(ctx, http.MethodGet, "/api/v3/sources/oauth/source_types/", q, nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// ListPropertyMappings returns all OAuth source property mappings.
func (c *Client) ListPropertyMappings(ctx context.Context, ordering string) ([]domain.PropertyMapping, error) {
	q := url.Values{}
	if ordering != "" {
		q.Set("ordering", ordering)
	}
	var page struct {
		Results []domain.PropertyMapping `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v3/propertymappings/source/oauth/", q, nil, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// CreateSource creates a new source.
func (c *Client) CreateSource(ctx context.Context, req *domain.SourceRequest) (*domain.Source, error) {
	var src domain.Source
	if err := c.doJSON(ctx, http.MethodPost, "/api/v3/sources/oauth/", nil, req, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// UpdateSourcePartial updates only the fields present in req.
func (c *Client) UpdateSourcePartial(ctx context.Context, slug string, req *domain.SourceRequest) (*domain.Source, error) {
	var src domain.Source
	if err := c.doJSON(ctx, http.MethodPatch, sourcePath(slug), nil, req, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// SetIconFile uploads a new icon or clears the stored one.
func (c *Client) SetIconFile(ctx context.Context, slug string, file *domain.IconUpload, clear bool) error {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if file != nil {
		fw, err := mw.CreateFormFile("file", file.Filename)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := fw.Write(file.Data); err != nil {
			return fmt.Errorf("write form file: %w", err)
		}
	}
	if err := mw.WriteField("clear", strconv.FormatBool(clear)); err != nil {
		return fmt.Errorf("write form field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPost, iconPath(slug, "set_icon"), nil, body, mw.FormDataContentType(), nil)
}

// SetIconURL sets the icon to url; an empty url removes it.
func (c *Client) SetIconURL(ctx context.Context, slug, iconURL string) error {
	in := struct {
		URL string `json:"url"`
	}{URL: iconURL}
	return c.doJSON(ctx, http.MethodPost, iconPath(slug, "set_icon_url"), nil, in, nil)
}

// GetConfig returns the server's capabilities.
func (c *Client) GetConfig(ctx context.Context) (*domain.ServerConfig, error) {
	var cfg domain.ServerConfig
	if err := c.doJSON(ctx, http.MethodGet, "/api/v3/root/config/", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func sourcePath(slug string) string {
	return "/api/v3/sources/oauth/" + url.PathEscape(slug) + "/"
}

func iconPath(slug, action string) string {
	return "/api/v3/sources/all/" + url.PathEscape(slug) + "/" + action + "/"
}

func (c *Client) doJSON(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, q, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.DebugContext(ctx, "api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	var errBody struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errBody)
	return &APIError{Status: resp.StatusCode, Message: errBody.Error, Detail: errBody.Detail}
}
