package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const maxResponseBodySize = 1 << 20 // 1MB

const maxErrorMessageSize = 512

// connection pooling limits; a dashboard watches a handful of corpora on one host
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// DefaultTimeout applies to each request when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

const (
	csrfCookieName = "csrftoken"
	csrfHeaderName = "X-CSRFToken"
	taskHeaderName = "task"
)

// Options configures a [Client].
type Options struct {
	// Token is sent as "Authorization: Token <token>" when set.
	Token string

	// Timeout bounds each request. Defaults to [DefaultTimeout].
	Timeout time.Duration

	// Logger receives request failures at debug level. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client talks to the corpus-management REST API.
//
// Client keeps a cookie jar for the session and CSRF cookies. Mutating
// requests echo the csrftoken cookie in the X-CSRFToken header. Timeouts are
// applied per request via the context, and response bodies are limited to
// 1MB.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates a [Client] for the API rooted at baseURL.
//
// Returns an error if baseURL is not an absolute http or https URL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("base url must include a host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			// no client timeout - per-request timeouts via context
			Jar: jar,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		token:   opts.Token,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// AuthenticationStatus verifies the session or token is accepted.
// Returns an error matching [ErrUnauthenticated] when it is not.
func (c *Client) AuthenticationStatus(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/rest-auth/user/", nil, nil)
	return err
}

// CurrentUser returns the authenticated user and their corpus permissions.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	err := c.getJSON(ctx, "/api/users/current_user/", nil, &u)
	return u, err
}

// Corpus fetches the status of one corpus.
func (c *Client) Corpus(ctx context.Context, corpusID string) (Corpus, error) {
	var corpus Corpus
	err := c.getJSON(ctx, corpusPath(corpusID, ""), nil, &corpus)
	return corpus, err
}

// Hierarchy fetches the annotation hierarchy of an imported corpus.
func (c *Client) Hierarchy(ctx context.Context, corpusID string) (Hierarchy, error) {
	var h Hierarchy
	err := c.getJSON(ctx, corpusPath(corpusID, "hierarchy/"), nil, &h)
	return h, err
}

// TypeQueries lists saved queries for one annotation type.
func (c *Client) TypeQueries(ctx context.Context, corpusID, annotationType string) ([]QuerySummary, error) {
	var qs []QuerySummary
	q := url.Values{"annotation_type": {annotationType}}
	if err := c.getJSON(ctx, corpusPath(corpusID, "query/"), q, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// ImportCorpus starts an asynchronous import and returns the background
// task id taken from the "task" response header. The id is empty when the
// server ran the import inline.
func (c *Client) ImportCorpus(ctx context.Context, corpusID string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, corpusPath(corpusID, "import_corpus/"), nil, map[string]any{})
	if err != nil {
		return "", err
	}
	return resp.header.Get(taskHeaderName), nil
}

// Enrich starts an asynchronous enrichment of an imported corpus. The
// payload is the enrichment configuration, e.g. {"enrichment_type":
// "syllables"}, and is sent as is. A nil payload sends an empty object.
func (c *Client) Enrich(ctx context.Context, corpusID string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	_, err := c.do(ctx, http.MethodPost, corpusPath(corpusID, "enrich/"), nil, payload)
	return err
}

// TaskStatus reports the state of a background task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	var ts TaskStatus
	err := c.getJSON(ctx, "/api/tasks/"+url.PathEscape(taskID)+"/", nil, &ts)
	if ts.TaskID == "" {
		ts.TaskID = taskID
	}
	return ts, err
}

// Close closes idle connections. The client stays usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func corpusPath(corpusID, suffix string) string {
	return "/api/corpus/" + url.PathEscape(corpusID) + "/" + suffix
}

type response struct {
	statusCode int
	header     http.Header
	body       []byte
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("GET %s: failed to decode response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := *c.baseURL
	target.Path = c.baseURL.Path + path
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: failed to encode body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to create request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
	if method != http.MethodGet && method != http.MethodHead {
		c.setCSRF(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed", "method", method, "path", path, "error", err.Error())
		return nil, fmt.Errorf("%s %s: request failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response body: %w", method, path, err)
	}

	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
	}

	return &response{statusCode: resp.StatusCode, header: resp.Header, body: data}, nil
}

// setCSRF copies the csrftoken cookie into the header Django checks.
func (c *Client) setCSRF(req *http.Request) {
	req.Header.Set("Referer", c.baseURL.String()+"/")
	for _, cookie := range c.httpClient.Jar.Cookies(c.baseURL) {
		if cookie.Name == csrfCookieName {
			req.Header.Set(csrfHeaderName, cookie.Value)
			return
		}
	}
}

// errorMessage extracts a readable message from an error body. The API
// returns either a JSON string, {"detail": "..."} or plain text.
func errorMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return truncate(s)
	}
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		return truncate(detail.Detail)
	}
	return truncate(string(body))
}

// truncate caps s at maxErrorMessageSize bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxErrorMessageSize {
		return s
	}
	cut := maxErrorMessageSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
