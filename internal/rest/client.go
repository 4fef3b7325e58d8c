package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/observability"
)

// defaultRetryAfter applies when a 429 response carries no Retry-After
// header.
const defaultRetryAfter = 60 * time.Second

const maxErrorBody = 8 << 10

// TokenSource supplies a bearer token for each request attempt.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Doer is the subset of http.Client the transport needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// QueryParam is one key=value pair. Pairs are joined verbatim with no
// percent-encoding, so callers must pass URL-safe values.
type QueryParam struct {
	Key   string
	Value string
}

// Request describes one platform call. Path may contain :name tokens
// which are replaced from PathParams before the request is built.
type Request struct {
	Method      string
	Path        string
	PathParams  map[string]string
	Query       []QueryParam
	Body        interface{}
	RawBody     []byte
	ContentType string
}

// Client talks to one remote platform. A 429 response is retried
// exactly once after the server-indicated delay; every other failure
// status surfaces immediately as a communication error.
type Client struct {
	baseURL string
	http    Doer
	tokens  TokenSource
	log     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func New(baseURL string, tokens TokenSource, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
		tokens:  tokens,
		log:     log,
		sleep:   sleepContext,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(d Doer) {
	c.http = d
}

// Do executes the request and decodes the response into out according
// to the response content type. out may be nil, a JSON target, or a
// *string for text-yielding content types.
func (c *Client) Do(ctx context.Context, r Request, out interface{}) error {
	body, contentType, err := encodeBody(r)
	if err != nil {
		return err
	}
	url := c.buildURL(r.Path, r.PathParams, r.Query)

	rsp, err := c.attempt(ctx, r.Method, url, body, contentType)
	if err != nil {
		return err
	}
	if rsp.StatusCode == http.StatusTooManyRequests {
		delay := retryAfterDelay(rsp.Header.Get("Retry-After"), time.Now())
		drain(rsp)
		c.log.Warn("platform rate limited, retrying once",
			zap.String("method", r.Method),
			zap.String("path", r.Path),
			zap.Duration("retry_after", delay),
		)
		observability.PlatformRetryTotal.Inc()
		observability.RateLimitSleepSeconds.Observe(delay.Seconds())
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
		rsp, err = c.attempt(ctx, r.Method, url, body, contentType)
		if err != nil {
			return err
		}
	}
	defer rsp.Body.Close()

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(rsp.Body, maxErrorBody))
		c.log.Debug("platform error response",
			zap.Int("status", rsp.StatusCode),
			zap.String("path", r.Path),
			zap.ByteString("body", snippet),
		)
		return core.NewCommunicationError(rsp.StatusCode, http.StatusText(rsp.StatusCode))
	}

	return decode(rsp, out)
}

func (c *Client) attempt(ctx context.Context, method, url string, body []byte, contentType string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rsp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	observability.PlatformRequestsTotal.WithLabelValues(method, strconv.Itoa(rsp.StatusCode)).Inc()
	return rsp, nil
}

func (c *Client) buildURL(path string, pathParams map[string]string, query []QueryParam) string {
	for name, val := range pathParams {
		path = strings.ReplaceAll(path, ":"+name, val)
	}
	url := c.baseURL + path
	if len(query) == 0 {
		return url
	}
	pairs := make([]string, len(query))
	for i, q := range query {
		pairs[i] = q.Key + "=" + q.Value
	}
	return url + "?" + strings.Join(pairs, "&")
}

func encodeBody(r Request) ([]byte, string, error) {
	if r.RawBody != nil {
		ct := r.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return r.RawBody, ct, nil
	}
	if r.Body == nil {
		return nil, "", nil
	}
	b, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("encode request body: %w", err)
	}
	return b, "application/json", nil
}

// decode dispatches on the response content type: XML bodies yield
// charset-decoded text, zip bodies yield their raw bytes as text, and
// everything else is treated as JSON when non-empty.
func decode(rsp *http.Response, out interface{}) error {
	data, err := io.ReadAll(rsp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	mediaType, params, _ := mime.ParseMediaType(rsp.Header.Get("Content-Type"))
	switch mediaType {
	case "application/xml", "text/xml":
		text, err := decodeCharset(data, params["charset"])
		if err != nil {
			return err
		}
		return assignText(out, text)
	case "application/zip":
		return assignText(out, string(data))
	default:
		if len(data) == 0 || out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

func assignText(out interface{}, text string) error {
	if out == nil {
		return nil
	}
	target, ok := out.(*string)
	if !ok {
		return fmt.Errorf("text response requires *string target, got %T", out)
	}
	*target = text
	return nil
}

// decodeCharset converts data from the declared charset to UTF-8. An
// absent charset means the body already is UTF-8.
func decodeCharset(data []byte, charset string) (string, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		return string(data), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", fmt.Errorf("charset %q: %w", charset, err)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decode charset %q: %w", charset, err)
	}
	return string(decoded), nil
}

// retryAfterDelay interprets a Retry-After header as either delay
// seconds or an HTTP date.
func retryAfterDelay(header string, now time.Time) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		d := at.Sub(now)
		if d < 0 {
			return 0
		}
		return d
	}
	return defaultRetryAfter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drain(rsp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(rsp.Body, maxErrorBody))
	rsp.Body.Close()
}
