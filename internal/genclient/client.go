// Package genclient streams generation responses from the HTTP generation service.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/core"
	"pkt.systems/surveyforge/schema"
)

// AskPath is the generation endpoint below the base URL.
const AskPath = "/api/ask"

const (
	defaultReadSize = 4096
	maxErrorBody    = 64 << 10
)

// HTTPClient is the subset of *http.Client used by Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// Timeout bounds a whole job, including the streamed body. Zero disables it.
	Timeout    time.Duration
	Headers    map[string]string
	HTTPClient HTTPClient
	// Logger overrides the logger carried by the request context.
	Logger pslog.Logger
	// ReadSize is the maximum fragment size handed to the decoder.
	ReadSize int
}

// Client implements core.Generator over HTTP.
type Client struct {
	endpoint string
	timeout  time.Duration
	headers  map[string]string
	http     HTTPClient
	logger   pslog.Logger
	readSize int
}

// New validates opts and returns a client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("backend base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend base url must be http or https: %q", opts.BaseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("backend base url is missing a host: %q", opts.BaseURL)
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	readSize := opts.ReadSize
	if readSize <= 0 {
		readSize = defaultReadSize
	}
	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}
	return &Client{
		endpoint: base + AskPath,
		timeout:  opts.Timeout,
		headers:  headers,
		http:     client,
		logger:   opts.Logger,
		readSize: readSize,
	}, nil
}

// Endpoint returns the absolute generation URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// MethodForRoute returns the HTTP method used for route.
func MethodForRoute(route schema.Route) string {
	if route.IsFollowUp() {
		return http.MethodPut
	}
	return http.MethodPost
}

// Generate issues the request and returns the streamed body.
func (c *Client) Generate(ctx context.Context, call core.Call) (core.FragmentStream, error) {
	op := string(call.Route)
	if op == "" {
		op = "generate"
	}
	payload, err := json.Marshal(call.Body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	method := MethodForRoute(call.Route)
	req, err := http.NewRequestWithContext(reqCtx, method, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	log := c.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log.Debug("genclient request", "method", method, "url", c.endpoint, "body_len", len(payload))

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		if ctxErr := reqCtx.Err(); ctxErr != nil {
			return nil, core.ClassifyTransportError(op, ctxErr)
		}
		return nil, core.NewTransportError(core.TransportErrorUnavailable, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		message := readErrorMessage(resp.Body)
		log.Warn("genclient request rejected", "status", resp.StatusCode, "message", message)
		return nil, &core.TransportError{Kind: core.TransportErrorStatus, Op: op, Status: resp.StatusCode, Message: message}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		cancel()
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, core.NewTransportError(core.TransportErrorEmptyBody, op, schema.ErrEmptyBody)
	}
	log.Debug("genclient stream open", "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))
	return &stream{
		op:     op,
		body:   resp.Body,
		cancel: cancel,
		reqCtx: reqCtx,
		buf:    make([]byte, c.readSize),
	}, nil
}

// stream yields body reads as fragments. A multi-byte rune split by a read is
// carried into the next fragment.
type stream struct {
	op      string
	body    io.ReadCloser
	cancel  context.CancelFunc
	reqCtx  context.Context
	buf     []byte
	carry   []byte
	done    bool
	closed  bool
	pending error
}

func (s *stream) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", s.pending
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for {
		n, err := s.body.Read(s.buf)
		chunk := append(s.carry, s.buf[:n]...)
		s.carry = nil
		if err != nil {
			s.done = true
			s.pending = s.classify(err)
			if len(chunk) > 0 {
				return string(chunk), nil
			}
			return "", s.pending
		}
		cut := completeRunes(chunk)
		if cut < len(chunk) {
			s.carry = append([]byte(nil), chunk[cut:]...)
		}
		if cut > 0 {
			return string(chunk[:cut]), nil
		}
	}
}

func (s *stream) classify(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if ctxErr := s.reqCtx.Err(); ctxErr != nil {
		return core.ClassifyTransportError(s.op, ctxErr)
	}
	return core.NewTransportError(core.TransportErrorStream, s.op, err)
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.body.Close()
	s.cancel()
	return err
}

// completeRunes returns the length of the prefix of b that does not end in a
// truncated UTF-8 sequence.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

func readErrorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		switch v := payload.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}
