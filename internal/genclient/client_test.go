package genclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"pkt.systems/surveyforge/core"
	"pkt.systems/surveyforge/schema"
)

func newTestClient(t *testing.T, baseURL string, opts Options) (*Client, *http.Transport) {
	t.Helper()
	transport := &http.Transport{}
	opts.BaseURL = baseURL
	opts.HTTPClient = &http.Client{Transport: transport}
	client, err := New(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, transport
}

func drain(t *testing.T, s core.FragmentStream) ([]string, error) {
	t.Helper()
	var out []string
	for {
		fragment, err := s.Next(context.Background())
		if fragment != "" {
			out = append(out, fragment)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
	}
}

func TestGenerateStreamsFragments(t *testing.T) {
	defer goleak.VerifyNone(t)

	var gotMethod, gotPath, gotAuth string
	var gotBody schema.WireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		flusher := w.(http.Flusher)
		for _, part := range []string{"<<<PHASE:HTML>>>\n", "<html><body>", "Hi</body></html>"} {
			_, _ = io.WriteString(w, part)
			flusher.Flush()
		}
	}))
	defer srv.Close()
	client, transport := newTestClient(t, srv.URL+"/", Options{Headers: map[string]string{"Authorization": "Bearer token"}})
	defer transport.CloseIdleConnections()

	stream, err := client.Generate(context.Background(), core.Call{
		Route: schema.RouteCreate,
		Body:  schema.WireRequest{Prompt: "make a survey", ProjectID: "nps"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	fragments, err := drain(t, stream)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := strings.Join(fragments, ""); got != "<<<PHASE:HTML>>>\n<html><body>Hi</body></html>" {
		t.Fatalf("unexpected stream %q", got)
	}
	if gotMethod != http.MethodPost || gotPath != AskPath || gotAuth != "Bearer token" {
		t.Fatalf("unexpected request %s %s auth=%q", gotMethod, gotPath, gotAuth)
	}
	if diff := cmp.Diff(schema.WireRequest{Prompt: "make a survey", ProjectID: "nps"}, gotBody); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateUsesPutForUpdates(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()
	client, transport := newTestClient(t, srv.URL, Options{})
	defer transport.CloseIdleConnections()

	stream, err := client.Generate(context.Background(), core.Call{Route: schema.RouteUpdate})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	defer stream.Close()
	if _, err := drain(t, stream); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", gotMethod)
	}
}

func TestGenerateStatusErrorCarriesMessage(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"message":"too many requests"}`, "too many requests"},
		{`{"error":"quota exhausted"}`, "quota exhausted"},
		{`{"error":{"message":"nested"}}`, "nested"},
		{"plain failure\n", "plain failure"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, tc.body)
		}))
		client, transport := newTestClient(t, srv.URL, Options{})
		_, err := client.Generate(context.Background(), core.Call{Route: schema.RouteCreate})
		transport.CloseIdleConnections()
		srv.Close()
		var transportErr *core.TransportError
		if !errors.As(err, &transportErr) {
			t.Fatalf("expected transport error, got %v", err)
		}
		if transportErr.Kind != core.TransportErrorStatus || transportErr.Status != http.StatusTooManyRequests || transportErr.Message != tc.want {
			t.Fatalf("unexpected transport error %+v", transportErr)
		}
	}
}

func TestGenerateEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	client, transport := newTestClient(t, srv.URL, Options{})
	defer transport.CloseIdleConnections()

	_, err := client.Generate(context.Background(), core.Call{Route: schema.RouteCreate})
	if !errors.Is(err, schema.ErrEmptyBody) {
		t.Fatalf("expected empty body error, got %v", err)
	}
}

func TestGenerateUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client, transport := newTestClient(t, url, Options{})
	defer transport.CloseIdleConnections()

	_, err := client.Generate(context.Background(), core.Call{Route: schema.RouteCreate})
	var transportErr *core.TransportError
	if !errors.As(err, &transportErr) || transportErr.Kind != core.TransportErrorUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestStreamCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><body>")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)
	client, transport := newTestClient(t, srv.URL, Options{})
	defer transport.CloseIdleConnections()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.Generate(ctx, core.Call{Route: schema.RouteCreate})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	first, err := stream.Next(ctx)
	if err != nil || first != "<html><body>" {
		t.Fatalf("unexpected first fragment %q err=%v", first, err)
	}
	result := make(chan error, 1)
	go func() {
		_, err := stream.Next(context.Background())
		result <- err
	}()
	cancel()
	select {
	case err = <-result:
	case <-time.After(5 * time.Second):
		t.Fatalf("read did not stop after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	_ = stream.Close()
}

func TestGenerateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)
	client, transport := newTestClient(t, srv.URL, Options{Timeout: 50 * time.Millisecond})
	defer transport.CloseIdleConnections()

	_, err := client.Generate(context.Background(), core.Call{Route: schema.RouteCreate})
	var transportErr *core.TransportError
	if !errors.As(err, &transportErr) || transportErr.Kind != core.TransportErrorTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestCompleteRunesCarriesSplitRune(t *testing.T) {
	word := []byte("nöje")
	cases := []struct {
		in   []byte
		want int
	}{
		{word, len(word)},
		{word[:2], 1},
		{word[:3], 3},
		{[]byte("plain"), 5},
		{nil, 0},
	}
	for _, tc := range cases {
		if got := completeRunes(tc.in); got != tc.want {
			t.Fatalf("completeRunes(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "http://"} {
		if _, err := New(Options{BaseURL: raw}); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
