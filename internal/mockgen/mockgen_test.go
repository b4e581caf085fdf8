package mockgen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pkt.systems/surveyforge/core"
	"pkt.systems/surveyforge/internal/genclient"
	"pkt.systems/surveyforge/schema"
)

const existingDocument = "<!DOCTYPE html><html><body><h1>Old</h1></body></html>"

func TestScenariosThroughSession(t *testing.T) {
	cases := []struct {
		scenario Scenario
		request  schema.GenerationRequest
		want     schema.OutcomeStatus
		check    func(t *testing.T, out schema.Outcome)
	}{
		{
			scenario: ScenarioSuccess,
			want:     schema.OutcomeCompleted,
			check: func(t *testing.T, out schema.Outcome) {
				if !strings.HasPrefix(out.Document, "<!DOCTYPE html>") || !strings.HasSuffix(out.Document, "</html>") {
					t.Fatalf("unexpected document %q", out.Document)
				}
				if diff := cmp.Diff([]string{"Add a rating scale", "Add a logo", "Translate to Swedish"}, out.Suggestions); diff != "" {
					t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{scenario: ScenarioRefusal, want: schema.OutcomeRefused},
		{scenario: ScenarioError, want: schema.OutcomeFailed},
		{
			scenario: ScenarioUnmarked,
			want:     schema.OutcomeCompleted,
			check: func(t *testing.T, out schema.Outcome) {
				if !strings.Contains(out.Document, "<form>") || !strings.HasSuffix(out.Document, "</html>") {
					t.Fatalf("unexpected document %q", out.Document)
				}
			},
		},
		{
			scenario: ScenarioPartial,
			want:     schema.OutcomeCompleted,
			check: func(t *testing.T, out schema.Outcome) {
				if strings.Contains(out.Document, "</html>") || !strings.Contains(out.Document, "<body>") {
					t.Fatalf("expected truncated document, got %q", out.Document)
				}
			},
		},
		{
			scenario: ScenarioFollowUp,
			request:  schema.GenerationRequest{CurrentDocument: existingDocument, PreviousPrompt: "make a survey"},
			want:     schema.OutcomeCompleted,
			check: func(t *testing.T, out schema.Outcome) {
				if out.Route != schema.RouteUpdate {
					t.Fatalf("expected update route, got %q", out.Route)
				}
				if !strings.Contains(out.Document, "<h1>Old</h1>") || !strings.Contains(out.Document, "Revised: add a café question") {
					t.Fatalf("unexpected follow-up document %q", out.Document)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(string(tc.scenario), func(t *testing.T) {
			srv := httptest.NewServer(New(Options{Scenario: tc.scenario, Seed: 7, SeedSet: true, MaxChunk: 5}))
			defer srv.Close()
			transport := &http.Transport{}
			defer transport.CloseIdleConnections()
			client, err := genclient.New(genclient.Options{BaseURL: srv.URL, HTTPClient: &http.Client{Transport: transport}})
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			req := tc.request
			req.ProjectID = "nps"
			req.Prompt = "add a café question"
			out := core.NewSession(core.SessionConfig{JobID: "job-1", Request: req, Generator: client}).Run(context.Background())
			if out.Status != tc.want {
				t.Fatalf("expected status %s, got %+v", tc.want, out)
			}
			if tc.check != nil {
				tc.check(t, out)
			}
		})
	}
}

func TestDefaultScenarioFollowsRoute(t *testing.T) {
	body := schema.WireRequest{Prompt: "x", HTML: existingDocument}
	if got := pickScenario("", schema.RouteUpdate, body); got != ScenarioFollowUp {
		t.Fatalf("expected followup for update, got %s", got)
	}
	if got := pickScenario("", schema.RouteCreate, body); got != ScenarioSuccess {
		t.Fatalf("expected success for create, got %s", got)
	}
	if got := pickScenario(ScenarioRefusal, schema.RouteUpdate, body); got != ScenarioRefusal {
		t.Fatalf("expected fixed scenario, got %s", got)
	}
}

func TestFragmentIsDeterministicAndLossless(t *testing.T) {
	text := Script(ScenarioSuccess, 42, schema.WireRequest{Prompt: "enkät för café"})
	first := Fragment(text, 42, 9)
	second := Fragment(text, 42, 9)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("fragmentation not deterministic (-first +second):\n%s", diff)
	}
	if strings.Join(first, "") != text {
		t.Fatalf("fragments do not reassemble the script")
	}
	for _, f := range first {
		if len(f) == 0 || len(f) > 9 {
			t.Fatalf("fragment size %d out of range", len(f))
		}
	}
	if Fragment("", 1, 4) != nil {
		t.Fatalf("expected no fragments for empty text")
	}
}

func TestParseScenario(t *testing.T) {
	got, err := ParseScenario(" Refusal ")
	if err != nil || got != ScenarioRefusal {
		t.Fatalf("unexpected parse result %q err=%v", got, err)
	}
	if got, err := ParseScenario(""); err != nil || got != "" {
		t.Fatalf("expected empty scenario, got %q err=%v", got, err)
	}
	if _, err := ParseScenario("teapot"); err == nil {
		t.Fatalf("expected unknown scenario error")
	}
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	handler := New(Options{})
	cases := []struct {
		method string
		body   string
		header string
		status int
	}{
		{http.MethodPost, `{"prompt":""}`, "", http.StatusBadRequest},
		{http.MethodPost, `{not-json`, "", http.StatusBadRequest},
		{http.MethodPost, `{"prompt":"x"}`, "teapot", http.StatusBadRequest},
		{http.MethodGet, "", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/api/ask", strings.NewReader(tc.body))
		if tc.header != "" {
			req.Header.Set(ScenarioHeader, tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s %q: expected %d, got %d", tc.method, tc.body, tc.status, rec.Code)
		}
	}
}

func TestHandlerScenarioHeader(t *testing.T) {
	handler := New(Options{Seed: 1, SeedSet: true})
	payload, _ := json.Marshal(schema.WireRequest{Prompt: "make a survey"})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(payload))
	req.Header.Set(ScenarioHeader, "refusal")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.HasPrefix(string(body), "Sorry") {
		t.Fatalf("expected refusal text, got %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
}
