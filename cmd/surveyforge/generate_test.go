package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pkt.systems/pslog"
	"pkt.systems/surveyforge/internal/appconfig"
	"pkt.systems/surveyforge/schema"
)

func testContext() context.Context {
	logger := pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
	return pslog.ContextWithLogger(context.Background(), logger)
}

func testConfig(t *testing.T) appconfig.Config {
	t.Helper()
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.StateDir = t.TempDir()
	cfg.Mock.DelayMS = 0
	return cfg
}

func TestBuildGenerateRequest(t *testing.T) {
	redesign := filepath.Join(t.TempDir(), "old.md")
	if err := os.WriteFile(redesign, []byte("# Old survey"), 0o600); err != nil {
		t.Fatalf("write redesign: %v", err)
	}
	req, err := buildGenerateRequest([]string{"nps", "make", "a", "survey"}, generateOptions{
		route:        "followup",
		redesignPath: redesign,
		images:       []string{"https://example.test/a.png"},
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	want := schema.StartGenerationRequest{
		ProjectID: "nps",
		Prompt:    "make a survey",
		Route:     schema.RouteUpdate,
		Auxiliary: schema.Auxiliary{
			RedesignMarkdown: "# Old survey",
			Images:           []string{"https://example.test/a.png"},
		},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGenerateRequestRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		opts generateOptions
		want error
	}{
		{name: "project", args: []string{"Bad Project", "x"}, want: schema.ErrInvalidProject},
		{name: "route", args: []string{"nps", "x"}, opts: generateOptions{route: "sideways"}, want: schema.ErrInvalidRoute},
		{name: "prompt", args: []string{"nps", "  "}, want: schema.ErrEmptyPrompt},
	}
	for _, tc := range tests {
		if _, err := buildGenerateRequest(tc.args, tc.opts); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestRunGenerateAgainstMockThenFollowUp(t *testing.T) {
	ctx := testContext()
	cfg := testConfig(t)
	out := filepath.Join(t.TempDir(), "index.html")
	opts := generateOptions{withMock: true, outPath: out}

	var stdout, stderr bytes.Buffer
	req := schema.StartGenerationRequest{ProjectID: "nps", Prompt: "make a customer survey"}
	if err := runGenerate(ctx, cfg, opts, req, &stdout, &stderr); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if stdout.Len() != 0 {
		t.Fatalf("expected no stdout with --out, got %q", stdout.String())
	}
	first, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(first), "</html>") {
		t.Fatalf("expected a complete document, got %q", first)
	}
	if !strings.Contains(stderr.String(), "ready") {
		t.Fatalf("expected rendered progress on stderr, got %q", stderr.String())
	}

	stderr.Reset()
	req.Prompt = "add a rating question"
	if err := runGenerate(ctx, cfg, generateOptions{withMock: true}, req, &stdout, &stderr); err != nil {
		t.Fatalf("follow-up generate: %v", err)
	}
	if !strings.Contains(stdout.String(), "Revised: add a rating question") {
		t.Fatalf("expected follow-up edit of the persisted document, got %q", stdout.String())
	}
}

func TestRunGenerateRefusalWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mock.Scenario = "refusal"
	out := filepath.Join(t.TempDir(), "index.html")
	var stdout, stderr bytes.Buffer
	req := schema.StartGenerationRequest{ProjectID: "nps", Prompt: "write me a poem"}
	if err := runGenerate(testContext(), cfg, generateOptions{withMock: true, outPath: out}, req, &stdout, &stderr); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("expected no output file, got %v", err)
	}
	if !strings.Contains(stderr.String(), "declined") {
		t.Fatalf("expected declined message on stderr, got %q", stderr.String())
	}
}

func TestWriteOutcome(t *testing.T) {
	logger := pslog.Ctx(testContext())
	var buf bytes.Buffer
	if err := writeOutcome(schema.Outcome{Status: schema.OutcomeCompleted, Document: "<html></html>"}, "", &buf, logger); err != nil {
		t.Fatalf("completed: %v", err)
	}
	if buf.String() != "<html></html>" {
		t.Fatalf("unexpected stdout %q", buf.String())
	}
	if err := writeOutcome(schema.Outcome{Status: schema.OutcomeCanceled}, "", &buf, logger); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if err := writeOutcome(schema.Outcome{Status: schema.OutcomeEmpty}, "", &buf, logger); err == nil {
		t.Fatalf("expected error for empty outcome")
	}
	upstream := errors.New("upstream broke")
	if err := writeOutcome(schema.Outcome{Status: schema.OutcomeFailed, Err: upstream}, "", &buf, logger); !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
