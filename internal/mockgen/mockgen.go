// Package mockgen serves scripted generation streams for local development
// and tests.
package mockgen

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/schema"
)

const (
	// DefaultDelay is the pause between streamed fragments.
	DefaultDelay = 30 * time.Millisecond
	// DefaultMaxChunk bounds the size of one streamed fragment.
	DefaultMaxChunk = 48
	// ScenarioHeader selects a scenario for a single request.
	ScenarioHeader = "X-Mock-Scenario"
)

// Options configures a Server.
type Options struct {
	// Scenario forces one scenario for every request. Empty picks per request.
	Scenario Scenario
	// Seed fixes the fragmentation seed when SeedSet is true. Otherwise the
	// seed is hashed from the request.
	Seed     uint64
	SeedSet  bool
	Delay    time.Duration
	MaxChunk int
	Logger   pslog.Logger
}

// Server is an http.Handler that imitates the generation service.
type Server struct {
	opts   Options
	logger pslog.Logger
	mux    *http.ServeMux
}

// New returns a mock backend handler.
func New(opts Options) *Server {
	if opts.MaxChunk <= 0 {
		opts.MaxChunk = DefaultMaxChunk
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	s := &Server{opts: opts, logger: logger.With("component", "mockgen"), mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /api/ask", func(w http.ResponseWriter, r *http.Request) {
		s.handleAsk(w, r, schema.RouteCreate)
	})
	s.mux.HandleFunc("PUT /api/ask", func(w http.ResponseWriter, r *http.Request) {
		s.handleAsk(w, r, schema.RouteUpdate)
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, route schema.Route) {
	var body schema.WireRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	fixed := s.opts.Scenario
	if header := r.Header.Get(ScenarioHeader); header != "" {
		parsed, err := ParseScenario(header)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fixed = parsed
	}
	scenario := pickScenario(fixed, route, body)
	seed := s.opts.Seed
	if !s.opts.SeedSet {
		seed = HashSeed(body.Prompt, route, scenario)
	}
	fragments := Fragment(Script(scenario, seed, body), seed, s.opts.MaxChunk)
	log := s.logger.With("route", route, "scenario", scenario)
	log.Info("mock generation", "prompt_len", len(body.Prompt), "fragments", len(fragments))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	ctx := r.Context()
	for i, fragment := range fragments {
		if _, err := w.Write([]byte(fragment)); err != nil {
			log.Debug("mock stream write failed", "err", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if s.opts.Delay <= 0 || i == len(fragments)-1 {
			continue
		}
		timer := time.NewTimer(s.opts.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Debug("mock stream canceled", "sent", i+1)
			return
		case <-timer.C:
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
