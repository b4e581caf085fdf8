package surveyforge

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"
	"pkt.systems/surveyforge/core"
	"pkt.systems/surveyforge/httpapi"
	"pkt.systems/surveyforge/internal/eventbus"
	"pkt.systems/surveyforge/internal/genclient"
	"pkt.systems/surveyforge/internal/mockgen"
	"pkt.systems/surveyforge/schema"
)

// Server composes the HTTP API and the optional mock generation backend.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Service returns the core service behind the HTTP API.
	Service() core.Service
	// Events returns the in-process bus carrying every project event.
	Events() *eventbus.Bus
	// HTTPAddr returns the bound API address once started.
	HTTPAddr() string
	// MockAddr returns the bound mock backend address once started.
	MockAddr() string
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service schema.ServiceConfig
	HTTP    httpapi.Config
	Mock    MockConfig
}

// MockConfig configures the embedded mock generation backend.
type MockConfig struct {
	Addr    string
	Options mockgen.Options
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	enableMock bool
}

// WithHTTP enables the HTTP API server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithMockBackend enables the embedded mock generation backend. When no
// generator is supplied, the service generates against it.
func WithMockBackend() ServerOption {
	return func(o *serverOptions) { o.enableMock = true }
}

// New constructs a composable surveyforge server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableMock {
		return nil, errors.New("no services enabled")
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized

	s := &compositeServer{
		cfg:     cfg,
		options: options,
		bus:     eventbus.New(deps.ServiceDeps.Logger),
	}

	serviceDeps := deps.ServiceDeps
	if serviceDeps.Generator == nil && options.enableMock {
		serviceDeps.Generator = core.GeneratorFunc(s.generateWithMock)
	}
	if serviceDeps.Generator == nil {
		return nil, schema.ErrGeneratorUnavailable
	}
	sinks := []core.EventSink{serviceDeps.EventSink, s.bus}
	if options.enableHTTP {
		s.hub = httpapi.NewHub(cfg.HTTP.HubHistory)
		sinks = append(sinks, s.hub)
	}
	serviceDeps.EventSink = combineSinks(sinks...)

	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}
	s.service = service
	if options.enableHTTP {
		s.httpSrv = httpapi.NewServer(cfg.HTTP, service, s.hub)
	}
	if options.enableMock {
		mockOpts := cfg.Mock.Options
		if mockOpts.Logger == nil {
			mockOpts.Logger = deps.ServiceDeps.Logger
		}
		s.mock = mockgen.New(mockOpts)
	}
	return s, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	service core.Service
	bus     *eventbus.Bus
	hub     *httpapi.Hub
	httpSrv *httpapi.Server
	mock    *mockgen.Server
	logger  pslog.Logger

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	group      *errgroup.Group
	httpAddr   string
	mockAddr   string
	mockClient *genclient.Client
	started    bool
}

func (s *compositeServer) Service() core.Service { return s.service }

func (s *compositeServer) Events() *eventbus.Bus { return s.bus }

func (s *compositeServer) HTTPAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

func (s *compositeServer) MockAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mockAddr
}

// Start binds every enabled listener before returning.
func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	log := pslog.Ctx(ctx)

	var httpLn, mockLn net.Listener
	if s.options.enableMock {
		ln, err := net.Listen("tcp", listenAddr(s.cfg.Mock.Addr))
		if err != nil {
			return err
		}
		mockLn = ln
		s.mockAddr = ln.Addr().String()
		client, err := genclient.New(genclient.Options{BaseURL: "http://" + s.mockAddr})
		if err != nil {
			_ = ln.Close()
			return err
		}
		s.mockClient = client
	}
	if s.options.enableHTTP {
		ln, err := net.Listen("tcp", listenAddr(s.cfg.HTTP.Addr))
		if err != nil {
			if mockLn != nil {
				_ = mockLn.Close()
			}
			return err
		}
		httpLn = ln
		s.httpAddr = ln.Addr().String()
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(s.ctx)
	s.group = group
	s.started = true
	s.logger = log
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"mock", s.options.enableMock,
		"http_addr", s.httpAddr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"mock_addr", s.mockAddr,
	)
	if mockLn != nil {
		group.Go(func() error {
			if err := httpapi.Serve(groupCtx, mockLn, s.mock); err != nil {
				log.Error("mock backend failed", "err", err)
				return err
			}
			return nil
		})
	}
	if httpLn != nil {
		group.Go(func() error {
			if err := httpapi.Serve(groupCtx, httpLn, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				return err
			}
			return nil
		})
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	group := s.group
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}
	err := group.Wait()
	cancel()
	if err != nil {
		pslog.Ctx(s.ctx).Error("server stopped", "err", err)
	}
	return err
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	group := s.group
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	cancel()
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}

func (s *compositeServer) generateWithMock(ctx context.Context, call core.Call) (core.FragmentStream, error) {
	s.mu.Lock()
	client := s.mockClient
	s.mu.Unlock()
	if client == nil {
		return nil, core.NewTransportError(core.TransportErrorUnavailable, string(call.Route), errors.New("mock backend not started"))
	}
	return client.Generate(ctx, call)
}

func listenAddr(addr string) string {
	if addr == "" {
		return "127.0.0.1:0"
	}
	return addr
}
