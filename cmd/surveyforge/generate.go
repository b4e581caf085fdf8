package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge"
	"pkt.systems/surveyforge/core"
	"pkt.systems/surveyforge/internal/appconfig"
	"pkt.systems/surveyforge/internal/eventbus"
	"pkt.systems/surveyforge/internal/format"
	"pkt.systems/surveyforge/internal/genclient"
	"pkt.systems/surveyforge/internal/persist"
	"pkt.systems/surveyforge/schema"
)

type generateOptions struct {
	cfgPath      string
	outPath      string
	route        string
	selected     string
	redesignPath string
	images       []string
	longContext  bool
	withMock     bool
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate <project> <prompt...>",
		Short: "Run one generation job and write the resulting document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildGenerateRequest(args, opts)
			if err != nil {
				return err
			}
			cfg, err := appconfig.Load(opts.cfgPath)
			if err != nil {
				return err
			}
			return runGenerate(cmd.Context(), cfg, opts, req, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&opts.outPath, "out", "o", "", "write the document to this file instead of stdout")
	cmd.Flags().StringVar(&opts.route, "route", "", "force the route (create, update, redesign)")
	cmd.Flags().StringVar(&opts.selected, "selected", "", "HTML of the element the prompt refers to")
	cmd.Flags().StringVar(&opts.redesignPath, "redesign", "", "markdown file describing a page to redesign")
	cmd.Flags().StringArrayVar(&opts.images, "image", nil, "reference image URL or data URI (repeatable)")
	cmd.Flags().BoolVar(&opts.longContext, "long-context", false, "ask the backend for its long-context model")
	cmd.Flags().BoolVar(&opts.withMock, "mock", false, "generate against an embedded mock backend")
	return cmd
}

func buildGenerateRequest(args []string, opts generateOptions) (schema.StartGenerationRequest, error) {
	projectID := schema.ProjectID(args[0])
	if err := schema.ValidateProjectID(projectID); err != nil {
		return schema.StartGenerationRequest{}, fmt.Errorf("%w: %q", err, args[0])
	}
	route, err := schema.NormalizeRoute(opts.route)
	if err != nil {
		return schema.StartGenerationRequest{}, fmt.Errorf("%w: %q", err, opts.route)
	}
	prompt := strings.TrimSpace(strings.Join(args[1:], " "))
	if prompt == "" {
		return schema.StartGenerationRequest{}, schema.ErrEmptyPrompt
	}
	req := schema.StartGenerationRequest{
		ProjectID:           projectID,
		Prompt:              prompt,
		SelectedElementHTML: opts.selected,
		Route:               route,
		Auxiliary: schema.Auxiliary{
			Images:         opts.images,
			UseLongContext: opts.longContext,
		},
	}
	if opts.redesignPath != "" {
		data, err := os.ReadFile(opts.redesignPath)
		if err != nil {
			return schema.StartGenerationRequest{}, err
		}
		req.Auxiliary.RedesignMarkdown = string(data)
	}
	return req, nil
}

func runGenerate(ctx context.Context, cfg appconfig.Config, opts generateOptions, req schema.StartGenerationRequest, stdout, stderr io.Writer) error {
	logger := pslog.Ctx(ctx)
	store, err := persist.Open(ctx, cfg.StoreOptions(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	service, bus, cleanup, err := generationService(ctx, cfg, opts.withMock, store, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	events, unsubscribe := bus.Subscribe(req.ProjectID)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderer := format.NewRenderer(stderr)
		for event := range events {
			for _, line := range renderer.FormatEvent(event) {
				_, _ = fmt.Fprintln(stderr, line)
			}
		}
	}()

	resp, err := service.RunGeneration(ctx, req)
	unsubscribe()
	<-rendered
	if err != nil {
		return err
	}
	return writeOutcome(resp.Outcome, opts.outPath, stdout, logger)
}

// generationService wires a service and its event bus either to the configured
// backend or to an embedded mock backend.
func generationService(ctx context.Context, cfg appconfig.Config, withMock bool, store persist.Store, logger pslog.Logger) (core.Service, *eventbus.Bus, func(), error) {
	if withMock {
		serverCfg, err := toServerConfig(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		server, err := surveyforge.New(serverCfg, surveyforge.ServerDeps{
			ServiceDeps: core.ServiceDeps{Store: store, Logger: logger},
		}, surveyforge.WithMockBackend())
		if err != nil {
			return nil, nil, nil, err
		}
		if err := server.Start(ctx); err != nil {
			return nil, nil, nil, err
		}
		cleanup := func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Stop(stopCtx); err != nil {
				logger.Warn("mock backend stop failed", "err", err)
			}
		}
		return server.Service(), server.Events(), cleanup, nil
	}

	client, err := genclient.New(cfg.ClientOptions())
	if err != nil {
		return nil, nil, nil, err
	}
	bus := eventbus.New(logger)
	service, err := core.NewService(cfg.ServiceConfig(), core.ServiceDeps{
		Generator: client,
		EventSink: bus,
		Store:     store,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return service, bus, func() {}, nil
}

func writeOutcome(outcome schema.Outcome, outPath string, stdout io.Writer, logger pslog.Logger) error {
	switch outcome.Status {
	case schema.OutcomeCompleted:
	case schema.OutcomeRefused:
		logger.Info("generation declined", "job", outcome.JobID)
		return nil
	case schema.OutcomeCanceled:
		return context.Canceled
	case schema.OutcomeEmpty:
		return errors.New("generation produced no document")
	default:
		if outcome.Document == "" {
			if outcome.Err != nil {
				return outcome.Err
			}
			return fmt.Errorf("generation %s", outcome.Status)
		}
		logger.Warn("generation failed, keeping partial document", "job", outcome.JobID, "err", outcome.Err)
	}
	if outcome.Document == "" {
		return errors.New("generation produced no document")
	}
	if outPath == "" {
		_, err := io.WriteString(stdout, outcome.Document)
		return err
	}
	if err := os.WriteFile(outPath, []byte(outcome.Document), 0o644); err != nil {
		return err
	}
	logger.Info("document written", "path", outPath, "bytes", len(outcome.Document))
	return nil
}
