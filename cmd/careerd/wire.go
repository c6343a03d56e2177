package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/career"
	"github.com/fyrsmithlabs/careerd/internal/config"
	"github.com/fyrsmithlabs/careerd/internal/docstore"
	"github.com/fyrsmithlabs/careerd/internal/embeddings"
	"github.com/fyrsmithlabs/careerd/internal/llm"
	"github.com/fyrsmithlabs/careerd/internal/logging"
	"github.com/fyrsmithlabs/careerd/internal/pdftext"
	"github.com/fyrsmithlabs/careerd/internal/profile"
	"github.com/fyrsmithlabs/careerd/internal/service"
	"github.com/fyrsmithlabs/careerd/internal/telemetry"
	"github.com/fyrsmithlabs/careerd/internal/vectorstore"
)

// appTelemetryOptions are passed to telemetry.New by every command.
var appTelemetryOptions []telemetry.Option

// app holds the initialized dependency graph.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	logger    *logging.Logger
	stores    *vectorstore.Factory
	svc       *service.Service
}

// newApp initializes everything a command needs, in dependency order.
// On error, whatever was already started is shut down again.
func newApp(ctx context.Context, cfg *config.Config, telOpts ...telemetry.Option) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.telemetry, err = telemetry.New(ctx, cfg.Telemetry, version, telOpts...)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := logging.FromServiceConfig(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	a.logger, err = logging.NewLogger(logCfg, a.telemetry.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	zl := a.logger.Underlying()

	emb, err := embeddings.Resolve(ctx, cfg.Embeddings, zl)
	if err != nil {
		return nil, fmt.Errorf("initializing embeddings: %w", err)
	}

	a.stores = vectorstore.NewFactory(cfg.VectorStore, emb.Dimension(), zl)
	idx, err := a.stores.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	docs, err := docstore.New(emb, idx,
		docstore.WithDefaultTopK(cfg.Retrieval.TopK),
		docstore.WithLogger(zl),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing document store: %w", err)
	}

	gen, err := llm.Resolve(ctx, cfg.Generation, zl)
	if err != nil {
		return nil, fmt.Errorf("initializing generation: %w", err)
	}

	recommender := career.NewGenerator(gen,
		career.WithMaxContextChars(cfg.Retrieval.MaxContextChars),
		career.WithLogger(zl),
	)
	pdf := pdftext.New(
		pdftext.WithTool(cfg.PDF.ToolPath),
		pdftext.WithTimeout(cfg.PDF.Timeout.Duration()),
	)

	a.svc, err = service.New(service.Deps{
		Docs:        docs,
		Extractor:   profile.NewExtractor(gen, zl),
		Recommender: recommender,
		PDF:         pdf,
		TopK:        cfg.Retrieval.TopK,
		Logger:      zl,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing service: %w", err)
	}

	zl.Info("careerd initialized",
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("generation", cfg.Generation.Provider),
		zap.Bool("telemetry", a.telemetry.IsEnabled()))

	return a, nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.stores != nil {
		if err := a.stores.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing vector store: %w", err))
		}
	}
	if a.logger != nil {
		if err := a.logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("syncing logger: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
