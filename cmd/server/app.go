package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"loancounselor-backend/internal/config"
	"loancounselor-backend/internal/crypto"
	"loancounselor-backend/internal/integrations"
	"loancounselor-backend/internal/integrations/slack"
	"loancounselor-backend/internal/llm"
	"loancounselor-backend/internal/memory"
	"loancounselor-backend/internal/models"
	integration_models "loancounselor-backend/internal/models/integrations"
	"loancounselor-backend/internal/services"
	"loancounselor-backend/internal/store"
	"loancounselor-backend/internal/store/firestore"
	storemem "loancounselor-backend/internal/store/memory"
	"loancounselor-backend/internal/store/postgres"
	"loancounselor-backend/internal/telemetry"
	"loancounselor-backend/internal/vectorstore"

	"github.com/rs/zerolog/log"
)

// app holds everything the subcommands share once wiring is done.
type app struct {
	cfg       *config.Config
	store     store.Store
	lenders   []models.Lender
	counselor *services.CounselorService
	notifier  *slack.Notifier
	shutdown  telemetry.ShutdownFunc
}

// newApp wires config → tracing → model → store → lenders → vector index → service.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	shutdown, err := telemetry.Setup(cfg.TracingEnabled, os.Stderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, shutdown: shutdown}

	model, embedder, err := llm.New(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info().Str("provider", cfg.ModelProvider).Msg("Model provider initialized.")

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	log.Info().Str("backend", cfg.StoreBackend).Msg("Store initialized.")

	a.lenders, err = loadLenders(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	vectors := vectorstore.New(a.store, embedder)
	if err := vectors.IndexLenders(ctx, a.lenders); err != nil {
		// Lender search degrades to an empty section; the full catalogue is still in every prompt.
		log.Error().Err(err).Msg("Failed to index lenders in the vector store")
	}

	opts := services.CounselorOptions{
		Model:          model,
		Knowledge:      vectors,
		Memory:         memory.New(a.store),
		Lenders:        a.lenders,
		RequestTimeout: cfg.RequestTimeout,
		TopK:           cfg.ContextTopK,
	}
	if cfg.SlackEnabled() {
		a.notifier, err = newSlackNotifier(cfg)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		opts.Notifier = a.notifier
		log.Info().Str("channel", cfg.SlackChannelID).Msg("Slack digest notifier enabled.")
	}
	a.counselor = services.NewCounselorService(opts)
	log.Info().Int("lenders", len(a.lenders)).Msg("CounselorService initialized.")
	return a, nil
}

// Close waits for pending digests, then releases the store and flushes traces.
func (a *app) Close(ctx context.Context) {
	if a.counselor != nil {
		a.counselor.Wait()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second) // Timeout for initial connection
		defer dbCancel()

		dbpool, err := postgres.Connect(dbCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		sealer, err := crypto.NewSealer(cfg.EncryptionKey)
		if err != nil {
			dbpool.Close()
			return nil, fmt.Errorf("failed to create AES-GCM cipher: %w", err)
		}
		pg := postgres.NewPostgresStore(dbpool, sealer)
		if err := pg.Migrate(dbCtx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil

	case config.BackendFirestore:
		return firestore.NewFirestoreStore(ctx, cfg.FirestoreProjectID, "")

	default:
		return storemem.NewMemoryStore(), nil
	}
}

func newSlackNotifier(cfg *config.Config) (*slack.Notifier, error) {
	return slack.NewNotifier(integration_models.SlackNotifierConfig{
		BotToken:  cfg.SlackBotToken,
		ChannelID: cfg.SlackChannelID,
	})
}

// newSourceRegistry registers every lender source the configuration can support.
func newSourceRegistry(cfg *config.Config) (*integrations.Registry, error) {
	r := integrations.NewRegistry()
	r.Register(integrations.SourceStatic, integrations.NewStaticSource(nil))
	if cfg.LendersFile != "" {
		r.Register(integrations.SourceFile, integrations.NewFileSource(cfg.LendersFile))
	}
	if cfg.NotionToken != "" && cfg.NotionLenderDatabaseID != "" {
		notion, err := integrations.NewNotionSource(integration_models.NotionSourceConfig{
			Token:      cfg.NotionToken,
			DatabaseID: cfg.NotionLenderDatabaseID,
		})
		if err != nil {
			return nil, err
		}
		r.Register(integrations.SourceNotion, notion)
	}
	return r, nil
}

func loadLenders(ctx context.Context, cfg *config.Config) ([]models.Lender, error) {
	registry, err := newSourceRegistry(cfg)
	if err != nil {
		return nil, err
	}
	source, err := registry.Get(cfg.LenderSource)
	if err != nil {
		return nil, err
	}
	catalog, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load lenders from %s source: %w", cfg.LenderSource, err)
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("lender source %s returned no lenders", cfg.LenderSource)
	}
	log.Info().Str("source", cfg.LenderSource).Int("count", len(catalog)).Msg("Lender catalogue loaded.")
	return catalog, nil
}
