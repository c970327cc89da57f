package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"jobpilot/config"
	"jobpilot/database"
	"jobpilot/driver"
	"jobpilot/models"
	"jobpilot/services"
	"jobpilot/utils"
)

// newSessionStore picks the configured storage for the browser state.
func newSessionStore(cfg *config.AppConfig) (services.SessionStore, error) {
	switch cfg.Session.Store {
	case "s3":
		return services.NewS3SessionStore(cfg.Storage.AWS, cfg.Session.S3Key, utils.Named("s3"))
	default:
		return services.NewFileSessionStore(cfg.Session.FilePath), nil
	}
}

// newFailureSink opens the configured failure sink. The returned func
// releases it.
func newFailureSink(ctx context.Context, cfg *config.AppConfig) (services.FailureSink, func(), error) {
	noop := func() {}
	switch cfg.Storage.FailureSink {
	case "dynamodb":
		sink, err := services.NewDynamoFailureSink(cfg.Storage.AWS, cfg.Storage.DynamoTable, utils.Named("dynamodb"))
		return sink, noop, err
	case "postgres":
		db, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		model := models.NewFailureRecordModel(db)
		if err := model.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("failed to create failures table: %w", err)
		}
		return model, func() { db.Close() }, nil
	default:
		return services.NewFileFailureSink(cfg.Storage.FailureFile), noop, nil
	}
}

// newScreenshotStore returns nil when screenshots are disabled.
func newScreenshotStore(cfg *config.AppConfig) (services.ScreenshotStore, error) {
	switch cfg.Storage.Screenshots {
	case "s3":
		return services.NewS3ScreenshotStore(cfg.Storage.AWS)
	case "file":
		return services.NewFileScreenshotStore(cfg.Storage.ScreenshotDir), nil
	default:
		return nil, nil
	}
}

func newBrowserSession(cfg *config.AppConfig, locator *services.ElementLocator) (*services.BrowserSession, error) {
	store, err := newSessionStore(cfg)
	if err != nil {
		return nil, err
	}
	return services.NewBrowserSession(driver.NewPlaywrightLauncher(), store, locator,
		cfg.Session, cfg.Browser, utils.Named("session")), nil
}

// newOrchestrator wires one run: a fresh browser session, a fresh resolver
// (and so a fresh answer cache) and a journal over sink.
func newOrchestrator(ctx context.Context, cfg *config.AppConfig, sink services.FailureSink) (*services.Orchestrator, error) {
	logger := utils.GetLogger()

	profile, err := models.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}
	oracle, err := services.NewOracle(ctx, cfg.Oracle, logger)
	if err != nil {
		// Rules still answer most questions; oracle fields are skipped.
		logger.Warn("Oracle unavailable", zap.Error(err))
		oracle = nil
	}

	locator := services.NewElementLocator(logger)
	session, err := newBrowserSession(cfg, locator)
	if err != nil {
		return nil, err
	}

	resolver := services.NewFieldAnswerResolver(profile, oracle, logger)
	filler := services.NewFormFiller(resolver, cfg.Workflow.ResumePath, logger)
	workflow := services.NewApplicationWorkflow(session, locator, filler,
		services.NewSubmissionChecker(logger), cfg.Workflow, logger)
	shots, err := newScreenshotStore(cfg)
	if err != nil {
		logger.Warn("Screenshots disabled", zap.Error(err))
	} else if shots != nil {
		workflow.WithScreenshots(services.NewScreenshotService(shots, logger))
	}
	discovery := services.NewJobDiscovery(session, locator, cfg.Discovery, logger)
	journal := services.NewFailureJournal(sink, logger)

	return services.NewOrchestrator(session, discovery, workflow, journal, cfg.Run, cfg.Discovery.FilterURL, logger), nil
}
