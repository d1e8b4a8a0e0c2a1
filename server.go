package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/config"
	"github.com/ekaya-inc/ekaya-accounts/pkg/database"
	"github.com/ekaya-inc/ekaya-accounts/pkg/handlers"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/mcp"
	"github.com/ekaya-inc/ekaya-accounts/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-accounts/pkg/middleware"
	"github.com/ekaya-inc/ekaya-accounts/pkg/providers"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

const (
	shutdownTimeout           = 15 * time.Second
	conversationPruneInterval = 10 * time.Minute
)

// runServer wires the services and serves HTTP until ctx is canceled.
func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	db, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	sqlDB, err := database.OpenSQL(cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	err = database.RunMigrations(sqlDB, logger)
	_ = sqlDB.Close()
	if err != nil {
		return err
	}

	llmClient, err := llm.NewClientFromConfig(cfg.LLM, logger)
	if err != nil {
		return err
	}
	router := providers.NewRouterFromConfig(cfg.Providers, llmClient, logger)

	// Repositories
	accountRepo := repositories.NewAccountRepository()
	interactionRepo := repositories.NewInteractionRepository()
	factRepo := repositories.NewExternalFactRepository()
	planRepo := repositories.NewPlanRepository()
	templateRepo := repositories.NewQuestionTemplateRepository()

	// Services
	accountService := services.NewAccountService(accountRepo, logger)
	factService := services.NewExternalFactService(factRepo, accountRepo, router, llmClient, logger)
	profileService := services.NewCustomerProfileService(accountRepo, interactionRepo, factRepo, templateRepo, llmClient, logger)
	historyService := services.NewHistoryService(accountRepo, interactionRepo, factRepo, planRepo, templateRepo, llmClient, cfg.Plans.PreviewLength, logger)
	relevanceService := services.NewRelevanceService(accountRepo, interactionRepo, llmClient, cfg.Interview.HistoryLimit, cfg.Interview.RelevantTopK, logger)
	interviewService := services.NewInterviewService(accountRepo, interactionRepo, llmClient, logger)
	planService := services.NewPlanService(accountRepo, interactionRepo, factRepo, planRepo, llmClient, cfg.Plans.KeepLatest, logger)
	questionService, err := services.NewQuestionService(templateRepo, accountRepo, interactionRepo, llmClient, logger)
	if err != nil {
		return err
	}
	conversations := services.NewConversationStore(services.DefaultConversationMaxAge)

	scopes := database.NewScopeProvider(db)
	if err := seedQuestions(ctx, scopes, questionService, logger); err != nil {
		return err
	}

	// HTTP API
	mux := http.NewServeMux()
	scope := handlers.ScopeMiddleware(database.WithScopeContext(db, logger))

	handlers.NewHealthHandler(cfg, db, llm.NewConnectionTester(llmClient), logger).RegisterRoutes(mux)
	handlers.NewAccountHandler(accountService, logger).RegisterRoutes(mux, scope)
	handlers.NewExternalFactHandler(factService, profileService, logger).RegisterRoutes(mux, scope)
	handlers.NewHistoryHandler(historyService, relevanceService, logger).RegisterRoutes(mux, scope)
	handlers.NewConversationHandler(interviewService, historyService, conversations, logger).RegisterRoutes(mux, scope)
	handlers.NewPlanHandler(planService, historyService, logger).RegisterRoutes(mux, scope)
	handlers.NewQuestionHandler(questionService, logger).RegisterRoutes(mux, scope)

	// MCP
	mcpServer := mcp.NewAccountServer("ekaya-accounts", cfg.Version, db, &tools.ToolDeps{
		Scopes:           scopes,
		FactService:      factService,
		RelevanceService: relevanceService,
		InterviewService: interviewService,
		PlanService:      planService,
		QuestionService:  questionService,
		Conversations:    conversations,
		Logger:           logger.Named("mcp-tools"),
	}, logger)
	mux.Handle("/mcp", middleware.MCPRequestLogger(logger.Named("mcp-requests"))(mcpServer.NewStreamableHTTPServer()))

	go pruneConversations(ctx, conversations, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.RequestLogger(logger.Named("http"))(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-accounts", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func seedQuestions(ctx context.Context, scopes *database.ScopeProvider, questionService services.QuestionService, logger *zap.Logger) error {
	scoped, cleanup, err := scopes.WithScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire database connection: %w", err)
	}
	defer cleanup()

	result, err := questionService.Seed(scoped)
	if err != nil {
		return fmt.Errorf("failed to seed core questions: %w", err)
	}
	logger.Info("Core questions seeded", zap.Int("inserted", result.Inserted), zap.Int("existing", result.Existing))
	return nil
}

// pruneConversations drops abandoned interviews until ctx is canceled.
func pruneConversations(ctx context.Context, store services.ConversationStore, logger *zap.Logger) {
	ticker := time.NewTicker(conversationPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Prune(); n > 0 {
				logger.Info("Pruned abandoned interviews", zap.Int("count", n))
			}
		}
	}
}
