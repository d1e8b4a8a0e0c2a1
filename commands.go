package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/config"
	"github.com/ekaya-inc/ekaya-accounts/pkg/database"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/logging"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ekaya-accounts",
		Short:         "Account intelligence service",
		Long:          "Researches accounts, runs guided interviews, and writes strategic customer plans.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSeedQuestionsCmd(),
		newCheckLLMCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and builds the process logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cfg, logger)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			sqlDB, err := database.OpenSQL(cfg.Database.URL())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer sqlDB.Close()

			if down {
				return database.MigrateDown(sqlDB, logger)
			}
			return database.RunMigrations(sqlDB, logger)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration instead of applying")
	return cmd
}

func newSeedQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-questions",
		Short: "Insert the core interview questions that are not yet present",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			db, err := connectDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			questionService, err := services.NewQuestionService(
				repositories.NewQuestionTemplateRepository(),
				repositories.NewAccountRepository(),
				repositories.NewInteractionRepository(),
				nil,
				logger,
			)
			if err != nil {
				return err
			}

			scoped, cleanup, err := database.NewScopeProvider(db).WithScope(ctx)
			if err != nil {
				return fmt.Errorf("failed to acquire database connection: %w", err)
			}
			defer cleanup()

			result, err := questionService.Seed(scoped)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d questions, %d already present\n", result.Inserted, result.Existing)
			return nil
		},
	}
}

func newCheckLLMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-llm",
		Short: "Send a minimal prompt to the generation gateway and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client, err := llm.NewClientFromConfig(cfg.LLM, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			result := llm.NewConnectionTester(client).Test(ctx)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("generation gateway check failed: %s", result.Message)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func connectDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	db, err := database.NewConnection(ctx, cfg.Database.URL(), database.PoolOptions{
		MaxConns: cfg.Database.MaxConnections,
	}, logger.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
