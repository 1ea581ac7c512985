package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"green-assessment-service/internal/config"
	"green-assessment-service/internal/infra/postgres"
	"green-assessment-service/internal/logging"
	"green-assessment-service/internal/questionnaire"
)

// NewMigrateCmd applies database migrations and seeds the bundled questionnaire.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var noSeed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and seed questionnaire content",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
			defer func() { _ = logger.Sync() }()
			return runMigrationsWithConfig(cmd.Context(), cfg, !noSeed, logger)
		},
	}
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "skip upserting the bundled questionnaire")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, seed bool, logger *zap.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.OpenBun(cfg.Postgres.URL)
	defer db.Close()

	group, err := postgres.Migrate(ctx, db)
	if err != nil {
		return err
	}
	if group.IsZero() {
		logger.Info("migrations_up_to_date")
	} else {
		logger.Info("migrations_applied", zap.String("group", group.String()))
	}

	if !seed {
		return nil
	}
	q, err := questionnaire.Default()
	if err != nil {
		return err
	}
	if err := postgres.SeedQuestionnaire(ctx, db, q); err != nil {
		return err
	}
	logger.Info("questionnaire_seeded", zap.String("questionnaire", q.ID), zap.Int("questions", len(q.Questions)))
	return nil
}
