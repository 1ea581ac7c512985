package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"green-assessment-service/internal/config"
	"green-assessment-service/internal/domain"
	pgloader "green-assessment-service/internal/infra/postgres"
	"green-assessment-service/internal/questionnaire"
)

// NewQuestionsCmd prints the active questionnaire.
func NewQuestionsCmd(configPath *string) *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Print the questionnaire grouped by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return err
			}
			q, err := loadQuestionnaire(cmd.Context(), cfg, file)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(q)
			}
			printQuestionnaire(cmd.OutOrStdout(), q)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "questionnaire", "", "YAML questionnaire file (defaults to the bundled one)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// loadQuestionnaire prefers an explicit file, then Postgres when configured,
// then the bundled questionnaire.
func loadQuestionnaire(ctx context.Context, cfg config.Config, file string) (domain.Questionnaire, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return domain.Questionnaire{}, err
		}
		return questionnaire.Parse(data)
	}
	if cfg.Postgres.URL == "" {
		return questionnaire.Default()
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return domain.Questionnaire{}, fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	id := cfg.Questionnaire.ID
	if id == "" {
		id = questionnaire.DefaultID
	}
	return pgloader.NewQuestionnaireLoader(pool).LoadQuestionnaire(ctx, id)
}

func printQuestionnaire(w io.Writer, q domain.Questionnaire) {
	fmt.Fprintf(w, "%s (%s)\n", q.Title, q.ID)
	number := 0
	for _, category := range domain.Categories {
		printed := false
		for _, question := range q.Questions {
			if question.Category != category {
				continue
			}
			if !printed {
				fmt.Fprintf(w, "\n== %s ==\n", category.Label())
				printed = true
			}
			number++
			fmt.Fprintf(w, "%2d. [%s] %s\n", number, question.ID, question.Text)
			for _, opt := range question.Options {
				fmt.Fprintf(w, "      %d) %s\n", opt.Score, opt.Label)
			}
		}
	}
}
