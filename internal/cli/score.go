package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"green-assessment-service/internal/config"
	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/llm"
	"green-assessment-service/internal/prompt"
	"green-assessment-service/internal/report"
	"green-assessment-service/internal/scoring"
)

// answerFile is the offline input for the score command.
type answerFile struct {
	Business struct {
		Name        string `yaml:"name"`
		Type        string `yaml:"type"`
		Location    string `yaml:"location"`
		Employees   string `yaml:"employees"`
		Description string `yaml:"description"`
		Goal        string `yaml:"goal"`
	} `yaml:"business"`
	Answers         map[string]int `yaml:"answers"`
	Recommendations string         `yaml:"recommendations"`
}

// NewScoreCmd scores a completed answer file without running the server.
func NewScoreCmd(configPath *string) *cobra.Command {
	var (
		answersPath string
		file        string
		asCSV       bool
		asJSON      bool
		recommend   bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a YAML answer file and print the summary or CSV report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return err
			}
			q, err := loadQuestionnaire(cmd.Context(), cfg, file)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(answersPath)
			if err != nil {
				return err
			}
			var in answerFile
			if err := yaml.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("decode answers: %w", err)
			}
			pre, answers, err := buildAnswers(q, in)
			if err != nil {
				return err
			}
			summary := scoring.Summarize(q, &pre, answers)

			if recommend {
				text := prompt.Recommendation(prompt.Input{Pre: pre, Questionnaire: q, Answers: answers, Summary: summary})
				recs, err := llm.NewRecommender(newLLMClient(cfg)).Recommend(cmd.Context(), text)
				if err != nil {
					return fmt.Errorf("generate recommendations: %w", err)
				}
				in.Recommendations = recs
			}

			out := cmd.OutOrStdout()
			switch {
			case asCSV:
				return report.WriteCSV(out, report.Build(q, pre, answers, summary, in.Recommendations))
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			default:
				if err := printSummary(out, pre, summary); err != nil {
					return err
				}
				if in.Recommendations != "" {
					fmt.Fprintf(out, "\nRecommendations:\n%s\n", in.Recommendations)
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&answersPath, "answers", "", "YAML file with business details and answers")
	cmd.Flags().StringVar(&file, "questionnaire", "", "YAML questionnaire file (defaults to the bundled one)")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "print the detailed CSV report")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVar(&recommend, "recommend", false, "fetch recommendations from the generation service before printing")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

func buildAnswers(q domain.Questionnaire, in answerFile) (domain.PreAssessment, map[string]domain.Answer, error) {
	pre := domain.PreAssessment{
		BusinessName:        in.Business.Name,
		BusinessType:        in.Business.Type,
		Location:            in.Business.Location,
		EmployeeCount:       domain.EmployeeCount(in.Business.Employees),
		BusinessDescription: in.Business.Description,
		MainChallengeOrGoal: in.Business.Goal,
	}.Normalize()
	if err := pre.Validate(q); err != nil {
		return domain.PreAssessment{}, nil, err
	}

	answers := make(map[string]domain.Answer, len(in.Answers))
	for id, score := range in.Answers {
		question, ok := q.Question(id)
		if !ok {
			return domain.PreAssessment{}, nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
		}
		if !question.HasScore(score) {
			return domain.PreAssessment{}, nil, fmt.Errorf("%w: %s=%d", domain.ErrOptionNotFound, id, score)
		}
		answers[id] = domain.Answer{QuestionID: id, Score: score, Text: question.Text, Category: question.Category}
	}
	return pre, answers, nil
}

func printSummary(w io.Writer, pre domain.PreAssessment, s scoring.Summary) error {
	fmt.Fprintf(w, "%s (%s, %s)\n", pre.BusinessName, pre.BusinessType, pre.Location)
	fmt.Fprintf(w, "Overall: %d%% (%s) %.2f / %.2f, %d of %d answered\n\n",
		s.Percentage, s.Rating, s.WeightedScore, s.WeightedMax, s.Answered, s.Total)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSCORE\tMAX\tPERCENT\tBAND")
	for _, c := range s.Categories {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%d%%\t%s\n", c.Label, c.Score, c.MaxScore, c.Percentage, scoring.Classify(c.Percentage))
	}
	return tw.Flush()
}
