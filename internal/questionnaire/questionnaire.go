package questionnaire

import (
	_ "embed"
	"fmt"

	"green-assessment-service/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// DefaultID is the ID of the bundled questionnaire.
const DefaultID = "green-business-v1"

// Default returns the bundled questionnaire.
func Default() (domain.Questionnaire, error) {
	return Parse(defaultYAML)
}

// MustDefault panics if the bundled questionnaire is invalid.
func MustDefault() domain.Questionnaire {
	q, err := Default()
	if err != nil {
		panic(err)
	}
	return q
}

// Parse decodes a YAML questionnaire and validates it.
func Parse(data []byte) (domain.Questionnaire, error) {
	var q domain.Questionnaire
	if err := yaml.Unmarshal(data, &q); err != nil {
		return domain.Questionnaire{}, fmt.Errorf("decode questionnaire: %w", err)
	}
	if err := Validate(q); err != nil {
		return domain.Questionnaire{}, err
	}
	return q, nil
}

// Validate checks that question IDs are unique, categories are known, option
// scores fall within 1..MaxScorePerQuestion and every weight is positive and
// references a known question.
func Validate(q domain.Questionnaire) error {
	if q.ID == "" {
		return fmt.Errorf("questionnaire id is empty")
	}
	if q.MaxScorePerQuestion <= 0 {
		return fmt.Errorf("questionnaire %s: maxScorePerQuestion must be positive", q.ID)
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("questionnaire %s: no questions", q.ID)
	}

	seen := make(map[string]struct{}, len(q.Questions))
	for _, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("questionnaire %s: question with empty id", q.ID)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("questionnaire %s: duplicate question %s", q.ID, question.ID)
		}
		seen[question.ID] = struct{}{}
		if !question.Category.Valid() {
			return fmt.Errorf("question %s: unknown category %q", question.ID, question.Category)
		}
		if len(question.Options) == 0 {
			return fmt.Errorf("question %s: no options", question.ID)
		}
		for _, opt := range question.Options {
			if opt.Score < 1 || opt.Score > q.MaxScorePerQuestion {
				return fmt.Errorf("question %s: option score %d outside 1..%d", question.ID, opt.Score, q.MaxScorePerQuestion)
			}
		}
	}

	for businessType, row := range q.Weights {
		for questionID, weight := range row {
			if _, ok := seen[questionID]; !ok {
				return fmt.Errorf("weights %s: unknown question %s", businessType, questionID)
			}
			if weight <= 0 {
				return fmt.Errorf("weights %s/%s: weight must be positive", businessType, questionID)
			}
		}
	}
	return nil
}
