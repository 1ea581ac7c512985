package questionnaire

import (
	"strings"
	"testing"

	"green-assessment-service/internal/domain"
)

func TestDefaultQuestionnaireIsValid(t *testing.T) {
	q, err := Default()
	if err != nil {
		t.Fatalf("default questionnaire: %v", err)
	}
	if q.ID != DefaultID {
		t.Fatalf("expected id %s, got %s", DefaultID, q.ID)
	}
	if q.MaxScorePerQuestion != 5 {
		t.Fatalf("expected max score 5, got %d", q.MaxScorePerQuestion)
	}

	perCategory := make(map[domain.Category]int)
	for _, question := range q.Questions {
		perCategory[question.Category]++
	}
	for _, c := range domain.Categories {
		if perCategory[c] == 0 {
			t.Fatalf("category %s has no questions", c)
		}
	}
	for businessType := range q.Weights {
		found := false
		for _, known := range q.BusinessTypes {
			if known == businessType {
				found = true
			}
		}
		if !found {
			t.Fatalf("weight row %q is not a listed business type", businessType)
		}
	}
}

func TestValidateRejectsBadContent(t *testing.T) {
	base := func() domain.Questionnaire {
		return domain.Questionnaire{
			ID:                  "q",
			MaxScorePerQuestion: 5,
			Questions: []domain.Question{
				{ID: "a", Category: domain.CategoryClimateChange, Options: []domain.Option{{Score: 1}, {Score: 5}}},
			},
		}
	}

	cases := map[string]func(*domain.Questionnaire){
		"duplicate question": func(q *domain.Questionnaire) { q.Questions = append(q.Questions, q.Questions[0]) },
		"unknown category":   func(q *domain.Questionnaire) { q.Questions[0].Category = "nope" },
		"score too high":     func(q *domain.Questionnaire) { q.Questions[0].Options[1].Score = 6 },
		"unknown weight":     func(q *domain.Questionnaire) { q.Weights = domain.WeightTable{"Shop": {"zzz": 1}} },
		"negative weight":    func(q *domain.Questionnaire) { q.Weights = domain.WeightTable{"Shop": {"a": -1}} },
		"no questions":       func(q *domain.Questionnaire) { q.Questions = nil },
	}
	for name, mutate := range cases {
		q := base()
		mutate(&q)
		if err := Validate(q); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	if err := Validate(base()); err != nil {
		t.Fatalf("base questionnaire should validate: %v", err)
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("id: [")); err == nil || !strings.Contains(err.Error(), "decode questionnaire") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
