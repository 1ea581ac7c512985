package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"green-assessment-service/internal/domain"
)

func TestQuestionnaireRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionnaireLoader: NewStaticQuestionnaireLoader(sampleQuestionnaire()),
	}
	repo := NewQuestionnaireRepository(loader, time.Minute)

	if _, err := repo.GetQuestionnaire(context.Background(), "green-v1"); err != nil {
		t.Fatalf("get questionnaire: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	q, err := repo.GetQuestionnaire(context.Background(), "green-v1")
	if err != nil {
		t.Fatalf("get questionnaire 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if len(q.Questions) != 1 || q.Questions[0].ID != "re1" {
		t.Fatalf("unexpected questionnaire %+v", q)
	}
}

func TestQuestionnaireRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		QuestionnaireLoader: NewStaticQuestionnaireLoader(sampleQuestionnaire()),
	}
	repo := NewQuestionnaireRepository(loader, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuestionnaire(context.Background(), "green-v1")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuestionnaire(context.Background(), "green-v1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestStaticLoaderUnknown(t *testing.T) {
	_, err := NewStaticQuestionnaireLoader().LoadQuestionnaire(context.Background(), "missing")
	if !errors.Is(err, domain.ErrQuestionnaireNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	QuestionnaireLoader
	calls int
}

func (l *countingLoader) LoadQuestionnaire(ctx context.Context, id string) (domain.Questionnaire, error) {
	l.calls++
	return l.QuestionnaireLoader.LoadQuestionnaire(ctx, id)
}

func sampleQuestionnaire() domain.Questionnaire {
	return domain.Questionnaire{
		ID:                  "green-v1",
		MaxScorePerQuestion: 5,
		Questions: []domain.Question{
			{
				ID:       "re1",
				Text:     "Do you switch off unused lights and fans?",
				Category: domain.CategoryResourceEfficiency,
				Options:  []domain.Option{{Score: 1, Label: "Never"}, {Score: 5, Label: "Always"}},
			},
		},
	}
}
