package prompt

import (
	"strings"
	"testing"

	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/scoring"
)

func testQuestionnaire() domain.Questionnaire {
	opts := []domain.Option{{Score: 1, Label: "Never"}, {Score: 3, Label: "Sometimes"}, {Score: 5, Label: "Always"}}
	return domain.Questionnaire{
		ID:                  "q",
		MaxScorePerQuestion: 5,
		Questions: []domain.Question{
			{ID: "re1", Text: "Do you switch off lights?", Category: domain.CategoryResourceEfficiency, Options: opts},
			{ID: "re2", Text: "Do you harvest rainwater?", Category: domain.CategoryResourceEfficiency, Options: opts},
			{ID: "re3", Text: "Do you reuse packaging?", Category: domain.CategoryResourceEfficiency, Options: opts},
			{ID: "sr1", Text: "Do you pay fair wages?", Category: domain.CategorySocialResponsibility, Options: opts},
		},
		Weights: domain.WeightTable{"Retail Shop": {"re1": 1.5}},
	}
}

func answer(q domain.Questionnaire, id string, score int) domain.Answer {
	question, _ := q.Question(id)
	return domain.Answer{QuestionID: id, Score: score, Text: question.Text, Category: question.Category}
}

func TestRecommendationIncludesContextAndLowScores(t *testing.T) {
	q := testQuestionnaire()
	pre := domain.PreAssessment{
		BusinessName:        "Rahim Store",
		BusinessType:        "Retail Shop",
		Location:            "Khulna",
		EmployeeCount:       domain.EmployeesThreeToFive,
		BusinessDescription: "Sells dry fish",
	}
	answers := map[string]domain.Answer{
		"re1": answer(q, "re1", 1),
		"re2": answer(q, "re2", 1),
		"re3": answer(q, "re3", 1),
		"sr1": answer(q, "sr1", 5),
	}
	in := Input{Pre: pre, Questionnaire: q, Answers: answers, Summary: scoring.Summarize(q, &pre, answers)}

	got := Recommendation(in)
	for _, want := range []string{
		"Business name: Rahim Store",
		"Business description: Sells dry fish",
		"did not state a specific main challenge or goal",
		"Resource Efficiency (weighted score",
		`"Do you switch off lights?" (score 1/5, weighted 1.50/7.50)`,
		`"Do you harvest rainwater?" (score 1/5, weighted 1.00/5.00)`,
		"with 3-5 employees",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Do you reuse packaging?") {
		t.Fatalf("expected at most two examples per category")
	}
	if strings.Contains(got, "Social Responsibility (weighted") {
		t.Fatalf("strong category should not be listed as an improvement area")
	}
}

func TestImprovementAreasWhenAllStrong(t *testing.T) {
	q := testQuestionnaire()
	pre := domain.PreAssessment{BusinessName: "X", BusinessType: "Other", EmployeeCount: domain.EmployeesUnknown}
	answers := map[string]domain.Answer{}
	for _, question := range q.Questions {
		answers[question.ID] = answer(q, question.ID, 5)
	}
	in := Input{Pre: pre, Questionnaire: q, Answers: answers, Summary: scoring.Summarize(q, &pre, answers)}
	if got := ImprovementAreas(in); got != "The business performed well overall." {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestImprovementAreasUsesUnroundedRatio(t *testing.T) {
	in := Input{
		Questionnaire: testQuestionnaire(),
		Answers:       map[string]domain.Answer{},
		Summary: scoring.Summary{Categories: []domain.CategoryScore{
			{Category: domain.CategoryResourceEfficiency, Label: "Resource Efficiency", Score: 2.98, MaxScore: 5, Percentage: 60},
			{Category: domain.CategorySocialResponsibility, Label: "Social Responsibility", Score: 3, MaxScore: 5, Percentage: 60},
		}},
	}
	got := ImprovementAreas(in)
	if !strings.Contains(got, "Resource Efficiency (weighted score 2.98/5.00)") {
		t.Fatalf("59.6%% category should need improvement:\n%s", got)
	}
	if strings.Contains(got, "Social Responsibility") {
		t.Fatalf("exactly 60%% should not need improvement:\n%s", got)
	}
}

func TestBusinessContextWithGoal(t *testing.T) {
	got := BusinessContext(domain.PreAssessment{BusinessName: "A", MainChallengeOrGoal: "Reduce plastic"})
	if !strings.Contains(got, "Main challenge or goal stated by the business: Reduce plastic") {
		t.Fatalf("goal missing: %s", got)
	}
	if strings.Contains(got, "Business description") {
		t.Fatalf("empty description should be omitted: %s", got)
	}
}

func TestPlanRefinementEmbedsPlanAndRequest(t *testing.T) {
	plan := domain.BusinessPlan{PlanTitle: "Green Growth"}
	got, err := PlanRefinement(plan, "add solar")
	if err != nil {
		t.Fatalf("refinement: %v", err)
	}
	if !strings.HasPrefix(got, `CURRENT_PLAN_JSON_START {"planTitle":"Green Growth"`) {
		t.Fatalf("unexpected prefix: %s", got)
	}
	if !strings.HasSuffix(got, `USER_REQUEST: "add solar"`) {
		t.Fatalf("unexpected suffix: %s", got)
	}
}
