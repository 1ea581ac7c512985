package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"green-assessment-service/internal/app"
	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/infra/memory"
	"green-assessment-service/internal/llm"
	"green-assessment-service/internal/metrics"
)

func TestAssessmentFlowScoresAndCompletes(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecommender{chunks: []string{"1. **Solar** lamps"}}, &fakePlanner{})

	snap := startAnswering(t, service)
	if snap.Stage != domain.StageAnswering || snap.TotalQuestions != 3 {
		t.Fatalf("unexpected snapshot after pre-assessment: %+v", snap)
	}

	snap = answerAll(t, service, snap.ID, 5, 4, 4)
	if snap.Stage != domain.StageCompleted || snap.CompletedAt == nil {
		t.Fatalf("expected completed stage, got %+v", snap)
	}

	results, err := service.Results(ctx, snap.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	// Retail Shop weights q1 by 1.5: 7.5 + 4 + 4 = 15.5 over 7.5 + 5 + 5 = 17.5.
	if results.Summary.WeightedScore != 15.5 || results.Summary.WeightedMax != 17.5 || results.Summary.Percentage != 89 {
		t.Fatalf("unexpected summary %+v", results.Summary)
	}
}

func TestPreAssessmentRequiresBusinessName(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecommender{}, &fakePlanner{})
	snap, _ := service.CreateSession(ctx, "")
	if _, err := service.Start(ctx, snap.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, err := service.SubmitPreAssessment(ctx, snap.ID, domain.PreAssessment{BusinessName: "   ", BusinessType: "Retail Shop"})
	if !errors.Is(err, domain.ErrBusinessNameRequired) {
		t.Fatalf("expected business name error, got %v", err)
	}
	if snap.Stage != domain.StagePreAssessment {
		t.Fatalf("expected to stay on pre-assessment, got %s", snap.Stage)
	}
}

func TestRecordAnswerRejectsUnknownScore(t *testing.T) {
	service, _ := newTestService(&fakeRecommender{}, &fakePlanner{})
	snap := startAnswering(t, service)
	if _, err := service.RecordAnswer(context.Background(), snap.ID, "q1", 9); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option error, got %v", err)
	}
	if _, err := service.RecordAnswer(context.Background(), snap.ID, "nope", 1); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question error, got %v", err)
	}
}

func TestRecordAnswerOnlyAcceptsCurrentQuestion(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecommender{}, &fakePlanner{})
	snap := startAnswering(t, service)

	// answering the last question from index 0 must not complete the assessment
	if _, err := service.RecordAnswer(ctx, snap.ID, "q3", 5); !errors.Is(err, domain.ErrNotCurrentQuestion) {
		t.Fatalf("expected ErrNotCurrentQuestion, got %v", err)
	}
	snap, err := service.GetSession(ctx, snap.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Stage != domain.StageAnswering || snap.CurrentIndex != 0 || len(snap.Answers) != 0 {
		t.Fatalf("session changed by rejected answer: %+v", snap)
	}

	// after jumping back, answering advances from the current index
	snap = answerAll(t, service, snap.ID, 2, 2)
	if snap, err = service.Jump(ctx, snap.ID, 0); err != nil {
		t.Fatalf("jump: %v", err)
	}
	if snap, err = service.RecordAnswer(ctx, snap.ID, "q1", 4); err != nil {
		t.Fatalf("re-answer: %v", err)
	}
	if snap.CurrentIndex != 1 || snap.Stage != domain.StageAnswering || snap.Answers[0].Score != 4 {
		t.Fatalf("expected to move to index 1 with updated answer, got %+v", snap)
	}
}

func TestNavigationDiscardsRecommendations(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecommender{chunks: []string{"Do ", "this."}}, &fakePlanner{})
	snap := answerAll(t, service, startAnswering(t, service).ID, 1, 1, 1)

	snap, err := service.GenerateRecommendations(ctx, snap.ID)
	if err != nil {
		t.Fatalf("recommendations: %v", err)
	}
	if snap.Recommendations != "Do this." || snap.LoadingRecommendations {
		t.Fatalf("unexpected recommendations state %+v", snap)
	}

	// Already fetched: the one-shot gate stays closed.
	again, err := service.GenerateRecommendations(ctx, snap.ID)
	if err != nil || again.Recommendations != "Do this." {
		t.Fatalf("expected unchanged snapshot, got %+v, %v", again, err)
	}

	snap, err = service.GoBack(ctx, snap.ID)
	if err != nil {
		t.Fatalf("go back: %v", err)
	}
	if snap.Stage != domain.StageAnswering || snap.CurrentIndex != 2 || snap.Recommendations != "" {
		t.Fatalf("expected answering at last question with cleared text, got %+v", snap)
	}
	if len(snap.Answers) != 3 {
		t.Fatalf("answers must survive navigation, got %d", len(snap.Answers))
	}

	if _, err := service.Jump(ctx, snap.ID, 3); !errors.Is(err, domain.ErrIndexOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	snap, err = service.Jump(ctx, snap.ID, 0)
	if err != nil || snap.CurrentIndex != 0 {
		t.Fatalf("jump: %+v, %v", snap, err)
	}
}

func TestGenerateRecommendationsSkippedBeforeCompletion(t *testing.T) {
	rec := &fakeRecommender{chunks: []string{"x"}}
	service, _ := newTestService(rec, &fakePlanner{})
	snap := startAnswering(t, service)
	snap, err := service.GenerateRecommendations(context.Background(), snap.ID)
	if err != nil || snap.Recommendations != "" || rec.calls != 0 {
		t.Fatalf("expected no fetch before completion, got %+v, %v, calls %d", snap, err, rec.calls)
	}
}

func TestRecommendationFailureRecordsError(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecommender{chunks: []string{"partial"}, err: domain.ErrAPIKeyMissing}
	service, m := newTestService(rec, &fakePlanner{})
	snap := answerAll(t, service, startAnswering(t, service).ID, 3, 3, 3)

	snap, err := service.GenerateRecommendations(ctx, snap.ID)
	if !errors.Is(err, domain.ErrAPIKeyMissing) {
		t.Fatalf("expected api key error, got %v", err)
	}
	if snap.Recommendations != "" || snap.LoadingRecommendations || snap.ErrorCode != app.CodeAPIKeyMissing || snap.Error == "" {
		t.Fatalf("unexpected failure state %+v", snap)
	}
	if got := testutil.ToFloat64(m.RecommendationFetch.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected one error fetch, got %v", got)
	}

	// The gate reopens after a failure so the user can retry.
	rec.err = nil
	snap, err = service.GenerateRecommendations(ctx, snap.ID)
	if err != nil || snap.Recommendations != "partial" || snap.Error != "" {
		t.Fatalf("expected retry to succeed, got %+v, %v", snap, err)
	}
}

func TestRemoteErrorCode(t *testing.T) {
	rec := &fakeRecommender{err: &llm.APIError{StatusCode: 500, Body: "boom"}}
	service, _ := newTestService(rec, &fakePlanner{})
	snap := answerAll(t, service, startAnswering(t, service).ID, 3, 3, 3)
	snap, _ = service.GenerateRecommendations(context.Background(), snap.ID)
	if snap.ErrorCode != app.CodeRemoteError || !strings.Contains(snap.Error, "boom") {
		t.Fatalf("unexpected error state %+v", snap)
	}
}

func TestStaleChunksDiscardedAfterRestart(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	rec := &fakeRecommender{chunks: []string{"first ", "second"}, gate: release}
	service, _ := newTestService(rec, &fakePlanner{})
	snap := answerAll(t, service, startAnswering(t, service).ID, 2, 2, 2)

	done := make(chan domain.SessionSnapshot, 1)
	go func() {
		result, _ := service.GenerateRecommendations(ctx, snap.ID)
		done <- result
	}()

	waitFor(t, func() bool {
		current, _ := service.GetSession(ctx, snap.ID)
		return current.Recommendations == "first "
	})
	if _, err := service.Restart(ctx, snap.ID); err != nil {
		t.Fatalf("restart: %v", err)
	}
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("fetch did not finish")
	}
	current, _ := service.GetSession(ctx, snap.ID)
	if current.Stage != domain.StageWelcome || current.Recommendations != "" || current.LoadingRecommendations || len(current.Answers) != 0 {
		t.Fatalf("stale fetch leaked into restarted session: %+v", current)
	}
}

func TestPlanGenerationAndRefinement(t *testing.T) {
	ctx := context.Background()
	planner := &fakePlanner{plan: samplePlan("Green Growth")}
	service, _ := newTestService(&fakeRecommender{chunks: []string{"Use solar."}}, planner)
	snap := answerAll(t, service, startAnswering(t, service).ID, 4, 4, 4)

	if _, err := service.GeneratePlan(ctx, snap.ID); !errors.Is(err, domain.ErrRecommendationsRequired) {
		t.Fatalf("expected recommendations required, got %v", err)
	}
	if _, err := service.GenerateRecommendations(ctx, snap.ID); err != nil {
		t.Fatalf("recommendations: %v", err)
	}

	snap, err := service.GeneratePlan(ctx, snap.ID)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if snap.Plan == nil || snap.Plan.PlanTitle != "Green Growth" || len(snap.PlanChat) != 1 {
		t.Fatalf("unexpected plan state %+v", snap)
	}
	if !strings.Contains(planner.lastPrompt, "Use solar.") {
		t.Fatalf("plan prompt should carry recommendations: %s", planner.lastPrompt)
	}

	if _, err := service.RefinePlan(ctx, snap.ID, "  "); !errors.Is(err, domain.ErrEmptyRequest) {
		t.Fatalf("expected empty request error, got %v", err)
	}

	planner.refineErr = domain.ErrMalformedPlan
	snap, err = service.RefinePlan(ctx, snap.ID, "add a goal")
	if !errors.Is(err, domain.ErrMalformedPlan) {
		t.Fatalf("expected malformed plan, got %v", err)
	}
	if snap.Plan.PlanTitle != "Green Growth" || len(snap.PlanChat) != 3 || snap.ErrorCode != app.CodeMalformedPlan {
		t.Fatalf("failed refinement must keep the plan: %+v", snap)
	}
	if snap.PlanChat[2].Text != "Sorry, I couldn't process your request. Please try again." {
		t.Fatalf("unexpected assistant message %q", snap.PlanChat[2].Text)
	}

	planner.refineErr = nil
	planner.plan = samplePlan("Greener Growth")
	snap, err = service.RefinePlan(ctx, snap.ID, "rename it")
	if err != nil || snap.Plan.PlanTitle != "Greener Growth" || len(snap.PlanChat) != 5 || snap.Error != "" {
		t.Fatalf("unexpected refined state %+v, %v", snap, err)
	}
}

func TestSubscribeReceivesChunks(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecommender{chunks: []string{"a", "b"}}, &fakePlanner{})
	snap := answerAll(t, service, startAnswering(t, service).ID, 1, 2, 3)

	ch, cancel, err := service.Subscribe(ctx, snap.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-ch // initial snapshot

	if _, err := service.GenerateRecommendations(ctx, snap.ID); err != nil {
		t.Fatalf("recommendations: %v", err)
	}

	var chunks []string
	for len(ch) > 0 {
		ev := <-ch
		if ev.Type == app.EventChunk {
			chunks = append(chunks, ev.Chunk)
		}
	}
	if strings.Join(chunks, "") != "ab" {
		t.Fatalf("expected streamed chunks, got %v", chunks)
	}
}

func TestSubscribeInitialSnapshotComesFirst(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecommender{}, &fakePlanner{})
	snap := startAnswering(t, service)

	ch, cancel, err := service.Subscribe(ctx, snap.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if _, err := service.RecordAnswer(ctx, snap.ID, "q1", 3); err != nil {
		t.Fatalf("answer: %v", err)
	}

	first, second := <-ch, <-ch
	if first.Session.CurrentIndex != 0 || second.Session.CurrentIndex != 1 {
		t.Fatalf("events out of order: %d then %d", first.Session.CurrentIndex, second.Session.CurrentIndex)
	}
}

func TestDeleteSessionClosesSubscriptions(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecommender{}, &fakePlanner{})
	snap := startAnswering(t, service)

	ch, cancel, err := service.Subscribe(ctx, snap.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-ch

	if err := service.DeleteSession(ctx, snap.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed")
	}
}

func TestUnknownSession(t *testing.T) {
	service, _ := newTestService(&fakeRecommender{}, &fakePlanner{})
	if _, err := service.RecordAnswer(context.Background(), "missing", "q1", 1); err != domain.ErrSessionNotFound {
		t.Fatalf("expected session error, got %v", err)
	}
}

func newTestService(rec app.Recommender, planner app.Planner) (*app.AssessmentService, *metrics.Metrics) {
	options := []domain.Option{{Score: 1, Label: "Never"}, {Score: 2, Label: "Rarely"}, {Score: 3, Label: "Sometimes"}, {Score: 4, Label: "Often"}, {Score: 5, Label: "Always"}}
	q := domain.Questionnaire{
		ID:                  "green-v1",
		MaxScorePerQuestion: 5,
		BusinessTypes:       []string{"Retail Shop", "Other"},
		Questions: []domain.Question{
			{ID: "q1", Text: "Do you switch off lights?", Category: domain.CategoryResourceEfficiency, Options: options},
			{ID: "q2", Text: "Do you sort waste?", Category: domain.CategoryWastePollution, Options: options},
			{ID: "q3", Text: "Do you plan for cyclones?", Category: domain.CategoryClimateChange, Options: options},
		},
		Weights: domain.WeightTable{"Retail Shop": {"q1": 1.5}},
	}
	repo := memory.NewQuestionnaireRepository(memory.NewStaticQuestionnaireLoader(q), 5*time.Minute)
	m := metrics.New()
	return app.NewAssessmentService(memory.NewSessionStore(), repo, rec, planner, "green-v1", app.WithMetrics(m)), m
}

func startAnswering(t *testing.T, service *app.AssessmentService) domain.SessionSnapshot {
	t.Helper()
	ctx := context.Background()
	snap, err := service.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Start(ctx, snap.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, err = service.SubmitPreAssessment(ctx, snap.ID, domain.PreAssessment{
		BusinessName:  "Rahim Store",
		BusinessType:  "Retail Shop",
		Location:      "Khulna",
		EmployeeCount: domain.EmployeesOneToTwo,
	})
	if err != nil {
		t.Fatalf("pre-assessment: %v", err)
	}
	return snap
}

func answerAll(t *testing.T, service *app.AssessmentService, id string, scores ...int) domain.SessionSnapshot {
	t.Helper()
	var snap domain.SessionSnapshot
	for i, score := range scores {
		var err error
		snap, err = service.RecordAnswer(context.Background(), id, []string{"q1", "q2", "q3"}[i], score)
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	return snap
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}

type fakeRecommender struct {
	chunks []string
	err    error
	gate   chan struct{}
	calls  int
}

func (f *fakeRecommender) StreamRecommendations(ctx context.Context, _ string) (<-chan string, <-chan error) {
	f.calls++
	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for i, chunk := range f.chunks {
			if i == 1 && f.gate != nil {
				<-f.gate
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if f.err != nil {
			errs <- f.err
		}
	}()
	return out, errs
}

type fakePlanner struct {
	plan       domain.BusinessPlan
	refineErr  error
	lastPrompt string
}

func (f *fakePlanner) GeneratePlan(_ context.Context, prompt string) (domain.BusinessPlan, error) {
	f.lastPrompt = prompt
	return f.plan, nil
}

func (f *fakePlanner) RefinePlan(_ context.Context, _ domain.BusinessPlan, _ string) (domain.BusinessPlan, error) {
	if f.refineErr != nil {
		return domain.BusinessPlan{}, f.refineErr
	}
	return f.plan, nil
}

func samplePlan(title string) domain.BusinessPlan {
	return domain.BusinessPlan{
		PlanTitle:        title,
		ExecutiveSummary: "Cut energy use.",
		Goals:            []domain.Goal{{GoalTitle: "Save power", Description: "LED lighting"}},
		ActionSteps:      []domain.ActionStep{{ActionTitle: "Replace bulbs", Details: "Buy LEDs", Timeline: "1 month"}},
	}
}
