package app

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/llm"
	"green-assessment-service/internal/metrics"
	"green-assessment-service/internal/prompt"
	"green-assessment-service/internal/scoring"
)

// SessionRepository abstracts how assessment sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	Save(session *Session)
	Get(id string) (*Session, bool)
	Delete(id string)
	// SaveSnapshot mirrors the latest state; failures are not fatal.
	SaveSnapshot(ctx context.Context, snap domain.SessionSnapshot) error
}

// QuestionnaireRepository loads questionnaire content (from cache/backing store).
type QuestionnaireRepository interface {
	GetQuestionnaire(ctx context.Context, id string) (domain.Questionnaire, error)
}

// Recommender streams narrative recommendations for a prompt.
type Recommender interface {
	StreamRecommendations(ctx context.Context, prompt string) (<-chan string, <-chan error)
}

// Planner drafts and refines structured business plans.
type Planner interface {
	GeneratePlan(ctx context.Context, prompt string) (domain.BusinessPlan, error)
	RefinePlan(ctx context.Context, current domain.BusinessPlan, request string) (domain.BusinessPlan, error)
}

// Results is everything needed to render the completed assessment.
type Results struct {
	Session         domain.SessionSnapshot
	Questionnaire   domain.Questionnaire
	PreAssessment   *domain.PreAssessment
	Answers         map[string]domain.Answer
	Summary         scoring.Summary
	Recommendations string
}

// AssessmentService contains the assessment use cases.
type AssessmentService struct {
	sessions       SessionRepository
	questionnaires QuestionnaireRepository
	recommender    Recommender
	planner        Planner
	defaultID      string
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// Option customises an AssessmentService.
type Option func(*AssessmentService)

func WithLogger(logger *zap.Logger) Option {
	return func(s *AssessmentService) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *AssessmentService) { s.metrics = m }
}

func NewAssessmentService(sessions SessionRepository, questionnaires QuestionnaireRepository, recommender Recommender, planner Planner, defaultQuestionnaireID string, opts ...Option) *AssessmentService {
	s := &AssessmentService{
		sessions:       sessions,
		questionnaires: questionnaires,
		recommender:    recommender,
		planner:        planner,
		defaultID:      defaultQuestionnaireID,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Questionnaire returns questionnaire content; an empty id selects the default.
func (s *AssessmentService) Questionnaire(ctx context.Context, id string) (domain.Questionnaire, error) {
	if id == "" {
		id = s.defaultID
	}
	return s.questionnaires.GetQuestionnaire(ctx, id)
}

// CreateSession opens a new session in the welcome stage.
func (s *AssessmentService) CreateSession(ctx context.Context, questionnaireID string) (domain.SessionSnapshot, error) {
	q, err := s.Questionnaire(ctx, questionnaireID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	session := NewSession(uuid.NewString(), q.ID)
	s.sessions.Save(session)
	snap := session.Snapshot()
	s.persist(ctx, snap)
	s.logger.Info("session_created", zap.String("session", snap.ID), zap.String("questionnaire", q.ID))
	return snap, nil
}

// GetSession returns the current snapshot.
func (s *AssessmentService) GetSession(_ context.Context, id string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// DeleteSession drops a session and closes its subscriptions.
func (s *AssessmentService) DeleteSession(_ context.Context, id string) error {
	session, ok := s.sessions.Get(id)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions.Delete(id)
	session.Close()
	return nil
}

// Start moves a session from welcome to the pre-assessment form.
func (s *AssessmentService) Start(ctx context.Context, id string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.start()
	return s.after(ctx, snap, err)
}

// SubmitPreAssessment records business metadata and begins answering.
func (s *AssessmentService) SubmitPreAssessment(ctx context.Context, id string, data domain.PreAssessment) (domain.SessionSnapshot, error) {
	session, q, err := s.load(ctx, id)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	snap, err := session.submitPreAssessment(q, data)
	return s.after(ctx, snap, err)
}

// RecordAnswer stores an answer and advances, completing after the last question.
func (s *AssessmentService) RecordAnswer(ctx context.Context, id, questionID string, score int) (domain.SessionSnapshot, error) {
	session, q, err := s.load(ctx, id)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	snap, completed, err := session.recordAnswer(q, questionID, score)
	if err == nil && completed {
		pre, answers, _ := session.results()
		summary := scoring.Summarize(q, pre, answers)
		if s.metrics != nil {
			s.metrics.ObserveCompletion(summary.Percentage)
		}
		s.logger.Info("assessment_completed",
			zap.String("session", id),
			zap.Int("percentage", summary.Percentage),
			zap.String("rating", string(summary.Rating)),
		)
	}
	return s.after(ctx, snap, err)
}

// GoBack steps to the previous question, or reopens a completed assessment.
func (s *AssessmentService) GoBack(ctx context.Context, id string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.goBack()
	return s.after(ctx, snap, err)
}

// Jump moves to any question index.
func (s *AssessmentService) Jump(ctx context.Context, id string, index int) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.jump(index)
	return s.after(ctx, snap, err)
}

// Restart clears the session back to welcome.
func (s *AssessmentService) Restart(ctx context.Context, id string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return s.after(ctx, session.restart(), nil)
}

// Results scores the session's current answers.
func (s *AssessmentService) Results(ctx context.Context, id string) (Results, error) {
	session, q, err := s.load(ctx, id)
	if err != nil {
		return Results{}, err
	}
	pre, answers, recs := session.results()
	return Results{
		Session:         session.Snapshot(),
		Questionnaire:   q,
		PreAssessment:   pre,
		Answers:         answers,
		Summary:         scoring.Summarize(q, pre, answers),
		Recommendations: recs,
	}, nil
}

// GenerateRecommendations runs the one-shot recommendation fetch. It
// returns immediately with the current state when the gate is closed, and
// otherwise blocks until the stream ends. Remote failures are recorded on
// the session and returned.
func (s *AssessmentService) GenerateRecommendations(ctx context.Context, id string) (domain.SessionSnapshot, error) {
	session, q, err := s.load(ctx, id)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	gen, input, started, snap, err := session.beginRecommendations(q)
	if err != nil || !started {
		return snap, err
	}
	s.logger.Info("recommendations_requested", zap.String("session", id), zap.Uint64("generation", gen))

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	chunks, errs := s.recommender.StreamRecommendations(streamCtx, prompt.Recommendation(input))
	stale := false
	for chunk := range chunks {
		if !session.appendChunk(gen, chunk) {
			stale = true
			cancel()
			break
		}
	}
	for range chunks {
	}
	streamErr := <-errs
	if stale {
		s.logger.Info("recommendations_discarded", zap.String("session", id), zap.Uint64("generation", gen))
		s.observeFetch("stale")
		return session.Snapshot(), nil
	}

	msg, code := "", ""
	if streamErr != nil {
		msg, code = describeError(streamErr)
	}
	snap, applied := session.finishRecommendations(gen, msg, code)
	switch {
	case !applied:
		s.observeFetch("stale")
	case streamErr != nil:
		s.observeFetch("error")
		s.logger.Warn("recommendations_failed", zap.String("session", id), zap.String("code", code), zap.Error(streamErr))
	default:
		s.observeFetch("success")
	}
	s.persist(ctx, snap)
	if applied && streamErr != nil {
		return snap, streamErr
	}
	return snap, nil
}

// GeneratePlan drafts a business plan from the recommendations.
func (s *AssessmentService) GeneratePlan(ctx context.Context, id string) (domain.SessionSnapshot, error) {
	session, q, err := s.load(ctx, id)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	gen, pre, percentage, recs, err := session.planContext(q)
	if err != nil {
		return session.Snapshot(), err
	}

	plan, err := s.planner.GeneratePlan(ctx, prompt.Plan(pre, percentage, recs))
	if err != nil {
		s.observePlan("generate", "error")
		s.logger.Warn("plan_generation_failed", zap.String("session", id), zap.Error(err))
		msg, code := describeError(err)
		snap := session.setError(gen, msg, code)
		s.persist(ctx, snap)
		return snap, err
	}
	snap, _ := session.setPlan(gen, plan)
	s.observePlan("generate", "success")
	s.persist(ctx, snap)
	return snap, nil
}

// RefinePlan applies a free-text change request to the current plan. On
// failure the previous plan is kept.
func (s *AssessmentService) RefinePlan(ctx context.Context, id, request string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	request = strings.TrimSpace(request)
	if request == "" {
		return session.Snapshot(), domain.ErrEmptyRequest
	}
	gen, current, err := session.currentPlan()
	if err != nil {
		return session.Snapshot(), err
	}
	session.addChat(gen, domain.ChatMessage{Sender: domain.SenderUser, Text: request})

	plan, err := s.planner.RefinePlan(ctx, current, request)
	if err != nil {
		s.observePlan("refine", "error")
		s.logger.Warn("plan_refinement_failed", zap.String("session", id), zap.Error(err))
		msg, code := describeError(err)
		snap := session.failRefinement(gen, msg, code)
		s.persist(ctx, snap)
		return snap, err
	}
	snap := session.applyRefinement(gen, plan)
	s.observePlan("refine", "success")
	s.persist(ctx, snap)
	return snap, nil
}

// Subscribe returns a channel that receives session events.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *AssessmentService) Subscribe(_ context.Context, id string) (<-chan Event, func(), error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

func (s *AssessmentService) load(ctx context.Context, id string) (*Session, domain.Questionnaire, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.Questionnaire{}, domain.ErrSessionNotFound
	}
	q, err := s.questionnaires.GetQuestionnaire(ctx, session.QuestionnaireID())
	if err != nil {
		return nil, domain.Questionnaire{}, err
	}
	return session, q, nil
}

func (s *AssessmentService) after(ctx context.Context, snap domain.SessionSnapshot, err error) (domain.SessionSnapshot, error) {
	if err == nil {
		s.persist(ctx, snap)
	}
	return snap, err
}

func (s *AssessmentService) persist(ctx context.Context, snap domain.SessionSnapshot) {
	if err := s.sessions.SaveSnapshot(ctx, snap); err != nil {
		s.logger.Warn("session_snapshot_failed", zap.String("session", snap.ID), zap.Error(err))
	}
}

func (s *AssessmentService) observeFetch(outcome string) {
	if s.metrics != nil {
		s.metrics.RecommendationFetch.WithLabelValues(outcome).Inc()
	}
}

func (s *AssessmentService) observePlan(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.PlanRequests.WithLabelValues(kind, outcome).Inc()
	}
}

// Error codes recorded on sessions alongside the user-facing message.
const (
	CodeAPIKeyMissing = "api_key_missing"
	CodeRemoteError   = "remote_error"
	CodeEmptyResponse = "empty_response"
	CodeMalformedPlan = "malformed_plan"
	CodeRequestFailed = "request_failed"
)

// describeError maps a remote failure to a user-facing message and code.
func describeError(err error) (string, string) {
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, domain.ErrAPIKeyMissing):
		return "The API key is not configured, so recommendations cannot be fetched.", CodeAPIKeyMissing
	case errors.As(err, &apiErr):
		return "The recommendation service returned an error: " + apiErr.Error(), CodeRemoteError
	case errors.Is(err, domain.ErrEmptyResponse):
		return "No recommendations were returned. Please try again.", CodeEmptyResponse
	case errors.Is(err, domain.ErrMalformedPlan):
		return "The business plan could not be read. Please try again.", CodeMalformedPlan
	default:
		return "Failed to fetch recommendations: " + err.Error(), CodeRequestFailed
	}
}
