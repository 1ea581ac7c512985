package app

import (
	"strings"
	"sync"
	"time"

	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/prompt"
	"green-assessment-service/internal/scoring"
)

// EventType distinguishes full state pushes from streamed text.
type EventType string

const (
	EventSession EventType = "session"
	EventChunk   EventType = "chunk"
)

// Event is pushed to session subscribers.
type Event struct {
	Type    EventType              `json:"type"`
	Chunk   string                 `json:"chunk,omitempty"`
	Session domain.SessionSnapshot `json:"session"`
}

// Session is one user's walk through the assessment. All mutation goes
// through the transition methods below.
type Session struct {
	id              string
	questionnaireID string
	now             func() time.Time

	mu              sync.RWMutex
	generation      uint64
	stage           domain.Stage
	pre             *domain.PreAssessment
	index           int
	order           []string
	answers         map[string]domain.Answer
	recommendations string
	loading         bool
	errMsg          string
	errCode         string
	plan            *domain.BusinessPlan
	planChat        []domain.ChatMessage
	completedAt     *time.Time
	updatedAt       time.Time
	subscribers     map[chan Event]struct{}
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(id, questionnaireID string) *Session {
	return NewSessionWithClock(id, questionnaireID, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(id, questionnaireID string, now func() time.Time) *Session {
	return &Session{
		id:              id,
		questionnaireID: questionnaireID,
		now:             now,
		stage:           domain.StageWelcome,
		answers:         make(map[string]domain.Answer),
		updatedAt:       now(),
		subscribers:     make(map[chan Event]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) QuestionnaireID() string { return s.questionnaireID }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// UpdatedAt is used by stores to expire idle sessions.
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

func (s *Session) start() (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != domain.StageWelcome {
		return s.snapshotLocked(), domain.ErrInvalidTransition
	}
	s.stage = domain.StagePreAssessment
	return s.broadcastLocked(), nil
}

func (s *Session) submitPreAssessment(q domain.Questionnaire, data domain.PreAssessment) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != domain.StagePreAssessment {
		return s.snapshotLocked(), domain.ErrInvalidTransition
	}
	data = data.Normalize()
	if err := data.Validate(q); err != nil {
		return s.snapshotLocked(), err
	}
	s.pre = &data
	s.stage = domain.StageAnswering
	s.index = 0
	s.order = make([]string, len(q.Questions))
	for i, question := range q.Questions {
		s.order[i] = question.ID
	}
	s.clearErrorLocked()
	return s.broadcastLocked(), nil
}

// recordAnswer stores the answer to the current question and advances.
// completed is true only on the transition into the completed stage.
func (s *Session) recordAnswer(q domain.Questionnaire, questionID string, score int) (snap domain.SessionSnapshot, completed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != domain.StageAnswering {
		return s.snapshotLocked(), false, domain.ErrInvalidTransition
	}
	pos := -1
	for i, question := range q.Questions {
		if question.ID == questionID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return s.snapshotLocked(), false, domain.ErrQuestionNotFound
	}
	if s.index >= len(s.order) || s.order[s.index] != questionID {
		return s.snapshotLocked(), false, domain.ErrNotCurrentQuestion
	}
	question := q.Questions[pos]
	if !question.HasScore(score) {
		return s.snapshotLocked(), false, domain.ErrOptionNotFound
	}

	s.answers[question.ID] = domain.Answer{
		QuestionID: question.ID,
		Score:      score,
		Text:       question.Text,
		Category:   question.Category,
	}
	if s.index < len(s.order)-1 {
		s.index++
	} else {
		s.stage = domain.StageCompleted
		at := s.now()
		s.completedAt = &at
		completed = true
	}
	return s.broadcastLocked(), completed, nil
}

func (s *Session) goBack() (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.stage {
	case domain.StageCompleted:
		s.reopenLocked()
	case domain.StageAnswering:
		if s.index > 0 {
			s.index--
		}
	default:
		return s.snapshotLocked(), domain.ErrInvalidTransition
	}
	return s.broadcastLocked(), nil
}

func (s *Session) jump(index int) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != domain.StageAnswering && s.stage != domain.StageCompleted {
		return s.snapshotLocked(), domain.ErrInvalidTransition
	}
	if index < 0 || index >= len(s.order) {
		return s.snapshotLocked(), domain.ErrIndexOutOfRange
	}
	if s.stage == domain.StageCompleted {
		s.reopenLocked()
	}
	s.index = index
	return s.broadcastLocked(), nil
}

// reopenLocked leaves the completed stage. Results derived from the old
// answers are discarded and any in-flight fetch becomes stale.
func (s *Session) reopenLocked() {
	s.stage = domain.StageAnswering
	s.generation++
	s.recommendations = ""
	s.loading = false
	s.plan = nil
	s.planChat = nil
	s.completedAt = nil
	s.clearErrorLocked()
}

func (s *Session) restart() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.stage = domain.StageWelcome
	s.pre = nil
	s.index = 0
	s.order = nil
	s.answers = make(map[string]domain.Answer)
	s.recommendations = ""
	s.loading = false
	s.plan = nil
	s.planChat = nil
	s.completedAt = nil
	s.clearErrorLocked()
	return s.broadcastLocked()
}

// beginRecommendations applies the one-shot gate. It returns started=false
// with a nil error when there is nothing to do.
func (s *Session) beginRecommendations(q domain.Questionnaire) (gen uint64, in prompt.Input, started bool, snap domain.SessionSnapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return 0, prompt.Input{}, false, s.snapshotLocked(), domain.ErrRecommendationInFlight
	}
	if s.stage != domain.StageCompleted || s.recommendations != "" || s.pre == nil {
		return 0, prompt.Input{}, false, s.snapshotLocked(), nil
	}
	s.loading = true
	s.clearErrorLocked()

	answers := s.copyAnswersLocked()
	in = prompt.Input{
		Pre:           *s.pre,
		Questionnaire: q,
		Answers:       answers,
		Summary:       scoring.Summarize(q, s.pre, answers),
	}
	return s.generation, in, true, s.broadcastLocked(), nil
}

// appendChunk reports false when the fetch has gone stale.
func (s *Session) appendChunk(gen uint64, chunk string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || !s.loading {
		return false
	}
	s.recommendations += chunk
	s.updatedAt = s.now()
	snap := s.snapshotLocked()
	s.publishLocked(Event{Type: EventChunk, Chunk: chunk, Session: snap})
	return true
}

// finishRecommendations ends a fetch. On failure partial output is dropped
// and a user-facing error is recorded. Stale fetches change nothing.
func (s *Session) finishRecommendations(gen uint64, errMsg, errCode string) (domain.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return s.snapshotLocked(), false
	}
	s.loading = false
	if errMsg != "" {
		s.recommendations = ""
		s.errMsg = errMsg
		s.errCode = errCode
	} else if strings.TrimSpace(s.recommendations) == "" {
		s.errMsg = "No recommendations were returned. Please try again."
		s.errCode = CodeEmptyResponse
	}
	return s.broadcastLocked(), true
}

// planContext returns what the planner needs, or an error when the session
// has no recommendations yet.
func (s *Session) planContext(q domain.Questionnaire) (gen uint64, pre domain.PreAssessment, percentage int, recs string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stage != domain.StageCompleted || s.pre == nil {
		return 0, domain.PreAssessment{}, 0, "", domain.ErrInvalidTransition
	}
	if s.recommendations == "" || s.loading {
		return 0, domain.PreAssessment{}, 0, "", domain.ErrRecommendationsRequired
	}
	summary := scoring.Summarize(q, s.pre, s.answers)
	return s.generation, *s.pre, summary.Percentage, s.recommendations, nil
}

func (s *Session) setPlan(gen uint64, plan domain.BusinessPlan) (domain.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return s.snapshotLocked(), false
	}
	s.plan = &plan
	s.planChat = []domain.ChatMessage{{
		Sender: domain.SenderAI,
		Text:   `The draft of your "` + plan.PlanTitle + `" plan is ready. Tell me how you would like to change it.`,
	}}
	s.clearErrorLocked()
	return s.broadcastLocked(), true
}

func (s *Session) currentPlan() (uint64, domain.BusinessPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.plan == nil {
		return 0, domain.BusinessPlan{}, domain.ErrPlanRequired
	}
	return s.generation, *s.plan, nil
}

func (s *Session) addChat(gen uint64, msg domain.ChatMessage) domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		s.planChat = append(s.planChat, msg)
	}
	return s.broadcastLocked()
}

func (s *Session) applyRefinement(gen uint64, plan domain.BusinessPlan) domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation && s.plan != nil {
		s.plan = &plan
		s.planChat = append(s.planChat, domain.ChatMessage{
			Sender: domain.SenderAI,
			Text:   "Your plan has been updated. Would you like to change anything else?",
		})
		s.clearErrorLocked()
	}
	return s.broadcastLocked()
}

func (s *Session) failRefinement(gen uint64, errMsg, errCode string) domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		s.planChat = append(s.planChat, domain.ChatMessage{
			Sender: domain.SenderAI,
			Text:   "Sorry, I couldn't process your request. Please try again.",
		})
		s.errMsg = errMsg
		s.errCode = errCode
	}
	return s.broadcastLocked()
}

func (s *Session) setError(gen uint64, errMsg, errCode string) domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		s.errMsg = errMsg
		s.errCode = errCode
	}
	return s.broadcastLocked()
}

// results returns the data scoring and reporting work from.
func (s *Session) results() (*domain.PreAssessment, map[string]domain.Answer, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pre *domain.PreAssessment
	if s.pre != nil {
		copied := *s.pre
		pre = &copied
	}
	return pre, s.copyAnswersLocked(), s.recommendations
}

func (s *Session) clearErrorLocked() {
	s.errMsg = ""
	s.errCode = ""
}

func (s *Session) copyAnswersLocked() map[string]domain.Answer {
	answers := make(map[string]domain.Answer, len(s.answers))
	for id, answer := range s.answers {
		answers[id] = answer
	}
	return answers
}

// Subscribe registers a listener. The first event is always the current
// snapshot; the channel is closed by cancel or by Close.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	// queued under the lock so no broadcast can overtake it
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- Event{Type: EventSession, Session: s.snapshotLocked()}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Close ends every subscription. Stores call it when a session is deleted
// or evicted; it is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Session) broadcastLocked() domain.SessionSnapshot {
	s.updatedAt = s.now()
	snap := s.snapshotLocked()
	s.publishLocked(Event{Type: EventSession, Session: snap})
	return snap
}

func (s *Session) publishLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber: drop its oldest event so the writer never blocks
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	answers := make([]domain.Answer, 0, len(s.answers))
	for _, id := range s.order {
		if answer, ok := s.answers[id]; ok {
			answers = append(answers, answer)
		}
	}

	snap := domain.SessionSnapshot{
		ID:                     s.id,
		Generation:             s.generation,
		Stage:                  s.stage,
		CurrentIndex:           s.index,
		TotalQuestions:         len(s.order),
		Answers:                answers,
		Recommendations:        s.recommendations,
		LoadingRecommendations: s.loading,
		Error:                  s.errMsg,
		ErrorCode:              s.errCode,
		UpdatedAt:              s.updatedAt,
	}
	if s.pre != nil {
		pre := *s.pre
		snap.PreAssessment = &pre
	}
	if s.plan != nil {
		plan := *s.plan
		snap.Plan = &plan
	}
	if len(s.planChat) > 0 {
		snap.PlanChat = append([]domain.ChatMessage(nil), s.planChat...)
	}
	if s.completedAt != nil {
		at := *s.completedAt
		snap.CompletedAt = &at
	}
	return snap
}
