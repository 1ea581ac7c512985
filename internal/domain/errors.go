package domain

import "errors"

var (
	// ErrSessionNotFound is returned when an assessment session does not exist.
	ErrSessionNotFound = errors.New("assessment session not found")
	// ErrQuestionnaireNotFound indicates the questionnaire content could not be loaded.
	ErrQuestionnaireNotFound = errors.New("questionnaire not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted score is not one of the question's options.
	ErrOptionNotFound = errors.New("option not found")
	// ErrNotCurrentQuestion is returned when answering a question other than the one on screen.
	ErrNotCurrentQuestion = errors.New("question is not the current question")
	// ErrIndexOutOfRange is returned when jumping outside the question list.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrInvalidTransition is returned when an action is not allowed in the current stage.
	ErrInvalidTransition = errors.New("action not allowed in current stage")

	ErrBusinessNameRequired = errors.New("business name is required")
	ErrInvalidEmployeeCount = errors.New("unknown employee count")
	ErrUnknownBusinessType  = errors.New("unknown business type")
	ErrUnknownLocation      = errors.New("unknown location")

	// ErrRecommendationInFlight gates duplicate recommendation requests.
	ErrRecommendationInFlight = errors.New("recommendations are already being generated")
	// ErrRecommendationsRequired is returned when a plan is requested before recommendations exist.
	ErrRecommendationsRequired = errors.New("recommendations must be generated first")
	// ErrPlanRequired is returned when refining before a plan exists.
	ErrPlanRequired = errors.New("business plan has not been generated")
	// ErrEmptyRequest is returned for blank plan refinement messages.
	ErrEmptyRequest = errors.New("request text is empty")

	// ErrAPIKeyMissing means the remote generation service has no credential configured.
	ErrAPIKeyMissing = errors.New("generation service api key is not configured")
	// ErrEmptyResponse means the remote service answered without any text.
	ErrEmptyResponse = errors.New("generation service returned no text")
	// ErrMalformedPlan means a plan response could not be parsed as the expected JSON.
	ErrMalformedPlan = errors.New("business plan response is not valid plan json")
	// ErrResultKind is returned when a Recommendation is read as the wrong variant.
	ErrResultKind = errors.New("recommendation holds a different result kind")
)
