package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"green-assessment-service/internal/app"
	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/llm"
)

type errorBody struct {
	Error   string                  `json:"error"`
	Code    string                  `json:"code"`
	Session *domain.SessionSnapshot `json:"session,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain and remote errors onto HTTP statuses. snap, when
// non-nil, carries the session state the failure left behind.
func writeError(w http.ResponseWriter, err error, snap *domain.SessionSnapshot) {
	status, code := statusFor(err)
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code, Session: snap})
}

func statusFor(err error) (int, string) {
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuestionnaireNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrIndexOutOfRange),
		errors.Is(err, domain.ErrBusinessNameRequired),
		errors.Is(err, domain.ErrInvalidEmployeeCount),
		errors.Is(err, domain.ErrUnknownBusinessType),
		errors.Is(err, domain.ErrUnknownLocation),
		errors.Is(err, domain.ErrEmptyRequest),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotCurrentQuestion),
		errors.Is(err, domain.ErrRecommendationInFlight),
		errors.Is(err, domain.ErrRecommendationsRequired),
		errors.Is(err, domain.ErrPlanRequired):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrAPIKeyMissing):
		return http.StatusServiceUnavailable, app.CodeAPIKeyMissing
	case errors.Is(err, domain.ErrMalformedPlan):
		return http.StatusUnprocessableEntity, app.CodeMalformedPlan
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, app.CodeRemoteError
	case errors.Is(err, domain.ErrEmptyResponse):
		return http.StatusBadGateway, app.CodeEmptyResponse
	default:
		return http.StatusInternalServerError, "internal"
	}
}

var errBadRequest = errors.New("invalid request body")

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return errBadRequest
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest
	}
	return nil
}
