package http

import (
	"bytes"
	"mime"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"green-assessment-service/internal/app"
	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/report"
)

// APIHandler serves the REST surface of the assessment use cases.
type APIHandler struct {
	service *app.AssessmentService
	logger  *zap.Logger
}

func NewAPIHandler(service *app.AssessmentService, logger *zap.Logger) *APIHandler {
	return &APIHandler{service: service, logger: logger}
}

type categoryView struct {
	ID    domain.Category `json:"id"`
	Label string          `json:"label"`
}

type questionnaireView struct {
	domain.Questionnaire
	Categories     []categoryView         `json:"categories"`
	EmployeeCounts []domain.EmployeeCount `json:"employeeCounts"`
}

// Questionnaire handles GET /api/questionnaire
func (h *APIHandler) Questionnaire(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.Questionnaire(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	categories := make([]categoryView, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		categories = append(categories, categoryView{ID: c, Label: c.Label()})
	}
	writeJSON(w, http.StatusOK, questionnaireView{
		Questionnaire:  q,
		Categories:     categories,
		EmployeeCounts: domain.EmployeeCounts,
	})
}

type createSessionRequest struct {
	QuestionnaireID string `json:"questionnaireId"`
}

// CreateSession handles POST /api/sessions
func (h *APIHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	snap, err := h.service.CreateSession(r.Context(), req.QuestionnaireID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// GetSession handles GET /api/sessions/{id}
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetSession(r.Context(), mux.Vars(r)["id"])
	h.respond(w, snap, err)
}

// DeleteSession handles DELETE /api/sessions/{id}
func (h *APIHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start handles POST /api/sessions/{id}/start
func (h *APIHandler) Start(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Start(r.Context(), mux.Vars(r)["id"])
	h.respond(w, snap, err)
}

// SubmitPreAssessment handles POST /api/sessions/{id}/pre-assessment
func (h *APIHandler) SubmitPreAssessment(w http.ResponseWriter, r *http.Request) {
	var req domain.PreAssessment
	if err := decode(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	snap, err := h.service.SubmitPreAssessment(r.Context(), mux.Vars(r)["id"], req)
	h.respond(w, snap, err)
}

type answerRequest struct {
	QuestionID string `json:"questionId"`
	Score      int    `json:"score"`
}

// RecordAnswer handles POST /api/sessions/{id}/answers
func (h *APIHandler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	snap, err := h.service.RecordAnswer(r.Context(), mux.Vars(r)["id"], req.QuestionID, req.Score)
	h.respond(w, snap, err)
}

// GoBack handles POST /api/sessions/{id}/back
func (h *APIHandler) GoBack(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GoBack(r.Context(), mux.Vars(r)["id"])
	h.respond(w, snap, err)
}

type jumpRequest struct {
	Index *int `json:"index"`
}

// Jump handles POST /api/sessions/{id}/jump
func (h *APIHandler) Jump(w http.ResponseWriter, r *http.Request) {
	var req jumpRequest
	if err := decode(r, &req); err != nil || req.Index == nil {
		writeError(w, errBadRequest, nil)
		return
	}
	snap, err := h.service.Jump(r.Context(), mux.Vars(r)["id"], *req.Index)
	h.respond(w, snap, err)
}

// Restart handles POST /api/sessions/{id}/restart
func (h *APIHandler) Restart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Restart(r.Context(), mux.Vars(r)["id"])
	h.respond(w, snap, err)
}

// Summary handles GET /api/sessions/{id}/summary
func (h *APIHandler) Summary(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, results.Summary)
}

type recommendationsView struct {
	domain.SessionSnapshot
	Blocks []report.Block `json:"blocks"`
}

// Recommendations handles POST /api/sessions/{id}/recommendations. It
// blocks until the stream finishes; websocket clients get the chunks live.
func (h *APIHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GenerateRecommendations(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, sessionOrNil(snap))
		return
	}
	writeJSON(w, http.StatusOK, recommendationsView{
		SessionSnapshot: snap,
		Blocks:          report.ParseRecommendations(snap.Recommendations),
	})
}

// GeneratePlan handles POST /api/sessions/{id}/plan
func (h *APIHandler) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GeneratePlan(r.Context(), mux.Vars(r)["id"])
	h.respond(w, snap, err)
}

type planMessageRequest struct {
	Text string `json:"text"`
}

// RefinePlan handles POST /api/sessions/{id}/plan/messages
func (h *APIHandler) RefinePlan(w http.ResponseWriter, r *http.Request) {
	var req planMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	snap, err := h.service.RefinePlan(r.Context(), mux.Vars(r)["id"], req.Text)
	h.respond(w, snap, err)
}

// ReportCSV handles GET /api/sessions/{id}/report.csv
func (h *APIHandler) ReportCSV(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if results.PreAssessment == nil {
		writeError(w, domain.ErrInvalidTransition, &results.Session)
		return
	}
	pre := *results.PreAssessment
	rep := report.Build(results.Questionnaire, pre, results.Answers, results.Summary, results.Recommendations)

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rep); err != nil {
		h.logger.Error("csv_export_failed", zap.String("session", results.Session.ID), zap.Error(err))
		writeError(w, err, nil)
		return
	}
	filename := report.Filename("GB_Toolkit_Result_Detailed", pre.BusinessName, pre.Location, "csv")
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachmentDisposition(filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Certificate handles GET /api/sessions/{id}/certificate
func (h *APIHandler) Certificate(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	snap := results.Session
	if snap.Stage != domain.StageCompleted || results.PreAssessment == nil {
		writeError(w, domain.ErrInvalidTransition, &snap)
		return
	}
	date := time.Now()
	if snap.CompletedAt != nil {
		date = *snap.CompletedAt
	}
	pre := results.PreAssessment
	writeJSON(w, http.StatusOK, report.NewCertificate(pre.BusinessName, pre.Location, results.Summary.Percentage, date))
}

func (h *APIHandler) respond(w http.ResponseWriter, snap domain.SessionSnapshot, err error) {
	if err != nil {
		writeError(w, err, sessionOrNil(snap))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func sessionOrNil(snap domain.SessionSnapshot) *domain.SessionSnapshot {
	if snap.ID == "" {
		return nil
	}
	return &snap
}

// attachmentDisposition encodes non-ASCII names (Bengali business names) as
// an RFC 2231 filename* parameter.
func attachmentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
