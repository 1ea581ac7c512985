// Package report renders completed assessments for export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/scoring"
)

// AnswerRow is one answered question with the weight that applied to it.
type AnswerRow struct {
	Text     string
	Category domain.Category
	Score    int
	Weight   float64
}

// Report is the export view of a completed assessment.
type Report struct {
	PreAssessment   domain.PreAssessment
	Summary         scoring.Summary
	Answers         []AnswerRow
	Recommendations string
}

// Build collects answers in questionnaire order.
func Build(q domain.Questionnaire, pre domain.PreAssessment, answers map[string]domain.Answer, summary scoring.Summary, recommendations string) Report {
	rows := make([]AnswerRow, 0, len(answers))
	for _, question := range q.Questions {
		answer, ok := answers[question.ID]
		if !ok {
			continue
		}
		rows = append(rows, AnswerRow{
			Text:     answer.Text,
			Category: answer.Category,
			Score:    answer.Score,
			Weight:   q.Weights.Weight(pre.BusinessType, question.ID),
		})
	}
	return Report{
		PreAssessment:   pre,
		Summary:         summary,
		Answers:         rows,
		Recommendations: recommendations,
	}
}

const (
	sectionBusiness        = "Business Information"
	sectionOverall         = "Overall Score"
	sectionCategories      = "Category Scores"
	sectionAnswers         = "Question Answers"
	sectionRecommendations = "Personalised Recommendations"
)

var paragraphBreaks = regexp.MustCompile(`\n\n+`)

// WriteCSV writes the report as UTF-8 CSV with a byte order mark so
// spreadsheet tools pick the right encoding.
func WriteCSV(w io.Writer, r Report) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	pre := r.PreAssessment
	rows := [][]string{
		{"Section", "Information", "Value"},
		{sectionBusiness, "Business Name", pre.BusinessName},
		{sectionBusiness, "Business Type", pre.BusinessType},
		{sectionBusiness, "Location", pre.Location},
		{sectionBusiness, "Employee Count", string(pre.EmployeeCount)},
	}
	if pre.BusinessDescription != "" {
		rows = append(rows, []string{sectionBusiness, "Business Description", pre.BusinessDescription})
	}
	if pre.MainChallengeOrGoal != "" {
		rows = append(rows, []string{sectionBusiness, "Main Challenge/Goal", pre.MainChallengeOrGoal})
	}

	s := r.Summary
	rows = append(rows,
		[]string{sectionOverall, "Total Green Score (out of 100)", strconv.Itoa(s.Percentage)},
		[]string{sectionOverall, "Total Score (weighted)", fixed(s.WeightedScore)},
		[]string{sectionOverall, "Maximum Possible Score (weighted)", fixed(s.WeightedMax)},
		[]string{sectionCategories, "Category", "Score (weighted)", "Maximum (weighted)", "Percentage"},
	)
	for _, c := range s.Categories {
		rows = append(rows, []string{sectionCategories, c.Label, fixed(c.Score), fixed(c.MaxScore), strconv.Itoa(c.Percentage) + "%"})
	}

	rows = append(rows, []string{sectionAnswers, "Question", "Category", "Answer (score)", "Weight"})
	for _, a := range r.Answers {
		rows = append(rows, []string{sectionAnswers, a.Text, a.Category.Label(), strconv.Itoa(a.Score), fixed(a.Weight)})
	}

	rows = append(rows, []string{sectionRecommendations, "Recommendations", FlattenRecommendations(r.Recommendations)})

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// FlattenRecommendations folds paragraphs into " || " and line breaks into
// " ; " so the text fits one cell.
func FlattenRecommendations(text string) string {
	text = paragraphBreaks.ReplaceAllString(text, " || ")
	return strings.ReplaceAll(text, "\n", " ; ")
}

func fixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

var (
	filenameSpace   = regexp.MustCompile(`\s+`)
	filenameInvalid = regexp.MustCompile(`[^\w\x{0980}-\x{09FF}.-]`)
)

// SanitizeFilenamePart keeps word characters, Bengali script, dots and
// hyphens. Whitespace runs become underscores.
func SanitizeFilenamePart(part string) string {
	part = strings.TrimSpace(part)
	if part == "" {
		return "unknown"
	}
	part = filenameSpace.ReplaceAllString(part, "_")
	return filenameInvalid.ReplaceAllString(part, "")
}

// Filename builds e.g. GB_Toolkit_Result_Rahim_Store_Khulna.csv.
func Filename(prefix, businessName, location, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", prefix, SanitizeFilenamePart(businessName), SanitizeFilenamePart(location), ext)
}
