package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/scoring"
)

func sampleReport() Report {
	opts := []domain.Option{{Score: 1, Label: "Never"}, {Score: 4, Label: "Often"}, {Score: 5, Label: "Always"}}
	q := domain.Questionnaire{
		MaxScorePerQuestion: 5,
		Questions: []domain.Question{
			{ID: "re1", Text: "Do you save water, electricity and fuel?", Category: domain.CategoryResourceEfficiency, Options: opts},
			{ID: "wp1", Text: "Do you sort waste?", Category: domain.CategoryWastePollution, Options: opts},
		},
		Weights: domain.WeightTable{"Retail Shop": {"re1": 1.5}},
	}
	pre := domain.PreAssessment{
		BusinessName:        "Rahim Store",
		BusinessType:        "Retail Shop",
		Location:            "Khulna",
		EmployeeCount:       domain.EmployeesOneToTwo,
		MainChallengeOrGoal: `Cut "plastic" use`,
	}
	answers := map[string]domain.Answer{
		"wp1": {QuestionID: "wp1", Score: 1, Text: "Do you sort waste?", Category: domain.CategoryWastePollution},
		"re1": {QuestionID: "re1", Score: 4, Text: "Do you save water, electricity and fuel?", Category: domain.CategoryResourceEfficiency},
	}
	return Build(q, pre, answers, scoring.Summarize(q, &pre, answers), "Intro.\n\n1. First\n* detail")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleReport()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	raw := buf.String()
	if !strings.HasPrefix(raw, "\ufeff") {
		t.Fatalf("missing byte order mark")
	}

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, "\ufeff")))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read back csv: %v", err)
	}
	find := func(section, info string) []string {
		for _, rec := range records {
			if rec[0] == section && rec[1] == info {
				return rec
			}
		}
		t.Fatalf("row %s/%s not found in %v", section, info, records)
		return nil
	}

	if got := find(sectionBusiness, "Main Challenge/Goal")[2]; got != `Cut "plastic" use` {
		t.Fatalf("unexpected goal cell %q", got)
	}
	// 6 + 1 over 7.5 + 5.
	if got := find(sectionOverall, "Total Score (weighted)")[2]; got != "7.00" {
		t.Fatalf("unexpected weighted score %q", got)
	}
	if got := find(sectionOverall, "Maximum Possible Score (weighted)")[2]; got != "12.50" {
		t.Fatalf("unexpected weighted max %q", got)
	}
	if got := find(sectionCategories, "Resource Efficiency"); got[4] != "80%" {
		t.Fatalf("unexpected category row %v", got)
	}
	if got := find(sectionAnswers, "Do you save water, electricity and fuel?"); got[4] != "1.50" {
		t.Fatalf("unexpected answer row %v", got)
	}
	if got := find(sectionRecommendations, "Recommendations")[2]; got != "Intro. || 1. First ; * detail" {
		t.Fatalf("unexpected recommendations cell %q", got)
	}
	if _, ok := indexOfDescription(records); ok {
		t.Fatalf("empty description should not be exported")
	}
}

func indexOfDescription(records [][]string) (int, bool) {
	for i, rec := range records {
		if rec[1] == "Business Description" {
			return i, true
		}
	}
	return 0, false
}

func TestBuildOrdersAnswersByQuestionnaire(t *testing.T) {
	rep := sampleReport()
	if len(rep.Answers) != 2 || rep.Answers[0].Category != domain.CategoryResourceEfficiency {
		t.Fatalf("unexpected answer order %+v", rep.Answers)
	}
}

func TestFilename(t *testing.T) {
	cases := []struct {
		name, location, want string
	}{
		{"Rahim Store", "Khulna", "GB_Toolkit_Result_Rahim_Store_Khulna.pdf"},
		{"  রহিম   স্টোর ", "Cox's Bazar", "GB_Toolkit_Result_রহিম_স্টোর_Coxs_Bazar.pdf"},
		{"", "a/b", "GB_Toolkit_Result_unknown_ab.pdf"},
	}
	for _, tc := range cases {
		if got := Filename("GB_Toolkit_Result", tc.name, tc.location, "pdf"); got != tc.want {
			t.Fatalf("Filename(%q, %q) = %q, want %q", tc.name, tc.location, got, tc.want)
		}
	}
}

func TestNewCertificate(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	cert := NewCertificate("Rahim Store", "Khulna", 87, date)
	if cert.LocalizedScore != "৮৭/১০০" || cert.Color != "green" || cert.Rating != scoring.RatingExcellent {
		t.Fatalf("unexpected certificate %+v", cert)
	}
	if cert.FormattedDate != "5 March 2024" || cert.DownloadName != "GB_Toolkit_Result_Rahim_Store_Khulna.pdf" {
		t.Fatalf("unexpected certificate text %+v", cert)
	}
	for pct, want := range map[int]string{75: "green", 74: "yellow", 50: "yellow", 49: "orange", 25: "orange", 24: "red"} {
		if got := ScoreColor(pct); got != want {
			t.Fatalf("ScoreColor(%d) = %s, want %s", pct, got, want)
		}
	}
}
