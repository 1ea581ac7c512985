package report

import (
	"strconv"
	"strings"
	"time"

	"green-assessment-service/internal/scoring"
)

// Certificate is the data shown on the completion certificate.
type Certificate struct {
	BusinessName   string         `json:"businessName"`
	Percentage     int            `json:"percentage"`
	LocalizedScore string         `json:"localizedScore"`
	Rating         scoring.Rating `json:"rating"`
	Color          string         `json:"color"`
	AssessmentDate time.Time      `json:"assessmentDate"`
	FormattedDate  string         `json:"formattedDate"`
	DownloadName   string         `json:"downloadName"`
}

// NewCertificate derives display data for a completed assessment.
func NewCertificate(businessName, location string, percentage int, date time.Time) Certificate {
	return Certificate{
		BusinessName:   businessName,
		Percentage:     percentage,
		LocalizedScore: BengaliNumber(percentage) + "/১০০",
		Rating:         scoring.RatingFor(percentage),
		Color:          ScoreColor(percentage),
		AssessmentDate: date,
		FormattedDate:  date.Format("2 January 2006"),
		DownloadName:   Filename("GB_Toolkit_Result", businessName, location, "pdf"),
	}
}

// ScoreColor picks the score colour band.
func ScoreColor(percentage int) string {
	switch {
	case percentage >= 75:
		return "green"
	case percentage >= 50:
		return "yellow"
	case percentage >= 25:
		return "orange"
	default:
		return "red"
	}
}

var bengaliDigits = strings.NewReplacer(
	"0", "০", "1", "১", "2", "২", "3", "৩", "4", "৪",
	"5", "৫", "6", "৬", "7", "৭", "8", "৮", "9", "৯",
)

// BengaliNumber renders n with Bengali digits.
func BengaliNumber(n int) string {
	return bengaliDigits.Replace(strconv.Itoa(n))
}
