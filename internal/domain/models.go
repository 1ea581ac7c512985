package domain

import (
	"strings"
	"time"
)

// Category is one of the five fixed sustainability categories.
type Category string

const (
	CategoryResourceEfficiency   Category = "resource_efficiency"
	CategoryWastePollution       Category = "waste_pollution"
	CategoryClimateChange        Category = "climate_change"
	CategorySocialResponsibility Category = "social_responsibility"
	CategoryBusinessManagement   Category = "business_management"
)

// Categories lists the categories in canonical order.
var Categories = []Category{
	CategoryResourceEfficiency,
	CategoryWastePollution,
	CategoryClimateChange,
	CategorySocialResponsibility,
	CategoryBusinessManagement,
}

var categoryLabels = map[Category]string{
	CategoryResourceEfficiency:   "Resource Efficiency",
	CategoryWastePollution:       "Waste & Pollution",
	CategoryClimateChange:        "Climate Change",
	CategorySocialResponsibility: "Social Responsibility",
	CategoryBusinessManagement:   "Business Management & Continuous Improvement",
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label is the display name of the category.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// EmployeeCount is the bucketed head count collected before scoring.
type EmployeeCount string

const (
	EmployeesOneToTwo    EmployeeCount = "1-2"
	EmployeesThreeToFive EmployeeCount = "3-5"
	EmployeesSixToTen    EmployeeCount = "6-10"
	EmployeesMoreThanTen EmployeeCount = "10+"
	EmployeesUnknown     EmployeeCount = "unknown"
)

// EmployeeCounts lists the buckets in display order.
var EmployeeCounts = []EmployeeCount{
	EmployeesOneToTwo,
	EmployeesThreeToFive,
	EmployeesSixToTen,
	EmployeesMoreThanTen,
	EmployeesUnknown,
}

func (e EmployeeCount) Valid() bool {
	for _, known := range EmployeeCounts {
		if e == known {
			return true
		}
	}
	return false
}

// Option is a selectable answer for a question.
type Option struct {
	Score int    `json:"score" yaml:"score"`
	Label string `json:"label" yaml:"label"`
}

// Question is static questionnaire content.
type Question struct {
	ID       string   `json:"id" yaml:"id"`
	Text     string   `json:"text" yaml:"text"`
	Category Category `json:"category" yaml:"category"`
	Options  []Option `json:"options" yaml:"options"`
}

// HasScore reports whether score matches one of the question's options.
func (q Question) HasScore(score int) bool {
	for _, opt := range q.Options {
		if opt.Score == score {
			return true
		}
	}
	return false
}

// Answer is recorded when a user selects an option. Text and Category are
// copied from the question at answer time.
type Answer struct {
	QuestionID string   `json:"questionId"`
	Score      int      `json:"score"`
	Text       string   `json:"text"`
	Category   Category `json:"category"`
}

// WeightTable maps business type -> question ID -> weight.
type WeightTable map[string]map[string]float64

// DefaultWeight applies when a business type or question has no entry.
const DefaultWeight = 1.0

// Weight returns the weight for a question under a business type, falling
// back to DefaultWeight.
func (w WeightTable) Weight(businessType, questionID string) float64 {
	row, ok := w[businessType]
	if !ok {
		return DefaultWeight
	}
	weight, ok := row[questionID]
	if !ok {
		return DefaultWeight
	}
	return weight
}

// Questionnaire bundles the question bank with its weighting configuration.
type Questionnaire struct {
	ID                  string      `json:"id" yaml:"id"`
	Title               string      `json:"title" yaml:"title"`
	MaxScorePerQuestion int         `json:"maxScorePerQuestion" yaml:"maxScorePerQuestion"`
	BusinessTypes       []string    `json:"businessTypes" yaml:"businessTypes"`
	Locations           []string    `json:"locations" yaml:"locations"`
	Questions           []Question  `json:"questions" yaml:"questions"`
	Weights             WeightTable `json:"weights" yaml:"weights"`
}

// Question looks up a question by ID.
func (q Questionnaire) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// PreAssessment is business metadata collected once before answering.
type PreAssessment struct {
	BusinessName        string        `json:"businessName"`
	BusinessType        string        `json:"businessType"`
	Location            string        `json:"location"`
	EmployeeCount       EmployeeCount `json:"employeeCount"`
	BusinessDescription string        `json:"businessDescription,omitempty"`
	MainChallengeOrGoal string        `json:"mainChallengeOrGoal,omitempty"`
}

// Normalize trims all free-text fields.
func (p PreAssessment) Normalize() PreAssessment {
	p.BusinessName = strings.TrimSpace(p.BusinessName)
	p.BusinessType = strings.TrimSpace(p.BusinessType)
	p.Location = strings.TrimSpace(p.Location)
	p.BusinessDescription = strings.TrimSpace(p.BusinessDescription)
	p.MainChallengeOrGoal = strings.TrimSpace(p.MainChallengeOrGoal)
	if p.EmployeeCount == "" {
		p.EmployeeCount = EmployeesUnknown
	}
	return p
}

// Validate checks a normalized pre-assessment against the questionnaire's
// known business types and locations. Empty lists accept any value.
func (p PreAssessment) Validate(q Questionnaire) error {
	if p.BusinessName == "" {
		return ErrBusinessNameRequired
	}
	if !p.EmployeeCount.Valid() {
		return ErrInvalidEmployeeCount
	}
	if len(q.BusinessTypes) > 0 && !contains(q.BusinessTypes, p.BusinessType) {
		return ErrUnknownBusinessType
	}
	if len(q.Locations) > 0 && !contains(q.Locations, p.Location) {
		return ErrUnknownLocation
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// CategoryScore is the derived per-category summary. It is never stored.
type CategoryScore struct {
	Category   Category `json:"category"`
	Label      string   `json:"label"`
	Score      float64  `json:"score"`
	MaxScore   float64  `json:"maxScore"`
	Percentage int      `json:"percentage"`
}

// Stage is the position of a session in the assessment flow.
type Stage string

const (
	StageWelcome       Stage = "welcome"
	StagePreAssessment Stage = "pre_assessment"
	StageAnswering     Stage = "answering"
	StageCompleted     Stage = "completed"
)

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// ChatMessage is one line of the plan refinement conversation.
type ChatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// SessionSnapshot is a read-only view of a session for clients.
type SessionSnapshot struct {
	ID                     string         `json:"id"`
	Generation             uint64         `json:"generation"`
	Stage                  Stage          `json:"stage"`
	PreAssessment          *PreAssessment `json:"preAssessment,omitempty"`
	CurrentIndex           int            `json:"currentIndex"`
	TotalQuestions         int            `json:"totalQuestions"`
	Answers                []Answer       `json:"answers"`
	Recommendations        string         `json:"recommendations"`
	LoadingRecommendations bool           `json:"loadingRecommendations"`
	Error                  string         `json:"error,omitempty"`
	ErrorCode              string         `json:"errorCode,omitempty"`
	Plan                   *BusinessPlan  `json:"plan,omitempty"`
	PlanChat               []ChatMessage  `json:"planChat,omitempty"`
	CompletedAt            *time.Time     `json:"completedAt,omitempty"`
	UpdatedAt              time.Time      `json:"updatedAt"`
}
