package domain

import (
	"fmt"
	"strings"
)

// Goal is a plan goal.
type Goal struct {
	GoalTitle   string `json:"goalTitle"`
	Description string `json:"description"`
}

// ActionStep is a concrete plan action.
type ActionStep struct {
	ActionTitle string `json:"actionTitle"`
	Details     string `json:"details"`
	Timeline    string `json:"timeline"`
}

// Partner suggests an organisation type to work with.
type Partner struct {
	PartnerType string `json:"partnerType"`
	Description string `json:"description"`
}

// BusinessPlan is the structured "green growth" plan returned by the
// planner. JSON names follow the schema the remote model is asked for.
type BusinessPlan struct {
	PlanTitle         string       `json:"planTitle"`
	ExecutiveSummary  string       `json:"executiveSummary"`
	Goals             []Goal       `json:"goals"`
	ActionSteps       []ActionStep `json:"actionSteps"`
	PotentialPartners []Partner    `json:"potentialPartners"`
	EstimatedImpact   string       `json:"estimatedImpact"`
}

// Validate rejects plans missing the fields every rendering relies on.
func (p BusinessPlan) Validate() error {
	var missing []string
	if strings.TrimSpace(p.PlanTitle) == "" {
		missing = append(missing, "planTitle")
	}
	if strings.TrimSpace(p.ExecutiveSummary) == "" {
		missing = append(missing, "executiveSummary")
	}
	if len(p.Goals) == 0 {
		missing = append(missing, "goals")
	}
	if len(p.ActionSteps) == 0 {
		missing = append(missing, "actionSteps")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedPlan, strings.Join(missing, ", "))
	}
	return nil
}

// RecommendationKind tags the variant held by a Recommendation.
type RecommendationKind string

const (
	KindNarrative RecommendationKind = "narrative"
	KindPlan      RecommendationKind = "plan"
)

// Recommendation is the result of a remote generation call: either free
// narrative text or a structured plan, selected by Kind.
type Recommendation struct {
	Kind RecommendationKind `json:"kind"`
	Text string             `json:"text,omitempty"`
	Plan *BusinessPlan      `json:"plan,omitempty"`
}

// NarrativeResult wraps free text.
func NarrativeResult(text string) Recommendation {
	return Recommendation{Kind: KindNarrative, Text: text}
}

// PlanResult wraps a structured plan.
func PlanResult(plan BusinessPlan) Recommendation {
	return Recommendation{Kind: KindPlan, Plan: &plan}
}

// Narrative returns the text if r is a narrative result.
func (r Recommendation) Narrative() (string, error) {
	if r.Kind != KindNarrative {
		return "", fmt.Errorf("%w: want %s, have %s", ErrResultKind, KindNarrative, r.Kind)
	}
	return r.Text, nil
}

// StructuredPlan returns the plan if r is a plan result.
func (r Recommendation) StructuredPlan() (BusinessPlan, error) {
	if r.Kind != KindPlan || r.Plan == nil {
		return BusinessPlan{}, fmt.Errorf("%w: want %s, have %s", ErrResultKind, KindPlan, r.Kind)
	}
	return *r.Plan, nil
}
