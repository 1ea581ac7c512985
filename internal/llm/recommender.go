package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/prompt"
)

// Recommender streams narrative recommendations.
type Recommender struct {
	client *Client
}

func NewRecommender(client *Client) *Recommender {
	return &Recommender{client: client}
}

// StreamRecommendations sends the prompt and streams back text chunks.
func (r *Recommender) StreamRecommendations(ctx context.Context, text string) (<-chan string, <-chan error) {
	return r.client.Stream(ctx, Request{
		Contents: []Content{UserText(text)},
		Config:   NarrativeConfig,
	})
}

// Recommend returns the full narrative in one call, for callers that do not
// stream.
func (r *Recommender) Recommend(ctx context.Context, text string) (string, error) {
	result, err := r.client.GenerateResult(ctx, domain.KindNarrative, Request{
		Contents: []Content{UserText(text)},
		Config:   NarrativeConfig,
	})
	if err != nil {
		return "", err
	}
	return result.Narrative()
}

// Planner drafts and refines structured business plans in JSON mode.
type Planner struct {
	client *Client
}

func NewPlanner(client *Client) *Planner {
	return &Planner{client: client}
}

// GeneratePlan drafts a plan from the given prompt.
func (p *Planner) GeneratePlan(ctx context.Context, text string) (domain.BusinessPlan, error) {
	return p.call(ctx, text)
}

// RefinePlan applies a change request to an existing plan.
func (p *Planner) RefinePlan(ctx context.Context, current domain.BusinessPlan, request string) (domain.BusinessPlan, error) {
	text, err := prompt.PlanRefinement(current, request)
	if err != nil {
		return domain.BusinessPlan{}, err
	}
	return p.call(ctx, text)
}

func (p *Planner) call(ctx context.Context, text string) (domain.BusinessPlan, error) {
	result, err := p.client.GenerateResult(ctx, domain.KindPlan, Request{
		SystemInstruction: prompt.PlanSystemInstruction,
		Contents:          []Content{UserText(text)},
		Config:            JSONConfig,
	})
	if err != nil {
		return domain.BusinessPlan{}, err
	}
	return result.StructuredPlan()
}

// GenerateResult runs a single-shot generation and wraps the reply as the
// requested kind. Plan replies are decoded and validated.
func (c *Client) GenerateResult(ctx context.Context, kind domain.RecommendationKind, req Request) (domain.Recommendation, error) {
	switch kind {
	case domain.KindNarrative, domain.KindPlan:
	default:
		return domain.Recommendation{}, fmt.Errorf("%w: unknown kind %q", domain.ErrResultKind, kind)
	}

	raw, err := c.Generate(ctx, req)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if kind == domain.KindNarrative {
		return domain.NarrativeResult(strings.TrimSpace(raw)), nil
	}
	plan, err := ParsePlan(raw)
	if err != nil {
		return domain.Recommendation{}, err
	}
	return domain.PlanResult(plan), nil
}

// ParsePlan decodes a plan, tolerating a surrounding ```json fence.
func ParsePlan(raw string) (domain.BusinessPlan, error) {
	var plan domain.BusinessPlan
	if err := json.Unmarshal([]byte(stripFence(raw)), &plan); err != nil {
		return domain.BusinessPlan{}, fmt.Errorf("%w: %v", domain.ErrMalformedPlan, err)
	}
	if err := plan.Validate(); err != nil {
		return domain.BusinessPlan{}, err
	}
	return plan, nil
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
