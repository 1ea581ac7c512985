// Package prompt assembles the natural-language prompts sent to the
// text-generation service.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/scoring"
)

// maxExamplesPerCategory caps the low-scoring questions quoted per category.
const maxExamplesPerCategory = 2

// Input carries everything the recommendation prompt embeds.
type Input struct {
	Pre           domain.PreAssessment
	Questionnaire domain.Questionnaire
	Answers       map[string]domain.Answer
	Summary       scoring.Summary
}

// Recommendation builds the narrative recommendation prompt.
func Recommendation(in Input) string {
	pre := in.Pre
	var b strings.Builder

	b.WriteString("You are an expert adviser on green business practices, specialising in cottage and micro enterprises in the coastal regions of Bangladesh.\n")
	b.WriteString("A business has just completed a self-assessment of its environmental practices. Each question was scored from 1 (lowest) to ")
	fmt.Fprintf(&b, "%d (highest), and each score was multiplied by a weight that depends on the type of business.\n\n", in.Questionnaire.MaxScorePerQuestion)

	b.WriteString("Business context:\n")
	b.WriteString(BusinessContext(pre))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Their overall green score is %d out of 100 (weighted: %.2f out of %.2f).\n\n",
		in.Summary.Percentage, in.Summary.WeightedScore, in.Summary.WeightedMax)

	b.WriteString(ImprovementAreas(in))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Based on this, give 3-5 practical, actionable and low-cost recommendations that help this business (a %s business in %s with %s employees) improve its environmental performance.\n\n",
		pre.BusinessType, pre.Location, pre.EmployeeCount)

	b.WriteString("Important considerations:\n")
	b.WriteString("1. If a business description is provided, use it to make the recommendations specific.\n")
	b.WriteString("2. If the business stated a main challenge or goal, at least one recommendation must address it directly.\n")
	fmt.Fprintf(&b, "3. Scale the scope and investment of each recommendation to the stated employee count (%s).\n", pre.EmployeeCount)
	b.WriteString("4. Focus on solutions relevant to small coastal businesses: salinity, cyclones, limited resources, local resilience, and challenges specific to this business type.\n")
	b.WriteString("5. Consider the improvement areas above but do not limit yourself to them, especially when a main challenge or goal is stated.\n\n")

	b.WriteString("Use a friendly and encouraging tone and simple language that local entrepreneurs can follow easily.\n")
	b.WriteString("Structure the response as a short positive introduction, the recommendations, and a short encouraging closing. Format the recommendations as follows:\n")
	b.WriteString("- Use a numbered list (1., 2., 3.) for the main recommendations.\n")
	b.WriteString("- Under each main recommendation you may add sub-items starting with '* '.\n")
	b.WriteString("- Use double asterisks (**bold**) for key terms.\n")
	b.WriteString("- Use single asterisks (*italic*) for examples or extra emphasis.\n")
	b.WriteString("Do not repeat the scores or improvement areas in your response; focus on actionable advice that is specific to the business type, description, location, employee count and stated goal.\n")
	return b.String()
}

// BusinessContext renders the business metadata block.
func BusinessContext(pre domain.PreAssessment) string {
	lines := []string{
		"Business name: " + pre.BusinessName,
		"Business type: " + pre.BusinessType,
		"Location: " + pre.Location,
		"Employee count: " + string(pre.EmployeeCount),
	}
	if strings.TrimSpace(pre.BusinessDescription) != "" {
		lines = append(lines, "Business description: "+pre.BusinessDescription)
	}
	if strings.TrimSpace(pre.MainChallengeOrGoal) != "" {
		lines = append(lines, "Main challenge or goal stated by the business: "+pre.MainChallengeOrGoal)
	} else {
		lines = append(lines, "The business did not state a specific main challenge or goal.")
	}
	return strings.Join(lines, "\n")
}

// ImprovementAreas summarises categories scoring below the improvement
// threshold, quoting up to two low-scoring questions for each.
func ImprovementAreas(in Input) string {
	var sections []string
	for _, category := range in.Summary.Categories {
		if !needsImprovement(category) {
			continue
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s (weighted score %.2f/%.2f):\n", category.Label, category.Score, category.MaxScore)
		examples := lowScoringQuestions(in, category.Category)
		if len(examples) > 0 {
			sb.WriteString("  Specific points needing attention (some of the lowest scoring questions):\n")
			sb.WriteString(strings.Join(examples, "\n"))
		} else {
			sb.WriteString("  Consider reviewing overall practices in this area for further improvement.")
		}
		sections = append(sections, sb.String())
	}
	if len(sections) == 0 {
		return "The business performed well overall."
	}
	return "Main areas for improvement identified by the self-assessment:\n" + strings.Join(sections, "\n\n")
}

// needsImprovement compares the unrounded ratio, so 59.6% still qualifies
// even though it displays as 60%.
func needsImprovement(c domain.CategoryScore) bool {
	if c.MaxScore <= 0 {
		return false
	}
	return c.Score/c.MaxScore*100 < scoring.ImprovementThreshold
}

func lowScoringQuestions(in Input, category domain.Category) []string {
	q := in.Questionnaire
	var out []string
	for _, question := range q.Questions {
		if len(out) == maxExamplesPerCategory {
			break
		}
		answer, ok := in.Answers[question.ID]
		if !ok || answer.Category != category {
			continue
		}
		weight := q.Weights.Weight(in.Pre.BusinessType, question.ID)
		weighted := float64(answer.Score) * weight
		weightedMax := float64(q.MaxScorePerQuestion) * weight
		if weighted < weightedMax/2 || answer.Score <= 2 {
			out = append(out, fmt.Sprintf("- %q (score %d/%d, weighted %.2f/%.2f)",
				answer.Text, answer.Score, q.MaxScorePerQuestion, weighted, weightedMax))
		}
	}
	return out
}

// PlanSystemInstruction tells the model to answer with plan JSON only.
const PlanSystemInstruction = `You are a helpful assistant for a small business owner in coastal Bangladesh. Your goal is to create and refine their "Green Growth Business Plan". You MUST respond with ONLY the full business plan as a JSON object with exactly these fields: planTitle (string), executiveSummary (string), goals (array of {goalTitle, description}), actionSteps (array of {actionTitle, details, timeline}), potentialPartners (array of {partnerType, description}), estimatedImpact (string). Do not add any introductory text, explanations, or markdown formatting around the JSON. Your output must be a pure, valid JSON object that can be parsed directly.`

// Plan builds the prompt that drafts a business plan from assessment results.
func Plan(pre domain.PreAssessment, percentage int, recommendations string) string {
	var b strings.Builder
	b.WriteString("Create a Green Growth Business Plan for the following business.\n\n")
	b.WriteString(BusinessContext(pre))
	fmt.Fprintf(&b, "\n\nSelf-assessment green score: %d out of 100.\n\n", percentage)
	b.WriteString("Recommendations already given to the business:\n")
	b.WriteString(recommendations)
	b.WriteString("\n\nTurn these into a concrete plan with 2-4 goals, 3-6 action steps with realistic timelines, potential local partners (NGOs, cooperatives, government offices, suppliers) and the estimated impact.")
	return b.String()
}

// PlanRefinement wraps the current plan and the user's change request.
func PlanRefinement(plan domain.BusinessPlan, request string) (string, error) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}
	return fmt.Sprintf("CURRENT_PLAN_JSON_START %s CURRENT_PLAN_JSON_END\n\nUSER_REQUEST: %q", raw, request), nil
}
