// Package scoring computes business-type weighted scores for a questionnaire.
// Every function here is pure and total over its inputs.
package scoring

import (
	"math"
	"sort"

	"green-assessment-service/internal/domain"
)

const (
	// StrengthThreshold is the minimum percentage for a category to count as a strength.
	StrengthThreshold = 70
	// ImprovementThreshold is the percentage below which a category needs improvement.
	ImprovementThreshold = 60
)

// WeightedTotal sums answer.score * weight over the answered questions.
func WeightedTotal(answers map[string]domain.Answer, businessType string, weights domain.WeightTable) float64 {
	total := 0.0
	for questionID, answer := range answers {
		total += float64(answer.Score) * weights.Weight(businessType, questionID)
	}
	return total
}

// WeightedMax sums maxPerQuestion * weight over the full question bank.
func WeightedMax(questions []domain.Question, businessType string, weights domain.WeightTable, maxPerQuestion int) float64 {
	limit := 0.0
	for _, q := range questions {
		limit += float64(maxPerQuestion) * weights.Weight(businessType, q.ID)
	}
	return limit
}

// UnweightedMax is the maximum used before any business type is known.
func UnweightedMax(questionCount, maxPerQuestion int) float64 {
	return float64(questionCount * maxPerQuestion)
}

// MaxScore picks between the unweighted fallback (no pre-assessment yet) and
// the weighted maximum. The two modes are not numerically continuous.
func MaxScore(questions []domain.Question, pre *domain.PreAssessment, weights domain.WeightTable, maxPerQuestion int) float64 {
	if pre == nil {
		return UnweightedMax(len(questions), maxPerQuestion)
	}
	return WeightedMax(questions, pre.BusinessType, weights, maxPerQuestion)
}

// CategoryBreakdown groups answers by category. Scores sum the answered
// questions; the max of a category sums the full per-category question bank
// so category and overall percentages share one convention. Categories
// without answers are omitted. Results follow the canonical category order.
func CategoryBreakdown(answers map[string]domain.Answer, questions []domain.Question, businessType string, weights domain.WeightTable, maxPerQuestion int) []domain.CategoryScore {
	scores := make(map[domain.Category]float64)
	present := make(map[domain.Category]bool)
	for questionID, answer := range answers {
		scores[answer.Category] += float64(answer.Score) * weights.Weight(businessType, questionID)
		present[answer.Category] = true
	}

	maxes := make(map[domain.Category]float64)
	for _, q := range questions {
		maxes[q.Category] += float64(maxPerQuestion) * weights.Weight(businessType, q.ID)
	}
	// answers whose question is missing from the bank still bound their own category
	for questionID, answer := range answers {
		if !inBank(questions, questionID) {
			maxes[answer.Category] += float64(maxPerQuestion) * weights.Weight(businessType, questionID)
		}
	}

	out := make([]domain.CategoryScore, 0, len(present))
	for _, category := range orderedCategories(present) {
		score := scores[category]
		limit := maxes[category]
		out = append(out, domain.CategoryScore{
			Category:   category,
			Label:      category.Label(),
			Score:      score,
			MaxScore:   limit,
			Percentage: Percentage(score, limit),
		})
	}
	return out
}

func inBank(questions []domain.Question, id string) bool {
	for _, q := range questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

func orderedCategories(present map[domain.Category]bool) []domain.Category {
	ordered := make([]domain.Category, 0, len(present))
	for _, c := range domain.Categories {
		if present[c] {
			ordered = append(ordered, c)
		}
	}
	// unknown categories keep a stable position after the canonical ones
	var extra []domain.Category
	for c := range present {
		if !c.Valid() {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(ordered, extra...)
}

// Percentage returns round(score/max*100) clamped to [0,100], or 0 when max
// is not positive.
func Percentage(score, limit float64) int {
	if limit <= 0 {
		return 0
	}
	pct := int(math.Round(score / limit * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Band classifies a category percentage.
type Band string

const (
	BandStrength    Band = "strength"
	BandImprovement Band = "improvement"
	BandNeutral     Band = "neutral"
)

// Classify applies the fixed 70/60 banding policy.
func Classify(percentage int) Band {
	switch {
	case percentage >= StrengthThreshold:
		return BandStrength
	case percentage < ImprovementThreshold:
		return BandImprovement
	default:
		return BandNeutral
	}
}

// Strengths filters categories classified as strengths.
func Strengths(breakdown []domain.CategoryScore) []domain.CategoryScore {
	return filterBand(breakdown, BandStrength)
}

// Improvements filters categories that need improvement.
func Improvements(breakdown []domain.CategoryScore) []domain.CategoryScore {
	return filterBand(breakdown, BandImprovement)
}

func filterBand(breakdown []domain.CategoryScore, band Band) []domain.CategoryScore {
	out := make([]domain.CategoryScore, 0, len(breakdown))
	for _, c := range breakdown {
		if Classify(c.Percentage) == band {
			out = append(out, c)
		}
	}
	return out
}

// Rating is the coarse overall grade shown on results and certificates.
type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingFair      Rating = "fair"
	RatingPoor      Rating = "poor"
)

// RatingFor grades an overall percentage.
func RatingFor(percentage int) Rating {
	switch {
	case percentage >= 75:
		return RatingExcellent
	case percentage >= 50:
		return RatingGood
	case percentage >= 25:
		return RatingFair
	default:
		return RatingPoor
	}
}
