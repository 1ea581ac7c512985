package scoring

import "green-assessment-service/internal/domain"

// Summary is everything the results view needs, recomputed on demand.
type Summary struct {
	WeightedScore float64                `json:"weightedScore"`
	WeightedMax   float64                `json:"weightedMax"`
	Percentage    int                    `json:"percentage"`
	Rating        Rating                 `json:"rating"`
	Answered      int                    `json:"answered"`
	Total         int                    `json:"total"`
	Categories    []domain.CategoryScore `json:"categories"`
	Strengths     []domain.CategoryScore `json:"strengths"`
	Improvements  []domain.CategoryScore `json:"improvements"`
}

// Summarize scores answers against a questionnaire. A nil pre-assessment
// yields a zero score over the unweighted maximum.
func Summarize(q domain.Questionnaire, pre *domain.PreAssessment, answers map[string]domain.Answer) Summary {
	limit := MaxScore(q.Questions, pre, q.Weights, q.MaxScorePerQuestion)
	summary := Summary{
		WeightedMax: limit,
		Answered:    len(answers),
		Total:       len(q.Questions),
	}
	if pre == nil {
		summary.Rating = RatingFor(0)
		summary.Categories = []domain.CategoryScore{}
		summary.Strengths = []domain.CategoryScore{}
		summary.Improvements = []domain.CategoryScore{}
		return summary
	}

	summary.WeightedScore = WeightedTotal(answers, pre.BusinessType, q.Weights)
	summary.Percentage = Percentage(summary.WeightedScore, limit)
	summary.Rating = RatingFor(summary.Percentage)
	summary.Categories = CategoryBreakdown(answers, q.Questions, pre.BusinessType, q.Weights, q.MaxScorePerQuestion)
	summary.Strengths = Strengths(summary.Categories)
	summary.Improvements = Improvements(summary.Categories)
	return summary
}
