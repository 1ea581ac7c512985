package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/questionnaire"
)

// QuestionnaireLoader loads questionnaire JSONB from Postgres.
type QuestionnaireLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionnaireLoader(pool *pgxpool.Pool) *QuestionnaireLoader {
	return &QuestionnaireLoader{pool: pool}
}

func (l *QuestionnaireLoader) LoadQuestionnaire(ctx context.Context, id string) (domain.Questionnaire, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM questionnaires WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Questionnaire{}, domain.ErrQuestionnaireNotFound
	}
	if err != nil {
		return domain.Questionnaire{}, fmt.Errorf("load questionnaire: %w", err)
	}
	return decodeQuestionnaire(raw)
}

// decodeQuestionnaire applies the same checks as the bundled YAML so a bad
// row is rejected at load time rather than when a session is scored.
func decodeQuestionnaire(raw []byte) (domain.Questionnaire, error) {
	var q domain.Questionnaire
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Questionnaire{}, fmt.Errorf("unmarshal questionnaire: %w", err)
	}
	if err := questionnaire.Validate(q); err != nil {
		return domain.Questionnaire{}, fmt.Errorf("invalid questionnaire: %w", err)
	}
	return q, nil
}
