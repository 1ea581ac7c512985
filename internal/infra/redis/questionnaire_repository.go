package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/infra/memory"
)

// QuestionnaireRepository caches questionnaire JSON in Redis and falls back to a loader on cache miss.
// Content is stored as: SET questionnaire:{id} {json}
type QuestionnaireRepository struct {
	client *redis.Client
	loader memory.QuestionnaireLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuestionnaireRepository(client *redis.Client, loader memory.QuestionnaireLoader, ttl time.Duration) *QuestionnaireRepository {
	return &QuestionnaireRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionnaireRepository) GetQuestionnaire(ctx context.Context, id string) (domain.Questionnaire, error) {
	if q, ok := r.fromCache(ctx, id); ok {
		return q, nil
	}

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if q, ok := r.fromCache(ctx, id); ok {
			return q, nil
		}

		q, err := r.loader.LoadQuestionnaire(ctx, id)
		if err != nil {
			return domain.Questionnaire{}, err
		}

		raw, err := json.Marshal(q)
		if err != nil {
			return domain.Questionnaire{}, fmt.Errorf("encode questionnaire: %w", err)
		}
		// best-effort fill; a failed write only costs a reload
		_ = r.client.Set(ctx, r.key(id), raw, r.ttlWithJitter()).Err()
		return q, nil
	})
	if err != nil {
		return domain.Questionnaire{}, err
	}
	return result.(domain.Questionnaire), nil
}

// Invalidate drops the cached copy, used after reseeding content.
func (r *QuestionnaireRepository) Invalidate(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

func (r *QuestionnaireRepository) fromCache(ctx context.Context, id string) (domain.Questionnaire, bool) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		return domain.Questionnaire{}, false
	}
	var q domain.Questionnaire
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Questionnaire{}, false
	}
	return q, true
}

func (r *QuestionnaireRepository) key(id string) string {
	return "questionnaire:" + id
}

func (r *QuestionnaireRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// IsMiss reports whether err is a plain cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
