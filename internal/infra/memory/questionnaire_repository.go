package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"green-assessment-service/internal/domain"
)

// QuestionnaireLoader fetches questionnaire content from a backing store.
type QuestionnaireLoader interface {
	LoadQuestionnaire(ctx context.Context, id string) (domain.Questionnaire, error)
}

// QuestionnaireRepository caches questionnaires with TTL to avoid repeated loads.
type QuestionnaireRepository struct {
	loader QuestionnaireLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestionnaire
}

type cachedQuestionnaire struct {
	questionnaire domain.Questionnaire
	expiresAt     time.Time
}

func NewQuestionnaireRepository(loader QuestionnaireLoader, ttl time.Duration) *QuestionnaireRepository {
	return &QuestionnaireRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestionnaire),
	}
}

func (r *QuestionnaireRepository) GetQuestionnaire(ctx context.Context, id string) (domain.Questionnaire, error) {
	if q, ok := r.cached(id, r.clock()); ok {
		return q, nil
	}

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		now := r.clock()
		if q, ok := r.cached(id, now); ok {
			return q, nil
		}

		q, err := r.loader.LoadQuestionnaire(ctx, id)
		if err != nil {
			return domain.Questionnaire{}, err
		}

		r.mu.Lock()
		r.cache[id] = cachedQuestionnaire{
			questionnaire: q,
			expiresAt:     now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return domain.Questionnaire{}, err
	}
	return result.(domain.Questionnaire), nil
}

func (r *QuestionnaireRepository) cached(id string, now time.Time) (domain.Questionnaire, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[id]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Questionnaire{}, false
	}
	return entry.questionnaire, true
}

func (r *QuestionnaireRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionnaireLoader serves questionnaires from a map (bundled content, tests).
type StaticQuestionnaireLoader struct {
	questionnaires map[string]domain.Questionnaire
}

func NewStaticQuestionnaireLoader(questionnaires ...domain.Questionnaire) *StaticQuestionnaireLoader {
	byID := make(map[string]domain.Questionnaire, len(questionnaires))
	for _, q := range questionnaires {
		byID[q.ID] = q
	}
	return &StaticQuestionnaireLoader{questionnaires: byID}
}

func (l *StaticQuestionnaireLoader) LoadQuestionnaire(_ context.Context, id string) (domain.Questionnaire, error) {
	if q, ok := l.questionnaires[id]; ok {
		return q, nil
	}
	return domain.Questionnaire{}, domain.ErrQuestionnaireNotFound
}
