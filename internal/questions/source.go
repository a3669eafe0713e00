package questions

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/solvio-app/battle-server/internal/userapi"
)

// DefaultTimeLimitMs is applied when the bank does not set a per-question limit.
const DefaultTimeLimitMs int64 = 15000

var ErrBankExhausted = errors.New("question bank exhausted")

// Source supplies the fixed, ordered question sequence for one battle.
type Source interface {
	Fetch(ctx context.Context, count int) ([]userapi.Question, error)
}

// APISource pulls questions from the platform question bank. Questions
// without a per-question limit get defaultLimitMs.
type APISource struct {
	client         *userapi.Client
	defaultLimitMs int64
}

func NewAPISource(client *userapi.Client, defaultLimitMs int64) *APISource {
	if defaultLimitMs <= 0 {
		defaultLimitMs = DefaultTimeLimitMs
	}
	return &APISource{client: client, defaultLimitMs: defaultLimitMs}
}

func (s *APISource) Fetch(ctx context.Context, count int) ([]userapi.Question, error) {
	qs, err := s.client.FetchQuestions(ctx, count)
	if err != nil {
		return nil, err
	}
	for i := range qs {
		if qs[i].TimeLimitMs <= 0 {
			qs[i].TimeLimitMs = s.defaultLimitMs
		}
	}
	return qs, nil
}

// StaticSource serves from an in-memory bank. Used in development and tests.
type StaticSource struct {
	mu   sync.Mutex
	bank []userapi.Question
	rng  *rand.Rand
}

func NewStaticSource(bank []userapi.Question) *StaticSource {
	return &StaticSource{
		bank: bank,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *StaticSource) Fetch(_ context.Context, count int) ([]userapi.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count <= 0 || count > len(s.bank) {
		return nil, ErrBankExhausted
	}
	idx := s.rng.Perm(len(s.bank))[:count]
	out := make([]userapi.Question, 0, count)
	for _, i := range idx {
		q := s.bank[i]
		if q.TimeLimitMs <= 0 {
			q.TimeLimitMs = DefaultTimeLimitMs
		}
		out = append(out, q)
	}
	return out, nil
}
