package trial

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and development.
type MemoryStore struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscription)}
}

func (s *MemoryStore) Get(ctx context.Context, accountID string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[accountID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.AccountID]; ok {
		return ErrSubscriptionAlreadyExists
	}
	s.subs[sub.AccountID] = sub.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, accountID string, fn UpdateFunc) (*Subscription, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.subs[accountID]
	if !ok {
		return nil, false, ErrSubscriptionNotFound
	}

	sub := current.Clone()
	changed, err := fn(sub)
	if err != nil {
		return current.Clone(), false, err
	}
	if changed {
		s.subs[accountID] = sub.Clone()
	}
	return sub, changed, nil
}

func (s *MemoryStore) ExpireTrial(ctx context.Context, accountID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[accountID]
	if !ok {
		return false, ErrSubscriptionNotFound
	}
	if !sub.TrialEndedAt(now) {
		return false, nil
	}
	sub.TrialStatus = StateExpired
	sub.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) ListStaleTrials(ctx context.Context, now time.Time, limit int) ([]*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Subscription
	for _, sub := range s.subs {
		if sub.TrialEndedAt(now) {
			out = append(out, sub.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Subscription) int {
		return cmp.Or(a.TrialEndDate.Compare(*b.TrialEndDate), cmp.Compare(a.AccountID, b.AccountID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
