package quota

import (
	"context"
	"sync"
	"time"
)

type recordKey struct {
	key   string
	start int64
}

// MemoryStore keeps counters in process memory. A single mutex serializes
// Consume, which is the atomicity guarantee the other stores get from their
// backend. Suitable for tests and single-instance development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[recordKey]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]*Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Consume(ctx context.Context, key string, period Period, limit int64) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rk := recordKey{key: key, start: period.Start.Unix()}
	rec, ok := s.records[rk]
	if !ok {
		rec = &Record{Key: key, WindowStart: period.Start}
	}

	if limit != Unlimited && rec.Count >= limit {
		return Result{Count: rec.Count, Limit: limit}, nil
	}

	rec.Count++
	rec.Limit = limit
	rec.UpdatedAt = s.now()
	s.records[rk] = rec

	return Result{Count: rec.Count, Limit: limit, Consumed: true}, nil
}

func (s *MemoryStore) Peek(ctx context.Context, key string, period Period) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[recordKey{key: key, start: period.Start.Unix()}]; ok {
		return rec.Count, nil
	}
	return 0, nil
}

// Records returns a copy of every row for key, in no particular order.
func (s *MemoryStore) Records(key string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for rk, rec := range s.records {
		if rk.key == key {
			out = append(out, *rec)
		}
	}
	return out
}
