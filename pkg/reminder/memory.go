package reminder

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemorySource serves candidates from in-memory tables. It mirrors the joins
// the Postgres source performs.
type MemorySource struct {
	mu          sync.RWMutex
	milestones  map[string]Milestone
	estimates   map[string]Estimate
	preferences map[string]Preference
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		milestones:  make(map[string]Milestone),
		estimates:   make(map[string]Estimate),
		preferences: make(map[string]Preference),
	}
}

func (s *MemorySource) PutMilestone(m Milestone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.milestones[m.ID] = m
}

func (s *MemorySource) PutEstimate(e Estimate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimates[e.ID] = e
}

func (s *MemorySource) PutPreference(p Preference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[p.AccountID] = p
}

// DueMilestones returns pending milestones due in [from, to], ordered by due
// date then ID.
func (s *MemorySource) DueMilestones(_ context.Context, from, to time.Time) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Candidate
	for _, m := range s.milestones {
		if m.Status != MilestonePending || m.DueDate.Before(from) || m.DueDate.After(to) {
			continue
		}
		c := Candidate{Milestone: m}
		if e, ok := s.estimates[m.EstimateID]; ok {
			c.Estimate = &e
			if p, ok := s.preferences[e.AccountID]; ok {
				p.ScheduleDays = slices.Clone(p.ScheduleDays)
				c.Preference = &p
			}
		}
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b Candidate) int {
		if c := a.Milestone.DueDate.Compare(b.Milestone.DueDate); c != 0 {
			return c
		}
		switch {
		case a.Milestone.ID < b.Milestone.ID:
			return -1
		case a.Milestone.ID > b.Milestone.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

type dispatchKey struct {
	milestoneID string
	day         time.Time
}

// MemoryLedger is a Ledger backed by a map. Safe for concurrent use.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[dispatchKey]Dispatch
	now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[dispatchKey]Dispatch),
		now:     time.Now,
	}
}

func (l *MemoryLedger) Claim(_ context.Context, milestoneID string, day time.Time) (bool, error) {
	key := dispatchKey{milestoneID, DayOf(day)}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[key]; ok {
		return false, nil
	}
	l.entries[key] = Dispatch{
		MilestoneID: milestoneID,
		Date:        key.day,
		Status:      DispatchClaimed,
		CreatedAt:   l.now(),
	}
	return true, nil
}

func (l *MemoryLedger) MarkSent(_ context.Context, milestoneID string, day time.Time) error {
	key := dispatchKey{milestoneID, DayOf(day)}

	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.entries[key]
	if !ok {
		return ErrClaimNotFound
	}
	d.Status = DispatchSent
	l.entries[key] = d
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, milestoneID string, day time.Time) error {
	key := dispatchKey{milestoneID, DayOf(day)}

	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.entries[key]; ok && d.Status == DispatchClaimed {
		delete(l.entries, key)
	}
	return nil
}

// Dispatches returns all entries for a milestone, oldest day first.
func (l *MemoryLedger) Dispatches(milestoneID string) []Dispatch {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Dispatch
	for k, d := range l.entries {
		if k.milestoneID == milestoneID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b Dispatch) int { return a.Date.Compare(b.Date) })
	return out
}
