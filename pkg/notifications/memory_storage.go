package notifications

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development and testing.
type MemoryStorage struct {
	notifications map[string][]Notification // accountID -> notifications
	mu            sync.RWMutex
	now           func() time.Time
}

// NewMemoryStorage creates a new in-memory notification storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[string][]Notification),
		now:           time.Now,
	}
}

func (s *MemoryStorage) Create(ctx context.Context, notif Notification) (bool, error) {
	if notif.AccountID == "" {
		return false, ErrMissingAccountID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if notif.DedupeKey != "" {
		for _, n := range s.notifications[notif.AccountID] {
			if n.DedupeKey == notif.DedupeKey {
				return false, nil
			}
		}
	}

	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = s.now()
	}
	notif.Metadata = maps.Clone(notif.Metadata)

	s.notifications[notif.AccountID] = append(s.notifications[notif.AccountID], notif)
	return true, nil
}

func (s *MemoryStorage) Get(ctx context.Context, accountID, notifID string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notifications[accountID] {
		if n.ID == notifID {
			// Return a copy to prevent external mutation of stored data
			notif := n
			notif.Metadata = maps.Clone(n.Metadata)
			return &notif, nil
		}
	}

	return nil, ErrNotificationNotFound
}

func (s *MemoryStorage) List(ctx context.Context, accountID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := []Notification{}
	for _, n := range s.notifications[accountID] {
		if n.Dismissed && !opts.IncludeDismissed {
			continue
		}
		if opts.OnlyUnread && n.Read {
			continue
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, n.Type) {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}
		filtered = append(filtered, n)
	}

	// Newest first; ties go to the most recently inserted.
	slices.Reverse(filtered)
	slices.SortStableFunc(filtered, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	start := opts.Offset
	if start > len(filtered) {
		return []Notification{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(filtered) {
		end = len(filtered)
	}

	return filtered[start:end], nil
}

func (s *MemoryStorage) MarkRead(ctx context.Context, accountID string, notifIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	notifications := s.notifications[accountID]
	for i := range notifications {
		if slices.Contains(notifIDs, notifications[i].ID) {
			notifications[i].MarkAsRead(now)
		}
	}
	return nil
}

func (s *MemoryStorage) Dismiss(ctx context.Context, accountID, notifID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notifications := s.notifications[accountID]
	for i := range notifications {
		if notifications[i].ID == notifID {
			notifications[i].Dismiss(s.now())
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (s *MemoryStorage) CountUnread(ctx context.Context, accountID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications[accountID] {
		if !n.Read && !n.Dismissed {
			count++
		}
	}
	return count, nil
}
