// Package notification keeps the per-user notification feed, including the
// shared staff inbox.
package notification

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/observability/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/snapshot"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

// StaffInbox is the single recipient shared by every staff member.
const StaffInbox = "staff"

type Kind string

const (
	KindStatusChange Kind = "status_change"
	KindReminder     Kind = "reminder"
	KindSystem       Kind = "system"
)

func (k Kind) Valid() bool {
	switch k {
	case KindStatusChange, KindReminder, KindSystem:
		return true
	}
	return false
}

var (
	ErrNotFound         = errors.New("notification not found")
	ErrInvalidKind      = errors.New("invalid notification kind")
	ErrMissingRecipient = errors.New("notification recipient is required")
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	Recipient string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"type"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	mu      sync.RWMutex
	items   []Notification
	sink    snapshot.Sink
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(sink snapshot.Sink, logger *logging.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{sink: sink, logger: logger, metrics: m, now: time.Now}
}

// Notify appends a notification to recipient's feed.
func (s *Service) Notify(_ context.Context, recipient, title, message string, kind Kind) error {
	if recipient == "" {
		return ErrMissingRecipient
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	n := Notification{
		ID:        uuid.New(),
		Recipient: recipient,
		Title:     title,
		Message:   message,
		Kind:      kind,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.items = append(s.items, n)
	s.persistLocked()
	s.mu.Unlock()

	s.metrics.ObserveNotification(string(kind))
	s.logger.Debug("notification queued", "recipient", recipient, "kind", kind, "notification_id", n.ID)
	return nil
}

// ListFor returns recipient's notifications, newest first.
func (s *Service) ListFor(_ context.Context, recipient string) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Notification, 0)
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Recipient == recipient {
			out = append(out, s.items[i])
		}
	}
	return out
}

func (s *Service) UnreadCount(_ context.Context, recipient string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, item := range s.items {
		if item.Recipient == recipient && !item.Read {
			n++
		}
	}
	return n
}

// MarkRead flags one of recipient's notifications as read.
func (s *Service) MarkRead(_ context.Context, recipient string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id && s.items[i].Recipient == recipient {
			if !s.items[i].Read {
				s.items[i].Read = true
				s.persistLocked()
			}
			return nil
		}
	}
	return ErrNotFound
}

// MarkAllRead flags every unread notification of recipient and reports how
// many changed.
func (s *Service) MarkAllRead(_ context.Context, recipient string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.items {
		if s.items[i].Recipient == recipient && !s.items[i].Read {
			s.items[i].Read = true
			changed++
		}
	}
	if changed > 0 {
		s.persistLocked()
	}
	return changed
}

// DeleteFor drops every notification addressed to recipient.
func (s *Service) DeleteFor(_ context.Context, recipient string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.items)
	s.items = slices.DeleteFunc(s.items, func(n Notification) bool { return n.Recipient == recipient })
	if len(s.items) != before {
		s.persistLocked()
	}
}

func (s *Service) Snapshot() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Replace swaps the whole feed, e.g. when hydrating from storage.
func (s *Service) Replace(items []Notification) error {
	for _, n := range items {
		if n.Recipient == "" {
			return ErrMissingRecipient
		}
		if !n.Kind.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidKind, n.Kind)
		}
	}
	s.mu.Lock()
	s.items = slices.Clone(items)
	s.mu.Unlock()
	return nil
}

func (s *Service) persistLocked() {
	if s.sink == nil {
		return
	}
	s.sink.Enqueue(snapshot.KeyNotifications, slices.Clone(s.items))
}
