package appointment

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]Appointment)}
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f Filter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Appointment, 0)
	for _, a := range r.items {
		if f.match(a) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *MemoryRepository) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[a.ID]; exists {
		return nil, fmt.Errorf("appointment %s already exists", a.ID)
	}
	if err := r.checkOverlapLocked(a); err != nil {
		return nil, err
	}
	r.items[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, id uuid.UUID, fn func(a *Appointment) error) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	next := current
	if current.ClientID != nil {
		cid := *current.ClientID
		next.ClientID = &cid
	}
	if err := fn(&next); err != nil {
		return nil, err
	}
	if next.ID != current.ID || !next.CreatedAt.Equal(current.CreatedAt) {
		return nil, fmt.Errorf("appointment %s: id and creation time are immutable", id)
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := r.checkOverlapLocked(next); err != nil {
		return nil, err
	}

	r.items[id] = next
	return &next, nil
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	delete(r.items, id)
	return &a, nil
}

func (r *MemoryRepository) Snapshot(ctx context.Context) ([]Appointment, error) {
	return r.ListAppointments(ctx, Filter{})
}

func (r *MemoryRepository) ReplaceAll(_ context.Context, items []Appointment) error {
	if err := ValidateCollection(items); err != nil {
		return err
	}

	next := make(map[uuid.UUID]Appointment, len(items))
	for _, a := range items {
		next[a.ID] = a
	}

	r.mu.Lock()
	r.items = next
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) checkOverlapLocked(a Appointment) error {
	if !a.Status.Occupies() {
		return nil
	}
	for _, other := range r.items {
		if other.ID == a.ID || other.Date != a.Date || !other.Status.Occupies() {
			continue
		}
		if IntervalsOverlap(a.StartTime, a.EndTime, other.StartTime, other.EndTime) {
			return fmt.Errorf("%w: %s %s-%s collides with %s", ErrSlotOverlap, a.Date, a.StartTime, a.EndTime, other.ID)
		}
	}
	return nil
}

// ValidateCollection checks every record invariant plus the no-overlap rule
// across the whole set.
func ValidateCollection(items []Appointment) error {
	seen := make(map[uuid.UUID]struct{}, len(items))
	sorted := slices.Clone(items)
	sortAppointments(sorted)

	for i, a := range sorted {
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("duplicate appointment id %s", a.ID)
		}
		seen[a.ID] = struct{}{}

		if !a.Status.Occupies() {
			continue
		}
		for _, b := range sorted[i+1:] {
			if b.Date != a.Date {
				break
			}
			if b.Status.Occupies() && IntervalsOverlap(a.StartTime, a.EndTime, b.StartTime, b.EndTime) {
				return fmt.Errorf("%w: %s and %s on %s", ErrSlotOverlap, a.ID, b.ID, a.Date)
			}
		}
	}
	return nil
}

func sortAppointments(items []Appointment) {
	slices.SortFunc(items, func(a, b Appointment) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
