package user

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/snapshot"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/password"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidUser        = errors.New("invalid user")
)

type User struct {
	ID           uuid.UUID        `json:"id"`
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	Phone        string           `json:"phone,omitempty"`
	Role         appointment.Role `json:"role"`
	PasswordHash string           `json:"passwordHash"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func (u User) Validate() error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("%w: id is required", ErrInvalidUser)
	}
	if u.Email == "" || u.Name == "" {
		return fmt.Errorf("%w: %s needs an email and a name", ErrInvalidUser, u.ID)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("%w: %s has role %q", ErrInvalidUser, u.ID, u.Role)
	}
	if !password.WellFormed(u.PasswordHash) {
		return fmt.Errorf("%w: %s has no usable password hash", ErrInvalidUser, u.ID)
	}
	return nil
}

type RegisterInput struct {
	Email    string           `json:"email" validate:"required,email"`
	Name     string           `json:"name" validate:"required,max=120"`
	Phone    string           `json:"phone" validate:"omitempty,max=32"`
	Password string           `json:"password" validate:"required,min=8,max=128"`
	Role     appointment.Role `json:"role" validate:"required,oneof=patient staff"`
}

// RecordRemover drops clinical data owned by a deleted patient.
type RecordRemover interface {
	Delete(ctx context.Context, patientID uuid.UUID) error
}

type Service struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]User
	hasher   *password.Hasher
	validate *validator.Validate
	records  RecordRemover
	sink     snapshot.Sink
	logger   *logging.Logger
	now      func() time.Time
}

func NewService(hasher *password.Hasher, records RecordRemover, sink snapshot.Sink, logger *logging.Logger) *Service {
	if hasher == nil {
		hasher = password.NewHasher(nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		users:    make(map[uuid.UUID]User),
		hasher:   hasher,
		validate: validator.New(),
		records:  records,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) Register(_ context.Context, in RegisterInput) (*User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := User{
		ID:           uuid.New(),
		Email:        in.Email,
		Name:         in.Name,
		Phone:        in.Phone,
		Role:         in.Role,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTakenLocked(u.Email) {
		return nil, fmt.Errorf("%w: %s", ErrEmailTaken, u.Email)
	}
	s.users[u.ID] = u
	s.persistLocked()

	s.logger.Info("user registered", "user_id", u.ID, "role", u.Role)
	return &u, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords fail
// the same way.
func (s *Service) Authenticate(_ context.Context, email, pw string) (*User, error) {
	email = normalizeEmail(email)

	s.mu.RLock()
	var found *User
	for _, u := range s.users {
		if u.Email == email {
			found = &u
			break
		}
	}
	s.mu.RUnlock()

	if found == nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Verify(found.PasswordHash, pw); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			s.logger.Warn("stored password hash unusable", "user_id", found.ID, "error", err)
		}
		return nil, ErrInvalidCredentials
	}
	return found, nil
}

func (s *Service) Get(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// List returns users ordered by name. An empty role lists everyone.
func (s *Service) List(_ context.Context, role appointment.Role) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sortUsers(out)
	return out
}

// Delete removes the user and, for patients, their clinical record.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return ErrUserNotFound
	}
	delete(s.users, id)
	s.persistLocked()
	s.mu.Unlock()

	if u.Role == appointment.RolePatient && s.records != nil {
		if err := s.records.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete record for %s: %w", id, err)
		}
	}
	s.logger.Info("user deleted", "user_id", id, "role", u.Role)
	return nil
}

func (s *Service) Snapshot() []User {
	return s.List(context.Background(), "")
}

// Replace swaps the registry after checking every entry.
func (s *Service) Replace(items []User) error {
	if err := ValidateCollection(items); err != nil {
		return err
	}
	next := make(map[uuid.UUID]User, len(items))
	for _, u := range items {
		u.Email = normalizeEmail(u.Email)
		next[u.ID] = u
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = next
	s.persistLocked()
	return nil
}

func ValidateCollection(items []User) error {
	ids := make(map[uuid.UUID]struct{}, len(items))
	emails := make(map[string]struct{}, len(items))
	for _, u := range items {
		if err := u.Validate(); err != nil {
			return err
		}
		if _, dup := ids[u.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidUser, u.ID)
		}
		email := normalizeEmail(u.Email)
		if _, dup := emails[email]; dup {
			return fmt.Errorf("%w: %s", ErrEmailTaken, email)
		}
		ids[u.ID] = struct{}{}
		emails[email] = struct{}{}
	}
	return nil
}

func (s *Service) emailTakenLocked(email string) bool {
	for _, u := range s.users {
		if u.Email == email {
			return true
		}
	}
	return false
}

func (s *Service) persistLocked() {
	if s.sink == nil {
		return
	}
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sortUsers(out)
	s.sink.Enqueue(snapshot.KeyUsers, out)
}

func sortUsers(items []User) {
	slices.SortFunc(items, func(a, b User) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
