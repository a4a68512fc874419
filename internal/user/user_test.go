package user

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/password"
)

type removedRecords struct {
	ids []uuid.UUID
}

func (r *removedRecords) Delete(_ context.Context, id uuid.UUID) error {
	r.ids = append(r.ids, id)
	return nil
}

func newTestService(records RecordRemover) *Service {
	fast := &password.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	return NewService(password.NewHasher(fast), records, nil, nil)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)

	u, err := svc.Register(ctx, RegisterInput{
		Email: " Ana@Example.com ", Name: "Ana Lopez", Password: "s3cret-pass", Role: appointment.RolePatient,
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.NotContains(t, u.PasswordHash, "s3cret-pass")

	got, err := svc.Authenticate(ctx, "ANA@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(ctx, "ana@example.com", "wrong-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Register(ctx, RegisterInput{
		Email: "ana@example.com", Name: "Other", Password: "another-pass", Role: appointment.RoleStaff,
	})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(nil)
	cases := []RegisterInput{
		{Email: "not-an-email", Name: "A", Password: "longenough", Role: appointment.RolePatient},
		{Email: "a@b.co", Name: "", Password: "longenough", Role: appointment.RolePatient},
		{Email: "a@b.co", Name: "A", Password: "short", Role: appointment.RolePatient},
		{Email: "a@b.co", Name: "A", Password: "longenough", Role: "admin"},
	}
	for _, in := range cases {
		_, err := svc.Register(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidUser, in)
	}
	assert.Empty(t, svc.Snapshot())
}

func TestDeleteCascadesToPatientRecord(t *testing.T) {
	ctx := context.Background()
	records := &removedRecords{}
	svc := newTestService(records)

	patient, err := svc.Register(ctx, RegisterInput{Email: "p@x.io", Name: "P", Password: "password1", Role: appointment.RolePatient})
	require.NoError(t, err)
	staff, err := svc.Register(ctx, RegisterInput{Email: "s@x.io", Name: "S", Password: "password1", Role: appointment.RoleStaff})
	require.NoError(t, err)

	assert.Len(t, svc.List(ctx, appointment.RolePatient), 1)
	assert.Len(t, svc.List(ctx, ""), 2)

	require.NoError(t, svc.Delete(ctx, patient.ID))
	require.NoError(t, svc.Delete(ctx, staff.ID))
	assert.Equal(t, []uuid.UUID{patient.ID}, records.ids)

	_, err = svc.Get(ctx, patient.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, svc.Delete(ctx, patient.ID), ErrUserNotFound)
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	u, err := svc.Register(ctx, RegisterInput{Email: "p@x.io", Name: "P", Password: "password1", Role: appointment.RolePatient})
	require.NoError(t, err)

	good := *u
	good.ID = uuid.New()
	good.Email = "q@x.io"
	require.NoError(t, svc.Replace([]User{good}))
	assert.Len(t, svc.Snapshot(), 1)

	// the hash travels with the user
	_, err = svc.Authenticate(ctx, "q@x.io", "password1")
	require.NoError(t, err)

	plain := good
	plain.PasswordHash = "password1"
	require.ErrorIs(t, svc.Replace([]User{plain}), ErrInvalidUser)

	dup := good
	dup.ID = uuid.New()
	require.ErrorIs(t, svc.Replace([]User{good, dup}), ErrEmailTaken)

	assert.Equal(t, good.ID, svc.Snapshot()[0].ID)
}
