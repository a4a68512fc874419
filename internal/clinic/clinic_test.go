package clinic

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/snapshot"
)

type keySink struct {
	keys []snapshot.Key
}

func (s *keySink) Enqueue(key snapshot.Key, _ any) { s.keys = append(s.keys, key) }

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clinic.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
settings:
  name: Test Clinic
  availability:
    start_hour: "08:30"
    end_hour: "17:00"
treatments:
  - id: checkup
    name: Checkup
    duration_minutes: 30
    price: 40
`)
	st, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Test Clinic", st.Settings.Name)
	assert.Equal(t, appointment.MustClock("08:30"), st.Settings.Availability.StartHour)
	assert.Equal(t, appointment.Clock(0), st.Settings.Availability.LunchStart)
	require.Len(t, st.Treatments, 1)
	assert.Equal(t, 30, st.Treatments[0].DurationMinutes)
}

func TestLoadRepoClinicFile(t *testing.T) {
	st, err := LoadFile(filepath.Join("..", "..", "config", "clinic.yml"))
	require.NoError(t, err)
	assert.NotEmpty(t, st.Treatments)
	assert.Equal(t, appointment.MustClock("13:00"), st.Settings.Availability.LunchStart)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing name": `
settings:
  availability: {start_hour: "09:00", end_hour: "18:00"}
`,
		"inverted hours": `
settings:
  name: X
  availability: {start_hour: "18:00", end_hour: "09:00"}
`,
		"zero duration": `
settings:
  name: X
  availability: {start_hour: "09:00", end_hour: "18:00"}
treatments:
  - {id: a, name: A, duration_minutes: 0}
`,
		"duplicate treatment": `
settings:
  name: X
  availability: {start_hour: "09:00", end_hour: "18:00"}
treatments:
  - {id: a, name: A, duration_minutes: 30}
  - {id: a, name: B, duration_minutes: 30}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, body))
			require.ErrorIs(t, err, ErrInvalidSettings)
		})
	}

	_, err := LoadFile(writeFile(t, cases["duplicate treatment"]))
	require.ErrorIs(t, err, ErrDuplicateTreatment)

	_, err = LoadFile(writeFile(t, "settings:\n  availability:\n    start_hour: \"9am\"\n"))
	require.Error(t, err)
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	sink := &keySink{}
	c, err := NewCatalog(Default(), sink, nil)
	require.NoError(t, err)

	tr, ok := c.Treatment("cleaning")
	require.True(t, ok)
	assert.Equal(t, 45, tr.DurationMinutes)
	_, ok = c.Treatment("whitening")
	assert.False(t, ok)

	s := c.Settings()
	s.Name = "Renamed"
	require.NoError(t, c.UpdateSettings(ctx, s))
	assert.Equal(t, "Renamed", c.Settings().Name)

	bad := s
	bad.Availability.EndHour = bad.Availability.StartHour
	require.ErrorIs(t, c.UpdateSettings(ctx, bad), ErrInvalidSettings)
	assert.Equal(t, "Renamed", c.Settings().Name)

	require.NoError(t, c.ReplaceTreatments(ctx, []appointment.Treatment{
		{ID: "whitening", Name: "Whitening", DurationMinutes: 60},
	}))
	_, ok = c.Treatment("whitening")
	assert.True(t, ok)
	_, ok = c.Treatment("cleaning")
	assert.False(t, ok)

	assert.Equal(t, []snapshot.Key{snapshot.KeySettings, snapshot.KeyTreatments}, sink.keys)

	var _ appointment.Catalog = c
}
