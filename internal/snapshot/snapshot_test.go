package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/observability/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var got doc
	found, err := LoadJSON(ctx, store, KeySettings, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SaveJSON(ctx, store, KeySettings, doc{Name: "clinic", Count: 2}))
	found, err = LoadJSON(ctx, store, KeySettings, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, doc{Name: "clinic", Count: 2}, got)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	ctx := context.Background()

	_, err := store.Load(ctx, KeyUsers)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, KeyUsers, []byte(`[{"id":"u1"}]`)))
	assert.True(t, mr.Exists("snapshot:users"))

	data, err := store.Load(ctx, KeyUsers)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"u1"}]`, string(data))
}

func TestPgStoreLoad(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT payload\s+FROM app_snapshots`).
		WithArgs("appointments").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow([]byte(`[]`)))
	mock.ExpectQuery(`SELECT payload\s+FROM app_snapshots`).
		WithArgs("users").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}))

	store := NewPgStore(mock)
	data, err := store.Load(context.Background(), KeyAppointments)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	_, err = store.Load(context.Background(), KeyUsers)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreSave(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	payload := []byte(`{"clinicName":"Smile"}`)
	mock.ExpectExec(`INSERT INTO app_snapshots`).
		WithArgs("settings", payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO app_snapshots`).
		WithArgs("settings", payload).
		WillReturnError(errors.New("connection reset"))

	store := NewPgStore(mock)
	require.NoError(t, store.Save(context.Background(), KeySettings, payload))
	require.Error(t, store.Save(context.Background(), KeySettings, payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

type recordingStore struct {
	mu     sync.Mutex
	saves  map[Key][][]byte
	failOn Key
}

func (s *recordingStore) Load(context.Context, Key) ([]byte, error) { return nil, ErrNotFound }

func (s *recordingStore) Save(_ context.Context, key Key, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.failOn {
		return errors.New("disk full")
	}
	if s.saves == nil {
		s.saves = make(map[Key][][]byte)
	}
	s.saves[key] = append(s.saves[key], data)
	return nil
}

func (s *recordingStore) count(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves[key])
}

func TestWriterCoalescesAndFlushes(t *testing.T) {
	store := &recordingStore{}
	w := NewWriter(store, logging.New("error"), nil, time.Second)

	w.Enqueue(KeyAppointments, doc{Count: 1})
	w.Enqueue(KeyAppointments, doc{Count: 2})
	w.Enqueue(KeyUsers, doc{Name: "ana"})

	assert.Equal(t, 2, w.Flush(context.Background()))
	require.Equal(t, 1, store.count(KeyAppointments))
	assert.JSONEq(t, `{"name":"","count":2}`, string(store.saves[KeyAppointments][0]))
	assert.Equal(t, 0, w.Flush(context.Background()))
}

func TestWriterBackgroundLoop(t *testing.T) {
	store := &recordingStore{}
	w := NewWriter(store, logging.New("error"), nil, time.Second)
	w.Start()

	w.Enqueue(KeyNotifications, []doc{{Name: "hello"}})
	require.Eventually(t, func() bool { return store.count(KeyNotifications) == 1 }, time.Second, 10*time.Millisecond)

	w.Enqueue(KeyNotifications, []doc{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Close(ctx)
	assert.Equal(t, 2, store.count(KeyNotifications))
}

func TestWriterCountsFailures(t *testing.T) {
	store := &recordingStore{failOn: KeyUsers}
	m := metrics.New(prometheus.NewRegistry())
	w := NewWriter(store, logging.New("error"), m, time.Second)

	w.Enqueue(KeyUsers, doc{})
	w.Enqueue(KeySettings, doc{})
	assert.Equal(t, 1, w.Flush(context.Background()))

	w.Enqueue(KeyUsers, func() {})
	assert.Equal(t, 0, w.Flush(context.Background()))
}
