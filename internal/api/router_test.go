package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/backup"
	"github.com/hackgods/clinic-appointment-scheduling/internal/clinic"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notification"
	"github.com/hackgods/clinic-appointment-scheduling/internal/observability/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
	"github.com/hackgods/clinic-appointment-scheduling/internal/user"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/password"
)

type testServer struct {
	handler http.Handler
	users   *user.Service
	appts   *appointment.Service
	now     time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{now: time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)}

	catalog, err := clinic.NewCatalog(clinic.Default(), nil, nil)
	require.NoError(t, err)
	notes := notification.NewService(nil, nil, nil)
	records := patient.NewService(nil, nil)
	fast := &password.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	ts.users = user.NewService(password.NewHasher(fast), records, nil, nil)
	ts.appts = appointment.NewService(appointment.Deps{
		Repo:     appointment.NewMemoryRepository(),
		Catalog:  catalog,
		Notifier: notes,
		Now:      func() time.Time { return ts.now },
	})

	reg := prometheus.NewRegistry()
	ts.handler = NewRouter(RouterConfig{
		Appointments:  ts.appts,
		Catalog:       catalog,
		Users:         ts.users,
		Notifications: notes,
		Records:       records,
		Backup:        backup.NewService(ts.users, ts.appts, catalog, records, nil),
		Metrics:       metrics.New(reg),
		Gatherer:      reg,
		Env:           "test",
	})
	return ts
}

type caller struct {
	id   uuid.UUID
	role appointment.Role
}

func (ts *testServer) register(t *testing.T, email string, role appointment.Role) caller {
	t.Helper()
	u, err := ts.users.Register(context.Background(), user.RegisterInput{
		Email: email, Name: email, Password: "password1", Role: role,
	})
	require.NoError(t, err)
	return caller{id: u.ID, role: role}
}

func (ts *testServer) do(t *testing.T, as *caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if as != nil {
		req.Header.Set(HeaderUserID, as.id.String())
		req.Header.Set(HeaderUserRole, string(as.role))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, nil, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = ts.do(t, nil, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[ReadinessResponse](t, rec).Status)

	rec = ts.do(t, nil, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinic_http_request_duration_seconds")
}

func TestIdentityAndRoles(t *testing.T) {
	ts := newTestServer(t)
	patient := ts.register(t, "p@x.io", appointment.RolePatient)

	rec := ts.do(t, nil, http.MethodGet, "/appointments", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := &caller{id: uuid.New(), role: "admin"}
	rec = ts.do(t, bad, http.MethodGet, "/appointments", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, &patient, http.MethodPost, "/appointments/slots",
		map[string]string{"date": "2030-03-10", "start_time": "09:00", "end_time": "09:30"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, rec).Error)
}

func TestSlotLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.register(t, "s@x.io", appointment.RoleStaff)
	pat := ts.register(t, "p@x.io", appointment.RolePatient)
	other := ts.register(t, "o@x.io", appointment.RolePatient)

	rec := ts.do(t, &staff, http.MethodPost, "/appointments/slots",
		map[string]string{"date": "2030-03-10", "start_time": "10:00", "end_time": "10:30"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	slot := decode[appointment.Appointment](t, rec)

	rec = ts.do(t, &staff, http.MethodPost, "/appointments/slots",
		map[string]string{"date": "2030-03-10", "start_time": "10:15", "end_time": "10:45"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_overlap", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, &staff, http.MethodPost, "/appointments/slots",
		map[string]string{"date": "2030-03-10", "start_time": "11:00", "end_time": "10:30"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, &staff, http.MethodPost, "/appointments/"+slot.ID.String()+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, &pat, http.MethodPost, "/appointments/"+slot.ID.String()+"/request",
		map[string]string{"treatment_id": "checkup", "urgency": "high", "reason": "pain"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, appointment.StatusPending, decode[appointment.Appointment](t, rec).Status)

	rec = ts.do(t, &other, http.MethodPost, "/appointments/"+slot.ID.String()+"/request", map[string]string{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_not_available", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, &other, http.MethodGet, "/appointments/"+slot.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, &other, http.MethodPost, "/appointments/"+slot.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, &staff, http.MethodPost, "/appointments/"+slot.ID.String()+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, &pat, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[NotificationsResponse](t, rec)
	assert.Len(t, feed.Items, 2)
	assert.Equal(t, 2, feed.Unread)

	rec = ts.do(t, &staff, http.MethodGet, "/notifications", nil)
	assert.Len(t, decode[NotificationsResponse](t, rec).Items, 1)

	rec = ts.do(t, &pat, http.MethodPost, "/appointments/"+slot.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointment.StatusAvailable, decode[appointment.Appointment](t, rec).Status)

	rec = ts.do(t, &pat, http.MethodGet, "/appointments", nil)
	list := decode[ListResponse[appointment.Appointment]](t, rec)
	assert.Equal(t, 1, list.Count)

	rec = ts.do(t, &staff, http.MethodDelete, "/appointments/"+slot.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, &staff, http.MethodDelete, "/appointments/"+slot.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelInsideWindowIsLocked(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.register(t, "s@x.io", appointment.RoleStaff)
	pat := ts.register(t, "p@x.io", appointment.RolePatient)

	rec := ts.do(t, &staff, http.MethodPost, "/appointments/slots",
		map[string]string{"date": "2030-03-05", "start_time": "10:00", "end_time": "10:30"})
	require.Equal(t, http.StatusCreated, rec.Code)
	slot := decode[appointment.Appointment](t, rec)

	rec = ts.do(t, &staff, http.MethodPost, "/appointments/"+slot.ID.String()+"/assign",
		map[string]string{"patient_id": pat.id.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, appointment.StatusApproved, decode[appointment.Appointment](t, rec).Status)

	rec = ts.do(t, &pat, http.MethodPost, "/appointments/"+slot.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "locked_by_policy", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, &staff, http.MethodPost, "/appointments/"+slot.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAvailabilityAndBooking(t *testing.T) {
	ts := newTestServer(t)
	pat := ts.register(t, "p@x.io", appointment.RolePatient)

	rec := ts.do(t, nil, http.MethodGet, "/availability?date=2030-03-11&treatment_id=checkup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode[AvailabilityResponse](t, rec)
	require.NotEmpty(t, avail.Slots)
	assert.Equal(t, appointment.MustClock("09:00"), avail.Slots[0])

	rec = ts.do(t, &pat, http.MethodPost, "/appointments/book",
		map[string]string{"date": "2030-03-11", "start_time": "09:00", "treatment_id": "checkup"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booked := decode[appointment.Appointment](t, rec)
	assert.Equal(t, appointment.MustClock("09:30"), booked.EndTime)

	rec = ts.do(t, &pat, http.MethodPost, "/appointments/book",
		map[string]string{"date": "2030-03-11", "start_time": "09:00", "treatment_id": "checkup"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, &pat, http.MethodPost, "/appointments/book",
		map[string]string{"date": "2030-03-11", "start_time": "9:00", "treatment_id": "checkup"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, nil, http.MethodGet, "/availability?date=2030-03-11&treatment_id=nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, &pat, http.MethodGet, "/appointments/upcoming", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListResponse[appointment.Appointment]](t, rec).Count)
}

func TestUsersAndLogin(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.register(t, "s@x.io", appointment.RoleStaff)

	rec := ts.do(t, nil, http.MethodPost, "/users",
		map[string]string{"email": "new@x.io", "name": "New", "password": "password1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	assert.Equal(t, "patient", created["role"])
	assert.NotContains(t, created, "passwordHash")

	rec = ts.do(t, nil, http.MethodPost, "/users",
		map[string]string{"email": "boss@x.io", "name": "Boss", "password": "password1", "role": "staff"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, nil, http.MethodPost, "/auth/login", map[string]string{"email": "new@x.io", "password": "password1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, nil, http.MethodPost, "/auth/login", map[string]string{"email": "new@x.io", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, &staff, http.MethodGet, "/users?role=patient", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListResponse[UserResponse]](t, rec).Count)
}

func TestOdontogramAndBackup(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.register(t, "s@x.io", appointment.RoleStaff)
	pat := ts.register(t, "p@x.io", appointment.RolePatient)
	path := "/patients/" + pat.id.String() + "/odontogram"

	rec := ts.do(t, &pat, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[patient.Record](t, rec).Odontogram)

	rec = ts.do(t, &staff, http.MethodPut, path+"/36", map[string]string{"condition": "caries"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, &staff, http.MethodPut, path+"/19", map[string]string{"condition": "caries"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	other := ts.register(t, "o@x.io", appointment.RolePatient)
	rec = ts.do(t, &other, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, &staff, http.MethodGet, "/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[backup.Document](t, rec)
	assert.Len(t, doc.Users, 3)
	assert.Len(t, doc.PatientRecords, 1)

	rec = ts.do(t, &staff, http.MethodPost, "/backup", map[string]any{"patientRecords": []any{}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, &pat, http.MethodGet, path, nil)
	assert.Empty(t, decode[patient.Record](t, rec).Odontogram)

	rec = ts.do(t, &staff, http.MethodPost, "/backup", map[string]any{"users": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
