package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notification"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
	"github.com/hackgods/clinic-appointment-scheduling/internal/user"
)

type CreateSlotRequest struct {
	Date      string            `json:"date" validate:"required"`
	StartTime appointment.Clock `json:"start_time"`
	EndTime   appointment.Clock `json:"end_time"`
}

type BookingDetailsRequest struct {
	TreatmentID  string              `json:"treatment_id" validate:"omitempty,max=64"`
	Urgency      appointment.Urgency `json:"urgency"`
	Reason       string              `json:"reason" validate:"max=500"`
	Symptoms     string              `json:"symptoms" validate:"max=1000"`
	Improvements string              `json:"improvements" validate:"max=1000"`
}

func (b BookingDetailsRequest) details() appointment.BookingDetails {
	return appointment.BookingDetails{
		TreatmentID:  b.TreatmentID,
		Urgency:      b.Urgency,
		Reason:       b.Reason,
		Symptoms:     b.Symptoms,
		Improvements: b.Improvements,
	}
}

type BookSlotRequest struct {
	Date      string            `json:"date" validate:"required"`
	StartTime appointment.Clock `json:"start_time"`
	BookingDetailsRequest
}

type AssignPatientRequest struct {
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
}

type AvailabilityResponse struct {
	Date        string              `json:"date"`
	TreatmentID string              `json:"treatment_id"`
	Slots       []appointment.Clock `json:"slots"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func listOf[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

type RegisterUserRequest struct {
	Email    string           `json:"email"`
	Name     string           `json:"name"`
	Phone    string           `json:"phone"`
	Password string           `json:"password"`
	Role     appointment.Role `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserResponse never carries the password hash.
type UserResponse struct {
	ID        uuid.UUID        `json:"id"`
	Email     string           `json:"email"`
	Name      string           `json:"name"`
	Phone     string           `json:"phone,omitempty"`
	Role      appointment.Role `json:"role"`
	CreatedAt time.Time        `json:"created_at"`
}

func toUserResponse(u user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

type NotificationsResponse struct {
	Items  []notification.Notification `json:"items"`
	Unread int                         `json:"unread"`
}

type SetToothRequest struct {
	Condition patient.Condition `json:"condition" validate:"required"`
	Notes     string            `json:"notes" validate:"max=500"`
}

type TreatmentsRequest struct {
	Treatments []appointment.Treatment `json:"treatments" validate:"dive"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
