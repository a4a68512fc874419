package appointment

import "errors"

var (
	ErrInvalidRange        = errors.New("end time must be after start time")
	ErrSlotNotAvailable    = errors.New("slot is not available")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrLockedByPolicy      = errors.New("appointment can no longer be changed by the patient")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotOverlap         = errors.New("time range overlaps an existing appointment")
	ErrTreatmentNotFound   = errors.New("treatment not found")
	ErrInvalidActor        = errors.New("invalid actor")
	ErrInvalidDetails      = errors.New("invalid booking details")
	ErrNotOwner            = errors.New("appointment belongs to another patient")
)
