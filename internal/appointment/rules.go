package appointment

import (
	"iter"
	"time"

	"github.com/google/uuid"
)

// SlotStep is the spacing between candidate start times.
const SlotStep = 15

// PatientWindow is the default minimum notice for patient-side changes.
const PatientWindow = 48 * time.Hour

// IntervalsOverlap reports whether [startA, endA) and [startB, endB) share
// any instant. Touching endpoints do not overlap.
func IntervalsOverlap(startA, endA, startB, endB Clock) bool {
	return startA < endB && endA > startB
}

// IsTimeSlotAvailable reports whether [start, end) on date is free of every
// occupying appointment in existing, ignoring excludeID.
func IsTimeSlotAvailable(date string, start, end Clock, existing []Appointment, excludeID uuid.UUID) bool {
	for _, a := range existing {
		if a.Date != date || (excludeID != uuid.Nil && a.ID == excludeID) {
			continue
		}
		if !a.Status.Occupies() {
			continue
		}
		if IntervalsOverlap(start, end, a.StartTime, a.EndTime) {
			return false
		}
	}
	return true
}

// AvailableSlots yields the bookable start times on date for treatment,
// walking the opening hours in SlotStep increments. Each range over the
// sequence recomputes from the inputs.
func AvailableSlots(date string, treatment Treatment, av Availability, appointments []Appointment) iter.Seq[Clock] {
	return func(yield func(Clock) bool) {
		if treatment.DurationMinutes <= 0 {
			return
		}
		for start := av.StartHour; start < av.EndHour; start += SlotStep {
			end, err := start.AddMinutes(treatment.DurationMinutes)
			if err != nil || end > av.EndHour {
				return
			}
			if av.hasLunch() && IntervalsOverlap(start, end, av.LunchStart, av.LunchEnd) {
				continue
			}
			if !IsTimeSlotAvailable(date, start, end, appointments, uuid.Nil) {
				continue
			}
			if !yield(start) {
				return
			}
		}
	}
}

// CanPatientManageAppointment reports whether the appointment starting at
// date+start is at least PatientWindow away from now. Past appointments and
// unparseable dates are never manageable.
func CanPatientManageAppointment(date string, start Clock, now time.Time) bool {
	return canManageWithin(date, start, now, PatientWindow)
}

func canManageWithin(date string, start Clock, now time.Time, window time.Duration) bool {
	at, err := At(date, start, now.Location())
	if err != nil {
		return false
	}
	return at.Sub(now) >= window
}
