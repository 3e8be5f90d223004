package attendance

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrAlreadyScheduled = errors.New("patient already scheduled for this modality on this date")

// DuplicatePolicy controls when double booking is checked.
type DuplicatePolicy string

const (
	// DuplicateAllDates checks every date.
	DuplicateAllDates DuplicatePolicy = "all_dates"
	// DuplicateTodayOnly only checks bookings for today, which lets a patient
	// be booked twice on a future date. Kept for parity with the legacy
	// front desk until product confirms the intended rule.
	DuplicateTodayOnly DuplicatePolicy = "today_only"
)

func (p DuplicatePolicy) Valid() bool {
	return p == DuplicateAllDates || p == DuplicateTodayOnly
}

// FindDuplicate returns the existing attendance that a new booking of
// patientID for modality on date would duplicate.
func FindDuplicate(existing []AttendanceRecord, patientID uuid.UUID, modality Modality, date, today time.Time, policy DuplicatePolicy) (AttendanceRecord, bool) {
	if policy == DuplicateTodayOnly && !SameDate(date, today) {
		return AttendanceRecord{}, false
	}
	for _, r := range existing {
		if r.PatientID == patientID && r.Modality == modality && SameDate(r.Date, date) {
			return r, true
		}
	}
	return AttendanceRecord{}, false
}

// CheckDuplicate wraps FindDuplicate into an ErrAlreadyScheduled error.
func CheckDuplicate(existing []AttendanceRecord, candidate AttendanceRecord, today time.Time, policy DuplicatePolicy) error {
	if dup, ok := FindDuplicate(existing, candidate.PatientID, candidate.Modality, candidate.Date, today, policy); ok {
		return fmt.Errorf("%w: attendance %s", ErrAlreadyScheduled, dup.ID)
	}
	return nil
}
