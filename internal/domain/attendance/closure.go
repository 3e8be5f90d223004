package attendance

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EndOfDayType classifies whether a day can be closed.
type EndOfDayType string

const (
	EndOfDayCompleted         EndOfDayType = "completed"
	EndOfDayScheduledAbsences EndOfDayType = "scheduled_absences"
	EndOfDayIncomplete        EndOfDayType = "incomplete"
)

// EndOfDayResult is recomputed on demand and never persisted.
type EndOfDayResult struct {
	Type                  EndOfDayType       `json:"type"`
	ScheduledAbsences     []AttendanceRecord `json:"scheduled_absences,omitempty"`
	IncompleteAttendances []AttendanceRecord `json:"incomplete_attendances,omitempty"`
}

// MarshalJSON always carries incomplete_attendances for an incomplete day,
// as an empty list when nothing is known about the day.
func (r EndOfDayResult) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type                  EndOfDayType        `json:"type"`
		ScheduledAbsences     []AttendanceRecord  `json:"scheduled_absences,omitempty"`
		IncompleteAttendances *[]AttendanceRecord `json:"incomplete_attendances,omitempty"`
	}
	w := wire{Type: r.Type, ScheduledAbsences: r.ScheduledAbsences}
	if r.Type == EndOfDayIncomplete {
		list := r.IncompleteAttendances
		if list == nil {
			list = []AttendanceRecord{}
		}
		w.IncompleteAttendances = &list
	} else if len(r.IncompleteAttendances) > 0 {
		w.IncompleteAttendances = &r.IncompleteAttendances
	}
	return json.Marshal(w)
}

// Closable reports whether the day may be finalized.
func (r EndOfDayResult) Closable() bool { return r.Type == EndOfDayCompleted }

// CheckEndOfDayStatus classifies a day snapshot. The checks short-circuit in
// this order: no data, nothing pending, patients who never checked in, visits
// still in progress. A nil day is never reported as completed.
func CheckEndOfDayStatus(day *DayAttendanceSet) EndOfDayResult {
	if day == nil {
		return EndOfDayResult{Type: EndOfDayIncomplete, IncompleteAttendances: []AttendanceRecord{}}
	}

	pending := day.collect(StatusScheduled, StatusCheckedIn, StatusOnGoing)
	if len(pending) == 0 {
		return EndOfDayResult{Type: EndOfDayCompleted}
	}

	scheduled := day.collect(StatusScheduled)
	if len(scheduled) > 0 {
		return EndOfDayResult{Type: EndOfDayScheduledAbsences, ScheduledAbsences: scheduled}
	}

	return EndOfDayResult{Type: EndOfDayIncomplete, IncompleteAttendances: pending}
}

var (
	ErrDayClosed         = errors.New("day is already closed")
	ErrDayNotClosable    = errors.New("day cannot be closed yet")
	ErrClosureInProgress = errors.New("day closure already in progress")
	ErrFutureDay         = errors.New("day has not started yet")
)

// NotClosableError carries the classification that blocked a closure.
type NotClosableError struct {
	Result EndOfDayResult
}

func (e *NotClosableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDayNotClosable, e.Result.Type)
}

func (e *NotClosableError) Unwrap() error { return ErrDayNotClosable }

// DayClosure is the persisted record of a finalized day.
type DayClosure struct {
	Date              time.Time `db:"closure_date" json:"date"`
	ClosedBy          string    `db:"closed_by" json:"closed_by"`
	ClosedAt          time.Time `db:"closed_at" json:"closed_at"`
	AbsencesConfirmed int       `db:"absences_confirmed" json:"absences_confirmed"`
}

// Absence is a scheduled attendance the operator confirmed as a no-show.
type Absence struct {
	ID           uuid.UUID `db:"id" json:"id"`
	AttendanceID uuid.UUID `db:"attendance_id" json:"attendance_id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	Modality     Modality  `db:"modality" json:"modality"`
	Date         time.Time `db:"absence_date" json:"date"`
	ConfirmedBy  string    `db:"confirmed_by" json:"confirmed_by"`
	ConfirmedAt  time.Time `db:"confirmed_at" json:"confirmed_at"`
}
