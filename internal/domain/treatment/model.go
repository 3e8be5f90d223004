package treatment

import (
	"time"

	"github.com/google/uuid"

	"github.com/carecenter/carecenter/internal/domain/attendance"
)

// TreatmentSession is a multi-visit plan for one patient and modality.
type TreatmentSession struct {
	ID                uuid.UUID           `db:"id" json:"id"`
	PatientID         uuid.UUID           `db:"patient_id" json:"patient_id"`
	Modality          attendance.Modality `db:"modality" json:"modality"`
	PlannedSessions   int                 `db:"planned_sessions" json:"planned_sessions"`
	CompletedSessions int                 `db:"completed_sessions" json:"completed_sessions"`
	StartDate         time.Time           `db:"start_date" json:"start_date"`
	Notes             *string             `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

// counts returns planned and completed normalized for display: planned is
// at least 1 and completed lies in [0, planned].
func (s TreatmentSession) counts() (planned, completed int) {
	planned = s.PlannedSessions
	if planned <= 0 {
		planned = 1
	}
	completed = s.CompletedSessions
	if completed < 0 {
		completed = 0
	}
	if completed > planned {
		completed = planned
	}
	return planned, completed
}

// CurrentSession is the 1-based number of the session the patient is on.
func (s TreatmentSession) CurrentSession() int {
	planned, completed := s.counts()
	if completed+1 > planned {
		return planned
	}
	return completed + 1
}

// Closed reports whether every planned session has been completed.
func (s TreatmentSession) Closed() bool {
	planned, completed := s.counts()
	return completed == planned
}

type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventCompleted EventStatus = "completed"
	EventMissed    EventStatus = "missed"
	EventCancelled EventStatus = "cancelled"
)

// SessionEvent is one visit recorded against a plan.
type SessionEvent struct {
	ID                 uuid.UUID   `db:"id" json:"id"`
	TreatmentSessionID uuid.UUID   `db:"treatment_session_id" json:"treatment_session_id"`
	PatientID          uuid.UUID   `db:"patient_id" json:"patient_id"`
	AttendanceID       *uuid.UUID  `db:"attendance_id" json:"attendance_id,omitempty"`
	Status             EventStatus `db:"status" json:"status"`
	ScheduledDate      time.Time   `db:"scheduled_date" json:"scheduled_date"`
	EndTime            *time.Time  `db:"end_time" json:"end_time,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
}

// occurredAt is the later of the end time and the scheduled date.
func (e SessionEvent) occurredAt() time.Time {
	if e.EndTime != nil && e.EndTime.After(e.ScheduledDate) {
		return *e.EndTime
	}
	return e.ScheduledDate
}

type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// TreatmentProgress is the derived progress of one plan.
type TreatmentProgress struct {
	SessionID               uuid.UUID           `json:"session_id"`
	PatientID               uuid.UUID           `json:"patient_id"`
	Modality                attendance.Modality `json:"modality"`
	PlannedSessions         int                 `json:"planned_sessions"`
	CompletedSessions       int                 `json:"completed_sessions"`
	CurrentSession          int                 `json:"current_session"`
	ProgressPercentage      int                 `json:"progress_percentage"`
	Status                  ProgressStatus      `json:"status"`
	StartDate               time.Time           `json:"start_date"`
	NextSessionDate         *time.Time          `json:"next_session_date,omitempty"`
	EstimatedCompletionDate *time.Time          `json:"estimated_completion_date,omitempty"`
	LastCompletedDate       *time.Time          `json:"last_completed_date,omitempty"`
}

type TreatmentStatistics struct {
	TotalPlans        int `json:"total_plans"`
	ActivePlans       int `json:"active_plans"`
	CompletedPlans    int `json:"completed_plans"`
	RemainingSessions int `json:"remaining_sessions"`
	OverallProgress   int `json:"overall_progress"`
}

type NextSessionInfo struct {
	SessionID     uuid.UUID           `json:"session_id"`
	Modality      attendance.Modality `json:"modality"`
	ModalityLabel string              `json:"modality_label"`
	Date          time.Time           `json:"date"`
}
