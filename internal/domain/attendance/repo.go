package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("attendance not found")
	// ErrConcurrentUpdate is returned by ApplyStatusChanges when a record is
	// no longer in the status the change expects.
	ErrConcurrentUpdate = errors.New("attendance changed concurrently")
)

type AttendanceRepository interface {
	Create(ctx context.Context, a *AttendanceRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*AttendanceRecord, error)
	ListByDate(ctx context.Context, date time.Time) ([]AttendanceRecord, error)
	// ListScheduledFrom returns scheduled attendances dated on or after from,
	// ordered by date.
	ListScheduledFrom(ctx context.Context, from time.Time) ([]AttendanceRecord, error)
	// ApplyStatusChanges persists every change or none of them.
	ApplyStatusChanges(ctx context.Context, changes []StatusChange) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ConfirmAbsences records the absences and removes their scheduled
	// attendances in one unit of work.
	ConfirmAbsences(ctx context.Context, absences []Absence) error
}

type ClosureRepository interface {
	Close(ctx context.Context, c *DayClosure) error
	// Get returns ErrNotFound when the day has not been closed.
	Get(ctx context.Context, date time.Time) (*DayClosure, error)
}
