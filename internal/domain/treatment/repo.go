package treatment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/carecenter/carecenter/internal/domain/attendance"
)

var ErrNotFound = errors.New("treatment session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *TreatmentSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*TreatmentSession, error)
	// ListByPatient returns every plan of the patient, oldest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]TreatmentSession, error)
	SearchByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]TreatmentSession, int, error)
	// FindActive returns the oldest unfinished plan of the patient for the
	// modality, or ErrNotFound.
	FindActive(ctx context.Context, patientID uuid.UUID, modality attendance.Modality) (*TreatmentSession, error)
	ListEventsByPatient(ctx context.Context, patientID uuid.UUID) ([]SessionEvent, error)
	// RecordCompletion stores a completed event and increments the plan's
	// completed count, never past planned. It is idempotent per attendance.
	RecordCompletion(ctx context.Context, e *SessionEvent) error
}
