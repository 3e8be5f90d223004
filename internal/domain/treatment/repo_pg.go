package treatment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/carecenter/internal/domain/attendance"
)

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

const sessionCols = `id, patient_id, modality, planned_sessions, completed_sessions, start_date, notes, created_at, updated_at`

func scanSession(row pgx.Row) (*TreatmentSession, error) {
	var s TreatmentSession
	var modality string
	err := row.Scan(&s.ID, &s.PatientID, &modality, &s.PlannedSessions, &s.CompletedSessions,
		&s.StartDate, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Modality = attendance.Modality(modality)
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]TreatmentSession, error) {
	defer rows.Close()
	var items []TreatmentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *s)
	}
	return items, rows.Err()
}

func (r *sessionRepoPG) Create(ctx context.Context, s *TreatmentSession) error {
	s.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO treatment_session (id, patient_id, modality, planned_sessions, completed_sessions, start_date, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		s.ID, s.PatientID, string(s.Modality), s.PlannedSessions, s.CompletedSessions,
		attendance.DateOnly(s.StartDate), s.Notes).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TreatmentSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM treatment_session WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *sessionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]TreatmentSession, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionCols+` FROM treatment_session
		WHERE patient_id = $1 ORDER BY start_date, created_at`, patientID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *sessionRepoPG) SearchByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]TreatmentSession, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM treatment_session WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+sessionCols+` FROM treatment_session
		WHERE patient_id = $1 ORDER BY start_date DESC, created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectSessions(rows)
	return items, total, err
}

func (r *sessionRepoPG) FindActive(ctx context.Context, patientID uuid.UUID, modality attendance.Modality) (*TreatmentSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM treatment_session
		WHERE patient_id = $1 AND modality = $2 AND completed_sessions < planned_sessions
		ORDER BY start_date, created_at LIMIT 1`, patientID, string(modality)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *sessionRepoPG) ListEventsByPatient(ctx context.Context, patientID uuid.UUID) ([]SessionEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, treatment_session_id, patient_id, attendance_id, status, scheduled_date, end_time, created_at
		FROM session_event WHERE patient_id = $1 ORDER BY scheduled_date, created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionEvent
	for rows.Next() {
		var e SessionEvent
		var status string
		if err := rows.Scan(&e.ID, &e.TreatmentSessionID, &e.PatientID, &e.AttendanceID, &status,
			&e.ScheduledDate, &e.EndTime, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = EventStatus(status)
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *sessionRepoPG) RecordCompletion(ctx context.Context, e *SessionEvent) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		e.ID = uuid.New()
		e.Status = EventCompleted
		tag, err := tx.Exec(ctx, `
			INSERT INTO session_event (id, treatment_session_id, patient_id, attendance_id, status, scheduled_date, end_time)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (attendance_id) DO NOTHING`,
			e.ID, e.TreatmentSessionID, e.PatientID, e.AttendanceID, string(e.Status),
			attendance.DateOnly(e.ScheduledDate), e.EndTime)
		if err != nil {
			return fmt.Errorf("insert session event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE treatment_session
			SET completed_sessions = LEAST(completed_sessions + 1, planned_sessions), updated_at = NOW()
			WHERE id = $1`, e.TreatmentSessionID); err != nil {
			return fmt.Errorf("increment completed sessions: %w", err)
		}
		return nil
	})
}
