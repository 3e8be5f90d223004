package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Attendance Repository ===========

type attendanceRepoPG struct{ pool *pgxpool.Pool }

func NewAttendanceRepoPG(pool *pgxpool.Pool) AttendanceRepository {
	return &attendanceRepoPG{pool: pool}
}

const attendanceCols = `id, patient_id, patient_name, priority, modality, status, attendance_date,
	checked_in_time, on_going_time, completed_time, notes, created_at, updated_at`

func scanAttendance(row pgx.Row) (*AttendanceRecord, error) {
	var a AttendanceRecord
	var modality, status string
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.Priority, &modality, &status, &a.Date,
		&a.CheckedInTime, &a.OnGoingTime, &a.CompletedTime, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Modality = Modality(modality)
	a.Status = Status(status)
	return &a, nil
}

func collectAttendances(rows pgx.Rows) ([]AttendanceRecord, error) {
	defer rows.Close()
	var items []AttendanceRecord
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

func (r *attendanceRepoPG) Create(ctx context.Context, a *AttendanceRecord) error {
	a.ID = uuid.New()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO attendance (id, patient_id, patient_name, priority, modality, status, attendance_date, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.PatientName, a.Priority, string(a.Modality), string(a.Status),
		DateOnly(a.Date), a.Notes).Scan(&a.CreatedAt, &a.UpdatedAt)
	return err
}

func (r *attendanceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AttendanceRecord, error) {
	a, err := scanAttendance(r.pool.QueryRow(ctx, `SELECT `+attendanceCols+` FROM attendance WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListByDate orders by created_at so board columns keep booking order.
func (r *attendanceRepoPG) ListByDate(ctx context.Context, date time.Time) ([]AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+attendanceCols+` FROM attendance
		WHERE attendance_date = $1 ORDER BY created_at, id`, DateOnly(date))
	if err != nil {
		return nil, err
	}
	return collectAttendances(rows)
}

func (r *attendanceRepoPG) ListScheduledFrom(ctx context.Context, from time.Time) ([]AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+attendanceCols+` FROM attendance
		WHERE attendance_date >= $1 AND status = $2
		ORDER BY attendance_date, priority, created_at`, DateOnly(from), string(StatusScheduled))
	if err != nil {
		return nil, err
	}
	return collectAttendances(rows)
}

func (r *attendanceRepoPG) ApplyStatusChanges(ctx context.Context, changes []StatusChange) error {
	if len(changes) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, ch := range changes {
			tag, err := tx.Exec(ctx, `
				UPDATE attendance SET status = $2,
					checked_in_time = CASE WHEN $2 = 'checkedIn' THEN $4 ELSE checked_in_time END,
					on_going_time   = CASE WHEN $2 = 'onGoing'   THEN $4 ELSE on_going_time END,
					completed_time  = CASE WHEN $2 = 'completed' THEN $4 ELSE completed_time END,
					updated_at = NOW()
				WHERE id = $1 AND status = $3`,
				ch.AttendanceID, string(ch.To), string(ch.From), ch.At)
			if err != nil {
				return fmt.Errorf("update attendance %s: %w", ch.AttendanceID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: %s is no longer %s", ErrConcurrentUpdate, ch.AttendanceID, ch.From)
			}
		}
		return nil
	})
}

func (r *attendanceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM attendance WHERE id = $1 AND status = $2`, id, string(StatusScheduled))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *attendanceRepoPG) ConfirmAbsences(ctx context.Context, absences []Absence) error {
	if len(absences) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for i := range absences {
			ab := &absences[i]
			ab.ID = uuid.New()
			if _, err := tx.Exec(ctx, `
				INSERT INTO attendance_absence (id, attendance_id, patient_id, modality, absence_date, confirmed_by, confirmed_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				ab.ID, ab.AttendanceID, ab.PatientID, string(ab.Modality), DateOnly(ab.Date),
				ab.ConfirmedBy, ab.ConfirmedAt); err != nil {
				return fmt.Errorf("record absence %s: %w", ab.AttendanceID, err)
			}
			tag, err := tx.Exec(ctx, `DELETE FROM attendance WHERE id = $1 AND status = $2`,
				ab.AttendanceID, string(StatusScheduled))
			if err != nil {
				return fmt.Errorf("remove attendance %s: %w", ab.AttendanceID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: %s is no longer scheduled", ErrConcurrentUpdate, ab.AttendanceID)
			}
		}
		return nil
	})
}

// =========== Closure Repository ===========

type closureRepoPG struct{ pool *pgxpool.Pool }

func NewClosureRepoPG(pool *pgxpool.Pool) ClosureRepository { return &closureRepoPG{pool: pool} }

func (r *closureRepoPG) conn() queryable { return r.pool }

// Close stores the closure with the number of absences confirmed for the
// day. A second close of the same date returns ErrDayClosed.
func (r *closureRepoPG) Close(ctx context.Context, c *DayClosure) error {
	err := r.conn().QueryRow(ctx, `
		INSERT INTO day_closure (closure_date, closed_by, closed_at, absences_confirmed)
		SELECT $1, $2, $3, COUNT(*) FROM attendance_absence WHERE absence_date = $1
		ON CONFLICT (closure_date) DO NOTHING
		RETURNING absences_confirmed`,
		DateOnly(c.Date), c.ClosedBy, c.ClosedAt).Scan(&c.AbsencesConfirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDayClosed
	}
	return err
}

func (r *closureRepoPG) Get(ctx context.Context, date time.Time) (*DayClosure, error) {
	var c DayClosure
	err := r.conn().QueryRow(ctx, `
		SELECT closure_date, closed_by, closed_at, absences_confirmed
		FROM day_closure WHERE closure_date = $1`, DateOnly(date)).
		Scan(&c.Date, &c.ClosedBy, &c.ClosedAt, &c.AbsencesConfirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
