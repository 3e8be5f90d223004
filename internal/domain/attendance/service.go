package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/carecenter/internal/platform/events"
)

var (
	ErrNotScheduled = errors.New("attendance is not scheduled on this day")
	ErrInvalidInput = errors.New("invalid attendance")
)

// DayLocker serializes day closures across instances.
type DayLocker interface {
	// TryLock returns a token identifying this acquisition; Unlock only
	// releases the key while it still holds that token.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Options tune the service. Zero values fall back to defaults.
type Options struct {
	Location        *time.Location
	AgendaWindow    int
	DuplicatePolicy DuplicatePolicy
	ClosureLockTTL  time.Duration
	Now             func() time.Time
}

// Board is the operator view of one day.
type Board struct {
	Date    time.Time         `json:"date"`
	Day     *DayAttendanceSet `json:"day"`
	Columns []BoardColumn     `json:"columns"`
	Closed  *DayClosure       `json:"closed,omitempty"`
}

type Service struct {
	attendances AttendanceRepository
	closures    ClosureRepository
	locker      DayLocker
	publisher   events.Publisher
	logger      zerolog.Logger
	opts        Options
}

func NewService(attendances AttendanceRepository, closures ClosureRepository, locker DayLocker, publisher events.Publisher, logger zerolog.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.AgendaWindow <= 0 {
		opts.AgendaWindow = DefaultAgendaWindow
	}
	if !opts.DuplicatePolicy.Valid() {
		opts.DuplicatePolicy = DuplicateAllDates
	}
	if opts.ClosureLockTTL <= 0 {
		opts.ClosureLockTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{
		attendances: attendances,
		closures:    closures,
		locker:      locker,
		publisher:   publisher,
		logger:      logger.With().Str("component", "attendance").Logger(),
		opts:        opts,
	}
}

func (s *Service) now() time.Time { return s.opts.Now().In(s.opts.Location) }

// Today returns the current date in the service's timezone.
func (s *Service) Today() time.Time { return DateOnly(s.now()) }

// Location returns the timezone dates are interpreted in.
func (s *Service) Location() *time.Location { return s.opts.Location }

// LoadDay fetches a fresh snapshot of one day.
func (s *Service) LoadDay(ctx context.Context, date time.Time) (*DayAttendanceSet, error) {
	date = DateOnly(date.In(s.opts.Location))
	records, err := s.attendances.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("fetch day attendances: %w", err)
	}
	return NewDayAttendanceSet(date, records), nil
}

// Board loads a day and builds its grouped columns.
func (s *Service) Board(ctx context.Context, date time.Time) (*Board, error) {
	day, err := s.LoadDay(ctx, date)
	if err != nil {
		return nil, err
	}
	closed, err := s.closure(ctx, day.Date)
	if err != nil {
		return nil, err
	}
	b := &Board{Date: day.Date, Day: day, Closed: closed}
	for _, st := range Statuses {
		col := day.ColumnView(st)
		if col.Dropped > 0 {
			s.logger.Warn().
				Str("date", day.Date.Format(DateLayout)).
				Str("status", string(st)).
				Int("dropped", col.Dropped).
				Msg("attendances without patient skipped from grouping")
		}
		b.Columns = append(b.Columns, col)
	}
	return b, nil
}

func (s *Service) closure(ctx context.Context, date time.Time) (*DayClosure, error) {
	c, err := s.closures.Get(ctx, date)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch day closure: %w", err)
	}
	return c, nil
}

func (s *Service) ensureOpen(ctx context.Context, date time.Time) error {
	c, err := s.closure(ctx, date)
	if err != nil {
		return err
	}
	if c != nil {
		return fmt.Errorf("%w: %s", ErrDayClosed, date.Format(DateLayout))
	}
	return nil
}

// Schedule books a new attendance in status scheduled.
func (s *Service) Schedule(ctx context.Context, a *AttendanceRecord) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if !a.Modality.Valid() {
		return fmt.Errorf("%w: unknown modality %q", ErrInvalidInput, a.Modality)
	}
	if a.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	a.Date = DateOnly(a.Date.In(s.opts.Location))
	today := s.Today()
	if a.Date.Before(today) {
		return fmt.Errorf("%w: cannot schedule in the past", ErrInvalidInput)
	}
	if err := s.ensureOpen(ctx, a.Date); err != nil {
		return err
	}

	existing, err := s.attendances.ListByDate(ctx, a.Date)
	if err != nil {
		return fmt.Errorf("fetch day attendances: %w", err)
	}
	if err := CheckDuplicate(existing, *a, today, s.opts.DuplicatePolicy); err != nil {
		return err
	}

	a.Status = StatusScheduled
	a.CheckedInTime, a.OnGoingTime, a.CompletedTime = nil, nil, nil
	if err := s.attendances.Create(ctx, a); err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	s.publish(ctx, events.TypeAttendanceScheduled, a.Date, a)
	return nil
}

// Transition re-reads the day, applies the move and persists it. When the
// card cannot be resolved, or a concurrent writer got there first, the
// current snapshot is returned unchanged with a nil error.
func (s *Service) Transition(ctx context.Context, date time.Time, sel Selector, target Status) (*DayAttendanceSet, error) {
	day, err := s.LoadDay(ctx, date)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOpen(ctx, day.Date); err != nil {
		return day, err
	}

	next, changes, err := Transition(day, sel, target, s.now())
	if err != nil {
		return day, err
	}
	if len(changes) == 0 {
		s.logger.Debug().
			Str("patient_id", sel.PatientID.String()).
			Str("type", string(sel.Type)).
			Str("status", string(sel.Status)).
			Msg("transition target not found, ignoring")
		return day, nil
	}

	if err := s.attendances.ApplyStatusChanges(ctx, changes); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			s.logger.Info().Err(err).Msg("transition lost to a concurrent update, ignoring")
			return day, nil
		}
		return day, fmt.Errorf("persist status change: %w", err)
	}

	for _, ch := range changes {
		s.publish(ctx, events.TypeAttendanceStatusChanged, day.Date, ch)
	}
	return next, nil
}

// Cancel removes a scheduled attendance.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	rec, err := s.attendances.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ensureOpen(ctx, rec.Date); err != nil {
		return err
	}
	day := NewDayAttendanceSet(rec.Date, []AttendanceRecord{*rec})
	if _, err := Remove(day, id); err != nil {
		return err
	}
	if err := s.attendances.Delete(ctx, id); err != nil {
		return fmt.Errorf("cancel attendance: %w", err)
	}
	s.publish(ctx, events.TypeAttendanceCancelled, rec.Date, rec)
	return nil
}

// EndOfDay classifies the current state of a day.
func (s *Service) EndOfDay(ctx context.Context, date time.Time) (EndOfDayResult, error) {
	day, err := s.LoadDay(ctx, date)
	if err != nil {
		return CheckEndOfDayStatus(nil), err
	}
	return CheckEndOfDayStatus(day), nil
}

// ConfirmAbsences marks the given scheduled attendances as absences and
// returns the re-evaluated classification.
func (s *Service) ConfirmAbsences(ctx context.Context, date time.Time, ids []uuid.UUID, confirmedBy string) (EndOfDayResult, error) {
	day, err := s.LoadDay(ctx, date)
	if err != nil {
		return CheckEndOfDayStatus(nil), err
	}
	if err := s.ensureOpen(ctx, day.Date); err != nil {
		return CheckEndOfDayStatus(day), err
	}

	now := s.now()
	absences := make([]Absence, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		rec, ok := day.Find(id)
		if !ok || rec.Status != StatusScheduled {
			return CheckEndOfDayStatus(day), fmt.Errorf("%w: %s", ErrNotScheduled, id)
		}
		absences = append(absences, Absence{
			AttendanceID: rec.ID,
			PatientID:    rec.PatientID,
			Modality:     rec.Modality,
			Date:         day.Date,
			ConfirmedBy:  confirmedBy,
			ConfirmedAt:  now,
		})
	}
	if err := s.attendances.ConfirmAbsences(ctx, absences); err != nil {
		return CheckEndOfDayStatus(day), fmt.Errorf("confirm absences: %w", err)
	}
	s.publish(ctx, events.TypeAttendanceAbsencesMarked, day.Date, absences)
	return s.EndOfDay(ctx, day.Date)
}

// CloseDay finalizes a day that has already started. It holds the closure lock for the date while it
// re-reads the day, and only persists when the classification is completed.
func (s *Service) CloseDay(ctx context.Context, date time.Time, closedBy string) (*DayClosure, error) {
	date = DateOnly(date.In(s.opts.Location))
	if date.After(s.Today()) {
		return nil, fmt.Errorf("%w: %s", ErrFutureDay, date.Format(DateLayout))
	}
	key := "closure:" + date.Format(DateLayout)

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, key, s.opts.ClosureLockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrClosureInProgress
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("failed to release closure lock")
			}
		}()
	}

	if err := s.ensureOpen(ctx, date); err != nil {
		return nil, err
	}
	result, err := s.EndOfDay(ctx, date)
	if err != nil {
		return nil, err
	}
	if !result.Closable() {
		return nil, &NotClosableError{Result: result}
	}

	c := &DayClosure{Date: date, ClosedBy: closedBy, ClosedAt: s.now()}
	if err := s.closures.Close(ctx, c); err != nil {
		if errors.Is(err, ErrDayClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("persist day closure: %w", err)
	}
	s.logger.Info().Str("date", date.Format(DateLayout)).Str("closed_by", closedBy).Msg("day closed")
	s.publish(ctx, events.TypeDayClosed, date, c)
	return c, nil
}

// Agenda returns the upcoming scheduled dates from selected on. A zero
// selected date means today.
func (s *Service) Agenda(ctx context.Context, selected time.Time, showAll bool) ([]AgendaEntry, error) {
	now := s.now()
	from := selected
	if from.IsZero() {
		from = now
	}
	records, err := s.attendances.ListScheduledFrom(ctx, DateOnly(from))
	if err != nil {
		return nil, fmt.Errorf("fetch agenda: %w", err)
	}
	return FilterAgendaWindowN(BuildAgenda(records), selected, showAll, s.opts.AgendaWindow, now), nil
}

// publish never fails the caller; delivery problems are logged.
func (s *Service) publish(ctx context.Context, eventType string, date time.Time, data interface{}) {
	ev, err := events.New(eventType, events.DayTopic(date), data)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
