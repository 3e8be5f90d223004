package treatment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/carecenter/carecenter/internal/domain/attendance"
	"github.com/carecenter/carecenter/internal/platform/events"
)

type Service struct {
	sessions SessionRepository
	logger   zerolog.Logger
}

func NewService(sessions SessionRepository, logger zerolog.Logger) *Service {
	return &Service{
		sessions: sessions,
		logger:   logger.With().Str("component", "treatment").Logger(),
	}
}

func (s *Service) CreateSession(ctx context.Context, ts *TreatmentSession) error {
	if ts.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if !ts.Modality.Valid() {
		return fmt.Errorf("invalid modality: %s", ts.Modality)
	}
	if ts.PlannedSessions <= 0 {
		return fmt.Errorf("planned_sessions must be positive")
	}
	if ts.CompletedSessions < 0 || ts.CompletedSessions > ts.PlannedSessions {
		return fmt.Errorf("completed_sessions must be between 0 and planned_sessions")
	}
	if ts.StartDate.IsZero() {
		return fmt.Errorf("start_date is required")
	}
	return s.sessions.Create(ctx, ts)
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*TreatmentSession, error) {
	return s.sessions.GetByID(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]TreatmentSession, int, error) {
	return s.sessions.SearchByPatient(ctx, patientID, limit, offset)
}

// load fetches the patient's plans and session events concurrently.
func (s *Service) load(ctx context.Context, patientID uuid.UUID) ([]TreatmentSession, []SessionEvent, error) {
	var (
		sessions []TreatmentSession
		evts     []SessionEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = s.sessions.ListByPatient(gctx, patientID)
		if err != nil {
			return fmt.Errorf("fetch sessions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		evts, err = s.sessions.ListEventsByPatient(gctx, patientID)
		if err != nil {
			return fmt.Errorf("fetch session events: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sessions, evts, nil
}

// Progress computes per-plan progress, optionally for one modality.
func (s *Service) Progress(ctx context.Context, patientID uuid.UUID, modality *attendance.Modality) ([]TreatmentProgress, error) {
	sessions, evts, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return ComputeSessionProgress(sessions, evts, modality), nil
}

func (s *Service) Statistics(ctx context.Context, patientID uuid.UUID) (TreatmentStatistics, error) {
	progress, err := s.Progress(ctx, patientID, nil)
	if err != nil {
		return TreatmentStatistics{}, err
	}
	return ComputeStatistics(progress), nil
}

func (s *Service) NextSession(ctx context.Context, patientID uuid.UUID) (NextSessionInfo, bool, error) {
	progress, err := s.Progress(ctx, patientID, nil)
	if err != nil {
		return NextSessionInfo{}, false, err
	}
	info, ok := NextSession(progress)
	return info, ok, nil
}

// HandleEvent counts a completed attendance against the patient's active
// plan for that modality. Other events, and completions without a plan, are
// ignored.
func (s *Service) HandleEvent(ctx context.Context, ev events.Event) error {
	if ev.Type != events.TypeAttendanceStatusChanged {
		return nil
	}
	var ch attendance.StatusChange
	if err := json.Unmarshal(ev.Data, &ch); err != nil {
		return fmt.Errorf("decode status change: %w", err)
	}
	if ch.To != attendance.StatusCompleted {
		return nil
	}

	plan, err := s.sessions.FindActive(ctx, ch.PatientID, ch.Modality)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find active plan: %w", err)
	}

	at := ch.At
	attendanceID := ch.AttendanceID
	e := &SessionEvent{
		TreatmentSessionID: plan.ID,
		PatientID:          ch.PatientID,
		AttendanceID:       &attendanceID,
		ScheduledDate:      attendance.DateOnly(at),
		EndTime:            &at,
	}
	if err := s.sessions.RecordCompletion(ctx, e); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	s.logger.Info().
		Str("patient_id", ch.PatientID.String()).
		Str("session_id", plan.ID.String()).
		Str("modality", string(ch.Modality)).
		Msg("session completed")
	return nil
}

// Listener adapts HandleEvent for the event fan-out.
func (s *Service) Listener() events.Publisher {
	return events.PublisherFunc(s.HandleEvent)
}
