package treatment

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carecenter/carecenter/internal/domain/attendance"
)

func TestComputeSessionProgress_InProgress(t *testing.T) {
	s := newPlan(attendance.ModalityLightBath, 5, 2)
	got := ComputeSessionProgress([]TreatmentSession{s}, nil, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 progress, got %d", len(got))
	}
	p := got[0]
	if p.CurrentSession != 3 {
		t.Errorf("expected current session 3, got %d", p.CurrentSession)
	}
	if p.ProgressPercentage != 40 {
		t.Errorf("expected 40%%, got %d", p.ProgressPercentage)
	}
	if p.Status != ProgressInProgress {
		t.Errorf("expected in_progress, got %s", p.Status)
	}
	if p.NextSessionDate == nil || !p.NextSessionDate.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected next session 2024-01-15, got %v", p.NextSessionDate)
	}
	if p.EstimatedCompletionDate == nil || !p.EstimatedCompletionDate.Equal(time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected estimated completion 2024-01-29, got %v", p.EstimatedCompletionDate)
	}
	if p.LastCompletedDate != nil {
		t.Error("expected no last completed date without events")
	}
}

func TestComputeSessionProgress_Statuses(t *testing.T) {
	notStarted := newPlan(attendance.ModalityRod, 4, 0)
	done := newPlan(attendance.ModalityRod, 4, 4)
	got := ComputeSessionProgress([]TreatmentSession{notStarted, done}, nil, nil)

	if got[0].Status != ProgressNotStarted || got[0].ProgressPercentage != 0 {
		t.Errorf("unexpected not-started progress: %+v", got[0])
	}
	if got[0].NextSessionDate == nil || !got[0].NextSessionDate.Equal(testStart) {
		t.Errorf("expected next session on start date, got %v", got[0].NextSessionDate)
	}
	if got[1].Status != ProgressCompleted || got[1].ProgressPercentage != 100 {
		t.Errorf("unexpected completed progress: %+v", got[1])
	}
	if got[1].NextSessionDate != nil || got[1].EstimatedCompletionDate != nil {
		t.Error("completed plan must not carry upcoming dates")
	}
}

func TestComputeSessionProgress_ClampsInvalidData(t *testing.T) {
	zero := newPlan(attendance.ModalityRod, 0, 0)
	over := newPlan(attendance.ModalityRod, 3, 8)
	got := ComputeSessionProgress([]TreatmentSession{zero, over}, nil, nil)

	if got[0].PlannedSessions != 1 || got[0].ProgressPercentage != 0 {
		t.Errorf("expected planned clamped to 1, got %+v", got[0])
	}
	if got[1].CompletedSessions != 3 || got[1].ProgressPercentage != 100 || got[1].Status != ProgressCompleted {
		t.Errorf("expected completed clamped to planned, got %+v", got[1])
	}
}

func TestComputeSessionProgress_Rounding(t *testing.T) {
	got := ComputeSessionProgress([]TreatmentSession{newPlan(attendance.ModalityRod, 3, 2)}, nil, nil)
	if got[0].ProgressPercentage != 67 {
		t.Errorf("expected 67%%, got %d", got[0].ProgressPercentage)
	}
}

func TestComputeSessionProgress_ModalityFilter(t *testing.T) {
	rod := newPlan(attendance.ModalityRod, 4, 1)
	light := newPlan(attendance.ModalityLightBath, 4, 1)
	m := attendance.ModalityLightBath
	got := ComputeSessionProgress([]TreatmentSession{rod, light}, nil, &m)
	if len(got) != 1 || got[0].SessionID != light.ID {
		t.Fatalf("expected only the light bath plan, got %+v", got)
	}
}

func TestComputeSessionProgress_LastCompletedDate(t *testing.T) {
	s := newPlan(attendance.ModalityRod, 5, 2)
	other := uuid.New()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	secondEnd := second.Add(11 * time.Hour)
	later := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)

	evts := []SessionEvent{
		{TreatmentSessionID: s.ID, Status: EventCompleted, ScheduledDate: second, EndTime: &secondEnd},
		{TreatmentSessionID: s.ID, Status: EventCompleted, ScheduledDate: first},
		{TreatmentSessionID: s.ID, Status: EventMissed, ScheduledDate: later},
		{TreatmentSessionID: other, Status: EventCompleted, ScheduledDate: later},
	}
	got := ComputeSessionProgress([]TreatmentSession{s}, evts, nil)
	if got[0].LastCompletedDate == nil || !got[0].LastCompletedDate.Equal(secondEnd) {
		t.Errorf("expected last completed %v, got %v", secondEnd, got[0].LastCompletedDate)
	}
}

func TestComputeStatistics(t *testing.T) {
	progress := ComputeSessionProgress([]TreatmentSession{
		newPlan(attendance.ModalityRod, 5, 2),
		newPlan(attendance.ModalityLightBath, 4, 4),
		newPlan(attendance.ModalityRod, 3, 0),
	}, nil, nil)

	st := ComputeStatistics(progress)
	if st.TotalPlans != 3 || st.ActivePlans != 2 || st.CompletedPlans != 1 {
		t.Errorf("unexpected plan counts: %+v", st)
	}
	if st.RemainingSessions != 6 {
		t.Errorf("expected 6 remaining sessions, got %d", st.RemainingSessions)
	}
	// (40 + 100 + 0) / 3
	if st.OverallProgress != 47 {
		t.Errorf("expected overall 47, got %d", st.OverallProgress)
	}
}

func TestComputeStatistics_Empty(t *testing.T) {
	if st := ComputeStatistics(nil); st != (TreatmentStatistics{}) {
		t.Errorf("expected zero statistics, got %+v", st)
	}
}

func TestNextSession(t *testing.T) {
	a := newPlan(attendance.ModalityRod, 5, 2)       // next 2024-01-15
	b := newPlan(attendance.ModalityLightBath, 5, 1) // next 2024-01-08
	c := newPlan(attendance.ModalityRod, 5, 1)       // next 2024-01-08, later in order
	done := newPlan(attendance.ModalityRod, 2, 2)

	info, ok := NextSession(ComputeSessionProgress([]TreatmentSession{done, a, b, c}, nil, nil))
	if !ok {
		t.Fatal("expected a next session")
	}
	if info.SessionID != b.ID {
		t.Errorf("expected earliest plan first in order, got %s", info.SessionID)
	}
	if info.ModalityLabel != attendance.ModalityLightBath.Label() {
		t.Errorf("unexpected label %q", info.ModalityLabel)
	}
	if !info.Date.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", info.Date)
	}
}

func TestNextSession_NoneWhenAllCompleted(t *testing.T) {
	progress := ComputeSessionProgress([]TreatmentSession{newPlan(attendance.ModalityRod, 2, 2)}, nil, nil)
	if _, ok := NextSession(progress); ok {
		t.Error("expected no next session")
	}
	if _, ok := NextSession(nil); ok {
		t.Error("expected no next session for no plans")
	}
}
