package treatment

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/carecenter/carecenter/internal/domain/attendance"
)

// SessionIntervalDays is the assumed spacing between two visits of a plan.
const SessionIntervalDays = 7

// ComputeSessionProgress derives one TreatmentProgress per plan, in input
// order. When modality is non-nil only plans of that modality are included.
// Invalid plan data is clamped rather than rejected.
func ComputeSessionProgress(sessions []TreatmentSession, events []SessionEvent, modality *attendance.Modality) []TreatmentProgress {
	lastDone := lastCompletedBySession(events)

	out := make([]TreatmentProgress, 0, len(sessions))
	for _, s := range sessions {
		if modality != nil && s.Modality != *modality {
			continue
		}
		planned, completed := s.counts()

		p := TreatmentProgress{
			SessionID:          s.ID,
			PatientID:          s.PatientID,
			Modality:           s.Modality,
			PlannedSessions:    planned,
			CompletedSessions:  completed,
			CurrentSession:     s.CurrentSession(),
			ProgressPercentage: int(math.Round(100 * float64(completed) / float64(planned))),
			StartDate:          s.StartDate,
		}
		switch {
		case completed == planned:
			p.Status = ProgressCompleted
		case completed == 0:
			p.Status = ProgressNotStarted
		default:
			p.Status = ProgressInProgress
		}
		if p.Status != ProgressCompleted {
			next := s.StartDate.AddDate(0, 0, SessionIntervalDays*completed)
			est := s.StartDate.AddDate(0, 0, SessionIntervalDays*(planned-1))
			p.NextSessionDate = &next
			p.EstimatedCompletionDate = &est
		}
		if t, ok := lastDone[s.ID]; ok {
			last := t
			p.LastCompletedDate = &last
		}
		out = append(out, p)
	}
	return out
}

func lastCompletedBySession(events []SessionEvent) map[uuid.UUID]time.Time {
	last := make(map[uuid.UUID]time.Time)
	for _, e := range events {
		if e.Status != EventCompleted {
			continue
		}
		at := e.occurredAt()
		if cur, ok := last[e.TreatmentSessionID]; !ok || at.After(cur) {
			last[e.TreatmentSessionID] = at
		}
	}
	return last
}

// ComputeStatistics aggregates progress across plans. OverallProgress is
// the unweighted mean of the plan percentages, 0 for no plans.
func ComputeStatistics(progress []TreatmentProgress) TreatmentStatistics {
	st := TreatmentStatistics{TotalPlans: len(progress)}
	if len(progress) == 0 {
		return st
	}
	sum := 0
	for _, p := range progress {
		if p.Status == ProgressCompleted {
			st.CompletedPlans++
		} else {
			st.ActivePlans++
		}
		st.RemainingSessions += p.PlannedSessions - p.CompletedSessions
		sum += p.ProgressPercentage
	}
	st.OverallProgress = int(math.Round(float64(sum) / float64(len(progress))))
	return st
}

// NextSession returns the earliest upcoming visit across unfinished plans.
// Ties keep the first plan in input order.
func NextSession(progress []TreatmentProgress) (NextSessionInfo, bool) {
	var best *TreatmentProgress
	for i := range progress {
		p := &progress[i]
		if p.Status == ProgressCompleted || p.NextSessionDate == nil {
			continue
		}
		if best == nil || p.NextSessionDate.Before(*best.NextSessionDate) {
			best = p
		}
	}
	if best == nil {
		return NextSessionInfo{}, false
	}
	return NextSessionInfo{
		SessionID:     best.SessionID,
		Modality:      best.Modality,
		ModalityLabel: best.Modality.Label(),
		Date:          *best.NextSessionDate,
	}, true
}
