package attendance

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotCancellable    = errors.New("only scheduled attendances can be cancelled")
)

// Selector identifies the card an operator dropped on a new column. Index is
// the position the card had when the drag started; it is only a hint and the
// card is re-resolved by patient at commit time.
type Selector struct {
	Type      CardType  `json:"type" validate:"required,oneof=spiritual lightBath rod combined"`
	Status    Status    `json:"status" validate:"required,oneof=scheduled checkedIn onGoing completed"`
	Index     int       `json:"index" validate:"gte=0"`
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
}

// StatusChange describes one record moved by Transition.
type StatusChange struct {
	AttendanceID uuid.UUID `json:"attendance_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	Modality     Modality  `json:"modality"`
	From         Status    `json:"from"`
	To           Status    `json:"to"`
	At           time.Time `json:"at"`
}

// CanTransition reports whether from -> to is the single forward step of the
// lifecycle. Nothing leaves completed.
func CanTransition(from, to Status) bool {
	rf, rt := StatusRank(from), StatusRank(to)
	return rf >= 0 && rt == rf+1
}

type location struct {
	modality Modality
	pos      int
}

// Transition moves the card described by sel to target and stamps the
// target's timestamp with now. A combined card moves every lightBath and rod
// record of the patient in sel.Status together, and so does a lightBath or
// rod selector while both of the patient's grouped records share sel.Status.
//
// When the card can no longer be found (moved or removed concurrently) the
// input set is returned with no changes and a nil error; callers refresh.
// The input set is never modified.
func Transition(day *DayAttendanceSet, sel Selector, target Status, now time.Time) (*DayAttendanceSet, []StatusChange, error) {
	if day == nil || sel.Status == target {
		return day, nil, nil
	}
	if !CanTransition(sel.Status, target) {
		return day, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sel.Status, target)
	}

	locs := resolve(day, sel)
	if len(locs) == 0 {
		return day, nil, nil
	}

	next := day.Clone()
	changes := make([]StatusChange, 0, len(locs))
	for _, loc := range locs {
		origin := next.Modalities[loc.modality][sel.Status]
		rec := origin[loc.pos]
		next.Modalities[loc.modality][sel.Status] = removeAt(origin, loc.pos)

		rec.Status = target
		stamp(&rec, target, now)
		rec.UpdatedAt = now
		next.Modalities[loc.modality][target] = append(next.Modalities[loc.modality][target], rec)

		changes = append(changes, StatusChange{
			AttendanceID: rec.ID,
			PatientID:    rec.PatientID,
			Modality:     loc.modality,
			From:         sel.Status,
			To:           target,
			At:           now,
		})
	}
	return next, changes, nil
}

// resolve finds the records addressed by sel in the current snapshot. Each
// modality column holds at most one record per patient, so at most one
// location is returned per modality.
func resolve(day *DayAttendanceSet, sel Selector) []location {
	if sel.PatientID == uuid.Nil {
		return nil
	}
	var modalities []Modality
	switch sel.Type {
	case CardCombined:
		modalities = []Modality{ModalityLightBath, ModalityRod}
	case CardLightBath, CardRod:
		// The board shows a patient with both grouped modalities in one
		// column as a single combined card, so both move together.
		if locate(day.Column(ModalityLightBath, sel.Status), -1, sel.PatientID) >= 0 &&
			locate(day.Column(ModalityRod, sel.Status), -1, sel.PatientID) >= 0 {
			modalities = []Modality{ModalityLightBath, ModalityRod}
		} else {
			modalities = []Modality{Modality(sel.Type)}
		}
	case CardSpiritual:
		modalities = []Modality{ModalitySpiritual}
	default:
		return nil
	}

	var locs []location
	for _, m := range modalities {
		if pos := locate(day.Column(m, sel.Status), sel.Index, sel.PatientID); pos >= 0 {
			locs = append(locs, location{modality: m, pos: pos})
		}
	}
	return locs
}

// locate trusts the index hint only while it still points at the patient.
func locate(col []AttendanceRecord, hint int, patientID uuid.UUID) int {
	if hint >= 0 && hint < len(col) && col[hint].PatientID == patientID {
		return hint
	}
	for i, r := range col {
		if r.PatientID == patientID {
			return i
		}
	}
	return -1
}

func stamp(r *AttendanceRecord, s Status, now time.Time) {
	t := now
	switch s {
	case StatusCheckedIn:
		r.CheckedInTime = &t
	case StatusOnGoing:
		r.OnGoingTime = &t
	case StatusCompleted:
		r.CompletedTime = &t
	}
}

func removeAt(col []AttendanceRecord, i int) []AttendanceRecord {
	out := make([]AttendanceRecord, 0, len(col)-1)
	out = append(out, col[:i]...)
	return append(out, col[i+1:]...)
}

// Remove cancels a scheduled attendance by taking it out of the day. A
// missing record is a no-op.
func Remove(day *DayAttendanceSet, id uuid.UUID) (*DayAttendanceSet, error) {
	rec, ok := day.Find(id)
	if !ok {
		return day, nil
	}
	if rec.Status != StatusScheduled {
		return day, fmt.Errorf("%w: attendance %s is %s", ErrNotCancellable, id, rec.Status)
	}
	next := day.Clone()
	col := next.Modalities[rec.Modality][StatusScheduled]
	for i, r := range col {
		if r.ID == id {
			next.Modalities[rec.Modality][StatusScheduled] = removeAt(col, i)
			break
		}
	}
	return next, nil
}
