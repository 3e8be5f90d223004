package attendance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-date format used on the wire and in URLs.
const DateLayout = "2006-01-02"

// Modality is a treatment type offered by the center.
type Modality string

const (
	ModalitySpiritual Modality = "spiritual"
	ModalityLightBath Modality = "lightBath"
	ModalityRod       Modality = "rod"
)

// Modalities lists every modality in board order.
var Modalities = []Modality{ModalitySpiritual, ModalityLightBath, ModalityRod}

func (m Modality) Valid() bool {
	switch m {
	case ModalitySpiritual, ModalityLightBath, ModalityRod:
		return true
	}
	return false
}

// Label returns the operator-facing name of the modality.
func (m Modality) Label() string {
	switch m {
	case ModalitySpiritual:
		return "Spiritual consultation"
	case ModalityLightBath:
		return "Light bath"
	case ModalityRod:
		return "Rod"
	}
	return string(m)
}

// Status is the lifecycle state of one attendance.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCheckedIn Status = "checkedIn"
	StatusOnGoing   Status = "onGoing"
	StatusCompleted Status = "completed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusScheduled, StatusCheckedIn, StatusOnGoing, StatusCompleted}

// StatusRank returns the position of s in the lifecycle, or -1 for an
// unknown status.
func StatusRank(s Status) int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool { return StatusRank(s) >= 0 }

// CardType identifies a draggable unit on the operator board: a single
// modality record or a combined lightBath+rod unit.
type CardType string

const (
	CardSpiritual CardType = CardType(ModalitySpiritual)
	CardLightBath CardType = CardType(ModalityLightBath)
	CardRod       CardType = CardType(ModalityRod)
	CardCombined  CardType = "combined"
)

func (c CardType) Valid() bool {
	switch c {
	case CardSpiritual, CardLightBath, CardRod, CardCombined:
		return true
	}
	return false
}

// AttendanceRecord is one scheduled visit of one patient, for one modality,
// on one calendar day.
type AttendanceRecord struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientName   string     `db:"patient_name" json:"patient_name"`
	Priority      int        `db:"priority" json:"priority"`
	Modality      Modality   `db:"modality" json:"modality"`
	Status        Status     `db:"status" json:"status"`
	Date          time.Time  `db:"attendance_date" json:"date"`
	CheckedInTime *time.Time `db:"checked_in_time" json:"checked_in_time,omitempty"`
	OnGoingTime   *time.Time `db:"on_going_time" json:"on_going_time,omitempty"`
	CompletedTime *time.Time `db:"completed_time" json:"completed_time,omitempty"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// clone returns a copy that shares no pointers with r.
func (r AttendanceRecord) clone() AttendanceRecord {
	c := r
	c.CheckedInTime = copyTime(r.CheckedInTime)
	c.OnGoingTime = copyTime(r.OnGoingTime)
	c.CompletedTime = copyTime(r.CompletedTime)
	if r.Notes != nil {
		n := *r.Notes
		c.Notes = &n
	}
	return c
}

// TimestampFor returns the timestamp stamped when the record entered s.
func (r AttendanceRecord) TimestampFor(s Status) *time.Time {
	switch s {
	case StatusCheckedIn:
		return r.CheckedInTime
	case StatusOnGoing:
		return r.OnGoingTime
	case StatusCompleted:
		return r.CompletedTime
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StatusColumns holds one modality's records partitioned by status.
type StatusColumns map[Status][]AttendanceRecord

// DayAttendanceSet is a snapshot of every attendance of one day. Engine
// functions treat it as immutable and return new sets.
type DayAttendanceSet struct {
	Date       time.Time                  `json:"date"`
	Modalities map[Modality]StatusColumns `json:"modalities"`
}

// NewDayAttendanceSet partitions records by modality and status, keeping the
// input order inside every column. Records with an unknown modality or status
// are skipped.
func NewDayAttendanceSet(date time.Time, records []AttendanceRecord) *DayAttendanceSet {
	d := emptyDay(date)
	for _, r := range records {
		if !r.Modality.Valid() || !r.Status.Valid() {
			continue
		}
		d.Modalities[r.Modality][r.Status] = append(d.Modalities[r.Modality][r.Status], r.clone())
	}
	return d
}

func emptyDay(date time.Time) *DayAttendanceSet {
	d := &DayAttendanceSet{
		Date:       DateOnly(date),
		Modalities: make(map[Modality]StatusColumns, len(Modalities)),
	}
	for _, m := range Modalities {
		d.Modalities[m] = make(StatusColumns, len(Statuses))
	}
	return d
}

// Column returns the records of modality m in status s. The slice must not
// be modified.
func (d *DayAttendanceSet) Column(m Modality, s Status) []AttendanceRecord {
	if d == nil {
		return nil
	}
	return d.Modalities[m][s]
}

// Records flattens the set in board order: modality, then status, then
// column position.
func (d *DayAttendanceSet) Records() []AttendanceRecord {
	return d.collect()
}

// collect flattens the given status columns (all when none are given) in
// board order.
func (d *DayAttendanceSet) collect(statuses ...Status) []AttendanceRecord {
	if d == nil {
		return nil
	}
	if len(statuses) == 0 {
		statuses = Statuses
	}
	var out []AttendanceRecord
	for _, m := range Modalities {
		for _, s := range statuses {
			for _, r := range d.Modalities[m][s] {
				out = append(out, r.clone())
			}
		}
	}
	return out
}

// Len returns the number of records in the set.
func (d *DayAttendanceSet) Len() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, cols := range d.Modalities {
		for _, col := range cols {
			n += len(col)
		}
	}
	return n
}

// Find looks up a record by id.
func (d *DayAttendanceSet) Find(id uuid.UUID) (AttendanceRecord, bool) {
	if d == nil || id == uuid.Nil {
		return AttendanceRecord{}, false
	}
	for _, m := range Modalities {
		for _, s := range Statuses {
			for _, r := range d.Modalities[m][s] {
				if r.ID == id {
					return r, true
				}
			}
		}
	}
	return AttendanceRecord{}, false
}

// Clone returns a deep copy of the set.
func (d *DayAttendanceSet) Clone() *DayAttendanceSet {
	if d == nil {
		return nil
	}
	c := emptyDay(d.Date)
	for m, cols := range d.Modalities {
		if _, ok := c.Modalities[m]; !ok {
			c.Modalities[m] = make(StatusColumns, len(cols))
		}
		for s, col := range cols {
			if col == nil {
				continue
			}
			out := make([]AttendanceRecord, len(col))
			for i, r := range col {
				out[i] = r.clone()
			}
			c.Modalities[m][s] = out
		}
	}
	return c
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ParseDate parses a YYYY-MM-DD date in loc. A nil loc means UTC.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected %s", s, DateLayout)
	}
	return t, nil
}
