package attendance

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultAgendaWindow is the number of distinct upcoming dates shown when the
// operator has not asked for every future date.
const DefaultAgendaWindow = 5

// AgendaPatient is one patient line under an agenda date.
type AgendaPatient struct {
	AttendanceID uuid.UUID `json:"attendance_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	Priority     int       `json:"priority"`
	Modality     Modality  `json:"modality"`
}

// AgendaEntry groups the patients scheduled for one date.
type AgendaEntry struct {
	Date     time.Time       `json:"date"`
	Patients []AgendaPatient `json:"patients"`
}

// BuildAgenda groups scheduled records into one entry per date, dates
// ascending, patients in input order.
func BuildAgenda(records []AttendanceRecord) []AgendaEntry {
	idx := make(map[time.Time]int)
	var entries []AgendaEntry
	for _, r := range records {
		if r.Status != StatusScheduled {
			continue
		}
		d := DateOnly(r.Date)
		i, ok := idx[d]
		if !ok {
			i = len(entries)
			idx[d] = i
			entries = append(entries, AgendaEntry{Date: d})
		}
		entries[i].Patients = append(entries[i].Patients, AgendaPatient{
			AttendanceID: r.ID,
			PatientID:    r.PatientID,
			PatientName:  r.PatientName,
			Priority:     r.Priority,
			Modality:     r.Modality,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date.Before(entries[j].Date) })
	return entries
}

// FilterAgendaWindow keeps the entries dated on or after selected. Unless
// showAll is set only the next DefaultAgendaWindow distinct dates survive. A
// zero selected date means today according to now.
func FilterAgendaWindow(entries []AgendaEntry, selected time.Time, showAll bool, now time.Time) []AgendaEntry {
	return FilterAgendaWindowN(entries, selected, showAll, DefaultAgendaWindow, now)
}

// FilterAgendaWindowN is FilterAgendaWindow with an explicit window size.
// Entries are only ever dropped whole, and kept entries retain their input
// order and their patient order.
func FilterAgendaWindowN(entries []AgendaEntry, selected time.Time, showAll bool, window int, now time.Time) []AgendaEntry {
	if selected.IsZero() {
		selected = now
	}
	from := dateKey(selected)

	var dates []int
	seen := make(map[int]bool)
	for _, e := range entries {
		k := dateKey(e.Date)
		if k < from || seen[k] {
			continue
		}
		seen[k] = true
		dates = append(dates, k)
	}

	if !showAll {
		sort.Ints(dates)
		if window < 0 {
			window = 0
		}
		if len(dates) > window {
			dates = dates[:window]
		}
		seen = make(map[int]bool, len(dates))
		for _, k := range dates {
			seen[k] = true
		}
	}

	out := make([]AgendaEntry, 0, len(dates))
	for _, e := range entries {
		if seen[dateKey(e.Date)] {
			out = append(out, e)
		}
	}
	return out
}

// dateKey encodes the calendar date of t as yyyymmdd so dates compare
// without regard to time of day.
func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
