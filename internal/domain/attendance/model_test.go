package attendance

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

var testDate = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func newRecord(patientID uuid.UUID, name string, m Modality, s Status) AttendanceRecord {
	return AttendanceRecord{
		ID:          uuid.New(),
		PatientID:   patientID,
		PatientName: name,
		Modality:    m,
		Status:      s,
		Date:        testDate,
	}
}

func TestStatusRank_Monotonic(t *testing.T) {
	for i := 1; i < len(Statuses); i++ {
		if StatusRank(Statuses[i]) <= StatusRank(Statuses[i-1]) {
			t.Errorf("rank of %s not greater than %s", Statuses[i], Statuses[i-1])
		}
	}
	if StatusRank("cancelled") != -1 {
		t.Error("expected -1 for unknown status")
	}
}

func TestModality_Label(t *testing.T) {
	tests := map[Modality]string{
		ModalitySpiritual: "Spiritual consultation",
		ModalityLightBath: "Light bath",
		ModalityRod:       "Rod",
		Modality("other"): "other",
	}
	for m, want := range tests {
		if got := m.Label(); got != want {
			t.Errorf("%s.Label() = %q, want %q", m, got, want)
		}
	}
}

func TestNewDayAttendanceSet_Partitions(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	records := []AttendanceRecord{
		newRecord(p1, "A", ModalityLightBath, StatusScheduled),
		newRecord(p2, "B", ModalityLightBath, StatusScheduled),
		newRecord(p1, "A", ModalityRod, StatusCheckedIn),
		newRecord(p2, "B", ModalitySpiritual, StatusCompleted),
		{ID: uuid.New(), PatientID: p1, Modality: "massage", Status: StatusScheduled},
		{ID: uuid.New(), PatientID: p1, Modality: ModalityRod, Status: "lost"},
	}
	day := NewDayAttendanceSet(testDate.Add(15*time.Hour), records)

	if day.Len() != 4 {
		t.Fatalf("expected 4 records, got %d", day.Len())
	}
	if !day.Date.Equal(testDate) {
		t.Errorf("expected date truncated to %v, got %v", testDate, day.Date)
	}
	col := day.Column(ModalityLightBath, StatusScheduled)
	if len(col) != 2 || col[0].PatientID != p1 || col[1].PatientID != p2 {
		t.Errorf("expected lightBath scheduled [A B] in input order, got %v", col)
	}
	if len(day.Column(ModalityRod, StatusCheckedIn)) != 1 {
		t.Error("expected one rod checkedIn record")
	}
}

func TestDayAttendanceSet_CloneIsDeep(t *testing.T) {
	p := uuid.New()
	now := time.Now()
	r := newRecord(p, "A", ModalityRod, StatusCheckedIn)
	r.CheckedInTime = &now
	day := NewDayAttendanceSet(testDate, []AttendanceRecord{r})

	c := day.Clone()
	c.Modalities[ModalityRod][StatusCheckedIn][0].PatientName = "changed"
	*c.Modalities[ModalityRod][StatusCheckedIn][0].CheckedInTime = now.Add(time.Hour)

	orig := day.Column(ModalityRod, StatusCheckedIn)[0]
	if orig.PatientName != "A" {
		t.Error("clone shares records with original")
	}
	if !orig.CheckedInTime.Equal(now) {
		t.Error("clone shares timestamps with original")
	}
}

func TestDayAttendanceSet_Find(t *testing.T) {
	r := newRecord(uuid.New(), "A", ModalitySpiritual, StatusOnGoing)
	day := NewDayAttendanceSet(testDate, []AttendanceRecord{r})

	got, ok := day.Find(r.ID)
	if !ok || got.ID != r.ID {
		t.Fatalf("expected to find %s", r.ID)
	}
	if _, ok := day.Find(uuid.New()); ok {
		t.Error("expected unknown id not to be found")
	}
	if _, ok := day.Find(uuid.Nil); ok {
		t.Error("expected nil id not to be found")
	}
	var nilDay *DayAttendanceSet
	if _, ok := nilDay.Find(r.ID); ok {
		t.Error("expected nil set to find nothing")
	}
}

func TestDayAttendanceSet_RecordsBoardOrder(t *testing.T) {
	p := uuid.New()
	records := []AttendanceRecord{
		newRecord(p, "A", ModalityRod, StatusScheduled),
		newRecord(p, "A", ModalityLightBath, StatusCompleted),
		newRecord(p, "A", ModalitySpiritual, StatusOnGoing),
		newRecord(p, "A", ModalityLightBath, StatusScheduled),
	}
	day := NewDayAttendanceSet(testDate, records)
	got := day.Records()
	want := []struct {
		m Modality
		s Status
	}{
		{ModalitySpiritual, StatusOnGoing},
		{ModalityLightBath, StatusScheduled},
		{ModalityLightBath, StatusCompleted},
		{ModalityRod, StatusScheduled},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Modality != w.m || got[i].Status != w.s {
			t.Errorf("record %d: got %s/%s, want %s/%s", i, got[i].Modality, got[i].Status, w.m, w.s)
		}
	}
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	d, err := ParseDate("2024-01-15", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Location() != loc || d.Day() != 15 || d.Hour() != 0 {
		t.Errorf("unexpected parse result %v", d)
	}
	if _, err := ParseDate("15/01/2024", nil); err == nil {
		t.Error("expected error for wrong layout")
	}
}

func TestSameDate_IgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC)
	if !SameDate(a, b) {
		t.Error("expected same date")
	}
	if SameDate(a, b.Add(time.Hour)) {
		t.Error("expected different dates")
	}
}
