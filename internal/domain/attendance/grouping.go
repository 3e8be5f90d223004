package attendance

import "github.com/google/uuid"

// GroupedPatientUnit merges one patient's lightBath and rod records of a day
// into a single board card.
type GroupedPatientUnit struct {
	PatientID      uuid.UUID          `json:"patient_id"`
	PatientName    string             `json:"patient_name"`
	Priority       int                `json:"priority"`
	TreatmentTypes []Modality         `json:"treatment_types"`
	CombinedType   CardType           `json:"combined_type"`
	OriginalType   Modality           `json:"original_type"`
	Attendances    []AttendanceRecord `json:"attendances"`
}

// PatientGroups is the ordered result of GroupPatients. Units keep the order
// in which their patient first appeared.
type PatientGroups struct {
	order []uuid.UUID
	units map[uuid.UUID]*GroupedPatientUnit

	// Dropped counts input records that had no patient and were skipped.
	Dropped int
}

// Units returns the grouped units in first-appearance order.
func (g PatientGroups) Units() []GroupedPatientUnit {
	out := make([]GroupedPatientUnit, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.units[id])
	}
	return out
}

// Get returns the unit of one patient.
func (g PatientGroups) Get(patientID uuid.UUID) (GroupedPatientUnit, bool) {
	u, ok := g.units[patientID]
	if !ok {
		return GroupedPatientUnit{}, false
	}
	return *u, true
}

func (g PatientGroups) Len() int { return len(g.order) }

// GroupPatients folds lightBath records first and rod records second, so a
// patient present in both always ends up with TreatmentTypes
// [lightBath, rod] and OriginalType lightBath. Spiritual records are never
// grouped.
func GroupPatients(lightBath, rod []AttendanceRecord) PatientGroups {
	g := PatientGroups{units: make(map[uuid.UUID]*GroupedPatientUnit)}
	g.fold(lightBath, ModalityLightBath)
	g.fold(rod, ModalityRod)
	return g
}

func (g *PatientGroups) fold(records []AttendanceRecord, m Modality) {
	for _, r := range records {
		if r.PatientID == uuid.Nil {
			g.Dropped++
			continue
		}
		u, ok := g.units[r.PatientID]
		if !ok {
			u = &GroupedPatientUnit{
				PatientID:    r.PatientID,
				PatientName:  r.PatientName,
				Priority:     r.Priority,
				OriginalType: m,
			}
			g.units[r.PatientID] = u
			g.order = append(g.order, r.PatientID)
		}
		if !containsModality(u.TreatmentTypes, m) {
			u.TreatmentTypes = append(u.TreatmentTypes, m)
		}
		u.Attendances = append(u.Attendances, r.clone())
		u.CombinedType = ClassifyCombined(u.TreatmentTypes)
	}
}

// ClassifyCombined returns CardCombined when both lightBath and rod are
// present, otherwise whichever of the two is present. Spiritual does not take
// part; an input with neither yields CardLightBath.
func ClassifyCombined(types []Modality) CardType {
	hasLight := containsModality(types, ModalityLightBath)
	hasRod := containsModality(types, ModalityRod)
	switch {
	case hasLight && hasRod:
		return CardCombined
	case hasRod:
		return CardRod
	default:
		return CardLightBath
	}
}

func containsModality(types []Modality, m Modality) bool {
	for _, t := range types {
		if t == m {
			return true
		}
	}
	return false
}

// BoardColumn is the operator view of one status column: spiritual records
// stay single, lightBath and rod records are grouped per patient.
type BoardColumn struct {
	Status    Status               `json:"status"`
	Spiritual []AttendanceRecord   `json:"spiritual"`
	Grouped   []GroupedPatientUnit `json:"grouped"`
	Dropped   int                  `json:"-"`
}

// ColumnView builds the board column for status s.
func (d *DayAttendanceSet) ColumnView(s Status) BoardColumn {
	groups := GroupPatients(d.Column(ModalityLightBath, s), d.Column(ModalityRod, s))
	spiritual := make([]AttendanceRecord, 0, len(d.Column(ModalitySpiritual, s)))
	for _, r := range d.Column(ModalitySpiritual, s) {
		spiritual = append(spiritual, r.clone())
	}
	return BoardColumn{
		Status:    s,
		Spiritual: spiritual,
		Grouped:   groups.Units(),
		Dropped:   groups.Dropped,
	}
}
