package clinical

import (
	"errors"
	"time"

	"github.com/sanitas/hce/pkg/civil"
)

var (
	ErrNotFound        = errors.New("clinical record not found")
	ErrPatientNotFound = errors.New("patient not found")
)

// Base holds the columns shared by every clinical record.
type Base struct {
	ID           int64     `json:"id"`
	PatientID    int64     `json:"paciente_id"`
	RegisteredAt time.Time `json:"fecha_registro"`
}

func (b *Base) base() *Base { return b }

// Record is one row of a clinical collection. The concrete types below are
// the only implementations.
type Record interface {
	base() *Base
	kind() Kind
	// values returns the writable columns in Definition.Fields order.
	values() []any
	// targets returns scan destinations in the same order.
	targets() []any
	// date is the value the collection is ordered by.
	date() civil.Date
}

type Allergy struct {
	Base
	Name        string     `json:"nombre"`
	Type        *string    `json:"tipo"`
	Severity    *string    `json:"severidad"`
	Reaction    *string    `json:"reaccion"`
	DiagnosedOn civil.Date `json:"fecha_diagnostico"`
	Notes       *string    `json:"notas"`
}

func (a *Allergy) kind() Kind { return KindAllergy }
func (a *Allergy) values() []any {
	return []any{a.Name, a.Type, a.Severity, a.Reaction, a.DiagnosedOn, a.Notes}
}
func (a *Allergy) targets() []any {
	return []any{&a.Name, &a.Type, &a.Severity, &a.Reaction, &a.DiagnosedOn, &a.Notes}
}
func (a *Allergy) date() civil.Date { return a.DiagnosedOn }

type Illness struct {
	Base
	Name        string     `json:"nombre"`
	Type        *string    `json:"tipo"`
	DiagnosedOn civil.Date `json:"fecha_diagnostico"`
	Status      *string    `json:"estado"`
	Treatment   *string    `json:"tratamiento"`
	Notes       *string    `json:"notas"`
}

// DefaultIllnessStatus is stored when an illness is created without estado.
const DefaultIllnessStatus = "activa"

func (i *Illness) kind() Kind { return KindIllness }
func (i *Illness) values() []any {
	return []any{i.Name, i.Type, i.DiagnosedOn, i.Status, i.Treatment, i.Notes}
}
func (i *Illness) targets() []any {
	return []any{&i.Name, &i.Type, &i.DiagnosedOn, &i.Status, &i.Treatment, &i.Notes}
}
func (i *Illness) date() civil.Date { return i.DiagnosedOn }

type Surgery struct {
	Base
	Name          string     `json:"nombre"`
	PerformedOn   civil.Date `json:"fecha_cirugia"`
	Hospital      *string    `json:"hospital"`
	Surgeon       *string    `json:"cirujano"`
	Complications *string    `json:"complicaciones"`
	Notes         *string    `json:"notas"`
}

func (s *Surgery) kind() Kind { return KindSurgery }
func (s *Surgery) values() []any {
	return []any{s.Name, s.PerformedOn, s.Hospital, s.Surgeon, s.Complications, s.Notes}
}
func (s *Surgery) targets() []any {
	return []any{&s.Name, &s.PerformedOn, &s.Hospital, &s.Surgeon, &s.Complications, &s.Notes}
}
func (s *Surgery) date() civil.Date { return s.PerformedOn }

type Vaccine struct {
	Base
	Name         string     `json:"nombre"`
	AppliedOn    civil.Date `json:"fecha_aplicacion"`
	Dose         *string    `json:"dosis"`
	Lot          *string    `json:"lote"`
	Institution  *string    `json:"institucion"`
	Professional *string    `json:"profesional"`
	NextDose     civil.Date `json:"proxima_dosis"`
	Notes        *string    `json:"notas"`
}

func (v *Vaccine) kind() Kind { return KindVaccine }
func (v *Vaccine) values() []any {
	return []any{v.Name, v.AppliedOn, v.Dose, v.Lot, v.Institution, v.Professional, v.NextDose, v.Notes}
}
func (v *Vaccine) targets() []any {
	return []any{&v.Name, &v.AppliedOn, &v.Dose, &v.Lot, &v.Institution, &v.Professional, &v.NextDose, &v.Notes}
}
func (v *Vaccine) date() civil.Date { return v.AppliedOn }

type Medication struct {
	Base
	Name         string     `json:"nombre"`
	Dose         *string    `json:"dosis"`
	Frequency    *string    `json:"frecuencia"`
	Route        *string    `json:"via_administracion"`
	StartedOn    civil.Date `json:"fecha_inicio"`
	EndedOn      civil.Date `json:"fecha_fin"`
	PrescribedBy *string    `json:"medico_prescriptor"`
	Notes        *string    `json:"notas"`
}

func (m *Medication) kind() Kind { return KindMedication }
func (m *Medication) values() []any {
	return []any{m.Name, m.Dose, m.Frequency, m.Route, m.StartedOn, m.EndedOn, m.PrescribedBy, m.Notes}
}
func (m *Medication) targets() []any {
	return []any{&m.Name, &m.Dose, &m.Frequency, &m.Route, &m.StartedOn, &m.EndedOn, &m.PrescribedBy, &m.Notes}
}
func (m *Medication) date() civil.Date { return m.StartedOn }

type Habit struct {
	Base
	Type        string     `json:"tipo"`
	Description *string    `json:"descripcion"`
	Frequency   *string    `json:"frecuencia"`
	StartedOn   civil.Date `json:"fecha_inicio"`
	EndedOn     civil.Date `json:"fecha_fin"`
	Notes       *string    `json:"notas"`
}

func (h *Habit) kind() Kind { return KindHabit }
func (h *Habit) values() []any {
	return []any{h.Type, h.Description, h.Frequency, h.StartedOn, h.EndedOn, h.Notes}
}
func (h *Habit) targets() []any {
	return []any{&h.Type, &h.Description, &h.Frequency, &h.StartedOn, &h.EndedOn, &h.Notes}
}
func (h *Habit) date() civil.Date { return h.StartedOn }

// FamilyHistory is a condition diagnosed in a relative.
type FamilyHistory struct {
	Base
	Relationship   string  `json:"parentesco"`
	Condition      string  `json:"enfermedad"`
	AgeAtDiagnosis *int    `json:"edad_diagnostico"`
	Status         *string `json:"estado"`
	Notes          *string `json:"notas"`
}

func (f *FamilyHistory) kind() Kind { return KindFamilyHistory }
func (f *FamilyHistory) values() []any {
	return []any{f.Relationship, f.Condition, f.AgeAtDiagnosis, f.Status, f.Notes}
}
func (f *FamilyHistory) targets() []any {
	return []any{&f.Relationship, &f.Condition, &f.AgeAtDiagnosis, &f.Status, &f.Notes}
}
func (f *FamilyHistory) date() civil.Date { return civil.Of(f.RegisteredAt) }

// KindOf returns the kind of r.
func KindOf(r Record) Kind { return r.kind() }

// IDOf returns the row id of r.
func IDOf(r Record) int64 { return r.base().ID }
