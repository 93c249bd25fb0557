// Package report assembles a patient's complete clinical history and
// renders it as JSON or as a printable PDF.
package report

import (
	"context"

	"github.com/sanitas/hce/internal/domain/clinical"
	"github.com/sanitas/hce/internal/domain/files"
	"github.com/sanitas/hce/internal/domain/identity"
)

type PatientSource interface {
	GetPatient(ctx context.Context, id int64) (*identity.Patient, error)
}

type ClinicalSource interface {
	Collect(ctx context.Context, patientID int64) (map[clinical.Kind][]clinical.Record, error)
}

type FileSource interface {
	List(ctx context.Context, patientID int64) ([]*files.MedicalFile, error)
}

// History is the complete record of one patient. Every list keeps the
// order of its source.
type History struct {
	Patient       *identity.Patient         `json:"paciente"`
	Allergies     []*clinical.Allergy       `json:"alergias"`
	Illnesses     []*clinical.Illness       `json:"enfermedades"`
	Surgeries     []*clinical.Surgery       `json:"cirugias"`
	Vaccines      []*clinical.Vaccine       `json:"vacunas"`
	Medications   []*clinical.Medication    `json:"medicamentos"`
	Habits        []*clinical.Habit         `json:"habitos"`
	FamilyHistory []*clinical.FamilyHistory `json:"antecedentes_familiares"`
	Files         []*files.MedicalFile      `json:"archivos"`
}

type Composer struct {
	patients PatientSource
	clinical ClinicalSource
	files    FileSource
}

func NewComposer(patients PatientSource, clinical ClinicalSource, files FileSource) *Composer {
	return &Composer{patients: patients, clinical: clinical, files: files}
}

// Compose reads the history of patientID. A missing patient surfaces as
// the NOT_FOUND error of the patient source.
func (c *Composer) Compose(ctx context.Context, patientID int64) (*History, error) {
	p, err := c.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	all, err := c.clinical.Collect(ctx, patientID)
	if err != nil {
		return nil, err
	}
	attachments, err := c.files.List(ctx, patientID)
	if err != nil {
		return nil, err
	}

	h := &History{
		Patient:       p,
		Allergies:     []*clinical.Allergy{},
		Illnesses:     []*clinical.Illness{},
		Surgeries:     []*clinical.Surgery{},
		Vaccines:      []*clinical.Vaccine{},
		Medications:   []*clinical.Medication{},
		Habits:        []*clinical.Habit{},
		FamilyHistory: []*clinical.FamilyHistory{},
		Files:         attachments,
	}
	if h.Files == nil {
		h.Files = []*files.MedicalFile{}
	}
	for _, k := range clinical.Kinds() {
		for _, rec := range all[k] {
			switch r := rec.(type) {
			case *clinical.Allergy:
				h.Allergies = append(h.Allergies, r)
			case *clinical.Illness:
				h.Illnesses = append(h.Illnesses, r)
			case *clinical.Surgery:
				h.Surgeries = append(h.Surgeries, r)
			case *clinical.Vaccine:
				h.Vaccines = append(h.Vaccines, r)
			case *clinical.Medication:
				h.Medications = append(h.Medications, r)
			case *clinical.Habit:
				h.Habits = append(h.Habits, r)
			case *clinical.FamilyHistory:
				h.FamilyHistory = append(h.FamilyHistory, r)
			}
		}
	}
	return h, nil
}
