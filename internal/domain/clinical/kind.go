package clinical

import "github.com/sanitas/hce/pkg/fieldpatch"

// Kind identifies one of the clinical history collections kept per patient.
type Kind int

const (
	KindAllergy Kind = iota
	KindIllness
	KindSurgery
	KindVaccine
	KindMedication
	KindHabit
	KindFamilyHistory
)

// Kinds returns every kind in history order.
func Kinds() []Kind {
	return []Kind{
		KindAllergy, KindIllness, KindSurgery, KindVaccine,
		KindMedication, KindHabit, KindFamilyHistory,
	}
}

// Definition describes how a kind is stored and which fields clients may
// write. Fields is in column order and matches the record's values.
type Definition struct {
	Kind       Kind
	Slug       string
	Aliases    []string
	Table      string
	DateColumn string
	Fields     []fieldpatch.Field
	New        func() Record
}

func text(key string) fieldpatch.Field { return fieldpatch.Field{Key: key, Column: key, Type: fieldpatch.Text} }

func required(key string) fieldpatch.Field {
	return fieldpatch.Field{Key: key, Column: key, Type: fieldpatch.Text, Required: true}
}

func date(key string) fieldpatch.Field { return fieldpatch.Field{Key: key, Column: key, Type: fieldpatch.Date} }

var definitions = [...]Definition{
	KindAllergy: {
		Kind:       KindAllergy,
		Slug:       "alergias",
		Table:      "alergias",
		DateColumn: "fecha_diagnostico",
		Fields: []fieldpatch.Field{
			required("nombre"), text("tipo"), text("severidad"), text("reaccion"),
			date("fecha_diagnostico"), text("notas"),
		},
		New: func() Record { return &Allergy{} },
	},
	KindIllness: {
		Kind:       KindIllness,
		Slug:       "enfermedades",
		Table:      "enfermedades",
		DateColumn: "fecha_diagnostico",
		Fields: []fieldpatch.Field{
			required("nombre"), text("tipo"), date("fecha_diagnostico"), text("estado"),
			text("tratamiento"), text("notas"),
		},
		New: func() Record { return &Illness{} },
	},
	KindSurgery: {
		Kind:       KindSurgery,
		Slug:       "cirugias",
		Table:      "cirugias",
		DateColumn: "fecha_cirugia",
		Fields: []fieldpatch.Field{
			required("nombre"), date("fecha_cirugia"), text("hospital"), text("cirujano"),
			text("complicaciones"), text("notas"),
		},
		New: func() Record { return &Surgery{} },
	},
	KindVaccine: {
		Kind:       KindVaccine,
		Slug:       "vacunas",
		Table:      "vacunas",
		DateColumn: "fecha_aplicacion",
		Fields: []fieldpatch.Field{
			required("nombre"), date("fecha_aplicacion"), text("dosis"), text("lote"),
			text("institucion"), text("profesional"), date("proxima_dosis"), text("notas"),
		},
		New: func() Record { return &Vaccine{} },
	},
	KindMedication: {
		Kind:       KindMedication,
		Slug:       "medicamentos",
		Table:      "medicamentos",
		DateColumn: "fecha_inicio",
		Fields: []fieldpatch.Field{
			required("nombre"), text("dosis"), text("frecuencia"), text("via_administracion"),
			date("fecha_inicio"), date("fecha_fin"), text("medico_prescriptor"), text("notas"),
		},
		New: func() Record { return &Medication{} },
	},
	KindHabit: {
		Kind:       KindHabit,
		Slug:       "habitos",
		Table:      "habitos",
		DateColumn: "fecha_inicio",
		Fields: []fieldpatch.Field{
			required("tipo"), text("descripcion"), text("frecuencia"),
			date("fecha_inicio"), date("fecha_fin"), text("notas"),
		},
		New: func() Record { return &Habit{} },
	},
	KindFamilyHistory: {
		Kind:       KindFamilyHistory,
		Slug:       "antecedentes-familiares",
		Aliases:    []string{"antecedentes"},
		Table:      "antecedentes_familiares",
		DateColumn: "fecha_registro",
		Fields: []fieldpatch.Field{
			required("parentesco"), required("enfermedad"),
			{Key: "edad_diagnostico", Column: "edad_diagnostico", Type: fieldpatch.Int},
			text("estado"), text("notas"),
		},
		New: func() Record { return &FamilyHistory{} },
	},
}

// Def returns the definition of k. It panics on an unknown kind.
func (k Kind) Def() *Definition { return &definitions[k] }

// Slug is the URL segment for k.
func (k Kind) Slug() string { return definitions[k].Slug }

// Key is the JSON key a list of k is returned under.
func (k Kind) Key() string { return definitions[k].Table }

func (k Kind) String() string { return definitions[k].Slug }

// Valid reports whether k names a known kind.
func (k Kind) Valid() bool { return k >= 0 && int(k) < len(definitions) }

// ParseKind maps a URL segment, including aliases, to a kind.
func ParseKind(slug string) (Kind, bool) {
	for _, d := range definitions {
		if d.Slug == slug {
			return d.Kind, true
		}
		for _, a := range d.Aliases {
			if a == slug {
				return d.Kind, true
			}
		}
	}
	return 0, false
}

// slugs returns the canonical slug of k followed by its aliases.
func (k Kind) slugs() []string {
	d := k.Def()
	return append([]string{d.Slug}, d.Aliases...)
}
