package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/sanitas/hce/pkg/civil"
)

const (
	title    = "HOSPITAL SANITAS"
	subtitle = "Historia Clínica"
	footer   = "Hospital Sanitas - Sistema de Gestión de Registros Médicos"

	dateLayout  = "02/01/2006"
	stampLayout = "02/01/2006 15:04"

	pageWidth = 190.0
	missing   = "N/A"
)

type field struct {
	Label, Value string
}

type section struct {
	Title   string
	Headers []string
	Rows    [][]string
}

func orNA(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return missing
	}
	return *s
}

func dateOrNA(d civil.Date) string {
	if !d.Valid {
		return missing
	}
	return d.Format(dateLayout)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func patientFields(h *History) []field {
	p := h.Patient
	email := p.Email
	if email == "" {
		email = missing
	}
	return []field{
		{"Nombre Completo", p.FullName()},
		{"Identificación", p.NationalID},
		{"Fecha de Nacimiento", dateOrNA(p.BirthDate)},
		{"Género", orNA(p.Gender)},
		{"Teléfono", orNA(p.Phone)},
		{"Email", email},
	}
}

// layout lists the printed sections in order. Kinds without records are
// left out.
func layout(h *History) []section {
	var out []section
	add := func(s section) {
		if len(s.Rows) > 0 {
			out = append(out, s)
		}
	}

	s := section{Title: "ALERGIAS", Headers: []string{"Nombre", "Tipo", "Severidad", "Reacción"}}
	for _, a := range h.Allergies {
		s.Rows = append(s.Rows, []string{a.Name, orNA(a.Type), orNA(a.Severity), orNA(a.Reaction)})
	}
	add(s)

	s = section{Title: "ENFERMEDADES", Headers: []string{"Nombre", "Estado", "Fecha Diagnóstico", "Tratamiento"}}
	for _, i := range h.Illnesses {
		treatment := orNA(i.Treatment)
		if treatment != missing {
			treatment = truncate(treatment, 30)
		}
		s.Rows = append(s.Rows, []string{i.Name, orNA(i.Status), dateOrNA(i.DiagnosedOn), treatment})
	}
	add(s)

	s = section{Title: "CIRUGÍAS", Headers: []string{"Nombre", "Fecha", "Hospital", "Cirujano"}}
	for _, c := range h.Surgeries {
		s.Rows = append(s.Rows, []string{c.Name, dateOrNA(c.PerformedOn), orNA(c.Hospital), orNA(c.Surgeon)})
	}
	add(s)

	s = section{Title: "MEDICAMENTOS", Headers: []string{"Nombre", "Dosis", "Frecuencia", "Fecha Inicio"}}
	for _, m := range h.Medications {
		s.Rows = append(s.Rows, []string{m.Name, orNA(m.Dose), orNA(m.Frequency), dateOrNA(m.StartedOn)})
	}
	add(s)

	s = section{Title: "VACUNAS", Headers: []string{"Nombre", "Fecha Aplicación", "Dosis", "Institución"}}
	for _, v := range h.Vaccines {
		s.Rows = append(s.Rows, []string{v.Name, dateOrNA(v.AppliedOn), orNA(v.Dose), orNA(v.Institution)})
	}
	add(s)

	return out
}

// Filename is the download name of the PDF of h.
func Filename(h *History) string {
	name := fmt.Sprintf("historial_medico_%s_%s.pdf", h.Patient.FirstNames, h.Patient.LastNames)
	name = strings.ReplaceAll(name, " ", "_")
	return strings.NewReplacer(`"`, "", "/", "_", `\`, "_").Replace(name)
}

// RenderPDF writes the A4 report of h to w. now is printed in the footer.
func RenderPDF(w io.Writer, h *History, now time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title+" - "+subtitle, true)
	pdf.SetCreator(title, true)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 13)
	pdf.CellFormat(0, 8, tr(subtitle), "", 1, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(6)

	heading(pdf, tr, "DATOS DEL PACIENTE")
	for _, f := range patientFields(h) {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 7, tr(f.Label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, tr(f.Value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	for _, s := range layout(h) {
		heading(pdf, tr, s.Title)
		table(pdf, tr, s)
		pdf.Ln(4)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 5, tr("Reporte generado el: "+now.Format(stampLayout)), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, tr(footer), "", 1, "C", false, 0, "")

	return pdf.Output(w)
}

func heading(pdf *gofpdf.Fpdf, tr func(string) string, text string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.SetFillColor(220, 230, 241)
	pdf.CellFormat(0, 8, tr(text), "", 1, "L", true, 0, "")
	pdf.Ln(2)
}

func table(pdf *gofpdf.Fpdf, tr func(string) string, s section) {
	width := pageWidth / float64(len(s.Headers))

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(240, 240, 240)
	for _, hd := range s.Headers {
		pdf.CellFormat(width, 7, tr(hd), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range s.Rows {
		for _, cell := range row {
			pdf.CellFormat(width, 6, tr(truncate(cell, 40)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}
