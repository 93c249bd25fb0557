package files

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

var ErrNotFound = errors.New("file not found")

// DefaultCategory is stored when an upload names no category.
const DefaultCategory = "otros"

// MedicalFile is the metadata of an uploaded attachment. The bytes live in
// the blob store under StoredName.
type MedicalFile struct {
	ID           int64     `json:"id"`
	PatientID    int64     `json:"paciente_id"`
	StoredName   string    `json:"nombre_archivo"`
	OriginalName string    `json:"nombre_original"`
	ContentType  *string   `json:"tipo_archivo"`
	Category     string    `json:"categoria"`
	Description  *string   `json:"descripcion"`
	SizeBytes    int64     `json:"tamano_bytes"`
	UploadedBy   *int64    `json:"subido_por_medico_id"`
	UploadedAt   time.Time `json:"fecha_subida"`
}

// SizeKB is the size in kilobytes rounded to two decimals.
func (f *MedicalFile) SizeKB() float64 {
	return math.Round(float64(f.SizeBytes)/1024*100) / 100
}

func (f MedicalFile) MarshalJSON() ([]byte, error) {
	type plain MedicalFile
	return json.Marshal(struct {
		plain
		SizeKB float64 `json:"tamano_kb"`
	}{plain(f), f.SizeKB()})
}
