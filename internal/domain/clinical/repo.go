package clinical

import (
	"context"

	"github.com/sanitas/hce/pkg/fieldpatch"
)

// Repository stores the clinical collections. Every mutation is scoped by
// patient so a record id from another patient behaves as missing.
type Repository interface {
	List(ctx context.Context, kind Kind, patientID int64) ([]Record, error)
	// Create inserts rec for patientID and fills in its id and registration
	// time. It returns ErrPatientNotFound when the patient does not exist.
	Create(ctx context.Context, patientID int64, rec Record) error
	Update(ctx context.Context, kind Kind, patientID, id int64, patch fieldpatch.Patch) error
	Delete(ctx context.Context, kind Kind, patientID, id int64) error
	// Owner returns the patient a record belongs to.
	Owner(ctx context.Context, kind Kind, id int64) (int64, error)
}
