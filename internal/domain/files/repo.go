package files

import "context"

type Repository interface {
	// Create inserts f and fills in its id and upload time.
	Create(ctx context.Context, f *MedicalFile) error
	// List returns the files of a patient, newest first.
	List(ctx context.Context, patientID int64) ([]*MedicalFile, error)
	GetByID(ctx context.Context, id int64) (*MedicalFile, error)
	Delete(ctx context.Context, id int64) error
}
