package identity

import (
	"context"
	"time"

	"github.com/sanitas/hce/pkg/fieldpatch"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	TouchLastAccess(ctx context.Context, id int64, at time.Time) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	Exists(ctx context.Context, id int64) (bool, error)
	NationalIDExists(ctx context.Context, nationalID string) (bool, error)
	// PatientIDForUser returns auth.ErrNoPatient when the user owns no
	// profile.
	PatientIDForUser(ctx context.Context, userID int64) (int64, error)
	// List returns patients of active accounts ordered by apellidos, nombres.
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Update(ctx context.Context, id int64, patch fieldpatch.Patch) error
	// Delete removes the profile and returns the owning user id.
	Delete(ctx context.Context, id int64) (int64, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id int64) (*Doctor, error)
	LicenseExists(ctx context.Context, license string) (bool, error)
	DoctorIDForUser(ctx context.Context, userID int64) (int64, error)
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
	Update(ctx context.Context, id int64, patch fieldpatch.Patch) error
	Delete(ctx context.Context, id int64) (int64, error)
}
