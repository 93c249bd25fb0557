package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sanitas/hce/internal/platform/apperr"
	"github.com/sanitas/hce/internal/platform/auth"
	"github.com/sanitas/hce/internal/platform/db"
	"github.com/sanitas/hce/pkg/fieldpatch"
)

// SessionRevoker ends every session of a user.
type SessionRevoker interface {
	Revoke(ctx context.Context, userID int64) error
}

// PatientFiles removes the stored attachments of a deleted patient.
type PatientFiles interface {
	// StoredNames lists the blobs of a patient. It runs inside the deleting
	// transaction, before the cascade removes the metadata rows.
	StoredNames(ctx context.Context, patientID int64) ([]string, error)
	// RemoveBlobs deletes the named blobs once the rows are gone. Failures
	// are logged, not returned.
	RemoveBlobs(ctx context.Context, names []string)
}

type Service struct {
	users    UserRepository
	patients PatientRepository
	doctors  DoctorRepository
	files    PatientFiles
	tx       db.TxRunner
	sessions SessionRevoker
	logger   zerolog.Logger
	cost     int
	now      func() time.Time
}

func NewService(users UserRepository, patients PatientRepository, doctors DoctorRepository,
	tx db.TxRunner, sessions SessionRevoker, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		patients: patients,
		doctors:  doctors,
		tx:       tx,
		sessions: sessions,
		logger:   logger,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// SetPatientFiles installs the attachment store cleaned up by
// DeletePatient.
func (s *Service) SetPatientFiles(f PatientFiles) { s.files = f }

// -- Authentication --

// Login verifies the credential and records the access. A matching
// plaintext credential is replaced by its bcrypt hash.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	if !u.Active {
		return nil, apperr.Forbidden("user is inactive")
	}

	ok, legacy, err := checkPassword(u.PasswordHash, password)
	if err != nil {
		return nil, apperr.Internal("verify password", err)
	}
	if !ok {
		return nil, apperr.Unauthenticated("incorrect password")
	}

	if legacy {
		if err := s.upgradePassword(ctx, u.ID, password); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", u.ID).Msg("password hash upgrade failed")
		}
	}

	now := s.now()
	if err := s.users.TouchLastAccess(ctx, u.ID, now); err != nil {
		return nil, apperr.Internal("record last access", err)
	}
	u.LastAccess = &now
	return u, nil
}

func (s *Service) upgradePassword(ctx context.Context, userID int64, password string) error {
	if len(password) > maxPasswordLen {
		return errors.New("password too long to hash")
	}
	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	return u, nil
}

// SetActive enables or disables an account. Disabling ends its sessions.
func (s *Service) SetActive(ctx context.Context, userID int64, active bool) error {
	err := s.users.SetActive(ctx, userID, active)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return apperr.Internal("update user", err)
	}
	if !active {
		if err := s.sessions.Revoke(ctx, userID); err != nil {
			return apperr.Internal("revoke sessions", err)
		}
	}
	return nil
}

// -- Registration --

func (s *Service) validateCredentials(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.Validation("invalid email: %s", email)
	}
	if password == "" {
		return "", apperr.Validation("contrasena is required")
	}
	if len(password) > maxPasswordLen {
		return "", apperr.Validation("contrasena must be at most %d bytes", maxPasswordLen)
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return "", apperr.Internal("check email", err)
	}
	if exists {
		return "", apperr.Validation("email already registered")
	}
	return email, nil
}

func validatePatient(p *Patient) error {
	switch {
	case strings.TrimSpace(p.FirstNames) == "":
		return apperr.Validation("nombres is required")
	case strings.TrimSpace(p.LastNames) == "":
		return apperr.Validation("apellidos is required")
	case strings.TrimSpace(p.NationalID) == "":
		return apperr.Validation("identificacion is required")
	case !p.BirthDate.Valid:
		return apperr.Validation("fecha_nacimiento is required")
	}
	return nil
}

// RegisterPatient creates a paciente account and its profile in one
// transaction. Duplicate email or identification is rejected before any
// row is written.
func (s *Service) RegisterPatient(ctx context.Context, reg *PatientRegistration) (userID, patientID int64, err error) {
	if err := validatePatient(&reg.Patient); err != nil {
		return 0, 0, err
	}
	email, err := s.validateCredentials(ctx, reg.Email, reg.Password)
	if err != nil {
		return 0, 0, err
	}
	exists, err := s.patients.NationalIDExists(ctx, reg.NationalID)
	if err != nil {
		return 0, 0, apperr.Internal("check identification", err)
	}
	if exists {
		return 0, 0, apperr.Validation("identification already registered")
	}

	hash, err := hashPassword(reg.Password, s.cost)
	if err != nil {
		return 0, 0, apperr.Internal("hash password", err)
	}

	u := &User{Email: email, PasswordHash: hash, Role: auth.RolePatient, Active: true}
	p := reg.Patient
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		p.UserID = u.ID
		return s.patients.Create(ctx, &p)
	})
	if err != nil {
		return 0, 0, mapWriteErr("register patient", err)
	}
	return u.ID, p.ID, nil
}

func validateDoctor(d *Doctor) error {
	switch {
	case strings.TrimSpace(d.FirstNames) == "":
		return apperr.Validation("nombres is required")
	case strings.TrimSpace(d.LastNames) == "":
		return apperr.Validation("apellidos is required")
	case strings.TrimSpace(d.Specialty) == "":
		return apperr.Validation("especialidad is required")
	case strings.TrimSpace(d.LicenseNumber) == "":
		return apperr.Validation("licencia_medica is required")
	}
	return nil
}

func (s *Service) RegisterDoctor(ctx context.Context, reg *DoctorRegistration) (userID, doctorID int64, err error) {
	if err := validateDoctor(&reg.Doctor); err != nil {
		return 0, 0, err
	}
	email, err := s.validateCredentials(ctx, reg.Email, reg.Password)
	if err != nil {
		return 0, 0, err
	}
	exists, err := s.doctors.LicenseExists(ctx, reg.LicenseNumber)
	if err != nil {
		return 0, 0, apperr.Internal("check license", err)
	}
	if exists {
		return 0, 0, apperr.Validation("medical license already registered")
	}

	hash, err := hashPassword(reg.Password, s.cost)
	if err != nil {
		return 0, 0, apperr.Internal("hash password", err)
	}

	u := &User{Email: email, PasswordHash: hash, Role: auth.RoleDoctor, Active: true}
	d := reg.Doctor
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		d.UserID = u.ID
		return s.doctors.Create(ctx, &d)
	})
	if err != nil {
		return 0, 0, mapWriteErr("register doctor", err)
	}
	return u.ID, d.ID, nil
}

// CreateAdmin bootstraps an administrator account.
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (int64, error) {
	email, err := s.validateCredentials(ctx, email, password)
	if err != nil {
		return 0, err
	}
	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return 0, apperr.Internal("hash password", err)
	}
	u := &User{Email: email, PasswordHash: hash, Role: auth.RoleAdmin, Active: true}
	if err := s.users.Create(ctx, u); err != nil {
		return 0, mapWriteErr("create administrator", err)
	}
	return u.ID, nil
}

// mapWriteErr turns repository write errors into application errors.
func mapWriteErr(action string, err error) error {
	switch {
	case errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrDuplicateNationalID), errors.Is(err, ErrDuplicateLicense):
		return apperr.Validation("%s", err.Error())
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound(action + ": not found")
	case db.IsInvalidValue(err):
		return apperr.Validation("a field value is too long or out of range")
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Internal(action, err)
}

// -- Patients --

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("patient not found")
	}
	if err != nil {
		return nil, apperr.Internal("load patient", err)
	}
	return p, nil
}

// PatientExists reports whether a patient profile with id exists.
func (s *Service) PatientExists(ctx context.Context, id int64) (bool, error) {
	return s.patients.Exists(ctx, id)
}

// PatientIDForUser implements auth.PatientOwnerLookup.
func (s *Service) PatientIDForUser(ctx context.Context, userID int64) (int64, error) {
	return s.patients.PatientIDForUser(ctx, userID)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	items, total, err := s.patients.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal("list patients", err)
	}
	return items, total, nil
}

// UpdatePatient applies the keys present in body to the profile.
func (s *Service) UpdatePatient(ctx context.Context, id int64, body []byte) error {
	patch, err := fieldpatch.Parse(body, patientFields)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}
	if patch.Empty() {
		return apperr.Validation("no fields to update")
	}
	err = s.patients.Update(ctx, id, patch)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("patient not found")
	}
	if err != nil {
		return mapWriteErr("update patient", err)
	}
	return nil
}

// DeletePatient removes the profile and its user in one transaction. The
// clinical history, file rows and sessions go with them by cascade; the
// file blobs are removed after commit.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	var blobs []string
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if s.files != nil {
			names, err := s.files.StoredNames(ctx, id)
			if err != nil {
				return err
			}
			blobs = names
		}
		userID, err := s.patients.Delete(ctx, id)
		if err != nil {
			return err
		}
		return s.users.Delete(ctx, userID)
	})
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("patient not found")
	}
	if err != nil {
		return apperr.Internal("delete patient", err)
	}
	if s.files != nil && len(blobs) > 0 {
		s.files.RemoveBlobs(ctx, blobs)
	}
	s.logger.Info().Int64("patient_id", id).Int("files", len(blobs)).Msg("patient deleted")
	return nil
}

// -- Doctors --

func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("doctor not found")
	}
	if err != nil {
		return nil, apperr.Internal("load doctor", err)
	}
	return d, nil
}

// DoctorIDForUser returns the doctor profile of a medico account, or nil
// when the account has none.
func (s *Service) DoctorIDForUser(ctx context.Context, userID int64) (*int64, error) {
	id, err := s.doctors.DoctorIDForUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	items, total, err := s.doctors.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal("list doctors", err)
	}
	return items, total, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id int64, body []byte) error {
	patch, err := fieldpatch.Parse(body, doctorFields)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}
	if patch.Empty() {
		return apperr.Validation("no fields to update")
	}
	err = s.doctors.Update(ctx, id, patch)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("doctor not found")
	}
	if err != nil {
		return mapWriteErr("update doctor", err)
	}
	return nil
}

func (s *Service) DeleteDoctor(ctx context.Context, id int64) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		userID, err := s.doctors.Delete(ctx, id)
		if err != nil {
			return err
		}
		return s.users.Delete(ctx, userID)
	})
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("doctor not found")
	}
	if err != nil {
		return apperr.Internal("delete doctor", err)
	}
	return nil
}
