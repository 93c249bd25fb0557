package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sanitas/hce/internal/platform/apperr"
	"github.com/sanitas/hce/internal/platform/auth"
	"github.com/sanitas/hce/internal/platform/blobstore"
	"github.com/sanitas/hce/internal/platform/db"
)

// DefaultMaxBytes is the upload cap when none is configured.
const DefaultMaxBytes int64 = 16 << 20

// maxOriginalLen bounds the sanitized original name kept in the stored
// name, which the blob store limits to 150 bytes.
const maxOriginalLen = 100

var allowedExtensions = map[string]bool{
	"pdf": true, "png": true, "jpg": true, "jpeg": true, "gif": true,
	"doc": true, "docx": true, "dcm": true, "dicom": true,
}

// AllowedExtension reports whether name has an accepted extension.
func AllowedExtension(name string) bool {
	return allowedExtensions[extension(name)]
}

type PatientChecker interface {
	PatientExists(ctx context.Context, id int64) (bool, error)
}

type DoctorLookup interface {
	// DoctorIDForUser returns nil when the user has no doctor profile.
	DoctorIDForUser(ctx context.Context, userID int64) (*int64, error)
}

type Service struct {
	repo     Repository
	blobs    blobstore.Store
	patients PatientChecker
	doctors  DoctorLookup
	tx       db.TxRunner
	logger   zerolog.Logger
	maxBytes int64
	now      func() time.Time
}

func NewService(repo Repository, blobs blobstore.Store, patients PatientChecker, doctors DoctorLookup,
	tx db.TxRunner, maxBytes int64, logger zerolog.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		repo:     repo,
		blobs:    blobs,
		patients: patients,
		doctors:  doctors,
		tx:       tx,
		logger:   logger,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

type UploadRequest struct {
	PatientID   int64
	Filename    string
	ContentType string
	// Size is the size declared by the client, or 0 when unknown.
	Size        int64
	Body        io.Reader
	Category    string
	Description string
	Uploader    *auth.Identity
}

// fallbackStem names uploads whose base name has no storable characters.
const fallbackStem = "archivo"

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// storableName reduces an accepted client filename to the tail kept in the
// stored name. A base that sanitizes away ("снимок.dcm", "__.png") is kept
// as fallbackStem with the original extension.
func storableName(original string) string {
	ext := extension(original)
	safe := blobstore.SanitizeName(original)
	if extension(safe) != ext {
		safe = fallbackStem + "." + ext
	}
	if len(safe) > maxOriginalLen {
		safe = safe[len(safe)-maxOriginalLen:]
	}
	return safe
}

func (s *Service) storedName(patientID int64, original string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d_%s_%s_%s", patientID, s.now().Format("20060102_150405"), suffix, original)
}

// Upload writes the payload to the blob store and records its metadata.
// A failed metadata insert removes the blob again.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*MedicalFile, error) {
	exists, err := s.patients.PatientExists(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("patient not found")
	}

	if req.Body == nil || req.Filename == "" {
		return nil, apperr.Validation("no file provided")
	}
	if !AllowedExtension(req.Filename) {
		return nil, apperr.Validation("file type not allowed")
	}
	if req.Size > s.maxBytes {
		return nil, apperr.Validation("file too large")
	}
	safe := storableName(req.Filename)

	var uploader *int64
	if req.Uploader != nil && req.Uploader.Role == auth.RoleDoctor {
		if uploader, err = s.doctors.DoctorIDForUser(ctx, req.Uploader.UserID); err != nil {
			return nil, err
		}
	}

	name := s.storedName(req.PatientID, safe)
	n, err := s.blobs.Put(ctx, name, req.Body, s.maxBytes)
	switch {
	case errors.Is(err, blobstore.ErrTooLarge):
		return nil, apperr.Validation("file too large")
	case err != nil:
		return nil, apperr.Internal("store file", err)
	}

	f := &MedicalFile{
		PatientID:    req.PatientID,
		StoredName:   name,
		OriginalName: req.Filename,
		Category:     strings.TrimSpace(req.Category),
		SizeBytes:    n,
		UploadedBy:   uploader,
	}
	if f.Category == "" {
		f.Category = DefaultCategory
	}
	if ct := strings.TrimSpace(req.ContentType); ct != "" {
		f.ContentType = &ct
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		f.Description = &d
	}

	if err := s.repo.Create(ctx, f); err != nil {
		if derr := s.blobs.Delete(ctx, name); derr != nil {
			s.logger.Error().Err(derr).Str("blob", name).Msg("orphaned blob after failed metadata insert")
		} else {
			s.logger.Warn().Err(err).Str("blob", name).Msg("removed blob after failed metadata insert")
		}
		if db.IsInvalidValue(err) {
			return nil, apperr.Validation("a field value is too long or out of range")
		}
		return nil, apperr.Internal("record file", err)
	}

	s.logger.Info().Int64("patient_id", f.PatientID).Int64("file_id", f.ID).Int64("bytes", n).Msg("file uploaded")
	return f, nil
}

func (s *Service) List(ctx context.Context, patientID int64) ([]*MedicalFile, error) {
	items, err := s.repo.List(ctx, patientID)
	if err != nil {
		return nil, apperr.Internal("list files", err)
	}
	if items == nil {
		items = []*MedicalFile{}
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*MedicalFile, error) {
	f, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("file not found")
	}
	if err != nil {
		return nil, apperr.Internal("get file", err)
	}
	return f, nil
}

// Content opens the stored bytes of f.
func (s *Service) Content(ctx context.Context, f *MedicalFile) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(ctx, f.StoredName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, apperr.NotFound("file content not found")
	}
	if err != nil {
		return nil, apperr.Internal("open file", err)
	}
	return rc, nil
}

// Delete removes the metadata row, then the blob once the row is gone. A
// blob that cannot be removed is logged as orphaned.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var stored string
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		f, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		stored = f.StoredName
		return s.repo.Delete(ctx, id)
	})
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("file not found")
	}
	if err != nil {
		return apperr.Internal("delete file", err)
	}
	s.RemoveBlobs(ctx, []string{stored})
	s.logger.Info().Int64("file_id", id).Msg("file deleted")
	return nil
}

// StoredNames lists the blob names of a patient's files.
func (s *Service) StoredNames(ctx context.Context, patientID int64) ([]string, error) {
	items, err := s.repo.List(ctx, patientID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(items))
	for i, f := range items {
		names[i] = f.StoredName
	}
	return names, nil
}

// RemoveBlobs deletes blobs whose metadata rows are already gone.
func (s *Service) RemoveBlobs(ctx context.Context, names []string) {
	for _, name := range names {
		err := s.blobs.Delete(ctx, name)
		switch {
		case errors.Is(err, blobstore.ErrNotFound):
			s.logger.Warn().Str("blob", name).Msg("file row had no blob")
		case err != nil:
			s.logger.Error().Err(err).Str("blob", name).Msg("orphaned blob after file delete")
		}
	}
}
