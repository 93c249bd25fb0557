package clinical

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sanitas/hce/internal/platform/apperr"
	"github.com/sanitas/hce/internal/platform/db"
	"github.com/sanitas/hce/pkg/fieldpatch"
)

var errInvalidValue = apperr.Validation("a field value is too long or out of range")

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context, kind Kind, patientID int64) ([]Record, error) {
	items, err := s.repo.List(ctx, kind, patientID)
	if err != nil {
		return nil, apperr.Internal("list "+kind.Key(), err)
	}
	if items == nil {
		items = []Record{}
	}
	return items, nil
}

// Collect returns every collection of a patient keyed by kind.
func (s *Service) Collect(ctx context.Context, patientID int64) (map[Kind][]Record, error) {
	out := make(map[Kind][]Record, len(definitions))
	for _, k := range Kinds() {
		items, err := s.List(ctx, k, patientID)
		if err != nil {
			return nil, err
		}
		out[k] = items
	}
	return out, nil
}

// validate checks the required text columns of rec.
func validate(rec Record) error {
	d := rec.kind().Def()
	vals := rec.values()
	for i, f := range d.Fields {
		if !f.Required {
			continue
		}
		if s, ok := vals[i].(string); !ok || strings.TrimSpace(s) == "" {
			return apperr.Validation("%s is required", f.Key)
		}
	}
	return nil
}

// Create stores rec for patientID and returns its id.
func (s *Service) Create(ctx context.Context, patientID int64, rec Record) (int64, error) {
	if err := validate(rec); err != nil {
		return 0, err
	}
	if ill, ok := rec.(*Illness); ok && (ill.Status == nil || strings.TrimSpace(*ill.Status) == "") {
		status := DefaultIllnessStatus
		ill.Status = &status
	}

	err := s.repo.Create(ctx, patientID, rec)
	if errors.Is(err, ErrPatientNotFound) {
		return 0, apperr.NotFound("patient not found")
	}
	if db.IsInvalidValue(err) {
		return 0, errInvalidValue
	}
	if err != nil {
		return 0, apperr.Internal("create "+rec.kind().Key(), err)
	}
	id := rec.base().ID
	s.logger.Info().Str("kind", rec.kind().Key()).Int64("patient_id", patientID).Int64("id", id).Msg("clinical record created")
	return id, nil
}

// Update applies the keys present in body to one record of patientID.
func (s *Service) Update(ctx context.Context, kind Kind, patientID, id int64, body []byte) error {
	patch, err := fieldpatch.Parse(body, kind.Def().Fields)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}
	if patch.Empty() {
		return apperr.Validation("no fields to update")
	}
	return s.mapErr(kind, "update", s.repo.Update(ctx, kind, patientID, id, patch))
}

func (s *Service) Delete(ctx context.Context, kind Kind, patientID, id int64) error {
	if err := s.mapErr(kind, "delete", s.repo.Delete(ctx, kind, patientID, id)); err != nil {
		return err
	}
	s.logger.Info().Str("kind", kind.Key()).Int64("patient_id", patientID).Int64("id", id).Msg("clinical record deleted")
	return nil
}

// Owner returns the patient a record belongs to.
func (s *Service) Owner(ctx context.Context, kind Kind, id int64) (int64, error) {
	pid, err := s.repo.Owner(ctx, kind, id)
	if err != nil {
		return 0, s.mapErr(kind, "find", err)
	}
	return pid, nil
}

func (s *Service) mapErr(kind Kind, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("record not found")
	case db.IsInvalidValue(err):
		return errInvalidValue
	}
	return apperr.Internal(op+" "+kind.Key(), err)
}
