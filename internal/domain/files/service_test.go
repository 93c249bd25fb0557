package files

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sanitas/hce/internal/platform/apperr"
	"github.com/sanitas/hce/internal/platform/auth"
	"github.com/sanitas/hce/internal/platform/blobstore"
	"github.com/sanitas/hce/internal/platform/db"
)

// -- Mocks --

type mockRepo struct {
	store     map[int64]*MedicalFile
	nextID    int64
	createErr error
}

func newMockRepo() *mockRepo { return &mockRepo{store: map[int64]*MedicalFile{}} }

func (m *mockRepo) Create(_ context.Context, f *MedicalFile) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	f.ID = m.nextID
	f.UploadedAt = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(f.ID) * time.Minute)
	m.store[f.ID] = f
	return nil
}

func (m *mockRepo) List(_ context.Context, patientID int64) ([]*MedicalFile, error) {
	var out []*MedicalFile
	for _, f := range m.store {
		if f.PatientID == patientID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*MedicalFile, error) {
	f, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return f, nil
}

func (m *mockRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

type patientSet map[int64]bool

func (p patientSet) PatientExists(_ context.Context, id int64) (bool, error) { return p[id], nil }

type doctorMap map[int64]int64

func (d doctorMap) DoctorIDForUser(_ context.Context, userID int64) (*int64, error) {
	if id, ok := d[userID]; ok {
		return &id, nil
	}
	return nil, nil
}

type testEnv struct {
	svc   *Service
	repo  *mockRepo
	blobs *blobstore.MemoryStore
}

func newTestEnv(maxBytes int64) *testEnv {
	env := &testEnv{repo: newMockRepo(), blobs: blobstore.NewMemoryStore()}
	env.svc = NewService(env.repo, env.blobs, patientSet{1: true, 2: true}, doctorMap{30: 7},
		db.NoTx{}, maxBytes, zerolog.Nop())
	env.svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC) }
	return env
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected %s, got %s (%v)", kind, got, err)
	}
}

func upload(name, body string) UploadRequest {
	return UploadRequest{
		PatientID: 1,
		Filename:  name,
		Size:      int64(len(body)),
		Body:      strings.NewReader(body),
	}
}

// -- Tests --

func TestAllowedExtension(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"xray.dcm", true},
		{"RESONANCIA.DICOM", true},
		{"informe.pdf", true},
		{"foto.JPeG", true},
		{"carta.docx", true},
		{"malware.exe", false},
		{"script.pdf.sh", false},
		{"sin_extension", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := AllowedExtension(tt.name); got != tt.want {
			t.Errorf("AllowedExtension(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestUpload_Accepted(t *testing.T) {
	env := newTestEnv(0)
	req := upload("xray.dcm", "DICM-payload")
	req.ContentType = "application/dicom"
	req.Uploader = &auth.Identity{UserID: 30, Role: auth.RoleDoctor}

	f, err := env.svc.Upload(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.SizeBytes != int64(len("DICM-payload")) {
		t.Errorf("size %d does not match payload", f.SizeBytes)
	}
	if f.Category != DefaultCategory {
		t.Errorf("expected default category, got %q", f.Category)
	}
	if f.UploadedBy == nil || *f.UploadedBy != 7 {
		t.Errorf("expected uploader doctor 7, got %v", f.UploadedBy)
	}
	if !strings.HasPrefix(f.StoredName, "1_20240301_093015_") || !strings.HasSuffix(f.StoredName, "_xray.dcm") {
		t.Errorf("unexpected stored name %q", f.StoredName)
	}
	if len(f.StoredName) != len("1_20240301_093015_")+8+len("_xray.dcm") {
		t.Errorf("unexpected stored name length %q", f.StoredName)
	}

	rc, err := env.blobs.Open(context.Background(), f.StoredName)
	if err != nil {
		t.Fatalf("blob not stored: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "DICM-payload" {
		t.Errorf("unexpected blob content %q", data)
	}
}

func TestUpload_AcceptedNames(t *testing.T) {
	tests := []struct {
		filename string
		suffix   string
	}{
		{"снимок.dcm", "_archivo.dcm"},
		{"レントゲン.pdf", "_archivo.pdf"},
		{"__.png", "_archivo.png"},
		{"../.pdf", "_archivo.pdf"},
		{"Radiografía tórax.JPG", "_Radiograf_a_t_rax.JPG"},
		{`C:\fotos\rx.png`, "_rx.png"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			env := newTestEnv(0)
			f, err := env.svc.Upload(context.Background(), upload(tt.filename, "payload"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.HasSuffix(f.StoredName, tt.suffix) {
				t.Errorf("stored name %q, want suffix %q", f.StoredName, tt.suffix)
			}
			if f.OriginalName != tt.filename {
				t.Errorf("original name %q, want %q", f.OriginalName, tt.filename)
			}
			if env.blobs.Len() != 1 {
				t.Errorf("expected one blob, got %d", env.blobs.Len())
			}
		})
	}
}

func TestUpload_LongNameKeepsExtension(t *testing.T) {
	env := newTestEnv(0)
	f, err := env.svc.Upload(context.Background(), upload(strings.Repeat("a", 300)+".pdf", "x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(f.StoredName, ".pdf") || len(f.StoredName) > 150 {
		t.Errorf("unexpected stored name %q", f.StoredName)
	}
}

func TestUpload_UploaderNotDoctor(t *testing.T) {
	env := newTestEnv(0)
	req := upload("scan.png", "png")
	req.Uploader = &auth.Identity{UserID: 10, Role: auth.RolePatient}
	f, err := env.svc.Upload(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.UploadedBy != nil {
		t.Errorf("expected nil uploader for patient, got %v", *f.UploadedBy)
	}
}

func TestUpload_Rejected(t *testing.T) {
	tests := []struct {
		name string
		req  UploadRequest
		want apperr.Kind
	}{
		{"exe", upload("malware.exe", "MZ"), apperr.KindValidation},
		{"no filename", upload("", "x"), apperr.KindValidation},
		{"no body", UploadRequest{PatientID: 1, Filename: "a.pdf"}, apperr.KindValidation},
		{"declared too large", UploadRequest{PatientID: 1, Filename: "a.pdf", Size: 11, Body: strings.NewReader("x")}, apperr.KindValidation},
		{"unknown patient", UploadRequest{PatientID: 9, Filename: "a.pdf", Body: strings.NewReader("x")}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(10)
			_, err := env.svc.Upload(context.Background(), tt.req)
			wantKind(t, err, tt.want)
			if env.blobs.Len() != 0 || len(env.repo.store) != 0 {
				t.Error("rejected upload must leave nothing behind")
			}
		})
	}
}

func TestUpload_StreamOverrun(t *testing.T) {
	env := newTestEnv(10)
	req := upload("big.pdf", strings.Repeat("x", 64))
	req.Size = 0

	_, err := env.svc.Upload(context.Background(), req)
	wantKind(t, err, apperr.KindValidation)
	if env.blobs.Len() != 0 {
		t.Error("overrun blob must be removed")
	}
}

func TestUpload_CompensatesFailedInsert(t *testing.T) {
	env := newTestEnv(0)
	env.repo.createErr = errors.New("connection reset")

	_, err := env.svc.Upload(context.Background(), upload("informe.pdf", "%PDF"))
	wantKind(t, err, apperr.KindInternal)
	if env.blobs.Len() != 0 {
		t.Errorf("expected blob to be removed, %d left", env.blobs.Len())
	}
}

func TestListAndDelete(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()
	first, _ := env.svc.Upload(ctx, upload("a.pdf", "a"))
	second, _ := env.svc.Upload(ctx, upload("b.pdf", "b"))

	items, err := env.svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != second.ID || items[1].ID != first.ID {
		t.Errorf("expected newest first, got %v", items)
	}

	if err := env.svc.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.blobs.Open(ctx, first.StoredName); !errors.Is(err, blobstore.ErrNotFound) {
		t.Error("expected blob removed with row")
	}
	wantKind(t, env.svc.Delete(ctx, first.ID), apperr.KindNotFound)

	empty, _ := env.svc.List(ctx, 2)
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty list, got %v", empty)
	}
}

func TestMedicalFile_SizeKB(t *testing.T) {
	f := MedicalFile{SizeBytes: 1536}
	if f.SizeKB() != 1.5 {
		t.Errorf("expected 1.5, got %v", f.SizeKB())
	}
}

// failingCommit runs the work and then fails as a commit would.
type failingCommit struct{}

func (failingCommit) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return errors.New("commit: connection lost")
}

func TestDelete_FailedCommitKeepsBlob(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()
	f, _ := env.svc.Upload(ctx, upload("a.pdf", "a"))

	env.svc.tx = failingCommit{}
	wantKind(t, env.svc.Delete(ctx, f.ID), apperr.KindInternal)
	if _, err := env.blobs.Open(ctx, f.StoredName); err != nil {
		t.Errorf("blob must survive a failed commit: %v", err)
	}
}

func TestDelete_MissingBlob(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()
	f, _ := env.svc.Upload(ctx, upload("a.pdf", "a"))
	env.blobs.Delete(ctx, f.StoredName)

	if err := env.svc.Delete(ctx, f.ID); err != nil {
		t.Fatalf("expected row delete to succeed without blob, got %v", err)
	}
	if len(env.repo.store) != 0 {
		t.Error("expected row removed")
	}
}

func TestStoredNamesAndRemoveBlobs(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()
	a, _ := env.svc.Upload(ctx, upload("a.pdf", "a"))
	b, _ := env.svc.Upload(ctx, upload("b.png", "b"))
	other := upload("c.pdf", "c")
	other.PatientID = 2
	c, _ := env.svc.Upload(ctx, other)

	names, err := env.svc.StoredNames(ctx, 1)
	if err != nil {
		t.Fatalf("stored names: %v", err)
	}
	sort.Strings(names)
	want := []string{a.StoredName, b.StoredName}
	sort.Strings(want)
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", names, want)
	}

	env.svc.RemoveBlobs(ctx, append(names, "1_missing.pdf"))
	if env.blobs.Len() != 1 {
		t.Errorf("expected only the other patient's blob, got %d", env.blobs.Len())
	}
	if _, err := env.blobs.Open(ctx, c.StoredName); err != nil {
		t.Errorf("other patient's blob removed: %v", err)
	}
}
