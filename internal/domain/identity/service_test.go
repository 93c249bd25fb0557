package identity

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sanitas/hce/internal/platform/apperr"
	"github.com/sanitas/hce/internal/platform/auth"
	"github.com/sanitas/hce/internal/platform/db"
	"github.com/sanitas/hce/pkg/civil"
	"github.com/sanitas/hce/pkg/fieldpatch"
)

// =========== Mock Repositories ===========

type mockUserRepo struct {
	store  map[int64]*User
	nextID int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{store: make(map[int64]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.store {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*User, error) {
	u, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.store {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	u, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserRepo) TouchLastAccess(_ context.Context, id int64, at time.Time) error {
	u, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	u.LastAccess = &at
	return nil
}

func (m *mockUserRepo) SetActive(_ context.Context, id int64, active bool) error {
	u, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

type mockPatientRepo struct {
	store  map[int64]*Patient
	users  *mockUserRepo
	nextID int64
}

func newMockPatientRepo(users *mockUserRepo) *mockPatientRepo {
	return &mockPatientRepo{store: make(map[int64]*Patient), users: users}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.store {
		if existing.NationalID == p.NationalID {
			return ErrDuplicateNationalID
		}
	}
	m.nextID++
	p.ID = m.nextID
	p.RegisteredAt = time.Now()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) withUser(p *Patient) *Patient {
	cp := *p
	if u, ok := m.users.store[p.UserID]; ok {
		cp.Email = u.Email
		cp.Active = u.Active
	}
	return &cp
}

func (m *mockPatientRepo) GetByID(_ context.Context, id int64) (*Patient, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.withUser(p), nil
}

func (m *mockPatientRepo) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := m.store[id]
	return ok, nil
}

func (m *mockPatientRepo) NationalIDExists(_ context.Context, nationalID string) (bool, error) {
	for _, p := range m.store {
		if p.NationalID == nationalID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPatientRepo) PatientIDForUser(_ context.Context, userID int64) (int64, error) {
	for _, p := range m.store {
		if p.UserID == userID {
			return p.ID, nil
		}
	}
	return 0, auth.ErrNoPatient
}

func (m *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var all []*Patient
	for _, p := range m.store {
		wp := m.withUser(p)
		if wp.Active {
			all = append(all, wp)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].LastNames != all[j].LastNames {
			return all[i].LastNames < all[j].LastNames
		}
		return all[i].FirstNames < all[j].FirstNames
	})
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockPatientRepo) Update(_ context.Context, id int64, patch fieldpatch.Patch) error {
	p, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	for _, col := range patch.Columns() {
		v, _ := patch.Get(col)
		switch col {
		case "nombres":
			p.FirstNames = v.(string)
		case "apellidos":
			p.LastNames = v.(string)
		case "identificacion":
			p.NationalID = v.(string)
		case "fecha_nacimiento":
			p.BirthDate = v.(civil.Date)
		case "telefono":
			p.Phone = optString(v)
		case "genero":
			p.Gender = optString(v)
		case "direccion":
			p.Address = optString(v)
		}
	}
	return nil
}

func optString(v any) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}

func (m *mockPatientRepo) Delete(_ context.Context, id int64) (int64, error) {
	p, ok := m.store[id]
	if !ok {
		return 0, ErrNotFound
	}
	delete(m.store, id)
	return p.UserID, nil
}

type mockDoctorRepo struct {
	store  map[int64]*Doctor
	nextID int64
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{store: make(map[int64]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	for _, existing := range m.store {
		if existing.LicenseNumber == d.LicenseNumber {
			return ErrDuplicateLicense
		}
	}
	m.nextID++
	d.ID = m.nextID
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id int64) (*Doctor, error) {
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) LicenseExists(_ context.Context, license string) (bool, error) {
	for _, d := range m.store {
		if d.LicenseNumber == license {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDoctorRepo) DoctorIDForUser(_ context.Context, userID int64) (int64, error) {
	for _, d := range m.store {
		if d.UserID == userID {
			return d.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *mockDoctorRepo) List(_ context.Context, limit, offset int) ([]*Doctor, int, error) {
	var all []*Doctor
	for _, d := range m.store {
		all = append(all, d)
	}
	return all, len(all), nil
}

func (m *mockDoctorRepo) Update(_ context.Context, id int64, patch fieldpatch.Patch) error {
	d, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	if v, ok := patch.Get("especialidad"); ok {
		d.Specialty = v.(string)
	}
	if v, ok := patch.Get("telefono"); ok {
		d.Phone = optString(v)
	}
	return nil
}

func (m *mockDoctorRepo) Delete(_ context.Context, id int64) (int64, error) {
	d, ok := m.store[id]
	if !ok {
		return 0, ErrNotFound
	}
	delete(m.store, id)
	return d.UserID, nil
}

type mockRevoker struct {
	revoked []int64
}

func (m *mockRevoker) Revoke(_ context.Context, userID int64) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

// =========== Helpers ===========

type testEnv struct {
	svc      *Service
	users    *mockUserRepo
	patients *mockPatientRepo
	doctors  *mockDoctorRepo
	revoker  *mockRevoker
}

func newTestEnv() *testEnv {
	users := newMockUserRepo()
	env := &testEnv{
		users:    users,
		patients: newMockPatientRepo(users),
		doctors:  newMockDoctorRepo(),
		revoker:  &mockRevoker{},
	}
	env.svc = NewService(env.users, env.patients, env.doctors, db.NoTx{}, env.revoker, zerolog.Nop())
	env.svc.cost = bcrypt.MinCost
	return env
}

func validRegistration() *PatientRegistration {
	birth, _ := civil.Parse("1988-04-12")
	return &PatientRegistration{
		Email:    "ana@example.com",
		Password: "secreto123",
		Patient: Patient{
			FirstNames: "Ana",
			LastNames:  "Gómez",
			NationalID: "1020304050",
			BirthDate:  birth,
		},
	}
}

func wantKind(t *testing.T, err error, k apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", k)
	}
	if got := apperr.KindOf(err); got != k {
		t.Fatalf("expected %s, got %s (%v)", k, got, err)
	}
}

// =========== Login ===========

func TestLogin_LegacyPlaintext(t *testing.T) {
	env := newTestEnv()
	env.users.Create(context.Background(), &User{Email: "medico@sanitas.co", PasswordHash: "x", Role: auth.RoleDoctor, Active: true})

	u, err := env.svc.Login(context.Background(), "medico@sanitas.co", "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role.DashboardPath() != "/dashboard-medico" {
		t.Errorf("unexpected redirect %q", u.Role.DashboardPath())
	}
	stored := env.users.store[u.ID]
	if !isBcryptHash(stored.PasswordHash) {
		t.Errorf("expected plaintext credential to be upgraded, got %q", stored.PasswordHash)
	}
	if stored.LastAccess == nil {
		t.Error("expected ultimo_acceso to be recorded")
	}

	if _, err := env.svc.Login(context.Background(), "medico@sanitas.co", "x"); err != nil {
		t.Errorf("login after upgrade failed: %v", err)
	}
}

func TestLogin_Errors(t *testing.T) {
	env := newTestEnv()
	hash, _ := hashPassword("correcta", bcrypt.MinCost)
	env.users.Create(context.Background(), &User{Email: "activo@sanitas.co", PasswordHash: hash, Role: auth.RolePatient, Active: true})
	env.users.Create(context.Background(), &User{Email: "inactivo@sanitas.co", PasswordHash: hash, Role: auth.RolePatient, Active: false})

	tests := []struct {
		name     string
		email    string
		password string
		want     apperr.Kind
	}{
		{"missing email", "", "correcta", apperr.KindValidation},
		{"missing password", "activo@sanitas.co", "", apperr.KindValidation},
		{"unknown user", "nadie@sanitas.co", "correcta", apperr.KindNotFound},
		{"inactive user", "inactivo@sanitas.co", "correcta", apperr.KindForbidden},
		{"wrong password", "activo@sanitas.co", "incorrecta", apperr.KindUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Login(context.Background(), tt.email, tt.password)
			wantKind(t, err, tt.want)
		})
	}
}

func TestLogin_Hashed(t *testing.T) {
	env := newTestEnv()
	hash, _ := hashPassword("correcta", bcrypt.MinCost)
	env.users.Create(context.Background(), &User{Email: "admin@sanitas.co", PasswordHash: hash, Role: auth.RoleAdmin, Active: true})

	u, err := env.svc.Login(context.Background(), "  admin@sanitas.co ", "correcta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != auth.RoleAdmin {
		t.Errorf("expected admin, got %s", u.Role)
	}
	if env.users.store[u.ID].PasswordHash != hash {
		t.Error("bcrypt hash must not be rewritten")
	}
}

// =========== Registration ===========

func TestRegisterPatient_Success(t *testing.T) {
	env := newTestEnv()
	uid, pid, err := env.svc.RegisterPatient(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u := env.users.store[uid]
	if u.Role != auth.RolePatient || !u.Active {
		t.Errorf("unexpected user %+v", u)
	}
	if u.PasswordHash == "secreto123" || !isBcryptHash(u.PasswordHash) {
		t.Error("expected password to be stored as bcrypt hash")
	}
	if env.patients.store[pid].UserID != uid {
		t.Error("patient not linked to user")
	}
}

func TestRegisterPatient_DuplicateEmailCreatesNothing(t *testing.T) {
	env := newTestEnv()
	if _, _, err := env.svc.RegisterPatient(context.Background(), validRegistration()); err != nil {
		t.Fatalf("first registration: %v", err)
	}

	again := validRegistration()
	again.NationalID = "999"
	_, _, err := env.svc.RegisterPatient(context.Background(), again)
	wantKind(t, err, apperr.KindValidation)
	if len(env.users.store) != 1 || len(env.patients.store) != 1 {
		t.Errorf("expected no new rows, got %d users / %d patients", len(env.users.store), len(env.patients.store))
	}
}

func TestRegisterPatient_DuplicateNationalID(t *testing.T) {
	env := newTestEnv()
	env.svc.RegisterPatient(context.Background(), validRegistration())

	again := validRegistration()
	again.Email = "otra@example.com"
	_, _, err := env.svc.RegisterPatient(context.Background(), again)
	wantKind(t, err, apperr.KindValidation)
	if len(env.users.store) != 1 {
		t.Errorf("expected no user to be created, got %d", len(env.users.store))
	}
}

func TestRegisterPatient_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *PatientRegistration)
	}{
		{"email", func(r *PatientRegistration) { r.Email = "" }},
		{"invalid email", func(r *PatientRegistration) { r.Email = "no-es-email" }},
		{"contrasena", func(r *PatientRegistration) { r.Password = "" }},
		{"long contrasena", func(r *PatientRegistration) { r.Password = strings.Repeat("a", 73) }},
		{"nombres", func(r *PatientRegistration) { r.FirstNames = " " }},
		{"apellidos", func(r *PatientRegistration) { r.LastNames = "" }},
		{"identificacion", func(r *PatientRegistration) { r.NationalID = "" }},
		{"fecha_nacimiento", func(r *PatientRegistration) { r.BirthDate = civil.Date{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			reg := validRegistration()
			tt.mutate(reg)
			_, _, err := env.svc.RegisterPatient(context.Background(), reg)
			wantKind(t, err, apperr.KindValidation)
			if len(env.users.store) != 0 {
				t.Error("expected no user to be created")
			}
		})
	}
}

func TestRegisterDoctor(t *testing.T) {
	env := newTestEnv()
	reg := &DoctorRegistration{
		Email:    "dr.ruiz@sanitas.co",
		Password: "clave",
		Doctor:   Doctor{FirstNames: "Luis", LastNames: "Ruiz", Specialty: "Cardiología", LicenseNumber: "RM-100"},
	}
	uid, did, err := env.svc.RegisterDoctor(context.Background(), reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.users.store[uid].Role != auth.RoleDoctor {
		t.Error("expected medico role")
	}

	got, err := env.svc.DoctorIDForUser(context.Background(), uid)
	if err != nil || got == nil || *got != did {
		t.Errorf("DoctorIDForUser = %v, %v", got, err)
	}

	reg.Email = "otro@sanitas.co"
	_, _, err = env.svc.RegisterDoctor(context.Background(), reg)
	wantKind(t, err, apperr.KindValidation)

	missing := &DoctorRegistration{Email: "x@sanitas.co", Password: "y", Doctor: Doctor{FirstNames: "A", LastNames: "B", Specialty: "C"}}
	_, _, err = env.svc.RegisterDoctor(context.Background(), missing)
	wantKind(t, err, apperr.KindValidation)
}

func TestDoctorIDForUser_None(t *testing.T) {
	env := newTestEnv()
	got, err := env.svc.DoctorIDForUser(context.Background(), 42)
	if err != nil || got != nil {
		t.Errorf("expected nil doctor id, got %v, %v", got, err)
	}
}

func TestCreateAdmin(t *testing.T) {
	env := newTestEnv()
	id, err := env.svc.CreateAdmin(context.Background(), "root@sanitas.co", "cambiar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.users.store[id].Role != auth.RoleAdmin {
		t.Error("expected administrador role")
	}
	_, err = env.svc.CreateAdmin(context.Background(), "root@sanitas.co", "cambiar")
	wantKind(t, err, apperr.KindValidation)
}

// =========== Patients ===========

func TestUpdatePatient(t *testing.T) {
	env := newTestEnv()
	_, pid, _ := env.svc.RegisterPatient(context.Background(), validRegistration())

	if err := env.svc.UpdatePatient(context.Background(), pid, []byte(`{"telefono":"3001234567","id":77}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := env.svc.GetPatient(context.Background(), pid)
	if p.Phone == nil || *p.Phone != "3001234567" {
		t.Errorf("telefono not updated: %v", p.Phone)
	}
	if p.FirstNames != "Ana" || p.ID != pid {
		t.Error("untouched fields changed")
	}

	wantKind(t, env.svc.UpdatePatient(context.Background(), pid, []byte(`{}`)), apperr.KindValidation)
	wantKind(t, env.svc.UpdatePatient(context.Background(), pid, []byte(`{"nombres":null}`)), apperr.KindValidation)
	wantKind(t, env.svc.UpdatePatient(context.Background(), 999, []byte(`{"telefono":"1"}`)), apperr.KindNotFound)
}

func TestDeletePatient_RemovesUser(t *testing.T) {
	env := newTestEnv()
	uid, pid, _ := env.svc.RegisterPatient(context.Background(), validRegistration())

	if err := env.svc.DeletePatient(context.Background(), pid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := env.users.store[uid]; ok {
		t.Error("expected user to be deleted with the patient")
	}
	wantKind(t, env.svc.DeletePatient(context.Background(), pid), apperr.KindNotFound)
}

type mockPatientFiles struct {
	names   map[int64][]string
	removed []string
}

func (m *mockPatientFiles) StoredNames(_ context.Context, patientID int64) ([]string, error) {
	return m.names[patientID], nil
}

func (m *mockPatientFiles) RemoveBlobs(_ context.Context, names []string) {
	m.removed = append(m.removed, names...)
}

func TestDeletePatient_RemovesBlobs(t *testing.T) {
	env := newTestEnv()
	_, pid, _ := env.svc.RegisterPatient(context.Background(), validRegistration())
	pf := &mockPatientFiles{names: map[int64][]string{pid: {"1_a.pdf", "1_b.dcm"}}}
	env.svc.SetPatientFiles(pf)

	if err := env.svc.DeletePatient(context.Background(), pid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pf.removed) != 2 || pf.removed[0] != "1_a.pdf" || pf.removed[1] != "1_b.dcm" {
		t.Errorf("removed = %v, want both blobs", pf.removed)
	}
}

func TestDeletePatient_MissingKeepsBlobs(t *testing.T) {
	env := newTestEnv()
	pf := &mockPatientFiles{names: map[int64][]string{}}
	env.svc.SetPatientFiles(pf)

	wantKind(t, env.svc.DeletePatient(context.Background(), 42), apperr.KindNotFound)
	if len(pf.removed) != 0 {
		t.Errorf("removed = %v, want none", pf.removed)
	}
}

func TestListPatients_OnlyActive(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	first := validRegistration()
	uid, _, _ := env.svc.RegisterPatient(ctx, first)

	second := validRegistration()
	second.Email = "beto@example.com"
	second.NationalID = "2"
	second.LastNames = "Alvarez"
	env.svc.RegisterPatient(ctx, second)

	items, total, err := env.svc.ListPatients(ctx, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || items[0].LastNames != "Alvarez" {
		t.Errorf("unexpected listing: total=%d first=%q", total, items[0].LastNames)
	}

	env.svc.SetActive(ctx, uid, false)
	_, total, _ = env.svc.ListPatients(ctx, 10, 0)
	if total != 1 {
		t.Errorf("expected inactive patient to be hidden, total=%d", total)
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.GetPatient(context.Background(), 12)
	wantKind(t, err, apperr.KindNotFound)
}

// =========== Accounts ===========

func TestSetActive_RevokesSessions(t *testing.T) {
	env := newTestEnv()
	uid, _, _ := env.svc.RegisterPatient(context.Background(), validRegistration())

	if err := env.svc.SetActive(context.Background(), uid, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.revoker.revoked) != 1 || env.revoker.revoked[0] != uid {
		t.Errorf("expected sessions of %d to be revoked, got %v", uid, env.revoker.revoked)
	}
	if err := env.svc.SetActive(context.Background(), uid, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.revoker.revoked) != 1 {
		t.Error("activation must not revoke sessions")
	}

	err := env.svc.SetActive(context.Background(), 404, false)
	wantKind(t, err, apperr.KindNotFound)
}

func TestDeleteDoctor(t *testing.T) {
	env := newTestEnv()
	reg := &DoctorRegistration{Email: "d@sanitas.co", Password: "p", Doctor: Doctor{FirstNames: "A", LastNames: "B", Specialty: "C", LicenseNumber: "L"}}
	uid, did, _ := env.svc.RegisterDoctor(context.Background(), reg)

	if err := env.svc.UpdateDoctor(context.Background(), did, []byte(`{"especialidad":"Pediatría"}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	d, _ := env.svc.GetDoctor(context.Background(), did)
	if d.Specialty != "Pediatría" {
		t.Errorf("especialidad = %q", d.Specialty)
	}

	if err := env.svc.DeleteDoctor(context.Background(), did); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := env.users.store[uid]; ok {
		t.Error("expected user to be deleted with the doctor")
	}
	wantKind(t, env.svc.DeleteDoctor(context.Background(), did), apperr.KindNotFound)
}
