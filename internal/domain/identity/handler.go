package identity

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanitas/hce/internal/platform/apperr"
	"github.com/sanitas/hce/internal/platform/auth"
	"github.com/sanitas/hce/internal/platform/session"
	"github.com/sanitas/hce/pkg/pagination"
)

// Sessions starts and ends login sessions on the response.
type Sessions interface {
	Start(c echo.Context, userID int64, email string, role auth.Role) (*session.Session, error)
	End(c echo.Context) error
}

type Handler struct {
	svc      *Service
	sessions Sessions
	scope    *auth.ScopeResolver
}

func NewHandler(svc *Service, sessions Sessions, scope *auth.ScopeResolver) *Handler {
	return &Handler{svc: svc, sessions: sessions, scope: scope}
}

// RegisterRoutes registers the account, patient and doctor routes. public
// is applied to the unauthenticated login and registration endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group, public ...echo.MiddlewareFunc) {
	authed := auth.RequireAuth()
	staff := auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin)
	admin := auth.RequireRole(auth.RoleAdmin)
	own := []echo.MiddlewareFunc{auth.RequireRole(auth.RolePatient), auth.PatientScope(h.scope, "")}

	api.POST("/login", h.Login, public...)
	api.POST("/register", h.Register, public...)
	api.POST("/logout", h.Logout, authed)
	api.GET("/me", h.Me, authed)

	api.GET("/pacientes", h.ListPatients, staff)
	api.POST("/pacientes", h.Register, staff)
	api.GET("/pacientes/:id", h.GetPatient, authed, auth.PatientScope(h.scope, "id"))
	api.PUT("/pacientes/:id", h.UpdatePatient, staff)
	api.DELETE("/pacientes/:id", h.DeletePatient, admin)

	api.POST("/register-medico", h.RegisterDoctor, admin)
	api.GET("/medicos", h.ListDoctors, admin)
	api.POST("/medicos", h.RegisterDoctor, admin)
	api.GET("/medicos/:id", h.GetDoctor, admin)
	api.PUT("/medicos/:id", h.UpdateDoctor, admin)
	api.DELETE("/medicos/:id", h.DeleteDoctor, admin)
	api.PUT("/usuarios/:id/activo", h.SetActive, admin)

	api.GET("/mi-informacion", h.MyInfo, own...)
	api.GET("/api/paciente/info", h.MyInfo, own...)
}

type message struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(msg string) message { return message{Success: true, Message: msg} }

func bindJSON(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, apperr.Validation("invalid request body")
	}
	return body, nil
}

// -- Authentication --

type loginResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Email    string    `json:"email"`
	Role     auth.Role `json:"rol"`
	Redirect string    `json:"redirect"`
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	u, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	if _, err := h.sessions.Start(c, u.ID, u.Email, u.Role); err != nil {
		return apperr.Internal("start session", err)
	}
	return c.JSON(http.StatusOK, loginResponse{
		Success:  true,
		Message:  "login successful",
		Email:    u.Email,
		Role:     u.Role,
		Redirect: u.Role.DashboardPath(),
	})
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.sessions.End(c); err != nil {
		return apperr.Internal("end session", err)
	}
	return c.JSON(http.StatusOK, ok("session closed"))
}

type meResponse struct {
	Success   bool      `json:"success"`
	UserID    int64     `json:"usuario_id"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"rol"`
	Redirect  string    `json:"redirect"`
	PatientID *int64    `json:"paciente_id,omitempty"`
}

func (h *Handler) Me(c echo.Context) error {
	id := auth.CurrentIdentity(c)
	resp := meResponse{
		Success:  true,
		UserID:   id.UserID,
		Email:    id.Email,
		Role:     id.Role,
		Redirect: id.Role.DashboardPath(),
	}
	if id.Role == auth.RolePatient {
		pid, err := h.svc.PatientIDForUser(c.Request().Context(), id.UserID)
		switch {
		case err == nil:
			resp.PatientID = &pid
		case !errors.Is(err, auth.ErrNoPatient):
			return apperr.Internal("resolve patient", err)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// -- Registration --

type registerPatientResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	UserID    int64  `json:"usuario_id"`
	PatientID int64  `json:"paciente_id"`
}

func (h *Handler) Register(c echo.Context) error {
	var reg PatientRegistration
	if err := bindJSON(c, &reg); err != nil {
		return err
	}
	uid, pid, err := h.svc.RegisterPatient(c.Request().Context(), &reg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, registerPatientResponse{
		Success:   true,
		Message:   "registration successful",
		UserID:    uid,
		PatientID: pid,
	})
}

type registerDoctorResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	UserID   int64  `json:"usuario_id"`
	DoctorID int64  `json:"medico_id"`
}

func (h *Handler) RegisterDoctor(c echo.Context) error {
	var reg DoctorRegistration
	if err := bindJSON(c, &reg); err != nil {
		return err
	}
	uid, did, err := h.svc.RegisterDoctor(c.Request().Context(), &reg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, registerDoctorResponse{
		Success:  true,
		Message:  "doctor registered",
		UserID:   uid,
		DoctorID: did,
	})
}

// -- Patients --

type patientResponse struct {
	Success bool     `json:"success"`
	Patient *Patient `json:"paciente"`
}

type patientListResponse struct {
	Success  bool       `json:"success"`
	Patients []*Patient `json:"pacientes"`
	pagination.Page
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, patientListResponse{Success: true, Patients: items, Page: pg.Page(total)})
}

func (h *Handler) GetPatient(c echo.Context) error {
	pid, err := auth.ScopedPatientID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), pid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, patientResponse{Success: true, Patient: p})
}

// MyInfo returns the caller's own patient profile.
func (h *Handler) MyInfo(c echo.Context) error {
	return h.GetPatient(c)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := auth.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if err := h.svc.UpdatePatient(c.Request().Context(), id, body); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("patient updated"))
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := auth.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("patient deleted"))
}

// -- Doctors --

type doctorResponse struct {
	Success bool    `json:"success"`
	Doctor  *Doctor `json:"medico"`
}

type doctorListResponse struct {
	Success bool      `json:"success"`
	Doctors []*Doctor `json:"medicos"`
	pagination.Page
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Doctor{}
	}
	return c.JSON(http.StatusOK, doctorListResponse{Success: true, Doctors: items, Page: pg.Page(total)})
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := auth.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doctorResponse{Success: true, Doctor: d})
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := auth.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if err := h.svc.UpdateDoctor(c.Request().Context(), id, body); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("doctor updated"))
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := auth.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("doctor deleted"))
}

// -- Accounts --

type setActiveRequest struct {
	Active *bool `json:"activo"`
}

func (h *Handler) SetActive(c echo.Context) error {
	id, err := auth.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	var req setActiveRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.Active == nil {
		return apperr.Validation("activo is required")
	}
	if err := h.svc.SetActive(c.Request().Context(), id, *req.Active); err != nil {
		return err
	}
	if *req.Active {
		return c.JSON(http.StatusOK, ok("user activated"))
	}
	return c.JSON(http.StatusOK, ok("user deactivated"))
}
