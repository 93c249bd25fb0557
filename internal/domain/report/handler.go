package report

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanitas/hce/internal/platform/apperr"
	"github.com/sanitas/hce/internal/platform/auth"
)

type Handler struct {
	composer *Composer
	scope    *auth.ScopeResolver
	now      func() time.Time
}

func NewHandler(composer *Composer, scope *auth.ScopeResolver) *Handler {
	return &Handler{composer: composer, scope: scope, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	byID := []echo.MiddlewareFunc{auth.RequireAuth(), auth.PatientScope(h.scope, "id")}
	own := []echo.MiddlewareFunc{auth.RequireRole(auth.RolePatient), auth.PatientScope(h.scope, "")}
	staffByID := []echo.MiddlewareFunc{auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin), auth.PatientScope(h.scope, "id")}

	api.GET("/pacientes/:id/historial-completo", h.History, byID...)
	api.GET("/pacientes/:id/reporte-pdf", h.PDF, byID...)
	api.GET("/api/paciente/historial-completo", h.History, own...)
	api.GET("/api/paciente/reporte-pdf", h.PDF, own...)
	api.GET("/api/medico/pacientes/:id/pdf", h.PDF, staffByID...)
}

type historyResponse struct {
	Success bool     `json:"success"`
	History *History `json:"historial"`
}

func (h *Handler) compose(c echo.Context) (*History, error) {
	pid, err := auth.ScopedPatientID(c)
	if err != nil {
		return nil, err
	}
	return h.composer.Compose(c.Request().Context(), pid)
}

func (h *Handler) History(c echo.Context) error {
	hist, err := h.compose(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, historyResponse{Success: true, History: hist})
}

// PDF renders the history into memory first so a rendering failure can
// still be reported as a JSON error.
func (h *Handler) PDF(c echo.Context) error {
	hist, err := h.compose(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := RenderPDF(&buf, hist, h.now()); err != nil {
		return apperr.Internal("render report", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, Filename(hist)))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}
