package files

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sanitas/hce/internal/platform/apperr"
	"github.com/sanitas/hce/internal/platform/auth"
)

// FormField is the multipart field carrying the upload.
const FormField = "archivo"

type Handler struct {
	svc   *Service
	scope *auth.ScopeResolver
}

func NewHandler(svc *Service, scope *auth.ScopeResolver) *Handler {
	return &Handler{svc: svc, scope: scope}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	byID := []echo.MiddlewareFunc{auth.RequireAuth(), auth.PatientScope(h.scope, "id")}
	staffByID := []echo.MiddlewareFunc{auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin), auth.PatientScope(h.scope, "id")}
	staff := auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin)

	api.GET("/pacientes/:id/archivos", h.List, byID...)
	api.POST("/pacientes/:id/archivos", h.Upload, byID...)
	api.GET("/archivos/:id/download", h.Download, auth.RequireAuth())
	api.DELETE("/archivos/:id", h.Delete, staff)

	api.GET("/api/paciente/archivos", h.List, auth.RequireRole(auth.RolePatient), auth.PatientScope(h.scope, ""))
	api.GET("/api/medico/pacientes/:id/archivos", h.List, staffByID...)
	api.POST("/api/medico/pacientes/:id/archivos", h.Upload, staffByID...)
	api.DELETE("/api/medico/archivos/:id", h.Delete, staff)
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FileID   int64  `json:"archivo_id"`
	Filename string `json:"filename"`
}

type listResponse struct {
	Success bool           `json:"success"`
	Files   []*MedicalFile `json:"archivos"`
}

func (h *Handler) Upload(c echo.Context) error {
	pid, err := auth.ScopedPatientID(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile(FormField)
	if err != nil {
		// A body cut off by the size limit keeps its 413.
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return apperr.Validation("no file provided")
	}
	src, err := fh.Open()
	if err != nil {
		return apperr.Internal("open upload", err)
	}
	defer src.Close()

	f, err := h.svc.Upload(c.Request().Context(), UploadRequest{
		PatientID:   pid,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        src,
		Category:    c.FormValue("categoria"),
		Description: c.FormValue("descripcion"),
		Uploader:    auth.CurrentIdentity(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, uploadResponse{
		Success:  true,
		Message:  "file uploaded",
		FileID:   f.ID,
		Filename: f.StoredName,
	})
}

func (h *Handler) List(c echo.Context) error {
	pid, err := auth.ScopedPatientID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.List(c.Request().Context(), pid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Success: true, Files: items})
}

// Download streams a file after checking the caller may see its patient.
func (h *Handler) Download(c echo.Context) error {
	id, err := auth.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	f, err := h.svc.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := h.scope.Resolve(ctx, auth.CurrentIdentity(c), &f.PatientID); err != nil {
		return err
	}

	rc, err := h.svc.Content(ctx, f)
	if err != nil {
		return err
	}
	defer rc.Close()

	contentType := "application/octet-stream"
	if f.ContentType != nil && *f.ContentType != "" {
		contentType = *f.ContentType
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, strings.ReplaceAll(f.OriginalName, `"`, "")))
	return c.Stream(http.StatusOK, contentType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := auth.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{true, "file deleted"})
}
