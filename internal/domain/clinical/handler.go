package clinical

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanitas/hce/internal/platform/apperr"
	"github.com/sanitas/hce/internal/platform/auth"
)

type Handler struct {
	svc   *Service
	scope *auth.ScopeResolver
}

func NewHandler(svc *Service, scope *auth.ScopeResolver) *Handler {
	return &Handler{svc: svc, scope: scope}
}

// RegisterRoutes mounts the collection routes of every kind on the three
// surfaces: the generic /pacientes tree, the patient's own /api/paciente
// tree and the staff /api/medico tree.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	byID := []echo.MiddlewareFunc{auth.RequireAuth(), auth.PatientScope(h.scope, "id")}
	own := []echo.MiddlewareFunc{auth.RequireRole(auth.RolePatient), auth.PatientScope(h.scope, "")}
	staffByID := []echo.MiddlewareFunc{auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin), auth.PatientScope(h.scope, "id")}
	staff := auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin)

	for _, k := range Kinds() {
		for _, slug := range k.slugs() {
			api.GET("/pacientes/:id/"+slug, h.list(k), byID...)
			api.POST("/pacientes/:id/"+slug, h.create(k), byID...)
			api.PUT("/pacientes/:id/"+slug+"/:rid", h.update(k), byID...)
			api.DELETE("/pacientes/:id/"+slug+"/:rid", h.delete(k), byID...)

			api.GET("/api/paciente/"+slug, h.list(k), own...)
			api.POST("/api/paciente/"+slug, h.create(k), own...)
			api.PUT("/api/paciente/"+slug+"/:rid", h.update(k), own...)
			api.DELETE("/api/paciente/"+slug+"/:rid", h.delete(k), own...)

			api.GET("/api/medico/pacientes/:id/"+slug, h.list(k), staffByID...)
			api.POST("/api/medico/pacientes/:id/"+slug, h.create(k), staffByID...)
			api.PUT("/api/medico/"+slug+"/:rid", h.updateAny(k), staff)
			api.DELETE("/api/medico/"+slug+"/:rid", h.deleteAny(k), staff)
		}
	}
}

type message struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type createResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

func (h *Handler) list(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		pid, err := auth.ScopedPatientID(c)
		if err != nil {
			return err
		}
		items, err := h.svc.List(c.Request().Context(), k, pid)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, k.Key(): items})
	}
}

func (h *Handler) create(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		pid, err := auth.ScopedPatientID(c)
		if err != nil {
			return err
		}
		rec := k.Def().New()
		// Path parameters are not record fields; bind the body only.
		if err := (&echo.DefaultBinder{}).BindBody(c, rec); err != nil {
			return apperr.Validation("invalid request body")
		}
		id, err := h.svc.Create(c.Request().Context(), pid, rec)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, createResponse{Success: true, Message: "record created", ID: id})
	}
}

func (h *Handler) update(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		pid, err := auth.ScopedPatientID(c)
		if err != nil {
			return err
		}
		return h.applyUpdate(c, k, pid)
	}
}

func (h *Handler) delete(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		pid, err := auth.ScopedPatientID(c)
		if err != nil {
			return err
		}
		return h.applyDelete(c, k, pid)
	}
}

// updateAny serves staff routes that name only the record; the owning
// patient is looked up first.
func (h *Handler) updateAny(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		pid, err := h.owner(c, k)
		if err != nil {
			return err
		}
		return h.applyUpdate(c, k, pid)
	}
}

func (h *Handler) deleteAny(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		pid, err := h.owner(c, k)
		if err != nil {
			return err
		}
		return h.applyDelete(c, k, pid)
	}
}

func (h *Handler) owner(c echo.Context, k Kind) (int64, error) {
	rid, err := auth.ParseID(c.Param("rid"))
	if err != nil {
		return 0, err
	}
	return h.svc.Owner(c.Request().Context(), k, rid)
}

func (h *Handler) applyUpdate(c echo.Context, k Kind, pid int64) error {
	rid, err := auth.ParseID(c.Param("rid"))
	if err != nil {
		return err
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := h.svc.Update(c.Request().Context(), k, pid, rid, body); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, message{Success: true, Message: "record updated"})
}

func (h *Handler) applyDelete(c echo.Context, k Kind, pid int64) error {
	rid, err := auth.ParseID(c.Param("rid"))
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), k, pid, rid); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, message{Success: true, Message: "record deleted"})
}
