package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/odontia/odontia/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/catalog", auth.RequireRole("dentist", "assistant", "reception"))

	g.GET("/templates", h.ListTemplates)
	g.PUT("/templates", h.ReplaceTemplates, auth.RequireRole("dentist"))

	g.GET("/signers", h.ListSigners)
	g.POST("/signers", h.CreateSigner, auth.RequireRole("dentist"))
	g.PATCH("/signers/:id", h.SetSignerActive, auth.RequireRole("dentist"))

	g.GET("/reason-types", h.ListReasonTypes)
	g.POST("/reason-types", h.CreateReasonType, auth.RequireRole("dentist"))
	g.PATCH("/reason-types/:id", h.SetReasonTypeActive, auth.RequireRole("dentist"))

	g.GET("/payment-methods", h.ListPaymentMethods)
	g.POST("/payment-methods", h.CreatePaymentMethod, auth.RequireRole("dentist", "reception"))
	g.PATCH("/payment-methods/:id", h.SetPaymentMethodActive, auth.RequireRole("dentist"))
}

func includeInactive(c echo.Context) bool {
	return c.QueryParam("includeInactive") == "true"
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func httpError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) ListTemplates(c echo.Context) error {
	templates, err := h.svc.Templates(c.Request().Context(), includeInactive(c))
	if err != nil {
		return httpError(err)
	}
	if templates == nil {
		templates = []ProcedureTemplate{}
	}
	return c.JSON(http.StatusOK, templates)
}

type replaceTemplatesRequest struct {
	Templates []ProcedureTemplate `json:"templates"`
}

func (h *Handler) ReplaceTemplates(c echo.Context) error {
	var req replaceTemplatesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	stored, err := h.svc.ReplaceTemplates(c.Request().Context(), req.Templates)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, stored)
}

type createNameRequest struct {
	Name string `json:"name"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) ListSigners(c echo.Context) error {
	signers, err := h.svc.Signers(c.Request().Context(), includeInactive(c))
	if err != nil {
		return httpError(err)
	}
	if signers == nil {
		signers = []Signer{}
	}
	return c.JSON(http.StatusOK, signers)
}

func (h *Handler) CreateSigner(c echo.Context) error {
	var req createNameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.svc.CreateSigner(c.Request().Context(), req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) SetSignerActive(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetSignerActive(c.Request().Context(), id, req.Active); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListReasonTypes(c echo.Context) error {
	reasons, err := h.svc.ReasonTypes(c.Request().Context(), includeInactive(c))
	if err != nil {
		return httpError(err)
	}
	if reasons == nil {
		reasons = []ReasonType{}
	}
	return c.JSON(http.StatusOK, reasons)
}

func (h *Handler) CreateReasonType(c echo.Context) error {
	var req createNameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rt, err := h.svc.CreateReasonType(c.Request().Context(), req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rt)
}

func (h *Handler) SetReasonTypeActive(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetReasonTypeActive(c.Request().Context(), id, req.Active); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPaymentMethods(c echo.Context) error {
	methods, err := h.svc.PaymentMethods(c.Request().Context(), includeInactive(c))
	if err != nil {
		return httpError(err)
	}
	if methods == nil {
		methods = []PaymentMethod{}
	}
	return c.JSON(http.StatusOK, methods)
}

func (h *Handler) CreatePaymentMethod(c echo.Context) error {
	var req createNameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.CreatePaymentMethod(c.Request().Context(), req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) SetPaymentMethodActive(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetPaymentMethodActive(c.Request().Context(), id, req.Active); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
