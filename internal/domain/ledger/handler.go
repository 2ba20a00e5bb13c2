package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/odontia/odontia/internal/domain/chart"
	"github.com/odontia/odontia/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients/:patientId/ledger", auth.RequireRole("dentist", "assistant"))

	g.GET("/sessions", h.ListSessions)
	g.GET("/editable", h.GetEditable)
	g.POST("/sessions", h.CreateDraft)
	g.PATCH("/sessions/:sessionId", h.UpdateSession)
	g.DELETE("/sessions/:sessionId", h.DeleteDraft)
	g.GET("/sessions/:sessionId/balance", h.GetBalance)

	g.POST("/sessions/:sessionId/lines", h.AddLine)
	g.PATCH("/sessions/:sessionId/lines/:lineId", h.UpdateLine)
	g.DELETE("/sessions/:sessionId/lines/:lineId", h.RemoveLine)

	g.POST("/commit", h.Commit)
	g.POST("/payments", h.QuickPayment)

	g.POST("/sessions/:sessionId/edit-mode", h.EnterEditMode)
	g.POST("/edit-mode/confirm", h.ConfirmEditMode)
	g.POST("/edit-mode/cancel", h.CancelEditMode)
}

// Wire ids use the legacy sign convention: saved row ids are positive,
// draft-local ids negative.
func parseSessionKey(c echo.Context) (SessionKey, error) {
	id, err := strconv.ParseInt(c.Param("sessionId"), 10, 64)
	if err != nil {
		return SessionKey{}, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	return FromLegacy(id), nil
}

func parsePatientID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	return id, nil
}

// httpError distinguishes rule violations (the ledger refused, nothing
// changed) from persistence faults (retry may help) so clients can tell
// the two apart.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSavedImmutable),
		errors.Is(err, ErrNotEditable),
		errors.Is(err, ErrSaveInFlight),
		errors.Is(err, ErrEditModeActive),
		errors.Is(err, ErrNoEditMode):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrConfirmationRequired),
		errors.Is(err, ErrNoDrafts),
		errors.Is(err, ErrManualBudgetOff):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type sessionView struct {
	*Session
	LegacyID int64 `json:"legacy_id"`
}

func viewOf(s *Session) sessionView {
	return sessionView{Session: s, LegacyID: s.Key.Legacy()}
}

func (h *Handler) ListSessions(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	sessions, err := h.svc.Sessions(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, viewOf(s))
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) GetEditable(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	key, ok, err := h.svc.EditableKey(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return c.JSON(http.StatusOK, map[string]interface{}{"editable": false})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"editable":  true,
		"key":       key,
		"legacy_id": key.Legacy(),
	})
}

type createDraftRequest struct {
	Date        string        `json:"date"`
	ReasonType  string        `json:"reason_type"`
	FromCatalog bool          `json:"from_catalog"`
	Diagnostic  bool          `json:"diagnostic"`
	ToothDx     chart.ToothDx `json:"tooth_dx,omitempty"`
}

func (h *Handler) CreateDraft(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	var req createDraftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	var s *Session
	if req.Diagnostic {
		s, err = h.svc.NewDiagnosticDraft(ctx, patientID, req.Date, req.ReasonType, req.ToothDx)
	} else {
		s, err = h.svc.NewDraft(ctx, patientID, req.Date, req.ReasonType, req.FromCatalog)
	}
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || isSentinel(err) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, viewOf(s))
}

type updateSessionRequest struct {
	Date            *string        `json:"date"`
	ReasonType      *string        `json:"reason_type"`
	ReasonDetail    *string        `json:"reason_detail"`
	Signer          *string        `json:"signer"`
	DiagnosisText   *string        `json:"diagnosis_text"`
	ClinicalNotes   *string        `json:"clinical_notes"`
	Discount        *int64         `json:"discount"`
	Payment         *int64         `json:"payment"`
	PaymentMethodID *int64         `json:"payment_method_id"`
	PaymentNotes    *string        `json:"payment_notes"`
	ManualBudget    *bool          `json:"manual_budget"`
	Budget          *int64         `json:"budget"`
	ToothDx         *chart.ToothDx `json:"tooth_dx"`
}

func (h *Handler) UpdateSession(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	key, err := parseSessionKey(c)
	if err != nil {
		return err
	}
	var req updateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// The whole PATCH is applied atomically: a refused field rolls back
	// everything applied before it.
	err = h.svc.Mutate(c.Request().Context(), patientID, func(l *Ledger) error {
		return l.Update(key, func() error {
			return applySessionPatch(l, key, &req)
		})
	})
	if err != nil {
		if isSentinel(err) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s, err := h.svc.Session(c.Request().Context(), patientID, key)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, viewOf(s))
}

func applySessionPatch(l *Ledger, key SessionKey, req *updateSessionRequest) error {
	if req.Date != nil {
		if err := validateDate(*req.Date); err != nil {
			return err
		}
		if err := l.SetDate(key, *req.Date); err != nil {
			return err
		}
	}
	if req.ReasonType != nil || req.ReasonDetail != nil {
		s, err := l.Session(key)
		if err != nil {
			return err
		}
		reasonType, reasonDetail := s.ReasonType, s.ReasonDetail
		if req.ReasonType != nil {
			reasonType = *req.ReasonType
		}
		if req.ReasonDetail != nil {
			reasonDetail = *req.ReasonDetail
		}
		if err := l.SetReason(key, reasonType, reasonDetail); err != nil {
			return err
		}
	}
	if req.Signer != nil {
		if err := l.SetSigner(key, *req.Signer); err != nil {
			return err
		}
	}
	if req.DiagnosisText != nil {
		if err := l.SetDiagnosisText(key, *req.DiagnosisText); err != nil {
			return err
		}
	}
	if req.ClinicalNotes != nil {
		if err := l.SetClinicalNotes(key, *req.ClinicalNotes); err != nil {
			return err
		}
	}
	if req.Discount != nil {
		if err := l.SetDiscount(key, *req.Discount); err != nil {
			return err
		}
	}
	if req.Payment != nil {
		if err := l.SetPayment(key, *req.Payment); err != nil {
			return err
		}
	}
	if req.PaymentMethodID != nil {
		if err := l.SetPaymentMethod(key, req.PaymentMethodID); err != nil {
			return err
		}
	}
	if req.PaymentNotes != nil {
		if err := l.SetPaymentNotes(key, *req.PaymentNotes); err != nil {
			return err
		}
	}
	if req.ToothDx != nil {
		if err := l.SetToothDx(key, *req.ToothDx); err != nil {
			return err
		}
	}
	if req.ManualBudget != nil {
		if err := l.SetManualBudget(key, *req.ManualBudget); err != nil {
			return err
		}
	}
	if req.Budget != nil {
		if err := l.SetBudget(key, *req.Budget); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) DeleteDraft(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	key, err := parseSessionKey(c)
	if err != nil {
		return err
	}
	confirmed := c.QueryParam("confirm") == "true"
	if err := h.svc.DeleteDraft(c.Request().Context(), patientID, key, confirmed); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetBalance(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	key, err := parseSessionKey(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	previous, err := h.svc.PreviousBalance(ctx, patientID, key)
	if err != nil {
		return httpError(err)
	}
	owed, err := h.svc.TotalOwed(ctx, patientID, key)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{
		"previous_balance": previous,
		"total_owed":       owed,
	})
}

type addLineRequest struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

func (h *Handler) AddLine(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	key, err := parseSessionKey(c)
	if err != nil {
		return err
	}
	var req addLineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err = h.svc.Mutate(c.Request().Context(), patientID, func(l *Ledger) error {
		return l.AddLine(key, req.Name, req.UnitPrice, req.Quantity)
	})
	if err != nil {
		if isSentinel(err) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s, err := h.svc.Session(c.Request().Context(), patientID, key)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, viewOf(s))
}

type updateLineRequest struct {
	Name      *string `json:"name"`
	UnitPrice *int64  `json:"unit_price"`
	Quantity  *int64  `json:"quantity"`
	Toggle    bool    `json:"toggle"`
}

func (h *Handler) UpdateLine(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	key, err := parseSessionKey(c)
	if err != nil {
		return err
	}
	lineID, err := strconv.ParseInt(c.Param("lineId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid line id")
	}
	var req updateLineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err = h.svc.Mutate(c.Request().Context(), patientID, func(l *Ledger) error {
		if req.Toggle {
			return l.ToggleLine(key, lineID)
		}
		if req.Name != nil || req.UnitPrice != nil {
			s, err := l.Session(key)
			if err != nil {
				return err
			}
			line := findLine(s, lineID)
			if line == nil {
				return ErrSessionNotFound
			}
			name, price := line.Name, line.UnitPrice
			if req.Name != nil {
				name = *req.Name
			}
			if req.UnitPrice != nil {
				price = *req.UnitPrice
			}
			if err := l.UpdateLine(key, lineID, name, price); err != nil {
				return err
			}
		}
		if req.Quantity != nil {
			return l.SetLineQuantity(key, lineID, *req.Quantity)
		}
		return nil
	})
	if err != nil {
		if isSentinel(err) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s, err := h.svc.Session(c.Request().Context(), patientID, key)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, viewOf(s))
}

func (h *Handler) RemoveLine(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	key, err := parseSessionKey(c)
	if err != nil {
		return err
	}
	lineID, err := strconv.ParseInt(c.Param("lineId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid line id")
	}

	err = h.svc.Mutate(c.Request().Context(), patientID, func(l *Ledger) error {
		return l.RemoveLine(key, lineID)
	})
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Commit(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	saved, err := h.svc.Commit(c.Request().Context(), patientID)
	if err != nil {
		if isSentinel(err) {
			return httpError(err)
		}
		// Persistence fault: drafts are intact, the client may retry.
		return echo.NewHTTPError(http.StatusInternalServerError, "could not save sessions, drafts kept: "+err.Error())
	}
	views := make([]sessionView, 0, len(saved))
	for _, s := range saved {
		views = append(views, viewOf(s))
	}
	return c.JSON(http.StatusOK, views)
}

type quickPaymentRequest struct {
	Date            string `json:"date"`
	Amount          int64  `json:"amount"`
	PaymentMethodID *int64 `json:"payment_method_id"`
	Signer          string `json:"signer"`
}

func (h *Handler) QuickPayment(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	var req quickPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.svc.QuickPayment(c.Request().Context(), patientID, req.Date, req.Amount, req.PaymentMethodID, req.Signer)
	if err != nil {
		if isSentinel(err) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, viewOf(s))
}

func (h *Handler) EnterEditMode(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	key, err := parseSessionKey(c)
	if err != nil {
		return err
	}
	if err := h.svc.EnterEditMode(c.Request().Context(), patientID, key); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ConfirmEditMode(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	templates, err := h.svc.ConfirmEditMode(c.Request().Context(), patientID)
	if err != nil {
		if isSentinel(err) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "could not save templates: "+err.Error())
	}
	return c.JSON(http.StatusOK, templates)
}

func (h *Handler) CancelEditMode(c echo.Context) error {
	patientID, err := parsePatientID(c)
	if err != nil {
		return err
	}
	if err := h.svc.CancelEditMode(c.Request().Context(), patientID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func isSentinel(err error) bool {
	for _, sentinel := range []error{
		ErrSessionNotFound, ErrNotEditable, ErrSavedImmutable,
		ErrConfirmationRequired, ErrNoDrafts, ErrSaveInFlight,
		ErrEditModeActive, ErrNoEditMode, ErrManualBudgetOff,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
