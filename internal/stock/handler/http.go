package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nutree/stock-service/internal/apperr"
	"github.com/nutree/stock-service/internal/auth"
	"github.com/nutree/stock-service/internal/stock"
	"github.com/nutree/stock-service/internal/stock/dto"
	"github.com/nutree/stock-service/pkg/logger"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps the ledger error taxonomy onto HTTP statuses. Callers
// that race each other see 409 and may retry; invariant breaches are 500
// because the record is now frozen and needs a physical count.
func writeError(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindInsufficientStock, apperr.KindIllegalTransition, apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindInvalidOperation, apperr.KindOverflow, apperr.KindUnderflow:
		status = http.StatusBadRequest
	case apperr.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	return c.JSON(status, ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

type StockHandler struct {
	uc     stock.UseCase
	logger logger.ZapLogger
}

func NewStockHandler(uc stock.UseCase, logger logger.ZapLogger) *StockHandler {
	return &StockHandler{uc: uc, logger: logger}
}

func (h *StockHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/stock-records")
	g.POST("", h.createRecord)
	g.GET("", h.listRecords)
	g.GET("/:id", h.getRecord)
	g.DELETE("/:id", h.deactivateRecord)
	g.GET("/:id/availability", h.availability)
	g.POST("/:id/receive", h.receive)
	g.POST("/:id/issue", h.issue)
	g.POST("/:id/adjust", h.adjust)
	g.POST("/:id/count", h.count)
	g.POST("/:id/reserve", h.reserve)
	g.POST("/:id/transfer/:dst", h.transfer)

	r := e.Group("/reservations")
	r.POST("/:id/commit", h.commitReservation)
	r.POST("/:id/release", h.releaseReservation)

	e.GET("/movements", h.listMovements)
	e.GET("/movements/search", h.searchMovements)
	e.GET("/valuation", h.valuation)
	e.GET("/expiring", h.expiring)
}

// actorID reads the opaque actor token from the request; absent headers
// fall back to "system" like background jobs do.
func actorID(c echo.Context) string {
	ctx := auth.WithActor(c.Request().Context(), c.Request().Header.Get("X-Actor-ID"))
	return auth.GetActorID(ctx)
}

func (h *StockHandler) createRecord(c echo.Context) error {
	var input dto.CreateRecordInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Kind: string(apperr.KindInvalidOperation)})
	}

	rec, err := h.uc.CreateRecord(c.Request().Context(), &input)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *StockHandler) getRecord(c echo.Context) error {
	rec, err := h.uc.GetRecord(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *StockHandler) listRecords(c echo.Context) error {
	f := dto.RecordFilters{
		ProductID:       c.QueryParam("product_id"),
		BranchID:        c.QueryParam("branch_id"),
		IncludeInactive: c.QueryParam("include_inactive") == "true",
		Page:            queryInt(c, "page", 1),
		PageSize:        queryInt(c, "page_size", 20),
	}

	records, total, err := h.uc.FindRecords(c.Request().Context(), &f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"records": records, "total": total})
}

func (h *StockHandler) deactivateRecord(c echo.Context) error {
	if err := h.uc.DeactivateRecord(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *StockHandler) availability(c echo.Context) error {
	av, err := h.uc.GetAvailability(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, av)
}

func (h *StockHandler) receive(c echo.Context) error {
	var input dto.ReceiveInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Kind: string(apperr.KindInvalidOperation)})
	}
	input.RecordID = c.Param("id")
	input.ActorID = actorID(c)

	m, err := h.uc.Receive(c.Request().Context(), &input)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *StockHandler) issue(c echo.Context) error {
	var input dto.IssueInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Kind: string(apperr.KindInvalidOperation)})
	}
	input.RecordID = c.Param("id")
	input.ActorID = actorID(c)

	m, err := h.uc.Issue(c.Request().Context(), &input)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *StockHandler) adjust(c echo.Context) error {
	var input dto.AdjustInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Kind: string(apperr.KindInvalidOperation)})
	}
	input.RecordID = c.Param("id")
	input.ActorID = actorID(c)

	m, err := h.uc.Adjust(c.Request().Context(), &input)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *StockHandler) count(c echo.Context) error {
	var input dto.CountInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Kind: string(apperr.KindInvalidOperation)})
	}
	input.RecordID = c.Param("id")
	input.ActorID = actorID(c)

	pc, err := h.uc.Count(c.Request().Context(), &input)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pc)
}

func (h *StockHandler) reserve(c echo.Context) error {
	var input dto.ReserveInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Kind: string(apperr.KindInvalidOperation)})
	}
	input.RecordID = c.Param("id")

	res, err := h.uc.Reserve(c.Request().Context(), &input)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *StockHandler) transfer(c echo.Context) error {
	var input dto.TransferInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Kind: string(apperr.KindInvalidOperation)})
	}
	input.SourceRecordID = c.Param("id")
	input.TargetRecordID = c.Param("dst")
	input.ActorID = actorID(c)

	out, in, err := h.uc.Transfer(c.Request().Context(), &input)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"out": out, "in": in})
}

func (h *StockHandler) commitReservation(c echo.Context) error {
	m, err := h.uc.Commit(c.Request().Context(), c.Param("id"), actorID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *StockHandler) releaseReservation(c echo.Context) error {
	if err := h.uc.Release(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *StockHandler) listMovements(c echo.Context) error {
	f := dto.MovementFilters{
		StockRecordID: c.QueryParam("stock_record_id"),
		ProductID:     c.QueryParam("product_id"),
		BranchID:      c.QueryParam("branch_id"),
		Kind:          c.QueryParam("kind"),
		ReferenceID:   c.QueryParam("reference_id"),
		StartDate:     queryTime(c, "start_date"),
		EndDate:       queryTime(c, "end_date"),
		Page:          queryInt(c, "page", 1),
		PageSize:      queryInt(c, "page_size", 50),
	}

	movements, total, err := h.uc.ListMovements(c.Request().Context(), &f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"movements": movements, "total": total})
}

func (h *StockHandler) searchMovements(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "q is required", Kind: string(apperr.KindInvalidOperation)})
	}

	movements, total, err := h.uc.SearchMovements(c.Request().Context(), q, queryInt(c, "page", 1), queryInt(c, "page_size", 50))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"movements": movements, "total": total})
}

func (h *StockHandler) valuation(c echo.Context) error {
	var branchID *string
	if v := c.QueryParam("branch_id"); v != "" {
		branchID = &v
	}

	val, err := h.uc.Valuation(c.Request().Context(), branchID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, val)
}

func (h *StockHandler) expiring(c echo.Context) error {
	days := queryInt(c, "within_days", 7)

	entries, err := h.uc.ListExpiring(c.Request().Context(), days)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expiring": entries})
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// queryTime parses an RFC 3339 query param; absent or unparseable
// values leave the filter unset, like queryInt falls back to defaults.
func queryTime(c echo.Context, name string) *time.Time {
	v := c.QueryParam(name)
	if v == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &ts
}
