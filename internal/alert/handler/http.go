package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/nutree/stock-service/internal/alert"
	"github.com/nutree/stock-service/internal/apperr"
)

type AlertHandler struct {
	uc alert.UseCase
}

func NewAlertHandler(uc alert.UseCase) *AlertHandler {
	return &AlertHandler{uc: uc}
}

func (h *AlertHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/alerts", h.list)
}

func (h *AlertHandler) list(c echo.Context) error {
	f := alert.Filters{BranchID: c.QueryParam("branch_id")}
	if v := c.QueryParam("within_days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid within_days"})
		}
		f.WithinDays = d
	}

	items, err := h.uc.ListAlerts(c.Request().Context(), c.QueryParam("kind"), &f)
	if err != nil {
		if apperr.IsKind(err, apperr.KindInvalidOperation) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"alerts": items, "total": len(items)})
}
