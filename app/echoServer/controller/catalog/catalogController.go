package catalog

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	catalogsvc "github.com/wmuth/SoundGoodDB/service/catalog"
)

type Controller struct {
	Svc catalogsvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

// List the instrument catalog
// @Summary      List instruments
// @Description  Catalog rows with derived availability; ?type=gui filters by type prefix
// @Tags         instruments
// @Produce      json
// @Param        type  query  string  false  "Instrument type prefix"
// @Success      200  {object}  map[string]any
// @Router       /v1/instruments [get]
func (h *Controller) List(c echo.Context) error {
	rows, err := h.Svc.List(c.Request().Context(), c.QueryParam("type"))
	if err != nil {
		h.Log.Error("instrument list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/instruments/:id
func (h *Controller) Detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	ia, err := h.Svc.Detail(c.Request().Context(), int32(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "instrument not found"})
		}
		h.Log.Error("instrument detail", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, ia)
}

// POST /v1/instruments (admin)
func (h *Controller) Create(c echo.Context) error {
	var req CreateInstrumentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}
	id, err := h.Svc.Create(c.Request().Context(), req.TypeID, req.Brand, req.Model, req.Price, req.Count)
	if err != nil {
		h.Log.Error("instrument create", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"instrument_id": id})
}
