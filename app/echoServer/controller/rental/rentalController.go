package rental

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	studentrepo "github.com/wmuth/SoundGoodDB/repository/student"
	alloc "github.com/wmuth/SoundGoodDB/service/allocation"
)

type Controller struct {
	Svc      alloc.Service
	Students studentrepo.Repo
	V        *validator.Validate
	Log      *slog.Logger
}

// Request a rental for a student
// @Summary      Request rental
// @Description  Decide a rent request against quota and availability
// @Tags         rentals
// @Accept       json
// @Produce      json
// @Param        payload  body  RequestRentalReq  true  "Rental request"
// @Success      201  {object}  map[string]any "granted"
// @Failure      400  {object}  map[string]any
// @Failure      404  {object}  map[string]any "unknown student or instrument"
// @Failure      409  {object}  map[string]any "quota exceeded or out of stock"
// @Router       /v1/rentals [post]
func (h *Controller) Request(c echo.Context) error {
	var req RequestRentalReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}

	out, err := h.Svc.Request(c.Request().Context(), req.StudentID, req.InstrumentID, req.StartDate)
	if err != nil {
		return h.mapError(c, "rental request", err)
	}
	if out.Status == alloc.StatusRejected {
		return c.JSON(http.StatusConflict, echo.Map{
			"status": out.Status,
			"reason": out.Reason,
		})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"status": out.Status,
		"rental": out.Rental,
	})
}

// Return a rental by id
// @Summary      Return rental
// @Tags         rentals
// @Accept       json
// @Produce      json
// @Param        id       path  int              true   "Rental id"
// @Param        payload  body  ReturnRentalReq  false  "Return payload"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]any "end date before start date"
// @Failure      404  {object}  map[string]any
// @Failure      409  {object}  map[string]any "already closed"
// @Router       /v1/rentals/{id}/return [post]
func (h *Controller) Return(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	var req ReturnRentalReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	var end time.Time
	if req.EndDate != nil {
		end = *req.EndDate
	}

	out, err := h.Svc.Return(c.Request().Context(), id, end)
	if err != nil {
		return h.mapError(c, "rental return", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status": out.Status,
		"rental": out.Rental,
	})
}

// ReturnByPair closes the single active rental for a student/instrument pair.
// @Summary      Return rental by student and instrument
// @Tags         rentals
// @Accept       json
// @Produce      json
// @Param        payload  body  ReturnByPairReq  true  "Pair payload"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Failure      409  {object}  map[string]any "multiple candidates, pick one by id"
// @Router       /v1/rentals/return [post]
func (h *Controller) ReturnByPair(c echo.Context) error {
	var req ReturnByPairReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}
	var end time.Time
	if req.EndDate != nil {
		end = *req.EndDate
	}

	out, err := h.Svc.ReturnByPair(c.Request().Context(), req.StudentID, req.InstrumentID, end)
	if err != nil {
		var multi *alloc.MultipleMatchesError
		if errors.As(err, &multi) {
			return c.JSON(http.StatusConflict, echo.Map{
				"message":    "multiple active rentals match, return one by id",
				"candidates": multi.Candidates,
			})
		}
		return h.mapError(c, "rental return by pair", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status": out.Status,
		"rental": out.Rental,
	})
}

// GET /v1/students/:id/rentals
func (h *Controller) ActiveForStudent(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	st, err := h.Students.ByID(c.Request().Context(), int32(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "student not found"})
		}
		return h.mapError(c, "student lookup", err)
	}
	rows, err := h.Svc.ActiveForStudent(c.Request().Context(), st.ID)
	if err != nil {
		return h.mapError(c, "active rentals", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"student": st, "data": rows})
}

// Overdue rentals report
// @Summary      List overdue rentals
// @Tags         rentals
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /v1/rentals/overdue [get]
func (h *Controller) Overdue(c echo.Context) error {
	rows, err := h.Svc.Overdue(c.Request().Context())
	if err != nil {
		return h.mapError(c, "overdue rentals", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

func (h *Controller) mapError(c echo.Context, op string, err error) error {
	switch alloc.Code(err) {
	case alloc.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "not found"})
	case alloc.ErrIntegrity:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "unknown student or instrument"})
	case alloc.ErrAlreadyClosed:
		return c.JSON(http.StatusConflict, echo.Map{"message": "rental already closed"})
	case alloc.ErrInvalidRange:
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "end date before start date"})
	case alloc.ErrConfigInvalid:
		h.Log.Error(op, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "business rule misconfigured"})
	case alloc.ErrStorage:
		h.Log.Error(op, "err", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"message": "storage unavailable, retry"})
	default:
		h.Log.Error(op, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
}
