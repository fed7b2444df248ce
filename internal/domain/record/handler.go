package record

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Handler serves stored records over HTTP.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts the read endpoints on api behind m.
func (h *Handler) RegisterRoutes(api *echo.Group, m ...echo.MiddlewareFunc) {
	api.GET("/records/:document_id", h.GetRecord, m...)
	api.GET("/patients/:mrn/records", h.ListPatientRecords, m...)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	s, err := h.repo.GetByDocument(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}

// ListResponse is one page of a patient's records.
type ListResponse struct {
	Data   []*StoredRecord `json:"data"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func (h *Handler) ListPatientRecords(c echo.Context) error {
	limit := queryInt(c, "limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	items, total, err := h.repo.ListByPatient(c.Request().Context(), c.Param("mrn"), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*StoredRecord{}
	}
	return c.JSON(http.StatusOK, ListResponse{Data: items, Total: total, Limit: limit, Offset: offset})
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
