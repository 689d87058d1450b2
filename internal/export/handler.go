package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"psicodata/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc exportService
}

type exportService interface {
	LoadReadModel(ctx context.Context, applicationID int64) (*ReadModel, error)
}

func NewHandler(svc exportService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Winsteps(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadModel(w, r)
	if !ok {
		return
	}

	content := SerializeWinsteps(m)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", WinstepsFilename(m)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

func (h *Handler) PivotCSV(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadModel(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := WritePivotCSV(&buf, m); err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", PivotFilename(m)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) PivotExcel(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadModel(w, r)
	if !ok {
		return
	}

	content, err := WritePivotExcel(m)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", PivotExcelFilename(m)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (h *Handler) loadModel(w http.ResponseWriter, r *http.Request) (*ReadModel, bool) {
	applicationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || applicationID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid application id")
		return nil, false
	}

	m, err := h.svc.LoadReadModel(r.Context(), applicationID)
	if err != nil {
		if errors.Is(err, ErrApplicationNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return nil, false
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return m, true
}
