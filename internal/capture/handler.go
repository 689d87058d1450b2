package capture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"psicodata/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc captureService
}

type captureService interface {
	CreateApplication(ctx context.Context, in CreateApplicationInput) (*Application, error)
	DeleteApplication(ctx context.Context, applicationID int64) error
	GetApplication(ctx context.Context, applicationID int64) (*Application, error)
	ListRows(ctx context.Context, applicationID int64) ([]Row, error)
	GetRowState(ctx context.Context, applicationID, rowID int64) (*RowState, error)
	SaveResponse(ctx context.Context, in SaveResponseInput) (*SaveResponseResult, error)
	SaveItemScore(ctx context.Context, in SaveItemScoreInput) (*ItemScore, error)
	AddRow(ctx context.Context, applicationID int64) (*Row, error)
	DeleteLastRow(ctx context.Context, applicationID int64) (*Row, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createApplicationRequest struct {
	Name          string `json:"name"`
	RegionID      *int64 `json:"region_id"`
	InstitutionID *int64 `json:"institution_id"`
	InitialRows   int    `json:"initial_rows"`
}

type saveResponseRequest struct {
	RowID         int64  `json:"row_id"`
	SubQuestionID int64  `json:"subquestion_id"`
	OptionID      *int64 `json:"option_id"`
	TextResponse  string `json:"text_response"`
}

type saveItemScoreRequest struct {
	RowID  int64 `json:"row_id"`
	ItemID int64 `json:"item_id"`
	Score  *int  `json:"score"`
}

func NewHandler(svc captureService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	examID, err := strconv.ParseInt(chi.URLParam(r, "examID"), 10, 64)
	if err != nil || examID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam id"})
		return
	}
	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	app, err := h.svc.CreateApplication(r.Context(), CreateApplicationInput{
		ExamID:        examID,
		Name:          req.Name,
		RegionID:      req.RegionID,
		InstitutionID: req.InstitutionID,
		InitialRows:   req.InitialRows,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "name is required"})
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrApplicationNameExists):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: app})
}

func (h *Handler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	applicationID, ok := applicationIDParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteApplication(r.Context(), applicationID); err != nil {
		switch {
		case errors.Is(err, ErrApplicationNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	applicationID, ok := applicationIDParam(w, r)
	if !ok {
		return
	}
	app, err := h.svc.GetApplication(r.Context(), applicationID)
	if err != nil {
		switch {
		case errors.Is(err, ErrApplicationNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: app})
}

func (h *Handler) ListRows(w http.ResponseWriter, r *http.Request) {
	applicationID, ok := applicationIDParam(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListRows(r.Context(), applicationID)
	if err != nil {
		switch {
		case errors.Is(err, ErrApplicationNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) GetRowState(w http.ResponseWriter, r *http.Request) {
	applicationID, ok := applicationIDParam(w, r)
	if !ok {
		return
	}
	rowID, err := strconv.ParseInt(chi.URLParam(r, "rowID"), 10, 64)
	if err != nil || rowID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid row id"})
		return
	}

	state, err := h.svc.GetRowState(r.Context(), applicationID, rowID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRowNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: state})
}

func (h *Handler) SaveResponse(w http.ResponseWriter, r *http.Request) {
	applicationID, ok := applicationIDParam(w, r)
	if !ok {
		return
	}
	var req saveResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if req.RowID <= 0 || req.SubQuestionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "row_id and subquestion_id are required"})
		return
	}

	result, err := h.svc.SaveResponse(r.Context(), SaveResponseInput{
		ApplicationID: applicationID,
		RowID:         req.RowID,
		SubQuestionID: req.SubQuestionID,
		OptionID:      req.OptionID,
		TextResponse:  req.TextResponse,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrRowNotFound), errors.Is(err, ErrSubQuestionNotFound), errors.Is(err, ErrOptionNotInSubQuestion):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func (h *Handler) SaveItemScore(w http.ResponseWriter, r *http.Request) {
	applicationID, ok := applicationIDParam(w, r)
	if !ok {
		return
	}
	var req saveItemScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if req.RowID <= 0 || req.ItemID <= 0 || req.Score == nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "row_id, item_id and score are required"})
		return
	}

	result, err := h.svc.SaveItemScore(r.Context(), SaveItemScoreInput{
		ApplicationID: applicationID,
		RowID:         req.RowID,
		ItemID:        req.ItemID,
		Score:         *req.Score,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrScoreOutOfRange):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrRowNotFound), errors.Is(err, ErrItemNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func (h *Handler) AddRow(w http.ResponseWriter, r *http.Request) {
	applicationID, ok := applicationIDParam(w, r)
	if !ok {
		return
	}
	row, err := h.svc.AddRow(r.Context(), applicationID)
	if err != nil {
		switch {
		case errors.Is(err, ErrApplicationNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: row})
}

func (h *Handler) DeleteLastRow(w http.ResponseWriter, r *http.Request) {
	applicationID, ok := applicationIDParam(w, r)
	if !ok {
		return
	}
	row, err := h.svc.DeleteLastRow(r.Context(), applicationID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoRows):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrApplicationNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: row})
}

func applicationIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	applicationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || applicationID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid application id"})
		return 0, false
	}
	return applicationID, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
