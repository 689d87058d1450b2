package exam

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
	svc examService
}

type examService interface {
	CreateExam(ctx context.Context, in CreateExamInput) (*Exam, error)
	ListExams(ctx context.Context, search string) ([]Exam, error)
	UpdateExam(ctx context.Context, examID int64, in CreateExamInput) (*Exam, error)
	DeleteExam(ctx context.Context, examID int64) error
	GetExamStructure(ctx context.Context, examID int64) (*ExamStructure, error)
	CreateItem(ctx context.Context, examID int64, in CreateItemInput) (*Item, error)
	UpdateItem(ctx context.Context, itemID int64, in UpdateItemInput) (*Item, error)
	DeleteItem(ctx context.Context, itemID int64) error
	CreateSubQuestion(ctx context.Context, itemID int64, in CreateSubQuestionInput) (*SubQuestion, error)
	UpdateSubQuestion(ctx context.Context, subQuestionID int64, in UpdateSubQuestionInput) (*SubQuestion, error)
	DeleteSubQuestion(ctx context.Context, subQuestionID int64) error
	CreateOption(ctx context.Context, subQuestionID int64, in CreateOptionInput) (*Option, error)
	UpdateOption(ctx context.Context, optionID int64, in UpdateOptionInput) (*Option, error)
	DeleteOption(ctx context.Context, optionID int64) error
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type examRequest struct {
	Name string `json:"name"`
}

type itemRequest struct {
	Code              string `json:"code"`
	Instruction       string `json:"instruction"`
	ScoringType       string `json:"scoring_type"`
	CorrectCriteria   string `json:"correct_criteria"`
	PartialCriteria   string `json:"partial_criteria"`
	IncorrectCriteria string `json:"incorrect_criteria"`
}

type subQuestionRequest struct {
	ContextText  string `json:"context_text"`
	QuestionType string `json:"question_type"`
}

type optionRequest struct {
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

func NewHandler(svc examService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateExam(w http.ResponseWriter, r *http.Request) {
	var req examRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	ex, err := h.svc.CreateExam(r.Context(), CreateExamInput{Name: req.Name})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: ex})
}

func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.svc.ListExams(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: exams})
}

func (h *Handler) UpdateExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req examRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	ex, err := h.svc.UpdateExam(r.Context(), examID, CreateExamInput{Name: req.Name})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: ex})
}

func (h *Handler) DeleteExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteExam(r.Context(), examID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) GetExamStructure(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	st, err := h.svc.GetExamStructure(r.Context(), examID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: st})
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	req, ok := decodeItem(w, r)
	if !ok {
		return
	}
	it, err := h.svc.CreateItem(r.Context(), examID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: it})
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(w, r, "itemID")
	if !ok {
		return
	}
	req, ok := decodeItem(w, r)
	if !ok {
		return
	}
	it, err := h.svc.UpdateItem(r.Context(), itemID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: it})
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(w, r, "itemID")
	if !ok {
		return
	}
	if err := h.svc.DeleteItem(r.Context(), itemID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) CreateSubQuestion(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(w, r, "itemID")
	if !ok {
		return
	}
	var req subQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	sq, err := h.svc.CreateSubQuestion(r.Context(), itemID, CreateSubQuestionInput{
		ContextText:  req.ContextText,
		QuestionType: req.QuestionType,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: sq})
}

func (h *Handler) UpdateSubQuestion(w http.ResponseWriter, r *http.Request) {
	subQuestionID, ok := idParam(w, r, "subQuestionID")
	if !ok {
		return
	}
	var req subQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	sq, err := h.svc.UpdateSubQuestion(r.Context(), subQuestionID, UpdateSubQuestionInput{
		ContextText:  req.ContextText,
		QuestionType: req.QuestionType,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: sq})
}

func (h *Handler) DeleteSubQuestion(w http.ResponseWriter, r *http.Request) {
	subQuestionID, ok := idParam(w, r, "subQuestionID")
	if !ok {
		return
	}
	if err := h.svc.DeleteSubQuestion(r.Context(), subQuestionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) CreateOption(w http.ResponseWriter, r *http.Request) {
	subQuestionID, ok := idParam(w, r, "subQuestionID")
	if !ok {
		return
	}
	var req optionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	opt, err := h.svc.CreateOption(r.Context(), subQuestionID, CreateOptionInput{
		Label:     req.Label,
		Text:      req.Text,
		IsCorrect: req.IsCorrect,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: opt})
}

func (h *Handler) UpdateOption(w http.ResponseWriter, r *http.Request) {
	optionID, ok := idParam(w, r, "optionID")
	if !ok {
		return
	}
	var req optionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	opt, err := h.svc.UpdateOption(r.Context(), optionID, UpdateOptionInput{
		Text:      req.Text,
		IsCorrect: req.IsCorrect,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: opt})
}

func (h *Handler) DeleteOption(w http.ResponseWriter, r *http.Request) {
	optionID, ok := idParam(w, r, "optionID")
	if !ok {
		return
	}
	if err := h.svc.DeleteOption(r.Context(), optionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func decodeItem(w http.ResponseWriter, r *http.Request) (CreateItemInput, bool) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return CreateItemInput{}, false
	}
	return CreateItemInput{
		Code:              req.Code,
		Instruction:       req.Instruction,
		ScoringType:       req.ScoringType,
		CorrectCriteria:   req.CorrectCriteria,
		PartialCriteria:   req.PartialCriteria,
		IncorrectCriteria: req.IncorrectCriteria,
	}, true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrOptionLimit):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSubQuestionOpen):
		writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrItemCodeExists):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrExamNotFound), errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrSubQuestionNotFound), errors.Is(err, ErrOptionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
