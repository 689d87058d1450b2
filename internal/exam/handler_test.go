package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockExamService struct {
	createExamFn        func(ctx context.Context, in CreateExamInput) (*Exam, error)
	listExamsFn         func(ctx context.Context, search string) ([]Exam, error)
	updateExamFn        func(ctx context.Context, examID int64, in CreateExamInput) (*Exam, error)
	deleteExamFn        func(ctx context.Context, examID int64) error
	getExamStructureFn  func(ctx context.Context, examID int64) (*ExamStructure, error)
	createItemFn        func(ctx context.Context, examID int64, in CreateItemInput) (*Item, error)
	updateItemFn        func(ctx context.Context, itemID int64, in UpdateItemInput) (*Item, error)
	deleteItemFn        func(ctx context.Context, itemID int64) error
	createSubQuestionFn func(ctx context.Context, itemID int64, in CreateSubQuestionInput) (*SubQuestion, error)
	updateSubQuestionFn func(ctx context.Context, subQuestionID int64, in UpdateSubQuestionInput) (*SubQuestion, error)
	deleteSubQuestionFn func(ctx context.Context, subQuestionID int64) error
	createOptionFn      func(ctx context.Context, subQuestionID int64, in CreateOptionInput) (*Option, error)
	updateOptionFn      func(ctx context.Context, optionID int64, in UpdateOptionInput) (*Option, error)
	deleteOptionFn      func(ctx context.Context, optionID int64) error
}

func (m *mockExamService) CreateExam(ctx context.Context, in CreateExamInput) (*Exam, error) {
	if m.createExamFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createExamFn(ctx, in)
}

func (m *mockExamService) ListExams(ctx context.Context, search string) ([]Exam, error) {
	if m.listExamsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listExamsFn(ctx, search)
}

func (m *mockExamService) UpdateExam(ctx context.Context, examID int64, in CreateExamInput) (*Exam, error) {
	if m.updateExamFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateExamFn(ctx, examID, in)
}

func (m *mockExamService) DeleteExam(ctx context.Context, examID int64) error {
	if m.deleteExamFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteExamFn(ctx, examID)
}

func (m *mockExamService) GetExamStructure(ctx context.Context, examID int64) (*ExamStructure, error) {
	if m.getExamStructureFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getExamStructureFn(ctx, examID)
}

func (m *mockExamService) CreateItem(ctx context.Context, examID int64, in CreateItemInput) (*Item, error) {
	if m.createItemFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createItemFn(ctx, examID, in)
}

func (m *mockExamService) UpdateItem(ctx context.Context, itemID int64, in UpdateItemInput) (*Item, error) {
	if m.updateItemFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateItemFn(ctx, itemID, in)
}

func (m *mockExamService) DeleteItem(ctx context.Context, itemID int64) error {
	if m.deleteItemFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteItemFn(ctx, itemID)
}

func (m *mockExamService) CreateSubQuestion(ctx context.Context, itemID int64, in CreateSubQuestionInput) (*SubQuestion, error) {
	if m.createSubQuestionFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createSubQuestionFn(ctx, itemID, in)
}

func (m *mockExamService) UpdateSubQuestion(ctx context.Context, subQuestionID int64, in UpdateSubQuestionInput) (*SubQuestion, error) {
	if m.updateSubQuestionFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateSubQuestionFn(ctx, subQuestionID, in)
}

func (m *mockExamService) DeleteSubQuestion(ctx context.Context, subQuestionID int64) error {
	if m.deleteSubQuestionFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteSubQuestionFn(ctx, subQuestionID)
}

func (m *mockExamService) CreateOption(ctx context.Context, subQuestionID int64, in CreateOptionInput) (*Option, error) {
	if m.createOptionFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createOptionFn(ctx, subQuestionID, in)
}

func (m *mockExamService) UpdateOption(ctx context.Context, optionID int64, in UpdateOptionInput) (*Option, error) {
	if m.updateOptionFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateOptionFn(ctx, optionID, in)
}

func (m *mockExamService) DeleteOption(ctx context.Context, optionID int64) error {
	if m.deleteOptionFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteOptionFn(ctx, optionID)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestCreateItemDuplicateCodeConflict(t *testing.T) {
	h := NewHandler(&mockExamService{
		createItemFn: func(ctx context.Context, examID int64, in CreateItemInput) (*Item, error) {
			return nil, ErrItemCodeExists
		},
	})

	payload := []byte(`{"code":"EA01","scoring_type":"D"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/exams/1/items", bytes.NewReader(payload))
	req = withChiParam(req, "id", "1")
	w := httptest.NewRecorder()

	h.CreateItem(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestCreateItemPassesExamIDAndInput(t *testing.T) {
	var gotExamID int64
	var gotInput CreateItemInput
	h := NewHandler(&mockExamService{
		createItemFn: func(ctx context.Context, examID int64, in CreateItemInput) (*Item, error) {
			gotExamID = examID
			gotInput = in
			return &Item{ID: 5, ExamID: examID, Code: in.Code, SortOrder: 1, ScoringType: in.ScoringType}, nil
		},
	})

	payload := []byte(`{"code":"EA02","scoring_type":"P","instruction":"Cuenta los objetos"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/exams/3/items", bytes.NewReader(payload))
	req = withChiParam(req, "id", "3")
	w := httptest.NewRecorder()

	h.CreateItem(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if gotExamID != 3 {
		t.Fatalf("expected exam id 3, got %d", gotExamID)
	}
	if gotInput.Code != "EA02" || gotInput.ScoringType != "P" || gotInput.Instruction != "Cuenta los objetos" {
		t.Fatalf("unexpected input: %+v", gotInput)
	}
}

func TestCreateOptionOnOpenSubQuestion(t *testing.T) {
	h := NewHandler(&mockExamService{
		createOptionFn: func(ctx context.Context, subQuestionID int64, in CreateOptionInput) (*Option, error) {
			return nil, ErrSubQuestionOpen
		},
	})

	payload := []byte(`{"text":"rojo"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subquestions/9/options", bytes.NewReader(payload))
	req = withChiParam(req, "subQuestionID", "9")
	w := httptest.NewRecorder()

	h.CreateOption(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestGetExamStructureNotFound(t *testing.T) {
	h := NewHandler(&mockExamService{
		getExamStructureFn: func(ctx context.Context, examID int64) (*ExamStructure, error) {
			return nil, ErrExamNotFound
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exams/99/structure", nil)
	req = withChiParam(req, "id", "99")
	w := httptest.NewRecorder()

	h.GetExamStructure(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if ok, _ := body["ok"].(bool); ok {
		t.Fatalf("expected ok=false, got %v", body)
	}
}

func TestDeleteExamInvalidID(t *testing.T) {
	h := NewHandler(&mockExamService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/exams/abc", nil)
	req = withChiParam(req, "id", "abc")
	w := httptest.NewRecorder()

	h.DeleteExam(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListExamsPassesSearch(t *testing.T) {
	var gotSearch string
	h := NewHandler(&mockExamService{
		listExamsFn: func(ctx context.Context, search string) ([]Exam, error) {
			gotSearch = search
			return []Exam{{ID: 1, Name: "Lectura Temprana", IsActive: true}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exams?search=lectura", nil)
	w := httptest.NewRecorder()

	h.ListExams(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotSearch != "lectura" {
		t.Fatalf("expected search passthrough, got %q", gotSearch)
	}
}
