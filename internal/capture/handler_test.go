package capture

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

type mockCaptureService struct {
	createApplicationFn func(ctx context.Context, in CreateApplicationInput) (*Application, error)
	deleteApplicationFn func(ctx context.Context, applicationID int64) error
	getApplicationFn    func(ctx context.Context, applicationID int64) (*Application, error)
	listRowsFn          func(ctx context.Context, applicationID int64) ([]Row, error)
	getRowStateFn       func(ctx context.Context, applicationID, rowID int64) (*RowState, error)
	saveResponseFn      func(ctx context.Context, in SaveResponseInput) (*SaveResponseResult, error)
	saveItemScoreFn     func(ctx context.Context, in SaveItemScoreInput) (*ItemScore, error)
	addRowFn            func(ctx context.Context, applicationID int64) (*Row, error)
	deleteLastRowFn     func(ctx context.Context, applicationID int64) (*Row, error)
}

func (m *mockCaptureService) CreateApplication(ctx context.Context, in CreateApplicationInput) (*Application, error) {
	if m.createApplicationFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createApplicationFn(ctx, in)
}

func (m *mockCaptureService) DeleteApplication(ctx context.Context, applicationID int64) error {
	if m.deleteApplicationFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteApplicationFn(ctx, applicationID)
}

func (m *mockCaptureService) GetApplication(ctx context.Context, applicationID int64) (*Application, error) {
	if m.getApplicationFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getApplicationFn(ctx, applicationID)
}

func (m *mockCaptureService) ListRows(ctx context.Context, applicationID int64) ([]Row, error) {
	if m.listRowsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listRowsFn(ctx, applicationID)
}

func (m *mockCaptureService) GetRowState(ctx context.Context, applicationID, rowID int64) (*RowState, error) {
	if m.getRowStateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getRowStateFn(ctx, applicationID, rowID)
}

func (m *mockCaptureService) SaveResponse(ctx context.Context, in SaveResponseInput) (*SaveResponseResult, error) {
	if m.saveResponseFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.saveResponseFn(ctx, in)
}

func (m *mockCaptureService) SaveItemScore(ctx context.Context, in SaveItemScoreInput) (*ItemScore, error) {
	if m.saveItemScoreFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.saveItemScoreFn(ctx, in)
}

func (m *mockCaptureService) AddRow(ctx context.Context, applicationID int64) (*Row, error) {
	if m.addRowFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.addRowFn(ctx, applicationID)
}

func (m *mockCaptureService) DeleteLastRow(ctx context.Context, applicationID int64) (*Row, error) {
	if m.deleteLastRowFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.deleteLastRowFn(ctx, applicationID)
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

func TestSaveResponsePassesInput(t *testing.T) {
	var got SaveResponseInput
	h := NewHandler(&mockCaptureService{
		saveResponseFn: func(ctx context.Context, in SaveResponseInput) (*SaveResponseResult, error) {
			got = in
			return &SaveResponseResult{IsCorrect: true, ItemID: 7, ItemAutoScore: 1}, nil
		},
	})

	payload := []byte(`{"row_id":4,"subquestion_id":11,"option_id":30}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/2/responses", bytes.NewReader(payload))
	req = withChiParam(req, "id", "2")
	w := httptest.NewRecorder()

	h.SaveResponse(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got.ApplicationID != 2 || got.RowID != 4 || got.SubQuestionID != 11 {
		t.Fatalf("unexpected input: %+v", got)
	}
	if got.OptionID == nil || *got.OptionID != 30 {
		t.Fatalf("expected option id 30, got %v", got.OptionID)
	}
}

func TestSaveResponseUnknownSubQuestion(t *testing.T) {
	h := NewHandler(&mockCaptureService{
		saveResponseFn: func(ctx context.Context, in SaveResponseInput) (*SaveResponseResult, error) {
			return nil, ErrSubQuestionNotFound
		},
	})

	payload := []byte(`{"row_id":4,"subquestion_id":999}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/2/responses", bytes.NewReader(payload))
	req = withChiParam(req, "id", "2")
	w := httptest.NewRecorder()

	h.SaveResponse(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSaveResponseMissingFields(t *testing.T) {
	called := false
	h := NewHandler(&mockCaptureService{
		saveResponseFn: func(ctx context.Context, in SaveResponseInput) (*SaveResponseResult, error) {
			called = true
			return nil, nil
		},
	})

	payload := []byte(`{"subquestion_id":11}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/2/responses", bytes.NewReader(payload))
	req = withChiParam(req, "id", "2")
	w := httptest.NewRecorder()

	h.SaveResponse(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if called {
		t.Fatalf("service should not be called on invalid payload")
	}
}

func TestSaveItemScoreOutOfRange(t *testing.T) {
	h := NewHandler(&mockCaptureService{
		saveItemScoreFn: func(ctx context.Context, in SaveItemScoreInput) (*ItemScore, error) {
			return nil, ErrScoreOutOfRange
		},
	})

	payload := []byte(`{"row_id":4,"item_id":7,"score":2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/2/item-scores", bytes.NewReader(payload))
	req = withChiParam(req, "id", "2")
	w := httptest.NewRecorder()

	h.SaveItemScore(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if ok, _ := body["ok"].(bool); ok {
		t.Fatalf("expected ok=false, got %v", body)
	}
}

func TestSaveItemScoreRequiresScore(t *testing.T) {
	h := NewHandler(&mockCaptureService{})

	payload := []byte(`{"row_id":4,"item_id":7}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/2/item-scores", bytes.NewReader(payload))
	req = withChiParam(req, "id", "2")
	w := httptest.NewRecorder()

	h.SaveItemScore(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when score is omitted, got %d", w.Code)
	}
}

func TestSaveItemScoreZeroIsValid(t *testing.T) {
	var gotScore int
	h := NewHandler(&mockCaptureService{
		saveItemScoreFn: func(ctx context.Context, in SaveItemScoreInput) (*ItemScore, error) {
			gotScore = in.Score
			return &ItemScore{ItemID: in.ItemID, Score: in.Score}, nil
		},
	})

	payload := []byte(`{"row_id":4,"item_id":7,"score":0}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/2/item-scores", bytes.NewReader(payload))
	req = withChiParam(req, "id", "2")
	w := httptest.NewRecorder()

	h.SaveItemScore(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for explicit zero score, got %d", w.Code)
	}
	if gotScore != 0 {
		t.Fatalf("expected score 0, got %d", gotScore)
	}
}

func TestAddRowCreated(t *testing.T) {
	h := NewHandler(&mockCaptureService{
		addRowFn: func(ctx context.Context, applicationID int64) (*Row, error) {
			return &Row{ID: 9, ApplicationID: applicationID, RowNumber: 3}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/2/rows", nil)
	req = withChiParam(req, "id", "2")
	w := httptest.NewRecorder()

	h.AddRow(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestDeleteLastRowEmpty(t *testing.T) {
	h := NewHandler(&mockCaptureService{
		deleteLastRowFn: func(ctx context.Context, applicationID int64) (*Row, error) {
			return nil, ErrNoRows
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/applications/2/rows/last", nil)
	req = withChiParam(req, "id", "2")
	w := httptest.NewRecorder()

	h.DeleteLastRow(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when no rows remain, got %d", w.Code)
	}
}

func TestCreateApplicationNameConflict(t *testing.T) {
	h := NewHandler(&mockCaptureService{
		createApplicationFn: func(ctx context.Context, in CreateApplicationInput) (*Application, error) {
			return nil, ErrApplicationNameExists
		},
	})

	payload := []byte(`{"name":"Marzo 2026","initial_rows":20}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/exams/1/applications", bytes.NewReader(payload))
	req = withChiParam(req, "examID", "1")
	w := httptest.NewRecorder()

	h.CreateApplication(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}
