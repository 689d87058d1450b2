package masterdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"psicodata/internal/app/apiresp"
)

type Handler struct {
	svc masterdataService
}

type masterdataService interface {
	CreateRegion(ctx context.Context, in CreateRegionInput) (*Region, error)
	ListRegions(ctx context.Context) ([]Region, error)
	GetOrCreateInstitution(ctx context.Context, in InstitutionInput) (*Institution, error)
	ListInstitutions(ctx context.Context, regionID int64) ([]Institution, error)
	ListGradeLevels(ctx context.Context) ([]GradeLevel, error)
	ListSubjectAreas(ctx context.Context) ([]SubjectArea, error)
}

type regionRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type institutionRequest struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	RegionID int64  `json:"region_id"`
}

func NewHandler(svc masterdataService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateRegion(w http.ResponseWriter, r *http.Request) {
	var req regionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	reg, err := h.svc.CreateRegion(r.Context(), CreateRegionInput{Name: req.Name, Code: req.Code})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, reg)
}

func (h *Handler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.svc.ListRegions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, regions)
}

func (h *Handler) GetOrCreateInstitution(w http.ResponseWriter, r *http.Request) {
	var req institutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	inst, err := h.svc.GetOrCreateInstitution(r.Context(), InstitutionInput{
		Name:     req.Name,
		Code:     req.Code,
		RegionID: req.RegionID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, inst)
}

func (h *Handler) ListInstitutions(w http.ResponseWriter, r *http.Request) {
	var regionID int64
	if raw := r.URL.Query().Get("region_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid region id")
			return
		}
		regionID = parsed
	}
	institutions, err := h.svc.ListInstitutions(r.Context(), regionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, institutions)
}

func (h *Handler) ListGradeLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.svc.ListGradeLevels(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, levels)
}

func (h *Handler) ListSubjectAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.svc.ListSubjectAreas(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, areas)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRegionNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
