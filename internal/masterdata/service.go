package masterdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrRegionNotFound = errors.New("region not found")
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type Region struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type Institution struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	RegionID int64  `json:"region_id"`
}

type GradeLevel struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	SortOrder int    `json:"order"`
}

type SubjectArea struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type CreateRegionInput struct {
	Name string
	Code string
}

type InstitutionInput struct {
	Name     string
	Code     string
	RegionID int64
}

func (s *Service) CreateRegion(ctx context.Context, in CreateRegionInput) (*Region, error) {
	name := strings.TrimSpace(in.Name)
	code := strings.TrimSpace(in.Code)
	if name == "" || code == "" {
		return nil, ErrInvalidInput
	}

	var reg Region
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO regions (name, code)
		VALUES ($1, $2)
		RETURNING id, name, code
	`, name, code).Scan(&reg.ID, &reg.Name, &reg.Code)
	if err != nil {
		return nil, fmt.Errorf("create region: %w", err)
	}
	return &reg, nil
}

func (s *Service) ListRegions(ctx context.Context) ([]Region, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, code
		FROM regions
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	regions := make([]Region, 0)
	for rows.Next() {
		var reg Region
		if err := rows.Scan(&reg.ID, &reg.Name, &reg.Code); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		regions = append(regions, reg)
	}
	return regions, rows.Err()
}

// GetOrCreateInstitution resolves an institution by (name, region), creating
// it on first use. Capture operators type institution names free-form, so
// the lookup is the common path and the insert races are absorbed by the
// unique constraint.
func (s *Service) GetOrCreateInstitution(ctx context.Context, in InstitutionInput) (*Institution, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.RegionID <= 0 {
		return nil, ErrInvalidInput
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM regions WHERE id = $1)
	`, in.RegionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check region: %w", err)
	}
	if !exists {
		return nil, ErrRegionNotFound
	}

	var inst Institution
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO institutions (name, code, region_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, region_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, code, region_id
	`, name, strings.TrimSpace(in.Code), in.RegionID).Scan(&inst.ID, &inst.Name, &inst.Code, &inst.RegionID)
	if err != nil {
		return nil, fmt.Errorf("get or create institution: %w", err)
	}
	return &inst, nil
}

func (s *Service) ListInstitutions(ctx context.Context, regionID int64) ([]Institution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, code, region_id
		FROM institutions
		WHERE $1 = 0 OR region_id = $1
		ORDER BY name, id
	`, regionID)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	defer rows.Close()

	institutions := make([]Institution, 0)
	for rows.Next() {
		var inst Institution
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.Code, &inst.RegionID); err != nil {
			return nil, fmt.Errorf("scan institution: %w", err)
		}
		institutions = append(institutions, inst)
	}
	return institutions, rows.Err()
}

func (s *Service) ListGradeLevels(ctx context.Context) ([]GradeLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, code, sort_order
		FROM grade_levels
		ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list grade levels: %w", err)
	}
	defer rows.Close()

	levels := make([]GradeLevel, 0)
	for rows.Next() {
		var gl GradeLevel
		if err := rows.Scan(&gl.ID, &gl.Name, &gl.Code, &gl.SortOrder); err != nil {
			return nil, fmt.Errorf("scan grade level: %w", err)
		}
		levels = append(levels, gl)
	}
	return levels, rows.Err()
}

func (s *Service) ListSubjectAreas(ctx context.Context) ([]SubjectArea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, code
		FROM subject_areas
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list subject areas: %w", err)
	}
	defer rows.Close()

	areas := make([]SubjectArea, 0)
	for rows.Next() {
		var sa SubjectArea
		if err := rows.Scan(&sa.ID, &sa.Name, &sa.Code); err != nil {
			return nil, fmt.Errorf("scan subject area: %w", err)
		}
		areas = append(areas, sa)
	}
	return areas, rows.Err()
}
