package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrExamNotFound           = errors.New("exam not found")
	ErrApplicationNotFound    = errors.New("application not found")
	ErrApplicationNameExists  = errors.New("application name already used for this exam")
	ErrRowNotFound            = errors.New("row not found")
	ErrSubQuestionNotFound    = errors.New("subquestion not found")
	ErrOptionNotInSubQuestion = errors.New("option does not belong to subquestion")
	ErrItemNotFound           = errors.New("item not found")
	ErrScoreOutOfRange        = errors.New("score out of range for scoring type")
	ErrNoRows                 = errors.New("no rows")
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type CreateApplicationInput struct {
	ExamID        int64
	Name          string
	RegionID      *int64
	InstitutionID *int64
	InitialRows   int
}

type Application struct {
	ID            int64  `json:"id"`
	ExamID        int64  `json:"exam_id"`
	ExamName      string `json:"exam_name"`
	Name          string `json:"name"`
	RegionID      *int64 `json:"region_id,omitempty"`
	InstitutionID *int64 `json:"institution_id,omitempty"`
	TotalRows     int    `json:"total_rows"`
}

type Row struct {
	ID            int64  `json:"id"`
	ApplicationID int64  `json:"application_id"`
	RowNumber     int    `json:"row_number"`
	ReferenceCode string `json:"reference_code,omitempty"`
}

type SaveResponseInput struct {
	ApplicationID int64
	RowID         int64
	SubQuestionID int64
	OptionID      *int64
	TextResponse  string
}

type SaveResponseResult struct {
	IsCorrect     bool   `json:"is_correct"`
	OptionID      *int64 `json:"option_id,omitempty"`
	ItemID        int64  `json:"item_id"`
	ItemAutoScore int    `json:"item_auto_score"`
}

type SaveItemScoreInput struct {
	ApplicationID int64
	RowID         int64
	ItemID        int64
	Score         int
}

type ItemScore struct {
	ItemID int64 `json:"item_id"`
	Score  int   `json:"score"`
}

type ResponseState struct {
	OptionID     *int64 `json:"option_id,omitempty"`
	TextResponse string `json:"text_response,omitempty"`
	IsCorrect    bool   `json:"is_correct"`
}

// RowState is the capture screen's read model for one respondent: what was
// already typed, keyed by subquestion, plus the stored item scores.
type RowState struct {
	Row        Row                     `json:"row"`
	Responses  map[int64]ResponseState `json:"responses"`
	ItemScores map[int64]int           `json:"item_scores"`
}

func (s *Service) CreateApplication(ctx context.Context, in CreateApplicationInput) (*Application, error) {
	name := strings.TrimSpace(in.Name)
	if in.ExamID <= 0 || name == "" {
		return nil, ErrInvalidInput
	}
	if in.InitialRows < 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create application tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var examName string
	if err := tx.QueryRowContext(ctx, `
		SELECT name
		FROM exams
		WHERE id = $1
	`, in.ExamID).Scan(&examName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("load exam: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM applications
			WHERE exam_id = $1 AND name = $2
		)
	`, in.ExamID, name).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check application name: %w", err)
	}
	if exists {
		return nil, ErrApplicationNameExists
	}

	app := Application{ExamID: in.ExamID, ExamName: examName, Name: name, RegionID: in.RegionID, InstitutionID: in.InstitutionID}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO applications (exam_id, name, region_id, institution_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id
	`, in.ExamID, name, in.RegionID, in.InstitutionID).Scan(&app.ID); err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}

	for i := 0; i < in.InitialRows; i++ {
		if _, err := s.appendRow(ctx, tx, app.ID, i+1, in.RegionID, in.InstitutionID); err != nil {
			return nil, err
		}
	}
	app.TotalRows = in.InitialRows

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create application: %w", err)
	}
	return &app, nil
}

func (s *Service) DeleteApplication(ctx context.Context, applicationID int64) error {
	if applicationID <= 0 {
		return ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, applicationID)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete application rows affected: %w", err)
	}
	if affected == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

func (s *Service) GetApplication(ctx context.Context, applicationID int64) (*Application, error) {
	var app Application
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.exam_id, e.name, a.name, a.region_id, a.institution_id,
			(SELECT COUNT(*) FROM response_rows r WHERE r.application_id = a.id)
		FROM applications a
		JOIN exams e ON e.id = a.exam_id
		WHERE a.id = $1
	`, applicationID).Scan(&app.ID, &app.ExamID, &app.ExamName, &app.Name, &app.RegionID, &app.InstitutionID, &app.TotalRows)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	return &app, nil
}

func (s *Service) ListRows(ctx context.Context, applicationID int64) ([]Row, error) {
	if err := s.ensureApplication(ctx, applicationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.application_id, r.row_number, COALESCE(st.reference_code, '')
		FROM response_rows r
		LEFT JOIN students st ON st.id = r.student_id
		WHERE r.application_id = $1
		ORDER BY r.row_number
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0)
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.ApplicationID, &r.RowNumber, &r.ReferenceCode); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (s *Service) GetRowState(ctx context.Context, applicationID, rowID int64) (*RowState, error) {
	var state RowState
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.application_id, r.row_number, COALESCE(st.reference_code, '')
		FROM response_rows r
		LEFT JOIN students st ON st.id = r.student_id
		WHERE r.id = $1 AND r.application_id = $2
	`, rowID, applicationID).Scan(&state.Row.ID, &state.Row.ApplicationID, &state.Row.RowNumber, &state.Row.ReferenceCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRowNotFound
		}
		return nil, fmt.Errorf("load row: %w", err)
	}

	state.Responses = make(map[int64]ResponseState)
	respRows, err := s.db.QueryContext(ctx, `
		SELECT subquestion_id, selected_option_id, COALESCE(text_response, ''), is_correct
		FROM responses
		WHERE row_id = $1
	`, rowID)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer respRows.Close()
	for respRows.Next() {
		var subQuestionID int64
		var rs ResponseState
		if err := respRows.Scan(&subQuestionID, &rs.OptionID, &rs.TextResponse, &rs.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		state.Responses[subQuestionID] = rs
	}
	if err := respRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}

	state.ItemScores = make(map[int64]int)
	scoreRows, err := s.db.QueryContext(ctx, `
		SELECT item_id, score
		FROM item_scores
		WHERE row_id = $1
	`, rowID)
	if err != nil {
		return nil, fmt.Errorf("query item scores: %w", err)
	}
	defer scoreRows.Close()
	for scoreRows.Next() {
		var itemID int64
		var score int
		if err := scoreRows.Scan(&itemID, &score); err != nil {
			return nil, fmt.Errorf("scan item score: %w", err)
		}
		state.ItemScores[itemID] = score
	}
	if err := scoreRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item scores: %w", err)
	}

	return &state, nil
}

// SaveResponse upserts the captured answer for one (row, subquestion) pair
// and recomputes the owning item's score inside the same transaction. The
// recompute always overwrites a previously entered manual score for that
// (row, item) pair: the most recent write wins.
func (s *Service) SaveResponse(ctx context.Context, in SaveResponseInput) (*SaveResponseResult, error) {
	if in.ApplicationID <= 0 || in.RowID <= 0 || in.SubQuestionID <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save response tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var examID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT a.exam_id
		FROM response_rows r
		JOIN applications a ON a.id = r.application_id
		WHERE r.id = $1 AND r.application_id = $2
	`, in.RowID, in.ApplicationID).Scan(&examID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRowNotFound
		}
		return nil, fmt.Errorf("load row: %w", err)
	}

	var itemID int64
	var scoringType string
	if err := tx.QueryRowContext(ctx, `
		SELECT i.id, i.scoring_type
		FROM subquestions sq
		JOIN items i ON i.id = sq.item_id
		WHERE sq.id = $1 AND i.exam_id = $2
	`, in.SubQuestionID, examID).Scan(&itemID, &scoringType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubQuestionNotFound
		}
		return nil, fmt.Errorf("load subquestion: %w", err)
	}

	isCorrect := false
	if in.OptionID != nil {
		if err := tx.QueryRowContext(ctx, `
			SELECT is_correct
			FROM options
			WHERE id = $1 AND subquestion_id = $2
		`, *in.OptionID, in.SubQuestionID).Scan(&isCorrect); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrOptionNotInSubQuestion
			}
			return nil, fmt.Errorf("load option: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO responses (row_id, subquestion_id, selected_option_id, text_response, is_correct)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (row_id, subquestion_id)
		DO UPDATE SET
			selected_option_id = EXCLUDED.selected_option_id,
			text_response = EXCLUDED.text_response,
			is_correct = EXCLUDED.is_correct
	`, in.RowID, in.SubQuestionID, in.OptionID, strings.TrimSpace(in.TextResponse), isCorrect); err != nil {
		return nil, fmt.Errorf("upsert response: %w", err)
	}

	autoScore, err := s.recomputeItemScore(ctx, tx, in.RowID, itemID, scoringType)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save response: %w", err)
	}

	return &SaveResponseResult{
		IsCorrect:     isCorrect,
		OptionID:      in.OptionID,
		ItemID:        itemID,
		ItemAutoScore: autoScore,
	}, nil
}

// SaveItemScore stores a directly-entered score for an item, bypassing the
// scoring engine. Meant for open-form items with no options.
func (s *Service) SaveItemScore(ctx context.Context, in SaveItemScoreInput) (*ItemScore, error) {
	if in.ApplicationID <= 0 || in.RowID <= 0 || in.ItemID <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save item score tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var examID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT a.exam_id
		FROM response_rows r
		JOIN applications a ON a.id = r.application_id
		WHERE r.id = $1 AND r.application_id = $2
	`, in.RowID, in.ApplicationID).Scan(&examID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRowNotFound
		}
		return nil, fmt.Errorf("load row: %w", err)
	}

	var scoringType string
	if err := tx.QueryRowContext(ctx, `
		SELECT scoring_type
		FROM items
		WHERE id = $1 AND exam_id = $2
	`, in.ItemID, examID).Scan(&scoringType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("load item: %w", err)
	}

	if !ValidScore(scoringType, in.Score) {
		return nil, ErrScoreOutOfRange
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO item_scores (row_id, item_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (row_id, item_id)
		DO UPDATE SET score = EXCLUDED.score
	`, in.RowID, in.ItemID, in.Score); err != nil {
		return nil, fmt.Errorf("upsert item score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save item score: %w", err)
	}

	return &ItemScore{ItemID: in.ItemID, Score: in.Score}, nil
}

// AddRow appends a respondent row numbered max+1 (1 on an empty application)
// and creates its anonymized student inheriting the application's region and
// institution. The application row is locked so concurrent appends cannot
// race on the number.
func (s *Service) AddRow(ctx context.Context, applicationID int64) (*Row, error) {
	if applicationID <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add row tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var regionID, institutionID *int64
	if err := tx.QueryRowContext(ctx, `
		SELECT region_id, institution_id
		FROM applications
		WHERE id = $1
		FOR UPDATE
	`, applicationID).Scan(&regionID, &institutionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("lock application: %w", err)
	}

	var maxNumber int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(row_number), 0)
		FROM response_rows
		WHERE application_id = $1
	`, applicationID).Scan(&maxNumber); err != nil {
		return nil, fmt.Errorf("max row number: %w", err)
	}

	row, err := s.appendRow(ctx, tx, applicationID, maxNumber+1, regionID, institutionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add row: %w", err)
	}
	return row, nil
}

// DeleteLastRow removes the highest-numbered row. Remaining rows are never
// renumbered; only tail removal is supported.
func (s *Service) DeleteLastRow(ctx context.Context, applicationID int64) (*Row, error) {
	if applicationID <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete row tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `
		SELECT 1
		FROM applications
		WHERE id = $1
		FOR UPDATE
	`, applicationID).Scan(new(int)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("lock application: %w", err)
	}

	var row Row
	row.ApplicationID = applicationID
	err = tx.QueryRowContext(ctx, `
		SELECT id, row_number
		FROM response_rows
		WHERE application_id = $1
		ORDER BY row_number DESC
		LIMIT 1
		FOR UPDATE
	`, applicationID).Scan(&row.ID, &row.RowNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("find last row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM response_rows WHERE id = $1`, row.ID); err != nil {
		return nil, fmt.Errorf("delete row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete row: %w", err)
	}
	return &row, nil
}

// recomputeItemScore counts the row's correct responses among the item's
// subquestions and upserts the derived score. The existing item_scores row
// is locked first so two concurrent saves on the same (row, item) cannot
// leave a stale score behind.
func (s *Service) recomputeItemScore(ctx context.Context, tx *sql.Tx, rowID, itemID int64, scoringType string) (int, error) {
	var ignored int
	err := tx.QueryRowContext(ctx, `
		SELECT score
		FROM item_scores
		WHERE row_id = $1 AND item_id = $2
		FOR UPDATE
	`, rowID, itemID).Scan(&ignored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lock item score: %w", err)
	}

	var total, correct int
	if err := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (
				WHERE EXISTS (
					SELECT 1
					FROM responses rr
					WHERE rr.row_id = $1
					  AND rr.subquestion_id = sq.id
					  AND rr.is_correct
				)
			)
		FROM subquestions sq
		WHERE sq.item_id = $2
	`, rowID, itemID).Scan(&total, &correct); err != nil {
		return 0, fmt.Errorf("count correct responses: %w", err)
	}

	score := ComputeItemScore(scoringType, total, correct)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO item_scores (row_id, item_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (row_id, item_id)
		DO UPDATE SET score = EXCLUDED.score
	`, rowID, itemID, score); err != nil {
		return 0, fmt.Errorf("upsert derived item score: %w", err)
	}

	return score, nil
}

func (s *Service) appendRow(ctx context.Context, tx *sql.Tx, applicationID int64, rowNumber int, regionID, institutionID *int64) (*Row, error) {
	studentID, referenceCode, err := s.createStudent(ctx, tx, regionID, institutionID)
	if err != nil {
		return nil, err
	}

	row := Row{ApplicationID: applicationID, RowNumber: rowNumber, ReferenceCode: referenceCode}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO response_rows (application_id, row_number, student_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, applicationID, rowNumber, studentID).Scan(&row.ID); err != nil {
		return nil, fmt.Errorf("insert row: %w", err)
	}
	return &row, nil
}

// createStudent inserts an anonymized student with a fresh reference code.
// Codes are six hex chars off a UUID; on the rare collision we draw again.
func (s *Service) createStudent(ctx context.Context, tx *sql.Tx, regionID, institutionID *int64) (int64, string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code := newReferenceCode()
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO students (reference_code, region_id, institution_id, created_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (reference_code) DO NOTHING
			RETURNING id
		`, code, regionID, institutionID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, "", fmt.Errorf("insert student: %w", err)
		}
		return id, code, nil
	}
	return 0, "", errors.New("could not allocate student reference code")
}

func newReferenceCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "STU-" + strings.ToUpper(raw[:6])
}

func (s *Service) ensureApplication(ctx context.Context, applicationID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)
	`, applicationID).Scan(&exists); err != nil {
		return fmt.Errorf("check application: %w", err)
	}
	if !exists {
		return ErrApplicationNotFound
	}
	return nil
}
