package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrApplicationNotFound = errors.New("application not found")

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type Item struct {
	ID           int64
	Code         string
	ScoringType  string
	SubQuestions []SubQuestion
}

type SubQuestion struct {
	ID    int64
	Order int
}

type Row struct {
	ID            int64
	RowNumber     int
	ReferenceCode string
}

type ScoreKey struct {
	RowID  int64
	ItemID int64
}

type ResponseKey struct {
	RowID         int64
	SubQuestionID int64
}

type Response struct {
	IsCorrect    bool
	TextResponse string
	OptionLabel  string
}

// ReadModel is the snapshot both serializers run against: the exam's
// ordered structure plus every captured score and response for one
// application. Loaded in a single read-only transaction so an export never
// mixes pre- and post-update state across rows.
type ReadModel struct {
	ExamName        string
	ApplicationName string
	Items           []Item
	Rows            []Row
	ItemScores      map[ScoreKey]int
	Responses       map[ResponseKey]Response
}

func (s *Service) LoadReadModel(ctx context.Context, applicationID int64) (*ReadModel, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin export snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := &ReadModel{
		ItemScores: make(map[ScoreKey]int),
		Responses:  make(map[ResponseKey]Response),
	}

	var examID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT a.exam_id, e.name, a.name
		FROM applications a
		JOIN exams e ON e.id = a.exam_id
		WHERE a.id = $1
	`, applicationID).Scan(&examID, &m.ExamName, &m.ApplicationName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("load application: %w", err)
	}

	if err := s.loadItems(ctx, tx, examID, m); err != nil {
		return nil, err
	}
	if err := s.loadRows(ctx, tx, applicationID, m); err != nil {
		return nil, err
	}
	if err := s.loadItemScores(ctx, tx, applicationID, m); err != nil {
		return nil, err
	}
	if err := s.loadResponses(ctx, tx, applicationID, m); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit export snapshot: %w", err)
	}
	return m, nil
}

func (s *Service) loadItems(ctx context.Context, tx *sql.Tx, examID int64, m *ReadModel) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, code, scoring_type
		FROM items
		WHERE exam_id = $1
		ORDER BY sort_order, id
	`, examID)
	if err != nil {
		return fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Code, &it.ScoringType); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		index[it.ID] = len(m.Items)
		m.Items = append(m.Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate items: %w", err)
	}

	subRows, err := tx.QueryContext(ctx, `
		SELECT sq.id, sq.item_id, sq.sort_order
		FROM subquestions sq
		JOIN items i ON i.id = sq.item_id
		WHERE i.exam_id = $1
		ORDER BY sq.item_id, sq.sort_order, sq.id
	`, examID)
	if err != nil {
		return fmt.Errorf("query subquestions: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		var sq SubQuestion
		var itemID int64
		if err := subRows.Scan(&sq.ID, &itemID, &sq.Order); err != nil {
			return fmt.Errorf("scan subquestion: %w", err)
		}
		if i, ok := index[itemID]; ok {
			m.Items[i].SubQuestions = append(m.Items[i].SubQuestions, sq)
		}
	}
	return subRows.Err()
}

func (s *Service) loadRows(ctx context.Context, tx *sql.Tx, applicationID int64, m *ReadModel) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT r.id, r.row_number, COALESCE(st.reference_code, '')
		FROM response_rows r
		LEFT JOIN students st ON st.id = r.student_id
		WHERE r.application_id = $1
		ORDER BY r.row_number
	`, applicationID)
	if err != nil {
		return fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.RowNumber, &r.ReferenceCode); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		m.Rows = append(m.Rows, r)
	}
	return rows.Err()
}

func (s *Service) loadItemScores(ctx context.Context, tx *sql.Tx, applicationID int64, m *ReadModel) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT sc.row_id, sc.item_id, sc.score
		FROM item_scores sc
		JOIN response_rows r ON r.id = sc.row_id
		WHERE r.application_id = $1
	`, applicationID)
	if err != nil {
		return fmt.Errorf("query item scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k ScoreKey
		var score int
		if err := rows.Scan(&k.RowID, &k.ItemID, &score); err != nil {
			return fmt.Errorf("scan item score: %w", err)
		}
		m.ItemScores[k] = score
	}
	return rows.Err()
}

func (s *Service) loadResponses(ctx context.Context, tx *sql.Tx, applicationID int64, m *ReadModel) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT rr.row_id, rr.subquestion_id, rr.is_correct,
			COALESCE(rr.text_response, ''), COALESCE(o.label, '')
		FROM responses rr
		JOIN response_rows r ON r.id = rr.row_id
		LEFT JOIN options o ON o.id = rr.selected_option_id
		WHERE r.application_id = $1
	`, applicationID)
	if err != nil {
		return fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k ResponseKey
		var resp Response
		if err := rows.Scan(&k.RowID, &k.SubQuestionID, &resp.IsCorrect, &resp.TextResponse, &resp.OptionLabel); err != nil {
			return fmt.Errorf("scan response: %w", err)
		}
		m.Responses[k] = resp
	}
	return rows.Err()
}
