package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"psicodata/internal/capture"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrExamNotFound        = errors.New("exam not found")
	ErrItemNotFound        = errors.New("item not found")
	ErrItemCodeExists      = errors.New("item code already exists in exam")
	ErrSubQuestionNotFound = errors.New("subquestion not found")
	ErrOptionNotFound      = errors.New("option not found")
	ErrSubQuestionOpen     = errors.New("open subquestion cannot have options")
	ErrOptionLimit         = errors.New("option limit reached")
)

// optionLabels is the pool auto-assigned labels are drawn from, in order.
const optionLabels = "abcdef"

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type Exam struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type Item struct {
	ID                int64  `json:"id"`
	ExamID            int64  `json:"exam_id"`
	Code              string `json:"code"`
	SortOrder         int    `json:"order"`
	Instruction       string `json:"instruction,omitempty"`
	ScoringType       string `json:"scoring_type"`
	CorrectCriteria   string `json:"correct_criteria,omitempty"`
	PartialCriteria   string `json:"partial_criteria,omitempty"`
	IncorrectCriteria string `json:"incorrect_criteria,omitempty"`
}

type SubQuestion struct {
	ID           int64  `json:"id"`
	ItemID       int64  `json:"item_id"`
	SortOrder    int    `json:"order"`
	ContextText  string `json:"context_text,omitempty"`
	QuestionType string `json:"question_type"`
}

type Option struct {
	ID            int64  `json:"id"`
	SubQuestionID int64  `json:"subquestion_id"`
	Label         string `json:"label"`
	Text          string `json:"text,omitempty"`
	IsCorrect     bool   `json:"is_correct"`
	SortOrder     int    `json:"order"`
}

type StructureSubQuestion struct {
	SubQuestion
	Options []Option `json:"options"`
}

type StructureItem struct {
	Item
	SubQuestions []StructureSubQuestion `json:"subquestions"`
}

// ExamStructure is the full editable tree for one exam, items and
// subquestions in display order.
type ExamStructure struct {
	Exam  Exam            `json:"exam"`
	Items []StructureItem `json:"items"`
}

type CreateExamInput struct {
	Name string
}

type CreateItemInput struct {
	Code              string
	Instruction       string
	ScoringType       string
	CorrectCriteria   string
	PartialCriteria   string
	IncorrectCriteria string
}

type UpdateItemInput = CreateItemInput

type CreateSubQuestionInput struct {
	ContextText  string
	QuestionType string
}

type UpdateSubQuestionInput = CreateSubQuestionInput

type CreateOptionInput struct {
	Label     string
	Text      string
	IsCorrect bool
}

type UpdateOptionInput struct {
	Text      string
	IsCorrect bool
}

func (s *Service) CreateExam(ctx context.Context, in CreateExamInput) (*Exam, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	var ex Exam
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO exams (name)
		VALUES ($1)
		RETURNING id, name, is_active
	`, name).Scan(&ex.ID, &ex.Name, &ex.IsActive)
	if err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	return &ex, nil
}

func (s *Service) ListExams(ctx context.Context, search string) ([]Exam, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, is_active
		FROM exams
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
		ORDER BY name, id
	`, strings.TrimSpace(search))
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	exams := make([]Exam, 0)
	for rows.Next() {
		var ex Exam
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.IsActive); err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		exams = append(exams, ex)
	}
	return exams, rows.Err()
}

func (s *Service) UpdateExam(ctx context.Context, examID int64, in CreateExamInput) (*Exam, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	var ex Exam
	err := s.db.QueryRowContext(ctx, `
		UPDATE exams
		SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, name, is_active
	`, examID, name).Scan(&ex.ID, &ex.Name, &ex.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return &ex, nil
}

// DeleteExam removes the exam and, through the schema's cascade rules, its
// items, applications and every captured response under them.
func (s *Service) DeleteExam(ctx context.Context, examID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, examID)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExamNotFound
	}
	return nil
}

func (s *Service) GetExamStructure(ctx context.Context, examID int64) (*ExamStructure, error) {
	st := &ExamStructure{Items: make([]StructureItem, 0)}

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_active
		FROM exams
		WHERE id = $1
	`, examID).Scan(&st.Exam.ID, &st.Exam.Name, &st.Exam.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, exam_id, code, sort_order, instruction, scoring_type,
			correct_criteria, partial_criteria, incorrect_criteria
		FROM items
		WHERE exam_id = $1
		ORDER BY sort_order, id
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer itemRows.Close()

	itemIndex := make(map[int64]int)
	for itemRows.Next() {
		var it StructureItem
		if err := itemRows.Scan(&it.ID, &it.ExamID, &it.Code, &it.SortOrder, &it.Instruction,
			&it.ScoringType, &it.CorrectCriteria, &it.PartialCriteria, &it.IncorrectCriteria); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.SubQuestions = make([]StructureSubQuestion, 0)
		itemIndex[it.ID] = len(st.Items)
		st.Items = append(st.Items, it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	sqRows, err := s.db.QueryContext(ctx, `
		SELECT sq.id, sq.item_id, sq.sort_order, sq.context_text, sq.question_type
		FROM subquestions sq
		JOIN items i ON i.id = sq.item_id
		WHERE i.exam_id = $1
		ORDER BY sq.item_id, sq.sort_order, sq.id
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query subquestions: %w", err)
	}
	defer sqRows.Close()

	sqIndex := make(map[int64][2]int)
	for sqRows.Next() {
		var sq StructureSubQuestion
		if err := sqRows.Scan(&sq.ID, &sq.ItemID, &sq.SortOrder, &sq.ContextText, &sq.QuestionType); err != nil {
			return nil, fmt.Errorf("scan subquestion: %w", err)
		}
		sq.Options = make([]Option, 0)
		i, ok := itemIndex[sq.ItemID]
		if !ok {
			continue
		}
		sqIndex[sq.ID] = [2]int{i, len(st.Items[i].SubQuestions)}
		st.Items[i].SubQuestions = append(st.Items[i].SubQuestions, sq)
	}
	if err := sqRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subquestions: %w", err)
	}

	optRows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.subquestion_id, o.label, o.text, o.is_correct, o.sort_order
		FROM options o
		JOIN subquestions sq ON sq.id = o.subquestion_id
		JOIN items i ON i.id = sq.item_id
		WHERE i.exam_id = $1
		ORDER BY o.subquestion_id, o.sort_order, o.id
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var opt Option
		if err := optRows.Scan(&opt.ID, &opt.SubQuestionID, &opt.Label, &opt.Text, &opt.IsCorrect, &opt.SortOrder); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if pos, ok := sqIndex[opt.SubQuestionID]; ok {
			sq := &st.Items[pos[0]].SubQuestions[pos[1]]
			sq.Options = append(sq.Options, opt)
		}
	}
	return st, optRows.Err()
}

func (s *Service) CreateItem(ctx context.Context, examID int64, in CreateItemInput) (*Item, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" || !validScoringType(in.ScoringType) {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create item: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM exams WHERE id = $1)
	`, examID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check exam: %w", err)
	}
	if !exists {
		return nil, ErrExamNotFound
	}

	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE exam_id = $1 AND code = $2)
	`, examID, code).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check item code: %w", err)
	}
	if exists {
		return nil, ErrItemCodeExists
	}

	var it Item
	err = tx.QueryRowContext(ctx, `
		INSERT INTO items (exam_id, code, sort_order, instruction, scoring_type,
			correct_criteria, partial_criteria, incorrect_criteria)
		SELECT $1, $2, COALESCE(MAX(sort_order), 0) + 1, $3, $4, $5, $6, $7
		FROM items
		WHERE exam_id = $1
		RETURNING id, exam_id, code, sort_order, instruction, scoring_type,
			correct_criteria, partial_criteria, incorrect_criteria
	`, examID, code, in.Instruction, in.ScoringType,
		in.CorrectCriteria, in.PartialCriteria, in.IncorrectCriteria).Scan(
		&it.ID, &it.ExamID, &it.Code, &it.SortOrder, &it.Instruction, &it.ScoringType,
		&it.CorrectCriteria, &it.PartialCriteria, &it.IncorrectCriteria)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create item: %w", err)
	}
	return &it, nil
}

func (s *Service) UpdateItem(ctx context.Context, itemID int64, in UpdateItemInput) (*Item, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" || !validScoringType(in.ScoringType) {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update item: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var taken bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM items other
			JOIN items me ON me.exam_id = other.exam_id
			WHERE me.id = $1 AND other.code = $2 AND other.id <> $1
		)
	`, itemID, code).Scan(&taken); err != nil {
		return nil, fmt.Errorf("check item code: %w", err)
	}
	if taken {
		return nil, ErrItemCodeExists
	}

	var it Item
	err = tx.QueryRowContext(ctx, `
		UPDATE items
		SET code = $2, instruction = $3, scoring_type = $4,
			correct_criteria = $5, partial_criteria = $6, incorrect_criteria = $7
		WHERE id = $1
		RETURNING id, exam_id, code, sort_order, instruction, scoring_type,
			correct_criteria, partial_criteria, incorrect_criteria
	`, itemID, code, in.Instruction, in.ScoringType,
		in.CorrectCriteria, in.PartialCriteria, in.IncorrectCriteria).Scan(
		&it.ID, &it.ExamID, &it.Code, &it.SortOrder, &it.Instruction, &it.ScoringType,
		&it.CorrectCriteria, &it.PartialCriteria, &it.IncorrectCriteria)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update item: %w", err)
	}
	return &it, nil
}

func (s *Service) DeleteItem(ctx context.Context, itemID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *Service) CreateSubQuestion(ctx context.Context, itemID int64, in CreateSubQuestionInput) (*SubQuestion, error) {
	if !validQuestionType(in.QuestionType) {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create subquestion: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)
	`, itemID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check item: %w", err)
	}
	if !exists {
		return nil, ErrItemNotFound
	}

	var sq SubQuestion
	err = tx.QueryRowContext(ctx, `
		INSERT INTO subquestions (item_id, sort_order, context_text, question_type)
		SELECT $1, COALESCE(MAX(sort_order), 0) + 1, $2, $3
		FROM subquestions
		WHERE item_id = $1
		RETURNING id, item_id, sort_order, context_text, question_type
	`, itemID, in.ContextText, in.QuestionType).Scan(
		&sq.ID, &sq.ItemID, &sq.SortOrder, &sq.ContextText, &sq.QuestionType)
	if err != nil {
		return nil, fmt.Errorf("insert subquestion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create subquestion: %w", err)
	}
	return &sq, nil
}

// UpdateSubQuestion edits the text and type. Switching a closed subquestion
// to open discards its options; captured responses keep their text and lose
// the option reference through ON DELETE SET NULL.
func (s *Service) UpdateSubQuestion(ctx context.Context, subQuestionID int64, in UpdateSubQuestionInput) (*SubQuestion, error) {
	if !validQuestionType(in.QuestionType) {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update subquestion: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var sq SubQuestion
	err = tx.QueryRowContext(ctx, `
		UPDATE subquestions
		SET context_text = $2, question_type = $3
		WHERE id = $1
		RETURNING id, item_id, sort_order, context_text, question_type
	`, subQuestionID, in.ContextText, in.QuestionType).Scan(
		&sq.ID, &sq.ItemID, &sq.SortOrder, &sq.ContextText, &sq.QuestionType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update subquestion: %w", err)
	}

	if sq.QuestionType == "open" {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM options WHERE subquestion_id = $1
		`, subQuestionID); err != nil {
			return nil, fmt.Errorf("delete options: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update subquestion: %w", err)
	}
	return &sq, nil
}

func (s *Service) DeleteSubQuestion(ctx context.Context, subQuestionID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subquestions WHERE id = $1`, subQuestionID)
	if err != nil {
		return fmt.Errorf("delete subquestion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSubQuestionNotFound
	}
	return nil
}

func (s *Service) CreateOption(ctx context.Context, subQuestionID int64, in CreateOptionInput) (*Option, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create option: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var questionType string
	err = tx.QueryRowContext(ctx, `
		SELECT question_type
		FROM subquestions
		WHERE id = $1
		FOR UPDATE
	`, subQuestionID).Scan(&questionType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load subquestion: %w", err)
	}
	if questionType != "closed" {
		return nil, ErrSubQuestionOpen
	}

	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM options WHERE subquestion_id = $1
	`, subQuestionID).Scan(&count); err != nil {
		return nil, fmt.Errorf("count options: %w", err)
	}

	label := strings.TrimSpace(in.Label)
	if label == "" {
		label, err = NextOptionLabel(count)
		if err != nil {
			return nil, err
		}
	}

	var opt Option
	err = tx.QueryRowContext(ctx, `
		INSERT INTO options (subquestion_id, label, text, is_correct, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, subquestion_id, label, text, is_correct, sort_order
	`, subQuestionID, label, in.Text, in.IsCorrect, count+1).Scan(
		&opt.ID, &opt.SubQuestionID, &opt.Label, &opt.Text, &opt.IsCorrect, &opt.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("insert option: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create option: %w", err)
	}
	return &opt, nil
}

func (s *Service) UpdateOption(ctx context.Context, optionID int64, in UpdateOptionInput) (*Option, error) {
	var opt Option
	err := s.db.QueryRowContext(ctx, `
		UPDATE options
		SET text = $2, is_correct = $3
		WHERE id = $1
		RETURNING id, subquestion_id, label, text, is_correct, sort_order
	`, optionID, in.Text, in.IsCorrect).Scan(
		&opt.ID, &opt.SubQuestionID, &opt.Label, &opt.Text, &opt.IsCorrect, &opt.SortOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update option: %w", err)
	}
	return &opt, nil
}

// DeleteOption removes the option. Responses that selected it survive with
// selected_option_id nulled by the schema.
func (s *Service) DeleteOption(ctx context.Context, optionID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM options WHERE id = $1`, optionID)
	if err != nil {
		return fmt.Errorf("delete option: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOptionNotFound
	}
	return nil
}

// NextOptionLabel picks the label for a new option given how many the
// subquestion already has.
func NextOptionLabel(existing int) (string, error) {
	if existing < 0 || existing >= len(optionLabels) {
		return "", ErrOptionLimit
	}
	return string(optionLabels[existing]), nil
}

func validScoringType(t string) bool {
	return t == capture.ScoringDichotomous || t == capture.ScoringPolytomous
}

func validQuestionType(t string) bool {
	return t == "closed" || t == "open"
}
