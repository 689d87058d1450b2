package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"psicodata/internal/capture"
)

// utf8BOM lets Excel detect UTF-8 in the pivot CSV.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SerializeWinsteps renders one digit string per respondent, rows in
// row_number order, one digit per item in exam order. A stored ItemScore
// wins over the derived score; items with no subquestions and no stored
// score emit nothing. Columns are positional, so item order must never
// change between rows.
func SerializeWinsteps(m *ReadModel) string {
	lines := make([]string, 0, len(m.Rows))
	for _, row := range m.Rows {
		var sb strings.Builder
		for _, item := range m.Items {
			var direct *int
			if score, ok := m.ItemScores[ScoreKey{RowID: row.ID, ItemID: item.ID}]; ok {
				direct = &score
			}
			correct := 0
			for _, sq := range item.SubQuestions {
				if resp, ok := m.Responses[ResponseKey{RowID: row.ID, SubQuestionID: sq.ID}]; ok && resp.IsCorrect {
					correct++
				}
			}
			score, ok := capture.ResolveScore(item.ScoringType, direct, len(item.SubQuestions), correct)
			if !ok {
				continue
			}
			sb.WriteString(strconv.Itoa(score))
		}
		lines = append(lines, sb.String())
	}
	return strings.Join(lines, "\n")
}

type PivotColumn struct {
	Name          string
	SubQuestionID int64
}

// BuildPivotColumns flattens the exam structure into the pivot column plan:
// single-subquestion items use the bare item code, multi-subquestion items
// get one column per subquestion named code_order.
func BuildPivotColumns(items []Item) []PivotColumn {
	columns := make([]PivotColumn, 0)
	for _, item := range items {
		if len(item.SubQuestions) == 1 {
			columns = append(columns, PivotColumn{Name: item.Code, SubQuestionID: item.SubQuestions[0].ID})
			continue
		}
		for _, sq := range item.SubQuestions {
			columns = append(columns, PivotColumn{
				Name:          fmt.Sprintf("%s_%d", item.Code, sq.Order),
				SubQuestionID: sq.ID,
			})
		}
	}
	return columns
}

// SerializePivot builds the raw-answer grid: header plus one row per
// respondent. Cells carry the captured text or the selected option label,
// never scores; this is the human-auditable view of what was typed.
func SerializePivot(m *ReadModel) [][]string {
	columns := BuildPivotColumns(m.Items)

	header := make([]string, 0, len(columns)+1)
	header = append(header, "IDENTIFICATION")
	for _, col := range columns {
		header = append(header, col.Name)
	}

	grid := make([][]string, 0, len(m.Rows)+1)
	grid = append(grid, header)

	for _, row := range m.Rows {
		identification := row.ReferenceCode
		if identification == "" {
			identification = fmt.Sprintf("Row-%d", row.RowNumber)
		}
		cells := make([]string, 0, len(columns)+1)
		cells = append(cells, identification)
		for _, col := range columns {
			resp, ok := m.Responses[ResponseKey{RowID: row.ID, SubQuestionID: col.SubQuestionID}]
			switch {
			case !ok:
				cells = append(cells, "")
			case resp.TextResponse != "":
				cells = append(cells, resp.TextResponse)
			default:
				cells = append(cells, resp.OptionLabel)
			}
		}
		grid = append(grid, cells)
	}
	return grid
}

// WritePivotCSV writes the pivot grid as a semicolon-delimited CSV with a
// UTF-8 BOM prefix.
func WritePivotCSV(w io.Writer, m *ReadModel) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	for _, record := range SerializePivot(m) {
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func WinstepsFilename(m *ReadModel) string {
	return fmt.Sprintf("winsteps_%s_%s.txt", sanitizeName(m.ExamName), sanitizeName(m.ApplicationName))
}

func PivotFilename(m *ReadModel) string {
	return fmt.Sprintf("pivot_%s_%s.csv", sanitizeName(m.ExamName), sanitizeName(m.ApplicationName))
}

func PivotExcelFilename(m *ReadModel) string {
	return fmt.Sprintf("pivot_%s_%s.xlsx", sanitizeName(m.ExamName), sanitizeName(m.ApplicationName))
}

func sanitizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}
