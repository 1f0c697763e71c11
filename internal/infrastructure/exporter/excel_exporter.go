package exporter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	SheetName = "History"

	timeLayout = time.RFC3339Nano
)

var header = []string{"#", "Role", "Text", "Timestamp"}

type excelExporter struct{}

// NewExcelExporter yangi Excel exporter yaratish
func NewExcelExporter() repository.HistoryExporter {
	return &excelExporter{}
}

func (e *excelExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *excelExporter) Extension() string {
	return "xlsx"
}

// Export writes one row per message, in display order.
func (e *excelExporter) Export(ctx context.Context, w io.Writer, conv entity.Conversation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, bold)
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	_ = f.SetColWidth(SheetName, "C", "C", 80)
	_ = f.SetColWidth(SheetName, "D", "D", 24)

	for i, msg := range conv.Messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n := utf16Len(msg.Text); n > excelize.TotalCellChars {
			return fmt.Errorf("message %d has %d characters: %w", i+1, n, errs.ErrMessageTooLong)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{i + 1, string(msg.Role), msg.Text, msg.Timestamp.UTC().Format(timeLayout)}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
		textCell, _ := excelize.CoordinatesToCellName(3, i+2)
		_ = f.SetCellStyle(SheetName, textCell, textCell, wrap)
	}

	if conv.ID != "" {
		_ = f.SetDocProps(&excelize.DocProperties{Title: "NeethOs chat " + conv.ID, Creator: "neethos"})
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (e *excelExporter) Import(ctx context.Context, r io.Reader, conversationID string) ([]entity.Message, error) {
	return ParseHistory(ctx, r, conversationID)
}

// ParseHistory reads a workbook produced by Export (or typed by hand with the same
// columns) back into messages for conversationID.
func ParseHistory(ctx context.Context, r io.Reader, conversationID string) ([]entity.Message, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}
	sheet := sheets[0]
	if idx, err := f.GetSheetIndex(SheetName); err == nil && idx >= 0 {
		sheet = SheetName
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excel file is empty")
	}

	columns := mapColumns(rows[0])
	roleCol, okRole := columns["role"]
	textCol, okText := columns["text"]
	if !okRole || !okText {
		return nil, fmt.Errorf("header must contain Role and Text columns, got %v", rows[0])
	}
	tsCol, hasTS := columns["timestamp"]

	msgs := make([]entity.Message, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rawRole := strings.TrimSpace(cellAt(row, roleCol))
		// message text is kept verbatim, including indentation
		text := cellAt(row, textCol)
		if rawRole == "" && strings.TrimSpace(text) == "" {
			continue
		}
		role, ok := entity.ParseRole(rawRole)
		if !ok {
			return nil, fmt.Errorf("row %d: unknown role %q", i+2, rawRole)
		}

		ts := time.Now().UTC()
		if hasTS {
			if parsed, err := time.Parse(timeLayout, strings.TrimSpace(cellAt(row, tsCol))); err == nil {
				ts = parsed
			}
		}
		msgs = append(msgs, entity.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Role:           role,
			Text:           text,
			Timestamp:      ts,
		})
	}
	return msgs, nil
}

// mapColumns header nomlaridan ustun indekslarini topish
func mapColumns(header []string) map[string]int {
	columns := make(map[string]int)
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "role", "sender", "author":
			columns["role"] = i
		case "text", "message", "content":
			columns["text"] = i
		case "timestamp", "time", "date":
			columns["timestamp"] = i
		case "#", "no":
			columns["index"] = i
		}
	}
	return columns
}

// utf16Len counts UTF-16 code units, the unit of the spreadsheet cell limit.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if utf16.RuneLen(r) == 2 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
