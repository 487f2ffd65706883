package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jackzampolin/ocrion/internal/region"
)

const (
	callsSheet   = "Calls"
	summarySheet = "Summary"
)

// Export writes calls matching filter to an XLSX workbook with a Calls sheet
// and a per-outcome Summary sheet. Paging in filter applies to the Calls
// sheet; a zero Limit exports up to MaxLimit rows.
func Export(ctx context.Context, s *Store, filter QueryFilter) ([]byte, error) {
	if filter.Limit <= 0 {
		filter.Limit = MaxLimit
	}
	calls, err := s.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	counts, err := s.CountByOutcome(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count calls: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1".
	if err := f.SetSheetName("Sheet1", callsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Timestamp", "Request ID", "Attempt", "Variant", "Provider", "Model",
		"Outcome", "Latency (ms)", "Prompt Hash", "Error", "Response",
	}
	writeRow(f, callsSheet, 1, toAny(headers)...)
	for i, c := range calls {
		writeRow(f, callsSheet, i+2,
			c.Timestamp.Format(time.RFC3339),
			c.RequestID,
			c.Attempt,
			string(c.Variant),
			c.Provider,
			c.Model,
			string(c.Outcome),
			c.LatencyMs,
			c.PromptHash,
			c.Error,
			truncate(c.Response, 32000),
		)
	}
	_ = f.SetColWidth(callsSheet, "A", "A", 22) // timestamp
	_ = f.SetColWidth(callsSheet, "B", "B", 38) // request id
	_ = f.SetColWidth(callsSheet, "E", "F", 28) // provider, model
	_ = f.SetColWidth(callsSheet, "I", "I", 20) // hash
	_ = f.SetColWidth(callsSheet, "J", "K", 60) // error, response

	outcomes := make([]string, 0, len(counts))
	for o := range counts {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)

	writeRow(f, summarySheet, 1, "Outcome", "Calls")
	for i, o := range outcomes {
		writeRow(f, summarySheet, i+2, o, counts[region.Outcome(o)])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// truncate keeps cells under the spreadsheet cell length limit.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
