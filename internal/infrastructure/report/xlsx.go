// Package report renders a completed call analysis as an XLSX workbook
// for download by coaches.
package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

// BuildWorkbook renders call into a three-sheet workbook: summary,
// per-dimension breakdown, and the transcript. The call must carry an
// analysis.
func BuildWorkbook(call *domain.Call) ([]byte, error) {
	if call.Analysis == nil {
		return nil, fmt.Errorf("report: call %s has no analysis", call.ID)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummarySheet(f, call); err != nil {
		return nil, err
	}
	if err := writeDimensionsSheet(f, call.Analysis); err != nil {
		return nil, err
	}
	if err := writeTranscriptSheet(f, call.Transcript); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("report: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, call *domain.Call) error {
	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	analysis := call.Analysis
	rows := [][]any{
		{"Call ID", call.ID},
		{"Filename", call.OriginalFilename},
		{"Duration (s)", call.DurationSeconds},
		{"Scenario", call.ScenarioType},
		{"Overall score", analysis.OverallScore},
		{"Summary", analysis.Summary},
		{},
		{"Strengths"},
	}
	for _, s := range analysis.Strengths {
		rows = append(rows, []any{"", s})
	}
	rows = append(rows, []any{}, []any{"Improvements"})
	for _, s := range analysis.Improvements {
		rows = append(rows, []any{"", s})
	}

	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", "B", 40)
}

func writeDimensionsSheet(f *excelize.File, analysis *domain.ScoringResult) error {
	const sheet = "Dimensions"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]any{{"Dimension", "Score (0-10)", "Feedback", "Criteria passed"}}
	for _, dim := range analysis.Dimensions {
		passed := 0
		var missed []string
		for _, c := range dim.Criteria {
			if c.Passed {
				passed++
			} else {
				missed = append(missed, c.Name)
			}
		}
		detail := fmt.Sprintf("%d/%d", passed, len(dim.Criteria))
		if len(missed) > 0 {
			detail += " (missed: " + strings.Join(missed, ", ") + ")"
		}
		rows = append(rows, []any{dim.Dimension, dim.Score, dim.Feedback, detail})
	}

	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", "D", 35)
}

func writeTranscriptSheet(f *excelize.File, transcript []domain.TranscriptEntry) error {
	const sheet = "Transcript"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]any{{"Time (ms)", "Speaker", "Text"}}
	for _, entry := range transcript {
		speaker := "prospect"
		if entry.Role == domain.RoleUser {
			speaker = "rep"
		}
		rows = append(rows, []any{entry.Timestamp, speaker, entry.Content})
	}

	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "C", "C", 80)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
