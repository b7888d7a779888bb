// Package export renders an annotation sequence for download: the JSON
// document written by the stores, an XLSX workbook and summary statistics.
package export

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/medveriground/bbox-annotator/pkg/store"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

// JSON returns the pretty-printed record array and its download file name
func JSON(records []types.Record, annotatorID string) ([]byte, string, error) {
	data, err := store.Encode(records)
	if err != nil {
		return nil, "", err
	}
	return data, store.LocalFileName(annotatorID), nil
}

// Stats summarises an annotation sequence
type Stats struct {
	Total       int                    `json:"total"`
	Flagged     int                    `json:"flagged"`
	Decisions   map[types.Decision]int `json:"decisions"`
	Tiers       map[types.Tier]int     `json:"tiers"`
	Reasons     map[string]int         `json:"reasons,omitempty"`
	Annotators  int                    `json:"annotators"`
	MeanSeconds float64                `json:"mean_seconds"`
}

// Summarize counts decisions, tiers and rejection reasons
func Summarize(records []types.Record) Stats {
	st := Stats{
		Total:     len(records),
		Decisions: make(map[types.Decision]int),
		Tiers:     make(map[types.Tier]int),
		Reasons:   make(map[string]int),
	}
	annotators := make(map[string]struct{})

	var seconds float64
	for _, r := range records {
		st.Decisions[r.Decision]++
		st.Tiers[r.GroundingTier]++
		if r.RejectionReason != nil {
			st.Reasons[*r.RejectionReason]++
		}
		if r.Notes != nil && *r.Notes == types.FlaggedNote {
			st.Flagged++
		}
		annotators[r.AnnotatorID] = struct{}{}
		seconds += r.TimeSpent
	}

	st.Annotators = len(annotators)
	if len(records) > 0 {
		st.MeanSeconds = seconds / float64(len(records))
	}
	return st
}

const (
	annotationSheet = "Annotations"
	summarySheet    = "Summary"
)

var headers = []string{
	"Example ID",
	"Evidence",
	"Phrase",
	"Original Phrase",
	"Decision",
	"Adjustment",
	"Grounding Tier",
	"Proposed BBox",
	"Final BBox",
	"Rejection Reason",
	"Flagged",
	"Annotator",
	"Annotation Time",
	"Time Spent (s)",
	"Question",
	"Answer",
}

// XLSX renders records as a workbook with an annotation sheet and a summary
// sheet
func XLSX(records []types.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", annotationSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(annotationSheet, cell, h)
	}

	for i, r := range records {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(annotationSheet, cell, v)
		}

		reason := ""
		if r.RejectionReason != nil {
			reason = *r.RejectionReason
		}
		flagged := r.Notes != nil && *r.Notes == types.FlaggedNote

		write(1, r.ExampleID)
		write(2, r.EvidIndex)
		write(3, r.Phrase)
		write(4, r.OriginalPhrase)
		write(5, string(r.Decision))
		write(6, string(r.AdjustmentType))
		write(7, string(r.GroundingTier))
		write(8, r.ProposedBBox.String())
		write(9, r.FinalBBox.String())
		write(10, reason)
		write(11, flagged)
		write(12, r.AnnotatorID)
		write(13, r.AnnotationTime)
		write(14, r.TimeSpent)
		write(15, r.Question)
		write(16, r.Answer)
	}

	_ = f.SetColWidth(annotationSheet, "A", "B", 12)
	_ = f.SetColWidth(annotationSheet, "C", "D", 36)
	_ = f.SetColWidth(annotationSheet, "E", "G", 18)
	_ = f.SetColWidth(annotationSheet, "H", "I", 34)
	_ = f.SetColWidth(annotationSheet, "J", "J", 24)
	_ = f.SetColWidth(annotationSheet, "O", "P", 48)
	_ = f.SetPanes(annotationSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if err := writeSummary(f, Summarize(records)); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, st Stats) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	row := 1
	put := func(label string, v any) {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), label)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), v)
		row++
	}

	put("Total", st.Total)
	put("Flagged", st.Flagged)
	put("Annotators", st.Annotators)
	put("Mean seconds", st.MeanSeconds)
	row++

	for _, d := range types.Decisions() {
		put("decision:"+string(d), st.Decisions[d])
	}
	row++
	for _, t := range []types.Tier{types.TierTight, types.TierAnatomical, types.TierNoGrounding, types.TierRejected} {
		put("tier:"+string(t), st.Tiers[t])
	}
	if len(st.Reasons) > 0 {
		row++
		reasons := make([]string, 0, len(st.Reasons))
		for r := range st.Reasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			put("reason:"+r, st.Reasons[r])
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 36)
	return nil
}
