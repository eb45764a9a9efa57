package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
	"github.com/joseph-ayodele/checkup-extractor/internal/repository"
)

const (
	recordsSheet = "Records"
	resultsSheet = "Results"
)

// Service produces XLSX bytes for exports of completed health records.
type Service struct {
	records repository.HealthRecordRepository
	logger  *slog.Logger
}

func NewService(records repository.HealthRecordRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, logger: logger}
}

// ExportXLSX returns a workbook with one row per completed record on the
// Records sheet and one row per extracted test value on the Results sheet.
// limit <= 0 exports the store's default page.
func (s *Service) ExportXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	recs, err := s.records.List(ctx, repository.ListOptions{Status: constants.RecordStatusCompleted, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default sheet becomes Records
	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(resultsSheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(recordsSheet)
	f.SetActiveSheet(activeIndex)

	recordHeaders := []string{"Record ID", "Source", "Parsed At"}
	for _, m := range checkup.MetadataFields {
		recordHeaders = append(recordHeaders, m.Label)
	}
	writeRow(f, recordsSheet, 1, recordHeaders)
	writeRow(f, resultsSheet, 1, []string{"Record ID", "Field", "Test", "Value", "Unit", "Page"})

	recRow, resRow := 2, 2
	for _, r := range recs {
		if r.Data == nil {
			continue
		}
		row := []string{r.ID.String(), r.Source, r.UpdatedAt.Format(time.RFC3339)}
		for _, m := range checkup.MetadataFields {
			v, _ := r.Data.Value(m.Key)
			row = append(row, v)
		}
		writeRow(f, recordsSheet, recRow, row)
		recRow++

		for _, tf := range checkup.TestFields {
			t := r.Data.Tests[tf.Key]
			if !t.HasValue() {
				continue
			}
			unit := ""
			if t.Unit != nil {
				unit = *t.Unit
			}
			writeRow(f, resultsSheet, resRow, []string{r.ID.String(), tf.Key, tf.Label, *t.Value, unit, pageOf(r, tf.Key)})
			resRow++
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(recordsSheet, "A", "A", 38) // id
	_ = f.SetColWidth(recordsSheet, "B", "B", 40) // source
	_ = f.SetColWidth(recordsSheet, "C", "I", 20)
	_ = f.SetColWidth(resultsSheet, "A", "A", 38)
	_ = f.SetColWidth(resultsSheet, "B", "C", 26)
	_ = f.SetColWidth(resultsSheet, "D", "F", 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"records", recRow-2,
		"results", resRow-2,
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []string) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func pageOf(r *entity.HealthRecord, key string) string {
	if r.Metadata == nil {
		return ""
	}
	if p, ok := r.Metadata.Pages.Lookup(key); ok {
		return fmt.Sprintf("%d", p)
	}
	return ""
}
