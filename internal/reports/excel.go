package reports

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rvaldes/tributario/internal/domain"
	"github.com/rvaldes/tributario/internal/rut"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	dataSheetName    = "Calificaciones Tributarias"
	summarySheetName = "Resumen"

	// Corporate palette.
	headerColor  = "E94E1B"
	borderColor  = "E6E9EE"
	invalidColor = "FFCCCC"

	maxColumnWidth = 50
)

// ExportExcel authorizes, normalizes and serialises the record set as a
// two-sheet styled workbook, then records the run in history.
func (s *Service) ExportExcel(ctx context.Context, req ExportRequest) ExportResult {
	if len(req.Records) == 0 {
		return failure("No hay datos para exportar")
	}
	authorized := Authorize(req.Records, req.Identity)
	if len(authorized) == 0 {
		return failure("No tiene permisos para exportar estos datos")
	}
	req.Progress.report(10)

	resolver := rut.NewResolver(s.users)
	defer resolver.Clear()
	table := Normalize(ctx, authorized, resolver)
	req.Progress.report(30)

	summary := summaryData{
		GeneratedAt: s.ChileTime(),
		Identity:    req.Identity,
		Filters:     req.Filters,
		Total:       len(authorized),
		Stats:       ComputeStats(authorized),
	}
	if err := writeExcelFile(ctx, req.FilePath, table, summary, req.Progress); err != nil {
		log.Printf("[reports] error al exportar Excel: %v", err)
		return failure(fmt.Sprintf("Error al exportar: %v", err))
	}
	req.Progress.report(95)

	s.RecordReport(ctx, req.Identity, domain.ReportTypeExportacion, req.Filters,
		len(authorized), domain.FormatExcel, filepath.Base(req.FilePath))
	req.Progress.report(100)

	log.Printf("[reports] Excel exportado: %s (%d registros)", req.FilePath, len(authorized))
	return ExportResult{
		Success:        true,
		Message:        fmt.Sprintf("Excel generado exitosamente con %d registros", len(authorized)),
		FilePath:       req.FilePath,
		TotalRegistros: len(authorized),
	}
}

type summaryData struct {
	GeneratedAt time.Time
	Identity    domain.Identity
	Filters     domain.FilterSpec
	Total       int
	Stats       Stats
}

type excelStyles struct {
	header  int
	text    int
	number  int
	invalid int
}

func newExcelStyles(f *excelize.File) (excelStyles, error) {
	thinBorder := []excelize.Border{
		{Type: "left", Color: borderColor, Style: 1},
		{Type: "right", Color: borderColor, Style: 1},
		{Type: "top", Color: borderColor, Style: 1},
		{Type: "bottom", Color: borderColor, Style: 1},
	}
	header, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return excelStyles{}, fmt.Errorf("header style: %w", err)
	}
	text, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return excelStyles{}, fmt.Errorf("text style: %w", err)
	}
	number, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "right", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return excelStyles{}, fmt.Errorf("number style: %w", err)
	}
	invalid, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{invalidColor}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "right", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return excelStyles{}, fmt.Errorf("invalid style: %w", err)
	}
	return excelStyles{header: header, text: text, number: number, invalid: invalid}, nil
}

func writeExcelFile(ctx context.Context, path string, table Table, summary summaryData, progress ProgressFunc) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", dataSheetName); err != nil {
		return fmt.Errorf("rename data sheet: %w", err)
	}
	styles, err := newExcelStyles(f)
	if err != nil {
		return err
	}
	if err := writeDataSheet(ctx, f, table, styles, progress); err != nil {
		return err
	}
	progress.report(75)

	if err := writeSummarySheet(f, summary); err != nil {
		return err
	}
	progress.report(90)

	tempPath := path + ".tmp"
	if err := f.SaveAs(tempPath); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("promote export file: %w", err)
	}
	return nil
}

func writeDataSheet(ctx context.Context, f *excelize.File, table Table, styles excelStyles, progress ProgressFunc) error {
	widths := make([]int, len(table.Columns))
	for col, name := range table.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell name: %w", err)
		}
		if err := f.SetCellValue(dataSheetName, cell, name); err != nil {
			return fmt.Errorf("write header cell: %w", err)
		}
		if err := f.SetCellStyle(dataSheetName, cell, cell, styles.header); err != nil {
			return fmt.Errorf("style header cell: %w", err)
		}
		widths[col] = len(name)
	}

	for i, row := range table.Rows {
		if i%cancelCheckInterval == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		rowNum := i + 2
		for col, name := range table.Columns {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			value := row[name]
			if err := f.SetCellValue(dataSheetName, cell, cellValue(value)); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
			style := styles.number
			if col < 4 {
				style = styles.text
			}
			if isFactorColumn(name) {
				if v, ok := value.(float64); ok && v > 1.0 {
					style = styles.invalid
				}
			}
			if err := f.SetCellStyle(dataSheetName, cell, cell, style); err != nil {
				return fmt.Errorf("style cell %s: %w", cell, err)
			}
			if n := len(formatScalar(value)); n > widths[col] {
				widths[col] = n
			}
		}
		if progress != nil && rowNum%100 == 0 {
			progress.report(30 + (i*40)/len(table.Rows))
		}
	}

	for col := range table.Columns {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		width := widths[col] + 2
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		if err := f.SetColWidth(dataSheetName, name, name, float64(width)); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	// Keep the header visible while scrolling.
	if err := f.SetPanes(dataSheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header row: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, summary summaryData) error {
	if _, err := f.NewSheet(summarySheetName); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16, Color: headerColor},
		Alignment: &excelize.Alignment{Horizontal: "left"},
	})
	if err != nil {
		return fmt.Errorf("title style: %w", err)
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("bold style: %w", err)
	}
	sectionStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return fmt.Errorf("section style: %w", err)
	}

	if err := f.SetCellValue(summarySheetName, "A1", "RESUMEN DE EXPORTACIÓN"); err != nil {
		return fmt.Errorf("write title: %w", err)
	}
	if err := f.SetCellStyle(summarySheetName, "A1", "A1", titleStyle); err != nil {
		return fmt.Errorf("style title: %w", err)
	}

	metadata := []struct {
		label string
		value string
	}{
		{"Fecha de generación:", summary.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Usuario:", summary.Identity.DisplayID()},
		{"Total de registros:", fmt.Sprintf("%d", summary.Total)},
		{"", ""},
		{"FILTROS APLICADOS:", ""},
		{"Fecha desde:", displayDate(summary.Filters.DateFromString())},
		{"Fecha hasta:", displayDate(summary.Filters.DateToString())},
		{"Tipo de impuesto:", displayOr(summary.Filters.TipoImpuesto, "Todos")},
		{"País:", displayOr(summary.Filters.Pais, "Todos")},
		{"Estado:", displayOr(string(summary.Filters.Estado), "Ambos")},
	}
	row := 3
	for _, item := range metadata {
		if err := writeSummaryPair(f, row, item.label, item.value, boldStyle); err != nil {
			return err
		}
		row++
	}

	row++
	sectionCell := fmt.Sprintf("A%d", row)
	if err := f.SetCellValue(summarySheetName, sectionCell, "ESTADÍSTICAS"); err != nil {
		return fmt.Errorf("write statistics header: %w", err)
	}
	if err := f.SetCellStyle(summarySheetName, sectionCell, sectionCell, sectionStyle); err != nil {
		return fmt.Errorf("style statistics header: %w", err)
	}
	row++

	stats := []struct {
		label string
		value string
	}{
		{"Registros Locales:", fmt.Sprintf("%d", summary.Stats.Locales)},
		{"Registros Bolsa:", fmt.Sprintf("%d", summary.Stats.Bolsa)},
		{"Registros Válidos:", fmt.Sprintf("%d", summary.Stats.Validos)},
		{"Registros Inválidos:", fmt.Sprintf("%d", summary.Stats.Invalidos)},
		{"Monto Total Declarado:", formatCurrency(summary.Stats.MontoTotal)},
		{"Monto Promedio:", formatCurrency(summary.Stats.MontoPromedio)},
	}
	for _, item := range stats {
		if err := writeSummaryPair(f, row, item.label, item.value, boldStyle); err != nil {
			return err
		}
		row++
	}

	if err := f.SetColWidth(summarySheetName, "A", "A", 30); err != nil {
		return fmt.Errorf("set summary column width: %w", err)
	}
	if err := f.SetColWidth(summarySheetName, "B", "B", 40); err != nil {
		return fmt.Errorf("set summary column width: %w", err)
	}
	return nil
}

func writeSummaryPair(f *excelize.File, row int, label, value string, labelStyle int) error {
	labelCell := fmt.Sprintf("A%d", row)
	if err := f.SetCellValue(summarySheetName, labelCell, label); err != nil {
		return fmt.Errorf("write summary label: %w", err)
	}
	if err := f.SetCellStyle(summarySheetName, labelCell, labelCell, labelStyle); err != nil {
		return fmt.Errorf("style summary label: %w", err)
	}
	if err := f.SetCellValue(summarySheetName, fmt.Sprintf("B%d", row), value); err != nil {
		return fmt.Errorf("write summary value: %w", err)
	}
	return nil
}

// cellValue converts a normalized scalar into what excelize should store.
// Decimals become floats so spreadsheet formulas keep working.
func cellValue(value any) any {
	if d, ok := value.(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return value
}

func isFactorColumn(name string) bool {
	return strings.HasPrefix(name, "Factor ")
}

func displayDate(value string) string {
	if value == "" {
		return "Sin filtro"
	}
	return value
}

func displayOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// formatCurrency renders an amount as "$1,234.56".
func formatCurrency(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	negative := strings.HasPrefix(fixed, "-")
	if negative {
		fixed = fixed[1:]
	}
	parts := strings.SplitN(fixed, ".", 2)
	integer := parts[0]

	var grouped strings.Builder
	for i, digit := range integer {
		if i > 0 && (len(integer)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}
	out := "$" + grouped.String() + "." + parts[1]
	if negative {
		out = "-" + out
	}
	return out
}
