package reports

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rvaldes/tributario/internal/domain"
	"github.com/rvaldes/tributario/internal/rut"

	"github.com/shopspring/decimal"
)

// utf8BOM keeps the delimited output readable by spreadsheet tools.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// cancelCheckInterval is the row batch size between cooperative
// cancellation checkpoints.
const cancelCheckInterval = 500

// ExportRequest carries one export invocation through a serializer.
type ExportRequest struct {
	FilePath string
	Records  []domain.QualificationRecord
	Filters  domain.FilterSpec
	Identity domain.Identity
	Progress ProgressFunc
}

// ExportResult is the structured outcome of a serialization attempt. No
// error crosses the pipeline boundary; failures arrive here as a message.
type ExportResult struct {
	Success        bool
	Message        string
	FilePath       string
	TotalRegistros int
}

func failure(message string) ExportResult {
	return ExportResult{Success: false, Message: message}
}

// ExportCSV authorizes, normalizes and serialises the record set as
// UTF-8-with-BOM delimited text, then records the run in history.
func (s *Service) ExportCSV(ctx context.Context, req ExportRequest) ExportResult {
	if len(req.Records) == 0 {
		return failure("No hay datos para exportar")
	}
	authorized := Authorize(req.Records, req.Identity)
	if len(authorized) == 0 {
		return failure("No tiene permisos para exportar estos datos")
	}
	req.Progress.report(20)

	resolver := rut.NewResolver(s.users)
	defer resolver.Clear()
	table := Normalize(ctx, authorized, resolver)
	req.Progress.report(50)

	if err := writeCSVFile(ctx, req.FilePath, table); err != nil {
		log.Printf("[reports] error al exportar CSV: %v", err)
		return failure(fmt.Sprintf("Error al exportar: %v", err))
	}
	req.Progress.report(80)

	s.RecordReport(ctx, req.Identity, domain.ReportTypeExportacion, req.Filters,
		len(authorized), domain.FormatCSV, filepath.Base(req.FilePath))
	req.Progress.report(100)

	log.Printf("[reports] CSV exportado: %s (%d registros)", req.FilePath, len(authorized))
	return ExportResult{
		Success:        true,
		Message:        fmt.Sprintf("CSV generado exitosamente con %d registros", len(authorized)),
		FilePath:       req.FilePath,
		TotalRegistros: len(authorized),
	}
}

func writeCSVFile(ctx context.Context, path string, table Table) error {
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".export-*.csv")
	if err != nil {
		return fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriterSize(tempFile, 1<<20)
	if _, err := buffered.Write(utf8BOM); err != nil {
		return fmt.Errorf("write byte-order mark: %w", err)
	}
	csvWriter := csv.NewWriter(buffered)

	if err := csvWriter.Write(table.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rowBuffer := make([]string, len(table.Columns))
	for i, row := range table.Rows {
		if i%cancelCheckInterval == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		for j, column := range table.Columns {
			rowBuffer[j] = formatScalar(row[column])
		}
		if err := csvWriter.Write(rowBuffer); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("flush buffered rows: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync export file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("promote export file: %w", err)
	}
	cleanup = false
	return nil
}

func formatScalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case decimal.Decimal:
		return v.String()
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}
