package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rvaldes/tributario/internal/domain"

	"github.com/shopspring/decimal"
)

func exportRecords() []domain.QualificationRecord {
	return []domain.QualificationRecord{
		{
			ID:               "Q1",
			ClienteID:        "C1",
			FechaDeclaracion: "2024-03-15",
			TipoImpuesto:     "IVA",
			Pais:             "Chile",
			MontoDeclarado:   decimal.NewFromFloat(1500.50),
			Factores:         domain.NewKeyedFactors(map[string]any{"factor_8": 0.4, "factor_19": 0.6}),
			EsLocal:          false,
			Activo:           true,
		},
		{
			ID:                    "Q2",
			ClienteID:             "C2",
			FechaDeclaracion:      "2024-03-16",
			TipoImpuesto:          "Renta",
			Pais:                  "Chile",
			MontoDeclarado:        decimal.NewFromInt(200),
			Factores:              domain.NewPositionalFactors([]any{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.9, 0.9}),
			EsLocal:               true,
			PropietarioRegistroID: "U1",
			Activo:                true,
		},
	}
}

func TestExportCSV_WritesBOMAndRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calificaciones.csv")
	users := &stubUserRepo{ruts: map[string]string{"C1": "12.345.678-9"}}
	svc := newTestService(&stubQualificationRepo{}, users, nil)

	result := svc.ExportCSV(context.Background(), ExportRequest{
		FilePath: path,
		Records:  exportRecords(),
		Identity: domain.Identity{ID: "U1", Role: domain.RoleCliente},
	})
	if !result.Success {
		t.Fatalf("export failed: %s", result.Message)
	}
	if result.TotalRegistros != 2 {
		t.Fatalf("TotalRegistros = %d", result.TotalRegistros)
	}
	if !strings.Contains(result.Message, "2 registros") {
		t.Fatalf("Message = %q", result.Message)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatal("output must start with the UTF-8 BOM")
	}

	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})))
	rows, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}
	header := rows[0]
	if header[0] != "RUT Cliente" || header[len(header)-1] != "Válido" {
		t.Fatalf("unexpected header: %v", header)
	}
	if rows[1][0] != "12.345.678-9" {
		t.Fatalf("resolved RUT = %q", rows[1][0])
	}
	if rows[2][0] != "N/A" {
		t.Fatalf("unresolved RUT = %q", rows[2][0])
	}
	// Q2's factors 8 and 9 sum to 1.8, above the validity cutoff.
	if rows[1][len(header)-1] != "Sí" || rows[2][len(header)-1] != "No (>1.0)" {
		t.Fatalf("validity labels = %q / %q", rows[1][len(header)-1], rows[2][len(header)-1])
	}
}

func TestExportCSV_EmptyInput(t *testing.T) {
	svc := newTestService(&stubQualificationRepo{}, nil, nil)
	path := filepath.Join(t.TempDir(), "vacio.csv")

	result := svc.ExportCSV(context.Background(), ExportRequest{
		FilePath: path,
		Identity: domain.Identity{ID: "U1", Role: domain.RoleCliente},
	})
	if result.Success || result.Message != "No hay datos para exportar" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("no file must be written for an empty export")
	}
}

func TestExportCSV_UnauthorizedInput(t *testing.T) {
	svc := newTestService(&stubQualificationRepo{}, nil, nil)
	path := filepath.Join(t.TempDir(), "ajeno.csv")

	foreignLocal := []domain.QualificationRecord{
		{ID: "Q9", EsLocal: true, PropietarioRegistroID: "U2", Factores: validFactors()},
	}
	result := svc.ExportCSV(context.Background(), ExportRequest{
		FilePath: path,
		Records:  foreignLocal,
		Identity: domain.Identity{ID: "U1", Role: domain.RoleCliente},
	})
	if result.Success || result.Message != "No tiene permisos para exportar estos datos" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("no file must be written for an unauthorized export")
	}
}

func TestExportCSV_RecordsHistoryAndProgress(t *testing.T) {
	runs := &stubReportRepo{}
	sink := &captureSink{}
	svc := newTestService(&stubQualificationRepo{}, &stubUserRepo{}, runs, WithAuditSink(sink))
	path := filepath.Join(t.TempDir(), "historial.csv")

	var milestones []int
	result := svc.ExportCSV(context.Background(), ExportRequest{
		FilePath: path,
		Records:  exportRecords(),
		Identity: domain.Identity{ID: "ADMIN", Role: domain.RoleAdministrador},
		Progress: func(percent int) { milestones = append(milestones, percent) },
	})
	if !result.Success {
		t.Fatalf("export failed: %s", result.Message)
	}

	if len(runs.appended) != 1 {
		t.Fatalf("expected a history entry, got %d", len(runs.appended))
	}
	run := runs.appended[0]
	if run.Formato != "CSV" || run.NombreArchivo != "historial.csv" || run.TotalRegistros != 2 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(sink.actions) != 1 || sink.actions[0] != "REPORTE_GENERADO" {
		t.Fatalf("audit actions = %v", sink.actions)
	}

	want := []int{20, 50, 80, 100}
	if len(milestones) != len(want) {
		t.Fatalf("milestones = %v, want %v", milestones, want)
	}
	for i, percent := range want {
		if milestones[i] != percent {
			t.Fatalf("milestones = %v, want %v", milestones, want)
		}
	}
}

func TestExportCSV_CancelledContext(t *testing.T) {
	svc := newTestService(&stubQualificationRepo{}, &stubUserRepo{}, nil)
	path := filepath.Join(t.TempDir(), "cancelado.csv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := svc.ExportCSV(ctx, ExportRequest{
		FilePath: path,
		Records:  exportRecords(),
		Identity: domain.Identity{ID: "ADMIN", Role: domain.RoleAdministrador},
	})
	if result.Success {
		t.Fatal("cancelled export must not succeed")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("cancelled export must not leave a file behind")
	}
}

func TestFormatScalar(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"texto", "texto"},
		{0.25, "0.25"},
		{7, "7"},
		{decimal.NewFromFloat(1500.50), "1500.5"},
		{true, "true"},
	}
	for _, tc := range cases {
		if got := formatScalar(tc.in); got != tc.want {
			t.Errorf("formatScalar(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
