package reports

import (
	"context"
	"strconv"

	"github.com/rvaldes/tributario/internal/domain"
	"github.com/rvaldes/tributario/internal/rut"

	"github.com/shopspring/decimal"
)

// Fixed column labels. Factor columns are generated between Monto
// Declarado and Suma Factores 8-19.
const (
	colRutCliente   = "RUT Cliente"
	colFecha        = "Fecha Declaración"
	colTipoImpuesto = "Tipo Impuesto"
	colPais         = "País"
	colMonto        = "Monto Declarado"
	colSumaFactores = "Suma Factores 8-19"
	colEstado       = "Estado"
	colValido       = "Válido"
)

const (
	validoLabel   = "Sí"
	invalidoLabel = "No (>1.0)"
)

// Columns returns the fixed, ordered export column set.
func Columns() []string {
	columns := make([]string, 0, 5+domain.FactorCount+3)
	columns = append(columns, colRutCliente, colFecha, colTipoImpuesto, colPais, colMonto)
	for i := 1; i <= domain.FactorCount; i++ {
		columns = append(columns, "Factor "+strconv.Itoa(i))
	}
	columns = append(columns, colSumaFactores, colEstado, colValido)
	return columns
}

// Row holds one normalized record keyed by column name. Ordering comes
// from the Table's column slice, not the map.
type Row map[string]any

// Table is the normalized tabular form every serializer consumes.
type Table struct {
	Columns []string
	Rows    []Row
}

// Normalize flattens authorized records into the fixed column layout.
// RUTs resolve through the session cache; factor values of either stored
// shape collapse into the 19 named columns. A batch with no records yields
// an empty table, never an error.
func Normalize(ctx context.Context, records []domain.QualificationRecord, resolver *rut.Resolver) Table {
	table := Table{
		Columns: Columns(),
		Rows:    make([]Row, 0, len(records)),
	}
	for _, record := range records {
		table.Rows = append(table.Rows, normalizeRecord(ctx, record, resolver))
	}
	return table
}

func normalizeRecord(ctx context.Context, record domain.QualificationRecord, resolver *rut.Resolver) Row {
	factores := record.Factores.Resolve()
	suma := record.Factores.Sum8to19()

	row := Row{
		colRutCliente:   resolver.Resolve(ctx, record.ClienteID),
		colFecha:        record.FechaDeclaracion,
		colTipoImpuesto: record.TipoImpuesto,
		colPais:         record.Pais,
		colMonto:        record.MontoDeclarado,
	}
	for i, valor := range factores {
		row["Factor "+strconv.Itoa(i+1)] = valor
	}
	row[colSumaFactores] = suma
	row[colEstado] = record.Estado()
	row[colValido] = validezLabel(suma)
	return row
}

func validezLabel(suma float64) string {
	if suma <= 1.0 {
		return validoLabel
	}
	return invalidoLabel
}

// Stats aggregates the summary-sheet figures for a record set.
type Stats struct {
	Locales       int
	Bolsa         int
	Validos       int
	Invalidos     int
	MontoTotal    decimal.Decimal
	MontoPromedio decimal.Decimal
}

// ComputeStats derives summary statistics from the authorized record set.
// The average guards against an empty set.
func ComputeStats(records []domain.QualificationRecord) Stats {
	stats := Stats{MontoTotal: decimal.Zero, MontoPromedio: decimal.Zero}
	for _, record := range records {
		if record.EsLocal {
			stats.Locales++
		} else {
			stats.Bolsa++
		}
		if record.Factores.Sum8to19() <= 1.0 {
			stats.Validos++
		} else {
			stats.Invalidos++
		}
		stats.MontoTotal = stats.MontoTotal.Add(record.MontoDeclarado)
	}
	if len(records) > 0 {
		stats.MontoPromedio = stats.MontoTotal.Div(decimal.NewFromInt(int64(len(records)))).Round(2)
	}
	return stats
}
