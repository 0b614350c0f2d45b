package canonical

import (
	"github.com/google/uuid"

	"github.com/dvloznov/statement-pipeline/internal/jsontree"
	"github.com/dvloznov/statement-pipeline/internal/tables"
)

const periodoActual = rootNode + ".detalle.periodo_actual"

// itemSections are the fixed item sections, in output order.
var itemSections = []struct {
	category string
	path     string
}{
	{"pagos_a_la_cuenta", periodoActual + ".operaciones.pagos_a_la_cuenta"},
	{"compras_en_cuotas", periodoActual + ".operaciones.compras_en_cuotas"},
	{"voluntariamente_contratados_sin_movimientos", periodoActual + ".voluntariamente_contratados_sin_movimientos"},
	{"cargos_comisiones_impuestos_abonos", periodoActual + ".cargos_comisiones_impuestos_abonos"},
}

// ExtrasPath is where free-form sections of the current period live.
const ExtrasPath = periodoActual + ".extras_periodo_actual"

// BuildItems flattens every item section of the document. A section that
// is present but has no items yields one placeholder row so its presence
// is preserved.
func BuildItems(doc Document) []tables.Row {
	year := statementYear(doc)
	var rows []tables.Row

	for _, s := range itemSections {
		section, ok := doc.Root.Get(s.path)
		if !ok || !section.IsObject() {
			continue
		}
		rows = append(rows, sectionRows(doc, section, s.category, year)...)
	}

	extras, ok := doc.Root.Get(ExtrasPath)
	if !ok {
		return rows
	}
	sections, _ := extras.Array()
	for _, section := range sections {
		if !section.IsObject() {
			continue
		}
		var category any
		if t, ok := section.Child("titulo"); ok {
			category = t.Text()
		}
		rows = append(rows, sectionRows(doc, section, category, year)...)
	}
	return rows
}

func sectionRows(doc Document, section jsontree.Value, category any, year int) []tables.Row {
	var items []jsontree.Value
	if v, ok := section.Child("items"); ok {
		items, _ = v.Array()
	}
	if len(items) == 0 {
		return []tables.Row{itemRow(doc, jsontree.Value{}, category, 1, year)}
	}
	rows := make([]tables.Row, 0, len(items))
	for i, item := range items {
		rows = append(rows, itemRow(doc, item, category, i+1, year))
	}
	return rows
}

func itemRow(doc Document, item jsontree.Value, category any, order, year int) tables.Row {
	rec := map[string]any{
		"item_id":          uuid.NewString(),
		"statement_id":     doc.StatementID,
		"data_source_hash": doc.Hash,
		"created_at":       doc.CreatedAt,
		"ingestion_ts":     doc.CreatedAt,
		"raw_bucket_path":  doc.URI,
		"category":         category,
		"line_order":       int64(order),
		"year":             int64(year),
	}
	for _, f := range itemFields {
		v, ok := Resolve(item, f.aliases)
		rec[f.name] = coerce(f.typ, v, ok)
	}

	rec["sign"] = nil
	if amount, ok := rec["operation_amount"].(float64); ok {
		if amount >= 0 {
			rec["sign"] = int64(1)
		} else {
			rec["sign"] = int64(-1)
		}
	}
	if rec["currency_code"] == nil || rec["currency_code"] == "" {
		rec["currency_code"] = DefaultCurrency
	}

	return tables.NewFrame(ItemColumns).Record(rec)
}
