package canonical

import (
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-pipeline/internal/tables"
)

// DuesPath locates the upcoming monthly dues of a statement.
const DuesPath = rootNode + ".informacion_de_pago.vencimiento_proximos_meses"

// BuildDues flattens the upcoming dues list. Entries that are not objects
// are skipped.
func BuildDues(doc Document) []tables.Row {
	list, ok := doc.Root.Get(DuesPath)
	if !ok {
		return nil
	}
	dues, ok := list.Array()
	if !ok {
		return nil
	}

	year := statementYear(doc)
	frame := tables.NewFrame(DueColumns)
	rows := make([]tables.Row, 0, len(dues))
	for i, due := range dues {
		if !due.IsObject() {
			continue
		}
		rec := map[string]any{
			"due_id":           uuid.NewString(),
			"statement_id":     doc.StatementID,
			"data_source_hash": doc.Hash,
			"created_at":       doc.CreatedAt,
			"ingestion_ts":     doc.CreatedAt,
			"raw_bucket_path":  doc.URI,
			"currency_code":    DefaultCurrency,
			"line_order":       int64(i + 1),
			"year":             int64(year),
		}
		if v, ok := due.Child("mes"); ok {
			rec["month_label"] = v.Text()
		}
		if v, ok := due.Child("monto"); ok {
			rec["due_amount"] = coerce(typeMoney, v, true)
		}
		rows = append(rows, frame.Record(rec))
	}
	return rows
}

// Bundle holds every row built from one statement document.
type Bundle struct {
	StatementID string
	Statement   tables.Row // nil when the statement has no usable date
	Items       []tables.Row
	Dues        []tables.Row
}

// Build decodes raw and builds all three record kinds under one fresh
// statement id.
func Build(raw []byte, uri string, now time.Time) (Bundle, error) {
	doc, err := NewDocument(raw, uri, NewStatementID(), now)
	if err != nil {
		return Bundle{}, err
	}
	b := Bundle{
		StatementID: doc.StatementID,
		Items:       BuildItems(doc),
		Dues:        BuildDues(doc),
	}
	if row, ok := BuildStatement(doc); ok {
		b.Statement = row
	}
	return b, nil
}

// Accumulator collects bundles into the three output frames.
type Accumulator struct {
	Statements tables.Frame
	Items      tables.Frame
	Dues       tables.Frame
}

// NewAccumulator returns empty frames with the canonical schemas.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		Statements: tables.NewFrame(StatementColumns),
		Items:      tables.NewFrame(ItemColumns),
		Dues:       tables.NewFrame(DueColumns),
	}
}

// Add appends the rows of b.
func (a *Accumulator) Add(b Bundle) {
	if b.Statement != nil {
		a.Statements.Rows = append(a.Statements.Rows, b.Statement)
	}
	a.Items.Rows = append(a.Items.Rows, b.Items...)
	a.Dues.Rows = append(a.Dues.Rows, b.Dues...)
}
