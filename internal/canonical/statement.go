// Package canonical flattens extracted statement documents into the
// statements, statement_items and statement_upcoming_dues tables.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-pipeline/internal/jsontree"
	"github.com/dvloznov/statement-pipeline/internal/tables"
)

// TimestampLayout renders UTC timestamps with second precision and an
// explicit offset.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

// Document is one decoded statement JSON together with its provenance.
type Document struct {
	Root        jsontree.Value
	Hash        string
	URI         string
	StatementID string
	CreatedAt   string
	Now         time.Time
}

// NewDocument decodes raw and stamps it with identity columns.
func NewDocument(raw []byte, uri, statementID string, now time.Time) (Document, error) {
	root, err := jsontree.Parse(raw)
	if err != nil {
		return Document{}, fmt.Errorf("canonical: %s: %w", uri, err)
	}
	sum := sha256.Sum256(raw)
	now = now.UTC()
	return Document{
		Root:        root,
		Hash:        hex.EncodeToString(sum[:]),
		URI:         uri,
		StatementID: statementID,
		CreatedAt:   now.Format(TimestampLayout),
		Now:         now,
	}, nil
}

// NewStatementID returns a random identifier rendered as 32 hex digits.
func NewStatementID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// BuildStatement maps the document onto the canonical statement columns.
// It reports false when the statement date yields no year; such statements
// are not written.
func BuildStatement(doc Document) (tables.Row, bool) {
	rec := make(map[string]any, len(statementFields))
	for _, f := range statementFields {
		if len(f.aliases) == 0 {
			continue
		}
		v, ok := Resolve(doc.Root, f.aliases)
		rec[f.name] = coerce(f.typ, v, ok)
	}

	if rec["currency_code"] == nil {
		rec["currency_code"] = DefaultCurrency
	}
	if rec["available_credit"] == nil {
		total, okT := rec["total_credit_limit"].(float64)
		used, okU := rec["used_credit"].(float64)
		if okT && okU {
			rec["available_credit"] = total - used
		}
	}

	if _, ok := yearOfISO(rec["statement_date"]); !ok {
		return nil, false
	}

	rec["statement_id"] = doc.StatementID
	rec["data_source_hash"] = doc.Hash
	rec["created_at"] = doc.CreatedAt

	row := make(tables.Row, len(statementFields))
	for i, f := range statementFields {
		row[i] = rec[f.name]
	}
	return row, true
}

func yearOfISO(v any) (int, bool) {
	s, ok := v.(string)
	if !ok || len(s) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(s[:4])
	return y, err == nil
}

// statementYear is the partition year of a document's items and dues: the
// year of the statement date, or the current year when it cannot be read.
func statementYear(doc Document) int {
	if v, ok := doc.Root.Get(rootNode + ".fecha"); ok {
		if iso, ok := parseDateWith(v.Text(), itemDateLayouts); ok {
			if y, ok := yearOfISO(iso); ok {
				return y
			}
		}
	}
	return doc.Now.Year()
}
