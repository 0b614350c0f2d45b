package extraction

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dvloznov/statement-pipeline/internal/canonical"
)

// itemKeys are the keys every normalized extras item carries.
var itemKeys = []string{
	"lugar_operacion",
	"fecha",
	"codigo",
	"referencia",
	"descripcion",
	"monto_operacion",
	"monto_total_a_pagar",
	"numero_cuota",
	"valor_cuota_mensual",
}

// labelKeys maps normalized printed labels to item keys.
var labelKeys = map[string]string{
	"MONTO":                  "monto_operacion",
	"MONTO OPERACION":        "monto_operacion",
	"TOTAL A PAGAR":          "monto_total_a_pagar",
	"MONTO TOTAL A PAGAR":    "monto_total_a_pagar",
	"VALOR CUOTA MENSUAL":    "valor_cuota_mensual",
	"VALOR DE CUOTA MENSUAL": "valor_cuota_mensual",
	"N° CUOTA":               "numero_cuota",
	"Nº CUOTA":               "numero_cuota",
	"NUMERO CUOTA":           "numero_cuota",
}

var (
	printedLine = regexp.MustCompile(`^(?P<lugar>[A-ZÑÁÉÍÓÚÜ\s]+)\s(?P<fecha>\d{2}/\d{2}/\d{2})\s(?P<codigo>\d+)\s(?P<referencia>\d+)\s(?P<descripcion>.+)$`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// NormalizeLabel strips accents, upper-cases and collapses whitespace.
func NormalizeLabel(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, label)
	if err != nil {
		stripped = label
	}
	return whitespace.ReplaceAllString(strings.ToUpper(strings.TrimSpace(stripped)), " ")
}

// NormalizeExtras rewrites every item of the free-form extras sections into
// the fixed item shape. Fields are taken from the printed line, then from
// the labelled values, then from keys the item already had.
func NormalizeExtras(doc map[string]any) {
	sections, ok := lookup(doc, "estado_de_cuenta", "detalle", "periodo_actual", "extras_periodo_actual").([]any)
	if !ok {
		return
	}
	for _, s := range sections {
		section, ok := s.(map[string]any)
		if !ok {
			continue
		}
		items, ok := section["items"].([]any)
		if !ok {
			continue
		}
		normalized := make([]any, 0, len(items))
		for _, it := range items {
			item, _ := it.(map[string]any)
			normalized = append(normalized, normalizeItem(item))
		}
		section["items"] = normalized
	}
}

func normalizeItem(item map[string]any) map[string]any {
	out := make(map[string]any, len(itemKeys))
	for _, k := range itemKeys {
		out[k] = nil
	}

	if line, ok := item["linea_original"].(string); ok {
		line = strings.TrimSpace(line)
		if m := printedLine.FindStringSubmatch(line); m != nil {
			out["lugar_operacion"] = strings.TrimSpace(m[printedLine.SubexpIndex("lugar")])
			out["fecha"] = m[printedLine.SubexpIndex("fecha")]
			out["codigo"] = m[printedLine.SubexpIndex("codigo")]
			out["referencia"] = m[printedLine.SubexpIndex("referencia")]
			out["descripcion"] = canonical.CollapseSpaces(m[printedLine.SubexpIndex("descripcion")])
		} else {
			out["descripcion"] = line
		}
	}

	if fields, ok := item["campos"].(map[string]any); ok {
		for label, v := range fields {
			key, ok := labelKeys[NormalizeLabel(label)]
			if !ok || v == nil {
				continue
			}
			if key == "numero_cuota" {
				out[key] = strings.TrimSpace(scalarText(v))
				continue
			}
			out[key] = amountValue(v)
		}
	}

	for _, k := range itemKeys {
		if out[k] != nil {
			continue
		}
		if v, ok := item[k]; ok {
			out[k] = v
		}
	}
	return out
}

// amountValue keeps numbers, parses money strings and keeps anything else
// as text.
func amountValue(v any) any {
	switch x := v.(type) {
	case json.Number, float64:
		return x
	case string:
		if f, ok := canonical.ParseMoney(x); ok {
			return f
		}
		return x
	}
	return scalarText(v)
}

func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func lookup(doc map[string]any, keys ...string) any {
	var cur any = doc
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}
