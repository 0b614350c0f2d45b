package extraction

import (
	"strings"
)

const promptRules = `You are a financial document parser.

Output rules:
1) Return ONLY a valid JSON object, without markdown or comments.
2) Every required key of the schema MUST be present with the correct type.
3) Map the known sections to the schema:
   - detalle.periodo_actual.operaciones.pagos_a_la_cuenta.items
   - detalle.periodo_actual.operaciones.compras_en_cuotas.items
   - detalle.periodo_actual.voluntariamente_contratados_sin_movimientos.items
   - detalle.periodo_actual.cargos_comisiones_impuestos_abonos.items
4) Sections or items that fit no schema key go under
   detalle.periodo_actual.extras_periodo_actual, keeping the original headings and labels.
   Each extra section has this shape:
   {
     "titulo": "<heading as printed>",
     "total": <number or null>,
     "items": [
       {
         "linea_original": "<line as printed>",
         "campos": { "<label as printed>": <value>, ... }
       }
     ]
   }
5) Keep the printed order of items in every section, extras included.
6) Do NOT translate, rename or alter any label of the document.
7) Monetary amounts:
   - MUST be JSON numbers, never quoted.
   - Drop currency symbols, spaces and thousands separators.
   - Keep decimals when present.
   - Percentages are not amounts: keep them as strings with the '%' sign.
   - This applies to schema keys and extras alike.
8) Never drop data; anything that does not map to a schema key goes to extras_periodo_actual.
`

// BuildPrompt assembles the extraction prompt for a statement text.
func BuildPrompt(text, schema string) string {
	var b strings.Builder
	b.Grow(len(promptRules) + len(text) + len(schema) + 64)
	b.WriteString(promptRules)
	b.WriteString("\nText to analyze:\n")
	b.WriteString(text)
	b.WriteString("\n\nJSON schema (required fields reference):\n")
	b.WriteString(schema)
	b.WriteString("\n")
	return b.String()
}
